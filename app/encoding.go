package app

import (
	"fmt"

	"cosmossdk.io/x/tx/signing"
	"github.com/cosmos/cosmos-sdk/client"
	"github.com/cosmos/cosmos-sdk/codec"
	"github.com/cosmos/cosmos-sdk/codec/address"
	"github.com/cosmos/cosmos-sdk/codec/types"
	"github.com/cosmos/cosmos-sdk/std"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/cosmos/cosmos-sdk/x/auth/tx"
	"github.com/cosmos/gogoproto/proto"
)

// EncodingConfig specifies the concrete encoding types to use
type EncodingConfig struct {
	InterfaceRegistry types.InterfaceRegistry
	Codec             codec.Codec
	TxConfig          client.TxConfig
	Amino             *codec.LegacyAmino
}

// signingOptions derives address codecs from the global bech32 prefixes
func signingOptions() signing.Options {
	cfg := sdk.GetConfig()
	return signing.Options{
		AddressCodec:          address.NewBech32Codec(cfg.GetBech32AccountAddrPrefix()),
		ValidatorAddressCodec: address.NewBech32Codec(cfg.GetBech32ValidatorAddrPrefix()),
	}
}

// NewEncodingConfig builds codecs for the SDK modules in ModuleBasics.
// Custody and termpool messages travel as JSON and only register amino names.
func NewEncodingConfig() (EncodingConfig, error) {
	opts := signingOptions()

	registry, err := types.NewInterfaceRegistryWithOptions(types.InterfaceRegistryOptions{
		ProtoFiles:     proto.HybridResolver,
		SigningOptions: opts,
	})
	if err != nil {
		return EncodingConfig{}, fmt.Errorf("interface registry: %w", err)
	}
	cdc := codec.NewProtoCodec(registry)

	txCfg, err := tx.NewTxConfigWithOptions(cdc, tx.ConfigOptions{
		EnabledSignModes: tx.DefaultSignModes,
		SigningOptions:   &opts,
	})
	if err != nil {
		return EncodingConfig{}, fmt.Errorf("tx config: %w", err)
	}

	amino := codec.NewLegacyAmino()
	std.RegisterLegacyAminoCodec(amino)
	std.RegisterInterfaces(registry)
	ModuleBasics.RegisterLegacyAminoCodec(amino)
	ModuleBasics.RegisterInterfaces(registry)

	return EncodingConfig{
		InterfaceRegistry: registry,
		Codec:             cdc,
		TxConfig:          txCfg,
		Amino:             amino,
	}, nil
}

// MakeEncodingConfig is NewEncodingConfig for callers that cannot recover
func MakeEncodingConfig() EncodingConfig {
	cfg, err := NewEncodingConfig()
	if err != nil {
		panic(err)
	}
	return cfg
}
