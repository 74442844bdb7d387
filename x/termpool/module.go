package termpool

import (
	"encoding/json"
	"fmt"

	"cosmossdk.io/core/appmodule"
	"github.com/cosmos/cosmos-sdk/client"
	"github.com/cosmos/cosmos-sdk/codec"
	cdctypes "github.com/cosmos/cosmos-sdk/codec/types"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/cosmos/cosmos-sdk/types/module"
	"github.com/grpc-ecosystem/grpc-gateway/runtime"
	"github.com/spf13/cobra"

	"github.com/openalpha/termvault/x/termpool/client/cli"
	"github.com/openalpha/termvault/x/termpool/keeper"
	"github.com/openalpha/termvault/x/termpool/types"
)

const (
	ModuleName = types.ModuleName
)

var (
	_ module.AppModuleBasic = AppModuleBasic{}
	_ module.HasGenesis     = AppModule{}
	_ appmodule.AppModule   = AppModule{}
)

// AppModuleBasic defines the basic application module for termpool
type AppModuleBasic struct{}

// Name returns the module's name
func (AppModuleBasic) Name() string {
	return ModuleName
}

// RegisterLegacyAminoCodec registers the module's types on the given LegacyAmino codec
func (AppModuleBasic) RegisterLegacyAminoCodec(cdc *codec.LegacyAmino) {
	cdc.RegisterConcrete(&types.MsgCreatePool{}, "termpool/MsgCreatePool", nil)
	cdc.RegisterConcrete(&types.MsgDeposit{}, "termpool/MsgDeposit", nil)
	cdc.RegisterConcrete(&types.MsgWithdraw{}, "termpool/MsgWithdraw", nil)
	cdc.RegisterConcrete(&types.MsgRedeem{}, "termpool/MsgRedeem", nil)
	cdc.RegisterConcrete(&types.MsgCloseEpoch{}, "termpool/MsgCloseEpoch", nil)
	cdc.RegisterConcrete(&types.MsgProcessInvestment{}, "termpool/MsgProcessInvestment", nil)
	cdc.RegisterConcrete(&types.MsgWithdrawForInvestment{}, "termpool/MsgWithdrawForInvestment", nil)
	cdc.RegisterConcrete(&types.MsgProcessCouponPayment{}, "termpool/MsgProcessCouponPayment", nil)
	cdc.RegisterConcrete(&types.MsgDistributeCouponPayment{}, "termpool/MsgDistributeCouponPayment", nil)
	cdc.RegisterConcrete(&types.MsgClaimCoupon{}, "termpool/MsgClaimCoupon", nil)
	cdc.RegisterConcrete(&types.MsgProcessMaturity{}, "termpool/MsgProcessMaturity", nil)
	cdc.RegisterConcrete(&types.MsgEmergencyExit{}, "termpool/MsgEmergencyExit", nil)
	cdc.RegisterConcrete(&types.MsgSetSlippageTolerance{}, "termpool/MsgSetSlippageTolerance", nil)
	cdc.RegisterConcrete(&types.MsgProvideLiquidity{}, "termpool/MsgProvideLiquidity", nil)
}

// RegisterInterfaces is a no-op: termpool messages are JSON structs without
// protobuf descriptors.
func (AppModuleBasic) RegisterInterfaces(registry cdctypes.InterfaceRegistry) {}

// DefaultGenesis returns default genesis state as raw bytes
func (AppModuleBasic) DefaultGenesis(cdc codec.JSONCodec) json.RawMessage {
	bz, _ := json.Marshal(types.DefaultGenesis())
	return bz
}

// ValidateGenesis performs genesis state validation
func (AppModuleBasic) ValidateGenesis(cdc codec.JSONCodec, config client.TxEncodingConfig, bz json.RawMessage) error {
	var gs types.GenesisState
	if err := json.Unmarshal(bz, &gs); err != nil {
		return fmt.Errorf("failed to unmarshal %s genesis state: %w", ModuleName, err)
	}
	return gs.Validate()
}

// RegisterGRPCGatewayRoutes registers the gRPC Gateway routes for the module
func (AppModuleBasic) RegisterGRPCGatewayRoutes(clientCtx client.Context, mux *runtime.ServeMux) {}

// GetTxCmd returns the root tx command
func (AppModuleBasic) GetTxCmd() *cobra.Command {
	return cli.GetTxCmd()
}

// GetQueryCmd returns the root query command
func (AppModuleBasic) GetQueryCmd() *cobra.Command {
	return cli.GetQueryCmd()
}

// AppModule implements an application module for the termpool module
type AppModule struct {
	AppModuleBasic
	keeper *keeper.Keeper
}

// NewAppModule creates a new AppModule object
func NewAppModule(k *keeper.Keeper) AppModule {
	return AppModule{
		AppModuleBasic: AppModuleBasic{},
		keeper:         k,
	}
}

// Name returns the module's name
func (am AppModule) Name() string {
	return ModuleName
}

// InitGenesis loads pools, holders and params
func (am AppModule) InitGenesis(ctx sdk.Context, cdc codec.JSONCodec, data json.RawMessage) {
	var gs types.GenesisState
	if err := json.Unmarshal(data, &gs); err != nil {
		panic(fmt.Errorf("failed to unmarshal %s genesis state: %w", ModuleName, err))
	}
	am.keeper.InitGenesis(ctx, gs)
}

// ExportGenesis exports the termpool state as raw JSON
func (am AppModule) ExportGenesis(ctx sdk.Context, cdc codec.JSONCodec) json.RawMessage {
	bz, _ := json.Marshal(am.keeper.ExportGenesis(ctx))
	return bz
}

// IsOnePerModuleType implements the depinject.OnePerModuleType interface
func (am AppModule) IsOnePerModuleType() {}

// IsAppModule implements the appmodule.AppModule interface
func (am AppModule) IsAppModule() {}

// EndBlocker records pool value snapshots every SnapshotInterval blocks
func (am AppModule) EndBlocker(ctx sdk.Context) error {
	return am.keeper.EndBlocker(ctx)
}
