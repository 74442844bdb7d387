package app

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	abci "github.com/cometbft/cometbft/abci/types"
	cmtcrypto "github.com/cometbft/cometbft/proto/tendermint/crypto"
	cmtproto "github.com/cometbft/cometbft/proto/tendermint/types"
	servertypes "github.com/cosmos/cosmos-sdk/server/types"
	authtypes "github.com/cosmos/cosmos-sdk/x/auth/types"
	banktypes "github.com/cosmos/cosmos-sdk/x/bank/types"
	"github.com/samber/lo"

	custodytypes "github.com/openalpha/termvault/x/custody/types"
	termpooltypes "github.com/openalpha/termvault/x/termpool/types"
)

// genesisValidatorPower is the voting power given to every genesis validator.
// There is no staking keeper so stake does not weigh in.
const genesisValidatorPower = 100

const msgCreateValidatorURL = "/cosmos.staking.v1beta1.MsgCreateValidator"

type encodedPubKey struct {
	Type string `json:"@type"`
	Key  string `json:"key"`
}

type stakingGenesis struct {
	Validators []struct {
		ConsensusPubkey encodedPubKey `json:"consensus_pubkey"`
		Status          string        `json:"status"`
	} `json:"validators"`
}

type genutilGenesis struct {
	GenTxs []struct {
		Body struct {
			Messages []struct {
				Type   string        `json:"@type"`
				Pubkey encodedPubKey `json:"pubkey"`
			} `json:"messages"`
		} `json:"body"`
	} `json:"gen_txs"`
}

func ed25519Update(key string) (abci.ValidatorUpdate, bool) {
	bz, err := base64.StdEncoding.DecodeString(key)
	if err != nil {
		return abci.ValidatorUpdate{}, false
	}
	return abci.ValidatorUpdate{
		PubKey: cmtcrypto.PublicKey{Sum: &cmtcrypto.PublicKey_Ed25519{Ed25519: bz}},
		Power:  genesisValidatorPower,
	}, true
}

// genesisValidators reads bonded validators from the staking genesis, or the
// create-validator messages of the gentxs when staking has none
func genesisValidators(state map[string]json.RawMessage) []abci.ValidatorUpdate {
	var updates []abci.ValidatorUpdate

	var staking stakingGenesis
	if raw, ok := state["staking"]; ok && json.Unmarshal(raw, &staking) == nil {
		for _, val := range staking.Validators {
			if val.Status != "BOND_STATUS_BONDED" {
				continue
			}
			if u, ok := ed25519Update(val.ConsensusPubkey.Key); ok {
				updates = append(updates, u)
			}
		}
	}
	if len(updates) > 0 {
		return updates
	}

	var genutil genutilGenesis
	if raw, ok := state["genutil"]; ok && json.Unmarshal(raw, &genutil) == nil {
		for _, tx := range genutil.GenTxs {
			for _, msg := range tx.Body.Messages {
				if msg.Type != msgCreateValidatorURL {
					continue
				}
				if u, ok := ed25519Update(msg.Pubkey.Key); ok {
					updates = append(updates, u)
				}
			}
		}
	}
	return updates
}

// ExportAppStateAndValidators exports the auth, bank, custody and termpool
// state at the last committed height
func (app *App) ExportAppStateAndValidators(forZeroHeight bool, modulesToExport []string) (servertypes.ExportedApp, error) {
	height := app.LastBlockHeight() + 1
	if forZeroHeight {
		height = 0
	}
	ctx := app.NewContextLegacy(true, cmtproto.Header{Height: app.LastBlockHeight()})

	include := func(name string) bool {
		return len(modulesToExport) == 0 || lo.Contains(modulesToExport, name)
	}

	state := make(map[string]json.RawMessage)
	if include(authtypes.ModuleName) {
		state[authtypes.ModuleName] = app.appCodec.MustMarshalJSON(app.AccountKeeper.ExportGenesis(ctx))
	}
	if include(banktypes.ModuleName) {
		state[banktypes.ModuleName] = app.appCodec.MustMarshalJSON(app.BankKeeper.ExportGenesis(ctx))
	}
	if include(custodytypes.ModuleName) {
		state[custodytypes.ModuleName] = app.custodyModule.ExportGenesis(ctx, app.appCodec)
	}
	if include(termpooltypes.ModuleName) {
		state[termpooltypes.ModuleName] = app.termpoolModule.ExportGenesis(ctx, app.appCodec)
	}

	appState, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return servertypes.ExportedApp{}, fmt.Errorf("failed to marshal app state: %w", err)
	}

	params, err := app.ConsensusParamsKeeper.ParamsStore.Get(ctx)
	if err != nil {
		return servertypes.ExportedApp{}, fmt.Errorf("failed to read consensus params: %w", err)
	}

	return servertypes.ExportedApp{
		AppState:        appState,
		Height:          height,
		ConsensusParams: params,
	}, nil
}
