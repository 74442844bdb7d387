package app

import (
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"

	"cosmossdk.io/log"
	"cosmossdk.io/math"
	abci "github.com/cometbft/cometbft/abci/types"
	cmtproto "github.com/cometbft/cometbft/proto/tendermint/types"
	dbm "github.com/cosmos/cosmos-db"
	"github.com/cosmos/cosmos-sdk/baseapp"
	simtestutil "github.com/cosmos/cosmos-sdk/testutil/sims"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	termpooltypes "github.com/openalpha/termvault/x/termpool/types"
)

func testAddr(name string) sdk.AccAddress {
	b := make([]byte, 20)
	copy(b, name)
	return sdk.AccAddress(b)
}

func newTestApp(t *testing.T) (*App, sdk.Context) {
	t.Helper()

	a := NewApp(log.NewNopLogger(), dbm.NewMemDB(), nil, true, simtestutil.EmptyAppOptions{}, baseapp.SetChainID("termvault-test"))
	state := map[string]json.RawMessage{}
	for name, raw := range ModuleBasics.DefaultGenesis(a.AppCodec()) {
		state[name] = raw
	}
	appState, err := json.Marshal(state)
	require.NoError(t, err)

	_, err = a.InitChain(&abci.RequestInitChain{
		ChainId:         "termvault-test",
		AppStateBytes:   appState,
		ConsensusParams: simtestutil.DefaultConsensusParams,
	})
	require.NoError(t, err)

	_, err = a.FinalizeBlock(&abci.RequestFinalizeBlock{Height: 1, Time: time.Unix(1_700_000_000, 0)})
	require.NoError(t, err)
	_, err = a.Commit()
	require.NoError(t, err)

	return a, a.NewUncachedContext(false, cmtproto.Header{Height: 2, Time: time.Unix(1_700_000_005, 0)})
}

func TestBankShareAccount(t *testing.T) {
	a, ctx := newTestApp(t)
	shares := newBankShareAccount(a.BankKeeper)
	holder := testAddr("holder").String()

	require.NoError(t, shares.Mint(ctx, "bill-1", holder, math.NewInt(700)))
	assert.Equal(t, int64(700), shares.BalanceOf(ctx, "bill-1", holder).Int64())
	assert.Equal(t, int64(700), shares.TotalSupply(ctx, "bill-1").Int64())

	// shares are not transferable between accounts
	assert.False(t, a.BankKeeper.IsSendEnabledDenom(ctx, ShareDenom("bill-1")))

	require.NoError(t, shares.Burn(ctx, "bill-1", holder, math.NewInt(200)))
	assert.Equal(t, int64(500), shares.BalanceOf(ctx, "bill-1", holder).Int64())
	assert.Equal(t, int64(500), shares.TotalSupply(ctx, "bill-1").Int64())

	err := shares.Burn(ctx, "bill-1", holder, math.NewInt(501))
	assert.ErrorIs(t, err, termpooltypes.ErrInsufficientShares)

	assert.True(t, shares.TotalSupply(ctx, "other").IsZero())
	assert.Error(t, shares.Mint(ctx, "bill-1", "not-an-address", math.NewInt(1)))
}

func TestInitChainLoadsModuleDefaults(t *testing.T) {
	a, ctx := newTestApp(t)

	params := a.TermpoolKeeper.GetParams(ctx)
	assert.Equal(t, termpooltypes.DefaultParams().SnapshotInterval, params.SnapshotInterval)
	assert.Empty(t, a.TermpoolKeeper.GetAllPools(ctx))

	exported, err := a.ExportAppStateAndValidators(false, nil)
	require.NoError(t, err)

	var state map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(exported.AppState, &state))
	assert.Contains(t, state, termpooltypes.ModuleName)
	assert.Contains(t, state, "custody")
	assert.Contains(t, state, "bank")
}

func TestGenesisValidators(t *testing.T) {
	key := base64.StdEncoding.EncodeToString(make([]byte, 32))

	staking := json.RawMessage(`{"validators":[
		{"consensus_pubkey":{"@type":"/cosmos.crypto.ed25519.PubKey","key":"` + key + `"},"status":"BOND_STATUS_BONDED"},
		{"consensus_pubkey":{"@type":"/cosmos.crypto.ed25519.PubKey","key":"` + key + `"},"status":"BOND_STATUS_UNBONDED"}
	]}`)
	updates := genesisValidators(map[string]json.RawMessage{"staking": staking})
	require.Len(t, updates, 1)
	assert.Equal(t, int64(genesisValidatorPower), updates[0].Power)

	genutil := json.RawMessage(`{"gen_txs":[{"body":{"messages":[
		{"@type":"/cosmos.staking.v1beta1.MsgCreateValidator","pubkey":{"key":"` + key + `"}},
		{"@type":"/cosmos.bank.v1beta1.MsgSend"}
	]}}]}`)
	updates = genesisValidators(map[string]json.RawMessage{"genutil": genutil})
	assert.Len(t, updates, 1)

	assert.Empty(t, genesisValidators(map[string]json.RawMessage{"genutil": json.RawMessage(`{"gen_txs":[]}`)}))
}
