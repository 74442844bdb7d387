package keeper

import (
	"context"
	"testing"
	"time"

	"cosmossdk.io/log"
	"cosmossdk.io/math"
	"cosmossdk.io/store"
	"cosmossdk.io/store/metrics"
	storetypes "cosmossdk.io/store/types"
	cmtproto "github.com/cometbft/cometbft/proto/tendermint/types"
	dbm "github.com/cosmos/cosmos-db"
	"github.com/cosmos/cosmos-sdk/codec"
	codectypes "github.com/cosmos/cosmos-sdk/codec/types"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/stretchr/testify/require"

	"github.com/openalpha/termvault/pkg/membank"
	custodykeeper "github.com/openalpha/termvault/x/custody/keeper"
	custodytypes "github.com/openalpha/termvault/x/custody/types"
	"github.com/openalpha/termvault/x/termpool/types"
)

const (
	testDenom = "uusdc"
	t0        = int64(1_700_000_000)
	daySecs   = int64(86_400)
)

var (
	authority = addr("gov")
	admin     = addr("admin")
	operator  = addr("operator")
	agent     = addr("agent")
	guardian  = addr("guardian")
	alice     = addr("alice")
	bob       = addr("bob")
	carol     = addr("carol")
	signer1   = addr("signer-one")
	signer2   = addr("signer-two")
	signer3   = addr("signer-three")
)

func addr(name string) string {
	b := make([]byte, 20)
	copy(b, name)
	return sdk.AccAddress(b).String()
}

func accAddr(bech string) sdk.AccAddress {
	return sdk.MustAccAddressFromBech32(bech)
}

type transition struct {
	poolID   string
	from, to types.Phase
}

// recordingFees remembers every phase change it is told about.
type recordingFees struct {
	seen []transition
}

func (r *recordingFees) OnPhaseChanged(_ context.Context, poolID string, from, to types.Phase) {
	r.seen = append(r.seen, transition{poolID, from, to})
}

type fixture struct {
	keeper  *Keeper
	custody *custodykeeper.Keeper
	ctx     sdk.Context
	bank    *membank.Bank
	fees    *recordingFees
}

func setupKeeper(t *testing.T) *fixture {
	t.Helper()

	poolKey := storetypes.NewKVStoreKey(types.StoreKey)
	custodyKey := storetypes.NewKVStoreKey(custodytypes.StoreKey)
	db := dbm.NewMemDB()
	stateStore := store.NewCommitMultiStore(db, log.NewNopLogger(), metrics.NewNoOpMetrics())
	stateStore.MountStoreWithDB(poolKey, storetypes.StoreTypeIAVL, db)
	stateStore.MountStoreWithDB(custodyKey, storetypes.StoreTypeIAVL, db)
	require.NoError(t, stateStore.LoadLatestVersion())

	ctx := sdk.NewContext(stateStore, cmtproto.Header{Height: 1}, false, log.NewNopLogger()).
		WithBlockTime(time.Unix(t0, 0))

	cdc := codec.NewProtoCodec(codectypes.NewInterfaceRegistry())
	bank := membank.New()
	ck := custodykeeper.NewKeeper(cdc, custodyKey, bank, authority, log.NewNopLogger())
	k := NewKeeper(cdc, poolKey, bank, ck, authority, log.NewNopLogger())
	ck.SetPhaseReader(k)
	fees := &recordingFees{}
	k.SetFeeManager(fees)

	params := types.DefaultParams()
	params.ApprovedAssets = []string{testDenom}
	params.Roles = types.RoleTable{
		types.RoleAdmin:     {admin},
		types.RoleOperator:  {operator},
		types.RoleAgent:     {agent},
		types.RoleEmergency: {guardian},
	}
	k.SetParams(ctx, params)

	for _, who := range []string{alice, bob, carol, agent, operator} {
		bank.Fund(accAddr(who), sdk.NewCoins(sdk.NewInt64Coin(testDenom, 1_000_000)))
	}

	return &fixture{keeper: k, custody: ck, ctx: ctx, bank: bank, fees: fees}
}

// at moves the block clock to ts.
func (f *fixture) at(ts int64) {
	f.ctx = f.ctx.WithBlockTime(time.Unix(ts, 0))
}

// freshEvents resets the event manager so assertions only see what follows.
func (f *fixture) freshEvents() {
	f.ctx = f.ctx.WithEventManager(sdk.NewEventManager())
}

func discountedConfig(poolID string) types.PoolConfig {
	return types.PoolConfig{
		PoolID:                 poolID,
		Asset:                  testDenom,
		Agent:                  agent,
		Instrument:             types.InstrumentDiscounted,
		TargetRaise:            math.NewInt(100_000),
		EpochEnd:               t0 + 3*daySecs,
		Maturity:               t0 + 180*daySecs,
		DiscountRateBp:         1800,
		LargeTransferThreshold: math.NewInt(50_000),
	}
}

func couponConfig(poolID string) types.PoolConfig {
	cfg := discountedConfig(poolID)
	cfg.Instrument = types.InstrumentInterestBearing
	cfg.DiscountRateBp = 0
	cfg.Coupons = []types.Coupon{
		{Time: t0 + 30*daySecs, RateBp: 200},
		{Time: t0 + 60*daySecs, RateBp: 200},
	}
	return cfg
}

func (f *fixture) createPool(t *testing.T, cfg types.PoolConfig) {
	t.Helper()
	_, err := f.keeper.CreatePool(f.ctx, admin, CreatePoolRequest{
		Config:                cfg,
		Signers:               []string{signer1, signer2, signer3},
		RequiredConfirmations: 2,
	})
	require.NoError(t, err)
}

func (f *fixture) deposit(t *testing.T, poolID, who string, amount int64) {
	t.Helper()
	_, err := f.keeper.Deposit(f.ctx, who, poolID, math.NewInt(amount), who)
	require.NoError(t, err)
}

func (f *fixture) state(poolID string) *types.PoolState {
	return f.keeper.GetPoolState(f.ctx, poolID)
}

func (f *fixture) balance(who string) math.Int {
	return f.bank.Balance(accAddr(who), testDenom)
}

func (f *fixture) shares(poolID, who string) math.Int {
	return f.keeper.Shares().BalanceOf(f.ctx, poolID, who)
}

// invest walks a funded pool through epoch close, agent withdrawal and confirmation.
func (f *fixture) invest(t *testing.T, poolID string, actual int64) {
	t.Helper()
	cfg := f.keeper.GetPoolConfig(f.ctx, poolID)
	f.at(cfg.EpochEnd + 1)
	phase, err := f.keeper.CloseEpoch(f.ctx, operator, poolID)
	require.NoError(t, err)
	require.Equal(t, types.PhasePendingInvestment, phase)
	_, err = f.keeper.WithdrawForInvestment(f.ctx, agent, poolID, f.state(poolID).TotalRaised)
	require.NoError(t, err)
	require.NoError(t, f.keeper.ProcessInvestment(f.ctx, agent, poolID, math.NewInt(actual), "proof-"+poolID))
}

func hasEvent(ctx sdk.Context, eventType string) bool {
	for _, e := range ctx.EventManager().Events() {
		if e.Type == eventType {
			return true
		}
	}
	return false
}

func TestCreatePool(t *testing.T) {
	f := setupKeeper(t)
	f.createPool(t, discountedConfig("bill-1"))

	pool := f.keeper.GetPool(f.ctx, "bill-1")
	require.NotNil(t, pool)
	require.Equal(t, types.PhaseFunding, pool.State.Phase)
	require.Equal(t, uint32(types.DefaultSlippageToleranceBp), pool.Config.SlippageToleranceBp)
	require.True(t, pool.Config.FaceValue.IsZero())

	ledger := f.custody.GetLedger(f.ctx, "bill-1")
	require.NotNil(t, ledger)
	require.Equal(t, f.keeper.ModuleAddress(), ledger.Controller)
	require.Equal(t, admin, ledger.Admin)
	require.Equal(t, uint32(2), ledger.RequiredConfirmations)

	meta, err := f.keeper.GetPoolMetadata(f.ctx, "bill-1")
	require.NoError(t, err)
	require.Equal(t, "bill-1", meta.CustodyLedgerID)
	require.True(t, f.keeper.IsRegisteredPool(f.ctx, "bill-1"))
	require.False(t, f.keeper.IsRegisteredPool(f.ctx, "bill-2"))
}

func TestCreatePoolRejections(t *testing.T) {
	f := setupKeeper(t)
	f.createPool(t, discountedConfig("bill-1"))

	req := func(cfg types.PoolConfig) CreatePoolRequest {
		return CreatePoolRequest{Config: cfg, Signers: []string{signer1, signer2, signer3}, RequiredConfirmations: 2}
	}

	_, err := f.keeper.CreatePool(f.ctx, admin, req(discountedConfig("bill-1")))
	require.ErrorIs(t, err, types.ErrPoolAlreadyExists)

	_, err = f.keeper.CreatePool(f.ctx, alice, req(discountedConfig("bill-2")))
	require.ErrorIs(t, err, types.ErrUnauthorized)

	cfg := discountedConfig("bill-3")
	cfg.Asset = "uatom"
	_, err = f.keeper.CreatePool(f.ctx, admin, req(cfg))
	require.ErrorIs(t, err, types.ErrAssetNotApproved)

	cfg = discountedConfig("bill-4")
	cfg.DiscountRateBp = types.BasisPoints
	_, err = f.keeper.CreatePool(f.ctx, admin, req(cfg))
	require.ErrorIs(t, err, types.ErrInvalidConfig)

	cfg = discountedConfig("bill-5")
	cfg.EpochEnd = cfg.Maturity
	_, err = f.keeper.CreatePool(f.ctx, admin, req(cfg))
	require.ErrorIs(t, err, types.ErrInvalidConfig)

	_, err = f.keeper.CreatePool(f.ctx, admin, CreatePoolRequest{
		Config: discountedConfig("bill-6"), Signers: []string{signer1, signer2}, RequiredConfirmations: 3,
	})
	require.ErrorIs(t, err, custodytypes.ErrInvalidSignerSet)
	require.False(t, f.keeper.IsRegisteredPool(f.ctx, "bill-6"), "failed ledger creation must roll back the pool")
}

func TestDeposit(t *testing.T) {
	f := setupKeeper(t)
	f.createPool(t, discountedConfig("bill-1"))

	shares, err := f.keeper.Deposit(f.ctx, alice, "bill-1", math.NewInt(40_000), alice)
	require.NoError(t, err)
	require.Equal(t, "40000", shares.String())
	require.Equal(t, "40000", f.shares("bill-1", alice).String())
	require.Equal(t, "960000", f.balance(alice).String())
	require.Equal(t, t0, f.keeper.GetUserPoolData(f.ctx, "bill-1", alice).DepositTime)
	require.True(t, hasEvent(f.ctx, types.EventTypeDeposit))

	ledger := f.custody.GetLedger(f.ctx, "bill-1")
	require.Equal(t, "40000", ledger.TotalDeposits.String())
	require.Equal(t, "40000", ledger.TotalBalance.String())

	// a later deposit keeps the first deposit time
	f.at(t0 + daySecs)
	f.deposit(t, "bill-1", alice, 10_000)
	require.Equal(t, t0, f.keeper.GetUserPoolData(f.ctx, "bill-1", alice).DepositTime)

	_, err = f.keeper.Deposit(f.ctx, bob, "bill-1", math.NewInt(50_001), bob)
	require.ErrorIs(t, err, types.ErrExceedsTargetRaise)

	_, err = f.keeper.Deposit(f.ctx, bob, "bill-1", math.ZeroInt(), bob)
	require.ErrorIs(t, err, types.ErrInvalidAmount)

	f.deposit(t, "bill-1", bob, 50_000)
	require.Equal(t, "100000", f.state("bill-1").TotalRaised.String())

	f.at(t0 + 3*daySecs + 1)
	_, err = f.keeper.Deposit(f.ctx, carol, "bill-1", math.NewInt(1), carol)
	require.ErrorIs(t, err, types.ErrEpochEnded)
}

func TestDepositRollsBackWhenFundsMissing(t *testing.T) {
	f := setupKeeper(t)
	f.createPool(t, discountedConfig("bill-1"))
	pauper := addr("pauper")

	_, err := f.keeper.Deposit(f.ctx, pauper, "bill-1", math.NewInt(1_000), pauper)
	require.Error(t, err)

	require.True(t, f.state("bill-1").TotalRaised.IsZero())
	require.True(t, f.shares("bill-1", pauper).IsZero())
	require.False(t, f.keeper.GetUserPoolData(f.ctx, "bill-1", pauper).HasDeposited())
	require.True(t, f.custody.GetLedger(f.ctx, "bill-1").TotalBalance.IsZero())
}

func TestFundingWithdrawIsPenaltyFree(t *testing.T) {
	f := setupKeeper(t)
	f.createPool(t, discountedConfig("bill-1"))
	f.deposit(t, "bill-1", alice, 30_000)

	_, err := f.keeper.Withdraw(f.ctx, bob, "bill-1", math.NewInt(1_000), bob, alice)
	require.ErrorIs(t, err, types.ErrUnauthorized)

	quote, err := f.keeper.Withdraw(f.ctx, alice, "bill-1", math.NewInt(10_000), alice, alice)
	require.NoError(t, err)
	require.True(t, quote.Penalty.IsZero())
	require.Equal(t, "10000", quote.Shares.String())
	require.Equal(t, "20000", f.state("bill-1").TotalRaised.String())
	require.Equal(t, "980000", f.balance(alice).String())

	_, err = f.keeper.Withdraw(f.ctx, alice, "bill-1", math.NewInt(20_001), alice, alice)
	require.ErrorIs(t, err, types.ErrInsufficientShares)

	_, err = f.keeper.Redeem(f.ctx, alice, "bill-1", math.NewInt(20_000), alice, alice)
	require.NoError(t, err)
	require.True(t, f.shares("bill-1", alice).IsZero())
	require.Equal(t, int64(0), f.keeper.GetUserPoolData(f.ctx, "bill-1", alice).DepositTime)
	require.Equal(t, "1000000", f.balance(alice).String())
}

func TestCloseEpochMinimumRaise(t *testing.T) {
	testCases := []struct {
		name   string
		raised int64
		want   types.Phase
	}{
		{"below half", 49_999, types.PhaseEmergency},
		{"exactly half", 50_000, types.PhasePendingInvestment},
		{"fully raised", 100_000, types.PhasePendingInvestment},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := setupKeeper(t)
			f.createPool(t, discountedConfig("bill-1"))
			f.deposit(t, "bill-1", alice, tc.raised)

			_, err := f.keeper.CloseEpoch(f.ctx, operator, "bill-1")
			require.ErrorIs(t, err, types.ErrEpochNotEnded)
			require.True(t, types.Retryable(err))

			f.at(t0 + 3*daySecs + 1)
			_, err = f.keeper.CloseEpoch(f.ctx, alice, "bill-1")
			require.ErrorIs(t, err, types.ErrUnauthorized)

			phase, err := f.keeper.CloseEpoch(f.ctx, operator, "bill-1")
			require.NoError(t, err)
			require.Equal(t, tc.want, phase)
			require.Equal(t, tc.want, f.state("bill-1").Phase)

			if tc.want == types.PhasePendingInvestment {
				want, err := types.FaceValue(math.NewInt(tc.raised), 1800)
				require.NoError(t, err)
				require.Equal(t, want.String(), f.keeper.GetPoolConfig(f.ctx, "bill-1").FaceValue.String())
			}

			_, err = f.keeper.CloseEpoch(f.ctx, operator, "bill-1")
			require.ErrorIs(t, err, types.ErrWrongPhase)
		})
	}
}

func TestForceCloseEpoch(t *testing.T) {
	f := setupKeeper(t)
	f.createPool(t, couponConfig("note-1"))
	f.deposit(t, "note-1", alice, 60_000)

	_, err := f.keeper.ForceCloseEpoch(f.ctx, operator, "note-1")
	require.ErrorIs(t, err, types.ErrUnauthorized)

	phase, err := f.keeper.ForceCloseEpoch(f.ctx, guardian, "note-1")
	require.NoError(t, err)
	require.Equal(t, types.PhasePendingInvestment, phase)
	// interest bearing pools keep face value equal to the raise
	require.Equal(t, "60000", f.keeper.GetPoolConfig(f.ctx, "note-1").FaceValue.String())

	require.Len(t, f.fees.seen, 1)
	require.Equal(t, transition{"note-1", types.PhaseFunding, types.PhasePendingInvestment}, f.fees.seen[0])
}

func TestPhaseGating(t *testing.T) {
	f := setupKeeper(t)
	f.createPool(t, discountedConfig("bill-1"))
	f.deposit(t, "bill-1", alice, 80_000)

	err := f.keeper.ProcessInvestment(f.ctx, agent, "bill-1", math.NewInt(80_000), "proof")
	require.ErrorIs(t, err, types.ErrWrongPhase)

	_, err = f.keeper.WithdrawForInvestment(f.ctx, agent, "bill-1", math.NewInt(1))
	require.ErrorIs(t, err, types.ErrWrongPhase)

	err = f.keeper.ProvideLiquidity(f.ctx, agent, "bill-1", math.NewInt(1))
	require.ErrorIs(t, err, types.ErrWrongPhase)

	f.at(t0 + 3*daySecs + 1)
	_, err = f.keeper.CloseEpoch(f.ctx, admin, "bill-1")
	require.NoError(t, err)

	_, err = f.keeper.Deposit(f.ctx, bob, "bill-1", math.NewInt(1), bob)
	require.ErrorIs(t, err, types.ErrWrongPhase)

	_, err = f.keeper.Withdraw(f.ctx, alice, "bill-1", math.NewInt(1), alice, alice)
	require.ErrorIs(t, err, types.ErrWrongPhase)

	_, err = f.keeper.Deposit(f.ctx, bob, "missing", math.NewInt(1), bob)
	require.ErrorIs(t, err, types.ErrPoolNotFound)
}

func TestProcessInvestmentSlippage(t *testing.T) {
	f := setupKeeper(t)
	f.createPool(t, discountedConfig("bill-1"))
	f.deposit(t, "bill-1", alice, 100_000)
	f.at(t0 + 3*daySecs + 1)
	_, err := f.keeper.CloseEpoch(f.ctx, operator, "bill-1")
	require.NoError(t, err)

	f.freshEvents()
	err = f.keeper.ProcessInvestment(f.ctx, agent, "bill-1", math.NewInt(94_999), "proof")
	require.ErrorIs(t, err, types.ErrSlippageExceeded)
	require.True(t, hasEvent(f.ctx, types.EventTypeSlippageProtectionTriggered))
	require.Equal(t, types.PhasePendingInvestment, f.state("bill-1").Phase)

	err = f.keeper.ProcessInvestment(f.ctx, alice, "bill-1", math.NewInt(95_000), "proof")
	require.ErrorIs(t, err, types.ErrUnauthorized)

	require.NoError(t, f.keeper.ProcessInvestment(f.ctx, operator, "bill-1", math.NewInt(95_000), "proof"))
	state := f.state("bill-1")
	require.Equal(t, types.PhaseInvested, state.Phase)
	require.Equal(t, "95000", state.ActualInvested.String())
	require.Equal(t, "proof", state.ProofReference)
	// 121951 - 95000
	require.Equal(t, "26951", state.TotalDiscountEarned.String())
}

func TestInterestBearingInvestmentNeedsFutureCoupon(t *testing.T) {
	f := setupKeeper(t)
	f.createPool(t, couponConfig("note-1"))
	f.deposit(t, "note-1", alice, 100_000)
	f.at(t0 + 3*daySecs + 1)
	_, err := f.keeper.CloseEpoch(f.ctx, operator, "note-1")
	require.NoError(t, err)

	f.at(t0 + 30*daySecs)
	err = f.keeper.ProcessInvestment(f.ctx, agent, "note-1", math.NewInt(100_000), "proof")
	require.ErrorIs(t, err, types.ErrInvalidConfig)
}

func TestWithdrawForInvestment(t *testing.T) {
	f := setupKeeper(t)
	f.createPool(t, discountedConfig("bill-1"))
	f.deposit(t, "bill-1", alice, 90_000)
	f.at(t0 + 3*daySecs + 1)
	_, err := f.keeper.CloseEpoch(f.ctx, operator, "bill-1")
	require.NoError(t, err)

	_, err = f.keeper.WithdrawForInvestment(f.ctx, alice, "bill-1", math.NewInt(1_000))
	require.ErrorIs(t, err, types.ErrUnauthorized)

	_, err = f.keeper.WithdrawForInvestment(f.ctx, agent, "bill-1", math.NewInt(90_001))
	require.ErrorIs(t, err, types.ErrInsufficientLiquidity)

	flagged, err := f.keeper.WithdrawForInvestment(f.ctx, agent, "bill-1", math.NewInt(30_000))
	require.NoError(t, err)
	require.False(t, flagged)

	f.freshEvents()
	flagged, err = f.keeper.WithdrawForInvestment(f.ctx, operator, "bill-1", math.NewInt(60_000))
	require.NoError(t, err)
	require.True(t, flagged)
	require.True(t, hasEvent(f.ctx, custodytypes.EventTypeLargeTransferFlagged))

	require.Equal(t, "90000", f.state("bill-1").FundsWithdrawnByAgent.String())
	require.Equal(t, "1090000", f.balance(agent).String())
	require.True(t, f.custody.GetLedger(f.ctx, "bill-1").TotalBalance.IsZero())
}

// A 70,000 raise on an 18% discount note: face value 85,365, invested 68,000,
// repaid at face and split 60/10 between two holders.
func TestDiscountedPoolEndToEnd(t *testing.T) {
	f := setupKeeper(t)
	f.createPool(t, discountedConfig("bill-1"))
	f.deposit(t, "bill-1", alice, 60_000)
	f.deposit(t, "bill-1", bob, 10_000)

	f.invest(t, "bill-1", 68_000)
	cfg := f.keeper.GetPoolConfig(f.ctx, "bill-1")
	state := f.state("bill-1")
	require.Equal(t, "85365", cfg.FaceValue.String())
	require.Equal(t, "17365", state.TotalDiscountEarned.String())
	require.Equal(t, "70000", state.FundsWithdrawnByAgent.String())

	f.at(cfg.Maturity - 1)
	err := f.keeper.ProcessMaturity(f.ctx, agent, "bill-1", math.NewInt(85_365))
	require.ErrorIs(t, err, types.ErrNotMatured)
	require.True(t, types.Retryable(err))

	f.at(cfg.Maturity)
	err = f.keeper.ProcessMaturity(f.ctx, agent, "bill-1", math.NewInt(81_000))
	require.ErrorIs(t, err, types.ErrSlippageExceeded)

	require.NoError(t, f.keeper.ProcessMaturity(f.ctx, agent, "bill-1", math.NewInt(85_365)))
	state = f.state("bill-1")
	require.Equal(t, types.PhaseMatured, state.Phase)
	require.Equal(t, "85365", state.FundsReturnedByAgent.String())

	aliceBefore := f.balance(alice)
	quote, err := f.keeper.Withdraw(f.ctx, alice, "bill-1", math.ZeroInt(), alice, alice)
	require.NoError(t, err)
	require.Equal(t, "73170", quote.Net.String())
	require.Equal(t, "73170", f.balance(alice).Sub(aliceBefore).String())

	bobBefore := f.balance(bob)
	quote, err = f.keeper.Redeem(f.ctx, bob, "bill-1", math.NewInt(10_000), bob, bob)
	require.NoError(t, err)
	require.Equal(t, "12195", quote.Net.String())
	require.Equal(t, "12195", f.balance(bob).Sub(bobBefore).String())

	require.True(t, f.state("bill-1").MaturityPayoutRemaining.IsZero())
	require.True(t, f.keeper.Shares().TotalSupply(f.ctx, "bill-1").IsZero())
	require.True(t, f.custody.GetLedger(f.ctx, "bill-1").TotalBalance.IsZero())

	_, err = f.keeper.Withdraw(f.ctx, bob, "bill-1", math.ZeroInt(), bob, bob)
	require.ErrorIs(t, err, types.ErrInsufficientShares)

	phases := make([]types.Phase, 0, len(f.fees.seen))
	for _, tr := range f.fees.seen {
		phases = append(phases, tr.to)
	}
	require.Equal(t, []types.Phase{types.PhasePendingInvestment, types.PhaseInvested, types.PhaseMatured}, phases)
}

func TestInvestedEarlyWithdrawal(t *testing.T) {
	f := setupKeeper(t)
	f.createPool(t, discountedConfig("bill-1"))
	f.deposit(t, "bill-1", alice, 60_000)
	f.deposit(t, "bill-1", bob, 40_000)
	f.invest(t, "bill-1", 100_000)

	f.at(t0 + 6*daySecs)
	_, err := f.keeper.Withdraw(f.ctx, alice, "bill-1", math.NewInt(1_000), alice, alice)
	require.ErrorIs(t, err, types.ErrInsufficientLiquidity, "empty buffer")

	require.NoError(t, f.keeper.ProvideLiquidity(f.ctx, agent, "bill-1", math.NewInt(20_000)))
	require.Equal(t, "20000", f.state("bill-1").LiquidityBuffer.String())

	// cap is min(100000 / 10, 20000) = 10000; 11000 less 5% is 10450
	preview, err := f.keeper.PreviewWithdraw(f.ctx, "bill-1", alice, math.NewInt(11_000))
	require.ErrorIs(t, err, types.ErrInsufficientLiquidity)
	require.Nil(t, preview)

	preview, err = f.keeper.PreviewWithdraw(f.ctx, "bill-1", alice, math.NewInt(10_000))
	require.NoError(t, err)
	require.Equal(t, uint32(500), preview.PenaltyBp)

	aliceBefore := f.balance(alice)
	quote, err := f.keeper.Withdraw(f.ctx, alice, "bill-1", math.NewInt(10_000), alice, alice)
	require.NoError(t, err)
	require.Equal(t, "500", quote.Penalty.String())
	require.Equal(t, "9500", quote.Net.String())
	require.Equal(t, "9500", f.balance(alice).Sub(aliceBefore).String())
	require.Equal(t, "50000", f.shares("bill-1", alice).String())

	state := f.state("bill-1")
	require.Equal(t, "10500", state.LiquidityBuffer.String())
	require.Equal(t, "500", state.TotalPenalties.String())

	// a month in the penalty drops to 2%
	f.at(t0 + 31*daySecs)
	quote, err = f.keeper.Withdraw(f.ctx, bob, "bill-1", math.NewInt(10_000), bob, bob)
	require.NoError(t, err)
	require.Equal(t, "200", quote.Penalty.String())
	require.Equal(t, "700", f.state("bill-1").TotalPenalties.String())
}

func TestEmergencyRefunds(t *testing.T) {
	f := setupKeeper(t)
	f.createPool(t, discountedConfig("bill-1"))
	f.deposit(t, "bill-1", alice, 30_000)
	f.deposit(t, "bill-1", bob, 10_000)

	f.at(t0 + 3*daySecs + 1)
	phase, err := f.keeper.CloseEpoch(f.ctx, operator, "bill-1")
	require.NoError(t, err)
	require.Equal(t, types.PhaseEmergency, phase)

	_, err = f.keeper.Withdraw(f.ctx, alice, "bill-1", math.NewInt(30_001), alice, alice)
	require.ErrorIs(t, err, types.ErrInsufficientShares)

	quote, err := f.keeper.Withdraw(f.ctx, alice, "bill-1", math.NewInt(30_000), alice, alice)
	require.NoError(t, err)
	require.Equal(t, "30000", quote.Shares.String())
	require.Equal(t, "1000000", f.balance(alice).String())

	_, err = f.keeper.Withdraw(f.ctx, bob, "bill-1", math.NewInt(4_000), bob, bob)
	require.NoError(t, err)
	_, err = f.keeper.Redeem(f.ctx, bob, "bill-1", math.NewInt(6_000), bob, bob)
	require.NoError(t, err)
	require.Equal(t, "1000000", f.balance(bob).String())
	require.True(t, f.state("bill-1").TotalRaised.IsZero())

	err = f.keeper.EmergencyExit(f.ctx, guardian, "bill-1")
	require.ErrorIs(t, err, types.ErrWrongPhase)
}

// Early exits while INVESTED burn shares without shrinking the raise, so each
// remaining share is worth more than one unit of refund afterwards.
func TestEmergencyRefundAfterEarlyExit(t *testing.T) {
	f := setupKeeper(t)
	f.createPool(t, discountedConfig("bill-1"))
	f.deposit(t, "bill-1", alice, 10_000)
	f.deposit(t, "bill-1", bob, 40_000)
	f.invest(t, "bill-1", 50_000)

	require.NoError(t, f.keeper.ProvideLiquidity(f.ctx, agent, "bill-1", math.NewInt(5_000)))
	quote, err := f.keeper.Withdraw(f.ctx, bob, "bill-1", math.NewInt(5_000), bob, bob)
	require.NoError(t, err)
	require.Equal(t, "4750", quote.Net.String())

	require.NoError(t, f.keeper.EmergencyExit(f.ctx, guardian, "bill-1"))

	preview, err := f.keeper.PreviewWithdraw(f.ctx, "bill-1", alice, math.NewInt(1))
	require.NoError(t, err)
	require.Equal(t, "11111", preview.MaxAllowed.String())

	// the agent still holds the capital
	_, err = f.keeper.Withdraw(f.ctx, alice, "bill-1", math.NewInt(1_000), alice, alice)
	require.ErrorIs(t, err, types.ErrInsufficientLiquidity)
	require.NotErrorIs(t, err, custodytypes.ErrInsufficientBalance)

	transfer, err := f.custody.ProposeTransfer(f.ctx, signer1, "bill-1", custodytypes.KindFromAgent, agent, math.NewInt(49_750), nil)
	require.NoError(t, err)
	transfer, err = f.custody.ApproveTransfer(f.ctx, signer2, "bill-1", transfer.ID)
	require.NoError(t, err)
	require.True(t, transfer.Executed)

	aliceBefore := f.balance(alice)
	for i := 0; i < 100; i++ {
		quote, err := f.keeper.Withdraw(f.ctx, alice, "bill-1", math.NewInt(1), alice, alice)
		require.NoError(t, err)
		require.Equal(t, "1", quote.Shares.String(), "every refund burns at least one share")
	}
	require.Equal(t, "9900", f.shares("bill-1", alice).String())

	preview, err = f.keeper.PreviewWithdraw(f.ctx, "bill-1", alice, math.NewInt(1))
	require.NoError(t, err)
	_, err = f.keeper.Withdraw(f.ctx, alice, "bill-1", preview.MaxAllowed, alice, alice)
	require.NoError(t, err)
	require.True(t, f.shares("bill-1", alice).IsZero())

	received := f.balance(alice).Sub(aliceBefore)
	require.True(t, received.LTE(math.NewInt(11_111)), "alice received %s", received)

	preview, err = f.keeper.PreviewWithdraw(f.ctx, "bill-1", bob, math.NewInt(1))
	require.NoError(t, err)
	_, err = f.keeper.Withdraw(f.ctx, bob, "bill-1", preview.MaxAllowed, bob, bob)
	require.NoError(t, err)

	require.True(t, f.keeper.Shares().TotalSupply(f.ctx, "bill-1").IsZero())
	require.True(t, f.state("bill-1").TotalRaised.IsZero())
	require.True(t, f.custody.GetLedger(f.ctx, "bill-1").TotalBalance.IsZero())
}

func TestMaturityPaysOutLiquidityBuffer(t *testing.T) {
	f := setupKeeper(t)
	f.createPool(t, discountedConfig("bill-1"))
	f.deposit(t, "bill-1", alice, 60_000)
	f.deposit(t, "bill-1", bob, 40_000)
	f.invest(t, "bill-1", 100_000)
	require.NoError(t, f.keeper.ProvideLiquidity(f.ctx, agent, "bill-1", math.NewInt(20_000)))

	f.at(t0 + 6*daySecs)
	quote, err := f.keeper.Withdraw(f.ctx, alice, "bill-1", math.NewInt(10_000), alice, alice)
	require.NoError(t, err)
	require.Equal(t, "500", quote.Penalty.String())

	f.at(t0 + 180*daySecs)
	require.NoError(t, f.keeper.ProcessMaturity(f.ctx, agent, "bill-1", math.NewInt(121_951)))
	state := f.state("bill-1")
	// 121,951 repaid plus the 10,500 left in the buffer
	require.Equal(t, "132451", state.MaturityPayoutRemaining.String())
	require.True(t, state.LiquidityBuffer.IsZero())

	quote, err = f.keeper.Withdraw(f.ctx, alice, "bill-1", math.ZeroInt(), alice, alice)
	require.NoError(t, err)
	require.Equal(t, "73583", quote.Net.String())

	quote, err = f.keeper.Withdraw(f.ctx, bob, "bill-1", math.ZeroInt(), bob, bob)
	require.NoError(t, err)
	require.Equal(t, "58868", quote.Net.String())

	require.True(t, f.keeper.Shares().TotalSupply(f.ctx, "bill-1").IsZero())
	require.True(t, f.state("bill-1").MaturityPayoutRemaining.IsZero())
	require.True(t, f.custody.GetLedger(f.ctx, "bill-1").TotalBalance.IsZero())
}

func TestMaturityDistributesPendingCoupons(t *testing.T) {
	f := setupKeeper(t)
	f.createPool(t, couponConfig("note-1"))
	f.deposit(t, "note-1", alice, 60_000)
	f.deposit(t, "note-1", bob, 40_000)
	f.invest(t, "note-1", 100_000)

	f.at(t0 + 30*daySecs)
	_, err := f.keeper.ProcessCouponPayment(f.ctx, agent, "note-1", math.NewInt(2_000))
	require.NoError(t, err)

	f.at(t0 + 180*daySecs)
	f.freshEvents()
	require.NoError(t, f.keeper.ProcessMaturity(f.ctx, agent, "note-1", math.NewInt(100_000)))
	require.True(t, hasEvent(f.ctx, types.EventTypeCouponDistributed))
	state := f.state("note-1")
	require.Equal(t, "2000", state.TotalCouponsDistributed.String())
	require.Equal(t, "100000", state.MaturityPayoutRemaining.String())

	quote, err := f.keeper.Withdraw(f.ctx, bob, "note-1", math.ZeroInt(), bob, bob)
	require.NoError(t, err)
	require.Equal(t, "40000", quote.Net.String())
	require.Equal(t, "800", quote.Coupons.String())

	claimed, err := f.keeper.ClaimCoupon(f.ctx, alice, "note-1")
	require.NoError(t, err)
	require.Equal(t, "1200", claimed.String())
	quote, err = f.keeper.Withdraw(f.ctx, alice, "note-1", math.ZeroInt(), alice, alice)
	require.NoError(t, err)
	require.Equal(t, "60000", quote.Net.String())

	require.True(t, f.custody.GetLedger(f.ctx, "note-1").TotalBalance.IsZero())
}

func TestCouponAfterMaturityRejected(t *testing.T) {
	f := setupKeeper(t)
	cfg := couponConfig("note-2")
	cfg.Coupons = append(cfg.Coupons, types.Coupon{Time: cfg.Maturity + 3600, RateBp: 200})
	_, err := f.keeper.CreatePool(f.ctx, admin, CreatePoolRequest{
		Config: cfg, Signers: []string{signer1, signer2, signer3}, RequiredConfirmations: 2,
	})
	require.ErrorIs(t, err, types.ErrInvalidConfig)

	cfg.Coupons[len(cfg.Coupons)-1].Time = cfg.Maturity
	_, err = f.keeper.CreatePool(f.ctx, admin, CreatePoolRequest{
		Config: cfg, Signers: []string{signer1, signer2, signer3}, RequiredConfirmations: 2,
	})
	require.NoError(t, err)
}

func TestEmergencyExit(t *testing.T) {
	f := setupKeeper(t)
	f.createPool(t, discountedConfig("bill-1"))
	f.deposit(t, "bill-1", alice, 80_000)

	err := f.keeper.EmergencyExit(f.ctx, operator, "bill-1")
	require.ErrorIs(t, err, types.ErrUnauthorized)

	f.freshEvents()
	require.NoError(t, f.keeper.EmergencyExit(f.ctx, authority, "bill-1"))
	require.True(t, hasEvent(f.ctx, types.EventTypeEmergencyExit))
	require.True(t, hasEvent(f.ctx, types.EventTypeStatusChanged))
	require.Equal(t, types.PhaseEmergency, f.state("bill-1").Phase)

	_, err = f.keeper.Deposit(f.ctx, bob, "bill-1", math.NewInt(1), bob)
	require.ErrorIs(t, err, types.ErrWrongPhase)

	preview, err := f.keeper.PreviewWithdraw(f.ctx, "bill-1", alice, math.NewInt(80_000))
	require.NoError(t, err)
	require.Equal(t, "80000", preview.MaxAllowed.String())
}

func TestCouponLifecycle(t *testing.T) {
	f := setupKeeper(t)
	f.createPool(t, couponConfig("note-1"))
	f.deposit(t, "note-1", alice, 60_000)
	f.deposit(t, "note-1", bob, 40_000)
	f.invest(t, "note-1", 100_000)

	first := t0 + 30*daySecs

	f.at(first - 2*daySecs)
	_, err := f.keeper.ProcessCouponPayment(f.ctx, agent, "note-1", math.NewInt(2_000))
	require.ErrorIs(t, err, types.ErrInvalidCouponWindow)
	require.True(t, types.Retryable(err))

	f.at(first + 3600)
	date, err := f.keeper.ProcessCouponPayment(f.ctx, agent, "note-1", math.NewInt(2_000))
	require.NoError(t, err)
	require.Equal(t, first, date)

	_, err = f.keeper.ProcessCouponPayment(f.ctx, agent, "note-1", math.NewInt(2_000))
	require.ErrorIs(t, err, types.ErrInvalidCouponWindow, "a coupon date is paid once")

	_, err = f.keeper.ClaimCoupon(f.ctx, alice, "note-1")
	require.ErrorIs(t, err, types.ErrNothingToClaim, "nothing distributed yet")

	_, err = f.keeper.DistributeCouponPayment(f.ctx, agent, "note-1")
	require.ErrorIs(t, err, types.ErrUnauthorized)

	released, err := f.keeper.DistributeCouponPayment(f.ctx, operator, "note-1")
	require.NoError(t, err)
	require.Equal(t, "2000", released.String())

	_, err = f.keeper.DistributeCouponPayment(f.ctx, operator, "note-1")
	require.ErrorIs(t, err, types.ErrNothingToDistribute)

	aliceBefore := f.balance(alice)
	claimed, err := f.keeper.ClaimCoupon(f.ctx, alice, "note-1")
	require.NoError(t, err)
	require.Equal(t, "1200", claimed.String())
	require.Equal(t, "1200", f.balance(alice).Sub(aliceBefore).String())

	_, err = f.keeper.ClaimCoupon(f.ctx, alice, "note-1")
	require.ErrorIs(t, err, types.ErrNothingToClaim)

	state := f.state("note-1")
	require.Equal(t, "2000", state.TotalCouponsReceived.String())
	require.Equal(t, "2000", state.TotalCouponsDistributed.String())
	require.Equal(t, "1200", state.TotalCouponsClaimed.String())

	// bob leaves his coupon unclaimed and collects it with his maturity payout
	f.at(t0 + 180*daySecs)
	require.NoError(t, f.keeper.ProcessMaturity(f.ctx, agent, "note-1", math.NewInt(100_000)))

	bobBefore := f.balance(bob)
	quote, err := f.keeper.Withdraw(f.ctx, bob, "note-1", math.ZeroInt(), bob, bob)
	require.NoError(t, err)
	require.Equal(t, "40000", quote.Net.String())
	require.Equal(t, "800", quote.Coupons.String())
	require.Equal(t, "40800", f.balance(bob).Sub(bobBefore).String())

	quote, err = f.keeper.Withdraw(f.ctx, alice, "note-1", math.ZeroInt(), alice, alice)
	require.NoError(t, err)
	require.Equal(t, "60000", quote.Net.String())
	require.True(t, quote.Coupons.IsZero())
	require.True(t, f.custody.GetLedger(f.ctx, "note-1").TotalBalance.IsZero())
}

func TestCouponRejectedForDiscountedPool(t *testing.T) {
	f := setupKeeper(t)
	f.createPool(t, discountedConfig("bill-1"))
	f.deposit(t, "bill-1", alice, 100_000)
	f.invest(t, "bill-1", 100_000)

	_, err := f.keeper.ProcessCouponPayment(f.ctx, agent, "bill-1", math.NewInt(100))
	require.ErrorIs(t, err, types.ErrInvalidInstrument)
}

func TestSetSlippageTolerance(t *testing.T) {
	f := setupKeeper(t)
	f.createPool(t, discountedConfig("bill-1"))
	f.deposit(t, "bill-1", alice, 100_000)

	require.ErrorIs(t, f.keeper.SetSlippageTolerance(f.ctx, operator, "bill-1", 800), types.ErrUnauthorized)
	require.ErrorIs(t, f.keeper.SetSlippageTolerance(f.ctx, admin, "bill-1", 0), types.ErrInvalidAmount)
	require.ErrorIs(t, f.keeper.SetSlippageTolerance(f.ctx, admin, "bill-1", 1001), types.ErrInvalidAmount)
	require.NoError(t, f.keeper.SetSlippageTolerance(f.ctx, admin, "bill-1", 1000))

	f.at(t0 + 3*daySecs + 1)
	_, err := f.keeper.CloseEpoch(f.ctx, operator, "bill-1")
	require.NoError(t, err)
	require.NoError(t, f.keeper.ProcessInvestment(f.ctx, agent, "bill-1", math.NewInt(90_000), "proof"))
}
