package api

import (
	"context"
	"fmt"
	"sync"
	"time"

	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/log"
	"cosmossdk.io/math"
	"cosmossdk.io/store"
	storemetrics "cosmossdk.io/store/metrics"
	storetypes "cosmossdk.io/store/types"
	cmtproto "github.com/cometbft/cometbft/proto/tendermint/types"
	dbm "github.com/cosmos/cosmos-db"
	"github.com/cosmos/cosmos-sdk/codec"
	codectypes "github.com/cosmos/cosmos-sdk/codec/types"
	sdk "github.com/cosmos/cosmos-sdk/types"
	sdkerrors "github.com/cosmos/cosmos-sdk/types/errors"
	"github.com/samber/lo"

	"github.com/openalpha/termvault/api/types"
	"github.com/openalpha/termvault/metrics"
	"github.com/openalpha/termvault/pkg/membank"
	custodykeeper "github.com/openalpha/termvault/x/custody/keeper"
	custodytypes "github.com/openalpha/termvault/x/custody/types"
	termpoolkeeper "github.com/openalpha/termvault/x/termpool/keeper"
	termpooltypes "github.com/openalpha/termvault/x/termpool/types"
)

// ChainConfig seeds the standalone state machine
type ChainConfig struct {
	Authority string
	Params    termpooltypes.Params
}

// ServiceOption customizes a KeeperService
type ServiceOption func(*KeeperService)

// WithClock sets the source of block times
func WithClock(clock func() time.Time) ServiceOption {
	return func(s *KeeperService) { s.clock = clock }
}

// WithEventSink adds a receiver of executed events
func WithEventSink(sink types.EventSink) ServiceOption {
	return func(s *KeeperService) { s.sinks = append(s.sinks, sink) }
}

// WithMetrics records events and pool gauges on c
func WithMetrics(c *metrics.Collector) ServiceOption {
	return func(s *KeeperService) { s.metrics = c }
}

// KeeperService implements PoolService, CustodyService and AccountService
// on real termpool and custody keepers backed by an in-memory store and bank.
// Every mutating call is executed as its own block: the height advances, the
// block time is taken from the clock and the termpool EndBlocker runs.
type KeeperService struct {
	termpool    *termpoolkeeper.Keeper
	custody     *custodykeeper.Keeper
	poolMsgs    *termpoolkeeper.MsgServer
	custodyMsgs *custodykeeper.MsgServer
	queries     *termpoolkeeper.QueryServer
	bank        *membank.Bank
	calendar    *MaturityCalendar
	metrics     *metrics.Collector
	sinks       []types.EventSink
	clock       func() time.Time
	logger      log.Logger

	ctx sdk.Context
	mu  sync.Mutex
}

var (
	_ types.PoolService    = (*KeeperService)(nil)
	_ types.CustodyService = (*KeeperService)(nil)
	_ types.AccountService = (*KeeperService)(nil)
)

// NewKeeperService creates a KeeperService with empty state
func NewKeeperService(cfg ChainConfig, logger log.Logger, opts ...ServiceOption) (*KeeperService, error) {
	if err := cfg.Params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid termpool params: %w", err)
	}
	if _, err := sdk.AccAddressFromBech32(cfg.Authority); err != nil {
		return nil, fmt.Errorf("invalid authority %q: %w", cfg.Authority, err)
	}

	cdc := codec.NewProtoCodec(codectypes.NewInterfaceRegistry())

	poolKey := storetypes.NewKVStoreKey(termpooltypes.StoreKey)
	custodyKey := storetypes.NewKVStoreKey(custodytypes.StoreKey)
	db := dbm.NewMemDB()
	stateStore := store.NewCommitMultiStore(db, log.NewNopLogger(), storemetrics.NewNoOpMetrics())
	stateStore.MountStoreWithDB(poolKey, storetypes.StoreTypeIAVL, db)
	stateStore.MountStoreWithDB(custodyKey, storetypes.StoreTypeIAVL, db)
	if err := stateStore.LoadLatestVersion(); err != nil {
		return nil, fmt.Errorf("failed to load store: %w", err)
	}

	bank := membank.New()
	ck := custodykeeper.NewKeeper(cdc, custodyKey, bank, cfg.Authority, logger)
	k := termpoolkeeper.NewKeeper(cdc, poolKey, bank, ck, cfg.Authority, logger)
	ck.SetPhaseReader(k)

	s := &KeeperService{
		termpool:    k,
		custody:     ck,
		poolMsgs:    termpoolkeeper.NewMsgServerImpl(k),
		custodyMsgs: custodykeeper.NewMsgServerImpl(ck),
		queries:     termpoolkeeper.NewQueryServerImpl(k),
		bank:        bank,
		calendar:    NewMaturityCalendar(),
		clock:       time.Now,
		logger:      logger.With("module", "api"),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.ctx = sdk.NewContext(stateStore, cmtproto.Header{
		Time:   s.clock(),
		Height: 1,
	}, false, logger)
	k.SetParams(s.ctx, cfg.Params)

	return s, nil
}

// ============================================================================
// Block handling
// ============================================================================

// nextBlock advances height and time. Block time never moves backwards.
func (s *KeeperService) nextBlock() sdk.Context {
	header := s.ctx.BlockHeader()
	now := s.clock()
	if now.Before(header.Time) {
		now = header.Time
	}
	s.ctx = s.ctx.
		WithBlockHeight(header.Height + 1).
		WithBlockTime(now).
		WithEventManager(sdk.NewEventManager())
	return s.ctx
}

// exec runs fn as one block. Events are published even when fn fails since
// rejected operations may still emit (slippage protection).
func (s *KeeperService) exec(ctx context.Context, fn func(sdk.Context) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	timer := metrics.NewTimer()
	sdkCtx := s.nextBlock()
	err := fn(sdkCtx)
	if endErr := s.termpool.EndBlocker(sdkCtx); endErr != nil {
		s.logger.Error("EndBlocker failed", "height", sdkCtx.BlockHeight(), "error", endErr)
	}

	pools := s.termpool.GetAllPools(sdkCtx)
	for _, pool := range pools {
		s.calendar.Track(pool)
	}
	if s.metrics != nil {
		s.metrics.RecordEvents(sdkCtx.EventManager().Events())
		s.metrics.RecordPools(pools, sdkCtx.BlockTime().Unix())
		s.metrics.RecordEndBlock(sdkCtx.BlockHeight(), timer.ElapsedMs())
	}

	events := convertEvents(sdkCtx)
	for _, sink := range s.sinks {
		sink.PublishEvents(ctx, events)
	}
	return err
}

// query runs fn against the latest state at the current clock time
func (s *KeeperService) query(fn func(sdk.Context) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	if now.Before(s.ctx.BlockTime()) {
		now = s.ctx.BlockTime()
	}
	return fn(s.ctx.WithBlockTime(now).WithEventManager(sdk.NewEventManager()))
}

func convertEvents(ctx sdk.Context) []types.Event {
	raw := ctx.EventManager().Events()
	out := make([]types.Event, 0, len(raw))
	for _, ev := range raw {
		attrs := make(map[string]string, len(ev.Attributes))
		for _, attr := range ev.Attributes {
			attrs[attr.Key] = attr.Value
		}
		out = append(out, types.Event{
			Type:       ev.Type,
			PoolID:     attrs[termpooltypes.AttributeKeyPoolID],
			LedgerID:   attrs[custodytypes.AttributeKeyLedgerID],
			Height:     ctx.BlockHeight(),
			Time:       ctx.BlockTime().Unix(),
			Attributes: attrs,
		})
	}
	return out
}

// Height returns the last executed block height
func (s *KeeperService) Height() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx.BlockHeight()
}

// ============================================================================
// PoolService Implementation
// ============================================================================

func (s *KeeperService) poolView(ctx sdk.Context, pool *termpooltypes.Pool) *types.PoolView {
	view := &types.PoolView{
		Config:        pool.Config,
		State:         pool.State,
		TotalShares:   s.termpool.Shares().TotalSupply(ctx, pool.Config.PoolID).String(),
		DiscountRate:  bpPercent(pool.Config.DiscountRateBp),
		SlippageRate:  bpPercent(pool.Config.SlippageToleranceBp),
		ExpectedYield: expectedYieldPercent(&pool.Config),
	}
	if value, err := termpooltypes.PoolValue(&pool.Config, &pool.State, ctx.BlockTime().Unix()); err == nil {
		view.Value = value.String()
	}
	return view
}

func (s *KeeperService) CreatePool(ctx context.Context, req *types.CreatePoolRequest) (*types.PoolView, error) {
	var view *types.PoolView
	err := s.exec(ctx, func(sdkCtx sdk.Context) error {
		resp, err := s.poolMsgs.CreatePool(sdkCtx, &termpooltypes.MsgCreatePool{
			Creator:               req.Creator,
			Config:                req.Config,
			Signers:               req.Signers,
			RequiredConfirmations: req.RequiredConfirmations,
			LedgerAdmin:           req.LedgerAdmin,
		})
		if err != nil {
			return err
		}
		view = s.poolView(sdkCtx, s.termpool.GetPool(sdkCtx, resp.PoolID))
		return nil
	})
	return view, err
}

func (s *KeeperService) GetPool(_ context.Context, poolID string) (*types.PoolView, error) {
	var view *types.PoolView
	err := s.query(func(sdkCtx sdk.Context) error {
		pool, err := s.queries.Pool(sdkCtx, poolID)
		if err != nil {
			return err
		}
		view = s.poolView(sdkCtx, pool)
		return nil
	})
	return view, err
}

func (s *KeeperService) ListPools(_ context.Context, offset, limit uint64) ([]*types.PoolView, uint64, error) {
	var (
		views []*types.PoolView
		total uint64
	)
	err := s.query(func(sdkCtx sdk.Context) error {
		pools, n, err := s.queries.Pools(sdkCtx, offset, limit)
		if err != nil {
			return err
		}
		total = n
		views = lo.Map(pools, func(p *termpooltypes.Pool, _ int) *types.PoolView { return s.poolView(sdkCtx, p) })
		return nil
	})
	return views, total, err
}

func (s *KeeperService) GetPosition(_ context.Context, poolID, holder string) (*types.PositionView, error) {
	var view *types.PositionView
	err := s.query(func(sdkCtx sdk.Context) error {
		pos, err := s.queries.Position(sdkCtx, poolID, holder)
		if err != nil {
			return err
		}
		view = &types.PositionView{Position: *pos, PenaltyRate: bpPercent(pos.CurrentPenaltyBp)}
		return nil
	})
	return view, err
}

func (s *KeeperService) GetValue(_ context.Context, poolID string) (*termpoolkeeper.PoolValuation, error) {
	var valuation *termpoolkeeper.PoolValuation
	err := s.query(func(sdkCtx sdk.Context) error {
		var err error
		valuation, err = s.queries.Value(sdkCtx, poolID)
		return err
	})
	return valuation, err
}

func (s *KeeperService) GetValueHistory(_ context.Context, poolID string) ([]*termpooltypes.ValueSnapshot, error) {
	var history []*termpooltypes.ValueSnapshot
	err := s.query(func(sdkCtx sdk.Context) error {
		var err error
		history, err = s.queries.ValueHistory(sdkCtx, poolID)
		return err
	})
	return history, err
}

func (s *KeeperService) PreviewWithdraw(_ context.Context, poolID, owner, assets string) (*types.WithdrawQuote, error) {
	amount, ok := math.NewIntFromString(assets)
	if !ok {
		return nil, errorsmod.Wrapf(termpooltypes.ErrInvalidAmount, "%q", assets)
	}
	var quote *types.WithdrawQuote
	err := s.query(func(sdkCtx sdk.Context) error {
		preview, err := s.queries.PreviewWithdraw(sdkCtx, poolID, owner, amount)
		if err != nil {
			return err
		}
		quote = &types.WithdrawQuote{WithdrawPreview: *preview, PenaltyRate: bpPercent(preview.PenaltyBp)}
		return nil
	})
	return quote, err
}

func orSelf(addr, self string) string {
	if addr == "" {
		return self
	}
	return addr
}

func (s *KeeperService) Deposit(ctx context.Context, poolID string, req *types.AmountRequest) (*termpooltypes.MsgDepositResponse, error) {
	var resp *termpooltypes.MsgDepositResponse
	err := s.exec(ctx, func(sdkCtx sdk.Context) error {
		var err error
		resp, err = s.poolMsgs.Deposit(sdkCtx, &termpooltypes.MsgDeposit{
			Sender:   req.Caller,
			PoolID:   poolID,
			Amount:   req.Amount,
			Receiver: orSelf(req.Receiver, req.Caller),
		})
		return err
	})
	return resp, err
}

func (s *KeeperService) Withdraw(ctx context.Context, poolID string, req *types.AmountRequest) (*termpooltypes.MsgWithdrawResponse, error) {
	var resp *termpooltypes.MsgWithdrawResponse
	err := s.exec(ctx, func(sdkCtx sdk.Context) error {
		var err error
		resp, err = s.poolMsgs.Withdraw(sdkCtx, &termpooltypes.MsgWithdraw{
			Sender:   req.Caller,
			PoolID:   poolID,
			Assets:   req.Amount,
			Receiver: orSelf(req.Receiver, req.Caller),
			Owner:    orSelf(req.Owner, req.Caller),
		})
		return err
	})
	return resp, err
}

func (s *KeeperService) Redeem(ctx context.Context, poolID string, req *types.AmountRequest) (*termpooltypes.MsgWithdrawResponse, error) {
	var resp *termpooltypes.MsgWithdrawResponse
	err := s.exec(ctx, func(sdkCtx sdk.Context) error {
		var err error
		resp, err = s.poolMsgs.Redeem(sdkCtx, &termpooltypes.MsgRedeem{
			Sender:   req.Caller,
			PoolID:   poolID,
			Shares:   req.Amount,
			Receiver: orSelf(req.Receiver, req.Caller),
			Owner:    orSelf(req.Owner, req.Caller),
		})
		return err
	})
	return resp, err
}

func (s *KeeperService) ClaimCoupon(ctx context.Context, poolID, holder string) (*termpooltypes.MsgClaimCouponResponse, error) {
	var resp *termpooltypes.MsgClaimCouponResponse
	err := s.exec(ctx, func(sdkCtx sdk.Context) error {
		var err error
		resp, err = s.poolMsgs.ClaimCoupon(sdkCtx, &termpooltypes.MsgClaimCoupon{Holder: holder, PoolID: poolID})
		return err
	})
	return resp, err
}

func (s *KeeperService) PoolAction(ctx context.Context, poolID, action string, req *types.ActionRequest) (*termpooltypes.MsgPoolActionResponse, error) {
	var run func(sdk.Context) (*termpooltypes.MsgPoolActionResponse, error)
	switch action {
	case types.ActionCloseEpoch:
		run = func(c sdk.Context) (*termpooltypes.MsgPoolActionResponse, error) {
			return s.poolMsgs.CloseEpoch(c, &termpooltypes.MsgCloseEpoch{Caller: req.Caller, PoolID: poolID, Force: req.Force})
		}
	case types.ActionProcessInvestment:
		run = func(c sdk.Context) (*termpooltypes.MsgPoolActionResponse, error) {
			return s.poolMsgs.ProcessInvestment(c, &termpooltypes.MsgProcessInvestment{
				Caller: req.Caller, PoolID: poolID, ActualAmount: req.Amount, ProofReference: req.ProofReference,
			})
		}
	case types.ActionWithdrawForInvestment:
		run = func(c sdk.Context) (*termpooltypes.MsgPoolActionResponse, error) {
			return s.poolMsgs.WithdrawForInvestment(c, &termpooltypes.MsgWithdrawForInvestment{Caller: req.Caller, PoolID: poolID, Amount: req.Amount})
		}
	case types.ActionProcessCoupon:
		run = func(c sdk.Context) (*termpooltypes.MsgPoolActionResponse, error) {
			return s.poolMsgs.ProcessCouponPayment(c, &termpooltypes.MsgProcessCouponPayment{Caller: req.Caller, PoolID: poolID, Amount: req.Amount})
		}
	case types.ActionDistributeCoupons:
		run = func(c sdk.Context) (*termpooltypes.MsgPoolActionResponse, error) {
			return s.poolMsgs.DistributeCouponPayment(c, &termpooltypes.MsgDistributeCouponPayment{Caller: req.Caller, PoolID: poolID})
		}
	case types.ActionProcessMaturity:
		run = func(c sdk.Context) (*termpooltypes.MsgPoolActionResponse, error) {
			return s.poolMsgs.ProcessMaturity(c, &termpooltypes.MsgProcessMaturity{Caller: req.Caller, PoolID: poolID, FinalAmount: req.Amount})
		}
	case types.ActionEmergencyExit:
		run = func(c sdk.Context) (*termpooltypes.MsgPoolActionResponse, error) {
			return s.poolMsgs.EmergencyExit(c, &termpooltypes.MsgEmergencyExit{Caller: req.Caller, PoolID: poolID})
		}
	case types.ActionSetSlippage:
		run = func(c sdk.Context) (*termpooltypes.MsgPoolActionResponse, error) {
			return s.poolMsgs.SetSlippageTolerance(c, &termpooltypes.MsgSetSlippageTolerance{Caller: req.Caller, PoolID: poolID, ToleranceBp: req.ToleranceBp})
		}
	case types.ActionProvideLiquidity:
		run = func(c sdk.Context) (*termpooltypes.MsgPoolActionResponse, error) {
			return s.poolMsgs.ProvideLiquidity(c, &termpooltypes.MsgProvideLiquidity{Caller: req.Caller, PoolID: poolID, Amount: req.Amount})
		}
	default:
		return nil, ErrUnknownAction
	}

	var resp *termpooltypes.MsgPoolActionResponse
	err := s.exec(ctx, func(sdkCtx sdk.Context) error {
		var err error
		resp, err = run(sdkCtx)
		return err
	})
	return resp, err
}

func (s *KeeperService) Calendar(_ context.Context, from time.Time, limit int) []types.CalendarEntry {
	return s.calendar.Upcoming(from.Unix(), limit)
}

// ============================================================================
// CustodyService Implementation
// ============================================================================

func (s *KeeperService) GetLedger(_ context.Context, ledgerID string) (*custodytypes.Ledger, error) {
	var ledger *custodytypes.Ledger
	err := s.query(func(sdkCtx sdk.Context) error {
		ledger = s.custody.GetLedger(sdkCtx, ledgerID)
		if ledger == nil {
			return errorsmod.Wrapf(custodytypes.ErrLedgerNotFound, "ledger %s", ledgerID)
		}
		return nil
	})
	return ledger, err
}

func (s *KeeperService) ListTransfers(_ context.Context, ledgerID string, pendingOnly bool) ([]*types.TransferView, error) {
	var views []*types.TransferView
	err := s.query(func(sdkCtx sdk.Context) error {
		if s.custody.GetLedger(sdkCtx, ledgerID) == nil {
			return errorsmod.Wrapf(custodytypes.ErrLedgerNotFound, "ledger %s", ledgerID)
		}
		transfers := s.custody.GetTransfers(sdkCtx, ledgerID)
		if pendingOnly {
			transfers = lo.Filter(transfers, func(t *custodytypes.Transfer, _ int) bool { return t.Pending() })
		}
		views = lo.Map(transfers, func(t *custodytypes.Transfer, _ int) *types.TransferView {
			return &types.TransferView{Transfer: *t, Approvers: s.custody.GetApprovers(sdkCtx, ledgerID, t.ID)}
		})
		return nil
	})
	return views, err
}

func (s *KeeperService) ProposeTransfer(ctx context.Context, msg *custodytypes.MsgProposeTransfer) (*custodytypes.MsgProposeTransferResponse, error) {
	var resp *custodytypes.MsgProposeTransferResponse
	err := s.exec(ctx, func(sdkCtx sdk.Context) error {
		var err error
		resp, err = s.custodyMsgs.ProposeTransfer(sdkCtx, msg)
		return err
	})
	return resp, err
}

func (s *KeeperService) ApproveTransfer(ctx context.Context, msg *custodytypes.MsgApproveTransfer) (*custodytypes.MsgApproveTransferResponse, error) {
	var resp *custodytypes.MsgApproveTransferResponse
	err := s.exec(ctx, func(sdkCtx sdk.Context) error {
		var err error
		resp, err = s.custodyMsgs.ApproveTransfer(sdkCtx, msg)
		return err
	})
	return resp, err
}

func (s *KeeperService) ExecuteTransfer(ctx context.Context, msg *custodytypes.MsgExecuteTransfer) (*custodytypes.MsgApproveTransferResponse, error) {
	var resp *custodytypes.MsgApproveTransferResponse
	err := s.exec(ctx, func(sdkCtx sdk.Context) error {
		var err error
		resp, err = s.custodyMsgs.ExecuteTransfer(sdkCtx, msg)
		return err
	})
	return resp, err
}

func (s *KeeperService) RevokeTransfer(ctx context.Context, msg *custodytypes.MsgRevokeTransfer) error {
	return s.exec(ctx, func(sdkCtx sdk.Context) error {
		return s.custodyMsgs.RevokeTransfer(sdkCtx, msg)
	})
}

func (s *KeeperService) UpdateSigners(ctx context.Context, msg *custodytypes.MsgUpdateSigners) (*custodytypes.MsgUpdateSignersResponse, error) {
	var resp *custodytypes.MsgUpdateSignersResponse
	err := s.exec(ctx, func(sdkCtx sdk.Context) error {
		var err error
		resp, err = s.custodyMsgs.UpdateSigners(sdkCtx, msg)
		return err
	})
	return resp, err
}

// ============================================================================
// AccountService Implementation
// ============================================================================

func (s *KeeperService) Balance(_ context.Context, addr, denom string) (string, error) {
	acc, err := sdk.AccAddressFromBech32(addr)
	if err != nil {
		return "", errorsmod.Wrapf(sdkerrors.ErrInvalidAddress, "%q: %s", addr, err)
	}
	return s.bank.Balance(acc, denom).String(), nil
}

// Fund credits test funds; only meaningful for the standalone bank
func (s *KeeperService) Fund(_ context.Context, addr, denom, amount string) error {
	acc, err := sdk.AccAddressFromBech32(addr)
	if err != nil {
		return errorsmod.Wrapf(sdkerrors.ErrInvalidAddress, "%q: %s", addr, err)
	}
	amt, ok := math.NewIntFromString(amount)
	if !ok || !amt.IsPositive() {
		return errorsmod.Wrapf(termpooltypes.ErrInvalidAmount, "%q", amount)
	}
	coin := sdk.Coin{Denom: denom, Amount: amt}
	if err := coin.Validate(); err != nil {
		return errorsmod.Wrapf(termpooltypes.ErrInvalidAmount, "%s", err)
	}
	s.bank.Fund(acc, sdk.NewCoins(coin))
	s.logger.Info("Account funded", "address", addr, "amount", coin.String())
	return nil
}
