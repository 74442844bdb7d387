package keeper

import (
	"context"

	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/openalpha/termvault/x/termpool/types"
)

// QueryServer defines the termpool QueryServer
type QueryServer struct {
	keeper *Keeper
}

// NewQueryServerImpl creates a new QueryServer instance
func NewQueryServerImpl(keeper *Keeper) *QueryServer {
	return &QueryServer{keeper: keeper}
}

// Position is a holder's stake in a pool
type Position struct {
	PoolID           string   `json:"pool_id"`
	Holder           string   `json:"holder"`
	Shares           math.Int `json:"shares"`
	DepositTime      int64    `json:"deposit_time"`
	CouponClaimed    math.Int `json:"coupon_claimed"`
	CouponClaimable  math.Int `json:"coupon_claimable"`
	CurrentPenaltyBp uint32   `json:"current_penalty_bp"`
	TotalShareSupply math.Int `json:"total_share_supply"`
}

// PoolValuation is the current value of a pool and its scheduled coupons
type PoolValuation struct {
	PoolID          string      `json:"pool_id"`
	Phase           types.Phase `json:"phase"`
	Value           math.Int    `json:"value"`
	ExpectedCoupons math.Int    `json:"expected_coupons"`
	Timestamp       int64       `json:"timestamp"`
}

// Pool returns a pool by ID
func (q *QueryServer) Pool(ctx context.Context, poolID string) (*types.Pool, error) {
	pool := q.keeper.GetPool(sdk.UnwrapSDKContext(ctx), poolID)
	if pool == nil {
		return nil, errorsmod.Wrapf(types.ErrPoolNotFound, "pool %s", poolID)
	}
	return pool, nil
}

// Pools returns all pools
func (q *QueryServer) Pools(ctx context.Context, offset, limit uint64) ([]*types.Pool, uint64, error) {
	allPools := q.keeper.GetAllPools(sdk.UnwrapSDKContext(ctx))
	total := uint64(len(allPools))

	if offset >= total {
		return []*types.Pool{}, total, nil
	}
	end := offset + limit
	if end > total || limit == 0 {
		end = total
	}
	return allPools[offset:end], total, nil
}

// Position returns holder's shares, coupon entitlement and current exit penalty
func (q *QueryServer) Position(ctx context.Context, poolID, holder string) (*Position, error) {
	sdkCtx := sdk.UnwrapSDKContext(ctx)
	_, state, err := q.keeper.loadPool(sdkCtx, poolID)
	if err != nil {
		return nil, err
	}
	data := q.keeper.GetUserPoolData(sdkCtx, poolID, holder)
	balance := q.keeper.shares.BalanceOf(sdkCtx, poolID, holder)
	supply := q.keeper.shares.TotalSupply(sdkCtx, poolID)
	claimable, err := q.keeper.couponEntitlement(sdkCtx, state, holder, balance, supply)
	if err != nil {
		return nil, err
	}

	pos := &Position{
		PoolID:           poolID,
		Holder:           holder,
		Shares:           balance,
		DepositTime:      data.DepositTime,
		CouponClaimed:    data.CouponClaimed,
		CouponClaimable:  claimable,
		TotalShareSupply: supply,
	}
	if data.HasDeposited() {
		pos.CurrentPenaltyBp = types.DynamicPenaltyBp(heldFor(sdkCtx, data))
	}
	return pos, nil
}

// Value returns the pool value at the current block time
func (q *QueryServer) Value(ctx context.Context, poolID string) (*PoolValuation, error) {
	sdkCtx := sdk.UnwrapSDKContext(ctx)
	cfg, state, err := q.keeper.loadPool(sdkCtx, poolID)
	if err != nil {
		return nil, err
	}
	now := sdkCtx.BlockTime().Unix()
	value, err := types.PoolValue(cfg, state, now)
	if err != nil {
		return nil, err
	}
	principal := state.ActualInvested
	if !principal.IsPositive() {
		principal = state.TotalRaised
	}
	coupons, err := types.ExpectedCoupons(principal, cfg.CouponRates())
	if err != nil {
		return nil, err
	}
	return &PoolValuation{
		PoolID:          poolID,
		Phase:           state.Phase,
		Value:           value,
		ExpectedCoupons: coupons,
		Timestamp:       now,
	}, nil
}

// ValueHistory returns recorded value snapshots
func (q *QueryServer) ValueHistory(ctx context.Context, poolID string) ([]*types.ValueSnapshot, error) {
	sdkCtx := sdk.UnwrapSDKContext(ctx)
	if !q.keeper.IsRegisteredPool(sdkCtx, poolID) {
		return nil, errorsmod.Wrapf(types.ErrPoolNotFound, "pool %s", poolID)
	}
	return q.keeper.GetValueHistory(sdkCtx, poolID), nil
}

// PreviewWithdraw quotes a withdrawal of assets by owner
func (q *QueryServer) PreviewWithdraw(ctx context.Context, poolID, owner string, assets math.Int) (*types.WithdrawPreview, error) {
	return q.keeper.PreviewWithdraw(sdk.UnwrapSDKContext(ctx), poolID, owner, assets)
}

// Metadata returns the directory view of a pool
func (q *QueryServer) Metadata(ctx context.Context, poolID string) (*PoolMetadata, error) {
	return q.keeper.GetPoolMetadata(sdk.UnwrapSDKContext(ctx), poolID)
}

// Params returns the module params
func (q *QueryServer) Params(ctx context.Context) types.Params {
	return q.keeper.GetParams(sdk.UnwrapSDKContext(ctx))
}
