package keeper

import (
	"context"
	"time"

	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/openalpha/termvault/x/termpool/types"
)

// Withdraw pays owner's position out to receiver according to the pool phase
// and returns the executed quote. Shares burned and the amount paid depend on
// the phase: penalty-free in FUNDING, penalised and buffer-bound in INVESTED,
// the whole proportional payout in MATURED and a pro-rata refund in EMERGENCY.
func (k *Keeper) Withdraw(ctx context.Context, sender, poolID string, assets math.Int, receiver, owner string) (*types.WithdrawPreview, error) {
	if sender != owner {
		return nil, errorsmod.Wrapf(types.ErrUnauthorized, "%s cannot withdraw for %s", sender, owner)
	}
	if receiver == "" {
		receiver = owner
	}

	var quote *types.WithdrawPreview
	err := k.atomically(ctx, func(sdkCtx sdk.Context) error {
		cfg, state, err := k.loadPoolFor(sdkCtx, poolID, types.OpWithdraw)
		if err != nil {
			return err
		}
		if quote, err = k.quoteWithdraw(sdkCtx, cfg, state, owner, assets); err != nil {
			return err
		}
		return k.settleWithdraw(sdkCtx, state, owner, receiver, quote)
	})
	if err != nil {
		return nil, err
	}
	return quote, nil
}

// Redeem is Withdraw denominated in shares.
func (k *Keeper) Redeem(ctx context.Context, sender, poolID string, shares math.Int, receiver, owner string) (*types.WithdrawPreview, error) {
	if err := requirePositive(shares); err != nil {
		return nil, err
	}
	assets, err := k.ConvertToAssets(sdk.UnwrapSDKContext(ctx), poolID, owner, shares)
	if err != nil {
		return nil, err
	}
	return k.Withdraw(ctx, sender, poolID, assets, receiver, owner)
}

// ConvertToAssets prices shares of owner in the pool's current phase.
func (k *Keeper) ConvertToAssets(ctx sdk.Context, poolID, owner string, shares math.Int) (math.Int, error) {
	_, state, err := k.loadPool(ctx, poolID)
	if err != nil {
		return math.Int{}, err
	}
	switch state.Phase {
	case types.PhaseEmergency:
		balance := k.shares.BalanceOf(ctx, poolID, owner)
		capped, err := k.emergencyCap(ctx, state, owner)
		if err != nil {
			return math.Int{}, err
		}
		return types.ProportionalShare(shares, balance, capped)
	case types.PhaseMatured:
		// the whole balance is paid out regardless of the amount asked for
		return k.shares.BalanceOf(ctx, poolID, owner), nil
	default:
		return shares, nil
	}
}

// PreviewWithdraw quotes a withdrawal without executing it.
func (k *Keeper) PreviewWithdraw(ctx sdk.Context, poolID, owner string, assets math.Int) (*types.WithdrawPreview, error) {
	cfg, state, err := k.loadPoolFor(ctx, poolID, types.OpWithdraw)
	if err != nil {
		return nil, err
	}
	return k.quoteWithdraw(ctx, cfg, state, owner, assets)
}

func (k *Keeper) quoteWithdraw(ctx sdk.Context, cfg *types.PoolConfig, state *types.PoolState, owner string, assets math.Int) (*types.WithdrawPreview, error) {
	balance := k.shares.BalanceOf(ctx, state.PoolID, owner)
	quote := &types.WithdrawPreview{
		Phase:      state.Phase,
		Assets:     assets,
		Shares:     assets,
		Penalty:    math.ZeroInt(),
		Net:        assets,
		Coupons:    math.ZeroInt(),
		MaxAllowed: balance,
	}

	if state.Phase != types.PhaseMatured {
		if err := requirePositive(assets); err != nil {
			return nil, err
		}
	}

	switch state.Phase {
	case types.PhaseFunding:
		if assets.GT(balance) {
			return nil, errorsmod.Wrapf(types.ErrInsufficientShares, "withdraw %s exceeds balance %s", assets, balance)
		}

	case types.PhaseInvested:
		if assets.GT(balance) {
			return nil, errorsmod.Wrapf(types.ErrInsufficientShares, "withdraw %s exceeds balance %s", assets, balance)
		}
		held := heldFor(ctx, k.GetUserPoolData(ctx, state.PoolID, owner))
		penalty, err := types.EarlyWithdrawalPenalty(assets, held)
		if err != nil {
			return nil, err
		}
		net, err := types.SafeSub(assets, penalty)
		if err != nil {
			return nil, err
		}
		maxAllowed := math.MinInt(state.ActualInvested.QuoRaw(types.LiquidityDivisor), state.LiquidityBuffer)
		quote.PenaltyBp = types.DynamicPenaltyBp(held)
		quote.Penalty = penalty
		quote.Net = net
		quote.MaxAllowed = maxAllowed
		if net.GT(maxAllowed) {
			return nil, errorsmod.Wrapf(types.ErrInsufficientLiquidity, "net %s exceeds available liquidity %s", net, maxAllowed)
		}

	case types.PhaseMatured:
		if !balance.IsPositive() {
			return nil, errorsmod.Wrapf(types.ErrInsufficientShares, "%s holds no shares of %s", owner, state.PoolID)
		}
		supply := k.shares.TotalSupply(ctx, state.PoolID)
		principal, err := types.ProportionalShare(balance, supply, state.MaturityPayoutRemaining)
		if err != nil {
			return nil, err
		}
		coupons, err := k.couponEntitlement(ctx, state, owner, balance, supply)
		if err != nil {
			return nil, err
		}
		quote.Assets = principal
		quote.Shares = balance
		quote.Net = principal
		quote.Coupons = coupons

	case types.PhaseEmergency:
		capped, err := k.emergencyCap(ctx, state, owner)
		if err != nil {
			return nil, err
		}
		if assets.GT(capped) {
			return nil, errorsmod.Wrapf(types.ErrInsufficientShares, "refund %s exceeds entitlement %s", assets, capped)
		}
		shares, err := types.ProportionalShareCeil(assets, capped, balance)
		if err != nil {
			return nil, err
		}
		if !shares.IsPositive() {
			return nil, errorsmod.Wrapf(types.ErrInvalidAmount, "refund %s burns no shares", assets)
		}
		quote.Shares = shares
		quote.MaxAllowed = capped

	default:
		return nil, errorsmod.Wrapf(types.ErrWrongPhase, "withdraw not allowed in %s", state.Phase)
	}

	paid := quote.Net.Add(quote.Coupons)
	available, err := k.custodyKeeper.AvailableBalance(ctx, state.PoolID)
	if err != nil {
		return nil, err
	}
	if paid.GT(available) {
		return nil, errorsmod.Wrapf(types.ErrInsufficientLiquidity, "payout %s exceeds custody balance %s", paid, available)
	}
	return quote, nil
}

// emergencyCap is owner's pro-rata claim on the refundable raise.
func (k *Keeper) emergencyCap(ctx sdk.Context, state *types.PoolState, owner string) (math.Int, error) {
	balance := k.shares.BalanceOf(ctx, state.PoolID, owner)
	supply := k.shares.TotalSupply(ctx, state.PoolID)
	return types.ProportionalShare(balance, supply, state.TotalRaised)
}

func (k *Keeper) settleWithdraw(ctx sdk.Context, state *types.PoolState, owner, receiver string, quote *types.WithdrawPreview) error {
	var err error
	holder := k.GetUserPoolData(ctx, state.PoolID, owner)

	switch quote.Phase {
	case types.PhaseFunding, types.PhaseEmergency:
		if state.TotalRaised, err = types.SafeSub(state.TotalRaised, quote.Assets); err != nil {
			return err
		}
	case types.PhaseInvested:
		if state.LiquidityBuffer, err = types.SafeSub(state.LiquidityBuffer, quote.Net); err != nil {
			return err
		}
		if state.TotalPenalties, err = types.SafeAdd(state.TotalPenalties, quote.Penalty); err != nil {
			return err
		}
	case types.PhaseMatured:
		if state.MaturityPayoutRemaining, err = types.SafeSub(state.MaturityPayoutRemaining, quote.Net); err != nil {
			return err
		}
		if quote.Coupons.IsPositive() {
			if state.TotalCouponsClaimed, err = types.SafeAdd(state.TotalCouponsClaimed, quote.Coupons); err != nil {
				return err
			}
			holder.CouponClaimed = holder.CouponClaimed.Add(quote.Coupons)
		}
	}
	k.SetPoolState(ctx, state)

	if quote.Shares.IsPositive() {
		if err := k.shares.Burn(ctx, state.PoolID, owner, quote.Shares); err != nil {
			return err
		}
	}
	if k.shares.BalanceOf(ctx, state.PoolID, owner).IsZero() {
		holder.DepositTime = 0
	}
	k.SetUserPoolData(ctx, holder)

	paid := quote.Net.Add(quote.Coupons)
	if paid.IsPositive() {
		if err := k.custodyKeeper.ReleaseFunds(ctx, k.moduleAddress, state.PoolID, receiver, paid); err != nil {
			return err
		}
	}

	ctx.EventManager().EmitEvent(
		sdk.NewEvent(
			types.EventTypeWithdraw,
			sdk.NewAttribute(types.AttributeKeyPoolID, state.PoolID),
			sdk.NewAttribute(types.AttributeKeyOwner, owner),
			sdk.NewAttribute(types.AttributeKeyReceiver, receiver),
			sdk.NewAttribute(types.AttributeKeyAssets, paid.String()),
			sdk.NewAttribute(types.AttributeKeyShares, quote.Shares.String()),
			sdk.NewAttribute(types.AttributeKeyPenalty, quote.Penalty.String()),
		),
	)

	k.logger.Info("Withdraw",
		"pool_id", state.PoolID,
		"phase", quote.Phase,
		"owner", owner,
		"shares", quote.Shares.String(),
		"paid", paid.String(),
		"penalty", quote.Penalty.String(),
	)
	return nil
}

// heldFor is how long holder has been in the pool. Holders without a recorded
// deposit are treated as having just entered.
func heldFor(ctx sdk.Context, holder *types.UserPoolData) time.Duration {
	if !holder.HasDeposited() {
		return 0
	}
	return time.Duration(ctx.BlockTime().Unix()-holder.DepositTime) * time.Second
}
