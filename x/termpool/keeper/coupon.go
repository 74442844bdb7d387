package keeper

import (
	"context"
	"sort"
	"strconv"

	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	custodytypes "github.com/openalpha/termvault/x/custody/types"
	"github.com/openalpha/termvault/x/termpool/types"
)

// ProcessCouponPayment receives a coupon from the caller. The payment must
// land within CouponWindow of a scheduled date that has not been paid yet.
func (k *Keeper) ProcessCouponPayment(ctx context.Context, caller, poolID string, amount math.Int) (int64, error) {
	var date int64
	err := k.atomically(ctx, func(sdkCtx sdk.Context) error {
		if err := k.requireRole(sdkCtx, caller, types.CouponPaymentRoles...); err != nil {
			return err
		}
		cfg, state, err := k.loadPoolFor(sdkCtx, poolID, types.OpProcessCouponPayment)
		if err != nil {
			return err
		}
		if cfg.Instrument != types.InstrumentInterestBearing {
			return errorsmod.Wrapf(types.ErrInvalidInstrument, "pool %s pays no coupons", poolID)
		}
		if err := requirePositive(amount); err != nil {
			return err
		}

		now := sdkCtx.BlockTime().Unix()
		coupon, ok := mustSchedule(cfg).Within(now, types.CouponWindow, state.CouponPaid)
		if !ok {
			return errorsmod.Wrapf(types.ErrInvalidCouponWindow, "no unpaid coupon of pool %s within %s of %d",
				poolID, types.CouponWindow, now)
		}
		date = coupon.Time

		if state.TotalCouponsReceived, err = types.SafeAdd(state.TotalCouponsReceived, amount); err != nil {
			return err
		}
		state.PaidCouponDates = append(state.PaidCouponDates, date)
		sort.Slice(state.PaidCouponDates, func(i, j int) bool { return state.PaidCouponDates[i] < state.PaidCouponDates[j] })
		k.SetPoolState(sdkCtx, state)

		if err := k.custodyKeeper.RecordInflow(sdkCtx, k.moduleAddress, poolID, custodytypes.KindCoupon, caller, amount); err != nil {
			return err
		}
		if err := k.pullFunds(sdkCtx, cfg, caller, amount); err != nil {
			return err
		}

		sdkCtx.EventManager().EmitEvent(
			sdk.NewEvent(
				types.EventTypeCouponReceived,
				sdk.NewAttribute(types.AttributeKeyPoolID, poolID),
				sdk.NewAttribute(types.AttributeKeyAmount, amount.String()),
				sdk.NewAttribute(types.AttributeKeyCouponDate, strconv.FormatInt(date, 10)),
			),
		)

		k.logger.Info("Coupon received",
			"pool_id", poolID,
			"amount", amount.String(),
			"coupon_date", date,
			"total_received", state.TotalCouponsReceived.String(),
		)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return date, nil
}

// DistributeCouponPayment makes every received coupon claimable.
func (k *Keeper) DistributeCouponPayment(ctx context.Context, caller, poolID string) (math.Int, error) {
	var released math.Int
	err := k.atomically(ctx, func(sdkCtx sdk.Context) error {
		if err := k.requireRole(sdkCtx, caller, types.CouponDistributeRoles...); err != nil {
			return err
		}
		_, state, err := k.loadPoolFor(sdkCtx, poolID, types.OpDistributeCoupons)
		if err != nil {
			return err
		}
		if !state.TotalCouponsReceived.GT(state.TotalCouponsDistributed) {
			return errorsmod.Wrapf(types.ErrNothingToDistribute, "pool %s distributed %s of %s",
				poolID, state.TotalCouponsDistributed, state.TotalCouponsReceived)
		}

		released = state.TotalCouponsReceived.Sub(state.TotalCouponsDistributed)
		state.TotalCouponsDistributed = state.TotalCouponsReceived
		k.SetPoolState(sdkCtx, state)

		sdkCtx.EventManager().EmitEvent(
			sdk.NewEvent(
				types.EventTypeCouponDistributed,
				sdk.NewAttribute(types.AttributeKeyPoolID, poolID),
				sdk.NewAttribute(types.AttributeKeyAmount, released.String()),
			),
		)

		k.logger.Info("Coupons distributed", "pool_id", poolID, "amount", released.String())
		return nil
	})
	if err != nil {
		return math.Int{}, err
	}
	return released, nil
}

// ClaimCoupon pays holder its unclaimed share of the distributed coupons.
func (k *Keeper) ClaimCoupon(ctx context.Context, holder, poolID string) (math.Int, error) {
	var amount math.Int
	err := k.atomically(ctx, func(sdkCtx sdk.Context) error {
		_, state, err := k.loadPoolFor(sdkCtx, poolID, types.OpClaimCoupon)
		if err != nil {
			return err
		}
		balance := k.shares.BalanceOf(sdkCtx, poolID, holder)
		supply := k.shares.TotalSupply(sdkCtx, poolID)
		if amount, err = k.couponEntitlement(sdkCtx, state, holder, balance, supply); err != nil {
			return err
		}
		if !amount.IsPositive() {
			return errorsmod.Wrapf(types.ErrNothingToClaim, "%s has no coupons to claim in %s", holder, poolID)
		}

		data := k.GetUserPoolData(sdkCtx, poolID, holder)
		data.CouponClaimed = data.CouponClaimed.Add(amount)
		k.SetUserPoolData(sdkCtx, data)
		state.TotalCouponsClaimed = state.TotalCouponsClaimed.Add(amount)
		k.SetPoolState(sdkCtx, state)

		if err := k.custodyKeeper.ReleaseFunds(sdkCtx, k.moduleAddress, poolID, holder, amount); err != nil {
			return err
		}

		sdkCtx.EventManager().EmitEvent(
			sdk.NewEvent(
				types.EventTypeCouponClaimed,
				sdk.NewAttribute(types.AttributeKeyPoolID, poolID),
				sdk.NewAttribute(types.AttributeKeyHolder, holder),
				sdk.NewAttribute(types.AttributeKeyAmount, amount.String()),
			),
		)

		k.logger.Info("Coupon claimed", "pool_id", poolID, "holder", holder, "amount", amount.String())
		return nil
	})
	if err != nil {
		return math.Int{}, err
	}
	return amount, nil
}

// couponEntitlement is balance * distributed / supply less what holder already
// claimed, capped by the distributed coupons nobody has claimed yet.
func (k *Keeper) couponEntitlement(ctx sdk.Context, state *types.PoolState, holder string, balance, supply math.Int) (math.Int, error) {
	if !state.TotalCouponsDistributed.IsPositive() {
		return math.ZeroInt(), nil
	}
	share, err := types.ProportionalShare(balance, supply, state.TotalCouponsDistributed)
	if err != nil {
		return math.Int{}, err
	}
	claimed := k.GetUserPoolData(ctx, state.PoolID, holder).CouponClaimed
	if share.LTE(claimed) {
		return math.ZeroInt(), nil
	}
	unclaimed := state.TotalCouponsDistributed.Sub(state.TotalCouponsClaimed)
	return math.MinInt(share.Sub(claimed), unclaimed), nil
}
