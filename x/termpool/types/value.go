package types

import (
	"cosmossdk.io/math"
)

// PoolValue is the current value of a pool's assets: principal plus the
// discount accrued so far and the coupons received but not yet claimed.
// Discount accrues in a straight line from investment to maturity.
func PoolValue(cfg *PoolConfig, state *PoolState, now int64) (math.Int, error) {
	switch state.Phase {
	case PhaseFunding, PhasePendingInvestment, PhaseEmergency:
		return state.TotalRaised, nil
	case PhaseMatured:
		return SafeAdd(state.MaturityPayoutRemaining, unclaimedCoupons(state))
	case PhaseInvested:
		value := state.ActualInvested
		if cfg.Instrument == InstrumentDiscounted && state.TotalDiscountEarned.IsPositive() {
			accrued, err := accruedDiscount(cfg, state, now)
			if err != nil {
				return math.Int{}, err
			}
			if value, err = SafeAdd(value, accrued); err != nil {
				return math.Int{}, err
			}
		}
		return SafeAdd(value, unclaimedCoupons(state))
	}
	return math.ZeroInt(), nil
}

func accruedDiscount(cfg *PoolConfig, state *PoolState, now int64) (math.Int, error) {
	start := state.PhaseChangedAt
	if now >= cfg.Maturity || cfg.Maturity <= start {
		return state.TotalDiscountEarned, nil
	}
	if now <= start {
		return math.ZeroInt(), nil
	}
	return ProportionalShare(math.NewInt(now-start), math.NewInt(cfg.Maturity-start), state.TotalDiscountEarned)
}

func unclaimedCoupons(state *PoolState) math.Int {
	if state.TotalCouponsReceived.LT(state.TotalCouponsClaimed) {
		return math.ZeroInt()
	}
	return state.TotalCouponsReceived.Sub(state.TotalCouponsClaimed)
}
