package types

import (
	"time"

	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/math"
)

// Penalty tiers for early exit while INVESTED, in basis points of the withdrawn amount.
const (
	PenaltyTier1Bp = 500 // held < 7 days
	PenaltyTier2Bp = 300 // held < 30 days
	PenaltyTier3Bp = 200 // held < 90 days
	PenaltyTier4Bp = 100

	PenaltyTier1Window = 7 * 24 * time.Hour
	PenaltyTier2Window = 30 * 24 * time.Hour
	PenaltyTier3Window = 90 * 24 * time.Hour
)

var bpDenominator = math.NewInt(BasisPoints)

// checkOperands rejects nil and negative inputs before any arithmetic happens.
func checkOperands(values ...math.Int) error {
	for _, v := range values {
		if v.IsNil() {
			return errorsmod.Wrap(ErrNumericRange, "nil operand")
		}
		if v.IsNegative() {
			return errorsmod.Wrapf(ErrNumericRange, "negative operand %s", v)
		}
	}
	return nil
}

func checkBp(bp uint32, max uint32) error {
	if bp > max {
		return errorsmod.Wrapf(ErrNumericRange, "basis points %d exceed %d", bp, max)
	}
	return nil
}

// mulDiv computes a*b/c with floor rounding, reporting overflow of the 256-bit range.
func mulDiv(a, b, c math.Int) (math.Int, error) {
	if c.IsZero() {
		return math.Int{}, errorsmod.Wrap(ErrNumericRange, "division by zero")
	}
	product, err := a.SafeMul(b)
	if err != nil {
		return math.Int{}, errorsmod.Wrap(ErrNumericRange, err.Error())
	}
	res, err := product.SafeQuo(c)
	if err != nil {
		return math.Int{}, errorsmod.Wrap(ErrNumericRange, err.Error())
	}
	return res, nil
}

// FaceValue returns raised * 10000 / (10000 - discountBp).
func FaceValue(raised math.Int, discountBp uint32) (math.Int, error) {
	if err := checkOperands(raised); err != nil {
		return math.Int{}, err
	}
	if discountBp >= BasisPoints {
		return math.Int{}, errorsmod.Wrapf(ErrNumericRange, "discount %d bp must be below %d", discountBp, BasisPoints)
	}
	return mulDiv(raised, bpDenominator, math.NewInt(int64(BasisPoints-discountBp)))
}

// SlippageBounds returns the inclusive [lower, upper] band around expected.
func SlippageBounds(expected math.Int, toleranceBp uint32) (math.Int, math.Int, error) {
	if err := checkOperands(expected); err != nil {
		return math.Int{}, math.Int{}, err
	}
	if err := checkBp(toleranceBp, BasisPoints); err != nil {
		return math.Int{}, math.Int{}, err
	}
	lower, err := mulDiv(expected, math.NewInt(int64(BasisPoints-toleranceBp)), bpDenominator)
	if err != nil {
		return math.Int{}, math.Int{}, err
	}
	upper, err := mulDiv(expected, math.NewInt(int64(BasisPoints+toleranceBp)), bpDenominator)
	if err != nil {
		return math.Int{}, math.Int{}, err
	}
	return lower, upper, nil
}

// SlippageValid reports whether actual lies inside the tolerance band around expected.
func SlippageValid(expected, actual math.Int, toleranceBp uint32) (bool, error) {
	if err := checkOperands(actual); err != nil {
		return false, err
	}
	lower, upper, err := SlippageBounds(expected, toleranceBp)
	if err != nil {
		return false, err
	}
	return actual.GTE(lower) && actual.LTE(upper), nil
}

// DynamicPenaltyBp maps a holding period to its early-exit penalty tier.
func DynamicPenaltyBp(held time.Duration) uint32 {
	switch {
	case held < PenaltyTier1Window:
		return PenaltyTier1Bp
	case held < PenaltyTier2Window:
		return PenaltyTier2Bp
	case held < PenaltyTier3Window:
		return PenaltyTier3Bp
	default:
		return PenaltyTier4Bp
	}
}

// ApplyBp returns amount * bp / 10000.
func ApplyBp(amount math.Int, bp uint32) (math.Int, error) {
	if err := checkOperands(amount); err != nil {
		return math.Int{}, err
	}
	return mulDiv(amount, math.NewInt(int64(bp)), bpDenominator)
}

// EarlyWithdrawalPenalty returns the penalty charged on amount after holding for held.
func EarlyWithdrawalPenalty(amount math.Int, held time.Duration) (math.Int, error) {
	return ApplyBp(amount, DynamicPenaltyBp(held))
}

// ExpectedCoupons sums principal * rate / 10000 over every scheduled rate, flooring each term.
func ExpectedCoupons(principal math.Int, ratesBp []uint32) (math.Int, error) {
	if err := checkOperands(principal); err != nil {
		return math.Int{}, err
	}
	total := math.ZeroInt()
	for _, rate := range ratesBp {
		coupon, err := ApplyBp(principal, rate)
		if err != nil {
			return math.Int{}, err
		}
		total, err = total.SafeAdd(coupon)
		if err != nil {
			return math.Int{}, errorsmod.Wrap(ErrNumericRange, err.Error())
		}
	}
	return total, nil
}

// ProportionalShare returns units * pool / total, or zero when total is zero.
func ProportionalShare(units, total, pool math.Int) (math.Int, error) {
	if err := checkOperands(units, total, pool); err != nil {
		return math.Int{}, err
	}
	if total.IsZero() {
		return math.ZeroInt(), nil
	}
	return mulDiv(units, pool, total)
}

// ProportionalShareCeil is ProportionalShare rounded up. It sizes what a
// holder surrenders for a payout.
func ProportionalShareCeil(units, total, pool math.Int) (math.Int, error) {
	if err := checkOperands(units, total, pool); err != nil {
		return math.Int{}, err
	}
	if total.IsZero() {
		return math.ZeroInt(), nil
	}
	product, err := units.SafeMul(pool)
	if err != nil {
		return math.Int{}, errorsmod.Wrap(ErrNumericRange, err.Error())
	}
	res := product.Quo(total)
	if !product.Mod(total).IsZero() {
		res = res.AddRaw(1)
	}
	return res, nil
}

// SafeAdd and SafeSub wrap the math.Int overflow and underflow cases in ErrNumericRange.
func SafeAdd(a, b math.Int) (math.Int, error) {
	if err := checkOperands(a, b); err != nil {
		return math.Int{}, err
	}
	res, err := a.SafeAdd(b)
	if err != nil {
		return math.Int{}, errorsmod.Wrap(ErrNumericRange, err.Error())
	}
	return res, nil
}

func SafeSub(a, b math.Int) (math.Int, error) {
	if err := checkOperands(a, b); err != nil {
		return math.Int{}, err
	}
	if a.LT(b) {
		return math.Int{}, errorsmod.Wrapf(ErrNumericRange, "%s - %s underflows", a, b)
	}
	return a.Sub(b), nil
}
