package types

import (
	"fmt"
	"regexp"
	"time"

	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/math"
	"github.com/samber/lo"
)

// Module name and store key
const (
	ModuleName = "termpool"
	StoreKey   = ModuleName
)

// BasisPoints is the implicit denominator of every rate in the module.
const BasisPoints = 10000

// Slippage and funding thresholds
const (
	DefaultSlippageToleranceBp = 500  // 5%
	MaxSlippageToleranceBp     = 1000 // 10%
	MinRaiseBp                 = 5000 // 50% of target
	LiquidityDivisor           = 10   // early exits capped at actualInvested / 10
	CouponWindow               = 24 * time.Hour
)

var poolIDPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,63}$`)

// InstrumentKind selects how returns accrue.
type InstrumentKind string

const (
	InstrumentDiscounted      InstrumentKind = "DISCOUNTED"
	InstrumentInterestBearing InstrumentKind = "INTEREST_BEARING"
)

func (k InstrumentKind) Valid() bool {
	return k == InstrumentDiscounted || k == InstrumentInterestBearing
}

// Coupon is one scheduled coupon date with its rate.
type Coupon struct {
	Time   int64  `json:"time"`
	RateBp uint32 `json:"rate_bp"`
}

// PoolConfig holds the terms a pool was created with. Only FaceValue changes
// after creation, once, when the funding epoch closes.
type PoolConfig struct {
	PoolID                 string         `json:"pool_id"`
	Asset                  string         `json:"asset"`
	Agent                  string         `json:"agent"`
	Instrument             InstrumentKind `json:"instrument"`
	FaceValue              math.Int       `json:"face_value"`
	TargetRaise            math.Int       `json:"target_raise"`
	EpochEnd               int64          `json:"epoch_end"`
	Maturity               int64          `json:"maturity"`
	Coupons                []Coupon       `json:"coupons,omitempty"`
	DiscountRateBp         uint32         `json:"discount_rate_bp"`
	SlippageToleranceBp    uint32         `json:"slippage_tolerance_bp"`
	LargeTransferThreshold math.Int       `json:"large_transfer_threshold"`
	CreatedAt              int64          `json:"created_at"`
}

// CouponRates returns the scheduled rates in date order.
func (c *PoolConfig) CouponRates() []uint32 {
	return lo.Map(c.Coupons, func(cp Coupon, _ int) uint32 { return cp.RateBp })
}

// Validate checks the static invariants of the pool terms.
func (c *PoolConfig) Validate() error {
	if !poolIDPattern.MatchString(c.PoolID) {
		return errorsmod.Wrapf(ErrInvalidConfig, "pool id %q must match %s", c.PoolID, poolIDPattern)
	}
	if c.Asset == "" {
		return errorsmod.Wrap(ErrInvalidConfig, "empty asset denom")
	}
	if c.Agent == "" {
		return errorsmod.Wrap(ErrInvalidConfig, "empty agent address")
	}
	if !c.Instrument.Valid() {
		return errorsmod.Wrapf(ErrInvalidConfig, "unknown instrument %q", c.Instrument)
	}
	if c.TargetRaise.IsNil() || !c.TargetRaise.IsPositive() {
		return errorsmod.Wrap(ErrInvalidConfig, "target raise must be positive")
	}
	if c.EpochEnd >= c.Maturity {
		return errorsmod.Wrap(ErrInvalidConfig, "epoch end must precede maturity")
	}
	if c.DiscountRateBp >= BasisPoints {
		return errorsmod.Wrapf(ErrInvalidConfig, "discount rate %d bp must be below %d", c.DiscountRateBp, BasisPoints)
	}
	if c.SlippageToleranceBp == 0 || c.SlippageToleranceBp > MaxSlippageToleranceBp {
		return errorsmod.Wrapf(ErrInvalidConfig, "slippage tolerance %d bp outside (0, %d]", c.SlippageToleranceBp, MaxSlippageToleranceBp)
	}
	if !c.LargeTransferThreshold.IsNil() && c.LargeTransferThreshold.IsNegative() {
		return errorsmod.Wrap(ErrInvalidConfig, "negative large transfer threshold")
	}
	if _, err := NewCouponSchedule(c.Coupons); err != nil {
		return err
	}
	if c.Instrument == InstrumentInterestBearing {
		if len(c.Coupons) == 0 {
			return errorsmod.Wrap(ErrInvalidConfig, "interest bearing pool needs a coupon schedule")
		}
		// coupons are only accepted while INVESTED, which ends at maturity
		if c.Coupons[len(c.Coupons)-1].Time > c.Maturity {
			return errorsmod.Wrap(ErrInvalidConfig, "coupon scheduled after maturity")
		}
	}
	return nil
}

// PoolState is the mutable accounting of a pool.
type PoolState struct {
	PoolID                  string   `json:"pool_id"`
	Phase                   Phase    `json:"phase"`
	TotalRaised             math.Int `json:"total_raised"`
	ActualInvested          math.Int `json:"actual_invested"`
	TotalDiscountEarned     math.Int `json:"total_discount_earned"`
	TotalCouponsReceived    math.Int `json:"total_coupons_received"`
	TotalCouponsDistributed math.Int `json:"total_coupons_distributed"`
	TotalCouponsClaimed     math.Int `json:"total_coupons_claimed"`
	FundsWithdrawnByAgent   math.Int `json:"funds_withdrawn_by_agent"`
	FundsReturnedByAgent    math.Int `json:"funds_returned_by_agent"`
	LiquidityBuffer         math.Int `json:"liquidity_buffer"`
	TotalPenalties          math.Int `json:"total_penalties"`
	MaturityPayoutRemaining math.Int `json:"maturity_payout_remaining"`
	PaidCouponDates         []int64  `json:"paid_coupon_dates,omitempty"`
	ProofReference          string   `json:"proof_reference,omitempty"`
	PhaseChangedAt          int64    `json:"phase_changed_at"`
}

// NewPoolState returns the zeroed state of a freshly created pool.
func NewPoolState(poolID string, now int64) *PoolState {
	return &PoolState{
		PoolID:                  poolID,
		Phase:                   PhaseFunding,
		TotalRaised:             math.ZeroInt(),
		ActualInvested:          math.ZeroInt(),
		TotalDiscountEarned:     math.ZeroInt(),
		TotalCouponsReceived:    math.ZeroInt(),
		TotalCouponsDistributed: math.ZeroInt(),
		TotalCouponsClaimed:     math.ZeroInt(),
		FundsWithdrawnByAgent:   math.ZeroInt(),
		FundsReturnedByAgent:    math.ZeroInt(),
		LiquidityBuffer:         math.ZeroInt(),
		TotalPenalties:          math.ZeroInt(),
		MaturityPayoutRemaining: math.ZeroInt(),
		PhaseChangedAt:          now,
	}
}

// CouponPaid reports whether the coupon scheduled at date has been received.
func (s *PoolState) CouponPaid(date int64) bool {
	return lo.Contains(s.PaidCouponDates, date)
}

// Validate checks the accounting invariants that must hold after every operation.
func (s *PoolState) Validate(cfg *PoolConfig) error {
	if !s.Phase.Valid() {
		return fmt.Errorf("pool %s: unknown phase %q", s.PoolID, s.Phase)
	}
	if s.Phase == PhaseFunding && s.TotalRaised.GT(cfg.TargetRaise) {
		return fmt.Errorf("pool %s: raised %s exceeds target %s", s.PoolID, s.TotalRaised, cfg.TargetRaise)
	}
	if s.TotalCouponsDistributed.GT(s.TotalCouponsReceived) {
		return fmt.Errorf("pool %s: distributed coupons exceed received", s.PoolID)
	}
	if s.TotalCouponsClaimed.GT(s.TotalCouponsDistributed) {
		return fmt.Errorf("pool %s: claimed coupons exceed distributed", s.PoolID)
	}
	return nil
}

// Pool bundles config and state for queries.
type Pool struct {
	Config PoolConfig `json:"config"`
	State  PoolState  `json:"state"`
}

// UserPoolData is the per-holder record of a pool.
type UserPoolData struct {
	PoolID        string   `json:"pool_id"`
	Holder        string   `json:"holder"`
	DepositTime   int64    `json:"deposit_time"`
	CouponClaimed math.Int `json:"coupon_claimed"`
}

// NewUserPoolData returns an empty holder record.
func NewUserPoolData(poolID, holder string) *UserPoolData {
	return &UserPoolData{
		PoolID:        poolID,
		Holder:        holder,
		CouponClaimed: math.ZeroInt(),
	}
}

// HasDeposited reports whether the holder currently has an open position clock.
func (u *UserPoolData) HasDeposited() bool {
	return u.DepositTime != 0
}

// ValueSnapshot is a point-in-time pool value recorded at end of block.
type ValueSnapshot struct {
	PoolID    string   `json:"pool_id"`
	Height    int64    `json:"height"`
	Timestamp int64    `json:"timestamp"`
	Phase     Phase    `json:"phase"`
	Value     math.Int `json:"value"`
}

// WithdrawPreview describes what a withdrawal would release without executing it.
type WithdrawPreview struct {
	Phase      Phase    `json:"phase"`
	Assets     math.Int `json:"assets"`
	Shares     math.Int `json:"shares"`
	PenaltyBp  uint32   `json:"penalty_bp"`
	Penalty    math.Int `json:"penalty"`
	Net        math.Int `json:"net"`
	Coupons    math.Int `json:"coupons"`
	MaxAllowed math.Int `json:"max_allowed"`
}
