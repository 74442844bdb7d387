package types

// Phase is a pool lifecycle stage.
type Phase string

const (
	PhaseFunding           Phase = "FUNDING"
	PhasePendingInvestment Phase = "PENDING_INVESTMENT"
	PhaseInvested          Phase = "INVESTED"
	PhaseMatured           Phase = "MATURED"
	PhaseEmergency         Phase = "EMERGENCY"
)

// AllPhases lists the phases in lifecycle order.
var AllPhases = []Phase{
	PhaseFunding,
	PhasePendingInvestment,
	PhaseInvested,
	PhaseMatured,
	PhaseEmergency,
}

func (p Phase) Valid() bool {
	switch p {
	case PhaseFunding, PhasePendingInvestment, PhaseInvested, PhaseMatured, PhaseEmergency:
		return true
	}
	return false
}

// Active reports whether the pool can still be moved to EMERGENCY.
func (p Phase) Active() bool {
	return p == PhaseFunding || p == PhasePendingInvestment || p == PhaseInvested
}

// Operation names a lifecycle entry point for phase gating.
type Operation string

const (
	OpDeposit               Operation = "deposit"
	OpWithdraw              Operation = "withdraw"
	OpCloseEpoch            Operation = "close_epoch"
	OpProcessInvestment     Operation = "process_investment"
	OpWithdrawForInvestment Operation = "withdraw_for_investment"
	OpProcessCouponPayment  Operation = "process_coupon_payment"
	OpDistributeCoupons     Operation = "distribute_coupons"
	OpClaimCoupon           Operation = "claim_coupon"
	OpProcessMaturity       Operation = "process_maturity"
	OpEmergencyExit         Operation = "emergency_exit"
	OpProvideLiquidity      Operation = "provide_liquidity"
	OpSetSlippageTolerance  Operation = "set_slippage_tolerance"
)

// Permits is the single (phase, operation) table of the lifecycle.
func (p Phase) Permits(op Operation) bool {
	switch p {
	case PhaseFunding:
		switch op {
		case OpDeposit, OpWithdraw, OpCloseEpoch, OpEmergencyExit, OpSetSlippageTolerance:
			return true
		}
	case PhasePendingInvestment:
		switch op {
		case OpProcessInvestment, OpWithdrawForInvestment, OpEmergencyExit, OpSetSlippageTolerance:
			return true
		}
	case PhaseInvested:
		switch op {
		case OpWithdraw, OpProcessCouponPayment, OpDistributeCoupons, OpClaimCoupon,
			OpProcessMaturity, OpEmergencyExit, OpProvideLiquidity, OpSetSlippageTolerance:
			return true
		}
	case PhaseMatured:
		switch op {
		case OpWithdraw, OpClaimCoupon:
			return true
		}
	case PhaseEmergency:
		return op == OpWithdraw
	}
	return false
}
