package types

import (
	"testing"
)

var allOperations = []Operation{
	OpDeposit, OpWithdraw, OpCloseEpoch, OpProcessInvestment, OpWithdrawForInvestment,
	OpProcessCouponPayment, OpDistributeCoupons, OpClaimCoupon, OpProcessMaturity,
	OpEmergencyExit, OpProvideLiquidity, OpSetSlippageTolerance,
}

func TestPhasePermits(t *testing.T) {
	allowed := map[Phase][]Operation{
		PhaseFunding:           {OpDeposit, OpWithdraw, OpCloseEpoch, OpEmergencyExit, OpSetSlippageTolerance},
		PhasePendingInvestment: {OpProcessInvestment, OpWithdrawForInvestment, OpEmergencyExit, OpSetSlippageTolerance},
		PhaseInvested: {OpWithdraw, OpProcessCouponPayment, OpDistributeCoupons, OpClaimCoupon,
			OpProcessMaturity, OpEmergencyExit, OpProvideLiquidity, OpSetSlippageTolerance},
		PhaseMatured:   {OpWithdraw, OpClaimCoupon},
		PhaseEmergency: {OpWithdraw},
	}

	for _, phase := range AllPhases {
		for _, op := range allOperations {
			want := false
			for _, a := range allowed[phase] {
				if a == op {
					want = true
				}
			}
			if got := phase.Permits(op); got != want {
				t.Errorf("%s.Permits(%s) = %v, want %v", phase, op, got, want)
			}
		}
	}
}

func TestPhaseActive(t *testing.T) {
	for _, p := range []Phase{PhaseFunding, PhasePendingInvestment, PhaseInvested} {
		if !p.Active() {
			t.Errorf("%s should be active", p)
		}
	}
	for _, p := range []Phase{PhaseMatured, PhaseEmergency} {
		if p.Active() {
			t.Errorf("%s should not be active", p)
		}
	}
	if Phase("CLOSED").Valid() {
		t.Error("unknown phase reported valid")
	}
}
