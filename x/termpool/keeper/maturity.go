package keeper

import (
	"context"
	"strconv"

	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	custodytypes "github.com/openalpha/termvault/x/custody/types"
	"github.com/openalpha/termvault/x/termpool/types"
)

// ProcessMaturity receives the agent's final repayment and opens the pool for
// payouts. Discounted pools must repay within the slippage band of their face
// value. Coupons still undistributed become claimable with the payout.
func (k *Keeper) ProcessMaturity(ctx context.Context, caller, poolID string, finalAmount math.Int) error {
	var slipped *sdk.Event
	err := k.atomically(ctx, func(sdkCtx sdk.Context) error {
		if err := k.requireRole(sdkCtx, caller, types.MaturityRoles...); err != nil {
			return err
		}
		cfg, state, err := k.loadPoolFor(sdkCtx, poolID, types.OpProcessMaturity)
		if err != nil {
			return err
		}
		if err := requirePositive(finalAmount); err != nil {
			return err
		}
		now := sdkCtx.BlockTime().Unix()
		if now < cfg.Maturity {
			return errorsmod.Wrapf(types.ErrNotMatured, "pool %s matures at %d", poolID, cfg.Maturity)
		}

		if cfg.Instrument == types.InstrumentDiscounted {
			ok, err := types.SlippageValid(cfg.FaceValue, finalAmount, cfg.SlippageToleranceBp)
			if err != nil {
				return err
			}
			if !ok {
				ev := slippageEvent(poolID, cfg.FaceValue, finalAmount, cfg.SlippageToleranceBp)
				slipped = &ev
				return errorsmod.Wrapf(types.ErrSlippageExceeded, "repaid %s vs face value %s at %d bp",
					finalAmount, cfg.FaceValue, cfg.SlippageToleranceBp)
			}
		}

		if state.FundsReturnedByAgent, err = types.SafeAdd(state.FundsReturnedByAgent, finalAmount); err != nil {
			return err
		}
		if err := k.custodyKeeper.RecordInflow(sdkCtx, k.moduleAddress, poolID, custodytypes.KindFromAgent, caller, finalAmount); err != nil {
			return err
		}
		if err := k.pullFunds(sdkCtx, cfg, caller, finalAmount); err != nil {
			return err
		}

		if pending := state.TotalCouponsReceived.Sub(state.TotalCouponsDistributed); pending.IsPositive() {
			state.TotalCouponsDistributed = state.TotalCouponsReceived
			sdkCtx.EventManager().EmitEvent(
				sdk.NewEvent(
					types.EventTypeCouponDistributed,
					sdk.NewAttribute(types.AttributeKeyPoolID, poolID),
					sdk.NewAttribute(types.AttributeKeyAmount, pending.String()),
				),
			)
		}

		// the payout is what custody holds for the pool less coupons owed to
		// holders, so the unused liquidity buffer is paid out with it
		available, err := k.custodyKeeper.AvailableBalance(sdkCtx, poolID)
		if err != nil {
			return err
		}
		owedCoupons := state.TotalCouponsDistributed.Sub(state.TotalCouponsClaimed)
		if state.MaturityPayoutRemaining, err = types.SafeSub(available, owedCoupons); err != nil {
			return err
		}
		leftover := state.LiquidityBuffer
		state.LiquidityBuffer = math.ZeroInt()
		k.transition(sdkCtx, state, types.PhaseMatured)

		sdkCtx.EventManager().EmitEvent(
			sdk.NewEvent(
				types.EventTypeMaturityProcessed,
				sdk.NewAttribute(types.AttributeKeyPoolID, poolID),
				sdk.NewAttribute(types.AttributeKeyAmount, finalAmount.String()),
				sdk.NewAttribute(types.AttributeKeyFaceValue, cfg.FaceValue.String()),
			),
		)

		k.logger.Info("Maturity processed",
			"pool_id", poolID,
			"final_amount", finalAmount.String(),
			"face_value", cfg.FaceValue.String(),
			"payout", state.MaturityPayoutRemaining.String(),
			"buffer_folded", leftover.String(),
		)
		return nil
	})
	if slipped != nil {
		k.reportSlippage(ctx, *slipped)
	}
	return err
}

// EmergencyExit halts an active pool. Holders can then only withdraw their
// pro-rata share of what is left in the raise.
func (k *Keeper) EmergencyExit(ctx context.Context, caller, poolID string) error {
	return k.atomically(ctx, func(sdkCtx sdk.Context) error {
		if err := k.requireRole(sdkCtx, caller, types.EmergencyRoles...); err != nil {
			return err
		}
		_, state, err := k.loadPoolFor(sdkCtx, poolID, types.OpEmergencyExit)
		if err != nil {
			return err
		}
		prev := state.Phase
		k.transition(sdkCtx, state, types.PhaseEmergency)

		sdkCtx.EventManager().EmitEvent(
			sdk.NewEvent(
				types.EventTypeEmergencyExit,
				sdk.NewAttribute(types.AttributeKeyPoolID, poolID),
				sdk.NewAttribute(types.AttributeKeySender, caller),
				sdk.NewAttribute(types.AttributeKeyOldPhase, string(prev)),
			),
		)

		k.logger.Warn("Emergency exit", "pool_id", poolID, "caller", caller, "from", prev)
		return nil
	})
}

// SetSlippageTolerance changes the tolerance used by later investment and
// maturity checks.
func (k *Keeper) SetSlippageTolerance(ctx context.Context, caller, poolID string, toleranceBp uint32) error {
	return k.atomically(ctx, func(sdkCtx sdk.Context) error {
		if err := k.requireRole(sdkCtx, caller, types.SlippageRoles...); err != nil {
			return err
		}
		cfg, _, err := k.loadPoolFor(sdkCtx, poolID, types.OpSetSlippageTolerance)
		if err != nil {
			return err
		}
		if toleranceBp == 0 || toleranceBp > types.MaxSlippageToleranceBp {
			return errorsmod.Wrapf(types.ErrInvalidAmount, "tolerance %d bp outside (0, %d]", toleranceBp, types.MaxSlippageToleranceBp)
		}
		prev := cfg.SlippageToleranceBp
		cfg.SlippageToleranceBp = toleranceBp
		k.SetPoolConfig(sdkCtx, cfg)

		sdkCtx.EventManager().EmitEvent(
			sdk.NewEvent(
				types.EventTypeSlippageToleranceUpdated,
				sdk.NewAttribute(types.AttributeKeyPoolID, poolID),
				sdk.NewAttribute(types.AttributeKeyToleranceBp, strconv.FormatUint(uint64(toleranceBp), 10)),
			),
		)

		k.logger.Info("Slippage tolerance updated", "pool_id", poolID, "from", prev, "to", toleranceBp)
		return nil
	})
}
