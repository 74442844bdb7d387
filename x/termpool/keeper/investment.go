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

// ProcessInvestment confirms that the agent deployed actual into the
// instrument and moves the pool to INVESTED. The amount must sit inside the
// slippage band around the raise; a rejected amount is reported through a
// slippage_protection_triggered event on the caller's context.
func (k *Keeper) ProcessInvestment(ctx context.Context, caller, poolID string, actual math.Int, proofReference string) error {
	var slipped *sdk.Event
	err := k.atomically(ctx, func(sdkCtx sdk.Context) error {
		if err := k.requireRole(sdkCtx, caller, types.InvestmentRoles...); err != nil {
			return err
		}
		cfg, state, err := k.loadPoolFor(sdkCtx, poolID, types.OpProcessInvestment)
		if err != nil {
			return err
		}
		if err := requirePositive(actual); err != nil {
			return err
		}

		ok, err := types.SlippageValid(state.TotalRaised, actual, cfg.SlippageToleranceBp)
		if err != nil {
			return err
		}
		if !ok {
			ev := slippageEvent(poolID, state.TotalRaised, actual, cfg.SlippageToleranceBp)
			slipped = &ev
			return errorsmod.Wrapf(types.ErrSlippageExceeded, "invested %s vs raised %s at %d bp",
				actual, state.TotalRaised, cfg.SlippageToleranceBp)
		}

		now := sdkCtx.BlockTime().Unix()
		if cfg.Instrument == types.InstrumentInterestBearing {
			first, ok := mustSchedule(cfg).First()
			if !ok || first.Time <= now {
				return errorsmod.Wrapf(types.ErrInvalidConfig, "first coupon of pool %s is not in the future", poolID)
			}
		}

		discount := math.ZeroInt()
		if cfg.Instrument == types.InstrumentDiscounted && cfg.FaceValue.GT(actual) {
			discount = cfg.FaceValue.Sub(actual)
		}

		state.ActualInvested = actual
		state.TotalDiscountEarned = discount
		state.ProofReference = proofReference
		k.transition(sdkCtx, state, types.PhaseInvested)

		sdkCtx.EventManager().EmitEvent(
			sdk.NewEvent(
				types.EventTypeInvestmentConfirmed,
				sdk.NewAttribute(types.AttributeKeyPoolID, poolID),
				sdk.NewAttribute(types.AttributeKeyAmount, actual.String()),
				sdk.NewAttribute(types.AttributeKeyProofReference, proofReference),
				sdk.NewAttribute(types.AttributeKeyFaceValue, cfg.FaceValue.String()),
				sdk.NewAttribute(types.AttributeKeyDiscount, discount.String()),
			),
		)

		k.logger.Info("Investment confirmed",
			"pool_id", poolID,
			"actual", actual.String(),
			"total_raised", state.TotalRaised.String(),
			"discount_earned", discount.String(),
			"proof_reference", proofReference,
		)
		return nil
	})
	if slipped != nil {
		k.reportSlippage(ctx, *slipped)
	}
	return err
}

func slippageEvent(poolID string, expected, actual math.Int, toleranceBp uint32) sdk.Event {
	return sdk.NewEvent(
		types.EventTypeSlippageProtectionTriggered,
		sdk.NewAttribute(types.AttributeKeyPoolID, poolID),
		sdk.NewAttribute(types.AttributeKeyExpected, expected.String()),
		sdk.NewAttribute(types.AttributeKeyActual, actual.String()),
		sdk.NewAttribute(types.AttributeKeyToleranceBp, strconv.FormatUint(uint64(toleranceBp), 10)),
	)
}

// reportSlippage records a rejected amount outside the rolled back cache.
func (k *Keeper) reportSlippage(ctx context.Context, ev sdk.Event) {
	sdk.UnwrapSDKContext(ctx).EventManager().EmitEvent(ev)
	attrs := make([]interface{}, 0, 2*len(ev.Attributes))
	for _, attr := range ev.Attributes {
		attrs = append(attrs, attr.Key, attr.Value)
	}
	k.logger.Warn("Slippage protection triggered", attrs...)
}

// mustSchedule builds the coupon schedule of a validated config.
func mustSchedule(cfg *types.PoolConfig) *types.CouponSchedule {
	schedule, err := types.NewCouponSchedule(cfg.Coupons)
	if err != nil {
		// configs are validated before they are stored
		panic(err)
	}
	return schedule
}

// WithdrawForInvestment hands raised capital to the agent while the pool
// awaits investment. It reports whether custody flagged the transfer as large.
func (k *Keeper) WithdrawForInvestment(ctx context.Context, caller, poolID string, amount math.Int) (bool, error) {
	var flagged bool
	err := k.atomically(ctx, func(sdkCtx sdk.Context) error {
		if err := k.requireRole(sdkCtx, caller, types.InvestmentRoles...); err != nil {
			return err
		}
		_, state, err := k.loadPoolFor(sdkCtx, poolID, types.OpWithdrawForInvestment)
		if err != nil {
			return err
		}
		if err := requirePositive(amount); err != nil {
			return err
		}
		available, err := k.custodyKeeper.AvailableBalance(sdkCtx, poolID)
		if err != nil {
			return err
		}
		if amount.GT(available) {
			return errorsmod.Wrapf(types.ErrInsufficientLiquidity, "withdraw %s exceeds custody balance %s", amount, available)
		}

		if flagged, err = k.custodyKeeper.WithdrawForInvestment(sdkCtx, k.moduleAddress, poolID, amount); err != nil {
			return err
		}
		if state.FundsWithdrawnByAgent, err = types.SafeAdd(state.FundsWithdrawnByAgent, amount); err != nil {
			return err
		}
		k.SetPoolState(sdkCtx, state)

		sdkCtx.EventManager().EmitEvent(
			sdk.NewEvent(
				types.EventTypeInvestmentWithdrawn,
				sdk.NewAttribute(types.AttributeKeyPoolID, poolID),
				sdk.NewAttribute(types.AttributeKeyAmount, amount.String()),
				sdk.NewAttribute("flagged", strconv.FormatBool(flagged)),
			),
		)

		k.logger.Info("Funds withdrawn for investment",
			"pool_id", poolID,
			"amount", amount.String(),
			"total_withdrawn", state.FundsWithdrawnByAgent.String(),
			"flagged", flagged,
		)
		return nil
	})
	if err != nil {
		return false, err
	}
	return flagged, nil
}

// ProvideLiquidity tops up the buffer that funds early exits while INVESTED.
func (k *Keeper) ProvideLiquidity(ctx context.Context, caller, poolID string, amount math.Int) error {
	return k.atomically(ctx, func(sdkCtx sdk.Context) error {
		if err := k.requireRole(sdkCtx, caller, types.LiquidityRoles...); err != nil {
			return err
		}
		cfg, state, err := k.loadPoolFor(sdkCtx, poolID, types.OpProvideLiquidity)
		if err != nil {
			return err
		}
		if err := requirePositive(amount); err != nil {
			return err
		}

		if state.LiquidityBuffer, err = types.SafeAdd(state.LiquidityBuffer, amount); err != nil {
			return err
		}
		k.SetPoolState(sdkCtx, state)

		if err := k.custodyKeeper.RecordInflow(sdkCtx, k.moduleAddress, poolID, custodytypes.KindFromAgent, caller, amount); err != nil {
			return err
		}
		if err := k.pullFunds(sdkCtx, cfg, caller, amount); err != nil {
			return err
		}

		sdkCtx.EventManager().EmitEvent(
			sdk.NewEvent(
				types.EventTypeLiquidityProvided,
				sdk.NewAttribute(types.AttributeKeyPoolID, poolID),
				sdk.NewAttribute(types.AttributeKeySender, caller),
				sdk.NewAttribute(types.AttributeKeyAmount, amount.String()),
			),
		)

		k.logger.Info("Liquidity provided", "pool_id", poolID, "amount", amount.String(), "buffer", state.LiquidityBuffer.String())
		return nil
	})
}
