package keeper

import (
	"context"

	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/openalpha/termvault/x/termpool/types"
)

// CloseEpoch ends the funding window once it has passed. Pools that raised at
// least half their target move on to PENDING_INVESTMENT with their face value
// fixed; the rest fall into EMERGENCY for refunds.
func (k *Keeper) CloseEpoch(ctx context.Context, caller, poolID string) (types.Phase, error) {
	return k.closeEpoch(ctx, caller, poolID, false)
}

// ForceCloseEpoch applies the CloseEpoch rule without waiting for the epoch end.
func (k *Keeper) ForceCloseEpoch(ctx context.Context, caller, poolID string) (types.Phase, error) {
	return k.closeEpoch(ctx, caller, poolID, true)
}

func (k *Keeper) closeEpoch(ctx context.Context, caller, poolID string, force bool) (types.Phase, error) {
	var next types.Phase
	err := k.atomically(ctx, func(sdkCtx sdk.Context) error {
		roles := types.CloseEpochRoles
		if force {
			roles = types.ForceCloseRoles
		}
		if err := k.requireRole(sdkCtx, caller, roles...); err != nil {
			return err
		}
		cfg, state, err := k.loadPoolFor(sdkCtx, poolID, types.OpCloseEpoch)
		if err != nil {
			return err
		}
		now := sdkCtx.BlockTime().Unix()
		if !force && now <= cfg.EpochEnd {
			return errorsmod.Wrapf(types.ErrEpochNotEnded, "epoch of pool %s ends at %d", poolID, cfg.EpochEnd)
		}

		funded, err := raisedEnough(state.TotalRaised, cfg.TargetRaise)
		if err != nil {
			return err
		}
		if !funded {
			next = types.PhaseEmergency
			k.transition(sdkCtx, state, next)
			k.logger.Warn("Funding epoch closed below minimum raise",
				"pool_id", poolID,
				"total_raised", state.TotalRaised.String(),
				"target_raise", cfg.TargetRaise.String(),
			)
			return nil
		}

		faceValue := state.TotalRaised
		if cfg.Instrument == types.InstrumentDiscounted {
			if faceValue, err = types.FaceValue(state.TotalRaised, cfg.DiscountRateBp); err != nil {
				return err
			}
		}
		cfg.FaceValue = faceValue
		k.SetPoolConfig(sdkCtx, cfg)

		next = types.PhasePendingInvestment
		k.transition(sdkCtx, state, next)
		k.logger.Info("Funding epoch closed",
			"pool_id", poolID,
			"total_raised", state.TotalRaised.String(),
			"face_value", faceValue.String(),
			"forced", force,
		)
		return nil
	})
	if err != nil {
		return "", err
	}
	return next, nil
}

// raisedEnough reports raised >= target * MinRaiseBp / 10000 without rounding.
func raisedEnough(raised, target math.Int) (bool, error) {
	lhs, err := raised.SafeMul(math.NewInt(types.BasisPoints))
	if err != nil {
		return false, errorsmod.Wrap(types.ErrNumericRange, err.Error())
	}
	rhs, err := target.SafeMul(math.NewInt(types.MinRaiseBp))
	if err != nil {
		return false, errorsmod.Wrap(types.ErrNumericRange, err.Error())
	}
	return lhs.GTE(rhs), nil
}
