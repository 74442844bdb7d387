package keeper

import (
	"context"
	"strconv"

	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/openalpha/termvault/x/termpool/types"
)

// Deposit takes amount of the pool asset from sender into custody and mints
// the same number of shares to receiver. Deposits are only accepted while the
// funding epoch is open and never push the raise above its target.
func (k *Keeper) Deposit(ctx context.Context, sender, poolID string, amount math.Int, receiver string) (math.Int, error) {
	if receiver == "" {
		receiver = sender
	}

	err := k.atomically(ctx, func(sdkCtx sdk.Context) error {
		cfg, state, err := k.loadPoolFor(sdkCtx, poolID, types.OpDeposit)
		if err != nil {
			return err
		}
		if err := requirePositive(amount); err != nil {
			return err
		}

		now := sdkCtx.BlockTime().Unix()
		if now > cfg.EpochEnd {
			return errorsmod.Wrapf(types.ErrEpochEnded, "epoch of pool %s ended at %d", poolID, cfg.EpochEnd)
		}

		raised, err := types.SafeAdd(state.TotalRaised, amount)
		if err != nil {
			return err
		}
		if raised.GT(cfg.TargetRaise) {
			return errorsmod.Wrapf(types.ErrExceedsTargetRaise, "raised %s + %s exceeds target %s",
				state.TotalRaised, amount, cfg.TargetRaise)
		}

		state.TotalRaised = raised
		k.SetPoolState(sdkCtx, state)

		holder := k.GetUserPoolData(sdkCtx, poolID, receiver)
		if !holder.HasDeposited() {
			holder.DepositTime = now
		}
		k.SetUserPoolData(sdkCtx, holder)

		if err := k.shares.Mint(sdkCtx, poolID, receiver, amount); err != nil {
			return err
		}
		if err := k.custodyKeeper.RecordDeposit(sdkCtx, k.moduleAddress, poolID, receiver, amount); err != nil {
			return err
		}
		if err := k.pullFunds(sdkCtx, cfg, sender, amount); err != nil {
			return err
		}

		sdkCtx.EventManager().EmitEvent(
			sdk.NewEvent(
				types.EventTypeDeposit,
				sdk.NewAttribute(types.AttributeKeyPoolID, poolID),
				sdk.NewAttribute(types.AttributeKeySender, sender),
				sdk.NewAttribute(types.AttributeKeyReceiver, receiver),
				sdk.NewAttribute(types.AttributeKeyAssets, amount.String()),
				sdk.NewAttribute(types.AttributeKeyShares, amount.String()),
				sdk.NewAttribute(types.AttributeKeyTime, strconv.FormatInt(now, 10)),
			),
		)

		k.logger.Info("Deposit",
			"pool_id", poolID,
			"sender", sender,
			"receiver", receiver,
			"amount", amount.String(),
			"total_raised", state.TotalRaised.String(),
		)
		return nil
	})
	if err != nil {
		return math.Int{}, err
	}
	return amount, nil
}
