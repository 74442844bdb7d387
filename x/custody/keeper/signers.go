package keeper

import (
	"context"
	"strconv"

	errorsmod "cosmossdk.io/errors"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/samber/lo"

	"github.com/openalpha/termvault/x/custody/types"
)

// governedLedger loads a ledger that authority may amend.
func (k *Keeper) governedLedger(ctx sdk.Context, authority, ledgerID string) (*types.Ledger, error) {
	ledger := k.GetLedger(ctx, ledgerID)
	if ledger == nil {
		return nil, errorsmod.Wrapf(types.ErrLedgerNotFound, "ledger %s", ledgerID)
	}
	if authority != k.authority && authority != ledger.Admin {
		return nil, errorsmod.Wrapf(types.ErrUnauthorized, "%s cannot amend ledger %s", authority, ledgerID)
	}
	return ledger, nil
}

func (k *Keeper) emitSignerEvent(ctx sdk.Context, eventType string, ledger *types.Ledger, signer string) {
	ctx.EventManager().EmitEvent(
		sdk.NewEvent(
			eventType,
			sdk.NewAttribute(types.AttributeKeyLedgerID, ledger.LedgerID),
			sdk.NewAttribute(types.AttributeKeySigner, signer),
			sdk.NewAttribute("signers", strconv.Itoa(len(ledger.Signers))),
			sdk.NewAttribute(types.AttributeKeyRequired, strconv.FormatUint(uint64(ledger.RequiredConfirmations), 10)),
		),
	)
}

// AddSigner appends signer to the ledger's signer set
func (k *Keeper) AddSigner(ctx context.Context, authority, ledgerID, signer string) (*types.Ledger, error) {
	var updated *types.Ledger
	err := k.atomically(ctx, func(sdkCtx sdk.Context) error {
		ledger, err := k.governedLedger(sdkCtx, authority, ledgerID)
		if err != nil {
			return err
		}
		if ledger.IsSigner(signer) {
			return errorsmod.Wrapf(types.ErrInvalidSignerSet, "%s is already a signer", signer)
		}
		ledger.Signers = append(ledger.Signers, signer)
		if err := types.ValidateSignerSet(ledger.Signers, ledger.RequiredConfirmations); err != nil {
			return err
		}
		k.SetLedger(sdkCtx, ledger)
		k.emitSignerEvent(sdkCtx, types.EventTypeSignerAdded, ledger, signer)
		k.logger.Info("Signer added", "ledger_id", ledgerID, "signer", signer, "signers", len(ledger.Signers))
		updated = ledger
		return nil
	})
	return updated, err
}

// RemoveSigner drops signer, refusing when the remaining set would not exceed the threshold.
// Approvals the signer already gave stay counted.
func (k *Keeper) RemoveSigner(ctx context.Context, authority, ledgerID, signer string) (*types.Ledger, error) {
	var updated *types.Ledger
	err := k.atomically(ctx, func(sdkCtx sdk.Context) error {
		ledger, err := k.governedLedger(sdkCtx, authority, ledgerID)
		if err != nil {
			return err
		}
		if !ledger.IsSigner(signer) {
			return errorsmod.Wrapf(types.ErrInvalidSignerSet, "%s is not a signer", signer)
		}
		if len(ledger.Signers)-1 <= int(ledger.RequiredConfirmations) {
			return errorsmod.Wrapf(types.ErrInvalidSignerSet, "removing %s leaves %d signers for threshold %d",
				signer, len(ledger.Signers)-1, ledger.RequiredConfirmations)
		}
		ledger.Signers = lo.Without(ledger.Signers, signer)
		k.SetLedger(sdkCtx, ledger)
		k.emitSignerEvent(sdkCtx, types.EventTypeSignerRemoved, ledger, signer)
		k.logger.Info("Signer removed", "ledger_id", ledgerID, "signer", signer, "signers", len(ledger.Signers))
		updated = ledger
		return nil
	})
	return updated, err
}

// ChangeRequiredConfirmations sets a new approval threshold
func (k *Keeper) ChangeRequiredConfirmations(ctx context.Context, authority, ledgerID string, required uint32) (*types.Ledger, error) {
	var updated *types.Ledger
	err := k.atomically(ctx, func(sdkCtx sdk.Context) error {
		ledger, err := k.governedLedger(sdkCtx, authority, ledgerID)
		if err != nil {
			return err
		}
		if err := types.ValidateSignerSet(ledger.Signers, required); err != nil {
			return err
		}
		previous := ledger.RequiredConfirmations
		ledger.RequiredConfirmations = required
		k.SetLedger(sdkCtx, ledger)

		sdkCtx.EventManager().EmitEvent(
			sdk.NewEvent(
				types.EventTypeRequiredConfirmationsChanged,
				sdk.NewAttribute(types.AttributeKeyLedgerID, ledgerID),
				sdk.NewAttribute("previous", strconv.FormatUint(uint64(previous), 10)),
				sdk.NewAttribute(types.AttributeKeyRequired, strconv.FormatUint(uint64(required), 10)),
			),
		)
		k.logger.Info("Required confirmations changed", "ledger_id", ledgerID, "previous", previous, "required", required)
		updated = ledger
		return nil
	})
	return updated, err
}
