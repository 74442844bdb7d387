package keeper

import (
	"context"
	"strconv"

	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/openalpha/termvault/x/custody/types"
)

// ProposeTransfer opens a multi-signer transfer. A signer proposer counts as the
// first approval; outflow amounts are locked until execution or revocation.
func (k *Keeper) ProposeTransfer(
	ctx context.Context,
	proposer, ledgerID string,
	kind types.TransferKind,
	recipient string,
	amount math.Int,
	payload []byte,
) (*types.Transfer, error) {
	var proposed *types.Transfer
	err := k.atomically(ctx, func(sdkCtx sdk.Context) error {
		ledger := k.GetLedger(sdkCtx, ledgerID)
		if ledger == nil {
			return errorsmod.Wrapf(types.ErrLedgerNotFound, "ledger %s", ledgerID)
		}
		if !kind.Valid() {
			return errorsmod.Wrapf(types.ErrInvalidTransferKind, "%q", kind)
		}
		if err := requirePositive(amount); err != nil {
			return err
		}
		if recipient == "" {
			return errorsmod.Wrap(types.ErrInvalidAmount, "empty recipient")
		}
		// inflow transfers move the counterparty's funds, so the counterparty may open them
		isCounterparty := !kind.Outflow() && proposer == recipient
		if !ledger.IsSigner(proposer) && proposer != ledger.Controller && !isCounterparty {
			return errorsmod.Wrapf(types.ErrUnauthorized, "%s may not propose on ledger %s", proposer, ledgerID)
		}

		createdAt := sdkCtx.BlockTime().Unix()
		id := types.TransferID(ledgerID, kind, recipient, amount, payload, createdAt, proposer)
		if k.GetTransfer(sdkCtx, ledgerID, id) != nil {
			return errorsmod.Wrapf(types.ErrTransferAlreadyExists, "transfer %s", id)
		}

		if kind.Outflow() {
			if amount.GT(ledger.Available()) {
				return errorsmod.Wrapf(types.ErrInsufficientBalance, "transfer %s exceeds available %s", amount, ledger.Available())
			}
			ledger.LockedBalance = ledger.LockedBalance.Add(amount)
			k.SetLedger(sdkCtx, ledger)
		}

		transfer := &types.Transfer{
			ID:        id,
			LedgerID:  ledgerID,
			Kind:      kind,
			Recipient: recipient,
			Amount:    amount,
			Payload:   payload,
			Proposer:  proposer,
			Flagged:   ledger.IsLargeTransfer(amount),
			CreatedAt: createdAt,
		}
		if ledger.IsSigner(proposer) {
			k.setApproval(sdkCtx, ledgerID, id, proposer)
			transfer.Confirmations = 1
		}
		k.SetTransfer(sdkCtx, transfer)

		sdkCtx.EventManager().EmitEvent(
			sdk.NewEvent(
				types.EventTypeTransferProposed,
				sdk.NewAttribute(types.AttributeKeyLedgerID, ledgerID),
				sdk.NewAttribute(types.AttributeKeyTransferID, id),
				sdk.NewAttribute(types.AttributeKeyKind, string(kind)),
				sdk.NewAttribute(types.AttributeKeyRecipient, recipient),
				sdk.NewAttribute(types.AttributeKeyAmount, amount.String()),
				sdk.NewAttribute(types.AttributeKeyProposer, proposer),
				sdk.NewAttribute(types.AttributeKeyConfirmations, strconv.FormatUint(uint64(transfer.Confirmations), 10)),
			),
		)
		if transfer.Flagged {
			k.flagLargeTransfer(sdkCtx, ledger, id, string(kind), amount)
		}

		k.logger.Info("Transfer proposed",
			"ledger_id", ledgerID,
			"transfer_id", id,
			"kind", kind,
			"amount", amount.String(),
			"proposer", proposer,
		)

		proposed = transfer
		return nil
	})
	if err != nil {
		return nil, err
	}
	return proposed, nil
}

// pendingTransfer loads a transfer that can still change state.
func (k *Keeper) pendingTransfer(ctx sdk.Context, ledgerID, transferID string) (*types.Ledger, *types.Transfer, error) {
	ledger := k.GetLedger(ctx, ledgerID)
	if ledger == nil {
		return nil, nil, errorsmod.Wrapf(types.ErrLedgerNotFound, "ledger %s", ledgerID)
	}
	transfer := k.GetTransfer(ctx, ledgerID, transferID)
	if transfer == nil {
		return nil, nil, errorsmod.Wrapf(types.ErrTransferNotFound, "transfer %s", transferID)
	}
	if transfer.Executed {
		return ledger, transfer, errorsmod.Wrapf(types.ErrAlreadyExecuted, "transfer %s", transferID)
	}
	if transfer.Revoked {
		return ledger, transfer, errorsmod.Wrapf(types.ErrTransferRevoked, "transfer %s", transferID)
	}
	return ledger, transfer, nil
}

// ApproveTransfer adds a signer confirmation. Reaching the threshold triggers
// execution; if that execution fails the approval still stands and the failure
// is reported through an event, leaving the transfer executable later.
func (k *Keeper) ApproveTransfer(ctx context.Context, signer, ledgerID, transferID string) (*types.Transfer, error) {
	var approved *types.Transfer
	err := k.atomically(ctx, func(sdkCtx sdk.Context) error {
		ledger, transfer, err := k.pendingTransfer(sdkCtx, ledgerID, transferID)
		if err != nil {
			return err
		}
		if !ledger.IsSigner(signer) {
			return errorsmod.Wrapf(types.ErrUnauthorized, "%s is not a signer of ledger %s", signer, ledgerID)
		}
		if k.HasApproved(sdkCtx, ledgerID, transferID, signer) {
			return errorsmod.Wrapf(types.ErrDuplicateApproval, "%s on transfer %s", signer, transferID)
		}

		k.setApproval(sdkCtx, ledgerID, transferID, signer)
		transfer.Confirmations++
		k.SetTransfer(sdkCtx, transfer)

		sdkCtx.EventManager().EmitEvent(
			sdk.NewEvent(
				types.EventTypeTransferApproved,
				sdk.NewAttribute(types.AttributeKeyLedgerID, ledgerID),
				sdk.NewAttribute(types.AttributeKeyTransferID, transferID),
				sdk.NewAttribute(types.AttributeKeySigner, signer),
				sdk.NewAttribute(types.AttributeKeyConfirmations, strconv.FormatUint(uint64(transfer.Confirmations), 10)),
				sdk.NewAttribute(types.AttributeKeyRequired, strconv.FormatUint(uint64(ledger.RequiredConfirmations), 10)),
			),
		)

		if transfer.Confirmations >= ledger.RequiredConfirmations {
			execCtx, write := sdkCtx.CacheContext()
			if err := k.execute(execCtx, ledger, transfer); err != nil {
				sdkCtx.EventManager().EmitEvent(
					sdk.NewEvent(
						types.EventTypeTransferExecutionFailed,
						sdk.NewAttribute(types.AttributeKeyLedgerID, ledgerID),
						sdk.NewAttribute(types.AttributeKeyTransferID, transferID),
						sdk.NewAttribute(types.AttributeKeyError, err.Error()),
					),
				)
				k.logger.Error("Transfer auto-execution failed",
					"ledger_id", ledgerID,
					"transfer_id", transferID,
					"error", err,
				)
			} else {
				write()
			}
		}

		approved = k.GetTransfer(sdkCtx, ledgerID, transferID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return approved, nil
}

// ExecuteTransfer executes a transfer that already met its threshold. Executing
// an executed transfer is a no-op.
func (k *Keeper) ExecuteTransfer(ctx context.Context, caller, ledgerID, transferID string) (*types.Transfer, error) {
	var executed *types.Transfer
	err := k.atomically(ctx, func(sdkCtx sdk.Context) error {
		ledger, transfer, err := k.pendingTransfer(sdkCtx, ledgerID, transferID)
		if transfer != nil && transfer.Executed {
			executed = transfer
			return nil
		}
		if err != nil {
			return err
		}
		if transfer.Confirmations < ledger.RequiredConfirmations {
			return errorsmod.Wrapf(types.ErrThresholdNotMet, "%d of %d confirmations", transfer.Confirmations, ledger.RequiredConfirmations)
		}
		if err := k.execute(sdkCtx, ledger, transfer); err != nil {
			return err
		}
		k.logger.Debug("Transfer executed on request", "transfer_id", transferID, "caller", caller)
		executed = transfer
		return nil
	})
	if err != nil {
		return nil, err
	}
	return executed, nil
}

// execute applies the balance effect of a transfer and moves the funds.
func (k *Keeper) execute(ctx sdk.Context, ledger *types.Ledger, transfer *types.Transfer) error {
	if transfer.Kind.Outflow() {
		if transfer.Amount.GT(ledger.TotalBalance) {
			return errorsmod.Wrapf(types.ErrInsufficientBalance, "transfer %s exceeds balance %s", transfer.Amount, ledger.TotalBalance)
		}
		ledger.LockedBalance = math.MaxInt(ledger.LockedBalance.Sub(transfer.Amount), math.ZeroInt())
		ledger.TotalBalance = ledger.TotalBalance.Sub(transfer.Amount)
	} else {
		ledger.TotalBalance = ledger.TotalBalance.Add(transfer.Amount)
	}
	transfer.Executed = true
	transfer.ExecutedAt = ctx.BlockTime().Unix()
	k.SetLedger(ctx, ledger)
	k.SetTransfer(ctx, transfer)

	var err error
	if transfer.Kind.Outflow() {
		err = k.payOut(ctx, ledger.Asset, transfer.Recipient, transfer.Amount)
	} else {
		err = k.pullIn(ctx, ledger.Asset, transfer.Recipient, transfer.Amount)
	}
	if err != nil {
		return err
	}

	ctx.EventManager().EmitEvent(
		sdk.NewEvent(
			types.EventTypeTransferExecuted,
			sdk.NewAttribute(types.AttributeKeyLedgerID, ledger.LedgerID),
			sdk.NewAttribute(types.AttributeKeyTransferID, transfer.ID),
			sdk.NewAttribute(types.AttributeKeyKind, string(transfer.Kind)),
			sdk.NewAttribute(types.AttributeKeyRecipient, transfer.Recipient),
			sdk.NewAttribute(types.AttributeKeyAmount, transfer.Amount.String()),
		),
	)

	k.logger.Info("Transfer executed",
		"ledger_id", ledger.LedgerID,
		"transfer_id", transfer.ID,
		"kind", transfer.Kind,
		"amount", transfer.Amount.String(),
	)
	return nil
}

// RevokeTransfer makes a transfer that has not reached its threshold permanently inert.
func (k *Keeper) RevokeTransfer(ctx context.Context, signer, ledgerID, transferID string) error {
	return k.atomically(ctx, func(sdkCtx sdk.Context) error {
		ledger, transfer, err := k.pendingTransfer(sdkCtx, ledgerID, transferID)
		if err != nil {
			return err
		}
		if !ledger.IsSigner(signer) {
			return errorsmod.Wrapf(types.ErrUnauthorized, "%s is not a signer of ledger %s", signer, ledgerID)
		}
		if transfer.Confirmations >= ledger.RequiredConfirmations {
			return errorsmod.Wrapf(types.ErrThresholdReached, "transfer %s", transferID)
		}

		transfer.Revoked = true
		k.SetTransfer(sdkCtx, transfer)
		if transfer.Kind.Outflow() {
			ledger.LockedBalance = math.MaxInt(ledger.LockedBalance.Sub(transfer.Amount), math.ZeroInt())
			k.SetLedger(sdkCtx, ledger)
		}

		sdkCtx.EventManager().EmitEvent(
			sdk.NewEvent(
				types.EventTypeTransferRevoked,
				sdk.NewAttribute(types.AttributeKeyLedgerID, ledgerID),
				sdk.NewAttribute(types.AttributeKeyTransferID, transferID),
				sdk.NewAttribute(types.AttributeKeySigner, signer),
			),
		)

		k.logger.Info("Transfer revoked", "ledger_id", ledgerID, "transfer_id", transferID, "signer", signer)
		return nil
	})
}
