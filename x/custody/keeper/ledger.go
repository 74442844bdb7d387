package keeper

import (
	"context"
	"strconv"

	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/openalpha/termvault/x/custody/types"
)

func newHolderDeposit(ledgerID, holder string) *types.HolderDeposit {
	return &types.HolderDeposit{LedgerID: ledgerID, Holder: holder, Amount: math.ZeroInt()}
}

// CreateLedger registers a new custody ledger
func (k *Keeper) CreateLedger(ctx context.Context, ledger *types.Ledger) error {
	return k.atomically(ctx, func(sdkCtx sdk.Context) error {
		if k.GetLedger(sdkCtx, ledger.LedgerID) != nil {
			return errorsmod.Wrapf(types.ErrLedgerExists, "ledger %s", ledger.LedgerID)
		}
		if err := ledger.Validate(); err != nil {
			return err
		}
		k.SetLedger(sdkCtx, ledger)

		sdkCtx.EventManager().EmitEvent(
			sdk.NewEvent(
				types.EventTypeLedgerCreated,
				sdk.NewAttribute(types.AttributeKeyLedgerID, ledger.LedgerID),
				sdk.NewAttribute(types.AttributeKeyRequired, strconv.FormatUint(uint64(ledger.RequiredConfirmations), 10)),
				sdk.NewAttribute("signers", strconv.Itoa(len(ledger.Signers))),
			),
		)

		k.logger.Info("Custody ledger created",
			"ledger_id", ledger.LedgerID,
			"asset", ledger.Asset,
			"signers", len(ledger.Signers),
			"required", ledger.RequiredConfirmations,
		)
		return nil
	})
}

// controlledLedger loads a ledger and checks that caller is its controller.
func (k *Keeper) controlledLedger(ctx sdk.Context, caller, ledgerID string) (*types.Ledger, error) {
	ledger := k.GetLedger(ctx, ledgerID)
	if ledger == nil {
		return nil, errorsmod.Wrapf(types.ErrLedgerNotFound, "ledger %s", ledgerID)
	}
	if caller != ledger.Controller {
		return nil, errorsmod.Wrapf(types.ErrUnauthorized, "%s is not the controller of ledger %s", caller, ledgerID)
	}
	return ledger, nil
}

func requirePositive(amount math.Int) error {
	if amount.IsNil() || !amount.IsPositive() {
		return errorsmod.Wrapf(types.ErrInvalidAmount, "amount must be positive, got %s", amount)
	}
	return nil
}

// RecordDeposit credits a holder deposit that has already been transferred into
// the custody module account.
func (k *Keeper) RecordDeposit(ctx context.Context, caller, ledgerID, holder string, amount math.Int) error {
	return k.atomically(ctx, func(sdkCtx sdk.Context) error {
		ledger, err := k.controlledLedger(sdkCtx, caller, ledgerID)
		if err != nil {
			return err
		}
		if err := requirePositive(amount); err != nil {
			return err
		}

		deposit := k.GetHolderDeposit(sdkCtx, ledgerID, holder)
		deposit.Amount = deposit.Amount.Add(amount)
		ledger.TotalDeposits = ledger.TotalDeposits.Add(amount)
		ledger.TotalBalance = ledger.TotalBalance.Add(amount)

		k.SetHolderDeposit(sdkCtx, deposit)
		k.SetLedger(sdkCtx, ledger)

		sdkCtx.EventManager().EmitEvent(
			sdk.NewEvent(
				types.EventTypeDepositRecorded,
				sdk.NewAttribute(types.AttributeKeyLedgerID, ledgerID),
				sdk.NewAttribute(types.AttributeKeyHolder, holder),
				sdk.NewAttribute(types.AttributeKeyAmount, amount.String()),
			),
		)
		return nil
	})
}

// RecordInflow credits funds paid directly into custody by a counterparty,
// such as agent returns or coupon payments.
func (k *Keeper) RecordInflow(ctx context.Context, caller, ledgerID string, kind types.TransferKind, from string, amount math.Int) error {
	return k.atomically(ctx, func(sdkCtx sdk.Context) error {
		ledger, err := k.controlledLedger(sdkCtx, caller, ledgerID)
		if err != nil {
			return err
		}
		if !kind.Valid() || kind.Outflow() {
			return errorsmod.Wrapf(types.ErrInvalidTransferKind, "%q is not an inflow kind", kind)
		}
		if err := requirePositive(amount); err != nil {
			return err
		}

		ledger.TotalBalance = ledger.TotalBalance.Add(amount)
		k.SetLedger(sdkCtx, ledger)

		sdkCtx.EventManager().EmitEvent(
			sdk.NewEvent(
				types.EventTypeInflowRecorded,
				sdk.NewAttribute(types.AttributeKeyLedgerID, ledgerID),
				sdk.NewAttribute(types.AttributeKeyKind, string(kind)),
				sdk.NewAttribute("from", from),
				sdk.NewAttribute(types.AttributeKeyAmount, amount.String()),
			),
		)
		return nil
	})
}

// ReleaseFunds pays amount out of the ledger's available balance.
func (k *Keeper) ReleaseFunds(ctx context.Context, caller, ledgerID, recipient string, amount math.Int) error {
	return k.atomically(ctx, func(sdkCtx sdk.Context) error {
		ledger, err := k.controlledLedger(sdkCtx, caller, ledgerID)
		if err != nil {
			return err
		}
		if err := requirePositive(amount); err != nil {
			return err
		}
		if amount.GT(ledger.Available()) {
			return errorsmod.Wrapf(types.ErrInsufficientBalance, "release %s exceeds available %s", amount, ledger.Available())
		}

		ledger.TotalBalance = ledger.TotalBalance.Sub(amount)
		k.SetLedger(sdkCtx, ledger)

		if err := k.payOut(sdkCtx, ledger.Asset, recipient, amount); err != nil {
			return err
		}

		sdkCtx.EventManager().EmitEvent(
			sdk.NewEvent(
				types.EventTypeFundsReleased,
				sdk.NewAttribute(types.AttributeKeyLedgerID, ledgerID),
				sdk.NewAttribute(types.AttributeKeyRecipient, recipient),
				sdk.NewAttribute(types.AttributeKeyAmount, amount.String()),
			),
		)
		return nil
	})
}

// WithdrawForInvestment sends capital to the ledger's agent while the pool is
// awaiting investment. It reports whether the amount crossed the large-transfer
// threshold.
func (k *Keeper) WithdrawForInvestment(ctx context.Context, caller, ledgerID string, amount math.Int) (bool, error) {
	var flagged bool
	err := k.atomically(ctx, func(sdkCtx sdk.Context) error {
		ledger, err := k.controlledLedger(sdkCtx, caller, ledgerID)
		if err != nil {
			return err
		}
		if k.phases == nil || !k.phases.InvestmentWindowOpen(sdkCtx, ledgerID) {
			return errorsmod.Wrapf(types.ErrInvestmentWindowClosed, "ledger %s", ledgerID)
		}
		if err := requirePositive(amount); err != nil {
			return err
		}
		if amount.GT(ledger.Available()) {
			return errorsmod.Wrapf(types.ErrInsufficientBalance, "withdraw %s exceeds available %s", amount, ledger.Available())
		}

		ledger.TotalBalance = ledger.TotalBalance.Sub(amount)
		k.SetLedger(sdkCtx, ledger)

		if err := k.payOut(sdkCtx, ledger.Asset, ledger.Agent, amount); err != nil {
			return err
		}

		sdkCtx.EventManager().EmitEvent(
			sdk.NewEvent(
				types.EventTypeInvestmentWithdrawn,
				sdk.NewAttribute(types.AttributeKeyLedgerID, ledgerID),
				sdk.NewAttribute(types.AttributeKeyRecipient, ledger.Agent),
				sdk.NewAttribute(types.AttributeKeyAmount, amount.String()),
			),
		)

		if ledger.IsLargeTransfer(amount) {
			flagged = true
			k.flagLargeTransfer(sdkCtx, ledger, "", string(types.KindToAgent), amount)
		}
		return nil
	})
	return flagged, err
}

func (k *Keeper) flagLargeTransfer(ctx sdk.Context, ledger *types.Ledger, transferID, kind string, amount math.Int) {
	ctx.EventManager().EmitEvent(
		sdk.NewEvent(
			types.EventTypeLargeTransferFlagged,
			sdk.NewAttribute(types.AttributeKeyLedgerID, ledger.LedgerID),
			sdk.NewAttribute(types.AttributeKeyTransferID, transferID),
			sdk.NewAttribute(types.AttributeKeyKind, kind),
			sdk.NewAttribute(types.AttributeKeyAmount, amount.String()),
			sdk.NewAttribute("threshold", ledger.LargeTransferThreshold.String()),
		),
	)
	k.logger.Warn("Large custody transfer",
		"ledger_id", ledger.LedgerID,
		"transfer_id", transferID,
		"kind", kind,
		"amount", amount.String(),
		"threshold", ledger.LargeTransferThreshold.String(),
	)
}

// payOut sends asset from the custody module account to recipient.
func (k *Keeper) payOut(ctx sdk.Context, asset, recipient string, amount math.Int) error {
	addr, err := sdk.AccAddressFromBech32(recipient)
	if err != nil {
		return errorsmod.Wrapf(types.ErrUnauthorized, "invalid recipient %q: %s", recipient, err)
	}
	return k.bankKeeper.SendCoinsFromModuleToAccount(ctx, types.ModuleName, addr, sdk.NewCoins(sdk.NewCoin(asset, amount)))
}

// pullIn moves asset from payer into the custody module account.
func (k *Keeper) pullIn(ctx sdk.Context, asset, payer string, amount math.Int) error {
	addr, err := sdk.AccAddressFromBech32(payer)
	if err != nil {
		return errorsmod.Wrapf(types.ErrUnauthorized, "invalid payer %q: %s", payer, err)
	}
	return k.bankKeeper.SendCoinsFromAccountToModule(ctx, addr, types.ModuleName, sdk.NewCoins(sdk.NewCoin(asset, amount)))
}
