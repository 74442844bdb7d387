package types

import (
	errorsmod "cosmossdk.io/errors"
)

// Module error codes
var (
	ErrLedgerNotFound         = errorsmod.Register(ModuleName, 2, "custody ledger not found")
	ErrLedgerExists           = errorsmod.Register(ModuleName, 3, "custody ledger already exists")
	ErrInvalidLedger          = errorsmod.Register(ModuleName, 4, "invalid custody ledger")
	ErrInvalidSignerSet       = errorsmod.Register(ModuleName, 5, "invalid signer set")
	ErrUnauthorized           = errorsmod.Register(ModuleName, 6, "unauthorized")
	ErrInvalidAmount          = errorsmod.Register(ModuleName, 7, "invalid amount")
	ErrInsufficientBalance    = errorsmod.Register(ModuleName, 8, "amount exceeds available balance")
	ErrInvestmentWindowClosed = errorsmod.Register(ModuleName, 9, "pool is not awaiting investment")

	// Transfer workflow
	ErrTransferNotFound      = errorsmod.Register(ModuleName, 20, "transfer not found")
	ErrAlreadyExecuted       = errorsmod.Register(ModuleName, 21, "transfer already executed")
	ErrDuplicateApproval     = errorsmod.Register(ModuleName, 22, "signer already approved transfer")
	ErrTransferAlreadyExists = errorsmod.Register(ModuleName, 23, "transfer already exists")
	ErrTransferRevoked       = errorsmod.Register(ModuleName, 24, "transfer revoked")
	ErrThresholdNotMet       = errorsmod.Register(ModuleName, 25, "transfer has not reached required confirmations")
	ErrThresholdReached      = errorsmod.Register(ModuleName, 26, "transfer already reached required confirmations")
	ErrInvalidTransferKind   = errorsmod.Register(ModuleName, 27, "invalid transfer kind")

	ErrInvalidGenesis = errorsmod.Register(ModuleName, 40, "invalid genesis state")
)
