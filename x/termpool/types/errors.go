package types

import (
	"errors"

	errorsmod "cosmossdk.io/errors"
)

// Module error codes
var (
	ErrWrongPhase            = errorsmod.Register(ModuleName, 2, "operation not permitted in current pool phase")
	ErrUnauthorized          = errorsmod.Register(ModuleName, 3, "unauthorized")
	ErrInvalidAmount         = errorsmod.Register(ModuleName, 4, "invalid amount")
	ErrSlippageExceeded      = errorsmod.Register(ModuleName, 5, "slippage tolerance exceeded")
	ErrInsufficientLiquidity = errorsmod.Register(ModuleName, 6, "insufficient liquidity")
	ErrNumericRange          = errorsmod.Register(ModuleName, 7, "numeric value out of range")

	// Time gating
	ErrEpochNotEnded       = errorsmod.Register(ModuleName, 10, "funding epoch has not ended")
	ErrEpochEnded          = errorsmod.Register(ModuleName, 11, "funding epoch has ended")
	ErrNotMatured          = errorsmod.Register(ModuleName, 12, "pool has not reached maturity")
	ErrInvalidCouponWindow = errorsmod.Register(ModuleName, 13, "outside coupon payment window")

	// Pool registry
	ErrPoolNotFound      = errorsmod.Register(ModuleName, 20, "pool not found")
	ErrPoolAlreadyExists = errorsmod.Register(ModuleName, 21, "pool already exists")
	ErrInvalidConfig     = errorsmod.Register(ModuleName, 22, "invalid pool configuration")
	ErrAssetNotApproved  = errorsmod.Register(ModuleName, 23, "asset not approved")

	// Holder accounting
	ErrNothingToClaim      = errorsmod.Register(ModuleName, 30, "nothing to claim")
	ErrInsufficientShares  = errorsmod.Register(ModuleName, 31, "insufficient shares")
	ErrExceedsTargetRaise  = errorsmod.Register(ModuleName, 32, "deposit exceeds target raise")
	ErrCouponAlreadyPaid   = errorsmod.Register(ModuleName, 33, "coupon already paid for this date")
	ErrNothingToDistribute = errorsmod.Register(ModuleName, 34, "no undistributed coupons")
	ErrInvalidInstrument   = errorsmod.Register(ModuleName, 35, "operation not supported for instrument kind")
	ErrInvalidGenesis      = errorsmod.Register(ModuleName, 40, "invalid genesis state")
)

// Retryable reports whether err is a time-gated rejection that may succeed later
// without any change to the request.
func Retryable(err error) bool {
	return errors.Is(err, ErrEpochNotEnded) ||
		errors.Is(err, ErrNotMatured) ||
		errors.Is(err, ErrInvalidCouponWindow)
}
