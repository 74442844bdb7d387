package api

import (
	"github.com/openalpha/termvault/api/types"
)

// Re-export types for convenience
type (
	PoolView          = types.PoolView
	PositionView      = types.PositionView
	CreatePoolRequest = types.CreatePoolRequest
	AmountRequest     = types.AmountRequest
	ActionRequest     = types.ActionRequest
	WithdrawQuote     = types.WithdrawQuote
	TransferView      = types.TransferView
	CalendarEntry     = types.CalendarEntry
	Event             = types.Event
	EventSink         = types.EventSink
	PoolService       = types.PoolService
	CustodyService    = types.CustodyService
	AccountService    = types.AccountService
	ErrorResponse     = types.ErrorResponse
)

// ErrUnknownAction is returned for an operator action outside the accepted set
var ErrUnknownAction = types.ErrUnknownAction

// nowMillis returns current timestamp in milliseconds
func nowMillis() int64 {
	return types.NowMillis()
}
