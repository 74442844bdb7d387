package types

import (
	"context"
	"errors"
	"time"

	custodytypes "github.com/openalpha/termvault/x/custody/types"
	termpoolkeeper "github.com/openalpha/termvault/x/termpool/keeper"
	termpooltypes "github.com/openalpha/termvault/x/termpool/types"
)

// PoolView is a pool as served by the REST API
type PoolView struct {
	Config        termpooltypes.PoolConfig `json:"config"`
	State         termpooltypes.PoolState  `json:"state"`
	TotalShares   string                   `json:"total_shares"`
	Value         string                   `json:"value"`
	DiscountRate  string                   `json:"discount_rate_pct"`
	SlippageRate  string                   `json:"slippage_tolerance_pct"`
	ExpectedYield string                   `json:"expected_yield_pct"`
}

// PositionView is a holder position with human-readable rates
type PositionView struct {
	termpoolkeeper.Position
	PenaltyRate string `json:"current_penalty_pct"`
}

// CreatePoolRequest is the body of POST /v1/pools
type CreatePoolRequest struct {
	Creator               string                   `json:"creator"`
	Config                termpooltypes.PoolConfig `json:"config"`
	Signers               []string                 `json:"signers"`
	RequiredConfirmations uint32                   `json:"required_confirmations"`
	LedgerAdmin           string                   `json:"ledger_admin,omitempty"`
}

// AmountRequest carries a caller and an optional integer amount
type AmountRequest struct {
	Caller   string `json:"caller"`
	Amount   string `json:"amount,omitempty"`
	Receiver string `json:"receiver,omitempty"`
	Owner    string `json:"owner,omitempty"`
}

// ActionRequest carries the caller of an operator action
type ActionRequest struct {
	Caller         string `json:"caller"`
	Force          bool   `json:"force,omitempty"`
	Amount         string `json:"amount,omitempty"`
	ProofReference string `json:"proof_reference,omitempty"`
	ToleranceBp    uint32 `json:"tolerance_bp,omitempty"`
}

// WithdrawQuote previews a withdrawal
type WithdrawQuote struct {
	termpooltypes.WithdrawPreview
	PenaltyRate string `json:"penalty_pct"`
}

// TransferView is a custody transfer with its approvers
type TransferView struct {
	custodytypes.Transfer
	Approvers []string `json:"approvers"`
}

// CalendarEntry is one upcoming dated pool event
type CalendarEntry struct {
	PoolID string `json:"pool_id"`
	Kind   string `json:"kind"` // epoch_end, coupon or maturity
	Time   int64  `json:"time"`
	RateBp uint32 `json:"rate_bp,omitempty"`
}

// Event is a canonical event as streamed and archived
type Event struct {
	Type       string            `json:"type"`
	PoolID     string            `json:"pool_id,omitempty"`
	LedgerID   string            `json:"ledger_id,omitempty"`
	Height     int64             `json:"height"`
	Time       int64             `json:"time"`
	Attributes map[string]string `json:"attributes"`
}

// EventSink receives the events of every executed operation
type EventSink interface {
	PublishEvents(ctx context.Context, events []Event)
}

// PoolService is the pool lifecycle as seen by the REST handlers
type PoolService interface {
	CreatePool(ctx context.Context, req *CreatePoolRequest) (*PoolView, error)
	GetPool(ctx context.Context, poolID string) (*PoolView, error)
	ListPools(ctx context.Context, offset, limit uint64) ([]*PoolView, uint64, error)
	GetPosition(ctx context.Context, poolID, holder string) (*PositionView, error)
	GetValue(ctx context.Context, poolID string) (*termpoolkeeper.PoolValuation, error)
	GetValueHistory(ctx context.Context, poolID string) ([]*termpooltypes.ValueSnapshot, error)
	PreviewWithdraw(ctx context.Context, poolID, owner, assets string) (*WithdrawQuote, error)

	Deposit(ctx context.Context, poolID string, req *AmountRequest) (*termpooltypes.MsgDepositResponse, error)
	Withdraw(ctx context.Context, poolID string, req *AmountRequest) (*termpooltypes.MsgWithdrawResponse, error)
	Redeem(ctx context.Context, poolID string, req *AmountRequest) (*termpooltypes.MsgWithdrawResponse, error)
	ClaimCoupon(ctx context.Context, poolID, holder string) (*termpooltypes.MsgClaimCouponResponse, error)

	// PoolAction runs one of the operator actions named by ActionCloseEpoch and friends
	PoolAction(ctx context.Context, poolID, action string, req *ActionRequest) (*termpooltypes.MsgPoolActionResponse, error)

	Calendar(ctx context.Context, from time.Time, limit int) []CalendarEntry
}

// Operator actions accepted by PoolService.PoolAction
const (
	ActionCloseEpoch            = "close-epoch"
	ActionProcessInvestment     = "invest"
	ActionWithdrawForInvestment = "withdraw-for-investment"
	ActionProcessCoupon         = "coupon"
	ActionDistributeCoupons     = "distribute"
	ActionProcessMaturity       = "mature"
	ActionEmergencyExit         = "emergency-exit"
	ActionSetSlippage           = "slippage"
	ActionProvideLiquidity      = "liquidity"
)

// ErrUnknownAction is returned for an operator action outside the accepted set
var ErrUnknownAction = errors.New("unknown pool action")

// CustodyService is the custody ledger as seen by the REST handlers
type CustodyService interface {
	GetLedger(ctx context.Context, ledgerID string) (*custodytypes.Ledger, error)
	ListTransfers(ctx context.Context, ledgerID string, pendingOnly bool) ([]*TransferView, error)
	ProposeTransfer(ctx context.Context, msg *custodytypes.MsgProposeTransfer) (*custodytypes.MsgProposeTransferResponse, error)
	ApproveTransfer(ctx context.Context, msg *custodytypes.MsgApproveTransfer) (*custodytypes.MsgApproveTransferResponse, error)
	ExecuteTransfer(ctx context.Context, msg *custodytypes.MsgExecuteTransfer) (*custodytypes.MsgApproveTransferResponse, error)
	RevokeTransfer(ctx context.Context, msg *custodytypes.MsgRevokeTransfer) error
	UpdateSigners(ctx context.Context, msg *custodytypes.MsgUpdateSigners) (*custodytypes.MsgUpdateSignersResponse, error)
}

// AccountService exposes balances of the standalone bank
type AccountService interface {
	Balance(ctx context.Context, addr, denom string) (string, error)
	Fund(ctx context.Context, addr, denom, amount string) error
}

// ErrorResponse is the body of every non-2xx reply
type ErrorResponse struct {
	Error     string `json:"error"`
	Codespace string `json:"codespace,omitempty"`
	Code      uint32 `json:"code,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

// NowMillis returns current timestamp in milliseconds
func NowMillis() int64 {
	return time.Now().UnixMilli()
}
