package types

// Event types
const (
	EventTypeLedgerCreated                = "custody_ledger_created"
	EventTypeDepositRecorded              = "custody_deposit_recorded"
	EventTypeInflowRecorded               = "custody_inflow_recorded"
	EventTypeFundsReleased                = "custody_funds_released"
	EventTypeInvestmentWithdrawn          = "custody_investment_withdrawn"
	EventTypeLargeTransferFlagged         = "custody_large_transfer_flagged"
	EventTypeTransferProposed             = "custody_transfer_proposed"
	EventTypeTransferApproved             = "custody_transfer_approved"
	EventTypeTransferExecuted             = "custody_transfer_executed"
	EventTypeTransferExecutionFailed      = "custody_transfer_execution_failed"
	EventTypeTransferRevoked              = "custody_transfer_revoked"
	EventTypeSignerAdded                  = "custody_signer_added"
	EventTypeSignerRemoved                = "custody_signer_removed"
	EventTypeRequiredConfirmationsChanged = "custody_required_confirmations_changed"
)

// Event attribute keys
const (
	AttributeKeyLedgerID      = "ledger_id"
	AttributeKeyTransferID    = "transfer_id"
	AttributeKeyKind          = "kind"
	AttributeKeyRecipient     = "recipient"
	AttributeKeyHolder        = "holder"
	AttributeKeyAmount        = "amount"
	AttributeKeySigner        = "signer"
	AttributeKeyProposer      = "proposer"
	AttributeKeyConfirmations = "confirmations"
	AttributeKeyRequired      = "required"
	AttributeKeyError         = "error"
	AttributeKeyAvailable     = "available"
)
