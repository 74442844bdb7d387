package types

// Event types
const (
	EventTypePoolCreated                 = "termpool_pool_created"
	EventTypeStatusChanged               = "termpool_status_changed"
	EventTypeDeposit                     = "termpool_deposit"
	EventTypeWithdraw                    = "termpool_withdraw"
	EventTypeInvestmentConfirmed         = "termpool_investment_confirmed"
	EventTypeInvestmentWithdrawn         = "termpool_investment_withdrawn"
	EventTypeCouponReceived              = "termpool_coupon_received"
	EventTypeCouponDistributed           = "termpool_coupon_distributed"
	EventTypeCouponClaimed               = "termpool_coupon_claimed"
	EventTypeMaturityProcessed           = "termpool_maturity_processed"
	EventTypeEmergencyExit               = "termpool_emergency_exit"
	EventTypeSlippageProtectionTriggered = "termpool_slippage_protection_triggered"
	EventTypeSlippageToleranceUpdated    = "termpool_slippage_tolerance_updated"
	EventTypeLiquidityProvided           = "termpool_liquidity_provided"
	EventTypeEndBlock                    = "termpool_end_block"
)

// Event attribute keys
const (
	AttributeKeyPoolID         = "pool_id"
	AttributeKeyOldPhase       = "old_phase"
	AttributeKeyNewPhase       = "new_phase"
	AttributeKeySender         = "sender"
	AttributeKeyReceiver       = "receiver"
	AttributeKeyOwner          = "owner"
	AttributeKeyHolder         = "holder"
	AttributeKeyAssets         = "assets"
	AttributeKeyShares         = "shares"
	AttributeKeyAmount         = "amount"
	AttributeKeyPenalty        = "penalty"
	AttributeKeyTime           = "time"
	AttributeKeyProofReference = "proof_reference"
	AttributeKeyExpected       = "expected"
	AttributeKeyActual         = "actual"
	AttributeKeyToleranceBp    = "tolerance_bp"
	AttributeKeyFaceValue      = "face_value"
	AttributeKeyDiscount       = "discount_earned"
	AttributeKeyCouponDate     = "coupon_date"
)
