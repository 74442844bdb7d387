package types

import (
	"fmt"

	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
)

// Message types
const (
	TypeMsgCreatePool              = "create_pool"
	TypeMsgDeposit                 = "deposit"
	TypeMsgWithdraw                = "withdraw"
	TypeMsgRedeem                  = "redeem"
	TypeMsgCloseEpoch              = "close_epoch"
	TypeMsgProcessInvestment       = "process_investment"
	TypeMsgWithdrawForInvestment   = "withdraw_for_investment"
	TypeMsgProcessCouponPayment    = "process_coupon_payment"
	TypeMsgDistributeCouponPayment = "distribute_coupon_payment"
	TypeMsgClaimCoupon             = "claim_coupon"
	TypeMsgProcessMaturity         = "process_maturity"
	TypeMsgEmergencyExit           = "emergency_exit"
	TypeMsgSetSlippageTolerance    = "set_slippage_tolerance"
	TypeMsgProvideLiquidity        = "provide_liquidity"
)

func validateAddr(field, addr string) error {
	if _, err := sdk.AccAddressFromBech32(addr); err != nil {
		return errorsmod.Wrapf(ErrUnauthorized, "invalid %s address %q: %s", field, addr, err)
	}
	return nil
}

func validatePositive(amount string) error {
	v, ok := math.NewIntFromString(amount)
	if !ok || !v.IsPositive() {
		return errorsmod.Wrapf(ErrInvalidAmount, "%q", amount)
	}
	return nil
}

func validateNonNegative(amount string) error {
	v, ok := math.NewIntFromString(amount)
	if !ok || v.IsNegative() {
		return errorsmod.Wrapf(ErrInvalidAmount, "%q", amount)
	}
	return nil
}

func signersOf(addr string) []sdk.AccAddress {
	acc, _ := sdk.AccAddressFromBech32(addr)
	return []sdk.AccAddress{acc}
}

// MsgCreatePool creates a pool and its custody ledger
type MsgCreatePool struct {
	Creator               string     `json:"creator"`
	Config                PoolConfig `json:"config"`
	Signers               []string   `json:"signers"`
	RequiredConfirmations uint32     `json:"required_confirmations"`
	LedgerAdmin           string     `json:"ledger_admin,omitempty"`
}

func (msg MsgCreatePool) Route() string { return ModuleName }
func (msg MsgCreatePool) Type() string { return TypeMsgCreatePool }

// ValidateBasic implements sdk.Msg
func (msg MsgCreatePool) ValidateBasic() error {
	if err := validateAddr("creator", msg.Creator); err != nil {
		return err
	}
	if err := validateAddr("agent", msg.Config.Agent); err != nil {
		return err
	}
	cfg := msg.Config
	if cfg.SlippageToleranceBp == 0 {
		cfg.SlippageToleranceBp = DefaultSlippageToleranceBp
	}
	return cfg.Validate()
}

func (msg MsgCreatePool) GetSigners() []sdk.AccAddress { return signersOf(msg.Creator) }
func (*MsgCreatePool) ProtoMessage() {}
func (msg *MsgCreatePool) Reset() { *msg = MsgCreatePool{} }
func (msg MsgCreatePool) String() string {
	type plain MsgCreatePool
	return fmt.Sprintf("MsgCreatePool%+v", plain(msg))
}

// MsgDeposit deposits assets during the funding epoch
type MsgDeposit struct {
	Sender   string `json:"sender"`
	PoolID   string `json:"pool_id"`
	Amount   string `json:"amount"`
	Receiver string `json:"receiver"`
}

func (msg MsgDeposit) Route() string { return ModuleName }
func (msg MsgDeposit) Type() string { return TypeMsgDeposit }

// ValidateBasic implements sdk.Msg
func (msg MsgDeposit) ValidateBasic() error {
	if err := validateAddr("sender", msg.Sender); err != nil {
		return err
	}
	if msg.PoolID == "" {
		return ErrPoolNotFound
	}
	if err := validateAddr("receiver", msg.Receiver); err != nil {
		return err
	}
	return validatePositive(msg.Amount)
}

func (msg MsgDeposit) GetSigners() []sdk.AccAddress { return signersOf(msg.Sender) }
func (*MsgDeposit) ProtoMessage() {}
func (msg *MsgDeposit) Reset() { *msg = MsgDeposit{} }
func (msg MsgDeposit) String() string {
	type plain MsgDeposit
	return fmt.Sprintf("MsgDeposit%+v", plain(msg))
}

// MsgWithdraw withdraws assets according to the pool phase
type MsgWithdraw struct {
	Sender   string `json:"sender"`
	PoolID   string `json:"pool_id"`
	Assets   string `json:"assets"`
	Receiver string `json:"receiver"`
	Owner    string `json:"owner"`
}

func (msg MsgWithdraw) Route() string { return ModuleName }
func (msg MsgWithdraw) Type() string { return TypeMsgWithdraw }

// ValidateBasic implements sdk.Msg
func (msg MsgWithdraw) ValidateBasic() error {
	if err := validateAddr("sender", msg.Sender); err != nil {
		return err
	}
	if msg.PoolID == "" {
		return ErrPoolNotFound
	}
	if err := validateAddr("receiver", msg.Receiver); err != nil {
		return err
	}
	if err := validateAddr("owner", msg.Owner); err != nil {
		return err
	}
	return validateNonNegative(msg.Assets)
}

func (msg MsgWithdraw) GetSigners() []sdk.AccAddress { return signersOf(msg.Sender) }
func (*MsgWithdraw) ProtoMessage() {}
func (msg *MsgWithdraw) Reset() { *msg = MsgWithdraw{} }
func (msg MsgWithdraw) String() string {
	type plain MsgWithdraw
	return fmt.Sprintf("MsgWithdraw%+v", plain(msg))
}

// MsgRedeem redeems shares according to the pool phase
type MsgRedeem struct {
	Sender   string `json:"sender"`
	PoolID   string `json:"pool_id"`
	Shares   string `json:"shares"`
	Receiver string `json:"receiver"`
	Owner    string `json:"owner"`
}

func (msg MsgRedeem) Route() string { return ModuleName }
func (msg MsgRedeem) Type() string { return TypeMsgRedeem }

// ValidateBasic implements sdk.Msg
func (msg MsgRedeem) ValidateBasic() error {
	if err := validateAddr("sender", msg.Sender); err != nil {
		return err
	}
	if msg.PoolID == "" {
		return ErrPoolNotFound
	}
	if err := validateAddr("receiver", msg.Receiver); err != nil {
		return err
	}
	if err := validateAddr("owner", msg.Owner); err != nil {
		return err
	}
	return validateNonNegative(msg.Shares)
}

func (msg MsgRedeem) GetSigners() []sdk.AccAddress { return signersOf(msg.Sender) }
func (*MsgRedeem) ProtoMessage() {}
func (msg *MsgRedeem) Reset() { *msg = MsgRedeem{} }
func (msg MsgRedeem) String() string {
	type plain MsgRedeem
	return fmt.Sprintf("MsgRedeem%+v", plain(msg))
}

// MsgCloseEpoch closes the funding epoch; Force closes it early
type MsgCloseEpoch struct {
	Caller string `json:"caller"`
	PoolID string `json:"pool_id"`
	Force  bool   `json:"force,omitempty"`
}

func (msg MsgCloseEpoch) Route() string { return ModuleName }
func (msg MsgCloseEpoch) Type() string { return TypeMsgCloseEpoch }

// ValidateBasic implements sdk.Msg
func (msg MsgCloseEpoch) ValidateBasic() error {
	if err := validateAddr("caller", msg.Caller); err != nil {
		return err
	}
	if msg.PoolID == "" {
		return ErrPoolNotFound
	}
	return nil
}

func (msg MsgCloseEpoch) GetSigners() []sdk.AccAddress { return signersOf(msg.Caller) }
func (*MsgCloseEpoch) ProtoMessage() {}
func (msg *MsgCloseEpoch) Reset() { *msg = MsgCloseEpoch{} }
func (msg MsgCloseEpoch) String() string {
	type plain MsgCloseEpoch
	return fmt.Sprintf("MsgCloseEpoch%+v", plain(msg))
}

// MsgProcessInvestment confirms the amount the agent invested
type MsgProcessInvestment struct {
	Caller         string `json:"caller"`
	PoolID         string `json:"pool_id"`
	ActualAmount   string `json:"actual_amount"`
	ProofReference string `json:"proof_reference"`
}

func (msg MsgProcessInvestment) Route() string { return ModuleName }
func (msg MsgProcessInvestment) Type() string { return TypeMsgProcessInvestment }

// ValidateBasic implements sdk.Msg
func (msg MsgProcessInvestment) ValidateBasic() error {
	if err := validateAddr("caller", msg.Caller); err != nil {
		return err
	}
	if msg.PoolID == "" {
		return ErrPoolNotFound
	}
	return validatePositive(msg.ActualAmount)
}

func (msg MsgProcessInvestment) GetSigners() []sdk.AccAddress { return signersOf(msg.Caller) }
func (*MsgProcessInvestment) ProtoMessage() {}
func (msg *MsgProcessInvestment) Reset() { *msg = MsgProcessInvestment{} }
func (msg MsgProcessInvestment) String() string {
	type plain MsgProcessInvestment
	return fmt.Sprintf("MsgProcessInvestment%+v", plain(msg))
}

// MsgWithdrawForInvestment sends raised capital to the agent
type MsgWithdrawForInvestment struct {
	Caller string `json:"caller"`
	PoolID string `json:"pool_id"`
	Amount string `json:"amount"`
}

func (msg MsgWithdrawForInvestment) Route() string { return ModuleName }
func (msg MsgWithdrawForInvestment) Type() string { return TypeMsgWithdrawForInvestment }

// ValidateBasic implements sdk.Msg
func (msg MsgWithdrawForInvestment) ValidateBasic() error {
	if err := validateAddr("caller", msg.Caller); err != nil {
		return err
	}
	if msg.PoolID == "" {
		return ErrPoolNotFound
	}
	return validatePositive(msg.Amount)
}

func (msg MsgWithdrawForInvestment) GetSigners() []sdk.AccAddress { return signersOf(msg.Caller) }
func (*MsgWithdrawForInvestment) ProtoMessage() {}
func (msg *MsgWithdrawForInvestment) Reset() { *msg = MsgWithdrawForInvestment{} }
func (msg MsgWithdrawForInvestment) String() string {
	type plain MsgWithdrawForInvestment
	return fmt.Sprintf("MsgWithdrawForInvestment%+v", plain(msg))
}

// MsgProcessCouponPayment pays a scheduled coupon into custody
type MsgProcessCouponPayment struct {
	Caller string `json:"caller"`
	PoolID string `json:"pool_id"`
	Amount string `json:"amount"`
}

func (msg MsgProcessCouponPayment) Route() string { return ModuleName }
func (msg MsgProcessCouponPayment) Type() string { return TypeMsgProcessCouponPayment }

// ValidateBasic implements sdk.Msg
func (msg MsgProcessCouponPayment) ValidateBasic() error {
	if err := validateAddr("caller", msg.Caller); err != nil {
		return err
	}
	if msg.PoolID == "" {
		return ErrPoolNotFound
	}
	return validatePositive(msg.Amount)
}

func (msg MsgProcessCouponPayment) GetSigners() []sdk.AccAddress { return signersOf(msg.Caller) }
func (*MsgProcessCouponPayment) ProtoMessage() {}
func (msg *MsgProcessCouponPayment) Reset() { *msg = MsgProcessCouponPayment{} }
func (msg MsgProcessCouponPayment) String() string {
	type plain MsgProcessCouponPayment
	return fmt.Sprintf("MsgProcessCouponPayment%+v", plain(msg))
}

// MsgDistributeCouponPayment makes received coupons claimable
type MsgDistributeCouponPayment struct {
	Caller string `json:"caller"`
	PoolID string `json:"pool_id"`
}

func (msg MsgDistributeCouponPayment) Route() string { return ModuleName }
func (msg MsgDistributeCouponPayment) Type() string { return TypeMsgDistributeCouponPayment }

// ValidateBasic implements sdk.Msg
func (msg MsgDistributeCouponPayment) ValidateBasic() error {
	if err := validateAddr("caller", msg.Caller); err != nil {
		return err
	}
	if msg.PoolID == "" {
		return ErrPoolNotFound
	}
	return nil
}

func (msg MsgDistributeCouponPayment) GetSigners() []sdk.AccAddress { return signersOf(msg.Caller) }
func (*MsgDistributeCouponPayment) ProtoMessage() {}
func (msg *MsgDistributeCouponPayment) Reset() { *msg = MsgDistributeCouponPayment{} }
func (msg MsgDistributeCouponPayment) String() string {
	type plain MsgDistributeCouponPayment
	return fmt.Sprintf("MsgDistributeCouponPayment%+v", plain(msg))
}

// MsgClaimCoupon claims a holder's distributed coupons
type MsgClaimCoupon struct {
	Holder string `json:"holder"`
	PoolID string `json:"pool_id"`
}

func (msg MsgClaimCoupon) Route() string { return ModuleName }
func (msg MsgClaimCoupon) Type() string { return TypeMsgClaimCoupon }

// ValidateBasic implements sdk.Msg
func (msg MsgClaimCoupon) ValidateBasic() error {
	if err := validateAddr("holder", msg.Holder); err != nil {
		return err
	}
	if msg.PoolID == "" {
		return ErrPoolNotFound
	}
	return nil
}

func (msg MsgClaimCoupon) GetSigners() []sdk.AccAddress { return signersOf(msg.Holder) }
func (*MsgClaimCoupon) ProtoMessage() {}
func (msg *MsgClaimCoupon) Reset() { *msg = MsgClaimCoupon{} }
func (msg MsgClaimCoupon) String() string {
	type plain MsgClaimCoupon
	return fmt.Sprintf("MsgClaimCoupon%+v", plain(msg))
}

// MsgProcessMaturity returns the final amount at maturity
type MsgProcessMaturity struct {
	Caller      string `json:"caller"`
	PoolID      string `json:"pool_id"`
	FinalAmount string `json:"final_amount"`
}

func (msg MsgProcessMaturity) Route() string { return ModuleName }
func (msg MsgProcessMaturity) Type() string { return TypeMsgProcessMaturity }

// ValidateBasic implements sdk.Msg
func (msg MsgProcessMaturity) ValidateBasic() error {
	if err := validateAddr("caller", msg.Caller); err != nil {
		return err
	}
	if msg.PoolID == "" {
		return ErrPoolNotFound
	}
	return validatePositive(msg.FinalAmount)
}

func (msg MsgProcessMaturity) GetSigners() []sdk.AccAddress { return signersOf(msg.Caller) }
func (*MsgProcessMaturity) ProtoMessage() {}
func (msg *MsgProcessMaturity) Reset() { *msg = MsgProcessMaturity{} }
func (msg MsgProcessMaturity) String() string {
	type plain MsgProcessMaturity
	return fmt.Sprintf("MsgProcessMaturity%+v", plain(msg))
}

// MsgEmergencyExit moves an active pool to EMERGENCY
type MsgEmergencyExit struct {
	Caller string `json:"caller"`
	PoolID string `json:"pool_id"`
}

func (msg MsgEmergencyExit) Route() string { return ModuleName }
func (msg MsgEmergencyExit) Type() string { return TypeMsgEmergencyExit }

// ValidateBasic implements sdk.Msg
func (msg MsgEmergencyExit) ValidateBasic() error {
	if err := validateAddr("caller", msg.Caller); err != nil {
		return err
	}
	if msg.PoolID == "" {
		return ErrPoolNotFound
	}
	return nil
}

func (msg MsgEmergencyExit) GetSigners() []sdk.AccAddress { return signersOf(msg.Caller) }
func (*MsgEmergencyExit) ProtoMessage() {}
func (msg *MsgEmergencyExit) Reset() { *msg = MsgEmergencyExit{} }
func (msg MsgEmergencyExit) String() string {
	type plain MsgEmergencyExit
	return fmt.Sprintf("MsgEmergencyExit%+v", plain(msg))
}

// MsgSetSlippageTolerance updates a pool's slippage tolerance
type MsgSetSlippageTolerance struct {
	Caller      string `json:"caller"`
	PoolID      string `json:"pool_id"`
	ToleranceBp uint32 `json:"tolerance_bp"`
}

func (msg MsgSetSlippageTolerance) Route() string { return ModuleName }
func (msg MsgSetSlippageTolerance) Type() string { return TypeMsgSetSlippageTolerance }

// ValidateBasic implements sdk.Msg
func (msg MsgSetSlippageTolerance) ValidateBasic() error {
	if err := validateAddr("caller", msg.Caller); err != nil {
		return err
	}
	if msg.PoolID == "" {
		return ErrPoolNotFound
	}
	if msg.ToleranceBp == 0 || msg.ToleranceBp > MaxSlippageToleranceBp {
		return errorsmod.Wrapf(ErrInvalidAmount, "tolerance %d bp", msg.ToleranceBp)
	}
	return nil
}

func (msg MsgSetSlippageTolerance) GetSigners() []sdk.AccAddress { return signersOf(msg.Caller) }
func (*MsgSetSlippageTolerance) ProtoMessage() {}
func (msg *MsgSetSlippageTolerance) Reset() { *msg = MsgSetSlippageTolerance{} }
func (msg MsgSetSlippageTolerance) String() string {
	type plain MsgSetSlippageTolerance
	return fmt.Sprintf("MsgSetSlippageTolerance%+v", plain(msg))
}

// MsgProvideLiquidity funds the early-exit liquidity buffer
type MsgProvideLiquidity struct {
	Caller string `json:"caller"`
	PoolID string `json:"pool_id"`
	Amount string `json:"amount"`
}

func (msg MsgProvideLiquidity) Route() string { return ModuleName }
func (msg MsgProvideLiquidity) Type() string { return TypeMsgProvideLiquidity }

// ValidateBasic implements sdk.Msg
func (msg MsgProvideLiquidity) ValidateBasic() error {
	if err := validateAddr("caller", msg.Caller); err != nil {
		return err
	}
	if msg.PoolID == "" {
		return ErrPoolNotFound
	}
	return validatePositive(msg.Amount)
}

func (msg MsgProvideLiquidity) GetSigners() []sdk.AccAddress { return signersOf(msg.Caller) }
func (*MsgProvideLiquidity) ProtoMessage() {}
func (msg *MsgProvideLiquidity) Reset() { *msg = MsgProvideLiquidity{} }
func (msg MsgProvideLiquidity) String() string {
	type plain MsgProvideLiquidity
	return fmt.Sprintf("MsgProvideLiquidity%+v", plain(msg))
}

// MsgCreatePoolResponse returns the created pool id
type MsgCreatePoolResponse struct {
	PoolID string `json:"pool_id"`
}

// MsgDepositResponse returns the minted shares
type MsgDepositResponse struct {
	Shares string `json:"shares"`
}

// MsgWithdrawResponse describes a completed withdrawal or redemption
type MsgWithdrawResponse struct {
	SharesBurned string `json:"shares_burned"`
	AssetsPaid   string `json:"assets_paid"`
	Penalty      string `json:"penalty"`
	CouponsPaid  string `json:"coupons_paid"`
}

// MsgClaimCouponResponse returns the released coupon amount
type MsgClaimCouponResponse struct {
	Amount string `json:"amount"`
}

// MsgPoolActionResponse reports the pool phase after an operator action
type MsgPoolActionResponse struct {
	Phase   Phase  `json:"phase"`
	Amount  string `json:"amount,omitempty"`
	Flagged bool   `json:"flagged,omitempty"`
}
