package types

import (
	"fmt"

	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
)

// Message types
const (
	TypeMsgProposeTransfer             = "propose_transfer"
	TypeMsgApproveTransfer             = "approve_transfer"
	TypeMsgExecuteTransfer             = "execute_transfer"
	TypeMsgRevokeTransfer              = "revoke_transfer"
	TypeMsgAddSigner                   = "add_signer"
	TypeMsgRemoveSigner                = "remove_signer"
	TypeMsgChangeRequiredConfirmations = "change_required_confirmations"
)

func signersOf(addr string) []sdk.AccAddress {
	acc, _ := sdk.AccAddressFromBech32(addr)
	return []sdk.AccAddress{acc}
}

func validateAddr(field, addr string) error {
	if _, err := sdk.AccAddressFromBech32(addr); err != nil {
		return errorsmod.Wrapf(ErrUnauthorized, "invalid %s address %q: %s", field, addr, err)
	}
	return nil
}

// MsgProposeTransfer proposes a multi-signer transfer on a ledger
type MsgProposeTransfer struct {
	Proposer  string       `json:"proposer"`
	LedgerID  string       `json:"ledger_id"`
	Kind      TransferKind `json:"kind"`
	Recipient string       `json:"recipient"`
	Amount    string       `json:"amount"`
	Payload   []byte       `json:"payload,omitempty"`
}

func (msg MsgProposeTransfer) Route() string { return ModuleName }
func (msg MsgProposeTransfer) Type() string { return TypeMsgProposeTransfer }

// ValidateBasic implements sdk.Msg
func (msg MsgProposeTransfer) ValidateBasic() error {
	if err := validateAddr("proposer", msg.Proposer); err != nil {
		return err
	}
	if err := validateAddr("recipient", msg.Recipient); err != nil {
		return err
	}
	if msg.LedgerID == "" {
		return ErrLedgerNotFound
	}
	if !msg.Kind.Valid() {
		return errorsmod.Wrapf(ErrInvalidTransferKind, "%q", msg.Kind)
	}
	amount, ok := math.NewIntFromString(msg.Amount)
	if !ok || !amount.IsPositive() {
		return errorsmod.Wrapf(ErrInvalidAmount, "%q", msg.Amount)
	}
	return nil
}

func (msg MsgProposeTransfer) GetSigners() []sdk.AccAddress { return signersOf(msg.Proposer) }
func (*MsgProposeTransfer) ProtoMessage() {}
func (msg *MsgProposeTransfer) Reset() { *msg = MsgProposeTransfer{} }
func (msg MsgProposeTransfer) String() string {
	return fmt.Sprintf("MsgProposeTransfer{Proposer: %s, LedgerID: %s, Kind: %s, Recipient: %s, Amount: %s}",
		msg.Proposer, msg.LedgerID, msg.Kind, msg.Recipient, msg.Amount)
}

// MsgProposeTransferResponse returns the derived transfer id
type MsgProposeTransferResponse struct {
	TransferID    string `json:"transfer_id"`
	Confirmations uint32 `json:"confirmations"`
	Executed      bool   `json:"executed"`
}

// MsgApproveTransfer records a signer approval
type MsgApproveTransfer struct {
	Signer     string `json:"signer"`
	LedgerID   string `json:"ledger_id"`
	TransferID string `json:"transfer_id"`
}

func (msg MsgApproveTransfer) Route() string { return ModuleName }
func (msg MsgApproveTransfer) Type() string { return TypeMsgApproveTransfer }

// ValidateBasic implements sdk.Msg
func (msg MsgApproveTransfer) ValidateBasic() error {
	if err := validateAddr("signer", msg.Signer); err != nil {
		return err
	}
	if msg.LedgerID == "" || msg.TransferID == "" {
		return ErrTransferNotFound
	}
	return nil
}

func (msg MsgApproveTransfer) GetSigners() []sdk.AccAddress { return signersOf(msg.Signer) }
func (*MsgApproveTransfer) ProtoMessage() {}
func (msg *MsgApproveTransfer) Reset() { *msg = MsgApproveTransfer{} }
func (msg MsgApproveTransfer) String() string {
	return fmt.Sprintf("MsgApproveTransfer{Signer: %s, LedgerID: %s, TransferID: %s}", msg.Signer, msg.LedgerID, msg.TransferID)
}

// MsgApproveTransferResponse reports the confirmation count after approval
type MsgApproveTransferResponse struct {
	Confirmations uint32 `json:"confirmations"`
	Executed      bool   `json:"executed"`
}

// MsgExecuteTransfer forces execution of a transfer that met its threshold
type MsgExecuteTransfer struct {
	Caller     string `json:"caller"`
	LedgerID   string `json:"ledger_id"`
	TransferID string `json:"transfer_id"`
}

func (msg MsgExecuteTransfer) Route() string { return ModuleName }
func (msg MsgExecuteTransfer) Type() string { return TypeMsgExecuteTransfer }

// ValidateBasic implements sdk.Msg
func (msg MsgExecuteTransfer) ValidateBasic() error {
	if err := validateAddr("caller", msg.Caller); err != nil {
		return err
	}
	if msg.LedgerID == "" || msg.TransferID == "" {
		return ErrTransferNotFound
	}
	return nil
}

func (msg MsgExecuteTransfer) GetSigners() []sdk.AccAddress { return signersOf(msg.Caller) }
func (*MsgExecuteTransfer) ProtoMessage() {}
func (msg *MsgExecuteTransfer) Reset() { *msg = MsgExecuteTransfer{} }
func (msg MsgExecuteTransfer) String() string {
	return fmt.Sprintf("MsgExecuteTransfer{Caller: %s, LedgerID: %s, TransferID: %s}", msg.Caller, msg.LedgerID, msg.TransferID)
}

// MsgRevokeTransfer makes a pending transfer permanently inert
type MsgRevokeTransfer struct {
	Signer     string `json:"signer"`
	LedgerID   string `json:"ledger_id"`
	TransferID string `json:"transfer_id"`
}

func (msg MsgRevokeTransfer) Route() string { return ModuleName }
func (msg MsgRevokeTransfer) Type() string { return TypeMsgRevokeTransfer }

// ValidateBasic implements sdk.Msg
func (msg MsgRevokeTransfer) ValidateBasic() error {
	if err := validateAddr("signer", msg.Signer); err != nil {
		return err
	}
	if msg.LedgerID == "" || msg.TransferID == "" {
		return ErrTransferNotFound
	}
	return nil
}

func (msg MsgRevokeTransfer) GetSigners() []sdk.AccAddress { return signersOf(msg.Signer) }
func (*MsgRevokeTransfer) ProtoMessage() {}
func (msg *MsgRevokeTransfer) Reset() { *msg = MsgRevokeTransfer{} }
func (msg MsgRevokeTransfer) String() string {
	return fmt.Sprintf("MsgRevokeTransfer{Signer: %s, LedgerID: %s, TransferID: %s}", msg.Signer, msg.LedgerID, msg.TransferID)
}

// MsgUpdateSigners amends the signer set of a ledger. Exactly one of the
// operations is applied, selected by Type.
type MsgUpdateSigners struct {
	Authority             string `json:"authority"`
	LedgerID              string `json:"ledger_id"`
	Operation             string `json:"operation"`
	Signer                string `json:"signer,omitempty"`
	RequiredConfirmations uint32 `json:"required_confirmations,omitempty"`
}

func (msg MsgUpdateSigners) Route() string { return ModuleName }
func (msg MsgUpdateSigners) Type() string { return msg.Operation }

// ValidateBasic implements sdk.Msg
func (msg MsgUpdateSigners) ValidateBasic() error {
	if err := validateAddr("authority", msg.Authority); err != nil {
		return err
	}
	if msg.LedgerID == "" {
		return ErrLedgerNotFound
	}
	switch msg.Operation {
	case TypeMsgAddSigner, TypeMsgRemoveSigner:
		return validateAddr("signer", msg.Signer)
	case TypeMsgChangeRequiredConfirmations:
		if msg.RequiredConfirmations < MinRequiredConfirmations {
			return errorsmod.Wrapf(ErrInvalidSignerSet, "required confirmations %d", msg.RequiredConfirmations)
		}
		return nil
	default:
		return errorsmod.Wrapf(ErrInvalidSignerSet, "unknown operation %q", msg.Operation)
	}
}

func (msg MsgUpdateSigners) GetSigners() []sdk.AccAddress { return signersOf(msg.Authority) }
func (*MsgUpdateSigners) ProtoMessage() {}
func (msg *MsgUpdateSigners) Reset() { *msg = MsgUpdateSigners{} }
func (msg MsgUpdateSigners) String() string {
	return fmt.Sprintf("MsgUpdateSigners{Authority: %s, LedgerID: %s, Operation: %s, Signer: %s, Required: %d}",
		msg.Authority, msg.LedgerID, msg.Operation, msg.Signer, msg.RequiredConfirmations)
}

// MsgUpdateSignersResponse returns the resulting signer set
type MsgUpdateSignersResponse struct {
	Signers               []string `json:"signers"`
	RequiredConfirmations uint32   `json:"required_confirmations"`
}
