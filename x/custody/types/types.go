package types

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/samber/lo"
)

// Module name and store key
const (
	ModuleName = "custody"
	StoreKey   = ModuleName
)

// MinRequiredConfirmations is the lowest approval threshold a ledger accepts.
const MinRequiredConfirmations = 2

// TransferKind classifies a custody transfer.
type TransferKind string

const (
	KindToAgent         TransferKind = "to-agent"
	KindFromAgent       TransferKind = "from-agent"
	KindRefund          TransferKind = "refund"
	KindCoupon          TransferKind = "coupon"
	KindDiscountRelease TransferKind = "discount-release"
)

var AllTransferKinds = []TransferKind{KindToAgent, KindFromAgent, KindRefund, KindCoupon, KindDiscountRelease}

func (k TransferKind) Valid() bool {
	switch k {
	case KindToAgent, KindFromAgent, KindRefund, KindCoupon, KindDiscountRelease:
		return true
	}
	return false
}

// Outflow reports whether executing a transfer of this kind pays funds out of custody.
func (k TransferKind) Outflow() bool {
	switch k {
	case KindToAgent, KindRefund, KindDiscountRelease:
		return true
	}
	return false
}

// Ledger is the custody account of a single pool.
type Ledger struct {
	LedgerID               string   `json:"ledger_id"`
	Asset                  string   `json:"asset"`
	Agent                  string   `json:"agent"`
	Admin                  string   `json:"admin"`
	Controller             string   `json:"controller"`
	Signers                []string `json:"signers"`
	RequiredConfirmations  uint32   `json:"required_confirmations"`
	TotalBalance           math.Int `json:"total_balance"`
	LockedBalance          math.Int `json:"locked_balance"`
	TotalDeposits          math.Int `json:"total_deposits"`
	LargeTransferThreshold math.Int `json:"large_transfer_threshold"`
	CreatedAt              int64    `json:"created_at"`
}

// NewLedger returns an empty ledger with the given signer set.
func NewLedger(ledgerID, asset, agent, admin, controller string, signers []string, required uint32, largeThreshold math.Int, now int64) (*Ledger, error) {
	if largeThreshold.IsNil() {
		largeThreshold = math.ZeroInt()
	}
	l := &Ledger{
		LedgerID:               ledgerID,
		Asset:                  asset,
		Agent:                  agent,
		Admin:                  admin,
		Controller:             controller,
		Signers:                append([]string(nil), signers...),
		RequiredConfirmations:  required,
		TotalBalance:           math.ZeroInt(),
		LockedBalance:          math.ZeroInt(),
		TotalDeposits:          math.ZeroInt(),
		LargeTransferThreshold: largeThreshold,
		CreatedAt:              now,
	}
	if err := l.Validate(); err != nil {
		return nil, err
	}
	return l, nil
}

// Validate checks identity fields and the signer-set invariant.
func (l *Ledger) Validate() error {
	if l.LedgerID == "" || l.Asset == "" {
		return errorsmod.Wrap(ErrInvalidLedger, "ledger id and asset are required")
	}
	if err := sdk.ValidateDenom(l.Asset); err != nil {
		return errorsmod.Wrap(ErrInvalidLedger, err.Error())
	}
	if l.Agent == "" || l.Controller == "" {
		return errorsmod.Wrap(ErrInvalidLedger, "agent and controller are required")
	}
	if l.LargeTransferThreshold.IsNegative() {
		return errorsmod.Wrap(ErrInvalidLedger, "negative large transfer threshold")
	}
	return ValidateSignerSet(l.Signers, l.RequiredConfirmations)
}

// ValidateSignerSet enforces unique non-empty signers and 2 <= required <= len(signers).
func ValidateSignerSet(signers []string, required uint32) error {
	if lo.Contains(signers, "") {
		return errorsmod.Wrap(ErrInvalidSignerSet, "empty signer address")
	}
	if dups := lo.FindDuplicates(signers); len(dups) > 0 {
		return errorsmod.Wrapf(ErrInvalidSignerSet, "duplicate signers %v", dups)
	}
	if required < MinRequiredConfirmations || int(required) > len(signers) {
		return errorsmod.Wrapf(ErrInvalidSignerSet, "required confirmations %d must be within [%d, %d]",
			required, MinRequiredConfirmations, len(signers))
	}
	return nil
}

// IsSigner reports whether addr belongs to the signer set.
func (l *Ledger) IsSigner(addr string) bool {
	return lo.Contains(l.Signers, addr)
}

// Available is the balance not reserved by pending outflow transfers.
func (l *Ledger) Available() math.Int {
	if l.LockedBalance.GT(l.TotalBalance) {
		return math.ZeroInt()
	}
	return l.TotalBalance.Sub(l.LockedBalance)
}

// IsLargeTransfer reports whether amount crosses the monitoring threshold.
func (l *Ledger) IsLargeTransfer(amount math.Int) bool {
	return l.LargeTransferThreshold.IsPositive() && amount.GT(l.LargeTransferThreshold)
}

// HolderDeposit is the cumulative amount a holder has deposited into a ledger.
type HolderDeposit struct {
	LedgerID string   `json:"ledger_id"`
	Holder   string   `json:"holder"`
	Amount   math.Int `json:"amount"`
}

// Transfer is a multi-signer custody movement.
type Transfer struct {
	ID            string       `json:"id"`
	LedgerID      string       `json:"ledger_id"`
	Kind          TransferKind `json:"kind"`
	Recipient     string       `json:"recipient"`
	Amount        math.Int     `json:"amount"`
	Payload       []byte       `json:"payload,omitempty"`
	Proposer      string       `json:"proposer"`
	Confirmations uint32       `json:"confirmations"`
	Executed      bool         `json:"executed"`
	Revoked       bool         `json:"revoked"`
	Flagged       bool         `json:"flagged"`
	CreatedAt     int64        `json:"created_at"`
	ExecutedAt    int64        `json:"executed_at,omitempty"`
}

// Pending reports whether the transfer can still gather approvals or execute.
func (t *Transfer) Pending() bool {
	return !t.Executed && !t.Revoked
}

// TransferID derives the content identifier of a transfer. Fields are length
// prefixed so that no two distinct tuples share an encoding.
func TransferID(ledgerID string, kind TransferKind, recipient string, amount math.Int, payload []byte, createdAt int64, proposer string) string {
	h := sha256.New()
	writeField := func(b []byte) {
		var n [8]byte
		binary.BigEndian.PutUint64(n[:], uint64(len(b)))
		h.Write(n[:])
		h.Write(b)
	}
	writeField([]byte(ledgerID))
	writeField([]byte(kind))
	writeField([]byte(recipient))
	writeField([]byte(amount.String()))
	writeField(payload)
	writeField([]byte(fmt.Sprintf("%d", createdAt)))
	writeField([]byte(proposer))
	return hex.EncodeToString(h.Sum(nil))
}
