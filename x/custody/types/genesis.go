package types

import (
	"fmt"

	"github.com/samber/lo"
)

// Approval records a signer's confirmation of a transfer.
type Approval struct {
	LedgerID   string `json:"ledger_id"`
	TransferID string `json:"transfer_id"`
	Signer     string `json:"signer"`
}

// GenesisState is the custody module's genesis state
type GenesisState struct {
	Ledgers   []Ledger        `json:"ledgers"`
	Deposits  []HolderDeposit `json:"deposits"`
	Transfers []Transfer      `json:"transfers"`
	Approvals []Approval      `json:"approvals"`
}

// DefaultGenesis returns an empty custody genesis
func DefaultGenesis() *GenesisState {
	return &GenesisState{
		Ledgers:   []Ledger{},
		Deposits:  []HolderDeposit{},
		Transfers: []Transfer{},
		Approvals: []Approval{},
	}
}

// Validate checks cross references between ledgers, transfers and approvals.
func (gs GenesisState) Validate() error {
	ledgers := make(map[string]*Ledger, len(gs.Ledgers))
	for i := range gs.Ledgers {
		l := &gs.Ledgers[i]
		if _, dup := ledgers[l.LedgerID]; dup {
			return fmt.Errorf("%w: duplicate ledger %s", ErrInvalidGenesis, l.LedgerID)
		}
		if err := l.Validate(); err != nil {
			return err
		}
		ledgers[l.LedgerID] = l
	}
	for _, d := range gs.Deposits {
		if _, ok := ledgers[d.LedgerID]; !ok {
			return fmt.Errorf("%w: deposit for unknown ledger %s", ErrInvalidGenesis, d.LedgerID)
		}
	}
	transfers := lo.SliceToMap(gs.Transfers, func(t Transfer) (string, Transfer) { return t.LedgerID + "/" + t.ID, t })
	if len(transfers) != len(gs.Transfers) {
		return fmt.Errorf("%w: duplicate transfer ids", ErrInvalidGenesis)
	}
	for _, t := range gs.Transfers {
		if _, ok := ledgers[t.LedgerID]; !ok {
			return fmt.Errorf("%w: transfer %s for unknown ledger %s", ErrInvalidGenesis, t.ID, t.LedgerID)
		}
		if !t.Kind.Valid() {
			return fmt.Errorf("%w: transfer %s has kind %q", ErrInvalidGenesis, t.ID, t.Kind)
		}
	}
	for _, a := range gs.Approvals {
		if _, ok := transfers[a.LedgerID+"/"+a.TransferID]; !ok {
			return fmt.Errorf("%w: approval for unknown transfer %s", ErrInvalidGenesis, a.TransferID)
		}
	}
	return nil
}
