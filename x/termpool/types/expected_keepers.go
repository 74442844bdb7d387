package types

import (
	"context"

	"cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	custodytypes "github.com/openalpha/termvault/x/custody/types"
)

// BankKeeper pulls investor and agent funds into custody
type BankKeeper interface {
	SendCoinsFromAccountToModule(ctx context.Context, senderAddr sdk.AccAddress, recipientModule string, amt sdk.Coins) error
}

// Directory answers asset approval questions
type Directory interface {
	IsApprovedAsset(ctx context.Context, denom string) bool
}

// Authorization answers role membership questions
type Authorization interface {
	HasRole(ctx context.Context, role Role, addr string) bool
}

// ShareAccount keeps the vault-share balances of every pool
type ShareAccount interface {
	Mint(ctx context.Context, poolID, holder string, amount math.Int) error
	Burn(ctx context.Context, poolID, holder string, amount math.Int) error
	BalanceOf(ctx context.Context, poolID, holder string) math.Int
	TotalSupply(ctx context.Context, poolID string) math.Int
}

// FeeManager is informed of phase transitions; it never gates them
type FeeManager interface {
	OnPhaseChanged(ctx context.Context, poolID string, from, to Phase)
}

// CustodyKeeper is the custody ledger as seen by the lifecycle
type CustodyKeeper interface {
	CreateLedger(ctx context.Context, ledger *custodytypes.Ledger) error
	RecordDeposit(ctx context.Context, caller, ledgerID, holder string, amount math.Int) error
	RecordInflow(ctx context.Context, caller, ledgerID string, kind custodytypes.TransferKind, from string, amount math.Int) error
	ReleaseFunds(ctx context.Context, caller, ledgerID, recipient string, amount math.Int) error
	WithdrawForInvestment(ctx context.Context, caller, ledgerID string, amount math.Int) (bool, error)
	AvailableBalance(ctx sdk.Context, ledgerID string) (math.Int, error)
}
