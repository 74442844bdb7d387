package types

import (
	"context"

	sdk "github.com/cosmos/cosmos-sdk/types"
)

// BankKeeper moves funds in and out of the custody module account.
type BankKeeper interface {
	SendCoinsFromAccountToModule(ctx context.Context, senderAddr sdk.AccAddress, recipientModule string, amt sdk.Coins) error
	SendCoinsFromModuleToAccount(ctx context.Context, senderModule string, recipientAddr sdk.AccAddress, amt sdk.Coins) error
}

// PhaseReader tells custody whether the pool behind a ledger is awaiting investment.
type PhaseReader interface {
	InvestmentWindowOpen(ctx context.Context, ledgerID string) bool
}
