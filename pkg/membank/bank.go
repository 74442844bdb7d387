// Package membank is an in-memory coin ledger with the subset of the bank
// keeper API the custody and termpool modules consume. The standalone API
// server runs on it and the keeper tests use it as their bank.
package membank

import (
	"context"
	"fmt"
	"sync"

	"cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
	authtypes "github.com/cosmos/cosmos-sdk/x/auth/types"
)

// Bank holds balances keyed by bech32 address.
type Bank struct {
	mu       sync.RWMutex
	balances map[string]sdk.Coins
	supply   sdk.Coins
}

// New returns an empty bank.
func New() *Bank {
	return &Bank{balances: make(map[string]sdk.Coins)}
}

// ModuleAddress returns the account address of a module account.
func ModuleAddress(module string) sdk.AccAddress {
	return authtypes.NewModuleAddress(module)
}

// Fund credits coins to addr out of thin air, increasing supply.
func (b *Bank) Fund(addr sdk.AccAddress, coins sdk.Coins) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.balances[addr.String()] = b.balances[addr.String()].Add(coins...)
	b.supply = b.supply.Add(coins...)
}

func (b *Bank) move(from, to string, amt sdk.Coins) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	have := b.balances[from]
	left, neg := have.SafeSub(amt...)
	if neg {
		return fmt.Errorf("insufficient funds: %s has %s, needs %s", from, have, amt)
	}
	b.balances[from] = left
	b.balances[to] = b.balances[to].Add(amt...)
	return nil
}

// SendCoinsFromAccountToModule moves coins from an account to a module account.
func (b *Bank) SendCoinsFromAccountToModule(_ context.Context, senderAddr sdk.AccAddress, recipientModule string, amt sdk.Coins) error {
	return b.move(senderAddr.String(), ModuleAddress(recipientModule).String(), amt)
}

// SendCoinsFromModuleToAccount moves coins from a module account to an account.
func (b *Bank) SendCoinsFromModuleToAccount(_ context.Context, senderModule string, recipientAddr sdk.AccAddress, amt sdk.Coins) error {
	return b.move(ModuleAddress(senderModule).String(), recipientAddr.String(), amt)
}

// SendCoins moves coins between two accounts.
func (b *Bank) SendCoins(_ context.Context, fromAddr, toAddr sdk.AccAddress, amt sdk.Coins) error {
	return b.move(fromAddr.String(), toAddr.String(), amt)
}

// MintCoins creates coins in a module account.
func (b *Bank) MintCoins(_ context.Context, moduleName string, amt sdk.Coins) error {
	b.Fund(ModuleAddress(moduleName), amt)
	return nil
}

// BurnCoins destroys coins held by a module account.
func (b *Bank) BurnCoins(_ context.Context, moduleName string, amt sdk.Coins) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	addr := ModuleAddress(moduleName).String()
	left, neg := b.balances[addr].SafeSub(amt...)
	if neg {
		return fmt.Errorf("insufficient module funds to burn %s", amt)
	}
	b.balances[addr] = left
	b.supply = b.supply.Sub(amt...)
	return nil
}

// GetBalance returns the balance of denom held by addr.
func (b *Bank) GetBalance(_ context.Context, addr sdk.AccAddress, denom string) sdk.Coin {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return sdk.NewCoin(denom, b.balances[addr.String()].AmountOf(denom))
}

// GetSupply returns the total supply of denom.
func (b *Bank) GetSupply(_ context.Context, denom string) sdk.Coin {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return sdk.NewCoin(denom, b.supply.AmountOf(denom))
}

// Balance is a convenience accessor returning the raw amount.
func (b *Bank) Balance(addr sdk.AccAddress, denom string) math.Int {
	return b.GetBalance(context.Background(), addr, denom).Amount
}
