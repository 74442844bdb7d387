package keeper

import (
	"context"

	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/math"
	storetypes "cosmossdk.io/store/types"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/openalpha/termvault/x/termpool/types"
)

// StoreShareAccount keeps non-transferable share balances in the module store.
type StoreShareAccount struct {
	storeKey storetypes.StoreKey
}

var _ types.ShareAccount = StoreShareAccount{}

// NewStoreShareAccount returns a share ledger over storeKey
func NewStoreShareAccount(storeKey storetypes.StoreKey) StoreShareAccount {
	return StoreShareAccount{storeKey: storeKey}
}

func (s StoreShareAccount) get(ctx context.Context, key []byte) math.Int {
	bz := sdk.UnwrapSDKContext(ctx).KVStore(s.storeKey).Get(key)
	if bz == nil {
		return math.ZeroInt()
	}
	var v math.Int
	if err := v.Unmarshal(bz); err != nil {
		return math.ZeroInt()
	}
	return v
}

func (s StoreShareAccount) set(ctx context.Context, key []byte, v math.Int) {
	store := sdk.UnwrapSDKContext(ctx).KVStore(s.storeKey)
	if v.IsZero() {
		store.Delete(key)
		return
	}
	bz, _ := v.Marshal()
	store.Set(key, bz)
}

// Mint credits shares to holder
func (s StoreShareAccount) Mint(ctx context.Context, poolID, holder string, amount math.Int) error {
	if amount.IsNegative() {
		return errorsmod.Wrapf(types.ErrInvalidAmount, "mint %s", amount)
	}
	s.set(ctx, holderKey(ShareKeyPrefix, poolID, holder), s.BalanceOf(ctx, poolID, holder).Add(amount))
	s.set(ctx, poolKey(SupplyKeyPrefix, poolID), s.TotalSupply(ctx, poolID).Add(amount))
	return nil
}

// Burn debits shares from holder
func (s StoreShareAccount) Burn(ctx context.Context, poolID, holder string, amount math.Int) error {
	balance := s.BalanceOf(ctx, poolID, holder)
	if amount.IsNegative() || amount.GT(balance) {
		return errorsmod.Wrapf(types.ErrInsufficientShares, "burn %s of %s", amount, balance)
	}
	s.set(ctx, holderKey(ShareKeyPrefix, poolID, holder), balance.Sub(amount))
	s.set(ctx, poolKey(SupplyKeyPrefix, poolID), s.TotalSupply(ctx, poolID).Sub(amount))
	return nil
}

// BalanceOf returns holder's shares
func (s StoreShareAccount) BalanceOf(ctx context.Context, poolID, holder string) math.Int {
	return s.get(ctx, holderKey(ShareKeyPrefix, poolID, holder))
}

// TotalSupply returns the outstanding shares of a pool
func (s StoreShareAccount) TotalSupply(ctx context.Context, poolID string) math.Int {
	return s.get(ctx, poolKey(SupplyKeyPrefix, poolID))
}

// AllBalances returns every share balance held in the store
func (s StoreShareAccount) AllBalances(ctx sdk.Context) []types.ShareBalance {
	iterator := storetypes.KVStorePrefixIterator(ctx.KVStore(s.storeKey), ShareKeyPrefix)
	defer iterator.Close()

	var balances []types.ShareBalance
	for ; iterator.Valid(); iterator.Next() {
		key := iterator.Key()[len(ShareKeyPrefix):]
		sep := -1
		for i, b := range key {
			if b == keySeparator {
				sep = i
				break
			}
		}
		if sep < 0 {
			continue
		}
		var v math.Int
		if err := v.Unmarshal(iterator.Value()); err != nil {
			continue
		}
		balances = append(balances, types.ShareBalance{PoolID: string(key[:sep]), Holder: string(key[sep+1:]), Amount: v})
	}
	return balances
}
