package app

import (
	"context"

	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/log"
	"cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
	bankkeeper "github.com/cosmos/cosmos-sdk/x/bank/keeper"

	termpooltypes "github.com/openalpha/termvault/x/termpool/types"
)

// ShareDenomPrefix prefixes the bank denom of every pool's vault shares
const ShareDenomPrefix = "tv/"

// ShareDenom returns the bank denom of a pool's shares
func ShareDenom(poolID string) string {
	return ShareDenomPrefix + poolID
}

// bankShareAccount keeps pool shares as bank coins minted by the termpool
// module account. Sends are disabled per denom so shares stay with the holder.
type bankShareAccount struct {
	bank bankkeeper.BaseKeeper
}

var _ termpooltypes.ShareAccount = bankShareAccount{}

func newBankShareAccount(bank bankkeeper.BaseKeeper) bankShareAccount {
	return bankShareAccount{bank: bank}
}

func (a bankShareAccount) coins(poolID string, amount math.Int) sdk.Coins {
	return sdk.NewCoins(sdk.NewCoin(ShareDenom(poolID), amount))
}

func (a bankShareAccount) Mint(ctx context.Context, poolID, holder string, amount math.Int) error {
	if amount.IsNegative() {
		return errorsmod.Wrapf(termpooltypes.ErrInvalidAmount, "mint %s", amount)
	}
	if amount.IsZero() {
		return nil
	}
	addr, err := sdk.AccAddressFromBech32(holder)
	if err != nil {
		return errorsmod.Wrapf(termpooltypes.ErrInvalidAmount, "holder %q: %s", holder, err)
	}

	denom := ShareDenom(poolID)
	if a.bank.GetSupply(ctx, denom).IsZero() {
		a.bank.SetSendEnabled(ctx, denom, false)
	}
	if err := a.bank.MintCoins(ctx, termpooltypes.ModuleName, a.coins(poolID, amount)); err != nil {
		return err
	}
	return a.bank.SendCoinsFromModuleToAccount(ctx, termpooltypes.ModuleName, addr, a.coins(poolID, amount))
}

func (a bankShareAccount) Burn(ctx context.Context, poolID, holder string, amount math.Int) error {
	if amount.IsNegative() {
		return errorsmod.Wrapf(termpooltypes.ErrInvalidAmount, "burn %s", amount)
	}
	if amount.IsZero() {
		return nil
	}
	addr, err := sdk.AccAddressFromBech32(holder)
	if err != nil {
		return errorsmod.Wrapf(termpooltypes.ErrInvalidAmount, "holder %q: %s", holder, err)
	}
	if balance := a.BalanceOf(ctx, poolID, holder); balance.LT(amount) {
		return errorsmod.Wrapf(termpooltypes.ErrInsufficientShares, "burn %s of %s", amount, balance)
	}
	if err := a.bank.SendCoinsFromAccountToModule(ctx, addr, termpooltypes.ModuleName, a.coins(poolID, amount)); err != nil {
		return err
	}
	return a.bank.BurnCoins(ctx, termpooltypes.ModuleName, a.coins(poolID, amount))
}

func (a bankShareAccount) BalanceOf(ctx context.Context, poolID, holder string) math.Int {
	addr, err := sdk.AccAddressFromBech32(holder)
	if err != nil {
		return math.ZeroInt()
	}
	return a.bank.GetBalance(ctx, addr, ShareDenom(poolID)).Amount
}

func (a bankShareAccount) TotalSupply(ctx context.Context, poolID string) math.Int {
	return a.bank.GetSupply(ctx, ShareDenom(poolID)).Amount
}

// phaseLog reports every pool phase transition to the node log
type phaseLog struct {
	logger log.Logger
}

func (p phaseLog) OnPhaseChanged(ctx context.Context, poolID string, from, to termpooltypes.Phase) {
	p.logger.Info("pool phase changed",
		"height", sdk.UnwrapSDKContext(ctx).BlockHeight(),
		"pool", poolID,
		"from", from,
		"to", to,
	)
}
