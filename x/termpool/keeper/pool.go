package keeper

import (
	"context"

	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	custodytypes "github.com/openalpha/termvault/x/custody/types"
	"github.com/openalpha/termvault/x/termpool/types"
)

var _ custodytypes.PhaseReader = (*Keeper)(nil)

// PoolMetadata is the directory view of a pool
type PoolMetadata struct {
	PoolID          string   `json:"pool_id"`
	Asset           string   `json:"asset"`
	CustodyLedgerID string   `json:"custody_ledger_id"`
	CreatedAt       int64    `json:"created_at"`
	TargetRaise     math.Int `json:"target_raise"`
	Maturity        int64    `json:"maturity"`
}

// CreatePoolRequest carries the terms and custody signer set of a new pool
type CreatePoolRequest struct {
	Config                types.PoolConfig
	Signers               []string
	RequiredConfirmations uint32
	LedgerAdmin           string
}

// CreatePool registers a pool in FUNDING and opens its custody ledger
func (k *Keeper) CreatePool(ctx context.Context, creator string, req CreatePoolRequest) (*types.Pool, error) {
	var created *types.Pool
	err := k.atomically(ctx, func(sdkCtx sdk.Context) error {
		if err := k.requireRole(sdkCtx, creator, types.PoolAdminRoles...); err != nil {
			return err
		}

		now := sdkCtx.BlockTime().Unix()
		cfg := req.Config
		cfg.CreatedAt = now
		cfg.FaceValue = math.ZeroInt()
		if cfg.SlippageToleranceBp == 0 {
			cfg.SlippageToleranceBp = types.DefaultSlippageToleranceBp
		}
		if cfg.LargeTransferThreshold.IsNil() {
			cfg.LargeTransferThreshold = math.ZeroInt()
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		if cfg.EpochEnd <= now {
			return errorsmod.Wrapf(types.ErrInvalidConfig, "epoch end %d is not in the future", cfg.EpochEnd)
		}
		if k.GetPoolConfig(sdkCtx, cfg.PoolID) != nil {
			return errorsmod.Wrapf(types.ErrPoolAlreadyExists, "pool %s", cfg.PoolID)
		}
		if !k.directory.IsApprovedAsset(sdkCtx, cfg.Asset) {
			return errorsmod.Wrapf(types.ErrAssetNotApproved, "asset %s", cfg.Asset)
		}

		state := types.NewPoolState(cfg.PoolID, now)
		k.SetPoolConfig(sdkCtx, &cfg)
		k.SetPoolState(sdkCtx, state)

		admin := req.LedgerAdmin
		if admin == "" {
			admin = creator
		}
		ledger, err := custodytypes.NewLedger(cfg.PoolID, cfg.Asset, cfg.Agent, admin, k.moduleAddress,
			req.Signers, req.RequiredConfirmations, cfg.LargeTransferThreshold, now)
		if err != nil {
			return err
		}
		if err := k.custodyKeeper.CreateLedger(sdkCtx, ledger); err != nil {
			return err
		}

		sdkCtx.EventManager().EmitEvent(
			sdk.NewEvent(
				types.EventTypePoolCreated,
				sdk.NewAttribute(types.AttributeKeyPoolID, cfg.PoolID),
				sdk.NewAttribute("asset", cfg.Asset),
				sdk.NewAttribute("instrument", string(cfg.Instrument)),
				sdk.NewAttribute("target_raise", cfg.TargetRaise.String()),
			),
		)

		k.logger.Info("Pool created",
			"pool_id", cfg.PoolID,
			"instrument", cfg.Instrument,
			"target_raise", cfg.TargetRaise.String(),
			"epoch_end", cfg.EpochEnd,
			"maturity", cfg.Maturity,
		)

		created = &types.Pool{Config: cfg, State: *state}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// transition moves a pool to next, saving state and notifying the fee manager.
func (k *Keeper) transition(ctx sdk.Context, state *types.PoolState, next types.Phase) {
	prev := state.Phase
	state.Phase = next
	state.PhaseChangedAt = ctx.BlockTime().Unix()
	k.SetPoolState(ctx, state)

	ctx.EventManager().EmitEvent(
		sdk.NewEvent(
			types.EventTypeStatusChanged,
			sdk.NewAttribute(types.AttributeKeyPoolID, state.PoolID),
			sdk.NewAttribute(types.AttributeKeyOldPhase, string(prev)),
			sdk.NewAttribute(types.AttributeKeyNewPhase, string(next)),
		),
	)

	k.logger.Info("Pool phase changed", "pool_id", state.PoolID, "from", prev, "to", next)

	if k.fees != nil {
		k.fees.OnPhaseChanged(ctx, state.PoolID, prev, next)
	}
}

// InvestmentWindowOpen reports whether the pool behind ledgerID awaits investment
func (k *Keeper) InvestmentWindowOpen(ctx context.Context, ledgerID string) bool {
	state := k.GetPoolState(sdk.UnwrapSDKContext(ctx), ledgerID)
	return state != nil && state.Phase == types.PhasePendingInvestment
}

// IsRegisteredPool reports whether poolID exists
func (k *Keeper) IsRegisteredPool(ctx sdk.Context, poolID string) bool {
	return k.GetPoolConfig(ctx, poolID) != nil
}

// GetPoolMetadata returns the directory view of a pool
func (k *Keeper) GetPoolMetadata(ctx sdk.Context, poolID string) (*PoolMetadata, error) {
	cfg := k.GetPoolConfig(ctx, poolID)
	if cfg == nil {
		return nil, errorsmod.Wrapf(types.ErrPoolNotFound, "pool %s", poolID)
	}
	return &PoolMetadata{
		PoolID:          cfg.PoolID,
		Asset:           cfg.Asset,
		CustodyLedgerID: cfg.PoolID,
		CreatedAt:       cfg.CreatedAt,
		TargetRaise:     cfg.TargetRaise,
		Maturity:        cfg.Maturity,
	}, nil
}

// pullFunds moves amount of the pool asset from payer into custody.
func (k *Keeper) pullFunds(ctx sdk.Context, cfg *types.PoolConfig, payer string, amount math.Int) error {
	addr, err := sdk.AccAddressFromBech32(payer)
	if err != nil {
		return errorsmod.Wrapf(types.ErrUnauthorized, "invalid address %q: %s", payer, err)
	}
	return k.bankKeeper.SendCoinsFromAccountToModule(ctx, addr, custodytypes.ModuleName,
		sdk.NewCoins(sdk.NewCoin(cfg.Asset, amount)))
}

func requirePositive(amount math.Int) error {
	if amount.IsNil() || !amount.IsPositive() {
		return errorsmod.Wrapf(types.ErrInvalidAmount, "amount must be positive, got %s", amount)
	}
	return nil
}
