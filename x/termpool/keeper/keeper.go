package keeper

import (
	"context"
	"encoding/binary"
	"encoding/json"

	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/log"
	storetypes "cosmossdk.io/store/types"
	"github.com/cosmos/cosmos-sdk/codec"
	sdk "github.com/cosmos/cosmos-sdk/types"
	authtypes "github.com/cosmos/cosmos-sdk/x/auth/types"
	"github.com/samber/lo"

	"github.com/openalpha/termvault/x/termpool/types"
)

// Store key prefixes
var (
	PoolConfigKeyPrefix = []byte{0x01}
	PoolStateKeyPrefix  = []byte{0x02}
	UserDataKeyPrefix   = []byte{0x03}
	ParamsKey           = []byte{0x04}
	SnapshotKeyPrefix   = []byte{0x05}
	ShareKeyPrefix      = []byte{0x06}
	SupplyKeyPrefix     = []byte{0x07}
)

const keySeparator = byte(0x00)

func poolKey(prefix []byte, poolID string) []byte {
	return append(append([]byte{}, prefix...), poolID...)
}

// holderKey nests a holder record under its pool so a pool's holders share a prefix.
func holderKey(prefix []byte, poolID, holder string) []byte {
	key := append(poolKey(prefix, poolID), keySeparator)
	return append(key, holder...)
}

// Keeper drives the lifecycle of term pools
type Keeper struct {
	cdc           codec.BinaryCodec
	storeKey      storetypes.StoreKey
	bankKeeper    types.BankKeeper
	custodyKeeper types.CustodyKeeper
	shares        types.ShareAccount
	directory     types.Directory
	authz         types.Authorization
	fees          types.FeeManager
	logger        log.Logger
	authority     string
	moduleAddress string
}

// NewKeeper creates a new termpool keeper. Shares default to the keeper's own
// store and the directory and role checks default to the module params.
func NewKeeper(
	cdc codec.BinaryCodec,
	storeKey storetypes.StoreKey,
	bankKeeper types.BankKeeper,
	custodyKeeper types.CustodyKeeper,
	authority string,
	logger log.Logger,
) *Keeper {
	k := &Keeper{
		cdc:           cdc,
		storeKey:      storeKey,
		bankKeeper:    bankKeeper,
		custodyKeeper: custodyKeeper,
		authority:     authority,
		moduleAddress: authtypes.NewModuleAddress(types.ModuleName).String(),
		logger:        logger.With("module", "x/termpool"),
	}
	k.shares = NewStoreShareAccount(storeKey)
	k.directory = paramsDirectory{k}
	k.authz = paramsAuthorization{k}
	return k
}

// SetShareAccount replaces the share ledger
func (k *Keeper) SetShareAccount(shares types.ShareAccount) { k.shares = shares }

// SetDirectory replaces the asset directory
func (k *Keeper) SetDirectory(directory types.Directory) { k.directory = directory }

// SetAuthorization replaces the role source
func (k *Keeper) SetAuthorization(authz types.Authorization) { k.authz = authz }

// SetFeeManager registers the fee manager notified of phase changes
func (k *Keeper) SetFeeManager(fees types.FeeManager) { k.fees = fees }

// Logger returns the module logger
func (k *Keeper) Logger() log.Logger {
	return k.logger
}

// GetAuthority returns the governance authority address
func (k *Keeper) GetAuthority() string {
	return k.authority
}

// ModuleAddress is the address the lifecycle uses as custody controller
func (k *Keeper) ModuleAddress() string {
	return k.moduleAddress
}

// Shares exposes the share ledger for queries
func (k *Keeper) Shares() types.ShareAccount {
	return k.shares
}

// GetStore returns the KVStore
func (k *Keeper) GetStore(ctx sdk.Context) storetypes.KVStore {
	return ctx.KVStore(k.storeKey)
}

// atomically runs fn against a cache of ctx and commits only when fn succeeds.
func (k *Keeper) atomically(ctx context.Context, fn func(sdk.Context) error) error {
	sdkCtx := sdk.UnwrapSDKContext(ctx)
	cacheCtx, write := sdkCtx.CacheContext()
	if err := fn(cacheCtx); err != nil {
		return err
	}
	write()
	return nil
}

// requireRole passes for the module authority or any holder of one of roles.
func (k *Keeper) requireRole(ctx context.Context, caller string, roles ...types.Role) error {
	if caller == k.authority {
		return nil
	}
	if lo.ContainsBy(roles, func(r types.Role) bool { return k.authz.HasRole(ctx, r, caller) }) {
		return nil
	}
	return errorsmod.Wrapf(types.ErrUnauthorized, "%s lacks role %v", caller, roles)
}

// ============ Params ============

// SetParams saves the module params
func (k *Keeper) SetParams(ctx sdk.Context, params types.Params) {
	bz, _ := json.Marshal(params)
	k.GetStore(ctx).Set(ParamsKey, bz)
}

// GetParams returns the module params
func (k *Keeper) GetParams(ctx sdk.Context) types.Params {
	bz := k.GetStore(ctx).Get(ParamsKey)
	if bz == nil {
		return types.DefaultParams()
	}
	var params types.Params
	if err := json.Unmarshal(bz, &params); err != nil {
		return types.DefaultParams()
	}
	if params.Roles == nil {
		params.Roles = types.RoleTable{}
	}
	return params
}

type paramsDirectory struct{ k *Keeper }

func (d paramsDirectory) IsApprovedAsset(ctx context.Context, denom string) bool {
	return lo.Contains(d.k.GetParams(sdk.UnwrapSDKContext(ctx)).ApprovedAssets, denom)
}

type paramsAuthorization struct{ k *Keeper }

func (a paramsAuthorization) HasRole(ctx context.Context, role types.Role, addr string) bool {
	return a.k.GetParams(sdk.UnwrapSDKContext(ctx)).Roles.HasRole(role, addr)
}

// ============ Pool Operations ============

// SetPoolConfig saves pool terms
func (k *Keeper) SetPoolConfig(ctx sdk.Context, cfg *types.PoolConfig) {
	bz, _ := json.Marshal(cfg)
	k.GetStore(ctx).Set(poolKey(PoolConfigKeyPrefix, cfg.PoolID), bz)
}

// GetPoolConfig retrieves pool terms
func (k *Keeper) GetPoolConfig(ctx sdk.Context, poolID string) *types.PoolConfig {
	bz := k.GetStore(ctx).Get(poolKey(PoolConfigKeyPrefix, poolID))
	if bz == nil {
		return nil
	}
	var cfg types.PoolConfig
	if err := json.Unmarshal(bz, &cfg); err != nil {
		return nil
	}
	return &cfg
}

// SetPoolState saves pool accounting
func (k *Keeper) SetPoolState(ctx sdk.Context, state *types.PoolState) {
	bz, _ := json.Marshal(state)
	k.GetStore(ctx).Set(poolKey(PoolStateKeyPrefix, state.PoolID), bz)
}

// GetPoolState retrieves pool accounting
func (k *Keeper) GetPoolState(ctx sdk.Context, poolID string) *types.PoolState {
	bz := k.GetStore(ctx).Get(poolKey(PoolStateKeyPrefix, poolID))
	if bz == nil {
		return nil
	}
	var state types.PoolState
	if err := json.Unmarshal(bz, &state); err != nil {
		return nil
	}
	return &state
}

// loadPool returns config and state of an existing pool
func (k *Keeper) loadPool(ctx sdk.Context, poolID string) (*types.PoolConfig, *types.PoolState, error) {
	cfg := k.GetPoolConfig(ctx, poolID)
	state := k.GetPoolState(ctx, poolID)
	if cfg == nil || state == nil {
		return nil, nil, errorsmod.Wrapf(types.ErrPoolNotFound, "pool %s", poolID)
	}
	return cfg, state, nil
}

// loadPoolFor returns a pool whose phase permits op
func (k *Keeper) loadPoolFor(ctx sdk.Context, poolID string, op types.Operation) (*types.PoolConfig, *types.PoolState, error) {
	cfg, state, err := k.loadPool(ctx, poolID)
	if err != nil {
		return nil, nil, err
	}
	if !state.Phase.Permits(op) {
		return nil, nil, errorsmod.Wrapf(types.ErrWrongPhase, "%s not allowed in %s", op, state.Phase)
	}
	return cfg, state, nil
}

// GetPool returns config and state together
func (k *Keeper) GetPool(ctx sdk.Context, poolID string) *types.Pool {
	cfg, state, err := k.loadPool(ctx, poolID)
	if err != nil {
		return nil
	}
	return &types.Pool{Config: *cfg, State: *state}
}

// GetAllPools returns all pools
func (k *Keeper) GetAllPools(ctx sdk.Context) []*types.Pool {
	iterator := storetypes.KVStorePrefixIterator(k.GetStore(ctx), PoolConfigKeyPrefix)
	defer iterator.Close()

	var pools []*types.Pool
	for ; iterator.Valid(); iterator.Next() {
		var cfg types.PoolConfig
		if err := json.Unmarshal(iterator.Value(), &cfg); err != nil {
			continue
		}
		state := k.GetPoolState(ctx, cfg.PoolID)
		if state == nil {
			continue
		}
		pools = append(pools, &types.Pool{Config: cfg, State: *state})
	}
	return pools
}

// ============ Holder Operations ============

// SetUserPoolData saves a holder record
func (k *Keeper) SetUserPoolData(ctx sdk.Context, data *types.UserPoolData) {
	bz, _ := json.Marshal(data)
	k.GetStore(ctx).Set(holderKey(UserDataKeyPrefix, data.PoolID, data.Holder), bz)
}

// GetUserPoolData returns a holder record, empty if the holder never deposited
func (k *Keeper) GetUserPoolData(ctx sdk.Context, poolID, holder string) *types.UserPoolData {
	bz := k.GetStore(ctx).Get(holderKey(UserDataKeyPrefix, poolID, holder))
	if bz == nil {
		return types.NewUserPoolData(poolID, holder)
	}
	var data types.UserPoolData
	if err := json.Unmarshal(bz, &data); err != nil {
		return types.NewUserPoolData(poolID, holder)
	}
	return &data
}

// GetPoolHolders returns every holder record of a pool
func (k *Keeper) GetPoolHolders(ctx sdk.Context, poolID string) []*types.UserPoolData {
	prefix := append(poolKey(UserDataKeyPrefix, poolID), keySeparator)
	return k.iterateHolders(ctx, prefix)
}

// GetAllUserPoolData returns every holder record
func (k *Keeper) GetAllUserPoolData(ctx sdk.Context) []*types.UserPoolData {
	return k.iterateHolders(ctx, UserDataKeyPrefix)
}

func (k *Keeper) iterateHolders(ctx sdk.Context, prefix []byte) []*types.UserPoolData {
	iterator := storetypes.KVStorePrefixIterator(k.GetStore(ctx), prefix)
	defer iterator.Close()

	var holders []*types.UserPoolData
	for ; iterator.Valid(); iterator.Next() {
		var data types.UserPoolData
		if err := json.Unmarshal(iterator.Value(), &data); err != nil {
			continue
		}
		holders = append(holders, &data)
	}
	return holders
}

// ============ Value Snapshots ============

func snapshotKey(poolID string, height int64) []byte {
	key := append(poolKey(SnapshotKeyPrefix, poolID), keySeparator)
	var h [8]byte
	binary.BigEndian.PutUint64(h[:], uint64(height))
	return append(key, h[:]...)
}

// SetValueSnapshot records a pool value snapshot
func (k *Keeper) SetValueSnapshot(ctx sdk.Context, snap *types.ValueSnapshot) {
	bz, _ := json.Marshal(snap)
	k.GetStore(ctx).Set(snapshotKey(snap.PoolID, snap.Height), bz)
}

// GetValueHistory returns a pool's snapshots in height order
func (k *Keeper) GetValueHistory(ctx sdk.Context, poolID string) []*types.ValueSnapshot {
	prefix := append(poolKey(SnapshotKeyPrefix, poolID), keySeparator)
	iterator := storetypes.KVStorePrefixIterator(k.GetStore(ctx), prefix)
	defer iterator.Close()

	var history []*types.ValueSnapshot
	for ; iterator.Valid(); iterator.Next() {
		var snap types.ValueSnapshot
		if err := json.Unmarshal(iterator.Value(), &snap); err != nil {
			continue
		}
		history = append(history, &snap)
	}
	return history
}
