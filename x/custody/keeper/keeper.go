package keeper

import (
	"context"
	"encoding/json"

	"cosmossdk.io/log"
	"cosmossdk.io/math"
	storetypes "cosmossdk.io/store/types"
	"github.com/cosmos/cosmos-sdk/codec"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/openalpha/termvault/x/custody/types"
)

// Store key prefixes
var (
	LedgerKeyPrefix   = []byte{0x01}
	DepositKeyPrefix  = []byte{0x02}
	TransferKeyPrefix = []byte{0x03}
	ApprovalKeyPrefix = []byte{0x04}
)

// keySeparator splits variable-length key segments.
const keySeparator = byte(0x00)

func compositeKey(prefix []byte, parts ...string) []byte {
	key := append([]byte{}, prefix...)
	for i, p := range parts {
		if i > 0 {
			key = append(key, keySeparator)
		}
		key = append(key, p...)
	}
	return key
}

// Keeper manages custody ledgers and their multi-signer transfers
type Keeper struct {
	cdc        codec.BinaryCodec
	storeKey   storetypes.StoreKey
	bankKeeper types.BankKeeper
	phases     types.PhaseReader
	logger     log.Logger
	authority  string
}

// NewKeeper creates a new custody keeper
func NewKeeper(
	cdc codec.BinaryCodec,
	storeKey storetypes.StoreKey,
	bankKeeper types.BankKeeper,
	authority string,
	logger log.Logger,
) *Keeper {
	return &Keeper{
		cdc:        cdc,
		storeKey:   storeKey,
		bankKeeper: bankKeeper,
		authority:  authority,
		logger:     logger.With("module", "x/custody"),
	}
}

// SetPhaseReader wires the lifecycle that answers investment-window queries.
// It is set after construction because the lifecycle keeper depends on custody.
func (k *Keeper) SetPhaseReader(phases types.PhaseReader) {
	k.phases = phases
}

// Logger returns the module logger
func (k *Keeper) Logger() log.Logger {
	return k.logger
}

// GetAuthority returns the governance authority address
func (k *Keeper) GetAuthority() string {
	return k.authority
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

// ============ Ledger Operations ============

// SetLedger saves a ledger to the store
func (k *Keeper) SetLedger(ctx sdk.Context, ledger *types.Ledger) {
	bz, _ := json.Marshal(ledger)
	k.GetStore(ctx).Set(compositeKey(LedgerKeyPrefix, ledger.LedgerID), bz)
}

// GetLedger retrieves a ledger from the store
func (k *Keeper) GetLedger(ctx sdk.Context, ledgerID string) *types.Ledger {
	bz := k.GetStore(ctx).Get(compositeKey(LedgerKeyPrefix, ledgerID))
	if bz == nil {
		return nil
	}
	var ledger types.Ledger
	if err := json.Unmarshal(bz, &ledger); err != nil {
		return nil
	}
	return &ledger
}

// GetAllLedgers returns all ledgers
func (k *Keeper) GetAllLedgers(ctx sdk.Context) []*types.Ledger {
	iterator := storetypes.KVStorePrefixIterator(k.GetStore(ctx), LedgerKeyPrefix)
	defer iterator.Close()

	var ledgers []*types.Ledger
	for ; iterator.Valid(); iterator.Next() {
		var ledger types.Ledger
		if err := json.Unmarshal(iterator.Value(), &ledger); err != nil {
			continue
		}
		ledgers = append(ledgers, &ledger)
	}
	return ledgers
}

// AvailableBalance returns the unlocked balance of a ledger
func (k *Keeper) AvailableBalance(ctx sdk.Context, ledgerID string) (math.Int, error) {
	ledger := k.GetLedger(ctx, ledgerID)
	if ledger == nil {
		return math.ZeroInt(), types.ErrLedgerNotFound
	}
	return ledger.Available(), nil
}

// ============ Holder Deposit Operations ============

// SetHolderDeposit saves a holder's cumulative deposit
func (k *Keeper) SetHolderDeposit(ctx sdk.Context, deposit *types.HolderDeposit) {
	bz, _ := json.Marshal(deposit)
	k.GetStore(ctx).Set(compositeKey(DepositKeyPrefix, deposit.LedgerID, deposit.Holder), bz)
}

// GetHolderDeposit returns a holder's cumulative deposit, zero if none
func (k *Keeper) GetHolderDeposit(ctx sdk.Context, ledgerID, holder string) *types.HolderDeposit {
	bz := k.GetStore(ctx).Get(compositeKey(DepositKeyPrefix, ledgerID, holder))
	if bz == nil {
		return newHolderDeposit(ledgerID, holder)
	}
	var deposit types.HolderDeposit
	if err := json.Unmarshal(bz, &deposit); err != nil {
		return newHolderDeposit(ledgerID, holder)
	}
	return &deposit
}

// GetAllHolderDeposits returns every holder deposit record
func (k *Keeper) GetAllHolderDeposits(ctx sdk.Context) []*types.HolderDeposit {
	iterator := storetypes.KVStorePrefixIterator(k.GetStore(ctx), DepositKeyPrefix)
	defer iterator.Close()

	var deposits []*types.HolderDeposit
	for ; iterator.Valid(); iterator.Next() {
		var deposit types.HolderDeposit
		if err := json.Unmarshal(iterator.Value(), &deposit); err != nil {
			continue
		}
		deposits = append(deposits, &deposit)
	}
	return deposits
}

// ============ Transfer Operations ============

// SetTransfer saves a transfer to the store
func (k *Keeper) SetTransfer(ctx sdk.Context, transfer *types.Transfer) {
	bz, _ := json.Marshal(transfer)
	k.GetStore(ctx).Set(compositeKey(TransferKeyPrefix, transfer.LedgerID, transfer.ID), bz)
}

// GetTransfer retrieves a transfer from the store
func (k *Keeper) GetTransfer(ctx sdk.Context, ledgerID, transferID string) *types.Transfer {
	bz := k.GetStore(ctx).Get(compositeKey(TransferKeyPrefix, ledgerID, transferID))
	if bz == nil {
		return nil
	}
	var transfer types.Transfer
	if err := json.Unmarshal(bz, &transfer); err != nil {
		return nil
	}
	return &transfer
}

// GetTransfers returns all transfers of a ledger
func (k *Keeper) GetTransfers(ctx sdk.Context, ledgerID string) []*types.Transfer {
	prefix := append(compositeKey(TransferKeyPrefix, ledgerID), keySeparator)
	return k.iterateTransfers(ctx, prefix)
}

// GetAllTransfers returns every transfer in the store
func (k *Keeper) GetAllTransfers(ctx sdk.Context) []*types.Transfer {
	return k.iterateTransfers(ctx, TransferKeyPrefix)
}

func (k *Keeper) iterateTransfers(ctx sdk.Context, prefix []byte) []*types.Transfer {
	iterator := storetypes.KVStorePrefixIterator(k.GetStore(ctx), prefix)
	defer iterator.Close()

	var transfers []*types.Transfer
	for ; iterator.Valid(); iterator.Next() {
		var transfer types.Transfer
		if err := json.Unmarshal(iterator.Value(), &transfer); err != nil {
			continue
		}
		transfers = append(transfers, &transfer)
	}
	return transfers
}

// ============ Approval Operations ============

func (k *Keeper) setApproval(ctx sdk.Context, ledgerID, transferID, signer string) {
	k.GetStore(ctx).Set(compositeKey(ApprovalKeyPrefix, ledgerID, transferID, signer), []byte{0x01})
}

// HasApproved reports whether signer approved a transfer
func (k *Keeper) HasApproved(ctx sdk.Context, ledgerID, transferID, signer string) bool {
	return k.GetStore(ctx).Has(compositeKey(ApprovalKeyPrefix, ledgerID, transferID, signer))
}

// GetApprovers returns the signers that approved a transfer
func (k *Keeper) GetApprovers(ctx sdk.Context, ledgerID, transferID string) []string {
	prefix := append(compositeKey(ApprovalKeyPrefix, ledgerID, transferID), keySeparator)
	iterator := storetypes.KVStorePrefixIterator(k.GetStore(ctx), prefix)
	defer iterator.Close()

	var signers []string
	for ; iterator.Valid(); iterator.Next() {
		signers = append(signers, string(iterator.Key()[len(prefix):]))
	}
	return signers
}

// GetAllApprovals returns every approval record
func (k *Keeper) GetAllApprovals(ctx sdk.Context) []types.Approval {
	var approvals []types.Approval
	for _, t := range k.GetAllTransfers(ctx) {
		for _, signer := range k.GetApprovers(ctx, t.LedgerID, t.ID) {
			approvals = append(approvals, types.Approval{LedgerID: t.LedgerID, TransferID: t.ID, Signer: signer})
		}
	}
	return approvals
}
