package keeper

import (
	"strconv"
	"time"

	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/openalpha/termvault/x/termpool/types"
)

// EndBlocker records pool value snapshots every SnapshotInterval blocks.
// It never changes pool phases or balances.
func (k *Keeper) EndBlocker(ctx sdk.Context) error {
	params := k.GetParams(ctx)
	if params.SnapshotInterval <= 0 || ctx.BlockHeight()%params.SnapshotInterval != 0 {
		return nil
	}

	start := time.Now()
	recorded := k.RecordValueSnapshots(ctx)

	k.logger.Debug("TermPool EndBlocker completed",
		"block", ctx.BlockHeight(),
		"snapshots", recorded,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	ctx.EventManager().EmitEvent(
		sdk.NewEvent(
			types.EventTypeEndBlock,
			sdk.NewAttribute("block_height", strconv.FormatInt(ctx.BlockHeight(), 10)),
			sdk.NewAttribute("snapshots", strconv.Itoa(recorded)),
		),
	)
	return nil
}

// RecordValueSnapshots stores the current value of every pool that still
// holds funds and returns how many were written.
func (k *Keeper) RecordValueSnapshots(ctx sdk.Context) int {
	now := ctx.BlockTime().Unix()
	recorded := 0
	for _, pool := range k.GetAllPools(ctx) {
		value, err := types.PoolValue(&pool.Config, &pool.State, now)
		if err != nil {
			k.logger.Error("Pool value failed", "pool_id", pool.Config.PoolID, "error", err)
			continue
		}
		if value.IsZero() && !pool.State.Phase.Active() {
			continue
		}
		k.SetValueSnapshot(ctx, &types.ValueSnapshot{
			PoolID:    pool.Config.PoolID,
			Height:    ctx.BlockHeight(),
			Timestamp: now,
			Phase:     pool.State.Phase,
			Value:     value,
		})
		recorded++
	}
	return recorded
}
