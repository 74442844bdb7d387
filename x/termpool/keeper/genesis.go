package keeper

import (
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/openalpha/termvault/x/termpool/types"
)

// shareExporter is implemented by share ledgers kept in this module's store.
type shareExporter interface {
	AllBalances(ctx sdk.Context) []types.ShareBalance
}

// InitGenesis loads params, pools, holder records and store-kept shares
func (k *Keeper) InitGenesis(ctx sdk.Context, gs types.GenesisState) {
	k.SetParams(ctx, gs.Params)
	for i := range gs.Pools {
		k.SetPoolConfig(ctx, &gs.Pools[i].Config)
		k.SetPoolState(ctx, &gs.Pools[i].State)
	}
	for i := range gs.Holders {
		k.SetUserPoolData(ctx, &gs.Holders[i])
	}
	if _, ok := k.shares.(shareExporter); !ok {
		return
	}
	for _, s := range gs.Shares {
		if !s.Amount.IsPositive() {
			continue
		}
		if err := k.shares.Mint(ctx, s.PoolID, s.Holder, s.Amount); err != nil {
			panic(err)
		}
	}
}

// ExportGenesis dumps the module state
func (k *Keeper) ExportGenesis(ctx sdk.Context) *types.GenesisState {
	gs := types.DefaultGenesis()
	gs.Params = k.GetParams(ctx)
	for _, p := range k.GetAllPools(ctx) {
		gs.Pools = append(gs.Pools, *p)
	}
	for _, h := range k.GetAllUserPoolData(ctx) {
		gs.Holders = append(gs.Holders, *h)
	}
	if exporter, ok := k.shares.(shareExporter); ok {
		gs.Shares = append(gs.Shares, exporter.AllBalances(ctx)...)
	}
	return gs
}
