package keeper

import (
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/openalpha/termvault/x/custody/types"
)

// InitGenesis loads ledgers, deposits, transfers and approvals
func (k *Keeper) InitGenesis(ctx sdk.Context, gs types.GenesisState) {
	for i := range gs.Ledgers {
		k.SetLedger(ctx, &gs.Ledgers[i])
	}
	for i := range gs.Deposits {
		k.SetHolderDeposit(ctx, &gs.Deposits[i])
	}
	for i := range gs.Transfers {
		k.SetTransfer(ctx, &gs.Transfers[i])
	}
	for _, a := range gs.Approvals {
		k.setApproval(ctx, a.LedgerID, a.TransferID, a.Signer)
	}
}

// ExportGenesis dumps the module state
func (k *Keeper) ExportGenesis(ctx sdk.Context) *types.GenesisState {
	gs := types.DefaultGenesis()
	for _, l := range k.GetAllLedgers(ctx) {
		gs.Ledgers = append(gs.Ledgers, *l)
	}
	for _, d := range k.GetAllHolderDeposits(ctx) {
		gs.Deposits = append(gs.Deposits, *d)
	}
	for _, t := range k.GetAllTransfers(ctx) {
		gs.Transfers = append(gs.Transfers, *t)
	}
	gs.Approvals = append(gs.Approvals, k.GetAllApprovals(ctx)...)
	return gs
}
