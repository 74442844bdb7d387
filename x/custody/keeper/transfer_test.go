package keeper

import (
	"testing"

	"cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/stretchr/testify/require"

	"github.com/openalpha/termvault/x/custody/types"
)

func TestTransferAutoExecutesExactlyOnce(t *testing.T) {
	f := setupKeeper(t)
	f.newLedger(t, 10_000)
	ctx := f.ctx.WithEventManager(sdk.NewEventManager())

	transfer, err := f.keeper.ProposeTransfer(ctx, signer1, "pool-1", types.KindRefund, holder, math.NewInt(4_000), nil)
	require.NoError(t, err)
	require.Equal(t, uint32(1), transfer.Confirmations)
	require.Equal(t, math.NewInt(4_000), f.keeper.GetLedger(ctx, "pool-1").LockedBalance)

	transfer, err = f.keeper.ApproveTransfer(ctx, signer2, "pool-1", transfer.ID)
	require.NoError(t, err)
	require.True(t, transfer.Executed)
	require.Equal(t, uint32(2), transfer.Confirmations)
	require.Equal(t, math.NewInt(4_000), f.bank.Balance(accAddr(holder), testDenom))

	_, err = f.keeper.ApproveTransfer(ctx, signer3, "pool-1", transfer.ID)
	require.ErrorIs(t, err, types.ErrAlreadyExecuted)

	again, err := f.keeper.ExecuteTransfer(ctx, outsider, "pool-1", transfer.ID)
	require.NoError(t, err)
	require.True(t, again.Executed)

	require.Equal(t, 1, countEvents(ctx, types.EventTypeTransferExecuted))
	require.Equal(t, math.NewInt(4_000), f.bank.Balance(accAddr(holder), testDenom))

	ledger := f.keeper.GetLedger(ctx, "pool-1")
	require.Equal(t, math.NewInt(6_000), ledger.TotalBalance)
	require.True(t, ledger.LockedBalance.IsZero())
}

func TestProposeRejectsDuplicatesAndOutsiders(t *testing.T) {
	f := setupKeeper(t)
	f.newLedger(t, 10_000)

	transfer, err := f.keeper.ProposeTransfer(f.ctx, signer1, "pool-1", types.KindRefund, holder, math.NewInt(100), []byte("memo"))
	require.NoError(t, err)

	_, err = f.keeper.ProposeTransfer(f.ctx, signer1, "pool-1", types.KindRefund, holder, math.NewInt(100), []byte("memo"))
	require.ErrorIs(t, err, types.ErrTransferAlreadyExists)

	// a different payload is a different transfer
	other, err := f.keeper.ProposeTransfer(f.ctx, signer1, "pool-1", types.KindRefund, holder, math.NewInt(100), []byte("memo-2"))
	require.NoError(t, err)
	require.NotEqual(t, transfer.ID, other.ID)

	_, err = f.keeper.ProposeTransfer(f.ctx, outsider, "pool-1", types.KindRefund, holder, math.NewInt(100), nil)
	require.ErrorIs(t, err, types.ErrUnauthorized)

	_, err = f.keeper.ProposeTransfer(f.ctx, signer1, "pool-1", types.KindRefund, holder, math.NewInt(9_801), nil)
	require.ErrorIs(t, err, types.ErrInsufficientBalance)
}

func TestDuplicateApprovalRejected(t *testing.T) {
	f := setupKeeper(t)
	f.newLedger(t, 10_000)

	transfer, err := f.keeper.ProposeTransfer(f.ctx, signer1, "pool-1", types.KindToAgent, agent, math.NewInt(100), nil)
	require.NoError(t, err)

	_, err = f.keeper.ApproveTransfer(f.ctx, signer1, "pool-1", transfer.ID)
	require.ErrorIs(t, err, types.ErrDuplicateApproval)

	_, err = f.keeper.ApproveTransfer(f.ctx, outsider, "pool-1", transfer.ID)
	require.ErrorIs(t, err, types.ErrUnauthorized)

	_, err = f.keeper.ApproveTransfer(f.ctx, signer2, "pool-1", "unknown")
	require.ErrorIs(t, err, types.ErrTransferNotFound)

	stored := f.keeper.GetTransfer(f.ctx, "pool-1", transfer.ID)
	require.Equal(t, uint32(1), stored.Confirmations)
	require.False(t, stored.Executed)
}

func TestControllerProposalNeedsFullThreshold(t *testing.T) {
	f := setupKeeper(t)
	f.newLedger(t, 10_000)

	transfer, err := f.keeper.ProposeTransfer(f.ctx, controller, "pool-1", types.KindDiscountRelease, holder, math.NewInt(500), nil)
	require.NoError(t, err)
	require.Zero(t, transfer.Confirmations)

	_, err = f.keeper.ExecuteTransfer(f.ctx, controller, "pool-1", transfer.ID)
	require.ErrorIs(t, err, types.ErrThresholdNotMet)

	transfer, err = f.keeper.ApproveTransfer(f.ctx, signer1, "pool-1", transfer.ID)
	require.NoError(t, err)
	require.False(t, transfer.Executed)

	transfer, err = f.keeper.ApproveTransfer(f.ctx, signer3, "pool-1", transfer.ID)
	require.NoError(t, err)
	require.True(t, transfer.Executed)
	require.ElementsMatch(t, []string{signer1, signer3}, f.keeper.GetApprovers(f.ctx, "pool-1", transfer.ID))
}

func TestRevokeMakesTransferInert(t *testing.T) {
	f := setupKeeper(t)
	f.newLedger(t, 10_000)

	transfer, err := f.keeper.ProposeTransfer(f.ctx, signer1, "pool-1", types.KindRefund, holder, math.NewInt(2_500), nil)
	require.NoError(t, err)
	require.Equal(t, math.NewInt(7_500), f.keeper.GetLedger(f.ctx, "pool-1").Available())

	require.ErrorIs(t, f.keeper.RevokeTransfer(f.ctx, outsider, "pool-1", transfer.ID), types.ErrUnauthorized)
	require.NoError(t, f.keeper.RevokeTransfer(f.ctx, signer2, "pool-1", transfer.ID))
	require.Equal(t, math.NewInt(10_000), f.keeper.GetLedger(f.ctx, "pool-1").Available())

	_, err = f.keeper.ApproveTransfer(f.ctx, signer2, "pool-1", transfer.ID)
	require.ErrorIs(t, err, types.ErrTransferRevoked)
	_, err = f.keeper.ExecuteTransfer(f.ctx, signer2, "pool-1", transfer.ID)
	require.ErrorIs(t, err, types.ErrTransferRevoked)
	require.ErrorIs(t, f.keeper.RevokeTransfer(f.ctx, signer1, "pool-1", transfer.ID), types.ErrTransferRevoked)
}

func TestFailedAutoExecutionKeepsApproval(t *testing.T) {
	f := setupKeeper(t)
	f.newLedger(t, 10_000)

	transfer, err := f.keeper.ProposeTransfer(f.ctx, signer1, "pool-1", types.KindToAgent, agent, math.NewInt(1_000), nil)
	require.NoError(t, err)

	f.bank.fail = true
	ctx := f.ctx.WithEventManager(sdk.NewEventManager())
	transfer, err = f.keeper.ApproveTransfer(ctx, signer2, "pool-1", transfer.ID)
	require.NoError(t, err)
	require.False(t, transfer.Executed)
	require.Equal(t, uint32(2), transfer.Confirmations)
	require.True(t, hasEvent(ctx, types.EventTypeTransferExecutionFailed))
	require.Equal(t, math.NewInt(10_000), f.keeper.GetLedger(f.ctx, "pool-1").TotalBalance)

	// threshold reached: revocation is no longer possible
	require.ErrorIs(t, f.keeper.RevokeTransfer(f.ctx, signer3, "pool-1", transfer.ID), types.ErrThresholdReached)

	f.bank.fail = false
	transfer, err = f.keeper.ExecuteTransfer(f.ctx, outsider, "pool-1", transfer.ID)
	require.NoError(t, err)
	require.True(t, transfer.Executed)
	require.Equal(t, math.NewInt(1_000), f.bank.Balance(accAddr(agent), testDenom))
}

func TestInflowTransferPullsFromCounterparty(t *testing.T) {
	f := setupKeeper(t)
	f.newLedger(t, 0)
	f.bank.Fund(accAddr(agent), sdk.NewCoins(sdk.NewInt64Coin(testDenom, 5_000)))

	transfer, err := f.keeper.ProposeTransfer(f.ctx, agent, "pool-1", types.KindFromAgent, agent, math.NewInt(5_000), nil)
	require.NoError(t, err)
	require.Zero(t, transfer.Confirmations)

	_, err = f.keeper.ApproveTransfer(f.ctx, signer1, "pool-1", transfer.ID)
	require.NoError(t, err)
	transfer, err = f.keeper.ApproveTransfer(f.ctx, signer2, "pool-1", transfer.ID)
	require.NoError(t, err)
	require.True(t, transfer.Executed)

	require.True(t, f.bank.Balance(accAddr(agent), testDenom).IsZero())
	require.Equal(t, math.NewInt(5_000), f.keeper.GetLedger(f.ctx, "pool-1").TotalBalance)

	// an outsider cannot open an inflow drawn on someone else's account
	_, err = f.keeper.ProposeTransfer(f.ctx, outsider, "pool-1", types.KindFromAgent, agent, math.NewInt(1), nil)
	require.ErrorIs(t, err, types.ErrUnauthorized)
}

func TestSignerGovernance(t *testing.T) {
	f := setupKeeper(t)
	f.newLedger(t, 0)

	_, err := f.keeper.RemoveSigner(f.ctx, outsider, "pool-1", signer3)
	require.ErrorIs(t, err, types.ErrUnauthorized)

	// three signers, threshold two: removing one leaves two, which is not above the threshold
	_, err = f.keeper.RemoveSigner(f.ctx, admin, "pool-1", signer3)
	require.ErrorIs(t, err, types.ErrInvalidSignerSet)

	ledger, err := f.keeper.AddSigner(f.ctx, admin, "pool-1", outsider)
	require.NoError(t, err)
	require.Len(t, ledger.Signers, 4)

	_, err = f.keeper.AddSigner(f.ctx, admin, "pool-1", outsider)
	require.ErrorIs(t, err, types.ErrInvalidSignerSet)

	ledger, err = f.keeper.RemoveSigner(f.ctx, admin, "pool-1", signer3)
	require.NoError(t, err)
	require.NotContains(t, ledger.Signers, signer3)

	_, err = f.keeper.ChangeRequiredConfirmations(f.ctx, admin, "pool-1", 4)
	require.ErrorIs(t, err, types.ErrInvalidSignerSet)
	_, err = f.keeper.ChangeRequiredConfirmations(f.ctx, admin, "pool-1", 1)
	require.ErrorIs(t, err, types.ErrInvalidSignerSet)

	ledger, err = f.keeper.ChangeRequiredConfirmations(f.ctx, admin, "pool-1", 3)
	require.NoError(t, err)
	require.Equal(t, uint32(3), ledger.RequiredConfirmations)
}

func TestGenesisRoundTrip(t *testing.T) {
	f := setupKeeper(t)
	f.newLedger(t, 10_000)
	transfer, err := f.keeper.ProposeTransfer(f.ctx, signer1, "pool-1", types.KindRefund, holder, math.NewInt(100), nil)
	require.NoError(t, err)

	exported := f.keeper.ExportGenesis(f.ctx)
	require.NoError(t, exported.Validate())

	g := setupKeeper(t)
	g.keeper.InitGenesis(g.ctx, *exported)
	require.Equal(t, f.keeper.GetLedger(f.ctx, "pool-1"), g.keeper.GetLedger(g.ctx, "pool-1"))
	require.True(t, g.keeper.HasApproved(g.ctx, "pool-1", transfer.ID, signer1))
}
