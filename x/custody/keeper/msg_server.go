package keeper

import (
	"context"

	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/math"

	"github.com/openalpha/termvault/x/custody/types"
)

// MsgServer defines the custody MsgServer
type MsgServer struct {
	keeper *Keeper
}

// NewMsgServerImpl creates a new MsgServer instance
func NewMsgServerImpl(keeper *Keeper) *MsgServer {
	return &MsgServer{keeper: keeper}
}

// ProposeTransfer handles MsgProposeTransfer
func (m *MsgServer) ProposeTransfer(ctx context.Context, msg *types.MsgProposeTransfer) (*types.MsgProposeTransferResponse, error) {
	if err := msg.ValidateBasic(); err != nil {
		return nil, err
	}
	amount, ok := math.NewIntFromString(msg.Amount)
	if !ok {
		return nil, errorsmod.Wrapf(types.ErrInvalidAmount, "%q", msg.Amount)
	}

	transfer, err := m.keeper.ProposeTransfer(ctx, msg.Proposer, msg.LedgerID, msg.Kind, msg.Recipient, amount, msg.Payload)
	if err != nil {
		return nil, err
	}

	return &types.MsgProposeTransferResponse{
		TransferID:    transfer.ID,
		Confirmations: transfer.Confirmations,
		Executed:      transfer.Executed,
	}, nil
}

// ApproveTransfer handles MsgApproveTransfer
func (m *MsgServer) ApproveTransfer(ctx context.Context, msg *types.MsgApproveTransfer) (*types.MsgApproveTransferResponse, error) {
	if err := msg.ValidateBasic(); err != nil {
		return nil, err
	}
	transfer, err := m.keeper.ApproveTransfer(ctx, msg.Signer, msg.LedgerID, msg.TransferID)
	if err != nil {
		return nil, err
	}
	return &types.MsgApproveTransferResponse{
		Confirmations: transfer.Confirmations,
		Executed:      transfer.Executed,
	}, nil
}

// ExecuteTransfer handles MsgExecuteTransfer
func (m *MsgServer) ExecuteTransfer(ctx context.Context, msg *types.MsgExecuteTransfer) (*types.MsgApproveTransferResponse, error) {
	if err := msg.ValidateBasic(); err != nil {
		return nil, err
	}
	transfer, err := m.keeper.ExecuteTransfer(ctx, msg.Caller, msg.LedgerID, msg.TransferID)
	if err != nil {
		return nil, err
	}
	return &types.MsgApproveTransferResponse{
		Confirmations: transfer.Confirmations,
		Executed:      transfer.Executed,
	}, nil
}

// RevokeTransfer handles MsgRevokeTransfer
func (m *MsgServer) RevokeTransfer(ctx context.Context, msg *types.MsgRevokeTransfer) error {
	if err := msg.ValidateBasic(); err != nil {
		return err
	}
	return m.keeper.RevokeTransfer(ctx, msg.Signer, msg.LedgerID, msg.TransferID)
}

// UpdateSigners handles MsgUpdateSigners
func (m *MsgServer) UpdateSigners(ctx context.Context, msg *types.MsgUpdateSigners) (*types.MsgUpdateSignersResponse, error) {
	if err := msg.ValidateBasic(); err != nil {
		return nil, err
	}

	var (
		ledger *types.Ledger
		err    error
	)
	switch msg.Operation {
	case types.TypeMsgAddSigner:
		ledger, err = m.keeper.AddSigner(ctx, msg.Authority, msg.LedgerID, msg.Signer)
	case types.TypeMsgRemoveSigner:
		ledger, err = m.keeper.RemoveSigner(ctx, msg.Authority, msg.LedgerID, msg.Signer)
	default:
		ledger, err = m.keeper.ChangeRequiredConfirmations(ctx, msg.Authority, msg.LedgerID, msg.RequiredConfirmations)
	}
	if err != nil {
		return nil, err
	}

	return &types.MsgUpdateSignersResponse{
		Signers:               ledger.Signers,
		RequiredConfirmations: ledger.RequiredConfirmations,
	}, nil
}
