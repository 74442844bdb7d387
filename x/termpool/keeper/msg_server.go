package keeper

import (
	"context"

	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/math"

	"github.com/openalpha/termvault/x/termpool/types"
)

// MsgServer defines the termpool MsgServer
type MsgServer struct {
	keeper *Keeper
}

// NewMsgServerImpl creates a new MsgServer instance
func NewMsgServerImpl(keeper *Keeper) *MsgServer {
	return &MsgServer{keeper: keeper}
}

func parseAmount(s string) (math.Int, error) {
	amount, ok := math.NewIntFromString(s)
	if !ok {
		return math.Int{}, errorsmod.Wrapf(types.ErrInvalidAmount, "%q is not an integer amount", s)
	}
	return amount, nil
}

// CreatePool handles MsgCreatePool
func (m *MsgServer) CreatePool(ctx context.Context, msg *types.MsgCreatePool) (*types.MsgCreatePoolResponse, error) {
	if err := msg.ValidateBasic(); err != nil {
		return nil, err
	}
	pool, err := m.keeper.CreatePool(ctx, msg.Creator, CreatePoolRequest{
		Config:                msg.Config,
		Signers:               msg.Signers,
		RequiredConfirmations: msg.RequiredConfirmations,
		LedgerAdmin:           msg.LedgerAdmin,
	})
	if err != nil {
		return nil, err
	}
	return &types.MsgCreatePoolResponse{PoolID: pool.Config.PoolID}, nil
}

// Deposit handles MsgDeposit
func (m *MsgServer) Deposit(ctx context.Context, msg *types.MsgDeposit) (*types.MsgDepositResponse, error) {
	if err := msg.ValidateBasic(); err != nil {
		return nil, err
	}
	amount, err := parseAmount(msg.Amount)
	if err != nil {
		return nil, err
	}
	shares, err := m.keeper.Deposit(ctx, msg.Sender, msg.PoolID, amount, msg.Receiver)
	if err != nil {
		return nil, err
	}
	return &types.MsgDepositResponse{Shares: shares.String()}, nil
}

func withdrawResponse(quote *types.WithdrawPreview) *types.MsgWithdrawResponse {
	return &types.MsgWithdrawResponse{
		SharesBurned: quote.Shares.String(),
		AssetsPaid:   quote.Net.String(),
		Penalty:      quote.Penalty.String(),
		CouponsPaid:  quote.Coupons.String(),
	}
}

// Withdraw handles MsgWithdraw
func (m *MsgServer) Withdraw(ctx context.Context, msg *types.MsgWithdraw) (*types.MsgWithdrawResponse, error) {
	if err := msg.ValidateBasic(); err != nil {
		return nil, err
	}
	assets, err := parseAmount(msg.Assets)
	if err != nil {
		return nil, err
	}
	quote, err := m.keeper.Withdraw(ctx, msg.Sender, msg.PoolID, assets, msg.Receiver, msg.Owner)
	if err != nil {
		return nil, err
	}
	return withdrawResponse(quote), nil
}

// Redeem handles MsgRedeem
func (m *MsgServer) Redeem(ctx context.Context, msg *types.MsgRedeem) (*types.MsgWithdrawResponse, error) {
	if err := msg.ValidateBasic(); err != nil {
		return nil, err
	}
	shares, err := parseAmount(msg.Shares)
	if err != nil {
		return nil, err
	}
	quote, err := m.keeper.Redeem(ctx, msg.Sender, msg.PoolID, shares, msg.Receiver, msg.Owner)
	if err != nil {
		return nil, err
	}
	return withdrawResponse(quote), nil
}

// CloseEpoch handles MsgCloseEpoch
func (m *MsgServer) CloseEpoch(ctx context.Context, msg *types.MsgCloseEpoch) (*types.MsgPoolActionResponse, error) {
	if err := msg.ValidateBasic(); err != nil {
		return nil, err
	}
	closeFn := m.keeper.CloseEpoch
	if msg.Force {
		closeFn = m.keeper.ForceCloseEpoch
	}
	phase, err := closeFn(ctx, msg.Caller, msg.PoolID)
	if err != nil {
		return nil, err
	}
	return &types.MsgPoolActionResponse{Phase: phase}, nil
}

// ProcessInvestment handles MsgProcessInvestment
func (m *MsgServer) ProcessInvestment(ctx context.Context, msg *types.MsgProcessInvestment) (*types.MsgPoolActionResponse, error) {
	if err := msg.ValidateBasic(); err != nil {
		return nil, err
	}
	actual, err := parseAmount(msg.ActualAmount)
	if err != nil {
		return nil, err
	}
	if err := m.keeper.ProcessInvestment(ctx, msg.Caller, msg.PoolID, actual, msg.ProofReference); err != nil {
		return nil, err
	}
	return &types.MsgPoolActionResponse{Phase: types.PhaseInvested, Amount: actual.String()}, nil
}

// WithdrawForInvestment handles MsgWithdrawForInvestment
func (m *MsgServer) WithdrawForInvestment(ctx context.Context, msg *types.MsgWithdrawForInvestment) (*types.MsgPoolActionResponse, error) {
	if err := msg.ValidateBasic(); err != nil {
		return nil, err
	}
	amount, err := parseAmount(msg.Amount)
	if err != nil {
		return nil, err
	}
	flagged, err := m.keeper.WithdrawForInvestment(ctx, msg.Caller, msg.PoolID, amount)
	if err != nil {
		return nil, err
	}
	return &types.MsgPoolActionResponse{Phase: types.PhasePendingInvestment, Amount: amount.String(), Flagged: flagged}, nil
}

// ProcessCouponPayment handles MsgProcessCouponPayment
func (m *MsgServer) ProcessCouponPayment(ctx context.Context, msg *types.MsgProcessCouponPayment) (*types.MsgPoolActionResponse, error) {
	if err := msg.ValidateBasic(); err != nil {
		return nil, err
	}
	amount, err := parseAmount(msg.Amount)
	if err != nil {
		return nil, err
	}
	if _, err := m.keeper.ProcessCouponPayment(ctx, msg.Caller, msg.PoolID, amount); err != nil {
		return nil, err
	}
	return &types.MsgPoolActionResponse{Phase: types.PhaseInvested, Amount: amount.String()}, nil
}

// DistributeCouponPayment handles MsgDistributeCouponPayment
func (m *MsgServer) DistributeCouponPayment(ctx context.Context, msg *types.MsgDistributeCouponPayment) (*types.MsgPoolActionResponse, error) {
	if err := msg.ValidateBasic(); err != nil {
		return nil, err
	}
	released, err := m.keeper.DistributeCouponPayment(ctx, msg.Caller, msg.PoolID)
	if err != nil {
		return nil, err
	}
	return &types.MsgPoolActionResponse{Phase: types.PhaseInvested, Amount: released.String()}, nil
}

// ClaimCoupon handles MsgClaimCoupon
func (m *MsgServer) ClaimCoupon(ctx context.Context, msg *types.MsgClaimCoupon) (*types.MsgClaimCouponResponse, error) {
	if err := msg.ValidateBasic(); err != nil {
		return nil, err
	}
	amount, err := m.keeper.ClaimCoupon(ctx, msg.Holder, msg.PoolID)
	if err != nil {
		return nil, err
	}
	return &types.MsgClaimCouponResponse{Amount: amount.String()}, nil
}

// ProcessMaturity handles MsgProcessMaturity
func (m *MsgServer) ProcessMaturity(ctx context.Context, msg *types.MsgProcessMaturity) (*types.MsgPoolActionResponse, error) {
	if err := msg.ValidateBasic(); err != nil {
		return nil, err
	}
	amount, err := parseAmount(msg.FinalAmount)
	if err != nil {
		return nil, err
	}
	if err := m.keeper.ProcessMaturity(ctx, msg.Caller, msg.PoolID, amount); err != nil {
		return nil, err
	}
	return &types.MsgPoolActionResponse{Phase: types.PhaseMatured, Amount: amount.String()}, nil
}

// EmergencyExit handles MsgEmergencyExit
func (m *MsgServer) EmergencyExit(ctx context.Context, msg *types.MsgEmergencyExit) (*types.MsgPoolActionResponse, error) {
	if err := msg.ValidateBasic(); err != nil {
		return nil, err
	}
	if err := m.keeper.EmergencyExit(ctx, msg.Caller, msg.PoolID); err != nil {
		return nil, err
	}
	return &types.MsgPoolActionResponse{Phase: types.PhaseEmergency}, nil
}

// SetSlippageTolerance handles MsgSetSlippageTolerance
func (m *MsgServer) SetSlippageTolerance(ctx context.Context, msg *types.MsgSetSlippageTolerance) (*types.MsgPoolActionResponse, error) {
	if err := msg.ValidateBasic(); err != nil {
		return nil, err
	}
	if err := m.keeper.SetSlippageTolerance(ctx, msg.Caller, msg.PoolID, msg.ToleranceBp); err != nil {
		return nil, err
	}
	return &types.MsgPoolActionResponse{}, nil
}

// ProvideLiquidity handles MsgProvideLiquidity
func (m *MsgServer) ProvideLiquidity(ctx context.Context, msg *types.MsgProvideLiquidity) (*types.MsgPoolActionResponse, error) {
	if err := msg.ValidateBasic(); err != nil {
		return nil, err
	}
	amount, err := parseAmount(msg.Amount)
	if err != nil {
		return nil, err
	}
	if err := m.keeper.ProvideLiquidity(ctx, msg.Caller, msg.PoolID, amount); err != nil {
		return nil, err
	}
	return &types.MsgPoolActionResponse{Phase: types.PhaseInvested, Amount: amount.String()}, nil
}
