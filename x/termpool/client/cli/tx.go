package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/cosmos/cosmos-sdk/client"
	"github.com/spf13/cobra"

	"github.com/openalpha/termvault/api/types"
	"github.com/openalpha/termvault/pkg/apiclient"
)

const (
	FlagReceiver       = "receiver"
	FlagOwner          = "owner"
	FlagForce          = "force"
	FlagProofReference = "proof"
)

// GetTxCmd returns the transaction commands for the termpool module
func GetTxCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:                        "termpool",
		Short:                      "Term pool transaction commands",
		DisableFlagParsing:         true,
		SuggestionsMinimumDistance: 2,
		RunE:                       client.ValidateCmd,
	}

	cmd.AddCommand(
		CmdCreatePool(),
		CmdDeposit(),
		CmdWithdraw(),
		CmdRedeem(),
		CmdClaimCoupon(),
		CmdCloseEpoch(),
		CmdProcessInvestment(),
		CmdWithdrawForInvestment(),
		CmdProcessCoupon(),
		CmdDistributeCoupons(),
		CmdProcessMaturity(),
		CmdEmergencyExit(),
		CmdSetSlippage(),
		CmdProvideLiquidity(),
	)

	return cmd
}

// CmdCreatePool returns the command to create a pool from a JSON request file
func CmdCreatePool() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create-pool [request.json]",
		Short: "Create a term pool and its custody ledger",
		Long: `Create a term pool. The file holds the pool config, the custody signers and
the required confirmations, as accepted by POST /v1/pools.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var req types.CreatePoolRequest
			if err := json.Unmarshal(raw, &req); err != nil {
				return fmt.Errorf("invalid request file: %w", err)
			}
			if caller, _ := cmd.Flags().GetString(apiclient.FlagCaller); caller != "" {
				req.Creator = caller
			}

			c, err := apiclient.FromCmd(cmd)
			if err != nil {
				return err
			}
			view, err := c.CreatePool(cmd.Context(), &req)
			if err != nil {
				return err
			}
			return apiclient.Print(cmd, view)
		},
	}

	apiclient.AddFlags(cmd)
	cmd.Flags().String(apiclient.FlagCaller, "", "creator address, overrides the file")
	return cmd
}

// amountCmd builds deposit-like commands: [pool-id] [amount] with a caller
func amountCmd(use, short string, withAmount bool, run func(cmd *cobra.Command, c *apiclient.Client, poolID string, req *types.AmountRequest) (interface{}, error)) *cobra.Command {
	args := cobra.ExactArgs(1)
	if withAmount {
		args = cobra.ExactArgs(2)
	}
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args,
		RunE: func(cmd *cobra.Command, args []string) error {
			caller, err := apiclient.Caller(cmd)
			if err != nil {
				return err
			}
			req := &types.AmountRequest{Caller: caller}
			if withAmount {
				req.Amount = args[1]
			}
			if cmd.Flags().Lookup(FlagReceiver) != nil {
				req.Receiver, _ = cmd.Flags().GetString(FlagReceiver)
				req.Owner, _ = cmd.Flags().GetString(FlagOwner)
			}

			c, err := apiclient.FromCmd(cmd)
			if err != nil {
				return err
			}
			resp, err := run(cmd, c, args[0], req)
			if err != nil {
				return err
			}
			return apiclient.Print(cmd, resp)
		},
	}

	apiclient.AddFlags(cmd)
	apiclient.AddCallerFlag(cmd)
	return cmd
}

func addReceiverFlags(cmd *cobra.Command) *cobra.Command {
	cmd.Flags().String(FlagReceiver, "", "address receiving the assets, defaults to the caller")
	cmd.Flags().String(FlagOwner, "", "share owner, defaults to the caller")
	return cmd
}

// CmdDeposit returns the command to deposit assets into a funding pool
func CmdDeposit() *cobra.Command {
	return addReceiverFlags(amountCmd("deposit [pool-id] [assets]", "Deposit assets and mint pool shares", true,
		func(cmd *cobra.Command, c *apiclient.Client, poolID string, req *types.AmountRequest) (interface{}, error) {
			return c.Deposit(cmd.Context(), poolID, req)
		}))
}

// CmdWithdraw returns the command to withdraw an amount of assets
func CmdWithdraw() *cobra.Command {
	return addReceiverFlags(amountCmd("withdraw [pool-id] [assets]", "Withdraw assets by burning shares", true,
		func(cmd *cobra.Command, c *apiclient.Client, poolID string, req *types.AmountRequest) (interface{}, error) {
			return c.Withdraw(cmd.Context(), poolID, req)
		}))
}

// CmdRedeem returns the command to redeem a number of shares
func CmdRedeem() *cobra.Command {
	return addReceiverFlags(amountCmd("redeem [pool-id] [shares]", "Redeem shares for assets", true,
		func(cmd *cobra.Command, c *apiclient.Client, poolID string, req *types.AmountRequest) (interface{}, error) {
			return c.Redeem(cmd.Context(), poolID, req)
		}))
}

// CmdClaimCoupon returns the command to claim accrued coupons
func CmdClaimCoupon() *cobra.Command {
	return amountCmd("claim [pool-id]", "Claim the caller's accrued coupons", false,
		func(cmd *cobra.Command, c *apiclient.Client, poolID string, req *types.AmountRequest) (interface{}, error) {
			return c.ClaimCoupon(cmd.Context(), poolID, req.Caller)
		})
}

// actionCmd builds an operator action command. Extra positional args are
// handed to fill before the request is sent.
func actionCmd(use, short, action string, nargs int, fill func(cmd *cobra.Command, args []string, req *types.ActionRequest) error) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1 + nargs),
		RunE: func(cmd *cobra.Command, args []string) error {
			caller, err := apiclient.Caller(cmd)
			if err != nil {
				return err
			}
			req := &types.ActionRequest{Caller: caller}
			if fill != nil {
				if err := fill(cmd, args[1:], req); err != nil {
					return err
				}
			}

			c, err := apiclient.FromCmd(cmd)
			if err != nil {
				return err
			}
			resp, err := c.PoolAction(cmd.Context(), args[0], action, req)
			if err != nil {
				return err
			}
			return apiclient.Print(cmd, resp)
		},
	}

	apiclient.AddFlags(cmd)
	apiclient.AddCallerFlag(cmd)
	return cmd
}

func amountArg(_ *cobra.Command, args []string, req *types.ActionRequest) error {
	req.Amount = args[0]
	return nil
}

// CmdCloseEpoch returns the command to close a pool's funding epoch
func CmdCloseEpoch() *cobra.Command {
	cmd := actionCmd("close-epoch [pool-id]", "Close the funding epoch", types.ActionCloseEpoch, 0,
		func(cmd *cobra.Command, _ []string, req *types.ActionRequest) error {
			req.Force, _ = cmd.Flags().GetBool(FlagForce)
			return nil
		})
	cmd.Flags().Bool(FlagForce, false, "close before the epoch end (operator only)")
	return cmd
}

// CmdProcessInvestment returns the command to confirm the off-chain purchase
func CmdProcessInvestment() *cobra.Command {
	cmd := actionCmd("invest [pool-id] [amount]", "Record the investment confirmation", types.ActionProcessInvestment, 1,
		func(cmd *cobra.Command, args []string, req *types.ActionRequest) error {
			req.Amount = args[0]
			req.ProofReference, _ = cmd.Flags().GetString(FlagProofReference)
			return nil
		})
	cmd.Flags().String(FlagProofReference, "", "reference of the off-chain purchase proof")
	return cmd
}

// CmdWithdrawForInvestment returns the command to release funds to the agent
func CmdWithdrawForInvestment() *cobra.Command {
	return actionCmd("withdraw-for-investment [pool-id] [amount]", "Propose a custody release to the investment agent",
		types.ActionWithdrawForInvestment, 1, amountArg)
}

// CmdProcessCoupon returns the command to record a received coupon payment
func CmdProcessCoupon() *cobra.Command {
	return actionCmd("coupon [pool-id] [amount]", "Record a coupon payment from the agent",
		types.ActionProcessCoupon, 1, amountArg)
}

// CmdDistributeCoupons returns the command to make received coupons claimable
func CmdDistributeCoupons() *cobra.Command {
	return actionCmd("distribute [pool-id]", "Distribute received coupons to holders",
		types.ActionDistributeCoupons, 0, nil)
}

// CmdProcessMaturity returns the command to settle a matured pool
func CmdProcessMaturity() *cobra.Command {
	return actionCmd("mature [pool-id] [amount]", "Record the maturity payout and settle the pool",
		types.ActionProcessMaturity, 1, amountArg)
}

// CmdEmergencyExit returns the command to move a pool into emergency mode
func CmdEmergencyExit() *cobra.Command {
	return actionCmd("emergency-exit [pool-id]", "Halt the pool and open pro-rata exits",
		types.ActionEmergencyExit, 0, nil)
}

// CmdSetSlippage returns the command to change the slippage tolerance
func CmdSetSlippage() *cobra.Command {
	return actionCmd("slippage [pool-id] [tolerance-bp]", "Set the withdrawal slippage tolerance in basis points",
		types.ActionSetSlippage, 1,
		func(_ *cobra.Command, args []string, req *types.ActionRequest) error {
			bp, err := strconv.ParseUint(args[0], 10, 32)
			if err != nil {
				return fmt.Errorf("invalid tolerance: %v", err)
			}
			req.ToleranceBp = uint32(bp)
			return nil
		})
}

// CmdProvideLiquidity returns the command to add liquidity from the agent
func CmdProvideLiquidity() *cobra.Command {
	return actionCmd("liquidity [pool-id] [amount]", "Provide withdrawal liquidity",
		types.ActionProvideLiquidity, 1, amountArg)
}
