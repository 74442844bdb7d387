package cli

import (
	"fmt"
	"strconv"

	"github.com/cosmos/cosmos-sdk/client"
	"github.com/spf13/cobra"

	"github.com/openalpha/termvault/pkg/apiclient"
	"github.com/openalpha/termvault/x/custody/types"
)

const FlagPending = "pending"

// GetTxCmd returns the transaction commands for the custody module
func GetTxCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:                        types.ModuleName,
		Short:                      "Custody ledger transaction commands",
		DisableFlagParsing:         true,
		SuggestionsMinimumDistance: 2,
		RunE:                       client.ValidateCmd,
	}

	cmd.AddCommand(
		CmdProposeTransfer(),
		CmdSignerAction("approve", "Approve a pending transfer"),
		CmdSignerAction("execute", "Execute a transfer that reached its threshold"),
		CmdSignerAction("revoke", "Withdraw the caller's approval"),
		CmdUpdateSigners(),
	)
	return cmd
}

// GetQueryCmd returns the query commands for the custody module
func GetQueryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:                        types.ModuleName,
		Short:                      "Querying commands for the custody module",
		DisableFlagParsing:         true,
		SuggestionsMinimumDistance: 2,
		RunE:                       client.ValidateCmd,
	}

	ledger := &cobra.Command{
		Use:   "ledger [ledger-id]",
		Short: "Query a custody ledger",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := apiclient.FromCmd(cmd)
			if err != nil {
				return err
			}
			l, err := c.GetLedger(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return apiclient.Print(cmd, l)
		},
	}
	apiclient.AddFlags(ledger)

	transfers := &cobra.Command{
		Use:   "transfers [ledger-id]",
		Short: "List the transfers of a ledger",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := apiclient.FromCmd(cmd)
			if err != nil {
				return err
			}
			pending, _ := cmd.Flags().GetBool(FlagPending)
			list, err := c.ListTransfers(cmd.Context(), args[0], pending)
			if err != nil {
				return err
			}
			return apiclient.Print(cmd, list)
		},
	}
	apiclient.AddFlags(transfers)
	transfers.Flags().Bool(FlagPending, false, "only unexecuted transfers")

	cmd.AddCommand(ledger, transfers)
	return cmd
}

// CmdProposeTransfer returns the command to propose an outgoing transfer
func CmdProposeTransfer() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "propose [ledger-id] [kind] [recipient] [amount]",
		Short: "Propose a transfer out of the ledger",
		Long:  fmt.Sprintf("Propose a transfer. Kind is one of %v.", types.AllTransferKinds),
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			caller, err := apiclient.Caller(cmd)
			if err != nil {
				return err
			}
			msg := &types.MsgProposeTransfer{
				Proposer:  caller,
				LedgerID:  args[0],
				Kind:      types.TransferKind(args[1]),
				Recipient: args[2],
				Amount:    args[3],
			}
			if err := msg.ValidateBasic(); err != nil {
				return err
			}

			c, err := apiclient.FromCmd(cmd)
			if err != nil {
				return err
			}
			resp, err := c.ProposeTransfer(cmd.Context(), msg)
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

// CmdSignerAction returns approve, execute or revoke for one transfer
func CmdSignerAction(action, short string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   action + " [ledger-id] [transfer-id]",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			signer, err := apiclient.Caller(cmd)
			if err != nil {
				return err
			}
			c, err := apiclient.FromCmd(cmd)
			if err != nil {
				return err
			}

			var resp interface{}
			switch action {
			case "approve":
				resp, err = c.ApproveTransfer(cmd.Context(), args[0], args[1], signer)
			case "execute":
				resp, err = c.ExecuteTransfer(cmd.Context(), args[0], args[1], signer)
			default:
				err = c.RevokeTransfer(cmd.Context(), args[0], args[1], signer)
				resp = map[string]bool{"revoked": err == nil}
			}
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

// CmdUpdateSigners returns the command to change the signer set
func CmdUpdateSigners() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "signers [ledger-id] [add|remove|threshold] [address|count]",
		Short: "Add or remove a signer, or change the required confirmations",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			caller, err := apiclient.Caller(cmd)
			if err != nil {
				return err
			}
			msg := &types.MsgUpdateSigners{Authority: caller, LedgerID: args[0]}
			switch args[1] {
			case "add":
				msg.Operation, msg.Signer = types.TypeMsgAddSigner, args[2]
			case "remove":
				msg.Operation, msg.Signer = types.TypeMsgRemoveSigner, args[2]
			case "threshold":
				n, err := strconv.ParseUint(args[2], 10, 32)
				if err != nil {
					return fmt.Errorf("invalid count: %v", err)
				}
				msg.Operation, msg.RequiredConfirmations = types.TypeMsgChangeRequiredConfirmations, uint32(n)
			default:
				return fmt.Errorf("unknown signer operation %q", args[1])
			}
			if err := msg.ValidateBasic(); err != nil {
				return err
			}

			c, err := apiclient.FromCmd(cmd)
			if err != nil {
				return err
			}
			resp, err := c.UpdateSigners(cmd.Context(), msg)
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
