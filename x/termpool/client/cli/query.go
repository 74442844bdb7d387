package cli

import (
	"time"

	"github.com/cosmos/cosmos-sdk/client"
	"github.com/spf13/cobra"

	"github.com/openalpha/termvault/pkg/apiclient"
)

const (
	FlagOffset = "offset"
	FlagLimit  = "limit"
	FlagFrom   = "from-time"
)

// GetQueryCmd returns the cli query commands for the termpool module
func GetQueryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:                        "termpool",
		Short:                      "Querying commands for the termpool module",
		DisableFlagParsing:         true,
		SuggestionsMinimumDistance: 2,
		RunE:                       client.ValidateCmd,
	}

	cmd.AddCommand(
		CmdQueryPool(),
		CmdQueryPools(),
		CmdQueryPosition(),
		CmdQueryValue(),
		CmdQueryValueHistory(),
		CmdQueryWithdrawPreview(),
		CmdQueryCalendar(),
	)

	return cmd
}

// queryCmd wires the API flags around a query body
func queryCmd(use, short string, args cobra.PositionalArgs, run func(cmd *cobra.Command, c *apiclient.Client, args []string) (interface{}, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := apiclient.FromCmd(cmd)
			if err != nil {
				return err
			}
			out, err := run(cmd, c, args)
			if err != nil {
				return err
			}
			return apiclient.Print(cmd, out)
		},
	}
	apiclient.AddFlags(cmd)
	return cmd
}

// CmdQueryPool returns the command to query one pool
func CmdQueryPool() *cobra.Command {
	return queryCmd("pool [pool-id]", "Query a pool's terms and state", cobra.ExactArgs(1),
		func(cmd *cobra.Command, c *apiclient.Client, args []string) (interface{}, error) {
			return c.GetPool(cmd.Context(), args[0])
		})
}

// CmdQueryPools returns the command to list pools
func CmdQueryPools() *cobra.Command {
	cmd := queryCmd("pools", "List pools", cobra.NoArgs,
		func(cmd *cobra.Command, c *apiclient.Client, _ []string) (interface{}, error) {
			offset, _ := cmd.Flags().GetUint64(FlagOffset)
			limit, _ := cmd.Flags().GetUint64(FlagLimit)
			pools, total, err := c.ListPools(cmd.Context(), offset, limit)
			if err != nil {
				return nil, err
			}
			return map[string]interface{}{"pools": pools, "total": total}, nil
		})
	cmd.Flags().Uint64(FlagOffset, 0, "pagination offset")
	cmd.Flags().Uint64(FlagLimit, 50, "pagination limit")
	return cmd
}

// CmdQueryPosition returns the command to query a holder's position
func CmdQueryPosition() *cobra.Command {
	return queryCmd("position [pool-id] [holder]", "Query a holder's shares, coupons and penalty", cobra.ExactArgs(2),
		func(cmd *cobra.Command, c *apiclient.Client, args []string) (interface{}, error) {
			return c.GetPosition(cmd.Context(), args[0], args[1])
		})
}

// CmdQueryValue returns the command to query the current pool value
func CmdQueryValue() *cobra.Command {
	return queryCmd("value [pool-id]", "Query the current pool value", cobra.ExactArgs(1),
		func(cmd *cobra.Command, c *apiclient.Client, args []string) (interface{}, error) {
			return c.GetValue(cmd.Context(), args[0])
		})
}

// CmdQueryValueHistory returns the command to query periodic value snapshots
func CmdQueryValueHistory() *cobra.Command {
	return queryCmd("value-history [pool-id]", "Query recorded pool value snapshots", cobra.ExactArgs(1),
		func(cmd *cobra.Command, c *apiclient.Client, args []string) (interface{}, error) {
			return c.GetValueHistory(cmd.Context(), args[0])
		})
}

// CmdQueryWithdrawPreview returns the command to preview a withdrawal
func CmdQueryWithdrawPreview() *cobra.Command {
	return queryCmd("preview-withdraw [pool-id] [owner] [assets]", "Preview shares, penalty and payout of a withdrawal",
		cobra.ExactArgs(3),
		func(cmd *cobra.Command, c *apiclient.Client, args []string) (interface{}, error) {
			return c.PreviewWithdraw(cmd.Context(), args[0], args[1], args[2])
		})
}

// CmdQueryCalendar returns the command to list upcoming dated events
func CmdQueryCalendar() *cobra.Command {
	cmd := queryCmd("calendar", "List upcoming epoch ends, coupons and maturities", cobra.NoArgs,
		func(cmd *cobra.Command, c *apiclient.Client, _ []string) (interface{}, error) {
			from := time.Now()
			if unix, _ := cmd.Flags().GetInt64(FlagFrom); unix > 0 {
				from = time.Unix(unix, 0)
			}
			limit, _ := cmd.Flags().GetUint64(FlagLimit)
			return c.Calendar(cmd.Context(), from, int(limit))
		})
	cmd.Flags().Int64(FlagFrom, 0, "unix time to list from, defaults to now")
	cmd.Flags().Uint64(FlagLimit, 20, "maximum entries")
	return cmd
}
