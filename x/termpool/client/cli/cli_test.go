package cli_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"cosmossdk.io/log"
	"cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openalpha/termvault/api"
	"github.com/openalpha/termvault/api/types"
	"github.com/openalpha/termvault/x/termpool/client/cli"
	termpooltypes "github.com/openalpha/termvault/x/termpool/types"
)

const t0 = int64(1_700_000_000)

func addr(name string) string {
	b := make([]byte, 20)
	copy(b, name)
	return sdk.AccAddress(b).String()
}

func startAPI(t *testing.T) string {
	t.Helper()
	cfg := api.DefaultConfig()
	cfg.DisableRateLimit = true
	cfg.Faucet = true
	cfg.Chain.Params.ApprovedAssets = []string{"uusdc"}
	cfg.Chain.Params.Roles = termpooltypes.RoleTable{
		termpooltypes.RoleAdmin:    {addr("admin")},
		termpooltypes.RoleOperator: {addr("operator")},
		termpooltypes.RoleAgent:    {addr("agent")},
	}
	srv, err := api.NewServer(context.Background(), cfg, log.NewNopLogger(),
		api.WithClock(func() time.Time { return time.Unix(t0, 0) }))
	require.NoError(t, err)
	httpSrv := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		httpSrv.Close()
		_ = srv.Stop(context.Background())
	})
	return httpSrv.URL
}

func run(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	cmd.SetContext(context.Background())
	err := cmd.Execute()
	return out.String(), err
}

func TestCreateAndQueryPool(t *testing.T) {
	url := startAPI(t)

	req := types.CreatePoolRequest{
		Config: termpooltypes.PoolConfig{
			PoolID:                 "cli-pool",
			Asset:                  "uusdc",
			Agent:                  addr("agent"),
			Instrument:             termpooltypes.InstrumentDiscounted,
			TargetRaise:            math.NewInt(1_000),
			EpochEnd:               t0 + 86_400,
			Maturity:               t0 + 30*86_400,
			DiscountRateBp:         300,
			LargeTransferThreshold: math.NewInt(500),
		},
		Signers:               []string{addr("s1"), addr("s2")},
		RequiredConfirmations: 2,
	}
	raw, err := json.Marshal(req)
	require.NoError(t, err)
	file := filepath.Join(t.TempDir(), "pool.json")
	require.NoError(t, os.WriteFile(file, raw, 0o600))

	_, err = run(t, cli.CmdCreatePool(), file, "--api-url", url, "--caller", addr("admin"))
	require.NoError(t, err)

	out, err := run(t, cli.CmdQueryPool(), "cli-pool", "--api-url", url)
	require.NoError(t, err)
	var view types.PoolView
	require.NoError(t, json.Unmarshal([]byte(out), &view))
	assert.Equal(t, termpooltypes.PhaseFunding, view.State.Phase)
	assert.Equal(t, "3", view.DiscountRate)

	// Non-admin creators are rejected by the server
	_, err = run(t, cli.CmdCreatePool(), file, "--api-url", url, "--caller", addr("mallory"))
	assert.ErrorContains(t, err, "403")
}

func TestTxCommandsRequireCaller(t *testing.T) {
	_, err := run(t, cli.CmdDeposit(), "pool", "10")
	assert.ErrorContains(t, err, "caller")

	_, err = run(t, cli.CmdSetSlippage(), "pool", "many", "--caller", addr("operator"))
	assert.ErrorContains(t, err, "invalid tolerance")
}

func TestCommandTree(t *testing.T) {
	names := func(cmd *cobra.Command) []string {
		var out []string
		for _, c := range cmd.Commands() {
			out = append(out, c.Name())
		}
		return out
	}
	assert.Subset(t, names(cli.GetTxCmd()), []string{"deposit", "withdraw", "redeem", "claim", "close-epoch", "mature", "emergency-exit"})
	assert.Subset(t, names(cli.GetQueryCmd()), []string{"pool", "pools", "position", "value", "calendar"})
}
