package apiclient_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"cosmossdk.io/log"
	"cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openalpha/termvault/api"
	"github.com/openalpha/termvault/api/types"
	"github.com/openalpha/termvault/pkg/apiclient"
	custodytypes "github.com/openalpha/termvault/x/custody/types"
	termpooltypes "github.com/openalpha/termvault/x/termpool/types"
)

const t0 = int64(1_700_000_000)

func addr(name string) string {
	b := make([]byte, 20)
	copy(b, name)
	return sdk.AccAddress(b).String()
}

var (
	admin    = addr("admin")
	operator = addr("operator")
	agent    = addr("agent")
	bob      = addr("bob")
	signers  = []string{addr("s1"), addr("s2"), addr("s3")}
)

func newClient(t *testing.T) *apiclient.Client {
	t.Helper()

	cfg := api.DefaultConfig()
	cfg.DisableRateLimit = true
	cfg.Faucet = true
	cfg.Chain.Params.ApprovedAssets = []string{"uusdc"}
	cfg.Chain.Params.Roles = termpooltypes.RoleTable{
		termpooltypes.RoleAdmin:    {admin},
		termpooltypes.RoleOperator: {operator},
		termpooltypes.RoleAgent:    {agent},
	}

	srv, err := api.NewServer(context.Background(), cfg, log.NewNopLogger(),
		api.WithClock(func() time.Time { return time.Unix(t0, 0) }))
	require.NoError(t, err)
	httpSrv := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		httpSrv.Close()
		_ = srv.Stop(context.Background())
	})

	return apiclient.New(&apiclient.Config{BaseURL: httpSrv.URL + "/", Timeout: 5 * time.Second})
}

func createPool(t *testing.T, c *apiclient.Client, poolID string) {
	t.Helper()
	_, err := c.CreatePool(context.Background(), &types.CreatePoolRequest{
		Creator: admin,
		Config: termpooltypes.PoolConfig{
			PoolID:                 poolID,
			Asset:                  "uusdc",
			Agent:                  agent,
			Instrument:             termpooltypes.InstrumentDiscounted,
			TargetRaise:            math.NewInt(10_000),
			EpochEnd:               t0 + 86_400,
			Maturity:               t0 + 90*86_400,
			DiscountRateBp:         500,
			LargeTransferThreshold: math.NewInt(5_000),
		},
		Signers:               signers,
		RequiredConfirmations: 2,
	})
	require.NoError(t, err)
}

func TestClientDepositFlow(t *testing.T) {
	ctx := context.Background()
	c := newClient(t)
	createPool(t, c, "bill-a")

	require.NoError(t, c.Fund(ctx, bob, "", "5000"))
	dep, err := c.Deposit(ctx, "bill-a", &types.AmountRequest{Caller: bob, Amount: "2000"})
	require.NoError(t, err)
	assert.Equal(t, "2000", dep.Shares)

	balance, err := c.Balance(ctx, bob, "uusdc")
	require.NoError(t, err)
	assert.Equal(t, "3000", balance)

	pos, err := c.GetPosition(ctx, "bill-a", bob)
	require.NoError(t, err)
	assert.Equal(t, "2000", pos.Shares.String())

	pools, total, err := c.ListPools(ctx, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), total)
	require.Len(t, pools, 1)
	assert.Equal(t, "bill-a", pools[0].Config.PoolID)

	entries, err := c.Calendar(ctx, time.Unix(t0, 0), 10)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	ledger, err := c.GetLedger(ctx, "bill-a")
	require.NoError(t, err)
	assert.Equal(t, uint32(2), ledger.RequiredConfirmations)
}

func TestClientDecodesErrors(t *testing.T) {
	ctx := context.Background()
	c := newClient(t)
	createPool(t, c, "bill-b")

	_, err := c.GetPool(ctx, "nope")
	var apiErr *apiclient.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)

	_, err = c.PoolAction(ctx, "bill-b", types.ActionCloseEpoch, &types.ActionRequest{Caller: operator})
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusTooEarly, apiErr.StatusCode)
	assert.True(t, apiErr.Retryable)
	assert.Equal(t, termpooltypes.ModuleName, apiErr.Codespace)

	_, err = c.ProposeTransfer(ctx, &custodytypes.MsgProposeTransfer{
		Proposer:  bob,
		LedgerID:  "bill-b",
		Kind:      custodytypes.KindRefund,
		Recipient: bob,
		Amount:    "1",
	})
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
	assert.Equal(t, custodytypes.ModuleName, apiErr.Codespace)
}

func TestClientUnreachable(t *testing.T) {
	c := apiclient.New(&apiclient.Config{BaseURL: "http://127.0.0.1:1", Timeout: time.Second})
	_, err := c.GetPool(context.Background(), "x")
	require.Error(t, err)
	var apiErr *apiclient.APIError
	assert.False(t, errors.As(err, &apiErr))
}
