package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cosmossdk.io/log"
	"cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
	gws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openalpha/termvault/api/types"
	"github.com/openalpha/termvault/api/websocket"
	termpooltypes "github.com/openalpha/termvault/x/termpool/types"
)

const (
	testDenom = "uusdc"
	t0        = int64(1_700_000_000)
	daySecs   = int64(86_400)
)

var (
	admin    = testAddr("admin")
	operator = testAddr("operator")
	agent    = testAddr("agent")
	alice    = testAddr("alice")
	signer1  = testAddr("signer-one")
	signer2  = testAddr("signer-two")
	signer3  = testAddr("signer-three")
)

func testAddr(name string) string {
	b := make([]byte, 20)
	copy(b, name)
	return sdk.AccAddress(b).String()
}

type testServer struct {
	t   *testing.T
	srv *Server
	url string
	now time.Time
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	cfg := DefaultConfig()
	cfg.DisableRateLimit = true
	cfg.Faucet = true
	cfg.DefaultDenom = testDenom
	cfg.Chain.Params.ApprovedAssets = []string{testDenom}
	cfg.Chain.Params.Roles = termpooltypes.RoleTable{
		termpooltypes.RoleAdmin:    {admin},
		termpooltypes.RoleOperator: {operator},
		termpooltypes.RoleAgent:    {agent},
	}

	ts := &testServer{t: t, now: time.Unix(t0, 0)}
	srv, err := NewServer(context.Background(), cfg, log.NewNopLogger(),
		WithClock(func() time.Time { return ts.now }))
	require.NoError(t, err)
	ts.srv = srv

	httpSrv := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		httpSrv.Close()
		require.NoError(t, srv.Stop(context.Background()))
	})
	ts.url = httpSrv.URL
	return ts
}

func (ts *testServer) do(method, path string, body interface{}, out interface{}) int {
	ts.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(ts.t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, ts.url+path, &buf)
	require.NoError(ts.t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(ts.t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(ts.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (ts *testServer) createPool(poolID string) {
	ts.t.Helper()

	var view types.PoolView
	status := ts.do(http.MethodPost, "/v1/pools", types.CreatePoolRequest{
		Creator: admin,
		Config: termpooltypes.PoolConfig{
			PoolID:                 poolID,
			Asset:                  testDenom,
			Agent:                  agent,
			Instrument:             termpooltypes.InstrumentDiscounted,
			TargetRaise:            math.NewInt(100_000),
			EpochEnd:               t0 + 3*daySecs,
			Maturity:               t0 + 180*daySecs,
			DiscountRateBp:         1800,
			LargeTransferThreshold: math.NewInt(50_000),
		},
		Signers:               []string{signer1, signer2, signer3},
		RequiredConfirmations: 2,
	}, &view)
	require.Equal(ts.t, http.StatusCreated, status)
	require.Equal(ts.t, termpooltypes.PhaseFunding, view.State.Phase)
	require.Equal(ts.t, "18", view.DiscountRate)
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	var body map[string]interface{}
	require.Equal(t, http.StatusOK, ts.do(http.MethodGet, "/health", nil, &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, false, body["events_archive"])
}

func TestPoolLifecycleOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	ts.createPool("tbill-1")

	require.Equal(t, http.StatusOK, ts.do(http.MethodPost, fmt.Sprintf("/v1/accounts/%s/fund", alice),
		map[string]string{"amount": "100000"}, nil))

	var dep termpooltypes.MsgDepositResponse
	require.Equal(t, http.StatusOK, ts.do(http.MethodPost, "/v1/pools/tbill-1/deposit",
		types.AmountRequest{Caller: alice, Amount: "60000"}, &dep))
	assert.Equal(t, "60000", dep.Shares)

	var balance map[string]string
	require.Equal(t, http.StatusOK, ts.do(http.MethodGet, fmt.Sprintf("/v1/accounts/%s/balance", alice), nil, &balance))
	assert.Equal(t, "40000", balance["amount"])

	// The epoch has not ended yet: time-gated rejections are retryable
	var errResp types.ErrorResponse
	status := ts.do(http.MethodPost, "/v1/pools/tbill-1/actions/close-epoch",
		types.ActionRequest{Caller: operator}, &errResp)
	assert.Equal(t, http.StatusTooEarly, status)
	assert.True(t, errResp.Retryable)
	assert.Equal(t, termpooltypes.ModuleName, errResp.Codespace)

	ts.now = time.Unix(t0+4*daySecs, 0)
	var action termpooltypes.MsgPoolActionResponse
	require.Equal(t, http.StatusOK, ts.do(http.MethodPost, "/v1/pools/tbill-1/actions/close-epoch",
		types.ActionRequest{Caller: operator}, &action))
	assert.Equal(t, termpooltypes.PhasePendingInvestment, action.Phase)

	var view types.PoolView
	require.Equal(t, http.StatusOK, ts.do(http.MethodGet, "/v1/pools/tbill-1", nil, &view))
	assert.Equal(t, termpooltypes.PhasePendingInvestment, view.State.Phase)
	assert.Equal(t, "60000", view.TotalShares)
	assert.True(t, view.Config.FaceValue.GT(math.NewInt(60_000)))

	// Deposits are closed once the epoch is
	status = ts.do(http.MethodPost, "/v1/pools/tbill-1/deposit",
		types.AmountRequest{Caller: alice, Amount: "1"}, &errResp)
	assert.Equal(t, http.StatusConflict, status)

	var ledger map[string]interface{}
	require.Equal(t, http.StatusOK, ts.do(http.MethodGet, "/v1/custody/ledgers/tbill-1", nil, &ledger))

	assert.Greater(t, ts.srv.Service().Height(), int64(3))
}

func TestErrorStatuses(t *testing.T) {
	ts := newTestServer(t)
	ts.createPool("tbill-2")

	for _, tc := range []struct {
		name   string
		method string
		path   string
		body   interface{}
		status int
	}{
		{"unknown pool", http.MethodGet, "/v1/pools/missing", nil, http.StatusNotFound},
		{"unknown ledger", http.MethodGet, "/v1/custody/ledgers/missing", nil, http.StatusNotFound},
		{"missing caller", http.MethodPost, "/v1/pools/tbill-2/deposit", types.AmountRequest{Amount: "5"}, http.StatusBadRequest},
		{"unknown action", http.MethodPost, "/v1/pools/tbill-2/actions/teleport", types.ActionRequest{Caller: operator}, http.StatusBadRequest},
		{"wrong role", http.MethodPost, "/v1/pools/tbill-2/actions/close-epoch", types.ActionRequest{Caller: alice, Force: true}, http.StatusForbidden},
		{"non-admin creator", http.MethodPost, "/v1/pools", types.CreatePoolRequest{Creator: alice}, http.StatusForbidden},
		{"unknown route", http.MethodGet, "/v1/markets", nil, http.StatusNotFound},
		{"wrong method", http.MethodDelete, "/v1/pools/tbill-2", nil, http.StatusMethodNotAllowed},
	} {
		t.Run(tc.name, func(t *testing.T) {
			var resp types.ErrorResponse
			assert.Equal(t, tc.status, ts.do(tc.method, tc.path, tc.body, &resp))
			assert.NotEmpty(t, resp.Error)
		})
	}
}

func TestCalendarTracksPools(t *testing.T) {
	ts := newTestServer(t)
	ts.createPool("tbill-3")

	var body struct {
		Entries []types.CalendarEntry `json:"entries"`
	}
	require.Equal(t, http.StatusOK, ts.do(http.MethodGet, fmt.Sprintf("/v1/calendar?from=%d", t0), nil, &body))
	require.Len(t, body.Entries, 2)
	assert.Equal(t, CalendarEpochEnd, body.Entries[0].Kind)
	assert.Equal(t, t0+3*daySecs, body.Entries[0].Time)
	assert.Equal(t, CalendarMaturity, body.Entries[1].Kind)
}

func TestRateLimitedServer(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RateLimit.RequestsPerSecond = 1
	cfg.RateLimit.Burst = 1

	srv, err := NewServer(context.Background(), cfg, log.NewNopLogger())
	require.NoError(t, err)
	defer srv.Stop(context.Background())

	handler := srv.Handler()
	first := httptest.NewRecorder()
	handler.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, first.Code)

	second := httptest.NewRecorder()
	handler.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
}

func TestWebSocketStreamsPoolEvents(t *testing.T) {
	ts := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ts.srv.hub.Run(ctx)

	ts.createPool("tbill-ws")
	require.Equal(t, http.StatusOK, ts.do(http.MethodPost, fmt.Sprintf("/v1/accounts/%s/fund", alice),
		map[string]string{"amount": "500"}, nil))

	conn, _, err := gws.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.url, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	read := func() websocket.WSMessage {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		var msg websocket.WSMessage
		require.NoError(t, conn.ReadJSON(&msg))
		return msg
	}

	require.NoError(t, conn.WriteJSON(websocket.ClientMessage{Action: "subscribe", Channel: "pool:tbill-ws"}))
	require.Equal(t, "subscribed", read().Type)
	require.Eventually(t, func() bool {
		return ts.srv.hub.GetChannelClientCount("pool:tbill-ws") == 1
	}, time.Second, 10*time.Millisecond)

	require.Equal(t, http.StatusOK, ts.do(http.MethodPost, "/v1/pools/tbill-ws/deposit",
		types.AmountRequest{Caller: alice, Amount: "500"}, nil))

	seen := map[string]bool{}
	for !seen[termpooltypes.EventTypeDeposit] {
		msg := read()
		require.Equal(t, "event", msg.Type)
		raw, err := json.Marshal(msg.Data)
		require.NoError(t, err)
		var ev types.Event
		require.NoError(t, json.Unmarshal(raw, &ev))
		assert.Equal(t, "tbill-ws", ev.PoolID)
		seen[ev.Type] = true
	}
}
