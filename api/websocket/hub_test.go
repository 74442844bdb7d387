package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cosmossdk.io/log"
	gws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openalpha/termvault/api/types"
)

func TestChannelsFor(t *testing.T) {
	ev := &types.Event{
		Type:     "deposit",
		PoolID:   "pool-1",
		LedgerID: "pool-1",
		Attributes: map[string]string{
			"sender":   "cosmos1alice",
			"receiver": "cosmos1alice",
			"owner":    "cosmos1bob",
		},
	}
	assert.Equal(t, []string{
		ChannelEvents,
		"pool:pool-1",
		"custody:pool-1",
		"holder:cosmos1alice",
		"holder:cosmos1bob",
	}, channelsFor(ev))

	assert.Equal(t, []string{ChannelEvents}, channelsFor(&types.Event{Type: "x"}))
}

func TestValidChannel(t *testing.T) {
	for channel, want := range map[string]bool{
		"events":         true,
		"pool:p1":        true,
		"custody:p1":     true,
		"holder:cosmos1": true,
		"pool:":          false,
		"ticker:BTC":     false,
		"":               false,
	} {
		assert.Equal(t, want, validChannel(channel), channel)
	}
}

func TestChannelType(t *testing.T) {
	assert.Equal(t, "pool", channelType("pool:p1"))
	assert.Equal(t, "events", channelType(ChannelEvents))
}

func startHub(t *testing.T, cfg *HubConfig) (*Hub, string) {
	t.Helper()
	hub := NewHub(cfg, nil, log.NewNopLogger())
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *gws.Conn {
	t.Helper()
	conn, _, err := gws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *gws.Conn) WSMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg WSMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestHubDeliversSubscribedEvents(t *testing.T) {
	hub, url := startHub(t, nil)
	conn := dial(t, url)

	require.NoError(t, conn.WriteJSON(ClientMessage{Action: "subscribe", Channel: "pool:pool-1"}))
	msg := readMessage(t, conn)
	require.Equal(t, "subscribed", msg.Type)
	require.Eventually(t, func() bool { return hub.GetChannelClientCount("pool:pool-1") == 1 }, time.Second, 10*time.Millisecond)

	hub.PublishEvents(context.Background(), []types.Event{
		{Type: "deposit", PoolID: "pool-2", Attributes: map[string]string{}},
		{Type: "deposit", PoolID: "pool-1", Height: 7, Attributes: map[string]string{"sender": "cosmos1alice"}},
	})

	msg = readMessage(t, conn)
	assert.Equal(t, "event", msg.Type)
	assert.Equal(t, "pool:pool-1", msg.Channel)

	raw, err := json.Marshal(msg.Data)
	require.NoError(t, err)
	var ev types.Event
	require.NoError(t, json.Unmarshal(raw, &ev))
	assert.Equal(t, "pool-1", ev.PoolID)
	assert.Equal(t, int64(7), ev.Height)
}

func TestHubRejectsUnknownChannel(t *testing.T) {
	_, url := startHub(t, nil)
	conn := dial(t, url)

	require.NoError(t, conn.WriteJSON(ClientMessage{Action: "subscribe", Channel: "depth:BTC"}))
	msg := readMessage(t, conn)
	assert.Equal(t, "error", msg.Type)

	require.NoError(t, conn.WriteJSON(ClientMessage{Action: "ping"}))
	assert.Equal(t, "pong", readMessage(t, conn).Type)
}

func TestHubLimitsConnectionsPerIP(t *testing.T) {
	cfg := DefaultHubConfig()
	cfg.MaxClientsPerIP = 1
	hub, url := startHub(t, cfg)

	dial(t, url)
	require.Eventually(t, func() bool { return hub.GetClientCount() == 1 }, time.Second, 10*time.Millisecond)

	_, resp, err := gws.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 429, resp.StatusCode)
}

func TestPublishEventsNeverBlocks(t *testing.T) {
	cfg := DefaultHubConfig()
	cfg.EventBuffer = 1
	hub := NewHub(cfg, nil, log.NewNopLogger())

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			hub.PublishEvents(context.Background(), []types.Event{{Type: "x"}})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("PublishEvents blocked without a running hub")
	}
}
