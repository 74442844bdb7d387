package websocket

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"sync"

	"cosmossdk.io/log"
	"github.com/google/uuid"

	"github.com/openalpha/termvault/api/types"
	"github.com/openalpha/termvault/metrics"
)

// Channel prefixes. Every event goes to ChannelEvents and, where the event
// names them, to the pool, ledger and holder channels.
const (
	ChannelEvents  = "events"
	PrefixPool     = "pool:"
	PrefixCustody  = "custody:"
	PrefixHolder   = "holder:"
	channelTypeAll = "events"
)

// Event attributes that name an account for holder: channels
var holderAttributes = []string{"holder", "sender", "receiver", "owner", "recipient", "signer", "proposer"}

// Hub maintains the set of active clients and fans out chain events
type Hub struct {
	clients  map[*Client]bool
	channels map[string]map[*Client]bool // channel -> clients
	perIP    map[string]int

	events chan []types.Event
	done   chan struct{}

	register    chan *Client
	unregister  chan *Client
	subscribe   chan *SubscriptionRequest
	unsubscribe chan *SubscriptionRequest

	mu sync.RWMutex

	config  *HubConfig
	metrics *metrics.Collector
	logger  log.Logger
}

// HubConfig contains hub configuration
type HubConfig struct {
	EventBuffer      int `mapstructure:"event_buffer"`
	MaxClientsPerIP  int `mapstructure:"max_clients_per_ip"`
	MaxSubscriptions int `mapstructure:"max_subscriptions"`
	MessageRateLimit int `mapstructure:"message_rate_limit"` // per client per second
}

// DefaultHubConfig returns default hub configuration
func DefaultHubConfig() *HubConfig {
	return &HubConfig{
		EventBuffer:      1024,
		MaxClientsPerIP:  10,
		MaxSubscriptions: 50,
		MessageRateLimit: 20,
	}
}

// SubscriptionRequest represents a subscription request
type SubscriptionRequest struct {
	Client  *Client
	Channel string
}

// WSMessage represents a WebSocket message
type WSMessage struct {
	Type    string      `json:"type"`
	Channel string      `json:"channel,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

var _ types.EventSink = (*Hub)(nil)

// NewHub creates a new Hub. c may be nil.
func NewHub(config *HubConfig, c *metrics.Collector, logger log.Logger) *Hub {
	if config == nil {
		config = DefaultHubConfig()
	}
	return &Hub{
		clients:     make(map[*Client]bool),
		channels:    make(map[string]map[*Client]bool),
		perIP:       make(map[string]int),
		events:      make(chan []types.Event, config.EventBuffer),
		done:        make(chan struct{}),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		subscribe:   make(chan *SubscriptionRequest, 256),
		unsubscribe: make(chan *SubscriptionRequest, 256),
		config:      config,
		metrics:     c,
		logger:      logger.With("module", "websocket"),
	}
}

// Run starts the hub's main loop and returns when ctx is done
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.closeAll()
			return

		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case req := <-h.subscribe:
			h.handleSubscription(req)

		case req := <-h.unsubscribe:
			h.handleUnsubscription(req)

		case batch := <-h.events:
			for i := range batch {
				h.dispatch(&batch[i])
			}
		}
	}
}

// PublishEvents queues events for delivery. It never blocks the caller; a
// full buffer drops the batch.
func (h *Hub) PublishEvents(_ context.Context, events []types.Event) {
	if len(events) == 0 {
		return
	}
	select {
	case h.events <- events:
	default:
		h.logger.Error("Event buffer full, dropping batch", "events", len(events))
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client] = true
	if h.metrics != nil {
		h.metrics.RecordWSConnection(1)
	}
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	for channel, clients := range h.channels {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.channels, channel)
		}
	}
	h.releaseIP(client.ip)
	client.close()

	if h.metrics != nil {
		h.metrics.RecordWSConnection(-1)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		client.close()
		if h.metrics != nil {
			h.metrics.RecordWSConnection(-1)
		}
	}
	h.clients = make(map[*Client]bool)
	h.channels = make(map[string]map[*Client]bool)
	h.perIP = make(map[string]int)
}

func (h *Hub) handleSubscription(req *SubscriptionRequest) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.clients[req.Client] {
		return
	}
	if _, ok := h.channels[req.Channel]; !ok {
		h.channels[req.Channel] = make(map[*Client]bool)
	}
	h.channels[req.Channel][req.Client] = true
	req.Client.Send(mustMarshal(&WSMessage{Type: "subscribed", Channel: req.Channel}))
}

func (h *Hub) handleUnsubscription(req *SubscriptionRequest) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.clients[req.Client] {
		return
	}
	if clients, ok := h.channels[req.Channel]; ok {
		delete(clients, req.Client)
		if len(clients) == 0 {
			delete(h.channels, req.Channel)
		}
	}
	req.Client.Send(mustMarshal(&WSMessage{Type: "unsubscribed", Channel: req.Channel}))
}

// channelsFor lists the channels an event is delivered on
func channelsFor(ev *types.Event) []string {
	out := []string{ChannelEvents}
	if ev.PoolID != "" {
		out = append(out, PrefixPool+ev.PoolID)
	}
	if ev.LedgerID != "" {
		out = append(out, PrefixCustody+ev.LedgerID)
	}
	seen := make(map[string]bool)
	for _, key := range holderAttributes {
		if addr := ev.Attributes[key]; addr != "" && !seen[addr] {
			seen[addr] = true
			out = append(out, PrefixHolder+addr)
		}
	}
	return out
}

// dispatch delivers an event once to every client subscribed to any of its
// channels
func (h *Hub) dispatch(ev *types.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := make(map[*Client]bool)
	for _, channel := range channelsFor(ev) {
		clients, ok := h.channels[channel]
		if !ok {
			continue
		}
		data := mustMarshal(&WSMessage{Type: "event", Channel: channel, Data: ev})
		for client := range clients {
			if delivered[client] {
				continue
			}
			delivered[client] = true
			client.Send(data)
			if h.metrics != nil {
				h.metrics.RecordWSMessage(channelType(channel))
			}
		}
	}
}

func channelType(channel string) string {
	if prefix, _, ok := strings.Cut(channel, ":"); ok {
		return prefix
	}
	return channelTypeAll
}

func mustMarshal(msg *WSMessage) []byte {
	data, err := json.Marshal(msg)
	if err != nil {
		panic(err)
	}
	return data
}

// reserveIP counts a new connection against its IP limit
func (h *Hub) reserveIP(ip string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.perIP[ip] >= h.config.MaxClientsPerIP {
		return false
	}
	h.perIP[ip]++
	return true
}

// releaseIP must be called with h.mu held
func (h *Hub) releaseIP(ip string) {
	h.perIP[ip]--
	if h.perIP[ip] <= 0 {
		delete(h.perIP, ip)
	}
}

// GetClientCount returns the number of connected clients
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// GetChannelClientCount returns the number of clients in a channel
func (h *Hub) GetChannelClientCount(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[channel])
}

// ServeWS handles WebSocket upgrade requests
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	ip := clientIP(r)
	if !h.reserveIP(ip) {
		http.Error(w, "too many connections from this IP", http.StatusTooManyRequests)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.mu.Lock()
		h.releaseIP(ip)
		h.mu.Unlock()
		h.logger.Debug("WebSocket upgrade failed", "ip", ip, "error", err)
		return
	}

	client := NewClient(h, conn, uuid.New().String(), ip)
	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
