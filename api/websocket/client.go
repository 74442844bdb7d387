package websocket

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 4096
	sendBufferSize = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Streams carry public chain events only
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Client is one WebSocket connection
type Client struct {
	hub  *Hub
	conn *websocket.Conn

	send    chan []byte
	sendMu  sync.Mutex
	closed  bool
	dropped int

	id string
	ip string

	subscriptions map[string]bool
	subMu         sync.Mutex

	messageCount int
	lastReset    time.Time

	connectedAt time.Time
}

// ClientMessage is a request from a client
type ClientMessage struct {
	Action  string `json:"action"` // subscribe, unsubscribe or ping
	Channel string `json:"channel,omitempty"`
}

// NewClient creates a new Client
func NewClient(hub *Hub, conn *websocket.Conn, id, ip string) *Client {
	now := time.Now()
	return &Client{
		hub:           hub,
		conn:          conn,
		send:          make(chan []byte, sendBufferSize),
		id:            id,
		ip:            ip,
		subscriptions: make(map[string]bool),
		connectedAt:   now,
		lastReset:     now,
	}
}

// readPump pumps messages from the WebSocket connection to the hub
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Debug("WebSocket read failed", "client", c.id, "error", err)
			}
			return
		}

		if !c.checkRateLimit() {
			c.sendError("rate_limit_exceeded", "too many messages")
			continue
		}

		var msg ClientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			c.sendError("invalid_message", "failed to parse message")
			continue
		}
		c.handleMessage(&msg)
	}
}

// writePump pumps messages from the hub to the WebSocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handleMessage(msg *ClientMessage) {
	switch msg.Action {
	case "subscribe":
		c.handleSubscribe(msg.Channel)
	case "unsubscribe":
		c.handleUnsubscribe(msg.Channel)
	case "ping":
		c.Send(mustMarshal(&WSMessage{
			Type: "pong",
			Data: map[string]int64{"timestamp": time.Now().UnixMilli()},
		}))
	default:
		c.sendError("unknown_action", "unknown action: "+msg.Action)
	}
}

func (c *Client) handleSubscribe(channel string) {
	if !validChannel(channel) {
		c.sendError("invalid_channel", "unknown channel: "+channel)
		return
	}

	c.subMu.Lock()
	if !c.subscriptions[channel] && len(c.subscriptions) >= c.hub.config.MaxSubscriptions {
		c.subMu.Unlock()
		c.sendError("subscription_limit", "maximum subscriptions reached")
		return
	}
	c.subscriptions[channel] = true
	c.subMu.Unlock()

	select {
	case c.hub.subscribe <- &SubscriptionRequest{Client: c, Channel: channel}:
	case <-c.hub.done:
	}
}

func (c *Client) handleUnsubscribe(channel string) {
	c.subMu.Lock()
	delete(c.subscriptions, channel)
	c.subMu.Unlock()

	select {
	case c.hub.unsubscribe <- &SubscriptionRequest{Client: c, Channel: channel}:
	case <-c.hub.done:
	}
}

// validChannel accepts "events" and the pool:, custody: and holder: channels
// with a non-empty suffix
func validChannel(channel string) bool {
	if channel == ChannelEvents {
		return true
	}
	for _, prefix := range []string{PrefixPool, PrefixCustody, PrefixHolder} {
		if id, ok := strings.CutPrefix(channel, prefix); ok {
			return id != ""
		}
	}
	return false
}

func (c *Client) checkRateLimit() bool {
	now := time.Now()
	if now.Sub(c.lastReset) >= time.Second {
		c.messageCount = 0
		c.lastReset = now
	}
	c.messageCount++
	return c.messageCount <= c.hub.config.MessageRateLimit
}

func (c *Client) sendError(code, message string) {
	c.Send(mustMarshal(&WSMessage{
		Type: "error",
		Data: map[string]string{"code": code, "message": message},
	}))
}

// Send queues a message. Slow clients lose messages rather than stall the hub.
func (c *Client) Send(message []byte) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.closed {
		return
	}
	select {
	case c.send <- message:
	default:
		c.dropped++
	}
}

// close is called by the hub once the client is unregistered
func (c *Client) close() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// GetID returns the client ID
func (c *Client) GetID() string {
	return c.id
}

// GetSubscriptions returns the client's subscriptions
func (c *Client) GetSubscriptions() []string {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	subs := make([]string, 0, len(c.subscriptions))
	for sub := range c.subscriptions {
		subs = append(subs, sub)
	}
	return subs
}

// GetConnectionDuration returns how long the client has been connected
func (c *Client) GetConnectionDuration() time.Duration {
	return time.Since(c.connectedAt)
}
