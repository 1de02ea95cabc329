package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 4096
)

// Client is one WebSocket session. A session belongs to a licensed client
// identified by ClientID; the hub may hold several sessions for the same
// client.
type Client struct {
	ID       string
	ClientID string

	hub    *Hub
	conn   Connection
	send   chan []byte
	logger *slog.Logger

	closeOnce sync.Once
	closed    chan struct{}

	// onTeardown hooks run exactly once when the session ends, used to
	// cancel the session's revalidation watcher.
	hookMu     sync.Mutex
	onTeardown []func()
}

// NewClient wraps a connection for the given licensed client.
func NewClient(hub *Hub, conn Connection, clientID string) *Client {
	return &Client{
		ID:       uuid.NewString(),
		ClientID: clientID,
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, 64),
		closed:   make(chan struct{}),
		logger: slog.Default().With(
			slog.String("component", "websocket_client"),
			slog.String("client_id", clientID)),
	}
}

// OnTeardown registers a hook invoked when the session ends. Hooks
// registered after teardown run immediately.
func (c *Client) OnTeardown(fn func()) {
	c.hookMu.Lock()
	select {
	case <-c.closed:
		c.hookMu.Unlock()
		fn()
		return
	default:
	}
	c.onTeardown = append(c.onTeardown, fn)
	c.hookMu.Unlock()
}

// Send queues a message for delivery. Returns false when the session is
// closed or the buffer is full.
func (c *Client) Send(msg *Message) bool {
	payload, err := json.Marshal(msg)
	if err != nil {
		c.logger.Error("failed to marshal message",
			slog.String("type", msg.Type),
			slog.String("error", err.Error()))
		return false
	}

	select {
	case <-c.closed:
		return false
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// Closed reports session teardown; watchers select on it.
func (c *Client) Closed() <-chan struct{} {
	return c.closed
}

// Terminate ends the session and asks the hub to forget it.
func (c *Client) Terminate() {
	c.teardown()
	c.hub.Unregister(c)
}

func (c *Client) teardown() {
	c.closeOnce.Do(func() {
		c.hookMu.Lock()
		close(c.closed)
		hooks := c.onTeardown
		c.onTeardown = nil
		c.hookMu.Unlock()
		for _, fn := range hooks {
			fn()
		}
		_ = c.conn.Close()
	})
}

// ReadPump reads from the peer until the connection drops. It owns the
// read side and unregisters the client on exit.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.teardown()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.logger.Warn("unexpected close", slog.String("error", err.Error()))
			}
			return
		}
		// Inbound frames are ignored; the channel is push-only.
	}
}

// WritePump drains the send buffer to the peer and keeps the connection
// alive with pings. It owns the write side.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.teardown()
	}()

	for {
		select {
		case <-c.closed:
			return
		case payload, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
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
