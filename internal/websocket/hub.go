package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

// Message types pushed to connected clients.
const (
	TypeConnected      = "connected"
	TypeLicenseExpired = "license_expired"
	TypeLicenseStatus  = "license_status"
)

// Message is the envelope for every frame the hub sends.
type Message struct {
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

// NewMessage builds a timestamped envelope.
func NewMessage(msgType string, data interface{}) *Message {
	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// Hub tracks connected clients and fans messages out to them. All client
// bookkeeping happens on the Run goroutine, reached through channels.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte

	logger *slog.Logger

	mu      sync.RWMutex
	stopped bool
	done    chan struct{}
}

// NewHub creates a hub ready for Run.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 256),
		logger:     slog.Default().With(slog.String("component", "websocket_hub")),
		done:       make(chan struct{}),
	}
}

// Run processes registration and broadcast events until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer h.closeAll()

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.logger.InfoContext(ctx, "client connected",
				slog.String("connection_id", client.ID),
				slog.String("client_id", client.ClientID),
				slog.Int("total_clients", len(h.clients)))
		case client := <-h.unregister:
			h.mu.Lock()
			_, ok := h.clients[client]
			if ok {
				delete(h.clients, client)
			}
			h.mu.Unlock()
			if ok {
				client.teardown()
				h.logger.InfoContext(ctx, "client disconnected",
					slog.String("connection_id", client.ID),
					slog.String("client_id", client.ClientID),
					slog.Int("total_clients", len(h.clients)))
			}
		case payload := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- payload:
				default:
					// Slow consumer: drop it rather than block the hub.
					delete(h.clients, client)
					client.teardown()
				}
			}
			h.mu.Unlock()
		}
	}
}

// Register queues a client for registration.
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		client.teardown()
	}
}

// Unregister queues a client for removal.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Broadcast sends a message to every connected client.
func (h *Hub) Broadcast(msg *Message) {
	payload, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("failed to marshal broadcast message",
			slog.String("type", msg.Type),
			slog.String("error", err.Error()))
		return
	}

	select {
	case h.broadcast <- payload:
	case <-h.done:
	}
}

// ClientCount returns the number of clients currently registered. It is
// approximate while Run is processing events.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Stop shuts the hub down and disconnects every client.
func (h *Hub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return
	}
	h.stopped = true
	close(h.done)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		delete(h.clients, client)
		client.teardown()
	}
	h.logger.Info("hub stopped")
}
