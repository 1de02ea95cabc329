package websocket

import (
	"context"
	"time"

	"sprcli/internal/license"
	"sprcli/internal/security"
)

// Connection abstracts the underlying WebSocket transport so pumps and
// tests can run against doubles.
type Connection interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
}

// StatusProvider reports the current license status for a client.
type StatusProvider interface {
	GetStatus(ctx context.Context, clientID string) (license.Status, error)
}

// TokenVerifier validates a session token and returns its identity.
type TokenVerifier interface {
	Verify(raw string) (*security.TokenIdentity, error)
}
