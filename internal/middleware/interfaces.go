package middleware

import (
	"context"

	"sprcli/internal/license"
	"sprcli/internal/security"
)

// StatusProvider is the slice of the license authority the gate needs
type StatusProvider interface {
	GetStatus(ctx context.Context, clientID string) (license.Status, error)
}

// TokenVerifier verifies bearer tokens presented on gated requests
type TokenVerifier interface {
	Verify(raw string) (*security.TokenIdentity, error)
}
