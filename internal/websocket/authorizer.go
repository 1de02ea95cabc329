package websocket

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"sprcli/internal/security"
)

// ErrSessionUnauthorized is returned when a handshake carries no valid
// session credential or the license behind it is not active.
var ErrSessionUnauthorized = errors.New("websocket session not authorized")

// SessionAuthorizer admits WebSocket sessions for licensed clients and
// keeps admitted sessions honest with periodic license re-checks.
//
// Admission is two layers deep: the session token must carry an active
// license_state claim, and the license store is consulted independently.
// A token minted while a license was active must not outlive the license.
type SessionAuthorizer struct {
	authority StatusProvider
	tokens    TokenVerifier
	interval  time.Duration
	logger    *slog.Logger
}

// NewSessionAuthorizer builds an authorizer that re-validates each session
// every interval.
func NewSessionAuthorizer(authority StatusProvider, tokens TokenVerifier, interval time.Duration) *SessionAuthorizer {
	return &SessionAuthorizer{
		authority: authority,
		tokens:    tokens,
		interval:  interval,
		logger:    slog.Default().With(slog.String("component", "session_authorizer")),
	}
}

// Authorize validates the handshake request and returns the client id the
// session belongs to. The credential is read from the Authorization header
// or, because browsers cannot set headers on WebSocket upgrades, from the
// token query parameter.
func (a *SessionAuthorizer) Authorize(r *http.Request) (string, error) {
	raw := bearerToken(r)
	if raw == "" {
		return "", ErrSessionUnauthorized
	}

	identity, err := a.tokens.Verify(raw)
	if err != nil || identity == nil {
		if err == nil {
			err = ErrSessionUnauthorized
		}
		a.logger.WarnContext(r.Context(), "session token rejected",
			slog.String("error", err.Error()))
		return "", ErrSessionUnauthorized
	}
	if identity.LicenseState != security.LicenseStateActive {
		a.logger.WarnContext(r.Context(), "session token carries inactive license state",
			slog.String("client_id", identity.ClientID))
		return "", ErrSessionUnauthorized
	}

	// The claim reflects the license at issuance; ask the authority what
	// is true now.
	status, err := a.authority.GetStatus(r.Context(), identity.ClientID)
	if err != nil {
		return "", err
	}
	if !status.Active {
		a.logger.WarnContext(r.Context(), "handshake rejected, license no longer active",
			slog.String("client_id", identity.ClientID),
			slog.String("reason", status.Error))
		return "", ErrSessionUnauthorized
	}

	return identity.ClientID, nil
}

// Watch re-validates the session's license every interval and tears the
// session down when the license lapses. It returns when the session ends,
// and its timer stops with it.
func (a *SessionAuthorizer) Watch(ctx context.Context, client *Client) {
	ctx, cancel := context.WithCancel(ctx)
	client.OnTeardown(cancel)

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-client.Closed():
			return
		case <-ticker.C:
			if !a.revalidate(ctx, client) {
				return
			}
		}
	}
}

// revalidate reports whether the session may continue.
func (a *SessionAuthorizer) revalidate(ctx context.Context, client *Client) bool {
	status, err := a.authority.GetStatus(ctx, client.ClientID)
	if err != nil {
		// Infrastructure failure, not a revocation. Keep the session and
		// try again on the next tick.
		a.logger.WarnContext(ctx, "session revalidation failed",
			slog.String("client_id", client.ClientID),
			slog.String("error", err.Error()))
		return true
	}
	if status.Active {
		return true
	}

	a.logger.InfoContext(ctx, "license lapsed, closing session",
		slog.String("client_id", client.ClientID),
		slog.String("reason", status.Error))
	client.Send(NewMessage(TypeLicenseExpired, map[string]string{
		"reason": status.Error,
	}))
	// Give the write pump a moment to flush the notice before the
	// connection drops.
	select {
	case <-time.After(250 * time.Millisecond):
	case <-client.Closed():
	}
	client.Terminate()
	return false
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if after, ok := strings.CutPrefix(h, "Bearer "); ok {
			return after
		}
	}
	return r.URL.Query().Get("token")
}
