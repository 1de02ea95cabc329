package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/render"

	apierrors "sprcli/internal/errors"
	"sprcli/internal/license"
)

// licenseStatusKey is the context key for the attached license status
type licenseStatusKey struct{}

// HeaderClientID is the request header carrying an explicit client identity
const HeaderClientID = "X-Client-ID"

// mockClientMarkers are identity substrings hard-rejected in production,
// independent of license state.
var mockClientMarkers = []string{
	"mock",
	"test-client",
	"fake-client",
	"demo-client",
	"e2e-",
}

// mockAgentMarkers are user-agent substrings hard-rejected in production
var mockAgentMarkers = []string{
	"mock",
	"spr-test",
	"smoke-test",
}

// AccessGate denies requests from clients without an active license. Paths
// on the allow list (health checks, license activation, login) pass
// untouched; everything else resolves a client identity, consults the
// license authority, and attaches the active status to the request context.
type AccessGate struct {
	authority     StatusProvider
	tokens        TokenVerifier
	logger        *slog.Logger
	production    bool
	defaultClient string
	allowPaths    map[string]bool
	allowPrefixes []string
}

// NewAccessGate creates the license access gate
func NewAccessGate(authority StatusProvider, tokens TokenVerifier, production bool, defaultClient string, logger *slog.Logger) *AccessGate {
	return &AccessGate{
		authority:     authority,
		tokens:        tokens,
		logger:        logger.With(slog.String("component", "access_gate")),
		production:    production,
		defaultClient: defaultClient,
		allowPaths: map[string]bool{
			"/":                       true,
			"/api/health":             true,
			"/api/health/ready":       true,
			"/api/health/live":        true,
			"/api/version":            true,
			"/api/license/activate":   true,
			"/api/license/status":     true,
			"/api/auth/login":         true,
			"/metrics":                true,
			"/ws":                     true, // gated by the session authorizer
			"/favicon.ico":            true,
		},
		allowPrefixes: []string{
			"/static/",
		},
	}
}

// Handler returns the middleware handler function
func (g *AccessGate) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if g.shouldAllowPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		clientID := g.resolveClientID(r)

		// Production hard policy: mock/test identities are rejected before
		// any license lookup
		if g.production && g.isMockClient(clientID, r.UserAgent()) {
			g.logger.WarnContext(ctx, "mock client rejected",
				slog.String("client_id", clientID),
				slog.String("user_agent", r.UserAgent()),
				slog.String("path", r.URL.Path))

			render.Render(w, r, apierrors.ErrMockClientRejected)
			return
		}

		status, err := g.authority.GetStatus(ctx, clientID)
		if err != nil {
			g.logger.ErrorContext(ctx, "license status lookup failed",
				slog.String("client_id", clientID),
				slog.String("error", err.Error()))

			render.Render(w, r, apierrors.ErrServiceUnavailable)
			return
		}

		if !status.Active {
			g.logger.InfoContext(ctx, "request denied, no active license",
				slog.String("client_id", clientID),
				slog.String("reason", status.Error),
				slog.String("path", r.URL.Path))

			render.Render(w, r, apierrors.LicenseRequiredWithReason(status.Error))
			return
		}

		next.ServeHTTP(w, r.WithContext(WithLicenseStatus(ctx, status)))
	})
}

// resolveClientID extracts the caller identity from request metadata:
// explicit header first, then the authenticated token subject, falling back
// to the configured sentinel.
func (g *AccessGate) resolveClientID(r *http.Request) string {
	if clientID := strings.TrimSpace(r.Header.Get(HeaderClientID)); clientID != "" {
		return clientID
	}

	if g.tokens != nil {
		if raw := bearerToken(r); raw != "" {
			if identity, err := g.tokens.Verify(raw); err == nil && identity != nil {
				return identity.ClientID
			}
		}
	}

	return g.defaultClient
}

func (g *AccessGate) shouldAllowPath(path string) bool {
	if g.allowPaths[path] {
		return true
	}

	for _, prefix := range g.allowPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}

	return false
}

func (g *AccessGate) isMockClient(clientID, userAgent string) bool {
	id := strings.ToLower(clientID)
	for _, marker := range mockClientMarkers {
		if strings.Contains(id, marker) {
			return true
		}
	}

	agent := strings.ToLower(userAgent)
	for _, marker := range mockAgentMarkers {
		if strings.Contains(agent, marker) {
			return true
		}
	}

	return false
}

// bearerToken extracts a bearer token from the Authorization header
func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "Bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}

// WithLicenseStatus attaches a license status to the context
func WithLicenseStatus(ctx context.Context, status license.Status) context.Context {
	return context.WithValue(ctx, licenseStatusKey{}, status)
}

// LicenseStatusFromContext retrieves the license status attached by the gate
func LicenseStatusFromContext(ctx context.Context) (license.Status, bool) {
	status, ok := ctx.Value(licenseStatusKey{}).(license.Status)
	return status, ok
}
