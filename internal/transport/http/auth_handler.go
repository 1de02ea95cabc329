package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apierrors "sprcli/internal/errors"
	"sprcli/internal/license"
	"sprcli/internal/security"
)

// TokenIssuer mints session tokens.
type TokenIssuer interface {
	Issue(clientID, licenseState string) (string, error)
}

// StatusChecker reports current license status at token issuance.
type StatusChecker interface {
	GetStatus(ctx context.Context, clientID string) (license.Status, error)
}

// AuthHandler serves /api/auth. Tokens are minted with the license state
// observed at issuance; enforcement happens at the gate and the session
// authorizer, which re-check the store independently.
type AuthHandler struct {
	issuer        TokenIssuer
	statuses      StatusChecker
	tokenTTL      time.Duration
	defaultClient string
	logger        *slog.Logger
}

// NewAuthHandler creates the auth handler.
func NewAuthHandler(issuer TokenIssuer, statuses StatusChecker, tokenTTL time.Duration, defaultClient string, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		issuer:        issuer,
		statuses:      statuses,
		tokenTTL:      tokenTTL,
		defaultClient: defaultClient,
		logger:        logger.With(slog.String("handler", "auth")),
	}
}

// Routes returns the auth endpoint router.
func (h *AuthHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/login", h.Login)
	return r
}

// LoginRequest identifies the client requesting a session token.
type LoginRequest struct {
	ClientID string `json:"client_id,omitempty" validate:"omitempty,max=128"`
}

// Bind implements render.Binder.
func (l *LoginRequest) Bind(r *http.Request) error {
	l.ClientID = strings.TrimSpace(l.ClientID)
	return validate.Struct(l)
}

// LoginResponse carries the minted session token.
type LoginResponse struct {
	Token        string    `json:"token"`
	ExpiresAt    time.Time `json:"expires_at"`
	LicenseState string    `json:"license_state"`
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	req := &LoginRequest{}
	if r.ContentLength > 0 {
		if err := render.Bind(r, req); err != nil {
			_ = render.Render(w, r, apierrors.InvalidRequestWithError(err))
			return
		}
	}

	clientID := req.ClientID
	if clientID == "" {
		clientID = h.defaultClient
	}

	status, err := h.statuses.GetStatus(r.Context(), clientID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "status check failed during login",
			slog.String("client_id", clientID),
			slog.String("error", err.Error()))
		_ = render.Render(w, r, mapServiceError(err))
		return
	}

	state := security.LicenseStateInactive
	if status.Active {
		state = security.LicenseStateActive
	}

	token, err := h.issuer.Issue(clientID, state)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "token issuance failed",
			slog.String("client_id", clientID),
			slog.String("error", err.Error()))
		_ = render.Render(w, r, apierrors.InternalError(err))
		return
	}

	h.logger.InfoContext(r.Context(), "session token issued",
		slog.String("client_id", clientID),
		slog.String("license_state", state))

	render.Status(r, http.StatusOK)
	render.JSON(w, r, LoginResponse{
		Token:        token,
		ExpiresAt:    time.Now().Add(h.tokenTTL).UTC(),
		LicenseState: state,
	})
}
