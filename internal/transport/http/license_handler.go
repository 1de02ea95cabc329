package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	apierrors "sprcli/internal/errors"
	"sprcli/internal/license"
	"sprcli/internal/middleware"
	"sprcli/internal/resilience"
)

var validate = validator.New()

// LicenseService is the slice of the license authority the handlers need.
type LicenseService interface {
	GetStatus(ctx context.Context, clientID string) (license.Status, error)
	Activate(ctx context.Context, licenseKey, clientID string) (license.Status, error)
	Deactivate(ctx context.Context, clientID string) (int64, error)
	CacheStats() license.CacheStats
}

// BreakerStats exposes circuit breaker state for the metrics endpoint.
type BreakerStats interface {
	Snapshot() resilience.Snapshot
}

// LicenseHandler serves the /api/license endpoints.
type LicenseHandler struct {
	service       LicenseService
	breaker       BreakerStats
	logger        *slog.Logger
	defaultClient string
}

// NewLicenseHandler creates a license handler. breaker may be nil when no
// downstream breaker is configured.
func NewLicenseHandler(service LicenseService, breaker BreakerStats, defaultClient string, logger *slog.Logger) *LicenseHandler {
	return &LicenseHandler{
		service:       service,
		breaker:       breaker,
		logger:        logger.With(slog.String("handler", "license")),
		defaultClient: defaultClient,
	}
}

// Routes returns the license endpoint router. activateLimit, when non-nil,
// rate limits the activation endpoint only; reads stay unthrottled.
func (h *LicenseHandler) Routes(activateLimit func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Get("/status", h.GetStatus)
	if activateLimit != nil {
		r.With(activateLimit).Post("/activate", h.Activate)
	} else {
		r.Post("/activate", h.Activate)
	}
	r.Post("/deactivate", h.Deactivate)
	r.Get("/metrics", h.Metrics)
	return r
}

// ActivationRequest is the /activate payload.
type ActivationRequest struct {
	LicenseKey string `json:"license_key" validate:"required"`
	ClientID   string `json:"client_id,omitempty" validate:"omitempty,max=128"`
}

// Bind implements render.Binder.
func (a *ActivationRequest) Bind(r *http.Request) error {
	a.LicenseKey = license.NormalizeKey(a.LicenseKey)
	a.ClientID = strings.TrimSpace(a.ClientID)
	return validate.Struct(a)
}

// DeactivationRequest is the /deactivate payload.
type DeactivationRequest struct {
	ClientID string `json:"client_id,omitempty" validate:"omitempty,max=128"`
}

// Bind implements render.Binder.
func (d *DeactivationRequest) Bind(r *http.Request) error {
	d.ClientID = strings.TrimSpace(d.ClientID)
	return validate.Struct(d)
}

// ActivationResponse wraps the post-activation status.
type ActivationResponse struct {
	Message string         `json:"message"`
	Status  license.Status `json:"status"`
}

// DeactivationResponse reports how many grants were released.
type DeactivationResponse struct {
	Message     string `json:"message"`
	Deactivated int64  `json:"deactivated"`
}

// MetricsResponse reports cache and breaker health.
type MetricsResponse struct {
	Cache   license.CacheStats   `json:"cache"`
	Breaker *resilience.Snapshot `json:"breaker,omitempty"`
}

// GetStatus handles GET /api/license/status. It always answers 200; an
// inactive license is a normal status, not an error.
func (h *LicenseHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	clientID := h.clientID(r)

	status, err := h.service.GetStatus(r.Context(), clientID)
	if err != nil {
		h.renderError(w, r, "status check failed", err)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, status)
}

// Activate handles POST /api/license/activate.
func (h *LicenseHandler) Activate(w http.ResponseWriter, r *http.Request) {
	req := &ActivationRequest{}
	if err := render.Bind(r, req); err != nil {
		_ = render.Render(w, r, apierrors.InvalidRequestWithError(err))
		return
	}

	clientID := req.ClientID
	if clientID == "" {
		clientID = h.clientID(r)
	}

	h.logger.InfoContext(r.Context(), "license activation requested",
		slog.String("license_key", license.MaskKey(req.LicenseKey)),
		slog.String("client_id", clientID))

	status, err := h.service.Activate(r.Context(), req.LicenseKey, clientID)
	if err != nil {
		h.renderError(w, r, "activation failed", err)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, ActivationResponse{
		Message: "License activated successfully",
		Status:  status,
	})
}

// Deactivate handles POST /api/license/deactivate.
func (h *LicenseHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	// The body is optional; an empty POST deactivates the default client.
	req := &DeactivationRequest{}
	if r.ContentLength > 0 {
		if err := render.Bind(r, req); err != nil {
			_ = render.Render(w, r, apierrors.InvalidRequestWithError(err))
			return
		}
	}

	clientID := req.ClientID
	if clientID == "" {
		clientID = h.clientID(r)
	}

	affected, err := h.service.Deactivate(r.Context(), clientID)
	if err != nil {
		h.renderError(w, r, "deactivation failed", err)
		return
	}

	h.logger.InfoContext(r.Context(), "license deactivated",
		slog.String("client_id", clientID),
		slog.Int64("affected", affected))

	render.Status(r, http.StatusOK)
	render.JSON(w, r, DeactivationResponse{
		Message:     "License deactivated",
		Deactivated: affected,
	})
}

// Metrics handles GET /api/license/metrics.
func (h *LicenseHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	resp := MetricsResponse{Cache: h.service.CacheStats()}
	if h.breaker != nil {
		snapshot := h.breaker.Snapshot()
		resp.Breaker = &snapshot
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, resp)
}

// clientID resolves the caller identity: explicit header first, else the
// status attached by the access gate, else the configured default.
func (h *LicenseHandler) clientID(r *http.Request) string {
	if clientID := strings.TrimSpace(r.Header.Get(middleware.HeaderClientID)); clientID != "" {
		return clientID
	}
	if status, ok := middleware.LicenseStatusFromContext(r.Context()); ok && status.ClientID != "" {
		return status.ClientID
	}
	return h.defaultClient
}

func (h *LicenseHandler) renderError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	h.logger.ErrorContext(r.Context(), msg, slog.String("error", err.Error()))
	_ = render.Render(w, r, mapServiceError(err))
}

// mapServiceError translates service-layer failures into API errors.
func mapServiceError(err error) *apierrors.APIError {
	var (
		apiErr     *apierrors.APIError
		circuitErr *resilience.CircuitOpenError
		timeoutErr *resilience.DownstreamTimeoutError
	)

	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.Is(err, license.ErrInvalidKeyFormat):
		return apierrors.ErrInvalidKeyFormat
	case errors.Is(err, license.ErrAlreadyActive):
		return apierrors.ErrAlreadyActive
	case errors.As(err, &circuitErr):
		return apierrors.ErrCircuitOpen
	case errors.As(err, &timeoutErr):
		return apierrors.ErrDownstreamTimeout
	case errors.Is(err, context.DeadlineExceeded):
		return apierrors.ErrDownstreamTimeout
	default:
		return apierrors.InternalError(err)
	}
}
