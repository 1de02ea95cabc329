package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/render"
)

// HealthHandler serves liveness and readiness checks.
type HealthHandler struct {
	version   string
	startedAt time.Time
	ready     func(ctx context.Context) error
}

// NewHealthHandler creates a health handler stamped with the build version.
// ready probes the service's dependencies; nil means always ready.
func NewHealthHandler(version string, ready func(ctx context.Context) error) *HealthHandler {
	return &HealthHandler{version: version, startedAt: time.Now(), ready: ready}
}

// HealthResponse is the health check payload.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
}

// Health handles GET /api/health.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	render.Status(r, http.StatusOK)
	render.JSON(w, r, HealthResponse{
		Status:  "healthy",
		Version: h.version,
		Uptime:  time.Since(h.startedAt).Round(time.Second).String(),
	})
}

// Live handles GET /api/health/live. A response at all means the process
// is up, so this never fails.
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	render.Status(r, http.StatusOK)
	render.JSON(w, r, map[string]string{"status": "alive"})
}

// Ready handles GET /api/health/ready. It probes downstream dependencies
// and reports 503 until they respond.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if h.ready != nil {
		if err := h.ready(ctx); err != nil {
			render.Status(r, http.StatusServiceUnavailable)
			render.JSON(w, r, map[string]string{
				"status": "not_ready",
				"error":  err.Error(),
			})
			return
		}
	}
	render.Status(r, http.StatusOK)
	render.JSON(w, r, map[string]string{"status": "ready"})
}
