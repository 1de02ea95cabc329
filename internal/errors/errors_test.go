package errors

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/render"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIErrorStatusCodes(t *testing.T) {
	cases := []struct {
		err  *APIError
		want int
	}{
		{ErrInvalidKeyFormat, http.StatusBadRequest},
		{ErrAlreadyActive, http.StatusConflict},
		{ErrLicenseRequired, http.StatusForbidden},
		{ErrMockClientRejected, http.StatusForbidden},
		{ErrCircuitOpen, http.StatusServiceUnavailable},
		{ErrDownstreamTimeout, http.StatusGatewayTimeout},
		{ErrRateLimitExceeded, http.StatusTooManyRequests},
	}

	for _, tc := range cases {
		req := httptest.NewRequest("GET", "/", nil)
		rec := httptest.NewRecorder()

		require.NoError(t, render.Render(rec, req, tc.err))
		assert.Equal(t, tc.want, rec.Code, tc.err.ErrorCode)
		assert.Contains(t, rec.Body.String(), tc.err.ErrorCode)
	}
}

func TestLicenseRequiredWithReason(t *testing.T) {
	apiErr := LicenseRequiredWithReason("License expired")

	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
	assert.Equal(t, CodeLicenseRequired, apiErr.ErrorCode)
	assert.Equal(t, "License expired", apiErr.Message)
}

func TestErrorToProblemMapsDeadline(t *testing.T) {
	handler := NewErrorHandler(slog.Default(), false)

	req := httptest.NewRequest("GET", "/api/license/status", nil)
	problem := handler.ErrorToProblem(context.DeadlineExceeded, req)

	assert.Equal(t, http.StatusGatewayTimeout, problem.Status)
}

func TestErrorToProblemMapsAPIError(t *testing.T) {
	handler := NewErrorHandler(slog.Default(), false)

	req := httptest.NewRequest("POST", "/api/license/activate", nil)
	problem := handler.ErrorToProblem(ErrAlreadyActive, req)

	assert.Equal(t, http.StatusConflict, problem.Status)
}

func TestRecovererTurnsPanicInto500Problem(t *testing.T) {
	handler := NewErrorHandler(slog.Default(), false)

	panicky := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})

	req := httptest.NewRequest("GET", "/", nil)
	rec := httptest.NewRecorder()
	handler.Recoverer(panicky).ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "Internal Server Error")
}
