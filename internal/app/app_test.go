package app

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sprcli/internal/config"
	"sprcli/internal/license"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Database.DSN = ":memory:"
	cfg.Security.RateLimit.Enabled = false
	return cfg
}

func newTestApp(t *testing.T) *Application {
	t.Helper()
	app, err := New(testConfig())
	require.NoError(t, err)
	t.Cleanup(func() {
		app.authority.Close()
		_ = app.store.Close()
	})
	return app
}

func TestHealthEndpoint(t *testing.T) {
	app := newTestApp(t)
	router := app.routes()

	req := httptest.NewRequest("GET", "/api/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}

func TestReadinessEndpoint(t *testing.T) {
	app := newTestApp(t)
	router := app.routes()

	req := httptest.NewRequest("GET", "/api/health/ready", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ready")
}

func TestStatusEndpointIsReachableWithoutLicense(t *testing.T) {
	app := newTestApp(t)
	router := app.routes()

	req := httptest.NewRequest("GET", "/api/license/status", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), license.ReasonNoActiveLicense)
}

func TestGatedEndpointRequiresLicense(t *testing.T) {
	app := newTestApp(t)
	router := app.routes()

	req := httptest.NewRequest("GET", "/api/license/metrics", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "LICENSE_REQUIRED")
}

func TestActivateThenGatedEndpoint(t *testing.T) {
	app := newTestApp(t)
	router := app.routes()

	key := "SPR-AAAA-BBBB-CCCC-" + license.ChecksumGroup("AAAA", "BBBB", "CCCC")
	body := `{"license_key":"` + key + `","client_id":"acme"}`
	req := httptest.NewRequest("POST", "/api/license/activate", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	req = httptest.NewRequest("GET", "/api/license/metrics", nil)
	req.Header.Set("X-Client-ID", "acme")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsScrapeEndpoint(t *testing.T) {
	app := newTestApp(t)
	router := app.routes()

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWebSocketHandshakeRejectedWithoutToken(t *testing.T) {
	app := newTestApp(t)
	router := app.routes()

	req := httptest.NewRequest("GET", "/ws", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
