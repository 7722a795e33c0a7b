package app

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnhub/console/internal/auth"
	"github.com/learnhub/console/internal/observability"
	"github.com/learnhub/console/internal/rbac"
	"github.com/learnhub/console/internal/shared"
	"github.com/learnhub/console/internal/staff"
	"github.com/learnhub/console/internal/view"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	templates, err := view.NewEngine()
	require.NoError(t, err)
	sessions := shared.NewSessionManager(client, "learnhub_session", "secret", time.Hour, false)
	csrf := shared.NewCSRFManager("csrf")
	logger := NewLogger(&Config{LogFormat: "json"})

	return NewRouter(RouterParams{
		Logger:           logger,
		Config:           &Config{AppRequestTimeout: time.Second},
		Templates:        templates,
		SessionManager:   sessions,
		CSRFManager:      csrf,
		AuthHandler:      auth.NewHandler(logger, nil, templates, sessions, csrf),
		BearerMiddleware: auth.Middleware{Logger: logger},
		StaffHandler:     staff.NewHandler(logger, nil, rbac.Middleware{Logger: logger}),
		Metrics:          observability.NewMetrics(),
	})
}

func TestHealthz(t *testing.T) {
	router := newTestRouter(t)
	res := httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, res.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, Version(), body["version"])
	assert.Equal(t, "DENY", res.Header().Get("X-Frame-Options"))
}

func TestAPISkipsSessionAndCSRF(t *testing.T) {
	router := newTestRouter(t)

	res := httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodPatch, "/api/v1/staff/2/permissions", strings.NewReader(`{"manage_users":true}`)))
	assert.Equal(t, http.StatusUnauthorized, res.Code, "bearer auth answers before any csrf check")
	assert.Empty(t, res.Header().Values("Set-Cookie"))
}

func TestPagesRequireCSRFOnPost(t *testing.T) {
	router := newTestRouter(t)

	res := httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/auth/logout", nil))
	assert.Equal(t, http.StatusForbidden, res.Code)
	assert.NotEmpty(t, res.Header().Values("Set-Cookie"))
}

func TestStaticAssetsAreCached(t *testing.T) {
	router := newTestRouter(t)

	res := httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/static/js/live.js", nil))
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "public, max-age=3600", res.Header().Get("Cache-Control"))
	assert.Contains(t, res.Body.String(), "EventSource")
}

func TestMetricsEndpoint(t *testing.T) {
	router := newTestRouter(t)

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	res := httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), `learnhub_http_requests_total{code="200",route="/healthz"} 1`)
}
