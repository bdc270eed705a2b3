package router

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/babbling-brook/streambed/frontend/internal/setup"
	"github.com/babbling-brook/streambed/shared/config"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	cfg := config.NewForTest(config.Public{
		Domus: config.Domus{BaseURL: "http://127.0.0.1:1"},
		HTTP:  config.HTTP{AllowedOrigins: []string{"http://localhost:8081"}},
	}, "secret")
	deps := setup.SetupDependencies(cfg)
	t.Cleanup(func() {
		deps.CancelFunc()
		deps.Sessions.Shutdown()
	})
	return New(deps)
}

func TestHealthAndMetrics(t *testing.T) {
	r := newTestRouter(t)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))
	assert.Equal(t, "no-store", rr.Header().Get("Cache-Control"))

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "streambed_http_requests_total")
}

func TestSessionRoutesNeedCSRF(t *testing.T) {
	r := newTestRouter(t)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/sessions", strings.NewReader(`{"path": "/"}`)))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var opened struct {
		Session   string `json:"session"`
		CSRFToken string `json:"csrf_token"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &opened))
	require.NotEmpty(t, opened.CSRFToken)
	cookies := rr.Result().Cookies()
	require.NotEmpty(t, cookies)

	path := "/api/sessions/" + opened.Session + "/path"

	rr = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(`{"path": "/next"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, path, strings.NewReader(`{"path": "/next"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-CSRF-Token", opened.CSRFToken)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	r.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/sessions/"+opened.Session+"/posts/a.com/1/take", strings.NewReader(`{"field_id": 2, "value": 1}`))
	req.Header.Set("X-CSRF-Token", opened.CSRFToken)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	r.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code, "taking needs a signed-in visitor")
}

func TestPushNeedsLiveSession(t *testing.T) {
	r := newTestRouter(t)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/ws?session=missing", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
