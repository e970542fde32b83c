package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/VoiceAgent/internal/config"
	"github.com/dkeye/VoiceAgent/internal/token"
)

func newTestRouter(t *testing.T, iss *token.Issuer, limit int) (*gin.Engine, *prometheus.Registry) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	reg := prometheus.NewRegistry()
	cfg := &config.Config{Mode: "test", Secret: "test-secret"}
	r := SetupRouter(cfg, Deps{
		Issuer:   iss,
		Limiter:  token.NewRateLimiter(limit, time.Minute),
		Registry: reg,
	})
	return r, reg
}

func post(r http.Handler, path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func errorOf(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body["error"]
}

func TestIssueToken(t *testing.T) {
	iss := token.NewIssuer("key", "secret", time.Hour)
	r, reg := newTestRouter(t, iss, 10)

	w := post(r, "/api/token", `{"identity":"alice","room":"style-consultation"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	claims, err := iss.Verify(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Subject)
	assert.Equal(t, "style-consultation", string(claims.Video.Room))

	w = post(r, "/api/get-participant-token", `{"identity":"bob","room":"r"}`)
	assert.Equal(t, http.StatusOK, w.Code)

	n, err := testutil.GatherAndCount(reg, "voice_token_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestIssueTokenErrors(t *testing.T) {
	r, _ := newTestRouter(t, token.NewIssuer("key", "secret", time.Hour), 10)

	for _, body := range []string{`{"identity":"alice"}`, `{"room":"r"}`, `{"identity":"  ","room":"r"}`, `nope`} {
		w := post(r, "/api/token", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
		assert.Equal(t, "Missing identity or room", errorOf(t, w))
	}

	req := httptest.NewRequest(http.MethodGet, "/api/token", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.Equal(t, "Method not allowed", errorOf(t, w))
}

func TestIssueTokenMissingKeys(t *testing.T) {
	r, _ := newTestRouter(t, token.NewIssuer("", "", time.Hour), 10)
	w := post(r, "/api/token", `{"identity":"alice","room":"r"}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "configuration missing", errorOf(t, w))
}

func TestIssueTokenRateLimited(t *testing.T) {
	r, _ := newTestRouter(t, token.NewIssuer("key", "secret", time.Hour), 2)
	for i := 0; i < 2; i++ {
		require.Equal(t, http.StatusOK, post(r, "/api/token", `{"identity":"alice","room":"r"}`).Code)
	}
	assert.Equal(t, http.StatusTooManyRequests, post(r, "/api/token", `{"identity":"alice","room":"r"}`).Code)
	assert.Equal(t, http.StatusOK, post(r, "/api/token", `{"identity":"bob","room":"r"}`).Code)
}

func TestSessionRemembersLastRequest(t *testing.T) {
	r, _ := newTestRouter(t, token.NewIssuer("key", "secret", time.Hour), 10)

	w := post(r, "/api/token", `{"identity":"alice","room":"style-consultation"}`)
	require.Equal(t, http.StatusOK, w.Code)
	cookies := w.Result().Cookies()
	require.NotEmpty(t, cookies)

	req := httptest.NewRequest(http.MethodGet, "/api/session", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var s map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &s))
	assert.Equal(t, "alice", s["identity"])
	assert.Equal(t, "style-consultation", s["room"])
}

func TestHealthAndMetrics(t *testing.T) {
	r, _ := newTestRouter(t, token.NewIssuer("key", "secret", time.Hour), 10)
	_ = post(r, "/api/token", `{"identity":"alice","room":"r"}`)

	for path, want := range map[string]string{"/healthz": `"ok"`, "/metrics": `voice_token_requests_total{outcome="issued"} 1`} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code, path)
		assert.Contains(t, w.Body.String(), want, path)
	}
}
