// ABOUTME: Tests for rate limiting and request logging middleware
// ABOUTME: Uses an injectable clock so bucket refill is deterministic

package gateway

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/bot-fleet/internal/config"
)

func TestRateLimiter_PerClient(t *testing.T) {
	rl := newRateLimiter(3, time.Minute)
	now := time.Unix(1_700_000_000, 0)
	rl.now = func() time.Time { return now }

	for i := range 3 {
		assert.True(t, rl.allow("10.0.0.1"), "request %d", i)
	}
	assert.False(t, rl.allow("10.0.0.1"), "fourth request is over the limit")
	assert.True(t, rl.allow("10.0.0.2"), "other clients have their own bucket")

	now = now.Add(20 * time.Second)
	assert.True(t, rl.allow("10.0.0.1"), "one token refills every window/requests")
	assert.False(t, rl.allow("10.0.0.1"))
}

func TestRateLimiter_Disabled(t *testing.T) {
	assert.Nil(t, newRateLimiter(0, time.Minute))

	var rl *rateLimiter
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	rec := httptest.NewRecorder()
	rl.Handler(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRateLimit_APIRoutes(t *testing.T) {
	env := newTestGateway(t, func(c *config.Config) {
		c.RateLimit.Requests = 3
		c.RateLimit.Window = time.Hour
	})

	for range 3 {
		status, _ := env.do(t, http.MethodPost, "/api/login", "", "{}")
		assert.Equal(t, http.StatusBadRequest, status)
	}

	req, err := http.NewRequest(http.MethodPost, env.srv.URL+"/api/login", bytes.NewBufferString("{}"))
	require.NoError(t, err)
	resp, err := env.srv.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "1200", resp.Header.Get("Retry-After"))

	status, _ := env.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, status, "health is not rate limited")
}

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	h := requestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/bots", nil))

	out := buf.String()
	assert.Contains(t, out, "http request")
	assert.Contains(t, out, "method=GET")
	assert.Contains(t, out, "path=/api/bots")
	assert.Contains(t, out, "status=418")
	assert.Contains(t, out, "bytes=15")
}
