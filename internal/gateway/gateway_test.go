// ABOUTME: Tests for gateway construction, lifecycle, health, and shared test helpers
// ABOUTME: Runs the real router behind httptest with a fake transport dialer

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/bot-fleet/internal/agent"
	"github.com/2389/bot-fleet/internal/config"
	"github.com/2389/bot-fleet/internal/store"
	"github.com/2389/bot-fleet/internal/transport"
	"github.com/2389/bot-fleet/internal/transport/transporttest"
)

const testConfigYAML = `
database:
  path: ":memory:"
auth:
  jwt_secret: "gateway-test-secret-0123456789abcdef"
bridge:
  addr: "127.0.0.1:1"
rate_limit:
  requests: 10000
  window: 1m
metrics:
  enabled: true
behaviors:
  - name: chat
    base: 1h
    spread: 1h
`

type testEnv struct {
	gw     *Gateway
	dialer *transporttest.Dialer
	users  *store.MockStore
	srv    *httptest.Server
}

func testConfig(t *testing.T, mutate ...func(*config.Config)) *config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte(testConfigYAML))
	require.NoError(t, err)
	for _, m := range mutate {
		m(cfg)
	}
	return cfg
}

func newTestGateway(t *testing.T, mutate ...func(*config.Config)) *testEnv {
	t.Helper()

	env := &testEnv{
		dialer: transporttest.NewDialer(nil),
		users:  store.NewMockStore(),
	}
	gw, err := New(testConfig(t, mutate...), Options{
		Dialer: env.dialer,
		Users:  env.users,
	})
	require.NoError(t, err)
	env.gw = gw
	env.srv = httptest.NewServer(gw.Handler())

	t.Cleanup(env.srv.Close)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = gw.Shutdown(ctx)
	})
	return env
}

// do sends a JSON request and returns the status and raw body.
func (e *testEnv) do(t *testing.T, method, path, token string, body any) (int, []byte) {
	t.Helper()

	var rdr io.Reader
	if body != nil {
		if s, ok := body.(string); ok {
			rdr = bytes.NewBufferString(s)
		} else {
			data, err := json.Marshal(body)
			require.NoError(t, err)
			rdr = bytes.NewReader(data)
		}
	}

	req, err := http.NewRequest(method, e.srv.URL+path, rdr)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := e.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

// login registers username and returns a bearer token.
func (e *testEnv) login(t *testing.T, username string) string {
	t.Helper()
	creds := CredentialsRequest{Username: username, Password: "pw-" + username}

	status, body := e.do(t, http.MethodPost, "/api/register", "", creds)
	require.Equal(t, http.StatusOK, status, string(body))

	status, body = e.do(t, http.MethodPost, "/api/login", "", creds)
	require.Equal(t, http.StatusOK, status, string(body))

	var resp LoginResponse
	require.NoError(t, json.Unmarshal(body, &resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

// createBot creates a bot for token and returns its id and fake transport.
func (e *testEnv) createBot(t *testing.T, token string) (string, *transporttest.Fake) {
	t.Helper()
	status, body := e.do(t, http.MethodPost, "/api/bots", token, CreateBotRequest{ServerIP: "mc.example"})
	require.Equal(t, http.StatusOK, status, string(body))

	var resp CreateBotResponse
	require.NoError(t, json.Unmarshal(body, &resp))
	return resp.BotID, e.dialer.Next(t)
}

// connectedBot creates a bot and completes its login.
func (e *testEnv) connectedBot(t *testing.T, token string) (*agent.Agent, *transporttest.Fake) {
	t.Helper()
	id, fake := e.createBot(t, token)
	fake.Emit(transport.Event{Type: transport.EventLogin})

	a, err := e.gw.Registry().Get(id)
	require.NoError(t, err)
	transporttest.Eventually(t, func() bool { return a.State() == agent.StateConnected }, "bot connects")
	return a, fake
}

func errorMessage(t *testing.T, body []byte) string {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(body, &resp), string(body))
	return resp.Error
}

func TestNew_RequiresCollaborators(t *testing.T) {
	cfg := testConfig(t)

	_, err := New(cfg, Options{Dialer: transporttest.NewDialer(nil)})
	assert.Error(t, err, "missing user store")

	_, err = New(cfg, Options{Users: store.NewMockStore()})
	assert.Error(t, err, "missing dialer")

	weak := testConfig(t, func(c *config.Config) { c.Auth.JWTSecret = "short" })
	_, err = New(weak, Options{Dialer: transporttest.NewDialer(nil), Users: store.NewMockStore()})
	assert.Error(t, err, "weak secret")
}

func TestHealth(t *testing.T) {
	env := newTestGateway(t)

	status, body := env.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "OK", string(body))
}

func TestReady(t *testing.T) {
	env := newTestGateway(t)
	token := env.login(t, "alice")
	env.createBot(t, token)

	status, body := env.do(t, http.MethodGet, "/health/ready", "", nil)
	require.Equal(t, http.StatusOK, status)

	var ready ReadyResponse
	require.NoError(t, json.Unmarshal(body, &ready))
	assert.Equal(t, "ready", ready.Status)
	assert.Equal(t, 1, ready.Agents)
	assert.Equal(t, 1, ready.States[agent.StateConnecting])
	assert.Contains(t, ready.States, agent.StateIdle, "every state is reported")

	env.users.SetPingError(errors.New("disk gone"))
	status, _ = env.do(t, http.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, status)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestGateway(t)

	status, body := env.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), "fleet_agents_reclaimed_total")

	off := newTestGateway(t, func(c *config.Config) { c.Metrics.Enabled = false })
	status, _ = off.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	dialer := transporttest.NewDialer(nil)
	gw, err := New(testConfig(t), Options{Dialer: dialer, Users: store.NewMockStore()})
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- gw.Serve(ctx, ln) }()

	a, err := gw.Registry().Create(agent.CreateParams{OwnerID: "u1", Target: transport.Target{Host: "h"}})
	require.NoError(t, err)
	fake := dialer.Next(t)
	fake.Emit(transport.Event{Type: transport.EventLogin})
	transporttest.Eventually(t, func() bool { return a.State() == agent.StateConnected }, "agent connects")

	resp, err := http.Get("http://" + ln.Addr().String() + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}

	assert.Equal(t, agent.StateDisconnected, a.State())
	_, graceful := fake.QuitReason()
	assert.True(t, graceful, "connected agents quit gracefully on shutdown")
}

func TestServe_ListenerFailure(t *testing.T) {
	gw, err := New(testConfig(t), Options{Dialer: transporttest.NewDialer(nil), Users: store.NewMockStore()})
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	require.NoError(t, ln.Close())

	err = gw.Serve(t.Context(), ln)
	assert.Error(t, err)
}

func transportLogin() transport.Event {
	return transport.Event{Type: transport.EventLogin}
}
