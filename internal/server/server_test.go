package server

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/labstack/echo/v4"
	"github.com/nfrund/conftimeout/internal/config"
	"github.com/nfrund/conftimeout/internal/hub"
	"github.com/nfrund/conftimeout/internal/module"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPErrorHandler_WithStackTrace(t *testing.T) {
	e := echo.New()

	var logBuffer bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logBuffer, &slog.HandlerOptions{AddSource: true}))
	originalLogger := slog.Default()
	slog.SetDefault(logger)
	defer slog.SetDefault(originalLogger)

	setupErrorHandling(e)

	e.GET("/test-unhandled-error", func(c echo.Context) error {
		return errors.New("a deliberate unhandled error occurred")
	})

	req := httptest.NewRequest(http.MethodGet, "/test-unhandled-error", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)

	logOutput := logBuffer.String()
	assert.Contains(t, logOutput, "Internal Server Error (Unhandled)")
	assert.Contains(t, logOutput, "error=\"a deliberate unhandled error occurred\"")
	assert.Contains(t, logOutput, "stack_trace=")
	assert.Contains(t, logOutput, "runtime/debug/stack.go")
	assert.Contains(t, logOutput, "internal/server/server_test.go")
}

func TestHTTPErrorHandler_HTTPErrorKeepsStatus(t *testing.T) {
	e := echo.New()
	setupErrorHandling(e)

	req := httptest.NewRequest(http.MethodGet, "/missing", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Not Found")
}

// fakeModule records lifecycle calls into a shared log.
type fakeModule struct {
	name    string
	log     *[]string
	mu      *sync.Mutex
	bootErr error
}

func (m *fakeModule) Name() string { return m.name }

func (m *fakeModule) Boot(ctx context.Context, g *echo.Group) error {
	m.record("boot " + m.name)
	g.GET("/"+m.name, func(c echo.Context) error {
		return c.String(http.StatusOK, m.name)
	})
	return m.bootErr
}

func (m *fakeModule) Shutdown(ctx context.Context) error {
	m.record("shutdown " + m.name)
	return nil
}

func (m *fakeModule) record(s string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	*m.log = append(*m.log, s)
}

func testHTTPConfig() config.HTTPConfig {
	return config.HTTPConfig{Addr: "127.0.0.1:0", ShutdownTimeout: time.Second}
}

func TestServer_ModuleLifecycle(t *testing.T) {
	var (
		calls []string
		mu    sync.Mutex
	)
	a := &fakeModule{name: "a", log: &calls, mu: &mu}
	b := &fakeModule{name: "b", log: &calls, mu: &mu}

	s := New(testHTTPConfig(), Dependencies{Modules: []module.Module{a, b}})
	require.NoError(t, s.Boot(context.Background()))

	req := httptest.NewRequest(http.MethodGet, "/api/b", nil)
	rec := httptest.NewRecorder()
	s.E.ServeHTTP(rec, req)
	assert.Equal(t, "b", rec.Body.String())

	require.NoError(t, s.Stop(context.Background()))
	assert.Equal(t, []string{"boot a", "boot b", "shutdown b", "shutdown a"}, calls)
}

func TestServer_BootError(t *testing.T) {
	var (
		calls []string
		mu    sync.Mutex
	)
	bad := &fakeModule{name: "bad", log: &calls, mu: &mu, bootErr: errors.New("no bus")}

	s := New(testHTTPConfig(), Dependencies{Modules: []module.Module{bad}})
	err := s.Boot(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boot module bad")
}

func TestServer_APIRateLimited(t *testing.T) {
	var (
		calls []string
		mu    sync.Mutex
	)
	cfg := testHTTPConfig()
	cfg.RateLimit = 1
	s := New(cfg, Dependencies{Modules: []module.Module{&fakeModule{name: "a", log: &calls, mu: &mu}}})
	require.NoError(t, s.Boot(context.Background()))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/a", nil)
		req.RemoteAddr = "192.0.2.9:1234"
		rec := httptest.NewRecorder()
		s.E.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	// Framework routes are not limited.
	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		req.RemoteAddr = "192.0.2.9:1234"
		rec := httptest.NewRecorder()
		s.E.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestServer_HealthAndMetrics(t *testing.T) {
	s := New(testHTTPConfig(), Dependencies{})

	rec := httptest.NewRecorder()
	s.E.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	rec = httptest.NewRecorder()
	s.E.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "conftimeout_http_requests_total")
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestServer_TwoServersInOneProcess(t *testing.T) {
	assert.NotPanics(t, func() {
		New(testHTTPConfig(), Dependencies{})
		New(testHTTPConfig(), Dependencies{})
	})
}

func TestServer_EventWebSocket(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := hub.NewHub()
	go h.Run(ctx)

	s := New(testHTTPConfig(), Dependencies{Hub: h})
	ts := httptest.NewServer(s.E)
	defer ts.Close()

	dialCtx, dialCancel := context.WithTimeout(ctx, 2*time.Second)
	defer dialCancel()
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/events"
	conn, _, err := websocket.Dial(dialCtx, wsURL, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	require.Eventually(t, func() bool { return h.Count() == 1 }, 2*time.Second, 10*time.Millisecond)
	require.True(t, h.Publish([]byte(`{"type":"status"}`)))

	readCtx, readCancel := context.WithTimeout(ctx, 2*time.Second)
	defer readCancel()
	typ, data, err := conn.Read(readCtx)
	require.NoError(t, err)
	assert.Equal(t, websocket.MessageText, typ)
	assert.JSONEq(t, `{"type":"status"}`, string(data))

	conn.Close(websocket.StatusNormalClosure, "")
	require.Eventually(t, func() bool { return h.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestServer_StartStopsOnCancel(t *testing.T) {
	s := New(testHTTPConfig(), Dependencies{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	require.Eventually(t, func() bool { return s.E.ListenerAddr() != nil }, 2*time.Second, 10*time.Millisecond)
	resp, err := http.Get("http://" + s.E.ListenerAddr().String() + "/healthz")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "OK", string(body))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestServer_StartFailureStopsModules(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()

	var (
		log []string
		mu  sync.Mutex
	)
	cfg := testHTTPConfig()
	cfg.Addr = busy.Addr().String()
	s := New(cfg, Dependencies{Modules: []module.Module{
		&fakeModule{name: "node", log: &log, mu: &mu},
	}})
	require.NoError(t, s.Boot(context.Background()))

	err = s.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "http server")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"boot node", "shutdown node"}, log)
}
