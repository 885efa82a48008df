package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/ledsync/internal/adapter/metrics"
	"github.com/pscheid92/ledsync/internal/domain"
	"github.com/pscheid92/ledsync/internal/platform/config"
)

// --- Mock implementations ---

// mockGateway is an in-memory domain.Gateway; the *Fn fields override single operations.
type mockGateway struct {
	mu       sync.Mutex
	flag     bool
	readings []json.RawMessage

	lightFlagFn     func(ctx context.Context) (bool, error)
	toggleFn        func(ctx context.Context) (bool, error)
	readingsFn      func(ctx context.Context) ([]json.RawMessage, error)
	appendReadingFn func(ctx context.Context, reading json.RawMessage) error
	pingFn          func(ctx context.Context) error
}

func (m *mockGateway) LightFlag(ctx context.Context) (bool, error) {
	if m.lightFlagFn != nil {
		return m.lightFlagFn(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flag, nil
}

func (m *mockGateway) ToggleLightFlag(ctx context.Context) (bool, error) {
	if m.toggleFn != nil {
		return m.toggleFn(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flag = !m.flag
	return m.flag, nil
}

func (m *mockGateway) Readings(ctx context.Context) ([]json.RawMessage, error) {
	if m.readingsFn != nil {
		return m.readingsFn(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]json.RawMessage{}, m.readings...), nil
}

func (m *mockGateway) AppendReading(ctx context.Context, reading json.RawMessage) error {
	if m.appendReadingFn != nil {
		return m.appendReadingFn(ctx, reading)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readings = append(m.readings, reading)
	return nil
}

func (m *mockGateway) Ping(ctx context.Context) error {
	if m.pingFn != nil {
		return m.pingFn(ctx)
	}
	return nil
}

type fixedState struct {
	state domain.DeviceState
}

func (f fixedState) Get() domain.DeviceState { return f.state }

// --- Test helpers ---

func testConfig() *config.Config {
	return &config.Config{
		AppEnv:        "development",
		Port:          "3000",
		HTTPRateLimit: 1000,
		HTTPRateBurst: 1000,

		ReadingRateLimit: 1000,
		ReadingRateBurst: 1000,
	}
}

func newTestServer(t *testing.T, gateway domain.Gateway, opts ...func(*Server)) *Server {
	t.Helper()

	srv := &Server{
		echo:             echo.New(),
		config:           testConfig(),
		gateway:          gateway,
		state:            fixedState{state: domain.DefaultDeviceState()},
		websocketHandler: http.NotFoundHandler(),
		startTime:        time.Now(),
	}

	for _, opt := range opts {
		opt(srv)
	}

	// Register routes so endpoints are available for testing
	srv.registerRoutes()

	return srv
}

func withHealthChecks(checks ...HealthCheck) func(*Server) {
	return func(s *Server) {
		s.healthChecks = checks
	}
}

func withState(state domain.DeviceState) func(*Server) {
	return func(s *Server) {
		s.state = fixedState{state: state}
	}
}

func withConfig(mutate func(cfg *config.Config)) func(*Server) {
	return func(s *Server) {
		mutate(s.config)
	}
}

func withWebSocketHandler(h http.Handler) func(*Server) {
	return func(s *Server) {
		s.websocketHandler = h
	}
}

func withHTTPMetrics(m *metrics.HTTPMetrics) func(*Server) {
	return func(s *Server) {
		s.httpMetrics = m
	}
}

func withMetricsHandler(h http.Handler) func(*Server) {
	return func(s *Server) {
		s.metricsHandler = h
	}
}

// callHandler wraps a handler with error middleware, matching production behavior
func callHandler(handler echo.HandlerFunc, c echo.Context) error {
	return ErrorHandlingMiddleware()(handler)(c)
}
