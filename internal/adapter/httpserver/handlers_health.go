package httpserver

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/ledsync/internal/platform/version"
	"golang.org/x/sync/errgroup"
)

const readinessCheckTimeout = 5 * time.Second

const checkOK = "ok"

// HealthCheck is a named readiness check, such as the storage backend or the MQTT broker.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type readinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func (s *Server) registerHealthRoutes() {
	s.echo.GET("/health/live", s.handleLiveness)
	s.echo.GET("/health/ready", s.handleReadiness)
	s.echo.GET("/version", s.handleVersion)
}

func (s *Server) handleLiveness(c echo.Context) error {
	response := map[string]any{
		"status":          "ok",
		"uptime":          time.Since(s.startTime).Seconds(),
		"storage_backend": s.config.StorageBackend,
	}
	if err := c.JSON(http.StatusOK, response); err != nil {
		return fmt.Errorf("failed to write liveness response: %w", err)
	}
	return nil
}

// runChecks runs every check concurrently and returns each one's outcome by name.
func (s *Server) runChecks(ctx context.Context) (map[string]string, bool) {
	results := make(map[string]string, len(s.healthChecks))
	healthy := true

	var mu sync.Mutex
	var g errgroup.Group
	for _, hc := range s.healthChecks {
		g.Go(func() error {
			outcome := checkOK
			if err := hc.Check(ctx); err != nil {
				outcome = err.Error()
			}

			mu.Lock()
			defer mu.Unlock()
			results[hc.Name] = outcome
			healthy = healthy && outcome == checkOK
			return nil
		})
	}
	_ = g.Wait()

	return results, healthy
}

// handleReadiness reports every dependency, so an operator sees the broker
// and the store at once instead of only the first failure.
func (s *Server) handleReadiness(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), readinessCheckTimeout)
	defer cancel()

	checks, healthy := s.runChecks(ctx)

	status, response := http.StatusOK, readinessResponse{Status: "ready", Checks: checks}
	if !healthy {
		status, response.Status = http.StatusServiceUnavailable, "unhealthy"
	}

	if err := c.JSON(status, response); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleVersion(c echo.Context) error {
	if err := c.JSON(http.StatusOK, version.Get()); err != nil {
		return fmt.Errorf("failed to write version response: %w", err)
	}
	return nil
}
