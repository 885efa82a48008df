package httpserver

import (
	"math"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	apperrors "github.com/pscheid92/ledsync/internal/platform/errors"
	"golang.org/x/time/rate"
)

const rateLimiterExpiry = 5 * time.Minute

// routeBudget is the token bucket one write route grants each client IP.
type routeBudget struct {
	route string
	rate  float64
	burst int
}

// toggleBudget covers POST /led, readingBudget covers POST /data. A sensor
// posting on its cadence never eats into a dashboard's toggle budget.
func (s *Server) toggleBudget() routeBudget {
	return routeBudget{route: "/led", rate: s.config.HTTPRateLimit, burst: s.config.HTTPRateBurst}
}

func (s *Server) readingBudget() routeBudget {
	return routeBudget{route: "/data", rate: s.config.ReadingRateLimit, burst: s.config.ReadingRateBurst}
}

// retryAfter is the time, in whole seconds, until the bucket refills one token.
func (b routeBudget) retryAfter() int {
	return int(math.Ceil(1 / b.rate))
}

// newRouteLimiter builds a limiter with its own store, so budgets never
// leak across routes even for the same client.
func (s *Server) newRouteLimiter(b routeBudget) echo.MiddlewareFunc {
	store := middleware.NewRateLimiterMemoryStoreWithConfig(
		middleware.RateLimiterMemoryStoreConfig{
			Rate:      rate.Limit(b.rate),
			Burst:     b.burst,
			ExpiresIn: rateLimiterExpiry,
		},
	)
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		Store: store,
		DenyHandler: func(c echo.Context, identifier string, _ error) error {
			s.httpMetrics.ObserveRateLimited(b.route)

			retry := b.retryAfter()
			c.Response().Header().Set("Retry-After", strconv.Itoa(retry))
			return HandleError(c, apperrors.RateLimitError("rate limit exceeded").
				WithContext("route", b.route).
				WithContext("client_ip", identifier).
				WithContext("retry_after_seconds", retry))
		},
	})
}
