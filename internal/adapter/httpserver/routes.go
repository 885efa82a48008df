package httpserver

import (
	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pscheid92/ledsync/internal/platform/correlation"
)

const maxReadingBodySize = "64K"

func (s *Server) registerRoutes() {
	s.echo.Use(s.setupCorrelationMiddleware())
	s.echo.Use(s.setupRequestLoggerMiddleware())
	s.echo.Use(middleware.Recover())
	if s.httpMetrics != nil {
		s.echo.Use(s.httpMetrics.Middleware())
	}
	s.echo.Use(ErrorHandlingMiddleware())

	s.registerHealthRoutes()
	s.registerAPIRoutes()

	s.echo.GET("/ws", echo.WrapHandler(s.websocketHandler))
	if s.metricsHandler != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.metricsHandler))
	}

	if s.config.StaticDir != "" {
		s.echo.Static("/", s.config.StaticDir)
	}
}

func (s *Server) registerAPIRoutes() {
	s.echo.GET("/led", s.handleGetLightFlag)
	s.echo.POST("/led", s.handleToggleLightFlag, s.newRouteLimiter(s.toggleBudget()))
	s.echo.GET("/data", s.handleGetReadings)
	s.echo.POST("/data", s.handleAppendReading, s.newRouteLimiter(s.readingBudget()), middleware.BodyLimit(maxReadingBodySize))
	s.echo.GET("/state", s.handleGetState)
}

// setupCorrelationMiddleware tags every request with an id, reusing an inbound X-Request-ID.
func (s *Server) setupCorrelationMiddleware() echo.MiddlewareFunc {
	return middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: correlation.NewID,
		RequestIDHandler: func(c echo.Context, id string) {
			ctx := correlation.WithID(c.Request().Context(), id)
			c.SetRequest(c.Request().WithContext(ctx))
		},
	})
}

func (s *Server) setupRequestLoggerMiddleware() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
			}
			if v.Error != nil {
				attrs = append(attrs, "error", v.Error)
			}
			slog.InfoContext(c.Request().Context(), "Request", attrs...)
			return nil
		},
	})
}
