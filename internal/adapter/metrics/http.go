package metrics

import (
	"errors"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
)

// Route labels. Static assets and unrouted paths are folded so the label set
// stays bounded no matter what clients request.
const (
	routeStatic    = "static"
	routeUnmatched = "unmatched"
)

var apiRoutes = map[string]bool{"/led": true, "/data": true, "/state": true}

// HTTPMetrics tracks the REST surface: light toggles, sensor readings and state reads.
type HTTPMetrics struct {
	Requests        *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RateLimited     *prometheus.CounterVec
	InFlight        prometheus.Gauge
}

// NewHTTPMetrics creates and registers HTTP metrics on the given registry.
func NewHTTPMetrics(reg prometheus.Registerer) *HTTPMetrics {
	m := &HTTPMetrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "REST requests by route, method and status class.",
		}, []string{"route", "method", "status_class"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "REST request latency by route and method.",
			Buckets:   []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"route", "method"}),
		RateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the per-route rate limiter.",
		}, []string{"route"}),
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "REST requests currently being served.",
		}),
	}

	reg.MustRegister(m.Requests, m.RequestDuration, m.RateLimited, m.InFlight)
	return m
}

// routeLabel maps an Echo route pattern to a metric label. The second result
// is false for endpoints that are not measured: /ws, /metrics, /version and /health/*.
func routeLabel(path string) (string, bool) {
	switch {
	case apiRoutes[path]:
		return path, true
	case path == "/*":
		return routeStatic, true
	case path == "":
		return routeUnmatched, true
	default:
		return "", false
	}
}

func statusClass(status int) string {
	return strconv.Itoa(status/100) + "xx"
}

// responseStatus prefers the code of an unhandled echo.HTTPError, which Echo
// writes only after the middleware chain has returned.
func responseStatus(c echo.Context, err error) int {
	var httpErr *echo.HTTPError
	if err != nil && !c.Response().Committed && errors.As(err, &httpErr) {
		return httpErr.Code
	}
	return c.Response().Status
}

// ObserveRateLimited counts a request the limiter turned away. Safe on a nil receiver.
func (m *HTTPMetrics) ObserveRateLimited(route string) {
	if m == nil {
		return
	}
	m.RateLimited.WithLabelValues(route).Inc()
}

// Middleware records request counts and latency for the REST routes.
func (m *HTTPMetrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			route, measured := routeLabel(c.Path())
			if !measured {
				return next(c)
			}

			m.InFlight.Inc()
			defer m.InFlight.Dec()

			method := c.Request().Method
			timer := prometheus.NewTimer(m.RequestDuration.WithLabelValues(route, method))
			err := next(c)
			timer.ObserveDuration()

			m.Requests.WithLabelValues(route, method, statusClass(responseStatus(c, err))).Inc()
			return err
		}
	}
}
