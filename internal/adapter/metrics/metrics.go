package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ledsync"

// Set is every collector the server exports: the WebSocket fan-out, the REST
// routes and the persistence gateway, all on one registry.
type Set struct {
	Registry  *prometheus.Registry
	WebSocket *WebSocketMetrics
	HTTP      *HTTPMetrics
	Storage   *StorageMetrics
}

// NewSet builds a registry with runtime collectors and registers the ledsync
// metrics on it. backend labels the storage series.
func NewSet(backend string) *Set {
	reg := NewRegistry()
	return &Set{
		Registry:  reg,
		WebSocket: NewWebSocketMetrics(reg),
		HTTP:      NewHTTPMetrics(reg),
		Storage:   NewStorageMetrics(reg, backend),
	}
}

// Handler serves the set for /metrics.
func (s *Set) Handler() http.Handler {
	return Handler(s.Registry)
}

// NewRegistry creates a Prometheus registry with Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

// Handler returns an http.Handler that serves the metrics gathered by reg.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}
