package metrics

import "github.com/prometheus/client_golang/prometheus"

// StorageMetrics holds Prometheus metrics for the persistence gateway.
type StorageMetrics struct {
	Operations        *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	CircuitState      prometheus.Gauge
}

// NewStorageMetrics creates and registers storage metrics on the given registry.
// backend labels every series ("file" or "redis").
func NewStorageMetrics(reg prometheus.Registerer, backend string) *StorageMetrics {
	labels := prometheus.Labels{"backend": backend}
	m := &StorageMetrics{
		Operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "storage",
			Name:        "operations_total",
			Help:        "Total number of storage operations, by operation and status.",
			ConstLabels: labels,
		}, []string{"operation", "status"}),
		OperationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "storage",
			Name:        "operation_duration_seconds",
			Help:        "Duration of storage operations in seconds.",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: labels,
		}, []string{"operation"}),
		CircuitState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "storage",
			Name:        "circuit_breaker_state",
			Help:        "Circuit breaker state (0=closed, 1=half-open, 2=open).",
			ConstLabels: labels,
		}),
	}

	reg.MustRegister(m.Operations, m.OperationDuration, m.CircuitState)
	return m
}

// Observe records one operation outcome. Safe to call on a nil receiver.
func (m *StorageMetrics) Observe(operation string, seconds float64, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.Operations.WithLabelValues(operation, status).Inc()
	m.OperationDuration.WithLabelValues(operation).Observe(seconds)
}
