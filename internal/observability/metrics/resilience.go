package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Breaker state gauge values.
const (
	breakerClosed   = 0
	breakerHalfOpen = 1
	breakerOpen     = 2
)

// ResilienceMetrics exports retry attempts and circuit breaker state for
// outbound calls. It satisfies resilience.Observer.
type ResilienceMetrics struct {
	registry *prometheus.Registry
	service  string

	retries      *prometheus.CounterVec
	breakerState *prometheus.GaugeVec
}

func NewResilienceMetrics(service string) *ResilienceMetrics {
	registry := prometheus.NewRegistry()

	retries := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resilience",
			Name:      "retries_total",
			Help:      "Retried outbound calls by operation.",
		},
		[]string{"service", "operation"},
	)
	breakerState := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "resilience",
			Name:      "breaker_state",
			Help:      "Circuit breaker state by operation: 0 closed, 1 half-open, 2 open.",
		},
		[]string{"service", "operation"},
	)
	registry.MustRegister(retries, breakerState)

	return &ResilienceMetrics{
		registry:     registry,
		service:      service,
		retries:      retries,
		breakerState: breakerState,
	}
}

func (m *ResilienceMetrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *ResilienceMetrics) ObserveRetry(operation string) {
	m.retries.WithLabelValues(m.service, operation).Inc()
}

func (m *ResilienceMetrics) ObserveBreakerState(operation, state string) {
	value := breakerClosed
	switch state {
	case "half-open":
		value = breakerHalfOpen
	case "open":
		value = breakerOpen
	}
	m.breakerState.WithLabelValues(m.service, operation).Set(float64(value))
}
