package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/pdf-markup/internal/core/domain"
)

// ProcessMetrics tracks processing runs, gesture-created entities and
// consumed document.processed events.
type ProcessMetrics struct {
	registry *prometheus.Registry
	service  string

	processTotal    *prometheus.CounterVec
	processDuration *prometheus.HistogramVec
	processInFlight prometheus.Gauge
	processEntities *prometheus.HistogramVec
	entitiesCreated *prometheus.CounterVec
	eventsConsumed  *prometheus.CounterVec
	eventLag        *prometheus.HistogramVec
}

func NewProcessMetrics(service string) *ProcessMetrics {
	registry := prometheus.NewRegistry()

	processTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "process_total",
			Help:      "Total processing requests by mode and status.",
		},
		[]string{"service", "mode", "status"},
	)
	processDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "process_duration_seconds",
			Help:      "Processing duration in seconds by mode and status.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		},
		[]string{"service", "mode", "status"},
	)
	processInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "process_in_flight",
			Help:      "Number of in-flight processing requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	processEntities := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "process_entities",
			Help:      "Entities submitted per processing request.",
			Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100},
		},
		[]string{"service", "mode"},
	)
	entitiesCreated := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entities_created_total",
			Help:      "Entities created from gestures by kind.",
		},
		[]string{"service", "kind"},
	)
	eventsConsumed := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "consumed_total",
			Help:      "document.processed events consumed by mode.",
		},
		[]string{"service", "mode"},
	)
	eventLag := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "lag_seconds",
			Help:      "Delay between a run finishing and its event being consumed.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"service"},
	)

	registry.MustRegister(processTotal, processDuration, processInFlight, processEntities, entitiesCreated, eventsConsumed, eventLag)

	return &ProcessMetrics{
		registry:        registry,
		service:         service,
		processTotal:    processTotal,
		processDuration: processDuration,
		processInFlight: processInFlight,
		processEntities: processEntities,
		entitiesCreated: entitiesCreated,
		eventsConsumed:  eventsConsumed,
		eventLag:        eventLag,
	}
}

func (m *ProcessMetrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *ProcessMetrics) StartProcess(_ domain.Mode) {
	m.processInFlight.Inc()
}

func (m *ProcessMetrics) FinishProcess(mode domain.Mode, entityCount int, duration time.Duration, err error) {
	m.processInFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}

	m.processTotal.WithLabelValues(m.service, mode.String(), status).Inc()
	m.processDuration.WithLabelValues(m.service, mode.String(), status).Observe(duration.Seconds())
	m.processEntities.WithLabelValues(m.service, mode.String()).Observe(float64(entityCount))
}

func (m *ProcessMetrics) RecordEntity(kind domain.EntityKind) {
	m.entitiesCreated.WithLabelValues(m.service, string(kind)).Inc()
}

func (m *ProcessMetrics) ObserveEvent(mode domain.Mode, lag time.Duration) {
	m.eventsConsumed.WithLabelValues(m.service, mode.String()).Inc()
	if lag < 0 {
		return
	}
	m.eventLag.WithLabelValues(m.service).Observe(lag.Seconds())
}
