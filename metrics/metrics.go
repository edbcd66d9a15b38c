package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is the main metrics collector. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	commands        *prometheus.CounterVec
	commandDuration *prometheus.HistogramVec
	projected       *prometheus.CounterVec
	projectionFails *prometheus.CounterVec
	deferred        prometheus.Counter
	backlog         prometheus.Gauge
	stuck           prometheus.Gauge
	waits           *prometheus.CounterVec
	waitPolls       prometheus.Histogram
	migrations      *prometheus.CounterVec
}

// NewMetrics creates a collector on its own registry
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinops",
			Name:      "commands_total",
			Help:      "Dispatched commands by type and outcome.",
		}, []string{"command", "outcome"}),
		commandDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clinops",
			Name:      "command_duration_seconds",
			Help:      "Time from dispatch to append.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"command"}),
		projected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinops",
			Name:      "events_projected_total",
			Help:      "Events applied to the read store.",
		}, []string{"event_type"}),
		projectionFails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinops",
			Name:      "projection_failures_total",
			Help:      "Failed projection attempts.",
		}, []string{"event_type"}),
		deferred: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clinops",
			Name:      "events_deferred_total",
			Help:      "Events held back behind an earlier event of the same aggregate.",
		}),
		backlog: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "clinops",
			Name:      "projection_backlog",
			Help:      "Events not yet projected.",
		}),
		stuck: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "clinops",
			Name:      "projection_stuck",
			Help:      "Unprojected events past the stuck attempt threshold.",
		}),
		waits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinops",
			Name:      "projection_waits_total",
			Help:      "Read-after-write waits by result.",
		}, []string{"result"}),
		waitPolls: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "clinops",
			Name:      "projection_wait_polls",
			Help:      "Predicate evaluations per wait.",
			Buckets:   []float64{1, 2, 3, 4, 6, 8, 12, 16},
		}),
		migrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinops",
			Name:      "legacy_migrations_total",
			Help:      "Legacy rows given an event stream, by entity and result.",
		}, []string{"entity", "result"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.commands, m.commandDuration,
		m.projected, m.projectionFails, m.deferred, m.backlog, m.stuck,
		m.waits, m.waitPolls,
		m.migrations,
	)
	return m
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveCommand records one dispatch
func (m *Metrics) ObserveCommand(command, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(command, outcome).Inc()
	m.commandDuration.WithLabelValues(command).Observe(d.Seconds())
}

// EventProjected counts an applied event
func (m *Metrics) EventProjected(eventType string) {
	if m == nil {
		return
	}
	m.projected.WithLabelValues(eventType).Inc()
}

// ProjectionFailed counts a failed attempt
func (m *Metrics) ProjectionFailed(eventType string) {
	if m == nil {
		return
	}
	m.projectionFails.WithLabelValues(eventType).Inc()
}

// EventDeferred counts an event held back by ordering
func (m *Metrics) EventDeferred() {
	if m == nil {
		return
	}
	m.deferred.Inc()
}

// SetBacklog publishes the reconciliation snapshot
func (m *Metrics) SetBacklog(pending, stuck int64) {
	if m == nil {
		return
	}
	m.backlog.Set(float64(pending))
	m.stuck.Set(float64(stuck))
}

// ObserveWait records a waiter result
func (m *Metrics) ObserveWait(found bool, polls int) {
	if m == nil {
		return
	}
	result := "timed_out"
	if found {
		result = "found"
	}
	m.waits.WithLabelValues(result).Inc()
	m.waitPolls.Observe(float64(polls))
}

// Migration counts a bridge migration attempt
func (m *Metrics) Migration(entity, result string) {
	if m == nil {
		return
	}
	m.migrations.WithLabelValues(entity, result).Inc()
}
