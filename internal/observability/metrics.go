package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the Prometheus instruments used by the service.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	ActiveSessions    prometheus.Gauge
	SessionsStarted   prometheus.Counter
	PlacementFailures prometheus.Counter
	Callbacks         *prometheus.CounterVec
	Turns             *prometheus.CounterVec
	GenerationErrors  *prometheus.CounterVec
	GenerationLatency prometheus.Histogram
}

// NewMetrics registers instruments on a private registry so tests can build
// as many instances as they like.
func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	f := func(c prometheus.Collector) { reg.MustRegister(c) }

	m := &Metrics{
		registry: reg,
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Call sessions that have not reached a terminal status.",
		}),
		SessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_started_total",
			Help:      "Call sessions created by the initiator.",
		}),
		PlacementFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "placement_failures_total",
			Help:      "Outbound calls the carrier refused to place.",
		}),
		Callbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "callbacks_total",
			Help:      "Carrier callbacks by kind and outcome.",
		}, []string{"kind", "outcome"}),
		Turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcript_turns_total",
			Help:      "Transcript records appended by speaker.",
		}, []string{"speaker"}),
		GenerationErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_errors_total",
			Help:      "Reply generation failures by kind.",
		}, []string{"kind"}),
		GenerationLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_latency_ms",
			Help:      "Reply generation latency in milliseconds.",
			Buckets:   []float64{100, 250, 500, 750, 1000, 1500, 2500, 5000},
		}),
	}
	f(m.ActiveSessions)
	f(m.SessionsStarted)
	f(m.PlacementFailures)
	f(m.Callbacks)
	f(m.Turns)
	f(m.GenerationErrors)
	f(m.GenerationLatency)
	f(collectors.NewGoCollector())
	return m
}

func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.SessionsStarted.Inc()
	m.ActiveSessions.Inc()
}

func (m *Metrics) SessionTerminated() {
	if m == nil {
		return
	}
	m.ActiveSessions.Dec()
}

func (m *Metrics) PlacementFailed() {
	if m == nil {
		return
	}
	m.PlacementFailures.Inc()
}

func (m *Metrics) Callback(kind, outcome string) {
	if m == nil {
		return
	}
	m.Callbacks.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) Turn(speaker string) {
	if m == nil {
		return
	}
	m.Turns.WithLabelValues(speaker).Inc()
}

func (m *Metrics) GenerationFailed(kind string) {
	if m == nil {
		return
	}
	m.GenerationErrors.WithLabelValues(kind).Inc()
}

func (m *Metrics) ObserveGeneration(d time.Duration) {
	if m == nil {
		return
	}
	m.GenerationLatency.Observe(float64(d.Milliseconds()))
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
