// Package metrics exposes scheduler and action metrics to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tabletop/internal/core"
	"tabletop/internal/simulation"
)

// Metrics is a simulation.Observer that records action executions, plus
// gauges the service keeps current.
type Metrics struct {
	registry *prometheus.Registry

	started     prometheus.Counter
	completed   *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	inFlight    prometheus.Gauge
	running     prometheus.Gauge
	transitions *prometheus.CounterVec
}

// New registers the metrics with a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		started: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tabletop_actions_started_total",
			Help: "Actions that began executing",
		}),
		completed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tabletop_actions_completed_total",
			Help: "Actions that completed, by kind and outcome",
		}, []string{"kind", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tabletop_action_duration_seconds",
			Help:    "Action execution time",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tabletop_actions_in_flight",
			Help: "Actions currently executing",
		}),
		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tabletop_simulations_running",
			Help: "Simulations that are started and not yet finished or terminated",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tabletop_simulation_transitions_total",
			Help: "Simulation state transitions, by target state",
		}, []string{"state"}),
	}
	m.registry.MustRegister(
		m.started,
		m.completed,
		m.duration,
		m.inFlight,
		m.running,
		m.transitions,
	)
	return m
}

// Started implements simulation.Observer.
func (m *Metrics) Started(simulation.Entry) {
	m.started.Inc()
	m.inFlight.Inc()
}

// Finished implements simulation.Observer.
func (m *Metrics) Finished(r core.ExecutionReport) {
	m.inFlight.Dec()
	kind := r.Kind
	if kind == "" {
		kind = "unknown"
	}
	m.completed.WithLabelValues(kind, r.Outcome.String()).Inc()
	m.duration.WithLabelValues(kind).Observe(r.Duration.Seconds())
}

// Transition records a state change of a simulation.
func (m *Metrics) Transition(from, to simulation.State) {
	m.transitions.WithLabelValues(to.String()).Inc()
	active := func(s simulation.State) bool { return s == simulation.Running || s == simulation.Paused }
	switch {
	case !active(from) && active(to):
		m.running.Inc()
	case active(from) && !active(to):
		m.running.Dec()
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
