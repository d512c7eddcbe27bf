package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the process metrics registry. A nil *Metrics is valid and
// turns every recording method into a no-op, so instrumented code never
// needs to care whether metrics are enabled.
type Metrics struct {
	registry *prometheus.Registry

	activeZombies     prometheus.Gauge
	detachedTeardowns prometheus.Counter
	staleCompletions  prometheus.Counter
	droppedCallIns    prometheus.Counter
}

// New creates a registry with all collectors registered
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		activeZombies: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "snapforge_active_zombies",
			Help: "Detached session teardowns still draining",
		}),
		detachedTeardowns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "snapforge_detached_teardowns_total",
			Help: "Session stops that exceeded the stop timeout and were detached",
		}),
		staleCompletions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "snapforge_stale_completions_total",
			Help: "Background lifecycle completions discarded as superseded",
		}),
		droppedCallIns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "snapforge_dropped_callins_total",
			Help: "Engine call-ins rejected because teardown had begun",
		}),
	}
	m.registry.MustRegister(
		m.activeZombies,
		m.detachedTeardowns,
		m.staleCompletions,
		m.droppedCallIns,
	)
	return m
}

// Handler returns the scrape endpoint handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// SetActiveZombies records the current registry size
func (m *Metrics) SetActiveZombies(n int) {
	if m == nil {
		return
	}
	m.activeZombies.Set(float64(n))
}

// IncDetachedTeardowns counts one zombie detachment
func (m *Metrics) IncDetachedTeardowns() {
	if m == nil {
		return
	}
	m.detachedTeardowns.Inc()
}

// IncStaleCompletions counts one discarded stale completion
func (m *Metrics) IncStaleCompletions() {
	if m == nil {
		return
	}
	m.staleCompletions.Inc()
}

// IncDroppedCallIns counts one call-in rejected by the admission gate
func (m *Metrics) IncDroppedCallIns() {
	if m == nil {
		return
	}
	m.droppedCallIns.Inc()
}
