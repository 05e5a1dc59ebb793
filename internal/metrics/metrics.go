// Package metrics exposes Prometheus instrumentation for the Arbiter's
// decisions, per-agent drift score, and circuit state. Metrics are
// observability only and never influence a decision — the Engine records
// them after the Arbiter has already decided.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the counters and gauges registered against a single
// registry. A fresh Metrics can be constructed per Engine instance so tests
// don't collide on the global default registry.
type Metrics struct {
	Decisions        *prometheus.CounterVec
	DriftScore       *prometheus.GaugeVec
	CircuitState     *prometheus.GaugeVec
	TripwireFailures prometheus.Counter
}

// New registers a fresh set of metrics against reg. Passing
// prometheus.NewRegistry() isolates the metrics for tests; passing
// prometheus.DefaultRegisterer wires them into the process-wide /metrics
// endpoint a transport collaborator would expose.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sentinel_decisions_total",
			Help: "Total Arbiter decisions by outcome.",
		}, []string{"decision"}),
		DriftScore: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sentinel_drift_score",
			Help: "Current drift score per agent.",
		}, []string{"agent_id"}),
		CircuitState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sentinel_circuit_state",
			Help: "Current circuit breaker state per agent (0=closed, 1=half_open, 2=open).",
		}, []string{"agent_id"}),
		TripwireFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sentinel_tripwire_failures_total",
			Help: "Total tripwire probe failures across all agents.",
		}),
	}

	reg.MustRegister(m.Decisions, m.DriftScore, m.CircuitState, m.TripwireFailures)
	return m
}

// CircuitStateValue maps a breaker state string to the gauge encoding used
// by CircuitState.
func CircuitStateValue(state string) float64 {
	switch state {
	case "half_open":
		return 1
	case "open":
		return 2
	default:
		return 0
	}
}
