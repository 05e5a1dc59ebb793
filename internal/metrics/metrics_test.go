package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestNewRegistersAllCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Decisions.WithLabelValues("allow").Inc()
	m.DriftScore.WithLabelValues("a1").Set(0.42)
	m.CircuitState.WithLabelValues("a1").Set(CircuitStateValue("open"))
	m.TripwireFailures.Inc()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error: %v", err)
	}
	if len(families) != 4 {
		t.Errorf("Gather() returned %d metric families, want 4", len(families))
	}
}

func TestCircuitStateValueMapping(t *testing.T) {
	cases := map[string]float64{
		"closed":    0,
		"half_open": 1,
		"open":      2,
		"unknown":   0,
	}
	for state, want := range cases {
		if got := CircuitStateValue(state); got != want {
			t.Errorf("CircuitStateValue(%q) = %v, want %v", state, got, want)
		}
	}
}

func TestDecisionsCounterIncrements(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Decisions.WithLabelValues("block").Inc()
	m.Decisions.WithLabelValues("block").Inc()

	metric := &dto.Metric{}
	m.Decisions.WithLabelValues("block").Write(metric)
	if metric.Counter.GetValue() != 2 {
		t.Errorf("block decisions counter = %v, want 2", metric.Counter.GetValue())
	}
}
