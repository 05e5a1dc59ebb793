package monitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ocx/sentinel/internal/baseline"
	"github.com/ocx/sentinel/internal/embedding"
	"github.com/ocx/sentinel/internal/frame"
)

func newTestMonitor() (*Monitor, *baseline.Store) {
	store := baseline.New()
	m := New(store, Config{
		WindowSize:               10,
		SemanticDriftThreshold:   0.15,
		TripwireFailureThreshold: 0.3,
		BaselineTestInterval:     10 * time.Millisecond,
	})
	return m, store
}

func TestRecordOperationTracksPassFailCounts(t *testing.T) {
	m, _ := newTestMonitor()
	f := frame.Parse("⊕◊▶β")

	m.RecordOperation("a1", f, []string{"read_file"}, true, "", nil)
	metrics := m.RecordOperation("a1", f, []string{"read_file"}, false, "", nil)

	if metrics.TestsPassed != 1 || metrics.TestsFailed != 1 {
		t.Errorf("TestsPassed=%d TestsFailed=%d, want 1/1", metrics.TestsPassed, metrics.TestsFailed)
	}
}

func TestCurrentDriftScoreUsesBaselineComparison(t *testing.T) {
	m, store := newTestMonitor()
	f := frame.Parse("⊕◊▶β")
	store.Record("a1", f, []string{"read_file"}, embedding.Vector{1, 0})

	drift := m.CurrentDriftScore("a1", f, []string{"delete_all"}, embedding.Vector{1, 0})
	if drift <= 0 {
		t.Error("drift score should be positive when observed behavior diverges from baseline")
	}
}

func TestWindowDriftGrowsWithEmbeddingDivergence(t *testing.T) {
	m, _ := newTestMonitor()
	f := frame.Parse("⊕◊▶β")

	stable := embedding.Vector{1, 0}
	for i := 0; i < 6; i++ {
		m.RecordOperation("a1", f, nil, true, "", stable)
	}
	stableDrift := m.CurrentDriftScore("a1", f, nil, nil)

	m2, _ := newTestMonitor()
	drifting := []embedding.Vector{{1, 0}, {1, 0}, {1, 0}, {0, 1}, {0, 1}, {0, 1}}
	for _, v := range drifting {
		m2.RecordOperation("a1", f, nil, true, "", v)
	}
	divergedDrift := m2.CurrentDriftScore("a1", f, nil, nil)

	if divergedDrift <= stableDrift {
		t.Errorf("diverged drift (%v) should exceed stable drift (%v)", divergedDrift, stableDrift)
	}
}

func TestTrendStableWithFewSamples(t *testing.T) {
	m, _ := newTestMonitor()
	f := frame.Parse("⊕◊▶β")
	m.RecordOperation("a1", f, nil, true, "", embedding.Vector{1, 0})

	if trend := m.Trend("a1"); trend != TrendStable {
		t.Errorf("Trend with <3 samples = %v, want stable", trend)
	}
}

func TestTrendComparesLast5DistancesToPrior5(t *testing.T) {
	m := New(baseline.New(), Config{WindowSize: 20})
	f := frame.Parse("⊕◊▶β")

	stable := embedding.Vector{1, 0}
	orthogonal := embedding.Vector{0, 1}

	// 6 identical samples yield 5 consecutive distances of 0.
	for i := 0; i < 6; i++ {
		m.RecordOperation("a1", f, nil, true, "", stable)
	}
	// 6 alternating samples yield 6 more consecutive distances of 0.5,
	// for 11 distances total: [0,0,0,0,0, 0.5,0.5,0.5,0.5,0.5,0.5].
	next := []embedding.Vector{orthogonal, stable, orthogonal, stable, orthogonal, stable}
	for _, v := range next {
		m.RecordOperation("a1", f, nil, true, "", v)
	}

	// The last 5 distances (all 0.5) vs the prior 5 ([0,0,0,0,0.5], mean
	// 0.1) should register a clear increase. A 2-vs-2 comparison would
	// instead compare two identical 0.5/0.5 windows and report stable.
	if trend := m.Trend("a1"); trend != TrendIncreasing {
		t.Errorf("Trend = %v, want increasing when the last 5 distances exceed the prior 5", trend)
	}
}

func TestEmergentProtocolAlertOnDivergentBehaviorAcrossSenders(t *testing.T) {
	m, _ := newTestMonitor()
	f := frame.Parse("⊕◊▶β")

	metrics := m.RecordOperation("a1", f, []string{"read_file"}, true, "sender1", nil)
	metrics = m.RecordOperation("a1", f, []string{"write_file"}, true, "sender2", nil)
	metrics = m.RecordOperation("a1", f, []string{"delete_file"}, true, "sender3", nil)

	found := false
	for _, alert := range metrics.Alerts {
		if alert.Type == AlertEmergentProtocol {
			found = true
		}
	}
	if !found {
		t.Error("expected an emergent_protocol alert after 3 distinct senders diverge on the same frame")
	}
}

func TestSemanticErosionAlertOnHighDrift(t *testing.T) {
	m, store := newTestMonitor()
	f := frame.Parse("⊕◊▶β")
	store.Record("a1", f, []string{"read_file"}, embedding.Vector{1, 0})

	metrics := m.RecordOperation("a1", f, []string{"delete_everything", "exfiltrate"}, true, "", embedding.Vector{0, 1})

	found := false
	for _, alert := range metrics.Alerts {
		if alert.Type == AlertSemanticErosion {
			found = true
		}
	}
	if !found {
		t.Error("expected a semantic_erosion alert when drift exceeds threshold")
	}
}

func TestGoalDisplacementAlertOnHighTripwireFailureRate(t *testing.T) {
	m, _ := newTestMonitor()
	f := frame.Parse("⊕◊▶β")

	m.RecordOperation("a1", f, nil, true, "", nil)
	m.RecordTripwireResult("a1", false)
	m.RecordTripwireResult("a1", false)
	metrics := m.RecordOperation("a1", f, nil, true, "", nil)

	found := false
	for _, alert := range metrics.Alerts {
		if alert.Type == AlertGoalDisplacement {
			found = true
		}
	}
	if !found {
		t.Error("expected a goal_displacement alert when tripwire failure rate exceeds threshold")
	}
}

func TestDriftMetricsForUnknownAgent(t *testing.T) {
	m, _ := newTestMonitor()
	if _, err := m.DriftMetricsFor("ghost"); !errors.Is(err, ErrUnknownAgent) {
		t.Errorf("DriftMetricsFor(unrecorded) = %v, want ErrUnknownAgent", err)
	}

	f := frame.Parse("⊕◊▶β")
	m.RecordOperation("a1", f, []string{"read_file"}, true, "", nil)

	metrics, err := m.DriftMetricsFor("a1")
	if err != nil {
		t.Fatalf("DriftMetricsFor(recorded) returned error: %v", err)
	}
	if metrics.TestsPassed != 1 {
		t.Errorf("TestsPassed = %d, want 1", metrics.TestsPassed)
	}
}

func TestRunPeriodicBaselineTestsStopsOnContextCancel(t *testing.T) {
	m, _ := newTestMonitor()
	f := frame.Parse("⊕◊▶β")
	m.RecordOperation("a1", f, nil, true, "", nil)

	ctx, cancel := context.WithCancel(context.Background())
	ticked := make(chan string, 4)
	done := make(chan struct{})

	go func() {
		m.RunPeriodicBaselineTests(ctx, func(agentID string) { ticked <- agentID })
		close(done)
	}()

	select {
	case id := <-ticked:
		if id != "a1" {
			t.Errorf("onTick agentID = %q, want a1", id)
		}
	case <-time.After(time.Second):
		t.Fatal("expected at least one tick before timeout")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected sweep goroutine to exit after context cancellation")
	}
}
