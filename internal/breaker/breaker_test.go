package breaker

import (
	"testing"
	"time"
)

func newTestManager(now *time.Time, transitions *[]string) *Manager {
	return NewManager(Config{
		FailureThreshold: 5,
		SuccessThreshold: 3,
		CoolDown:         60 * time.Second,
		DriftThreshold:   0.25,
		Now:              func() time.Time { return *now },
		OnStateChange: func(agentID string, from, to State, reason string) {
			if transitions != nil {
				*transitions = append(*transitions, to.String())
			}
		},
	})
}

func TestNewCircuitStartsClosed(t *testing.T) {
	now := time.Now()
	m := newTestManager(&now, nil)

	if got := m.State("a1"); got != StateClosed {
		t.Errorf("initial state = %v, want closed", got)
	}
	if !m.IsAllowed("a1") {
		t.Error("a fresh closed circuit should allow")
	}
}

func TestFiveConsecutiveFailuresOpensCircuit(t *testing.T) {
	now := time.Now()
	var transitions []string
	m := newTestManager(&now, &transitions)

	for i := 0; i < 4; i++ {
		m.RecordFailure("a1", "test failure")
	}
	if got := m.State("a1"); got != StateClosed {
		t.Fatalf("state after 4 failures = %v, want still closed", got)
	}

	m.RecordFailure("a1", "test failure")
	if got := m.State("a1"); got != StateOpen {
		t.Errorf("state after 5 failures = %v, want open", got)
	}
	if m.IsAllowed("a1") {
		t.Error("an open circuit should not allow")
	}
}

func TestSuccessResetsConsecutiveFailureCounter(t *testing.T) {
	now := time.Now()
	m := newTestManager(&now, nil)

	for i := 0; i < 4; i++ {
		m.RecordFailure("a1", "test failure")
	}
	m.RecordSuccess("a1")
	for i := 0; i < 4; i++ {
		m.RecordFailure("a1", "test failure")
	}
	if got := m.State("a1"); got != StateClosed {
		t.Errorf("state = %v, want closed since success reset the counter", got)
	}
}

func TestCoolDownTransitionsToHalfOpen(t *testing.T) {
	now := time.Now()
	m := newTestManager(&now, nil)

	for i := 0; i < 5; i++ {
		m.RecordFailure("a1", "test failure")
	}
	if got := m.State("a1"); got != StateOpen {
		t.Fatalf("state = %v, want open", got)
	}

	now = now.Add(61 * time.Second)
	if got := m.State("a1"); got != StateHalfOpen {
		t.Errorf("state after cool-down = %v, want half_open", got)
	}
}

func TestHalfOpenClosesAfterSuccessThreshold(t *testing.T) {
	now := time.Now()
	m := newTestManager(&now, nil)

	for i := 0; i < 5; i++ {
		m.RecordFailure("a1", "test failure")
	}
	now = now.Add(61 * time.Second)
	m.State("a1") // resolve to half_open

	m.RecordSuccess("a1")
	m.RecordSuccess("a1")
	if got := m.State("a1"); got != StateHalfOpen {
		t.Fatalf("state after 2 successes = %v, want still half_open", got)
	}
	m.RecordSuccess("a1")
	if got := m.State("a1"); got != StateClosed {
		t.Errorf("state after 3 half-open successes = %v, want closed", got)
	}
}

func TestHalfOpenFailureReopens(t *testing.T) {
	now := time.Now()
	m := newTestManager(&now, nil)

	for i := 0; i < 5; i++ {
		m.RecordFailure("a1", "test failure")
	}
	now = now.Add(61 * time.Second)
	m.State("a1")

	m.RecordFailure("a1", "half-open probe failed")
	if got := m.State("a1"); got != StateOpen {
		t.Errorf("state = %v, want open after half-open failure", got)
	}
}

func TestRecordDriftTripsOpenFromClosed(t *testing.T) {
	now := time.Now()
	m := newTestManager(&now, nil)

	m.RecordDrift("a1", 0.5, "drift threshold exceeded")
	if got := m.State("a1"); got != StateOpen {
		t.Errorf("state = %v, want open after high drift", got)
	}
}

func TestRecordDriftBelowThresholdDoesNothing(t *testing.T) {
	now := time.Now()
	m := newTestManager(&now, nil)

	m.RecordDrift("a1", 0.1, "drift threshold exceeded")
	if got := m.State("a1"); got != StateClosed {
		t.Errorf("state = %v, want closed", got)
	}
}

func TestOpenAndCloseCircuitManualOverride(t *testing.T) {
	now := time.Now()
	m := newTestManager(&now, nil)

	m.OpenCircuit("a1", "operator halt")
	if got := m.State("a1"); got != StateOpen {
		t.Fatalf("state = %v, want open", got)
	}

	m.CloseCircuit("a1")
	if got := m.State("a1"); got != StateClosed {
		t.Errorf("state = %v, want closed after manual reset", got)
	}
}

func TestAgentsAreIndependent(t *testing.T) {
	now := time.Now()
	m := newTestManager(&now, nil)

	for i := 0; i < 5; i++ {
		m.RecordFailure("a1", "test failure")
	}
	if got := m.State("a2"); got != StateClosed {
		t.Errorf("a2 state = %v, want closed (independent of a1)", got)
	}
}
