// Package breaker implements a per-agent circuit breaker state machine:
// closed, open, half-open, with admission control. The state/generation
// machinery follows the teacher's internal/circuitbreaker package closely,
// generalized from a single named breaker into a per-agent manager and
// extended with drift-triggered trips and an explicit OnStateChange hook
// alongside the transition log line.
package breaker

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// State is one of the three circuit breaker states.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// ErrCircuitOpen is the sentinel error for an open circuit. No Manager
// method returns it; IsAllowed reports the same condition as a bool.
var ErrCircuitOpen = errors.New("breaker: circuit is open")

// Config tunes one breaker's thresholds. Every breaker managed by a Manager
// shares the same Config.
type Config struct {
	FailureThreshold int
	SuccessThreshold int
	CoolDown         time.Duration
	DriftThreshold   float64
	// OnStateChange is invoked synchronously on every transition, while the
	// agent's circuit lock is still held.
	OnStateChange func(agentID string, from, to State, reason string)
	// Now allows tests to control the clock; defaults to time.Now.
	Now func() time.Time
}

func (c *Config) normalize() {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = 3
	}
	if c.CoolDown <= 0 {
		c.CoolDown = 60 * time.Second
	}
	if c.DriftThreshold <= 0 {
		c.DriftThreshold = 0.25
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// circuit holds one agent's breaker state.
type circuit struct {
	mu                  sync.Mutex
	state               State
	consecutiveFailures int
	halfOpenSuccesses   int
	openedAt            time.Time
	lastTransition      time.Time
	lastReason          string
}

// Manager owns one circuit per agent. All agents share a Config.
type Manager struct {
	cfg Config

	mu       sync.RWMutex
	circuits map[string]*circuit
}

// NewManager constructs a Manager. A zero-value cfg is filled with the
// specification's defaults (failureThreshold=5, successThreshold=3,
// coolDown=60s, driftThreshold=0.25).
func NewManager(cfg Config) *Manager {
	cfg.normalize()
	return &Manager{cfg: cfg, circuits: make(map[string]*circuit)}
}

func (m *Manager) circuitFor(agentID string) *circuit {
	m.mu.RLock()
	c, ok := m.circuits[agentID]
	m.mu.RUnlock()
	if ok {
		return c
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.circuits[agentID]; ok {
		return c
	}
	c = &circuit{state: StateClosed, lastTransition: m.cfg.Now()}
	m.circuits[agentID] = c
	return c
}

// State returns the agent's current state, resolving an open->half_open
// transition if the cool-down has elapsed.
func (m *Manager) State(agentID string) State {
	c := m.circuitFor(agentID)
	c.mu.Lock()
	defer c.mu.Unlock()
	m.resolveTimeoutLocked(agentID, c)
	return c.state
}

// IsAllowed returns false iff the agent's circuit is open.
func (m *Manager) IsAllowed(agentID string) bool {
	c := m.circuitFor(agentID)
	c.mu.Lock()
	defer c.mu.Unlock()
	m.resolveTimeoutLocked(agentID, c)
	return c.state != StateOpen
}

// resolveTimeoutLocked transitions open -> half_open once the cool-down has
// elapsed since openedAt. Must be called with c.mu held.
func (m *Manager) resolveTimeoutLocked(agentID string, c *circuit) {
	if c.state != StateOpen {
		return
	}
	if m.cfg.Now().Sub(c.openedAt) >= m.cfg.CoolDown {
		m.transitionLocked(agentID, c, StateHalfOpen, "cool-down elapsed")
	}
}

// transitionLocked changes state and fires OnStateChange. Must be called
// with c.mu held; OnStateChange is invoked while still holding the lock,
// matching the teacher's synchronous setState/OnStateChange call.
func (m *Manager) transitionLocked(agentID string, c *circuit, to State, reason string) {
	if c.state == to {
		return
	}
	from := c.state
	c.state = to
	c.lastTransition = m.cfg.Now()
	c.lastReason = reason

	switch to {
	case StateOpen:
		c.openedAt = c.lastTransition
		c.halfOpenSuccesses = 0
	case StateHalfOpen:
		c.halfOpenSuccesses = 0
	case StateClosed:
		c.consecutiveFailures = 0
		c.halfOpenSuccesses = 0
	}

	slog.Info("breaker: state transition", "agent_id", agentID, "from", from, "to", to, "reason", reason)
	if m.cfg.OnStateChange != nil {
		m.cfg.OnStateChange(agentID, from, to, reason)
	}
}

// RecordSuccess records a successful action. In half_open, enough successes
// close the circuit; in closed it resets the consecutive-failure counter.
func (m *Manager) RecordSuccess(agentID string) {
	c := m.circuitFor(agentID)
	c.mu.Lock()
	defer c.mu.Unlock()
	m.resolveTimeoutLocked(agentID, c)

	switch c.state {
	case StateClosed:
		c.consecutiveFailures = 0
	case StateHalfOpen:
		c.halfOpenSuccesses++
		if c.halfOpenSuccesses >= m.cfg.SuccessThreshold {
			m.transitionLocked(agentID, c, StateClosed, "half-open success threshold reached")
		}
	}
}

// RecordFailure records a failed action. In closed, enough consecutive
// failures trip the circuit open; in half_open, any failure reopens it.
func (m *Manager) RecordFailure(agentID, reason string) {
	c := m.circuitFor(agentID)
	c.mu.Lock()
	defer c.mu.Unlock()
	m.resolveTimeoutLocked(agentID, c)

	switch c.state {
	case StateClosed:
		c.consecutiveFailures++
		if c.consecutiveFailures >= m.cfg.FailureThreshold {
			m.transitionLocked(agentID, c, StateOpen, reason)
		}
	case StateHalfOpen:
		m.transitionLocked(agentID, c, StateOpen, reason)
	}
}

// RecordDrift trips the circuit open when score meets or exceeds the
// configured drift threshold, regardless of the consecutive-failure count.
func (m *Manager) RecordDrift(agentID string, score float64, reason string) {
	c := m.circuitFor(agentID)
	c.mu.Lock()
	defer c.mu.Unlock()
	m.resolveTimeoutLocked(agentID, c)

	if score >= m.cfg.DriftThreshold && c.state == StateClosed {
		m.transitionLocked(agentID, c, StateOpen, reason)
	}
}

// OpenCircuit forces the circuit open regardless of counters — an explicit
// halt.
func (m *Manager) OpenCircuit(agentID, reason string) {
	c := m.circuitFor(agentID)
	c.mu.Lock()
	defer c.mu.Unlock()
	m.transitionLocked(agentID, c, StateOpen, reason)
}

// CloseCircuit forces the circuit closed, bypassing half-open. Used for
// manual operator reset.
func (m *Manager) CloseCircuit(agentID string) {
	c := m.circuitFor(agentID)
	c.mu.Lock()
	defer c.mu.Unlock()
	m.transitionLocked(agentID, c, StateClosed, "manual reset")
}
