// Package monitor tracks per-agent embedding trend, drift score, and
// emergent-protocol signals, emitting bounded alert rings. Its sweep
// goroutine follows the teacher's ContinuousAccessEvaluator: a ticker loop
// guarded by its own lock, started and stopped explicitly, never implicit
// process-wide state.
package monitor

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/ocx/sentinel/internal/baseline"
	"github.com/ocx/sentinel/internal/embedding"
	"github.com/ocx/sentinel/internal/frame"
)

const maxAlerts = 100

// ErrUnknownAgent is returned by DriftMetricsFor for an agent ID the monitor
// holds no state for.
var ErrUnknownAgent = errors.New("monitor: unknown agent")

// AlertType enumerates the kinds of drift alert the monitor can emit.
type AlertType string

const (
	AlertSemanticErosion  AlertType = "semantic_erosion"
	AlertEmergentProtocol AlertType = "emergent_protocol"
	AlertGoalDisplacement AlertType = "goal_displacement"
	AlertPatternLockIn    AlertType = "pattern_lock_in"
)

// Severity of a DriftAlert.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Trend describes the direction of recent drift.
type Trend string

const (
	TrendStable      Trend = "stable"
	TrendIncreasing  Trend = "increasing"
	TrendDecreasing  Trend = "decreasing"
)

// DriftAlert is a single emitted observation of possible drift.
type DriftAlert struct {
	AlertID    string
	AgentID    string
	Type       AlertType
	Severity   Severity
	Message    string
	DetectedAt time.Time
	Evidence   map[string]string
}

type embeddingSample struct {
	vector embedding.Vector
	at     time.Time
}

type senderObservation struct {
	senderID  string
	behaviors map[string]bool
}

// DriftMetrics is the per-agent snapshot returned by RecordOperation and
// read by the Arbiter and Circuit Breaker.
type DriftMetrics struct {
	AgentID            string
	CurrentDriftScore  float64
	Trend              Trend
	TestsPassed        int
	TestsFailed        int
	TripwiresTriggered int
	Alerts             []DriftAlert
}

type agentState struct {
	mu                 sync.Mutex
	embeddings         *ring[embeddingSample]
	alerts             *ring[DriftAlert]
	testsPassed        int
	testsFailed        int
	tripwiresTriggered int
	lastBaselineTestAt time.Time
	recentBySameFrame  map[string][]senderObservation // intentHash -> observations
}

func newAgentState(windowSize int) *agentState {
	return &agentState{
		embeddings:        newRing[embeddingSample](windowSize),
		alerts:            newRing[DriftAlert](maxAlerts),
		recentBySameFrame: make(map[string][]senderObservation),
	}
}

// Config configures the monitor's thresholds and window sizes.
type Config struct {
	WindowSize               int
	SemanticDriftThreshold   float64
	TripwireFailureThreshold float64
	BaselineTestInterval     time.Duration
}

// Monitor is the Continuous Monitor component. One instance serves all
// agents; per-agent state is isolated behind its own mutex.
type Monitor struct {
	cfg      Config
	baseline *baseline.Store

	mu     sync.RWMutex
	agents map[string]*agentState

	alertSeq uint64
	seqMu    sync.Mutex
}

// New constructs a Monitor backed by store for baseline comparisons.
func New(store *baseline.Store, cfg Config) *Monitor {
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = 100
	}
	if cfg.SemanticDriftThreshold <= 0 {
		cfg.SemanticDriftThreshold = 0.15
	}
	if cfg.TripwireFailureThreshold <= 0 {
		cfg.TripwireFailureThreshold = 0.3
	}
	if cfg.BaselineTestInterval <= 0 {
		cfg.BaselineTestInterval = 60 * time.Second
	}
	return &Monitor{
		cfg:      cfg,
		baseline: store,
		agents:   make(map[string]*agentState),
	}
}

func (m *Monitor) stateFor(agentID string) *agentState {
	m.mu.RLock()
	st, ok := m.agents[agentID]
	m.mu.RUnlock()
	if ok {
		return st
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.agents[agentID]; ok {
		return st
	}
	st = newAgentState(m.cfg.WindowSize)
	m.agents[agentID] = st
	return st
}

func (m *Monitor) nextAlertID() string {
	m.seqMu.Lock()
	defer m.seqMu.Unlock()
	m.alertSeq++
	return "alert-" + time.Now().UTC().Format("20060102T150405") + "-" + itoa(m.alertSeq)
}

func itoa(v uint64) string {
	if v == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}

// RecordOperation is the canonical intake point, called by the Arbiter once
// per evaluated action. It updates rolling counters, the embedding window,
// and may emit alerts; it returns the resulting DriftMetrics snapshot.
func (m *Monitor) RecordOperation(agentID string, f frame.ParsedFrame, behaviors []string, success bool, senderID string, observedEmbedding embedding.Vector) DriftMetrics {
	st := m.stateFor(agentID)

	st.mu.Lock()
	defer st.mu.Unlock()

	if success {
		st.testsPassed++
	} else {
		st.testsFailed++
	}

	now := time.Now()
	if len(observedEmbedding) > 0 {
		st.embeddings.push(embeddingSample{vector: observedEmbedding, at: now})
	}

	behaviorSet := make(map[string]bool, len(behaviors))
	for _, b := range behaviors {
		behaviorSet[b] = true
	}
	if senderID != "" {
		obs := st.recentBySameFrame[f.IntentHash]
		obs = append(obs, senderObservation{senderID: senderID, behaviors: behaviorSet})
		if len(obs) > 16 {
			obs = obs[len(obs)-16:]
		}
		st.recentBySameFrame[f.IntentHash] = obs
	}

	drift := m.currentDriftScoreLocked(agentID, st, f, behaviors, observedEmbedding)

	var baselineDrift float64
	if m.baseline != nil {
		if cmp := m.baseline.Compare(agentID, f, behaviors, observedEmbedding); cmp.HasBaseline {
			baselineDrift = cmp.DriftScore
		}
	}
	m.maybeEmitSemanticErosion(st, agentID, baselineDrift)
	m.maybeEmitEmergentProtocol(st, agentID, f.IntentHash)
	m.maybeEmitGoalDisplacement(st, agentID)

	return DriftMetrics{
		AgentID:            agentID,
		CurrentDriftScore:  drift,
		Trend:              m.trendLocked(st),
		TestsPassed:        st.testsPassed,
		TestsFailed:        st.testsFailed,
		TripwiresTriggered: st.tripwiresTriggered,
		Alerts:             st.alerts.slice(),
	}
}

// RecordTripwireResult feeds a tripwire probe outcome into the agent's
// counters so goal-displacement detection can see it.
func (m *Monitor) RecordTripwireResult(agentID string, passed bool) {
	st := m.stateFor(agentID)
	st.mu.Lock()
	defer st.mu.Unlock()
	if !passed {
		st.tripwiresTriggered++
	}
}

// AgentDriftScore reports agentID's current drift derived purely from its
// own rolling embedding window — no baseline comparison. Callers that have
// not yet recorded an observation for the action under evaluation (the
// Arbiter's Evaluate path, before Report runs) use this instead of
// CurrentDriftScore: comparing a not-yet-observed action against a baseline
// would score an empty observation as maximally drifted.
func (m *Monitor) AgentDriftScore(agentID string) float64 {
	st := m.stateFor(agentID)
	st.mu.Lock()
	defer st.mu.Unlock()
	return m.windowDrift(st)
}

// CurrentDriftScore derives from (i) a baseline comparison when one exists,
// and (ii) mean cosine distance between the first and second half of the
// embedding window when >=2 embeddings exist. Result is the max of the two,
// clamped to [0,1].
func (m *Monitor) CurrentDriftScore(agentID string, f frame.ParsedFrame, behaviors []string, observedEmbedding embedding.Vector) float64 {
	st := m.stateFor(agentID)
	st.mu.Lock()
	defer st.mu.Unlock()
	return m.currentDriftScoreLocked(agentID, st, f, behaviors, observedEmbedding)
}

func (m *Monitor) currentDriftScoreLocked(agentID string, st *agentState, f frame.ParsedFrame, behaviors []string, observedEmbedding embedding.Vector) float64 {
	var baselineDrift float64
	if m.baseline != nil {
		cmp := m.baseline.Compare(agentID, f, behaviors, observedEmbedding)
		if cmp.HasBaseline {
			baselineDrift = cmp.DriftScore
		}
	}

	windowDrift := m.windowDrift(st)

	drift := baselineDrift
	if windowDrift > drift {
		drift = windowDrift
	}
	if drift > 1 {
		drift = 1
	}
	if drift < 0 {
		drift = 0
	}
	return drift
}

func (m *Monitor) windowDrift(st *agentState) float64 {
	samples := st.embeddings.slice()
	if len(samples) < 2 {
		return 0
	}
	mid := len(samples) / 2
	firstHalf := make([]embedding.Vector, 0, mid)
	for _, s := range samples[:mid] {
		firstHalf = append(firstHalf, s.vector)
	}
	secondHalf := make([]embedding.Vector, 0, len(samples)-mid)
	for _, s := range samples[mid:] {
		secondHalf = append(secondHalf, s.vector)
	}

	var total float64
	var count int
	for _, a := range firstHalf {
		for _, b := range secondHalf {
			total += embedding.CosineDistance(a, b)
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return total / float64(count)
}

// Trend compares the last 5 embedding distances to the prior 5; stable if
// |Δmean| < 0.02, else the direction of the change.
func (m *Monitor) Trend(agentID string) Trend {
	st := m.stateFor(agentID)
	st.mu.Lock()
	defer st.mu.Unlock()
	return m.trendLocked(st)
}

func (m *Monitor) trendLocked(st *agentState) Trend {
	samples := st.embeddings.slice()
	if len(samples) < 3 {
		return TrendStable
	}

	var distances []float64
	for i := 1; i < len(samples); i++ {
		distances = append(distances, embedding.CosineDistance(samples[i-1].vector, samples[i].vector))
	}

	if len(distances) < 2 {
		return TrendStable
	}

	const window = 5
	recentLen := window
	if recentLen > len(distances) {
		recentLen = len(distances)
	}
	recent := distances[len(distances)-recentLen:]

	remaining := distances[:len(distances)-recentLen]
	priorLen := window
	if priorLen > len(remaining) {
		priorLen = len(remaining)
	}
	prior := remaining[len(remaining)-priorLen:]
	if len(prior) == 0 {
		return TrendStable
	}

	recentMean := mean(recent)
	priorMean := mean(prior)
	delta := recentMean - priorMean

	if delta > 0.02 {
		return TrendIncreasing
	}
	if delta < -0.02 {
		return TrendDecreasing
	}
	return TrendStable
}

func mean(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

func (m *Monitor) maybeEmitSemanticErosion(st *agentState, agentID string, drift float64) {
	if drift <= m.cfg.SemanticDriftThreshold {
		return
	}
	m.emit(st, agentID, AlertSemanticErosion, SeverityHigh,
		"baseline drift exceeds semantic drift threshold",
		map[string]string{"drift_score": ftoa(drift), "threshold": ftoa(m.cfg.SemanticDriftThreshold)})
}

func (m *Monitor) maybeEmitEmergentProtocol(st *agentState, agentID, intentHash string) {
	obs := st.recentBySameFrame[intentHash]
	if len(obs) < 3 {
		return
	}
	senders := make(map[string]bool)
	var signatures []string
	for _, o := range obs {
		senders[o.senderID] = true
		signatures = append(signatures, behaviorSignature(o.behaviors))
	}
	if len(senders) < 3 {
		return
	}
	distinctSignatures := make(map[string]bool)
	for _, sig := range signatures {
		distinctSignatures[sig] = true
	}
	if len(distinctSignatures) < 2 {
		return
	}
	m.emit(st, agentID, AlertEmergentProtocol, SeverityMedium,
		"same frame from >=3 distinct senders yields divergent behavior sets",
		map[string]string{"intent_hash": intentHash, "distinct_senders": itoa(uint64(len(senders)))})
}

func (m *Monitor) maybeEmitGoalDisplacement(st *agentState, agentID string) {
	total := st.testsPassed + st.testsFailed
	if total == 0 {
		return
	}
	rate := float64(st.tripwiresTriggered) / float64(total)
	if rate <= m.cfg.TripwireFailureThreshold {
		return
	}
	m.emit(st, agentID, AlertGoalDisplacement, SeverityCritical,
		"tripwire failure rate exceeds threshold",
		map[string]string{"rate": ftoa(rate), "threshold": ftoa(m.cfg.TripwireFailureThreshold)})
}

func (m *Monitor) emit(st *agentState, agentID string, t AlertType, sev Severity, msg string, evidence map[string]string) {
	a := DriftAlert{
		AlertID:    m.nextAlertID(),
		AgentID:    agentID,
		Type:       t,
		Severity:   sev,
		Message:    msg,
		DetectedAt: time.Now(),
		Evidence:   evidence,
	}
	st.alerts.push(a)
	slog.Info("monitor: drift alert emitted", "agent_id", agentID, "type", t, "severity", sev)
}

func behaviorSignature(behaviors map[string]bool) string {
	keys := make([]string, 0, len(behaviors))
	for k := range behaviors {
		keys = append(keys, k)
	}
	// a small, fixed-size sorted join is enough to distinguish behavior sets
	// without pulling in a full canonicalization helper here.
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j-1] > keys[j]; j-- {
			keys[j-1], keys[j] = keys[j], keys[j-1]
		}
	}
	out := ""
	for _, k := range keys {
		out += k + ","
	}
	return out
}

func ftoa(f float64) string {
	return strconv.FormatFloat(f, 'f', 4, 64)
}

// DriftMetricsFor returns the current snapshot for an agent the monitor
// holds state for, or ErrUnknownAgent otherwise. State is created by the
// first call for that agent to any other Monitor entry point
// (RecordOperation, RecordTripwireResult, AgentDriftScore,
// CurrentDriftScore, Trend); DriftMetricsFor itself never creates it.
func (m *Monitor) DriftMetricsFor(agentID string) (DriftMetrics, error) {
	m.mu.RLock()
	st, ok := m.agents[agentID]
	m.mu.RUnlock()
	if !ok {
		return DriftMetrics{}, ErrUnknownAgent
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	return DriftMetrics{
		AgentID:            agentID,
		CurrentDriftScore:  m.windowDrift(st),
		Trend:              m.trendLocked(st),
		TestsPassed:        st.testsPassed,
		TestsFailed:        st.testsFailed,
		TripwiresTriggered: st.tripwiresTriggered,
		Alerts:             st.alerts.slice(),
	}, nil
}

// RunPeriodicBaselineTests runs a sweep that, on every tick of the
// configured interval, stamps each known agent's last-baseline-test time
// and calls onTick for it. It blocks until ctx is canceled, so callers run
// it in its own goroutine; it never blocks the Arbiter fast path.
func (m *Monitor) RunPeriodicBaselineTests(ctx context.Context, onTick func(agentID string)) {
	ticker := time.NewTicker(m.cfg.BaselineTestInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.mu.RLock()
			ids := make([]string, 0, len(m.agents))
			for id := range m.agents {
				ids = append(ids, id)
			}
			m.mu.RUnlock()

			for _, id := range ids {
				if ctx.Err() != nil {
					return
				}
				st := m.stateFor(id)
				st.mu.Lock()
				st.lastBaselineTestAt = time.Now()
				st.mu.Unlock()
				if onTick != nil {
					onTick(id)
				}
			}
		case <-ctx.Done():
			slog.Info("monitor: periodic baseline sweep stopped")
			return
		}
	}
}
