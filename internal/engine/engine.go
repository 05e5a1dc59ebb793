// Package engine owns every component instance and exposes the single
// public entry point embedders use: Evaluate and Report, serialized per
// agent. The striped-lock map follows the teacher's TaskGate
// (map[agentID]*sync.Mutex guarded by an outer RWMutex), generalized from a
// busy/not-busy gate into an actual exclusive critical section so a single
// agent's audit entries stay totally ordered while different agents run
// concurrently.
package engine

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/ocx/sentinel/internal/arbiter"
	"github.com/ocx/sentinel/internal/auditlog"
	"github.com/ocx/sentinel/internal/baseline"
	"github.com/ocx/sentinel/internal/breaker"
	"github.com/ocx/sentinel/internal/config"
	"github.com/ocx/sentinel/internal/delegation"
	"github.com/ocx/sentinel/internal/embedding"
	"github.com/ocx/sentinel/internal/frame"
	"github.com/ocx/sentinel/internal/metrics"
	"github.com/ocx/sentinel/internal/monitor"
	"github.com/ocx/sentinel/internal/tripwire"

	"github.com/prometheus/client_golang/prometheus"
)

// Request is the external Arbiter request shape.
type Request struct {
	AgentID     string         `json:"agentId"`
	Frame       string         `json:"frame"`
	Action      arbiter.Action `json:"action"`
	ParentFrame string         `json:"parentFrame,omitempty"`
}

// Response is the external Arbiter response shape.
type Response struct {
	Decision     string   `json:"decision"`
	Reasons      []string `json:"reasons"`
	DriftScore   float64  `json:"driftScore"`
	CircuitState string   `json:"circuitState"`
	AuditID      string   `json:"auditId"`
}

// Engine composes every component. Tests construct a fresh Engine; there is
// no process-wide mutable state outside of Default().
type Engine struct {
	Arbiter    *arbiter.Arbiter
	Baseline   *baseline.Store
	Breaker    *breaker.Manager
	Monitor    *monitor.Monitor
	Delegation *delegation.Ledger
	Tripwire   *tripwire.Injector
	AuditLog   *auditlog.Log
	Metrics    *metrics.Metrics
	Config     *config.Config

	locksMu sync.RWMutex
	locks   map[string]*sync.Mutex
}

// Option configures New.
type Option func(*options)

type options struct {
	auditSink io.Writer
	registry  prometheus.Registerer
}

// WithAuditSink additionally writes every appended audit entry as
// newline-delimited JSON to w.
func WithAuditSink(w io.Writer) Option {
	return func(o *options) { o.auditSink = w }
}

// WithRegistry registers Prometheus metrics against reg instead of a fresh
// private registry. Use prometheus.DefaultRegisterer to expose metrics on
// the process-wide /metrics endpoint.
func WithRegistry(reg prometheus.Registerer) Option {
	return func(o *options) { o.registry = reg }
}

// New constructs an Engine from cfg, wiring every component together. A nil
// cfg uses config.Default().
func New(cfg *config.Config, opts ...Option) *Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	o := &options{registry: prometheus.NewRegistry()}
	for _, opt := range opts {
		opt(o)
	}

	baselineStore := baseline.New()
	monitorCfg := monitor.Config{
		WindowSize:               cfg.Monitor.EmbeddingWindowSize,
		SemanticDriftThreshold:   cfg.Monitor.SemanticDriftThreshold,
		TripwireFailureThreshold: cfg.Monitor.TripwireFailureThreshold,
		BaselineTestInterval:     time.Duration(cfg.Monitor.BaselineTestIntervalMs) * time.Millisecond,
	}
	mon := monitor.New(baselineStore, monitorCfg)

	m := metrics.New(o.registry)

	auditLog := auditlog.New(o.auditSink)

	breakerMgr := breaker.NewManager(breaker.Config{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		SuccessThreshold: cfg.Breaker.SuccessThreshold,
		CoolDown:         time.Duration(cfg.Breaker.CoolDownMs) * time.Millisecond,
		DriftThreshold:   cfg.Monitor.DriftThreshold,
		OnStateChange: func(agentID string, from, to breaker.State, reason string) {
			m.CircuitState.WithLabelValues(agentID).Set(metrics.CircuitStateValue(to.String()))
		},
	})

	arb := arbiter.New(breakerMgr, mon, auditLog)

	return &Engine{
		Arbiter:    arb,
		Baseline:   baselineStore,
		Breaker:    breakerMgr,
		Monitor:    mon,
		Delegation: delegation.New(),
		Tripwire:   tripwire.New(cfg.Tripwire.Rate),
		AuditLog:   auditLog,
		Metrics:    m,
		Config:     cfg,
		locks:      make(map[string]*sync.Mutex),
	}
}

func (e *Engine) lockFor(agentID string) *sync.Mutex {
	e.locksMu.RLock()
	l, ok := e.locks[agentID]
	e.locksMu.RUnlock()
	if ok {
		return l
	}

	e.locksMu.Lock()
	defer e.locksMu.Unlock()
	if l, ok := e.locks[agentID]; ok {
		return l
	}
	l = &sync.Mutex{}
	e.locks[agentID] = l
	return l
}

// Evaluate runs one Arbiter decision for agentID under that agent's
// exclusive lock, so its audit entry is totally ordered relative to any
// other Evaluate or Report call for the same agent. Different agents
// proceed concurrently since each has its own stripe.
func (e *Engine) Evaluate(ctx context.Context, req Request) Response {
	lock := e.lockFor(req.AgentID)
	lock.Lock()
	defer lock.Unlock()

	result := e.Arbiter.Evaluate(ctx, req.AgentID, req.Frame, req.Action, req.ParentFrame)
	e.Metrics.Decisions.WithLabelValues(string(result.Decision)).Inc()
	e.Metrics.DriftScore.WithLabelValues(req.AgentID).Set(result.DriftScore)

	auditID := ""
	if entries := e.AuditLog.ForAgent(req.AgentID); len(entries) > 0 {
		auditID = entries[len(entries)-1].EntryHash
	}

	return Response{
		Decision:     string(result.Decision),
		Reasons:      result.Reasons,
		DriftScore:   result.DriftScore,
		CircuitState: result.CircuitState,
		AuditID:      auditID,
	}
}

// Report forwards a completed action's outcome to the Monitor and Circuit
// Breaker, under the same per-agent lock Evaluate uses.
func (e *Engine) Report(agentID string, rawFrame string, behaviors []string, success bool, senderID string, observedEmbedding embedding.Vector) monitor.DriftMetrics {
	lock := e.lockFor(agentID)
	lock.Lock()
	defer lock.Unlock()

	f := frame.Parse(rawFrame)
	return e.Arbiter.Report(agentID, f, behaviors, success, senderID, observedEmbedding)
}

// InjectTripwire runs a tripwire probe for agentID and feeds its outcome
// into the Monitor and the tripwire failure metric, under the agent's lock.
func (e *Engine) InjectTripwire(agentID string) tripwire.Outcome {
	lock := e.lockFor(agentID)
	lock.Lock()
	defer lock.Unlock()

	outcome := e.Tripwire.Inject(agentID, tripwire.DefaultValidateFunc())
	e.Monitor.RecordTripwireResult(agentID, outcome.Passed)
	if !outcome.Passed {
		e.Metrics.TripwireFailures.Inc()
	}
	return outcome
}

// Start launches the Monitor's periodic baseline sweep as a background
// goroutine and returns immediately. Each tick re-probes every known agent
// with a tripwire injection, independent of and never blocking the
// Evaluate/Report fast path. Cancel ctx to stop the sweep; Start does not
// block waiting for it to exit.
func (e *Engine) Start(ctx context.Context) {
	go e.Monitor.RunPeriodicBaselineTests(ctx, func(agentID string) {
		e.InjectTripwire(agentID)
	})
}

var (
	defaultOnce sync.Once
	defaultEng  *Engine
)

// Default returns a process-wide Engine built from config.Get(), lazily
// constructed on first use. It is a convenience for embedders; every
// constructor also accepts explicit dependencies so tests never need it.
func Default() *Engine {
	defaultOnce.Do(func() {
		defaultEng = New(config.Get())
	})
	return defaultEng
}
