// Package arbiter composes the frame parser, validator, monitor, breaker,
// and audit log into a single per-action decision plus audit record. A
// parent frame is checked by running the validator's chain tier on it
// directly; the delegation ledger is not consulted. It is the Governed Execution Arbiter: every call produces exactly
// one audit entry, appended under the caller's per-agent lock.
package arbiter

import (
	"context"

	"github.com/ocx/sentinel/internal/auditlog"
	"github.com/ocx/sentinel/internal/breaker"
	"github.com/ocx/sentinel/internal/embedding"
	"github.com/ocx/sentinel/internal/frame"
	"github.com/ocx/sentinel/internal/monitor"
	"github.com/ocx/sentinel/internal/symbol"
	"github.com/ocx/sentinel/internal/validate"
)

// Decision is the Arbiter's verdict for one evaluate call.
type Decision string

const (
	DecisionAllow Decision = "allow"
	DecisionHold  Decision = "hold"
	DecisionBlock Decision = "block"
)

// Action is the requested tool invocation that accompanies a frame.
type Action struct {
	Tool string
	Args map[string]any
}

// Result is the outcome of Evaluate.
type Result struct {
	Decision     Decision
	Reasons      []string
	Validation   validate.Report
	DriftScore   float64
	CircuitState string
	AuditID      string
	ParsedFrame  frame.ParsedFrame
}

// Arbiter composes the other components into evaluate/report. It holds no
// per-agent locking itself — the Engine serializes calls per agent before
// invoking Evaluate/Report, per the concurrency model.
type Arbiter struct {
	Breaker  *breaker.Manager
	Monitor  *monitor.Monitor
	AuditLog *auditlog.Log
}

// New constructs an Arbiter from its three collaborators.
func New(b *breaker.Manager, m *monitor.Monitor, log *auditlog.Log) *Arbiter {
	return &Arbiter{Breaker: b, Monitor: m, AuditLog: log}
}

// Evaluate runs the full decision algorithm for one action: parse, validate,
// circuit-breaker admission, risky-pattern hold check. ctx cancellation
// before the commit section prevents any audit entry or state mutation;
// once the commit section begins it is not cancellable.
func (a *Arbiter) Evaluate(ctx context.Context, agentID, rawFrame string, action Action, parentRawFrame string) Result {
	f := frame.Parse(rawFrame)

	var parent *frame.ParsedFrame
	if parentRawFrame != "" {
		p := frame.Parse(parentRawFrame)
		parent = &p
	}

	scope := validate.ScopeStructural | validate.ScopeSemantic
	if parent != nil {
		scope |= validate.ScopeChain
	}
	report := validate.Run(f, parent, scope)

	if ctx.Err() != nil {
		return Result{Decision: DecisionBlock, Reasons: []string{"context canceled"}, Validation: report, ParsedFrame: f}
	}

	circuitState := a.Breaker.State(agentID).String()
	// No observation exists yet for this action — Report runs after it
	// completes — so drift here comes from the agent's own rolling window,
	// never from comparing an empty observation against a baseline.
	driftScore := a.Monitor.AgentDriftScore(agentID)

	if !report.Valid {
		reasons := ruleIDs(report.Errors)
		a.commit(agentID, f, parentRawFrame, DecisionBlock, reasons, driftScore, circuitState)
		a.Breaker.RecordFailure(agentID, "validation error: "+firstOrEmpty(reasons))
		return Result{
			Decision:     DecisionBlock,
			Reasons:      reasons,
			Validation:   report,
			DriftScore:   driftScore,
			CircuitState: circuitState,
			ParsedFrame:  f,
		}
	}

	if !a.Breaker.IsAllowed(agentID) {
		reasons := []string{"circuit-open"}
		a.commit(agentID, f, parentRawFrame, DecisionBlock, reasons, driftScore, a.Breaker.State(agentID).String())
		return Result{
			Decision:     DecisionBlock,
			Reasons:      reasons,
			Validation:   report,
			DriftScore:   driftScore,
			CircuitState: a.Breaker.State(agentID).String(),
			ParsedFrame:  f,
		}
	}

	if riskReasons := riskyPattern(f); len(riskReasons) > 0 {
		a.commit(agentID, f, parentRawFrame, DecisionHold, riskReasons, driftScore, circuitState)
		return Result{
			Decision:     DecisionHold,
			Reasons:      riskReasons,
			Validation:   report,
			DriftScore:   driftScore,
			CircuitState: circuitState,
			ParsedFrame:  f,
		}
	}

	a.commit(agentID, f, parentRawFrame, DecisionAllow, nil, driftScore, circuitState)
	return Result{
		Decision:     DecisionAllow,
		Validation:   report,
		DriftScore:   driftScore,
		CircuitState: circuitState,
		ParsedFrame:  f,
	}
}

// Report forwards the outcome of a previously allowed action to the Monitor
// and Circuit Breaker. behaviors are canonical lowercase tokens observed
// from running the action; success indicates whether the action itself
// succeeded (not whether it was allowed).
func (a *Arbiter) Report(agentID string, f frame.ParsedFrame, behaviors []string, success bool, senderID string, observedEmbedding embedding.Vector) monitor.DriftMetrics {
	metrics := a.Monitor.RecordOperation(agentID, f, behaviors, success, senderID, observedEmbedding)

	if success {
		a.Breaker.RecordSuccess(agentID)
	} else {
		a.Breaker.RecordFailure(agentID, "reported action failure")
	}
	a.Breaker.RecordDrift(agentID, metrics.CurrentDriftScore, "drift threshold exceeded")

	return metrics
}

func (a *Arbiter) commit(agentID string, f frame.ParsedFrame, parentFrame string, decision Decision, reasons []string, driftScore float64, circuitState string) auditlog.Entry {
	return a.AuditLog.Append(auditlog.Entry{
		AgentID:      agentID,
		Frame:        f.Raw,
		ParentFrame:  parentFrame,
		Decision:     auditlog.Decision(decision),
		Reasons:      reasons,
		DriftScore:   driftScore,
		CircuitState: circuitState,
	})
}

// riskyPattern detects the three declared risk patterns from the
// specification: execute with a forbidden constraint, commit without
// approval, and escalate without authority.
func riskyPattern(f frame.ParsedFrame) []string {
	var reasons []string

	if f.Action == symbol.ActionExecute && f.HasConstraint(symbol.ConstraintForbidden) {
		reasons = append(reasons, "risk:execute-forbidden")
	}
	if f.Action == symbol.ActionCommit && !f.HasConstraint(symbol.ConstraintApproved) && f.Mode != symbol.ModeStrict {
		reasons = append(reasons, "risk:commit-unapproved")
	}
	if f.Action == symbol.ActionEscalate && f.Source != symbol.SourceElevated && !f.HasModifier(symbol.ModifierHighPriority) {
		reasons = append(reasons, "risk:escalate-unauthorized")
	}

	return reasons
}

func ruleIDs(results []validate.Result) []string {
	out := make([]string, 0, len(results))
	for _, r := range results {
		out = append(out, r.RuleID)
	}
	return out
}

func firstOrEmpty(ss []string) string {
	if len(ss) == 0 {
		return ""
	}
	return ss[0]
}
