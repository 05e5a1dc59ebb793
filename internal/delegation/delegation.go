// Package delegation enforces parent→child frame relationships across
// multi-agent chains. The keyed-record-plus-event-log style follows the
// teacher's PersistentTrustLedger: a map of live records plus a capped
// append-only event log, generalized from cross-instance trust exchange to
// delegation lifecycle events.
package delegation

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ocx/sentinel/internal/frame"
	"github.com/ocx/sentinel/internal/validate"
)

const maxEventLog = 5000

// ErrDelegationRevoked is returned by EnsureActive for a delegation that has
// been revoked.
var ErrDelegationRevoked = errors.New("delegation: revoked")

// ErrUnknownDelegation is returned by EnsureActive for a delegation ID the
// ledger has never recorded.
var ErrUnknownDelegation = errors.New("delegation: unknown delegation id")

// Delegation is one recorded parent→child frame relationship.
type Delegation struct {
	DelegationID     string
	ParentAgentID    string
	ChildAgentID     string
	ParentFrameHash  string
	ChildFrameHash   string
	DelegatedActions []string
	CreatedAt        time.Time
	RevokedAt        *time.Time
}

// Active reports whether the delegation has not been revoked. The child
// frame is validated against the parent once, when Delegate stores the
// record; it is not re-validated afterwards.
func (d Delegation) Active() bool {
	return d.RevokedAt == nil
}

// Event is an immutable record of a delegation lifecycle action.
type Event struct {
	EventID      string
	DelegationID string
	Kind         string // "delegate", "revoke"
	At           time.Time
}

// Result is returned by Delegate.
type Result struct {
	Valid             bool
	DelegationID      string
	EffectiveChildFrame string
	Warnings          []string
	Errors            []string
}

// Ledger stores delegations keyed by (parentAgent, childAgent), replacing a
// prior delegation for the same pair (idempotent by composite key), plus a
// capped event log of lifecycle actions.
type Ledger struct {
	mu sync.RWMutex

	byPair map[string]*Delegation // "parent:child" -> current delegation
	byID   map[string]*Delegation
	events []Event

	seq uint64
}

// New constructs an empty delegation ledger.
func New() *Ledger {
	return &Ledger{
		byPair: make(map[string]*Delegation),
		byID:   make(map[string]*Delegation),
	}
}

func pairKey(parent, child string) string {
	return fmt.Sprintf("%s:%s", parent, child)
}

// Delegate validates childFrame against parentFrame via the chain tier and,
// on success, stores the delegation (replacing any prior delegation for the
// same parent/child pair). On a chain-tier error, nothing is stored.
func (l *Ledger) Delegate(parentAgent, childAgent, parentFrame, childFrame string, actions []string) Result {
	parent := frame.Parse(parentFrame)
	child := frame.Parse(childFrame)

	report := validate.Run(child, &parent, validate.ScopeChain)
	if !report.Valid {
		errs := make([]string, 0, len(report.Errors))
		for _, e := range report.Errors {
			errs = append(errs, e.RuleID)
		}
		return Result{Valid: false, Errors: errs}
	}

	warnings := make([]string, 0, len(report.Warnings))
	for _, w := range report.Warnings {
		warnings = append(warnings, w.RuleID)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.seq++
	id := fmt.Sprintf("deleg-%s", delegationHash(parentAgent, childAgent, parent.IntentHash, child.IntentHash, l.seq))

	rec := &Delegation{
		DelegationID:     id,
		ParentAgentID:    parentAgent,
		ChildAgentID:     childAgent,
		ParentFrameHash:  parent.IntentHash,
		ChildFrameHash:   child.IntentHash,
		DelegatedActions: actions,
		CreatedAt:        time.Now(),
	}

	l.byPair[pairKey(parentAgent, childAgent)] = rec
	l.byID[id] = rec
	l.appendEvent(id, "delegate")

	return Result{
		Valid:               true,
		DelegationID:        id,
		EffectiveChildFrame: childFrame,
		Warnings:            warnings,
	}
}

func delegationHash(parentAgent, childAgent, parentHash, childHash string, seq uint64) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s|%s|%d", parentAgent, childAgent, parentHash, childHash, seq)))
	return hex.EncodeToString(sum[:])[:16]
}

// Revoke marks a delegation inactive. A revoke of an already-revoked or
// unknown delegation is a no-op.
func (l *Ledger) Revoke(delegationID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.byID[delegationID]
	if !ok || rec.RevokedAt != nil {
		return
	}
	now := time.Now()
	rec.RevokedAt = &now
	l.appendEvent(delegationID, "revoke")
}

// Active returns every currently-active delegation where childAgent is the
// child. A delegation replaced by a later Delegate call for the same
// parent/child pair is not included.
func (l *Ledger) Active(childAgent string) []Delegation {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []Delegation
	for _, rec := range l.byPair {
		if rec.ChildAgentID == childAgent && rec.Active() {
			out = append(out, *rec)
		}
	}
	return out
}

// Get returns a delegation by ID.
func (l *Ledger) Get(delegationID string) (Delegation, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	rec, ok := l.byID[delegationID]
	if !ok {
		return Delegation{}, false
	}
	return *rec, true
}

// EnsureActive returns nil if delegationID names a currently-active
// delegation, ErrDelegationRevoked if it was revoked, or ErrUnknownDelegation
// if the ledger has no record of it. Callers that need to gate an action on
// a still-live delegation use this instead of Get's (Delegation, bool) form.
func (l *Ledger) EnsureActive(delegationID string) error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	rec, ok := l.byID[delegationID]
	if !ok {
		return ErrUnknownDelegation
	}
	if !rec.Active() {
		return ErrDelegationRevoked
	}
	return nil
}

func (l *Ledger) appendEvent(delegationID, kind string) {
	l.seq++
	l.events = append(l.events, Event{
		EventID:      fmt.Sprintf("evt-%d", l.seq),
		DelegationID: delegationID,
		Kind:         kind,
		At:           time.Now(),
	})
	if len(l.events) > maxEventLog {
		l.events = l.events[len(l.events)-maxEventLog:]
	}
}

// Events returns the capped lifecycle event log, oldest first.
func (l *Ledger) Events() []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Event, len(l.events))
	copy(out, l.events)
	return out
}
