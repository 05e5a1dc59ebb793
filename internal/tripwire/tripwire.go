// Package tripwire injects synthetic probe frames and compares the
// validator's response against a known-expected outcome. The allow/block
// verdict idiom mirrors the teacher's eBPF VerdictUpdater, generalized here
// to carry a `passed` result rather than a kernel map write.
package tripwire

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/ocx/sentinel/internal/frame"
	"github.com/ocx/sentinel/internal/validate"
)

// Expected is what a probe frame is known to resolve to.
type Expected int

const (
	ExpectedValid Expected = iota
	ExpectedInvalid
)

// Probe is one synthetic frame in the library.
type Probe struct {
	Frame    string
	Expected Expected
	Category string
}

// Outcome is the recorded result of injecting a probe.
type Outcome struct {
	ProbeID  string
	Passed   bool
	Category string
	At       time.Time
}

// ValidateFunc validates a raw frame string and reports whether it is
// considered valid. Which validator tiers it runs is up to the function;
// DefaultValidateFunc runs the structural and semantic tiers.
type ValidateFunc func(raw string) bool

// Injector holds the probe library and per-agent outcome history.
// ShouldInject is throttled through a token-bucket limiter, so a caller
// that gates on it cannot fire probes faster than the configured rate
// allows. Inject itself does not consult the limiter.
type Injector struct {
	mu      sync.RWMutex
	probes  []Probe
	limiter *rate.Limiter

	historyMu sync.Mutex
	history   map[string][]Outcome // agentID -> outcomes, newest last
}

// New constructs an Injector with the default probe library and a
// token-bucket limiter matching the configured Bernoulli rate (events per
// second, burst 1).
func New(injectionsPerSecond float64) *Injector {
	if injectionsPerSecond <= 0 {
		injectionsPerSecond = 1
	}
	return &Injector{
		probes:  defaultProbes(),
		limiter: rate.NewLimiter(rate.Limit(injectionsPerSecond), 1),
		history: make(map[string][]Outcome),
	}
}

func defaultProbes() []Probe {
	return []Probe{
		{Frame: "⊕◊▶β", Expected: ExpectedValid, Category: "baseline"},
		{Frame: "▶", Expected: ExpectedInvalid, Category: "too_short"},
		{Frame: "⊕◊⛔▶β", Expected: ExpectedValid, Category: "risky_declared"},
		{Frame: "◇▶", Expected: ExpectedInvalid, Category: "exploratory_execute"},
	}
}

// ShouldInject runs a Bernoulli trial at the given rate (probability in
// [0,1]) and additionally requires the token bucket to have capacity,
// rate-limiting how often probes fire regardless of the trial outcome.
func (i *Injector) ShouldInject(ctx context.Context, rateP float64) bool {
	if rateP <= 0 {
		return false
	}
	if rateP > 1 {
		rateP = 1
	}
	if !i.limiter.Allow() {
		return false
	}
	return rand.Float64() < rateP
}

// Inject picks a probe deterministically by rotating through the library,
// invokes validateFn against its frame, and records whether the observed
// validity matched the probe's expected outcome.
func (i *Injector) Inject(agentID string, validateFn ValidateFunc) Outcome {
	i.mu.RLock()
	probe := i.pickLocked()
	i.mu.RUnlock()

	observedValid := validateFn(probe.Frame)
	expectedValid := probe.Expected == ExpectedValid
	passed := observedValid == expectedValid

	outcome := Outcome{
		ProbeID:  probeID(probe),
		Passed:   passed,
		Category: probe.Category,
		At:       time.Now(),
	}

	i.historyMu.Lock()
	h := append(i.history[agentID], outcome)
	if len(h) > 200 {
		h = h[len(h)-200:]
	}
	i.history[agentID] = h
	i.historyMu.Unlock()

	return outcome
}

var pickCounter uint64
var pickMu sync.Mutex

func (i *Injector) pickLocked() Probe {
	pickMu.Lock()
	idx := int(pickCounter % uint64(len(i.probes)))
	pickCounter++
	pickMu.Unlock()
	return i.probes[idx]
}

func probeID(p Probe) string {
	return p.Category + ":" + p.Frame
}

// FailureRate returns the fraction of failed outcomes recorded for agentID
// within the trailing window (most recent `window` outcomes).
func (i *Injector) FailureRate(agentID string, window int) float64 {
	i.historyMu.Lock()
	defer i.historyMu.Unlock()

	h := i.history[agentID]
	if len(h) == 0 {
		return 0
	}
	if window > 0 && window < len(h) {
		h = h[len(h)-window:]
	}

	failed := 0
	for _, o := range h {
		if !o.Passed {
			failed++
		}
	}
	return float64(failed) / float64(len(h))
}

// validateWithParser is a convenience adapter turning frame.Parse + the
// validator's structural/semantic tiers into a ValidateFunc.
func validateWithParser(raw string) bool {
	f := frame.Parse(raw)
	report := validate.Run(f, nil, validate.ScopeStructural|validate.ScopeSemantic)
	return report.Valid
}

// DefaultValidateFunc returns the standard ValidateFunc used when no custom
// validation is supplied — structural+semantic tiers only, since probes
// have no parent frame to run the chain tier against.
func DefaultValidateFunc() ValidateFunc {
	return validateWithParser
}
