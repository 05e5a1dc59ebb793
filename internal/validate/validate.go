// Package validate runs the structural, semantic, and chain rule tiers over
// a parsed frame. Rules are data, not code variants: each tier is a slice of
// rule records with a check function, mirroring the teacher's
// classification-rules-as-data idiom in internal/escrow/classifier.go.
package validate

import (
	"fmt"

	"github.com/ocx/sentinel/internal/frame"
	"github.com/ocx/sentinel/internal/symbol"
)

// Severity is the outcome of a single rule check.
type Severity int

const (
	Pass Severity = iota
	Warning
	Error
)

func (s Severity) String() string {
	switch s {
	case Warning:
		return "warning"
	case Error:
		return "error"
	default:
		return "pass"
	}
}

// Scope selects which rule tiers a Run call runs.
type Scope int

const (
	ScopeStructural Scope = 1 << iota
	ScopeSemantic
	ScopeChain
)

const ScopeFull = ScopeStructural | ScopeSemantic | ScopeChain

// Result is the outcome of one rule.
type Result struct {
	RuleID   string
	Severity Severity
	Message  string
	Detail   string
}

// Report aggregates every Result produced by a Run call.
type Report struct {
	Valid    bool
	Errors   []Result
	Warnings []Result
	Passes   []Result
	Metadata map[string]string
}

// add files r into the correct bucket of the report being built.
func (rep *Report) add(r Result) {
	switch r.Severity {
	case Error:
		rep.Errors = append(rep.Errors, r)
	case Warning:
		rep.Warnings = append(rep.Warnings, r)
	default:
		rep.Passes = append(rep.Passes, r)
	}
}

type rule struct {
	id       string
	onFail   Severity
	check    func(f frame.ParsedFrame) (ok bool, detail string)
	chainOK  func(child, parent frame.ParsedFrame) (ok bool, detail string, sev Severity)
	isChain  bool
	describe string
}

var structuralRules = []rule{
	{
		id:       "SR-001",
		onFail:   Error,
		describe: "length >= 2 symbols",
		check: func(f frame.ParsedFrame) (bool, string) {
			return f.Len() >= 2, fmt.Sprintf("length=%d", f.Len())
		},
	},
	{
		id:       "SR-002",
		onFail:   Error,
		describe: "length <= 12 symbols",
		check: func(f frame.ParsedFrame) (bool, string) {
			return f.Len() <= 12, fmt.Sprintf("length=%d", f.Len())
		},
	},
	{
		id:       "SR-003",
		onFail:   Error,
		describe: "mode slot present",
		check: func(f frame.ParsedFrame) (bool, string) {
			return f.Mode != "", ""
		},
	},
	{
		id:       "SR-004",
		onFail:   Warning,
		describe: "domain slot present",
		check: func(f frame.ParsedFrame) (bool, string) {
			return f.Domain != "", ""
		},
	},
	{
		id:       "SR-005",
		onFail:   Warning,
		describe: "action slot present",
		check: func(f frame.ParsedFrame) (bool, string) {
			return f.Action != "", ""
		},
	},
	{
		id:       "SR-006",
		onFail:   Warning,
		describe: "at most one glyph per singleton category",
		check: func(f frame.ParsedFrame) (bool, string) {
			for _, dup := range f.DuplicateSingleton {
				if dup {
					return false, "duplicate singleton category glyph"
				}
			}
			return true, ""
		},
	},
	{
		id:       "SR-007",
		onFail:   Warning,
		describe: "mode glyph, if present, is at position 0",
		check: func(f frame.ParsedFrame) (bool, string) {
			if f.Mode == "" {
				return true, ""
			}
			return f.ModeAtZero, "mode glyph not at position 0"
		},
	},
}

var semanticRules = []rule{
	{
		id:       "SM-001",
		onFail:   Error,
		describe: "mode=strict implies no flexible glyph present",
		check: func(f frame.ParsedFrame) (bool, string) {
			if f.Mode != symbol.ModeStrict {
				return true, ""
			}
			for _, s := range f.Symbols {
				if s.Glyph == symbol.ModeFlexible {
					return false, "flexible glyph present under strict mode"
				}
			}
			return true, ""
		},
	},
	{
		id:       "SM-002",
		onFail:   Warning,
		describe: "action=execute and forbidden constraint declares a blocker",
		check: func(f frame.ParsedFrame) (bool, string) {
			if f.Action == symbol.ActionExecute && f.HasConstraint(symbol.ConstraintForbidden) {
				return false, "execute with declared forbidden constraint"
			}
			return true, ""
		},
	},
	{
		id:       "SM-003",
		onFail:   Warning,
		describe: "action=escalate requires elevated source or high-priority modifier",
		check: func(f frame.ParsedFrame) (bool, string) {
			if f.Action != symbol.ActionEscalate {
				return true, ""
			}
			if f.Source == symbol.SourceElevated || f.HasModifier(symbol.ModifierHighPriority) {
				return true, ""
			}
			return false, "escalate without elevated source or high-priority modifier"
		},
	},
	{
		id:       "SM-004",
		onFail:   Warning,
		describe: "action=delegate requires entity slot",
		check: func(f frame.ParsedFrame) (bool, string) {
			if f.Action != symbol.ActionDelegate {
				return true, ""
			}
			return f.Entity != "", "delegate without entity"
		},
	},
	{
		id:       "SM-005",
		onFail:   Warning,
		describe: "action=commit requires approved constraint or strict mode",
		check: func(f frame.ParsedFrame) (bool, string) {
			if f.Action != symbol.ActionCommit {
				return true, ""
			}
			if f.HasConstraint(symbol.ConstraintApproved) || f.Mode == symbol.ModeStrict {
				return true, ""
			}
			return false, "commit without approval or strict mode"
		},
	},
	{
		id:       "SM-006",
		onFail:   Error,
		describe: "modifiers cannot contain both high-priority and low-priority",
		check: func(f frame.ParsedFrame) (bool, string) {
			if f.HasModifier(symbol.ModifierHighPriority) && f.HasModifier(symbol.ModifierLowPriority) {
				return false, "conflicting priority modifiers"
			}
			return true, ""
		},
	},
	{
		id:       "SM-007",
		onFail:   Error,
		describe: "mode=exploratory implies action != execute",
		check: func(f frame.ParsedFrame) (bool, string) {
			if f.Mode == symbol.ModeExploratory && f.Action == symbol.ActionExecute {
				return false, "execute under exploratory mode"
			}
			return true, ""
		},
	},
	{
		id:       "SM-008",
		onFail:   Warning,
		describe: "action present implies domain present",
		check: func(f frame.ParsedFrame) (bool, string) {
			if f.Action == "" {
				return true, ""
			}
			return f.Domain != "", "action without domain"
		},
	},
}

var chainRules = []rule{
	{
		id:      "CH-001",
		onFail:  Error,
		isChain: true,
		chainOK: func(child, parent frame.ParsedFrame) (bool, string, Severity) {
			cs, ps := symbol.ModeStrength(child.Mode), symbol.ModeStrength(parent.Mode)
			if cs == 0 || ps == 0 {
				return true, "", Error
			}
			return cs <= ps, fmt.Sprintf("child mode strength %d weaker than parent %d", cs, ps), Error
		},
	},
	{
		id:      "CH-002",
		onFail:  Warning,
		isChain: true,
		chainOK: func(child, parent frame.ParsedFrame) (bool, string, Severity) {
			if child.Domain == "" || parent.Domain == "" {
				return true, "", Warning
			}
			return child.Domain == parent.Domain, "domain mismatch with parent", Warning
		},
	},
	{
		id:      "CH-003",
		onFail:  Error,
		isChain: true,
		chainOK: func(child, parent frame.ParsedFrame) (bool, string, Severity) {
			if !parent.HasConstraint(symbol.ConstraintForbidden) {
				return true, "", Error
			}
			return child.HasConstraint(symbol.ConstraintForbidden), "forbidden constraint not inherited from parent", Error
		},
	},
	{
		id:      "CH-004",
		onFail:  Warning,
		isChain: true,
		chainOK: func(child, parent frame.ParsedFrame) (bool, string, Severity) {
			if child.Entity == "" || parent.Entity == "" {
				return true, "", Warning
			}
			cd, pd := symbol.EntityDepth(child.Entity), symbol.EntityDepth(parent.Entity)
			return cd >= pd, "child entity has higher authority than parent", Warning
		},
	},
	{
		id:      "CH-005",
		onFail:  Warning,
		isChain: true,
		chainOK: func(child, parent frame.ParsedFrame) (bool, string, Severity) {
			cs, ps := child.MinConstraintStrength(), parent.MinConstraintStrength()
			if cs == 0 || ps == 0 {
				return true, "", Warning
			}
			return cs <= ps, "child constraint strength weaker than parent", Warning
		},
	},
	{
		id:      "CH-006",
		onFail:  Pass,
		isChain: true,
		chainOK: func(child, parent frame.ParsedFrame) (bool, string, Severity) {
			return frame.IsWellFormedHash(child.IntentHash), "malformed intent hash", Pass
		},
	},
}

// Run executes the requested scope of rule tiers against f (and parent, for
// the chain tier, which is skipped entirely if parent is nil).
func Run(f frame.ParsedFrame, parent *frame.ParsedFrame, scope Scope) Report {
	rep := Report{Valid: true, Metadata: map[string]string{}}

	if scope&ScopeStructural != 0 {
		for _, r := range structuralRules {
			runPlain(&rep, r, f)
		}
	}
	if scope&ScopeSemantic != 0 {
		for _, r := range semanticRules {
			runPlain(&rep, r, f)
		}
	}
	if scope&ScopeChain != 0 && parent != nil {
		for _, r := range chainRules {
			runChain(&rep, r, f, *parent)
		}
	}

	rep.Valid = len(rep.Errors) == 0
	return rep
}

func runPlain(rep *Report, r rule, f frame.ParsedFrame) {
	ok, detail := r.check(f)
	sev := Pass
	if !ok {
		sev = r.onFail
	}
	rep.add(Result{
		RuleID:   r.id,
		Severity: sev,
		Message:  r.describe,
		Detail:   detail,
	})
}

func runChain(rep *Report, r rule, child, parent frame.ParsedFrame) {
	ok, detail, failSev := r.chainOK(child, parent)
	sev := Pass
	if !ok {
		sev = failSev
	}
	rep.add(Result{
		RuleID:   r.id,
		Severity: sev,
		Message:  "chain rule " + r.id,
		Detail:   detail,
	})
}
