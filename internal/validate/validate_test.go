package validate

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ocx/sentinel/internal/frame"
)

func TestRunStructuralTooShort(t *testing.T) {
	f := frame.Parse("▶")
	report := Run(f, nil, ScopeStructural)

	require.False(t, report.Valid)
	require.True(t, hasRule(report.Errors, "SR-001"))
}

func TestRunStructuralTooLong(t *testing.T) {
	f := frame.Parse("⊕◊▶β⬆◎○⬇⚠✓⛔△▷")
	report := Run(f, nil, ScopeStructural)

	require.False(t, report.Valid)
	require.True(t, hasRule(report.Errors, "SR-002"))
}

func TestRunStructuralHappyPath(t *testing.T) {
	f := frame.Parse("⊕◊▶β")
	report := Run(f, nil, ScopeStructural)
	require.True(t, report.Valid)
}

func TestRunSemanticExecuteForbiddenIsWarningOnly(t *testing.T) {
	f := frame.Parse("⊕◊⛔▶β")
	report := Run(f, nil, ScopeSemantic)

	require.True(t, report.Valid, "SM-002 is a warning, not an error")
	require.True(t, hasRule(report.Warnings, "SM-002"))
}

func TestRunSemanticStrictForbidsFlexibleGlyph(t *testing.T) {
	f := frame.Parse("⊕◈▶β")
	report := Run(f, nil, ScopeSemantic)

	require.False(t, report.Valid)
	require.True(t, hasRule(report.Errors, "SM-001"))
}

func TestRunSemanticExploratoryForbidsExecute(t *testing.T) {
	f := frame.Parse("◇◊▶β")
	report := Run(f, nil, ScopeSemantic)

	require.False(t, report.Valid)
	require.True(t, hasRule(report.Errors, "SM-007"))
}

func TestRunSemanticEscalateRequiresAuthority(t *testing.T) {
	f := frame.Parse("⊕◊▲β")
	report := Run(f, nil, ScopeSemantic)
	require.True(t, hasRule(report.Warnings, "SM-003"))

	ok := frame.Parse("⊕◊▲β↑")
	okReport := Run(ok, nil, ScopeSemantic)
	require.False(t, hasRule(okReport.Warnings, "SM-003"))
}

func TestRunChainModeWeakeningBlocks(t *testing.T) {
	parent := frame.Parse("⊕◊▼α")
	child := frame.Parse("⊖◊▶β")

	report := Run(child, &parent, ScopeChain)
	require.False(t, report.Valid)
	require.True(t, hasRule(report.Errors, "CH-001"))
}

func TestRunChainForbiddenNotInherited(t *testing.T) {
	parent := frame.Parse("⊕◊⛔▼α")
	child := frame.Parse("⊕◊▶β")

	report := Run(child, &parent, ScopeChain)
	require.False(t, report.Valid)
	require.True(t, hasRule(report.Errors, "CH-003"))
}

func TestRunChainForbiddenInheritedPasses(t *testing.T) {
	parent := frame.Parse("⊕◊⛔▼α")
	child := frame.Parse("⊕◊⛔▶β")

	report := Run(child, &parent, ScopeChain)
	require.True(t, hasRule(append(report.Passes, report.Warnings...), "CH-003") || !hasRule(report.Errors, "CH-003"))
}

func TestRunChainSkippedWithoutParent(t *testing.T) {
	f := frame.Parse("⊖◊▶β")
	report := Run(f, nil, ScopeChain)
	require.Empty(t, report.Errors)
	require.Empty(t, report.Warnings)
	require.Empty(t, report.Passes)
}

func TestRunFullScopeCombinesTiers(t *testing.T) {
	f := frame.Parse("▶")
	report := Run(f, nil, ScopeFull)
	require.False(t, report.Valid)
	require.True(t, hasRule(report.Errors, "SR-001"))
}

func hasRule(results []Result, id string) bool {
	for _, r := range results {
		if r.RuleID == id {
			return true
		}
	}
	return false
}
