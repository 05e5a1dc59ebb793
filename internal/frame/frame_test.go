package frame

import (
	"testing"

	"github.com/ocx/sentinel/internal/symbol"
)

func TestParseAssignsSlots(t *testing.T) {
	f := Parse("⊕◊▶β")

	if f.Mode != symbol.ModeStrict {
		t.Errorf("Mode = %q, want %q", f.Mode, symbol.ModeStrict)
	}
	if f.Domain != symbol.DomainFinancial {
		t.Errorf("Domain = %q, want %q", f.Domain, symbol.DomainFinancial)
	}
	if f.Action != symbol.ActionExecute {
		t.Errorf("Action = %q, want %q", f.Action, symbol.ActionExecute)
	}
	if f.Entity != symbol.EntityBeta {
		t.Errorf("Entity = %q, want %q", f.Entity, symbol.EntityBeta)
	}
	if f.Len() != 4 {
		t.Errorf("Len() = %d, want 4", f.Len())
	}
}

func TestParseFirstWinsSingleton(t *testing.T) {
	f := Parse("⊕⊖◊▶β")

	if f.Mode != symbol.ModeStrict {
		t.Errorf("Mode = %q, want first-seen %q", f.Mode, symbol.ModeStrict)
	}
	if !f.DuplicateSingleton[symbol.CategoryMode] {
		t.Error("DuplicateSingleton[CategoryMode] should be true")
	}
}

func TestParseModifiersAndConstraintsAccumulate(t *testing.T) {
	f := Parse("⊕◊▶β⬆◎✓")

	if !f.HasModifier(symbol.ModifierHighPriority) {
		t.Error("expected high-priority modifier recorded")
	}
	if !f.HasModifier(symbol.ModifierTrace) {
		t.Error("expected trace modifier recorded")
	}
	if !f.HasConstraint(symbol.ConstraintApproved) {
		t.Error("expected approved constraint recorded")
	}
}

func TestParseModeNotAtZero(t *testing.T) {
	f := Parse("◊⊕▶β")
	if f.ModeAtZero {
		t.Error("ModeAtZero should be false when mode glyph is not first")
	}
}

func TestParseUnknownGlyphsCounted(t *testing.T) {
	f := Parse("⊕z◊▶β")
	if f.UnknownCount != 1 {
		t.Errorf("UnknownCount = %d, want 1", f.UnknownCount)
	}
}

func TestIntentHashDeterministic(t *testing.T) {
	a := Parse("⊕◊▶β")
	b := Parse("⊕◊▶β")
	if a.IntentHash != b.IntentHash {
		t.Error("same raw frame should yield identical intentHash")
	}
	if !IsWellFormedHash(a.IntentHash) {
		t.Error("intentHash should be a well-formed 64-char hex digest")
	}
}

func TestIntentHashOrderIndependentOfSetMembers(t *testing.T) {
	a := Parse("⊕◊▶β⬆◎")
	b := Parse("⊕◊▶β◎⬆")
	if a.IntentHash != b.IntentHash {
		t.Error("intentHash should not depend on the order modifiers appear in")
	}
}

func TestIntentHashDiffersOnSemanticChange(t *testing.T) {
	a := Parse("⊕◊▶β")
	b := Parse("⊖◊▶β")
	if a.IntentHash == b.IntentHash {
		t.Error("differing mode should produce a different intentHash")
	}
}

func TestMinConstraintStrength(t *testing.T) {
	f := Parse("⊕◊▶β⛔✓")
	if got := f.MinConstraintStrength(); got != symbol.ConstraintStrength(symbol.ConstraintForbidden) {
		t.Errorf("MinConstraintStrength() = %d, want strongest present", got)
	}

	empty := Parse("⊕◊▶β")
	if got := empty.MinConstraintStrength(); got != 0 {
		t.Errorf("MinConstraintStrength() with no constraints = %d, want 0", got)
	}
}

func TestIsWellFormedHashRejectsGarbage(t *testing.T) {
	if IsWellFormedHash("not-a-hash") {
		t.Error("IsWellFormedHash should reject non-hex strings")
	}
	if IsWellFormedHash("abc123") {
		t.Error("IsWellFormedHash should reject short strings")
	}
}
