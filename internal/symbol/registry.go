// Package symbol implements the static classification table for frame
// glyphs — the leaf dependency of the policy engine. Every glyph that can
// appear in a frame string resolves to exactly one category, and the
// ordered categories (mode, constraint, entity) additionally carry a
// strength ranking used by the chain-tier validator.
package symbol

import "github.com/ocx/sentinel/internal/invariant"

// Category classifies a single frame glyph. Categories are disjoint: a
// glyph belongs to exactly one category, never zero and never more than one.
type Category int

const (
	CategoryUnknown Category = iota
	CategoryMode
	CategoryModifier
	CategoryDomain
	CategorySource
	CategoryConstraint
	CategoryAction
	CategoryEntity
)

func (c Category) String() string {
	switch c {
	case CategoryMode:
		return "mode"
	case CategoryModifier:
		return "modifier"
	case CategoryDomain:
		return "domain"
	case CategorySource:
		return "source"
	case CategoryConstraint:
		return "constraint"
	case CategoryAction:
		return "action"
	case CategoryEntity:
		return "entity"
	default:
		return "unknown"
	}
}

// Mode glyphs, strongest to weakest. Strength is encoded 1..4 so that a
// smaller number always means a stricter regime.
const (
	ModeStrict      = "⊕"
	ModeNeutral     = "⊖"
	ModeFlexible    = "◈"
	ModeExploratory = "◇"
)

// Domain glyphs.
const (
	DomainFinancial   = "◊"
	DomainLegal       = "§"
	DomainTechnical   = "⚙"
	DomainOperational = "⊡"
)

// Source glyphs.
const (
	SourceElevated = "↑"
	SourceStandard = "↓"
	SourceExternal = "↔"
)

// Action glyphs.
const (
	ActionExecute  = "▶"
	ActionDelegate = "▷"
	ActionEscalate = "▲"
	ActionCommit   = "▼"
	ActionPropose  = "△"
)

// Constraint glyphs, strongest to weakest.
const (
	ConstraintForbidden = "⛔"
	ConstraintRejected  = "✗"
	ConstraintWarning   = "⚠"
	ConstraintApproved  = "✓"
)

// Entity glyphs, highest to lowest authority.
const (
	EntityAlpha = "α"
	EntityBeta  = "β"
	EntityGamma = "γ"
	EntityOmega = "ω"
)

// Modifier glyphs. Modifiers never conflict structurally — SM-006 is a
// semantic rule, not a registry property.
const (
	ModifierHighPriority = "⬆"
	ModifierLowPriority  = "⬇"
	ModifierTrace        = "◎"
	ModifierSilent       = "○"
)

type entry struct {
	category Category
	strength int // 0 when the category has no strength ordering
}

// registry is the static glyph → category/strength table. It is populated
// once at package init and never mutated afterward, making concurrent reads
// from multiple goroutines safe without synchronization.
var registry = map[string]entry{
	ModeStrict:      {CategoryMode, 1},
	ModeNeutral:     {CategoryMode, 2},
	ModeFlexible:    {CategoryMode, 3},
	ModeExploratory: {CategoryMode, 4},

	DomainFinancial:   {CategoryDomain, 0},
	DomainLegal:       {CategoryDomain, 0},
	DomainTechnical:   {CategoryDomain, 0},
	DomainOperational: {CategoryDomain, 0},

	SourceElevated: {CategorySource, 0},
	SourceStandard: {CategorySource, 0},
	SourceExternal: {CategorySource, 0},

	ActionExecute:  {CategoryAction, 0},
	ActionDelegate: {CategoryAction, 0},
	ActionEscalate: {CategoryAction, 0},
	ActionCommit:   {CategoryAction, 0},
	ActionPropose:  {CategoryAction, 0},

	ConstraintForbidden: {CategoryConstraint, 1},
	ConstraintRejected:  {CategoryConstraint, 2},
	ConstraintWarning:   {CategoryConstraint, 3},
	ConstraintApproved:  {CategoryConstraint, 4},

	EntityAlpha: {CategoryEntity, 1},
	EntityBeta:  {CategoryEntity, 2},
	EntityGamma: {CategoryEntity, 3},
	EntityOmega: {CategoryEntity, 4},

	ModifierHighPriority: {CategoryModifier, 0},
	ModifierLowPriority:  {CategoryModifier, 0},
	ModifierTrace:        {CategoryModifier, 0},
	ModifierSilent:       {CategoryModifier, 0},
}

func init() {
	assertCategoryComplete(CategoryMode, ModeStrict, ModeNeutral, ModeFlexible, ModeExploratory)
	assertCategoryComplete(CategoryDomain, DomainFinancial, DomainLegal, DomainTechnical, DomainOperational)
	assertCategoryComplete(CategorySource, SourceElevated, SourceStandard, SourceExternal)
	assertCategoryComplete(CategoryAction, ActionExecute, ActionDelegate, ActionEscalate, ActionCommit, ActionPropose)
	assertCategoryComplete(CategoryConstraint, ConstraintForbidden, ConstraintRejected, ConstraintWarning, ConstraintApproved)
	assertCategoryComplete(CategoryEntity, EntityAlpha, EntityBeta, EntityGamma, EntityOmega)
	assertCategoryComplete(CategoryModifier, ModifierHighPriority, ModifierLowPriority, ModifierTrace, ModifierSilent)
}

// assertCategoryComplete verifies every glyph declared for a category is
// actually registered under that category. A mismatch here means the glyph
// constant list and the registry table were edited out of sync — a bug in
// this package, not a caller error.
func assertCategoryComplete(cat Category, glyphs ...string) {
	for _, g := range glyphs {
		e, ok := registry[g]
		if !ok || e.category != cat {
			invariant.Violated("glyph " + g + " missing or miscategorized for " + cat.String())
		}
	}
}

// CategoryOf looks up the category for a glyph. Unknown glyphs return
// CategoryUnknown — this is a normal, never-erroring outcome; the parser
// relies on it to keep `parse` total over all Unicode input.
func CategoryOf(glyph string) Category {
	if e, ok := registry[glyph]; ok {
		return e.category
	}
	return CategoryUnknown
}

// ModeStrength returns the strictness rank of a mode glyph, 1 (strict) to 4
// (exploratory). Returns 0 for a glyph that is not a mode glyph.
func ModeStrength(glyph string) int {
	if e, ok := registry[glyph]; ok && e.category == CategoryMode {
		return e.strength
	}
	return 0
}

// ConstraintStrength returns the strength rank of a constraint glyph, 1
// (forbidden) to 4 (approved). Returns 0 for a glyph that is not a
// constraint glyph.
func ConstraintStrength(glyph string) int {
	if e, ok := registry[glyph]; ok && e.category == CategoryConstraint {
		return e.strength
	}
	return 0
}

// EntityDepth returns the authority depth of an entity glyph, 1 (α, highest
// authority) to 4 (ω, lowest). Returns 0 for a glyph that is not an entity
// glyph.
func EntityDepth(glyph string) int {
	if e, ok := registry[glyph]; ok && e.category == CategoryEntity {
		return e.strength
	}
	return 0
}

// IsKnown reports whether a glyph has a registry entry at all.
func IsKnown(glyph string) bool {
	_, ok := registry[glyph]
	return ok
}
