// Package frame turns a raw symbol string into a structured ParsedFrame.
// Parsing never fails: malformed input produces a frame that the validator
// will reject, mirroring the teacher's frame-header decoding style of
// preferring a typed zero-value result over an error for well-formed-but-
// meaningless input.
package frame

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ocx/sentinel/internal/symbol"
)

// ErrMalformedHash is returned by ValidateHash for a string that is not a
// well-formed 64-character lowercase hex digest.
var ErrMalformedHash = errors.New("frame: malformed intent hash")

// Slot identifies one of the five exactly-one-of categories a ParsedFrame
// tracks individually.
type Slot int

const (
	SlotMode Slot = iota
	SlotDomain
	SlotSource
	SlotAction
	SlotEntity
)

// Symbol pairs a glyph with its resolved category, preserving parse order.
type Symbol struct {
	Glyph    string
	Category symbol.Category
}

// ParsedFrame is the immutable structured form of a raw symbol string. Once
// returned by Parse it is never mutated; callers that need a derived frame
// construct a new one.
type ParsedFrame struct {
	Raw         string
	Symbols     []Symbol
	Mode        string
	Domain      string
	Source      string
	Action      string
	Entity      string
	Modifiers   map[string]bool
	Constraints map[string]bool
	IntentHash  string

	// DuplicateSingleton records, per singleton category, whether more than
	// one glyph of that category appeared. SR-006 reads this.
	DuplicateSingleton map[symbol.Category]bool
	// ModeAtZero is false only when a mode glyph appeared but not at
	// position 0, feeding SR-007.
	ModeAtZero bool
	// UnknownCount is the number of glyphs that resolved to CategoryUnknown.
	UnknownCount int
}

// Len reports the number of glyphs in the original string, counted the same
// way Parse walked it (one unit per rune).
func (f ParsedFrame) Len() int {
	return len(f.Symbols)
}

// HasModifier reports whether the given modifier glyph was present.
func (f ParsedFrame) HasModifier(glyph string) bool {
	return f.Modifiers[glyph]
}

// HasConstraint reports whether the given constraint glyph was present.
func (f ParsedFrame) HasConstraint(glyph string) bool {
	return f.Constraints[glyph]
}

// MinConstraintStrength returns the strongest (numerically smallest)
// constraint strength present, or 0 if no constraint glyph is present.
func (f ParsedFrame) MinConstraintStrength() int {
	best := 0
	for g := range f.Constraints {
		s := symbol.ConstraintStrength(g)
		if s == 0 {
			continue
		}
		if best == 0 || s < best {
			best = s
		}
	}
	return best
}

// Parse walks raw left-to-right, classifying each glyph via the symbol
// registry and assigning it to a slot or set per the first-wins rule for
// singleton categories. It never returns an error.
func Parse(raw string) ParsedFrame {
	f := ParsedFrame{
		Raw:                raw,
		Modifiers:          make(map[string]bool),
		Constraints:        make(map[string]bool),
		DuplicateSingleton: make(map[symbol.Category]bool),
		ModeAtZero:         true,
	}

	seenSingleton := make(map[symbol.Category]bool)
	pos := 0
	for _, r := range raw {
		g := string(r)
		cat := symbol.CategoryOf(g)
		f.Symbols = append(f.Symbols, Symbol{Glyph: g, Category: cat})

		switch cat {
		case symbol.CategoryMode:
			if seenSingleton[cat] {
				f.DuplicateSingleton[cat] = true
			} else {
				f.Mode = g
				seenSingleton[cat] = true
				if pos != 0 {
					f.ModeAtZero = false
				}
			}
		case symbol.CategoryDomain:
			if seenSingleton[cat] {
				f.DuplicateSingleton[cat] = true
			} else {
				f.Domain = g
				seenSingleton[cat] = true
			}
		case symbol.CategorySource:
			if seenSingleton[cat] {
				f.DuplicateSingleton[cat] = true
			} else {
				f.Source = g
				seenSingleton[cat] = true
			}
		case symbol.CategoryAction:
			if seenSingleton[cat] {
				f.DuplicateSingleton[cat] = true
			} else {
				f.Action = g
				seenSingleton[cat] = true
			}
		case symbol.CategoryEntity:
			if seenSingleton[cat] {
				f.DuplicateSingleton[cat] = true
			} else {
				f.Entity = g
				seenSingleton[cat] = true
			}
		case symbol.CategoryModifier:
			f.Modifiers[g] = true
		case symbol.CategoryConstraint:
			f.Constraints[g] = true
		default:
			f.UnknownCount++
		}
		pos++
	}

	f.IntentHash = intentHash(f)
	return f
}

// intentHash computes the 64-hex digest over the canonical tuple
// (mode, domain, source, action, entity, sorted(modifiers), sorted(constraints)).
func intentHash(f ParsedFrame) string {
	var b strings.Builder
	fmt.Fprintf(&b, "m=%s|d=%s|s=%s|a=%s|e=%s|mod=%s|con=%s",
		f.Mode, f.Domain, f.Source, f.Action, f.Entity,
		sortedJoin(f.Modifiers), sortedJoin(f.Constraints))
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])[:64]
}

func sortedJoin(set map[string]bool) string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return strings.Join(keys, ",")
}

// ValidateHash returns ErrMalformedHash if s is not a well-formed intent
// hash, for callers (e.g. a persistence adapter loading external records)
// that need an error rather than a bool.
func ValidateHash(s string) error {
	if !IsWellFormedHash(s) {
		return ErrMalformedHash
	}
	return nil
}

// IsWellFormedHash reports whether s is a 64-character lowercase hex digest,
// the shape CH-006 requires of every intentHash.
func IsWellFormedHash(s string) bool {
	if len(s) != 64 {
		return false
	}
	for _, r := range s {
		if !((r >= '0' && r <= '9') || (r >= 'a' && r <= 'f')) {
			return false
		}
	}
	return true
}
