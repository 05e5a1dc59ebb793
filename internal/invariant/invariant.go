// Package invariant holds the single terminate-the-process helper used for
// conditions that should be structurally impossible — a programmer error,
// not a runtime condition callers can recover from. It exists so every
// invariant violation logs the same way before it panics, mirroring the
// teacher's preference for one well-known failure path over scattered
// ad-hoc panics.
package invariant

import "log/slog"

// Violated logs msg at error level and panics. Callers reserve this for
// conditions that indicate a bug in this module itself, never for
// caller-supplied input — those go through the ordinary error-return paths.
func Violated(msg string) {
	slog.Error("invariant violated", "message", msg)
	panic("sentinel: invariant violated: " + msg)
}
