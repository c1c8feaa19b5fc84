// Package handle implements the handle grammar: normalization, format
// validation, suggestion generation, and backfill candidate derivation.
// It is intentionally small and free of I/O:
//
//   - No logging and no storage access (callers own both)
//   - Fully deterministic except where randomness is injected (TagSource)
//   - Safe for concurrent use; all functions are pure
//
// A handle is a 3–20 character ASCII identifier that is case-preserving
// for display but case-insensitively unique. The canonical form used for
// every comparison is the lower-cased, trimmed value with a single leading
// "@" removed.
package handle

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	// MinLen is the minimum normalized handle length.
	MinLen = 3
	// MaxLen is the maximum normalized handle length.
	MaxLen = 20
)

// grammarRE enforces the shape of a normalized handle: starts and ends
// with an alphanumeric, interior may contain "." or "_".
var grammarRE = regexp.MustCompile(`^[a-z0-9][a-z0-9._]*[a-z0-9]$`)

// InvalidError describes why a handle failed format validation. Reason is
// human-readable and safe to surface to end users.
type InvalidError struct {
	Reason string
}

// Error implements the error interface.
func (e *InvalidError) Error() string { return e.Reason }

// Clean trims surrounding whitespace and strips a single leading "@",
// preserving the caller's casing. This is the display form stored on the
// profile when a rename commits.
func Clean(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "@")
	return s
}

// Normalize returns the canonical lower-cased form of raw used for all
// comparisons, uniqueness checks, and grammar validation.
func Normalize(raw string) string {
	return strings.ToLower(Clean(raw))
}

// Validate checks raw against the handle grammar and returns its
// normalized form. On failure it returns an *InvalidError whose Reason
// explains the first rule violated. Rules, all of which must hold:
//
//   - normalized length in [MinLen, MaxLen]
//   - matches ^[a-z0-9][a-z0-9._]*[a-z0-9]$
//   - no two consecutive separator characters ("." or "_")
func Validate(raw string) (string, error) {
	n := Normalize(raw)
	if len(n) < MinLen {
		return "", &InvalidError{Reason: fmt.Sprintf("handle must be at least %d characters", MinLen)}
	}
	if len(n) > MaxLen {
		return "", &InvalidError{Reason: fmt.Sprintf("handle must be at most %d characters", MaxLen)}
	}
	if !grammarRE.MatchString(n) {
		return "", &InvalidError{Reason: "handle must start and end with a letter or digit and may only contain letters, digits, '.' and '_'"}
	}
	for _, seq := range []string{"..", "__", "._", "_."} {
		if strings.Contains(n, seq) {
			return "", &InvalidError{Reason: "handle must not contain consecutive '.' or '_' characters"}
		}
	}
	return n, nil
}

// truncate cuts s so that appending a suffix of suffixLen bytes stays
// within MaxLen.
func truncate(s string, suffixLen int) string {
	if max := MaxLen - suffixLen; len(s) > max {
		return s[:max]
	}
	return s
}
