package handle

import (
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// asciiFold decomposes accented letters and drops combining marks and any
// remaining non-ASCII runes, so "José Müller" contributes "Jose Muller"
// to the derivation instead of being stripped away entirely.
var asciiFold = transform.Chain(
	norm.NFD,
	runes.Remove(runes.In(unicode.Mn)),
	runes.Remove(runes.Predicate(func(r rune) bool { return r > unicode.MaxASCII })),
)

// Derive computes the raw backfill candidate for a profile without a
// handle. Sources are tried in priority order and the first that yields a
// non-empty stripped value wins:
//
//  1. a username-like display name
//  2. first name + last name concatenated
//  3. first name alone
//  4. the local part of the email address
//
// The winner is lower-cased and stripped to alphanumerics; candidates
// shorter than MinLen get the literal suffix "user", and candidates
// longer than MaxLen are truncated. The result is not guaranteed free:
// the caller owns the collision loop (see WithCounter).
func Derive(displayName, firstName, lastName, email string) string {
	local := email
	if i := strings.IndexByte(email, '@'); i >= 0 {
		local = email[:i]
	}

	var candidate string
	for _, source := range []string{
		displayName,
		firstName + lastName,
		firstName,
		local,
	} {
		if s := stripToAlnum(source); s != "" {
			candidate = s
			break
		}
	}

	candidate = strings.ToLower(candidate)
	if len(candidate) < MinLen {
		candidate += "user"
	}
	if len(candidate) > MaxLen {
		candidate = candidate[:MaxLen]
	}
	return candidate
}

// WithCounter appends n to base for collision resolution, truncating base
// first so the result stays within MaxLen.
func WithCounter(base string, n int) string {
	suffix := strconv.Itoa(n)
	return truncate(base, len(suffix)) + suffix
}

// stripToAlnum folds s to ASCII and removes every non-alphanumeric byte.
func stripToAlnum(s string) string {
	folded, _, err := transform.String(asciiFold, s)
	if err != nil {
		folded = s
	}
	var b strings.Builder
	b.Grow(len(folded))
	for i := 0; i < len(folded); i++ {
		c := folded[i]
		if c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' {
			b.WriteByte(c)
		}
	}
	return b.String()
}
