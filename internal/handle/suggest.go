package handle

import (
	"math/rand/v2"
	"strings"
)

// tagAlphabet is the character set used for random suggestion tags.
const tagAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// TagSource produces short random alphanumeric tags for the
// collision-proof suggestion variant. The availability checker is
// deterministic everywhere else; isolating randomness behind this
// interface lets tests substitute a fixed source.
type TagSource interface {
	// Tag returns n lower-case alphanumeric characters.
	Tag(n int) string
}

// mathTagSource draws from math/rand/v2's global generator, which is safe
// for concurrent use.
type mathTagSource struct{}

func (mathTagSource) Tag(n int) string {
	var b strings.Builder
	b.Grow(n)
	for i := 0; i < n; i++ {
		b.WriteByte(tagAlphabet[rand.IntN(len(tagAlphabet))])
	}
	return b.String()
}

// NewTagSource returns the default, math/rand-backed TagSource.
func NewTagSource() TagSource { return mathTagSource{} }

// SuggestReserved returns the three deterministic alternatives offered
// when a handle is reserved: the base with "1", "_", and "2" appended.
// The base is truncated so every suggestion stays within MaxLen.
func SuggestReserved(normalized string) []string {
	b := truncate(normalized, 1)
	return []string{b + "1", b + "_", b + "2"}
}

// SuggestTaken returns the alternatives offered when a handle is already
// held by another profile: the three deterministic variants plus a
// "." + random tag variant that stays unique even under repeated
// collisions on the popular bases.
func SuggestTaken(normalized string, src TagSource, tagLen int) []string {
	if src == nil {
		src = NewTagSource()
	}
	if tagLen <= 0 {
		tagLen = 4
	}
	out := SuggestReserved(normalized)
	b := truncate(normalized, tagLen+1)
	return append(out, b+"."+src.Tag(tagLen))
}
