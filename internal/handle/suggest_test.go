package handle

import (
	"strings"
	"testing"
)

// fixedTagSource returns a constant tag so suggestion tests stay
// deterministic.
type fixedTagSource struct{ tag string }

func (f fixedTagSource) Tag(n int) string { return f.tag }

func TestSuggestReserved_Deterministic(t *testing.T) {
	got := SuggestReserved("admin")
	want := []string{"admin1", "admin_", "admin2"}
	if len(got) != len(want) {
		t.Fatalf("got %d suggestions, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("suggestion[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSuggestReserved_TruncatesLongBase(t *testing.T) {
	base := strings.Repeat("a", 20)
	for _, s := range SuggestReserved(base) {
		if len(s) > MaxLen {
			t.Errorf("suggestion %q exceeds %d characters", s, MaxLen)
		}
	}
}

func TestSuggestTaken_WithFixedSource(t *testing.T) {
	got := SuggestTaken("tomk", fixedTagSource{tag: "x7q2"}, 4)
	want := []string{"tomk1", "tomk_", "tomk2", "tomk.x7q2"}
	if len(got) != len(want) {
		t.Fatalf("got %d suggestions, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("suggestion[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSuggestTaken_DefaultSource(t *testing.T) {
	got := SuggestTaken("tomk", nil, 4)
	if len(got) != 4 {
		t.Fatalf("got %d suggestions, want 4", len(got))
	}
	// The random variant is only loosely asserted: well-formed and distinct
	// from the deterministic three.
	last := got[3]
	if !strings.HasPrefix(last, "tomk.") || len(last) != len("tomk.")+4 {
		t.Errorf("random suggestion %q has unexpected shape", last)
	}
	seen := map[string]bool{}
	for _, s := range got {
		if seen[s] {
			t.Errorf("duplicate suggestion %q", s)
		}
		seen[s] = true
		if len(s) > MaxLen {
			t.Errorf("suggestion %q exceeds %d characters", s, MaxLen)
		}
	}
}

func TestSuggestTaken_TruncatesForTag(t *testing.T) {
	base := strings.Repeat("b", 20)
	got := SuggestTaken(base, fixedTagSource{tag: "zz99"}, 4)
	for _, s := range got {
		if len(s) > MaxLen {
			t.Errorf("suggestion %q exceeds %d characters", s, MaxLen)
		}
	}
	if !strings.HasSuffix(got[3], ".zz99") {
		t.Errorf("random variant %q should end with .zz99", got[3])
	}
}
