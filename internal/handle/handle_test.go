package handle

import (
	"errors"
	"strings"
	"testing"
)

func TestClean_And_Normalize(t *testing.T) {
	cases := []struct {
		in        string
		wantClean string
		wantNorm  string
	}{
		{"TomK", "TomK", "tomk"},
		{"@TomK", "TomK", "tomk"},
		{"  @Golf.Pro_99  ", "Golf.Pro_99", "golf.pro_99"},
		{"@@double", "@double", "@double"}, // only one leading @ is stripped
		{"", "", ""},
	}
	for _, c := range cases {
		if got := Clean(c.in); got != c.wantClean {
			t.Errorf("Clean(%q) = %q, want %q", c.in, got, c.wantClean)
		}
		if got := Normalize(c.in); got != c.wantNorm {
			t.Errorf("Normalize(%q) = %q, want %q", c.in, got, c.wantNorm)
		}
	}
}

func TestValidate_Accepts(t *testing.T) {
	for _, in := range []string{
		"abc",
		"TomK",
		"@TomK",
		"a1b",
		"tom.k",
		"tom_k",
		"t.o_m.k",
		"123",
		strings.Repeat("a", 20),
		"  spaced  ",
	} {
		n, err := Validate(in)
		if err != nil {
			t.Errorf("Validate(%q) unexpected error: %v", in, err)
			continue
		}
		if n != Normalize(in) {
			t.Errorf("Validate(%q) normalized to %q, want %q", in, n, Normalize(in))
		}
	}
}

func TestValidate_Rejects(t *testing.T) {
	cases := []struct {
		in         string
		wantReason string // substring the reason must mention
	}{
		{"ab", "at least"},
		{"", "at least"},
		{"@", "at least"},
		{strings.Repeat("a", 21), "at most"},
		{".abc", "start and end"},
		{"abc.", "start and end"},
		{"_abc", "start and end"},
		{"abc_", "start and end"},
		{"ab cd", "start and end"},
		{"ab#cd", "start and end"},
		{"a..b", "consecutive"},
		{"a__b", "consecutive"},
		{"a._b", "consecutive"},
		{"a_.b", "consecutive"},
	}
	for _, c := range cases {
		_, err := Validate(c.in)
		if err == nil {
			t.Errorf("Validate(%q) expected error", c.in)
			continue
		}
		var ie *InvalidError
		if !errors.As(err, &ie) {
			t.Errorf("Validate(%q) error type %T, want *InvalidError", c.in, err)
			continue
		}
		if !strings.Contains(ie.Reason, c.wantReason) {
			t.Errorf("Validate(%q) reason %q, want mention of %q", c.in, ie.Reason, c.wantReason)
		}
	}
}

func TestValidate_LengthUsesNormalizedForm(t *testing.T) {
	// 20 significant characters plus decoration that normalization removes.
	in := "  @" + strings.Repeat("A", 20) + "  "
	if _, err := Validate(in); err != nil {
		t.Fatalf("Validate(%q) unexpected error: %v", in, err)
	}
}
