package logincode

import (
	"strings"
	"testing"
)

func TestAlphabetExcludesAmbiguousGlyphs(t *testing.T) {
	if len(Alphabet) != 32 {
		t.Fatalf("expected 32-character alphabet, got %d", len(Alphabet))
	}
	for _, forbidden := range []string{"0", "O", "1", "I"} {
		if strings.Contains(Alphabet, forbidden) {
			t.Fatalf("alphabet must not contain %q", forbidden)
		}
	}

	seen := make(map[rune]struct{}, len(Alphabet))
	for _, r := range Alphabet {
		if _, ok := seen[r]; ok {
			t.Fatalf("duplicate alphabet character %q", r)
		}
		seen[r] = struct{}{}
	}
}

func TestNewLoginCode(t *testing.T) {
	for i := 0; i < 200; i++ {
		code, err := NewLoginCode()
		if err != nil {
			t.Fatalf("generate code: %v", err)
		}
		if len(code) != LoginCodeLength {
			t.Fatalf("expected length %d, got %q", LoginCodeLength, code)
		}
		for _, r := range code {
			if !strings.ContainsRune(Alphabet, r) {
				t.Fatalf("code %q contains character outside alphabet", code)
			}
		}
	}
}

func TestNewRejectsInvalidLength(t *testing.T) {
	if _, err := New(0); err == nil {
		t.Fatal("expected error for zero length")
	}
	if _, err := New(-3); err == nil {
		t.Fatal("expected error for negative length")
	}
}

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"  ab23cd ": "AB23CD",
		"AB23CD":    "AB23CD",
		"\tqwerty\n": "QWERTY",
	}
	for input, want := range cases {
		if got := Normalize(input); got != want {
			t.Fatalf("Normalize(%q) = %q, want %q", input, got, want)
		}
	}
}
