package util

import (
	"errors"
	"testing"
)

func TestValidateHTTPURL(t *testing.T) {
	got, err := ValidateHTTPURL(" https://api.example.com/v1/ ")
	if err != nil {
		t.Fatalf("expected valid url: %v", err)
	}
	if got != "https://api.example.com/v1" {
		t.Fatalf("expected trimmed url, got %q", got)
	}

	cases := []string{"", "/", "ftp://example.com", "https://", "::bad", "https://user:pw@api.example.com"}
	for _, input := range cases {
		if _, err := ValidateHTTPURL(input); !errors.Is(err, ErrInvalidURL) {
			t.Fatalf("expected ErrInvalidURL for %q, got %v", input, err)
		}
	}
}

func TestDigitsOnly(t *testing.T) {
	cases := map[string]string{
		"(48) 99999-1234":  "48999991234",
		"+55 48 3333.4444": "554833334444",
		"abc":              "",
		"":                 "",
	}
	for input, want := range cases {
		if got := DigitsOnly(input); got != want {
			t.Fatalf("DigitsOnly(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"São José":                "sao-jose",
		"  Jurerê Internacional ": "jurere-internacional",
		"Maria Silva":             "maria-silva",
		"Ponta das Canas!!":       "ponta-das-canas",
		"---":                     "",
		"Açores 2":                "acores-2",
	}
	for input, want := range cases {
		if got := Slugify(input); got != want {
			t.Fatalf("Slugify(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestTruncateRunes(t *testing.T) {
	if got := TruncateRunes("imóvel", 3); got != "imó" {
		t.Fatalf("unexpected truncation %q", got)
	}
	if got := TruncateRunes("abc", 10); got != "abc" {
		t.Fatalf("expected untouched value, got %q", got)
	}
	if got := TruncateRunes("abc", 0); got != "" {
		t.Fatalf("expected empty value, got %q", got)
	}
}
