package domain

import (
	"strings"
	"testing"
)

func TestNormalizeEmail(t *testing.T) {
	if got := NormalizeEmail("  Jane.Doe@Example.COM \n"); got != "jane.doe@example.com" {
		t.Fatalf("unexpected normalized email: %q", got)
	}
	if got := NormalizeEmail(""); got != "" {
		t.Fatalf("expected empty, got %q", got)
	}
}

func TestIsValidEmail(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"jane@example.com", true},
		{"  JANE@EXAMPLE.COM ", true},
		{"a@b.co", true},
		{"first.last+tag@mail.example.co.uk", true},
		{"x@sub-domain.example.org", true},
		{"", false},
		{"   ", false},
		{"jane", false},
		{"jane@example", false},
		{"jane..doe@example.com", false},
		{"jane@@example.com", false},
		{"jane@doe@example.com", false},
		{".jane@example.com", false},
		{"jane.@example.com", false},
		{"@example.com", false},
		{"jane@", false},
		{"jane@-example.com", false},
		{"jane@example-.com", false},
		{"jane@exa mple.com", false},
		{strings.Repeat("a", 65) + "@example.com", false},
		{strings.Repeat("a", 64) + "@example.com", true},
		{"jane@" + strings.Repeat("a", 64) + ".com", false},
		{"jane@" + strings.Repeat("a", 63) + ".com", true},
		{"jane@" + strings.Repeat("abcdefghi.", 25) + "com", false},
	}
	for _, tc := range cases {
		if got := IsValidEmail(tc.in); got != tc.want {
			t.Errorf("IsValidEmail(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestNormalizeName(t *testing.T) {
	if got := NormalizeName("   "); got != DefaultSubscriberName {
		t.Fatalf("expected default name, got %q", got)
	}
	if got := NormalizeName(" Ada "); got != "Ada" {
		t.Fatalf("unexpected name: %q", got)
	}
}

func TestNormalizeMergeRows(t *testing.T) {
	rows := NormalizeMergeRows([]MergeRow{
		{Name: "Ada", Email: "ADA@example.com"},
		{Name: "", Email: "bob@example.com"},
		{Name: "Broken", Email: "not-an-email"},
		{Name: "Ada Lovelace", Email: " ada@example.com "},
	})
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d: %+v", len(rows), rows)
	}
	if rows[0].Email != "ada@example.com" || rows[0].Name != "Ada Lovelace" {
		t.Fatalf("expected last write to win, got %+v", rows[0])
	}
	if rows[1].Name != DefaultSubscriberName {
		t.Fatalf("expected default name, got %+v", rows[1])
	}
}

func TestRedactEmail(t *testing.T) {
	if got := RedactEmail("jane@example.com"); got != "j***@example.com" {
		t.Fatalf("unexpected redaction: %q", got)
	}
	if got := RedactEmail("nope"); got != "***" {
		t.Fatalf("unexpected redaction: %q", got)
	}
}
