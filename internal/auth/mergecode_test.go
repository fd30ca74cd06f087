package auth

import (
	"context"
	"testing"

	"github.com/fileforge/fileforge/internal/model"
)

func TestGenerateMergeCode_Format(t *testing.T) {
	t.Parallel()

	for i := 0; i < 20; i++ {
		code, err := GenerateMergeCode()
		if err != nil {
			t.Fatalf("GenerateMergeCode failed: %v", err)
		}
		if !ValidMergeCodeFormat(code) {
			t.Fatalf("code %q does not match XXXXXX-XXXXXX", code)
		}
	}
}

func TestGenerateMergeCode_Unique(t *testing.T) {
	t.Parallel()

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		code, err := GenerateMergeCode()
		if err != nil {
			t.Fatalf("GenerateMergeCode failed: %v", err)
		}
		if seen[code] {
			t.Fatalf("duplicate code %q", code)
		}
		seen[code] = true
	}
}

func TestNormalizeMergeCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"AB12CD-34EF56", "AB12CD-34EF56"},
		{"  ab12cd-34ef56\n", "AB12CD-34EF56"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := NormalizeMergeCode(tt.in); got != tt.want {
			t.Errorf("NormalizeMergeCode(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestValidMergeCodeFormat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		code  string
		valid bool
	}{
		{"AB12CD-34EF56", true},
		{"ab12cd-34ef56", false},
		{"AB12CD34EF56", false},
		{"AB12CD-34EF5", false},
		{"GG12CD-34EF56", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := ValidMergeCodeFormat(tt.code); got != tt.valid {
			t.Errorf("ValidMergeCodeFormat(%q) = %v, want %v", tt.code, got, tt.valid)
		}
	}
}

func TestCodeHasher_Hash(t *testing.T) {
	t.Parallel()

	h := NewCodeHasher("pepper")

	a := h.Hash("AB12CD-34EF56")
	b := h.Hash("  ab12cd-34ef56 ")
	if a != b {
		t.Error("hash should ignore surrounding whitespace and case")
	}
	if len(a) != 64 {
		t.Errorf("hash length = %d, want 64 hex chars", len(a))
	}
	if a == "AB12CD-34EF56" {
		t.Error("hash must not equal the plaintext")
	}
	if h.Hash("AB12CD-34EF57") == a {
		t.Error("different codes should hash differently")
	}
	if NewCodeHasher("other").Hash("AB12CD-34EF56") == a {
		t.Error("different peppers should hash differently")
	}
}

func TestQuickHash(t *testing.T) {
	t.Parallel()

	if QuickHash("token") != QuickHash("token") {
		t.Error("QuickHash should be deterministic")
	}
	if QuickHash("token") == QuickHash("token2") {
		t.Error("QuickHash should differ for different input")
	}
}

func TestSessionContext(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	if AccountIDFromContext(ctx) != "" {
		t.Error("expected empty account id without session")
	}

	ctx = ContextWithSession(ctx, &model.Session{AccountID: "acc-1"})
	if got := AccountIDFromContext(ctx); got != "acc-1" {
		t.Errorf("AccountIDFromContext() = %q, want acc-1", got)
	}
}
