package internal

import (
	"strings"
	"testing"
)

func TestNewOpaqueSecret(t *testing.T) {
	seen := make(map[string]struct{}, 64)
	for i := 0; i < 64; i++ {
		secret, err := NewOpaqueSecret()
		if err != nil {
			t.Fatalf("NewOpaqueSecret: %v", err)
		}
		if err := ValidateOpaqueSecret(secret); err != nil {
			t.Fatalf("generated secret failed validation: %v", err)
		}
		if strings.ContainsAny(secret, "+/=") {
			t.Fatalf("secret %q is not URL-safe", secret)
		}
		if _, dup := seen[secret]; dup {
			t.Fatalf("duplicate secret generated: %q", secret)
		}
		seen[secret] = struct{}{}
	}
}

func TestValidateOpaqueSecretRejectsMalformed(t *testing.T) {
	cases := []struct {
		name   string
		secret string
	}{
		{"empty", ""},
		{"not base64url", "!!!!not-base64!!!!"},
		{"too short", "c2hvcnQ"},
		{"padded", "QUFBQUFBQUFBQUFBQUFBQUFBQUFBQUFBQUFBQUFBQUE="},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := ValidateOpaqueSecret(tc.secret); err == nil {
				t.Fatalf("ValidateOpaqueSecret(%q) accepted malformed input", tc.secret)
			}
		})
	}
}
