package jwt

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(Config{
		Secret: []byte("unit-test-signing-secret"),
		Issuer: "tokenauth-test",
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m
}

func TestNewManagerRequiresSecret(t *testing.T) {
	if _, err := NewManager(Config{}); err == nil {
		t.Fatal("expected error for empty secret")
	}
}

func TestWrapUnwrapRoundtrip(t *testing.T) {
	m := newTestManager(t)

	handle, err := m.WrapAccess("opaque-access-secret", time.Now())
	if err != nil {
		t.Fatalf("wrap: %v", err)
	}

	secret, err := m.UnwrapAccess(handle)
	if err != nil {
		t.Fatalf("unwrap: %v", err)
	}
	if secret != "opaque-access-secret" {
		t.Fatalf("claim mismatch: %q", secret)
	}
}

func TestUnwrapRejectsWrongKey(t *testing.T) {
	m := newTestManager(t)
	other, err := NewManager(Config{
		Secret: []byte("a-completely-different-key"),
		Issuer: "tokenauth-test",
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	handle, err := m.WrapAccess("opaque-access-secret", time.Now())
	if err != nil {
		t.Fatalf("wrap: %v", err)
	}

	if _, err := other.UnwrapAccess(handle); !errors.Is(err, ErrHandleInvalid) {
		t.Fatalf("expected ErrHandleInvalid, got %v", err)
	}
}

func TestUnwrapRejectsTamperedHandle(t *testing.T) {
	m := newTestManager(t)

	handle, err := m.WrapAccess("opaque-access-secret", time.Now())
	if err != nil {
		t.Fatalf("wrap: %v", err)
	}

	parts := strings.Split(handle, ".")
	if len(parts) != 3 {
		t.Fatalf("unexpected handle shape: %q", handle)
	}
	tampered := parts[0] + ".eyJ0b2tlbiI6ImZvcmdlZCJ9." + parts[2]

	if _, err := m.UnwrapAccess(tampered); !errors.Is(err, ErrHandleInvalid) {
		t.Fatalf("expected ErrHandleInvalid, got %v", err)
	}
}

func TestUnwrapRejectsGarbage(t *testing.T) {
	m := newTestManager(t)

	for _, input := range []string{"", "...", "not-a-jwt", "a.b"} {
		if _, err := m.UnwrapAccess(input); !errors.Is(err, ErrHandleInvalid) {
			t.Fatalf("input %q: expected ErrHandleInvalid, got %v", input, err)
		}
	}
}

func TestUnwrapChecksIssuer(t *testing.T) {
	m := newTestManager(t)
	noIssuer, err := NewManager(Config{Secret: []byte("unit-test-signing-secret")})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	handle, err := noIssuer.WrapAccess("opaque-access-secret", time.Now())
	if err != nil {
		t.Fatalf("wrap: %v", err)
	}

	if _, err := m.UnwrapAccess(handle); !errors.Is(err, ErrHandleInvalid) {
		t.Fatalf("expected issuer rejection, got %v", err)
	}
}
