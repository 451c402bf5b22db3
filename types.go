package tokenauth

import (
	"context"
	"time"
)

// Identity is the resolved owner of a verified session.
type Identity struct {
	ID       string
	Email    string
	Username string
	Role     string
}

// UserProvider resolves a user id to an identity for authorization checks.
// Implementations typically wrap the application's user table.
type UserProvider interface {
	// ResolveUser returns the identity for userID, or ErrUserNotFound when
	// no such user exists. Infrastructure failures should be returned as-is.
	ResolveUser(ctx context.Context, userID string) (*Identity, error)
}

// Clock supplies the current time to every authority operation. Injected so
// tests can drive expiry deterministically; defaults to time.Now.
type Clock func() time.Time

// TokenPair is what a caller holds after issuance or refresh: the signed
// access handle and the opaque refresh secret that can mint its successor.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}
