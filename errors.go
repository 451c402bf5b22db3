package tokenauth

import "errors"

var (
	// ErrUnauthenticated is the uniform rejection for every authentication
	// failure: bad signature, missing or evicted record, expired access
	// window, refresh secret mismatch. Causes are collapsed on purpose so a
	// caller cannot learn which check failed.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrStoreUnavailable signals an infrastructure fault in the token store.
	// It is deliberately distinct from ErrUnauthenticated: an outage must
	// surface as a 5xx-class failure, never masquerade as revoked sessions.
	ErrStoreUnavailable = errors.New("token store unavailable")

	// ErrUserNotFound is returned by identity resolution when the user id on
	// a record no longer maps to an identity.
	ErrUserNotFound = errors.New("user not found")

	// ErrAuthorityNotReady is returned when an Authority is used before a
	// successful Build.
	ErrAuthorityNotReady = errors.New("authority not initialized")
)
