// Package jwt wraps opaque access secrets in compact HS256-signed handles.
//
// The handle carries a single custom claim holding the access secret and
// nothing else of authority: no exp or sub claim is consulted for
// authorization decisions. All real state — expirations, ownership,
// revocation — lives server-side in the token store, which is what makes
// revocation instantaneous and independent of anything baked into the JWT.
package jwt
