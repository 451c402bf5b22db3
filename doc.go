// Package tokenauth is the session/token authority extracted from the Arctic
// Fox backend: issuance, verification, rotation, and revocation of
// access/refresh token pairs backed by a shared Redis cache.
//
// A caller obtains a pair through [Authority.Issue]; the externally visible
// access handle is a signed JWT wrapping nothing but an opaque secret, so all
// authority — expirations, ownership, revocation — stays server-side in the
// token store. Refresh always rotates: the old record is grace-expired and a
// brand-new pair is minted. Reuse of a refresh secret after its window has
// lapsed is treated as evidence of credential theft and answered by revoking
// every session the user holds.
//
// The package is designed for concurrent server workloads: Authority methods
// are safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// tokenauth is the public surface. It exposes [Authority], [Builder],
// [Config], and value types. Storage mechanics live in the token subpackage,
// handle signing in the jwt subpackage; neither makes policy decisions.
//
// # What this package must NOT do
//
//   - Expose Redis clients, storage keys, or refresh secrets of live records
//     beyond the pair returned to their owner.
//   - Distinguish authentication failure causes in its exported errors — the
//     boundary reports a uniform [ErrUnauthenticated], fail closed.
package tokenauth
