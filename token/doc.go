// Package token provides TTL-scoped Redis persistence for issued session
// records and the registry that supports their enumeration.
//
// # Storage model
//
// Each [Record] is stored as JSON under "token:" + its access secret, with a
// TTL equal to the refresh validity window, so an entry never outlives the
// longest possible use of its refresh secret. A Redis set ("token_registry")
// tracks every stored key. The registry is a liveness hint only: it may hold
// dangling references after TTL eviction and must never be consulted to decide
// whether a record is live — that authority rests with the keyspace itself.
//
// # Architecture boundaries
//
// This package owns Redis operations and the [Record] model. It does NOT
// interpret JWT handles, resolve user identities, or enforce authentication
// policy — those responsibilities belong to the Authority in the root package.
package token
