// Package session stores server-side sessions in Redis.
//
// A session is a single key, <prefix>:<id>, whose value is the owning
// username and whose TTL is fixed at creation. Reads never extend it. There
// is no per-user index: bulk invalidation scans the session keyspace in
// bounded batches and deletes every key whose value matches.
//
// # Architecture boundaries
//
// This package owns session keys and nothing else. It does not interpret
// bearer tokens, load users or deliver cookies.
//
// # What this package must NOT do
//
//   - Import finauth or any sibling package other than internal.
//   - Cache session state in process.
package session
