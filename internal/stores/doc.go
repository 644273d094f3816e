// Package stores provides Redis-backed, short-lived record stores for the
// password reset flow.
//
// # Design
//
// A reset record is JSON under pw_reset:{token} with a TTL, plus a
// per-user index pw_reset_user:{username} holding the current token.
// Issue and Redeem write every affected key in one MULTI and accept extra
// queued writes (rate counters, session deletes) so callers can commit
// related state atomically. Redeem watches the token key and retries on
// contention, making tokens single-use.
//
// # Architecture boundaries
//
// This package owns persistence and concurrency control for reset records.
// It does not generate tokens, enforce rate limits or decide outcomes;
// internal/flows does.
//
// Records never hold plaintext emails or passwords.
package stores
