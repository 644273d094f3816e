// Package finauth is the authentication core of a personal-finance backend:
// password credentials, protected email identities, short-lived bearer
// tokens, Redis-backed sessions and a rate-limited password reset flow.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Architecture boundaries
//
// finauth is the public surface. It exposes [Engine], [Builder], [Config],
// the [UserProvider] persistence contract and value types. Flow
// orchestration, reset storage, rate limiting, audit dispatch and metrics
// live under internal/. The credential vault, PII protector, token issuer
// and session store are public sub-packages (password, pii, jwt, session)
// so services can reuse them directly.
//
// # Errors
//
// Every Engine method returns one of the sentinels in errors.go (possibly
// wrapped). [Classify] maps them to transport-neutral classes and
// [PublicMessage] to client-safe text. Infrastructure failures are always
// [ErrStoreUnavailable], never a "not found" or "unauthorized" outcome.
package finauth
