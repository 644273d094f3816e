// Package internal holds helpers private to finauth, chiefly secure random
// identifiers for sessions and reset tokens.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - flows: flow orchestrators behind Engine operations
//   - limiters: the password-reset request limiter
//   - metrics: lock-free counters and latency histograms
//   - rate: failed-login throttle
//   - security: the startup security posture report
//   - stores: the password-reset token store
//   - config, telemetry, userstore, httpapi: the server binary's collaborators
//
// # What this package must NOT do
//
//   - Export types that appear in the public finauth API.
package internal
