// Package limiters provides domain-specific Redis rate limiters.
//
// # Limiters
//
//   - [PasswordResetLimiter]: per-email counter for reset requests
//     (pw_reset_rate:{lookup hash}, default 2 per hour).
//
// The failed-login throttle lives in internal/rate.
//
// All limiters are nil-safe: calling Check, Queue or Record on a nil
// receiver is a no-op.
//
// # Architecture boundaries
//
// Each limiter owns its own Redis key namespace and error types. Thresholds
// come from Config structs supplied at construction time. Flow functions
// decide what a limit means for the caller.
package limiters
