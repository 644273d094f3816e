// Package rate provides the Redis-backed failed-login throttle.
//
// # Window semantics
//
// Fixed-window counters: INCR, then EXPIRE on the first hit of a window. Key
// prefixes:
//   - login_fail:    per identifier (already reduced to a keyed hash by the caller)
//   - login_fail_ip: per client IP, when enabled
//
// Domain policies for other flows live in internal/limiters.
package rate
