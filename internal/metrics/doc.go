// Package metrics keeps the engine's counters and its two latency
// histograms (password hashing and session resolution).
//
// Every slot is a padded uint64 bumped with sync/atomic, so recording never
// allocates or locks. Histograms share eight buckets from 5ms to +Inf.
// Snapshot copies current values for the exporters under metrics/export.
//
// This package does no I/O and imports nothing from finauth.
package metrics
