// Package prometheus exposes finauth metrics through client_golang.
//
// [NewCollector] wraps an engine in a [prometheus.Collector]; callers
// register it with their own registry and serve it with promhttp. Counter
// names are finauth_*_total; the latency histograms are
// finauth_hash_latency_seconds and finauth_session_resolve_latency_seconds.
package prometheus
