package finauth

import (
	internalmetrics "github.com/rfol/finauth/internal/metrics"
)

// MetricID indexes one engine counter or latency histogram.
type MetricID = internalmetrics.MetricID

const (
	MetricLoginSuccess                = internalmetrics.MetricLoginSuccess
	MetricLoginFailure                = internalmetrics.MetricLoginFailure
	MetricLoginRateLimited            = internalmetrics.MetricLoginRateLimited
	MetricPasswordHashUpgraded        = internalmetrics.MetricPasswordHashUpgraded
	MetricBearerRejected              = internalmetrics.MetricBearerRejected
	MetricSessionCreated              = internalmetrics.MetricSessionCreated
	MetricSessionRejected             = internalmetrics.MetricSessionRejected
	MetricSessionInvalidated          = internalmetrics.MetricSessionInvalidated
	MetricLogoutAll                   = internalmetrics.MetricLogoutAll
	MetricAccountCreationSuccess      = internalmetrics.MetricAccountCreationSuccess
	MetricAccountCreationDuplicate    = internalmetrics.MetricAccountCreationDuplicate
	MetricPasswordChangeSuccess       = internalmetrics.MetricPasswordChangeSuccess
	MetricPasswordChangeInvalidOld    = internalmetrics.MetricPasswordChangeInvalidOld
	MetricPasswordResetRequest        = internalmetrics.MetricPasswordResetRequest
	MetricPasswordResetRateLimited    = internalmetrics.MetricPasswordResetRateLimited
	MetricPasswordResetConfirmSuccess = internalmetrics.MetricPasswordResetConfirmSuccess
	MetricPasswordResetConfirmFailure = internalmetrics.MetricPasswordResetConfirmFailure
	MetricStoreUnavailable            = internalmetrics.MetricStoreUnavailable
	MetricHashLatency                 = internalmetrics.MetricHashLatency
	MetricSessionResolveLatency       = internalmetrics.MetricSessionResolveLatency

	MetricIDCount = internalmetrics.MetricIDCount
)

// HistBucketCount is the number of latency buckets, the last being +Inf.
const HistBucketCount = internalmetrics.HistBucketCount

// Metrics is the engine's in-process counter set. Exporters in
// metrics/export read it through Snapshot.
type Metrics = internalmetrics.Metrics

// MetricsSnapshot is a point-in-time copy of Metrics.
type MetricsSnapshot = internalmetrics.Snapshot

// NewMetrics builds a Metrics from cfg.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return internalmetrics.New(internalmetrics.Config{
		Enabled:                 cfg.Enabled,
		EnableLatencyHistograms: cfg.EnableLatencyHistograms,
	})
}

// IsHistogram reports whether id is a latency histogram.
func IsHistogram(id MetricID) bool {
	return internalmetrics.IsHistogram(id)
}
