package internaldefs

import (
	"github.com/rfol/finauth"
)

// CounterDef names one engine counter for exporters.
type CounterDef struct {
	ID   finauth.MetricID
	Name string
	Help string
}

type HistogramDef struct {
	ID   finauth.MetricID
	Name string
	Help string
}

var CounterDefs = []CounterDef{
	{ID: finauth.MetricLoginSuccess, Name: "finauth_login_success_total", Help: "Successful login attempts."},
	{ID: finauth.MetricLoginFailure, Name: "finauth_login_failure_total", Help: "Failed login attempts."},
	{ID: finauth.MetricLoginRateLimited, Name: "finauth_login_rate_limited_total", Help: "Login attempts rejected by the throttle."},
	{ID: finauth.MetricPasswordHashUpgraded, Name: "finauth_password_hash_upgraded_total", Help: "Stored password hashes upgraded on login."},
	{ID: finauth.MetricBearerRejected, Name: "finauth_bearer_rejected_total", Help: "Rejected bearer tokens."},
	{ID: finauth.MetricSessionCreated, Name: "finauth_session_created_total", Help: "Created sessions."},
	{ID: finauth.MetricSessionRejected, Name: "finauth_session_rejected_total", Help: "Missing or expired sessions presented."},
	{ID: finauth.MetricSessionInvalidated, Name: "finauth_session_invalidated_total", Help: "Single-session logouts."},
	{ID: finauth.MetricLogoutAll, Name: "finauth_logout_all_total", Help: "Logout-all operations."},
	{ID: finauth.MetricAccountCreationSuccess, Name: "finauth_account_creation_success_total", Help: "Successful registrations."},
	{ID: finauth.MetricAccountCreationDuplicate, Name: "finauth_account_creation_duplicate_total", Help: "Registrations rejected as duplicate."},
	{ID: finauth.MetricPasswordChangeSuccess, Name: "finauth_password_change_success_total", Help: "Successful password changes."},
	{ID: finauth.MetricPasswordChangeInvalidOld, Name: "finauth_password_change_invalid_old_total", Help: "Password changes with a wrong current password."},
	{ID: finauth.MetricPasswordResetRequest, Name: "finauth_password_reset_request_total", Help: "Password reset requests."},
	{ID: finauth.MetricPasswordResetRateLimited, Name: "finauth_password_reset_rate_limited_total", Help: "Password reset requests rejected by the rate limit."},
	{ID: finauth.MetricPasswordResetConfirmSuccess, Name: "finauth_password_reset_confirm_success_total", Help: "Successful password resets."},
	{ID: finauth.MetricPasswordResetConfirmFailure, Name: "finauth_password_reset_confirm_failure_total", Help: "Failed password resets."},
	{ID: finauth.MetricStoreUnavailable, Name: "finauth_store_unavailable_total", Help: "Store calls that failed or timed out."},
}

var HistogramDefs = []HistogramDef{
	{ID: finauth.MetricHashLatency, Name: "finauth_hash_latency_seconds", Help: "Password hash and verify latency."},
	{ID: finauth.MetricSessionResolveLatency, Name: "finauth_session_resolve_latency_seconds", Help: "Session resolve latency."},
}

// AuditDroppedName is the counter for audit events lost to backpressure.
const (
	AuditDroppedName = "finauth_audit_dropped_total"
	AuditDroppedHelp = "Dropped audit events due to dispatcher backpressure."
)

// HistogramUpperBounds are the bucket upper bounds in seconds, excluding
// the final +Inf bucket.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundSuffix names each bucket, +Inf included, for exporters
// that publish one gauge per bucket.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets copies raw into a fixed-size array, zero-filling.
func NormalizeBuckets(raw []uint64) [finauth.HistBucketCount]uint64 {
	var out [finauth.HistBucketCount]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

func CumulativeBuckets(raw [finauth.HistBucketCount]uint64) [finauth.HistBucketCount]uint64 {
	var out [finauth.HistBucketCount]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
