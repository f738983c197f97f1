package internaldefs

import (
	"github.com/MrEthical07/authsession"
)

// CounterDef names one exported counter.
type CounterDef struct {
	ID   authsession.MetricID
	Name string
	Help string
}

// HistogramDef names one exported histogram.
type HistogramDef struct {
	ID   authsession.MetricID
	Name string
	Help string
}

// CounterDefs lists every counter in export order.
var CounterDefs = []CounterDef{
	{ID: authsession.MetricRestoreSuccess, Name: "authsession_restore_success_total", Help: "Startup restores that installed a stored credential."},
	{ID: authsession.MetricRestoreEmpty, Name: "authsession_restore_empty_total", Help: "Startup restores that found no stored credential."},
	{ID: authsession.MetricRestoreFailure, Name: "authsession_restore_failure_total", Help: "Startup restores that could not read the credential store."},
	{ID: authsession.MetricRestoreExpired, Name: "authsession_restore_expired_total", Help: "Startup restores that discarded an expired token."},
	{ID: authsession.MetricRestoreCorrupt, Name: "authsession_restore_corrupt_total", Help: "Startup restores that discarded a corrupt credential."},
	{ID: authsession.MetricLoginSuccess, Name: "authsession_login_success_total", Help: "Successful logins."},
	{ID: authsession.MetricLoginFailure, Name: "authsession_login_failure_total", Help: "Failed logins."},
	{ID: authsession.MetricRegisterSuccess, Name: "authsession_register_success_total", Help: "Successful registrations."},
	{ID: authsession.MetricRegisterFailure, Name: "authsession_register_failure_total", Help: "Failed registrations other than duplicates."},
	{ID: authsession.MetricRegisterDuplicate, Name: "authsession_register_duplicate_total", Help: "Registrations rejected because the email was taken."},
	{ID: authsession.MetricLogout, Name: "authsession_logout_total", Help: "Logouts."},
	{ID: authsession.MetricPersistFailure, Name: "authsession_persist_failure_total", Help: "Sign-ins whose credential could not be persisted."},
	{ID: authsession.MetricOperationRejected, Name: "authsession_operation_rejected_total", Help: "Mutations rejected because another was in flight."},
}

// HistogramDefs lists every histogram in export order.
var HistogramDefs = []HistogramDef{
	{ID: authsession.MetricIdentityLatency, Name: "authsession_identity_latency_seconds", Help: "Identity service call latency."},
}

// HistogramBounds are the upper bounds of the latency buckets, in seconds.
var HistogramBounds = []string{
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"1",
	"2.5",
	"5",
	"+Inf",
}

// HistogramBoundSuffix is HistogramBounds spelled for instrument names.
var HistogramBoundSuffix = []string{
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"1",
	"2_5",
	"5",
	"inf",
}

// NormalizeBuckets copies raw into a fixed-size array, zero-filling when raw is short.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	copy(out[:], raw)
	return out
}

// CumulativeBuckets converts per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i, n := range raw {
		running += n
		out[i] = running
	}
	return out
}
