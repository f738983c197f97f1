package authsession

import "github.com/MrEthical07/authsession/internal/metrics"

// MetricID identifies one manager counter or histogram.
type MetricID = metrics.ID

// MetricsSnapshot is a point-in-time copy of the manager's metrics.
type MetricsSnapshot = metrics.Snapshot

const (
	MetricRestoreSuccess    = metrics.RestoreSuccess
	MetricRestoreEmpty      = metrics.RestoreEmpty
	MetricRestoreFailure    = metrics.RestoreFailure
	MetricRestoreExpired    = metrics.RestoreExpired
	MetricRestoreCorrupt    = metrics.RestoreCorrupt
	MetricLoginSuccess      = metrics.LoginSuccess
	MetricLoginFailure      = metrics.LoginFailure
	MetricRegisterSuccess   = metrics.RegisterSuccess
	MetricRegisterFailure   = metrics.RegisterFailure
	MetricRegisterDuplicate = metrics.RegisterDuplicate
	MetricLogout            = metrics.Logout
	MetricPersistFailure    = metrics.PersistFailure
	MetricOperationRejected = metrics.OperationRejected
	MetricIdentityLatency   = metrics.IdentityLatency
)

// MetricsSnapshot returns current counters. It is empty when metrics are disabled.
func (m *Manager) MetricsSnapshot() MetricsSnapshot {
	return m.metrics.Snapshot()
}

// AuditDropped reports audit events dropped because the dispatcher buffer was full.
func (m *Manager) AuditDropped() uint64 {
	return m.audit.Dropped()
}

func (m *Manager) metricInc(id MetricID) {
	m.metrics.Inc(id)
}
