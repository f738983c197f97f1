package authsession

import (
	"io"

	"github.com/MrEthical07/authsession/internal/audit"
)

// AuditEvent is one session lifecycle record. It never carries tokens or passwords.
type AuditEvent = audit.Event

// AuditSink receives audit events from the manager's dispatcher goroutine.
type AuditSink = audit.Sink

type NoOpSink = audit.NoOpSink

type ChannelSink = audit.ChannelSink

type JSONWriterSink = audit.JSONWriterSink

func NewChannelSink(buffer int) *ChannelSink {
	return audit.NewChannelSink(buffer)
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return audit.NewJSONWriterSink(w)
}

const (
	auditRestoreSuccess    = "restore_success"
	auditRestoreEmpty      = "restore_empty"
	auditRestoreFailure    = "restore_failure"
	auditRestoreExpired    = "restore_expired"
	auditRestoreCorrupt    = "restore_corrupt"
	auditLoginSuccess      = "login_success"
	auditLoginFailure      = "login_failure"
	auditRegisterSuccess   = "register_success"
	auditRegisterFailure   = "register_failure"
	auditLogout            = "logout"
	auditPersistFailure    = "persist_failure"
	auditOperationRejected = "operation_rejected"
)
