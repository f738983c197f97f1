package authsession

import (
	"context"
	"errors"

	"github.com/MrEthical07/authsession/credstore"
)

func (m *Manager) emitAudit(ctx context.Context, eventType string, success bool, opID, userID string, err error, metadata func() map[string]string) {
	if m == nil || m.audit == nil {
		return
	}

	event := AuditEvent{
		Timestamp:   m.now(),
		EventType:   eventType,
		OperationID: opID,
		UserID:      userID,
		Success:     success,
	}
	if err != nil {
		event.Error = auditErrorCode(err)
	}
	if metadata != nil {
		event.Metadata = metadata()
	}

	m.audit.Emit(ctx, event)
}

func auditErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, ErrAccountNotFound):
		return "account_not_found"
	case errors.Is(err, ErrEmailTaken):
		return "email_taken"
	case errors.Is(err, ErrInvalidRegistration):
		return "invalid_registration"
	case errors.Is(err, ErrServiceUnavailable):
		return "service_unavailable"
	case errors.Is(err, credstore.ErrCorrupt):
		return "storage_corrupt"
	case errors.Is(err, ErrStorage):
		return "storage_error"
	case errors.Is(err, ErrOperationInProgress):
		return "operation_in_progress"
	case errors.Is(err, ErrManagerClosed):
		return "manager_closed"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "internal_error"
	}
}

func reasonMetadata(reason Reason) func() map[string]string {
	return func() map[string]string {
		return map[string]string{"reason": string(reason)}
	}
}
