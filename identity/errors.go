package identity

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidCredentials reports a bad email/password pair.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountNotFound reports that no account exists for the identity.
	ErrAccountNotFound = errors.New("account not found")
	// ErrEmailTaken reports an email uniqueness violation during registration.
	ErrEmailTaken = errors.New("email already registered")
	// ErrInvalidRegistration reports any other registration validation failure.
	ErrInvalidRegistration = errors.New("invalid registration")
	// ErrServiceUnavailable covers network failures, timeouts, 5xx and protocol errors.
	ErrServiceUnavailable = errors.New("identity service unavailable")
)

// ServiceError carries the normalized Kind of a failed call plus whatever detail the
// service or transport reported.
type ServiceError struct {
	Kind    error
	Op      string
	Status  int
	Code    string
	Message string
	Err     error
}

func (e *ServiceError) Error() string {
	var b strings.Builder
	b.WriteString("identity: ")
	b.WriteString(e.Op)
	b.WriteString(": ")
	b.WriteString(e.Kind.Error())
	if e.Status != 0 {
		fmt.Fprintf(&b, " (status %d", e.Status)
		if e.Code != "" {
			b.WriteString(", ")
			b.WriteString(e.Code)
		}
		if e.Message != "" {
			b.WriteString(": ")
			b.WriteString(e.Message)
		}
		b.WriteByte(')')
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ServiceError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func unavailable(op string, err error) *ServiceError {
	return &ServiceError{Kind: ErrServiceUnavailable, Op: op, Err: err}
}
