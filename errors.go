package authsession

import (
	"errors"

	"github.com/MrEthical07/authsession/credstore"
	"github.com/MrEthical07/authsession/identity"
)

var (
	// ErrInvalidCredentials reports that the identity service rejected the email/password pair.
	ErrInvalidCredentials = identity.ErrInvalidCredentials
	// ErrAccountNotFound reports that no account exists for the submitted email.
	ErrAccountNotFound = identity.ErrAccountNotFound
	// ErrEmailTaken reports a registration for an email that already has an account.
	ErrEmailTaken = identity.ErrEmailTaken
	// ErrInvalidRegistration reports any other registration field the service refused.
	ErrInvalidRegistration = identity.ErrInvalidRegistration
	// ErrServiceUnavailable covers transport failures, timeouts and server errors.
	ErrServiceUnavailable = identity.ErrServiceUnavailable
	// ErrStorage reports a credential store failure. It is never returned from
	// Login or Register; a failed save surfaces as [Result.PersistErr] instead.
	ErrStorage = credstore.ErrStorage
	// ErrOperationInProgress is returned under [PolicyReject] when another
	// mutation holds the manager.
	ErrOperationInProgress = errors.New("session operation in progress")
	// ErrManagerClosed is returned by mutations after [Manager.Close].
	ErrManagerClosed = errors.New("session manager closed")
	// ErrInvalidConfig wraps every configuration and builder validation failure.
	ErrInvalidConfig = errors.New("invalid session config")
)

// ErrorCategory groups errors by the guidance a presentation layer should show.
type ErrorCategory int

const (
	CategoryNone ErrorCategory = iota
	CategoryInvalidCredentials
	CategoryAccountNotFound
	CategoryEmailTaken
	CategoryInvalidRegistration
	CategoryServiceUnavailable
	CategoryStorage
	CategoryOperationInProgress
	CategoryUnknown
)

func (c ErrorCategory) String() string {
	switch c {
	case CategoryNone:
		return "none"
	case CategoryInvalidCredentials:
		return "invalid_credentials"
	case CategoryAccountNotFound:
		return "account_not_found"
	case CategoryEmailTaken:
		return "email_taken"
	case CategoryInvalidRegistration:
		return "invalid_registration"
	case CategoryServiceUnavailable:
		return "service_unavailable"
	case CategoryStorage:
		return "storage"
	case CategoryOperationInProgress:
		return "operation_in_progress"
	default:
		return "unknown"
	}
}

// CategoryOf classifies err. A nil error is CategoryNone.
func CategoryOf(err error) ErrorCategory {
	switch {
	case err == nil:
		return CategoryNone
	case errors.Is(err, ErrInvalidCredentials):
		return CategoryInvalidCredentials
	case errors.Is(err, ErrAccountNotFound):
		return CategoryAccountNotFound
	case errors.Is(err, ErrEmailTaken):
		return CategoryEmailTaken
	case errors.Is(err, ErrInvalidRegistration):
		return CategoryInvalidRegistration
	case errors.Is(err, ErrServiceUnavailable):
		return CategoryServiceUnavailable
	case errors.Is(err, ErrStorage):
		return CategoryStorage
	case errors.Is(err, ErrOperationInProgress):
		return CategoryOperationInProgress
	default:
		return CategoryUnknown
	}
}

// UserMessage returns a human-readable message for err's category. Transport
// detail never leaks into the message.
func UserMessage(err error) string {
	switch CategoryOf(err) {
	case CategoryNone:
		return ""
	case CategoryInvalidCredentials:
		return "Invalid email or password"
	case CategoryAccountNotFound:
		return "User does not exist"
	case CategoryEmailTaken:
		return "Email already exists"
	case CategoryInvalidRegistration:
		return "Invalid registration data"
	case CategoryServiceUnavailable:
		var se *identity.ServiceError
		if errors.As(err, &se) && se.Op == "create_account" {
			return "Registration failed. Please try again later."
		}
		return "Unable to connect to the server. Please try again later."
	case CategoryStorage:
		return "Your session could not be saved on this device and will end when the app closes."
	case CategoryOperationInProgress:
		return "Please wait for the current request to finish."
	default:
		return "Something went wrong. Please try again."
	}
}
