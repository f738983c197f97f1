package authsession

import (
	"time"
)

// Status is the coarse session state consumers render from.
type Status uint8

const (
	// StatusRestoring means the startup restore has not resolved yet. Treat it
	// as unknown and do not render auth-dependent UI.
	StatusRestoring Status = iota
	StatusAuthenticated
	StatusUnauthenticated
)

func (s Status) String() string {
	switch s {
	case StatusRestoring:
		return "restoring"
	case StatusAuthenticated:
		return "authenticated"
	case StatusUnauthenticated:
		return "unauthenticated"
	default:
		return "unknown"
	}
}

// UserRecord is the profile the identity service returned at authentication.
type UserRecord map[string]any

// ID returns the record's "id" field, if it is a string.
func (u UserRecord) ID() string {
	id, _ := u["id"].(string)
	return id
}

// Email returns the record's "email" field, if it is a string.
func (u UserRecord) Email() string {
	email, _ := u["email"].(string)
	return email
}

// Clone returns a deep copy; nested maps and slices are copied too.
func (u UserRecord) Clone() UserRecord {
	if u == nil {
		return nil
	}
	return UserRecord(cloneMap(u))
}

func cloneMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case UserRecord:
		return t.Clone()
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = cloneValue(t[i])
		}
		return out
	default:
		return v
	}
}

// Session is an immutable snapshot of the session state.
//
// Token is non-empty exactly when User is non-empty, which is exactly when
// Status is StatusAuthenticated.
type Session struct {
	Status Status
	Token  string
	User   UserRecord
}

func (s Session) Authenticated() bool {
	return s.Status == StatusAuthenticated
}

func (s Session) clone() Session {
	s.User = s.User.Clone()
	return s
}

// AuthRequest carries registration input. It is never persisted.
type AuthRequest struct {
	Email           string
	Password        string
	PasswordConfirm string
}

// Result is the outcome of a successful Login or Register.
type Result struct {
	Session Session
	// PersistErr is set when the credential could not be written to the store.
	// The session is still authenticated but will not survive a restart.
	PersistErr error
}

func (r Result) Persisted() bool {
	return r.PersistErr == nil
}

// Reason names the operation behind an Event.
type Reason string

const (
	ReasonSnapshot       Reason = "snapshot"
	ReasonRestore        Reason = "restore"
	ReasonRestoreExpired Reason = "restore_expired"
	ReasonRestoreCorrupt Reason = "restore_corrupt"
	ReasonLogin          Reason = "login"
	ReasonRegister       Reason = "register"
	ReasonLogout         Reason = "logout"
)

// Event is delivered to subscribers for every state transition.
type Event struct {
	OperationID string
	Reason      Reason
	Previous    Status
	Session     Session
	// Warning carries a non-fatal failure, such as a credential that could not
	// be persisted or a store that could not be read during restore.
	Warning error
	At      time.Time
}
