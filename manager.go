package authsession

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/MrEthical07/authsession/credstore"
	"github.com/MrEthical07/authsession/identity"
	"github.com/MrEthical07/authsession/internal/audit"
	"github.com/MrEthical07/authsession/internal/metrics"
)

// CredentialStore persists the token and user record as one unit.
// *credstore.Store implements it.
type CredentialStore interface {
	Save(ctx context.Context, token string, user map[string]any) error
	// Load returns (nil, nil) when nothing is stored.
	Load(ctx context.Context) (*credstore.Credential, error)
	Clear(ctx context.Context) error
}

// IdentityClient is the remote identity service. *identity.Client implements it.
type IdentityClient interface {
	Authenticate(ctx context.Context, email, password string) (identity.Account, error)
	CreateAccount(ctx context.Context, email, password, passwordConfirm string) (identity.Account, error)
	Invalidate(ctx context.Context, token string)
}

// Manager owns the session. It is the only writer of both the in-memory
// session and the credential store; mutations run one at a time and reads never
// wait for them.
type Manager struct {
	cfg      Config
	store    CredentialStore
	identity IdentityClient
	logger   *slog.Logger
	now      func() time.Time

	current  atomic.Pointer[Session]
	sem      *semaphore.Weighted
	restored atomic.Bool
	closed   atomic.Bool
	closeMu  sync.Once

	hub     *hub
	audit   *audit.Dispatcher
	metrics *metrics.Metrics
}

var unauthenticated = Session{Status: StatusUnauthenticated}

/*
====================================
READS
====================================
*/

// Status returns the current session status without blocking.
func (m *Manager) Status() Status {
	return m.current.Load().Status
}

// Session returns a copy of the current session.
func (m *Manager) Session() Session {
	return m.current.Load().clone()
}

// CurrentUser returns a copy of the signed-in user's record.
func (m *Manager) CurrentUser() (UserRecord, bool) {
	s := m.current.Load()
	if s.Status != StatusAuthenticated {
		return nil, false
	}
	return s.User.Clone(), true
}

// Token returns the bearer token of the current session.
func (m *Manager) Token() (string, bool) {
	s := m.current.Load()
	if s.Status != StatusAuthenticated {
		return "", false
	}
	return s.Token, true
}

// Subscribe registers fn for every state transition. fn first receives a
// ReasonSnapshot event carrying the current session, then every transition in
// order. Deliveries run on a goroutine owned by the subscription; a slow fn
// never blocks the manager and events are never dropped. After Close,
// Subscribe registers nothing.
func (m *Manager) Subscribe(fn func(Event)) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}
	unsubscribe, _ = m.hub.add(fn, func() Event {
		cur := m.current.Load()
		return Event{
			Reason:   ReasonSnapshot,
			Previous: cur.Status,
			Session:  cur.clone(),
			At:       m.now(),
		}
	})
	return unsubscribe
}

/*
====================================
MUTATIONS
====================================
*/

// Restore loads the stored credential once. Later calls return nil at once.
// Restore never contacts the identity service. A store that cannot be read
// resolves to StatusUnauthenticated and the storage error is returned; a
// corrupt or expired credential is cleared and Restore returns nil.
func (m *Manager) Restore(ctx context.Context) error {
	if m.restored.Load() {
		return nil
	}
	if m.closed.Load() {
		return ErrManagerClosed
	}
	if err := m.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer m.sem.Release(1)

	return m.restoreLocked(ctx)
}

// Login authenticates with the identity service and installs the session.
// On failure the session is left exactly as it was. A credential that
// authenticates but cannot be persisted still signs the user in; see
// [Result.PersistErr].
func (m *Manager) Login(ctx context.Context, email, password string) (Result, error) {
	return m.signIn(ctx, ReasonLogin, func(ctx context.Context) (identity.Account, error) {
		return m.identity.Authenticate(ctx, email, password)
	})
}

// Register creates an account and signs in with the same credentials. Failure
// handling matches Login.
func (m *Manager) Register(ctx context.Context, req AuthRequest) (Result, error) {
	return m.signIn(ctx, ReasonRegister, func(ctx context.Context) (identity.Account, error) {
		return m.identity.CreateAccount(ctx, req.Email, req.Password, req.PasswordConfirm)
	})
}

// Logout clears the session and the store, then asks the identity service to
// revoke the old token. It waits for any in-flight mutation regardless of
// policy, ignores ctx cancellation and cannot fail. Failures of the store or
// of revocation are logged.
func (m *Manager) Logout(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithoutCancel(ctx)
	opID := uuid.NewString()

	// Acquire only fails on context cancellation, which ctx no longer has.
	_ = m.sem.Acquire(ctx, 1)
	defer m.sem.Release(1)

	// A pending restore is moot: the store is about to be cleared.
	m.restored.Store(true)

	prev := m.current.Load()
	m.transition(opID, ReasonLogout, unauthenticated, nil)

	if err := m.store.Clear(ctx); err != nil {
		m.logger.WarnContext(ctx, "credential clear failed on logout", "op_id", opID, "error", err)
	}
	if prev.Token != "" {
		m.identity.Invalidate(ctx, prev.Token)
	}

	m.metricInc(MetricLogout)
	m.emitAudit(ctx, auditLogout, true, opID, prev.User.ID(), nil, nil)
	m.logger.InfoContext(ctx, "session logged out", "op_id", opID, "user_id", prev.User.ID())
}

// Close stops subscriber delivery and flushes the audit dispatcher. Later
// Login, Register and Restore calls return ErrManagerClosed; Logout still
// clears local state. Close is idempotent.
func (m *Manager) Close() {
	m.closeMu.Do(func() {
		m.closed.Store(true)
		m.hub.close()
		m.audit.Close()
	})
}

/*
====================================
INTERNALS
====================================
*/

func (m *Manager) acquire(ctx context.Context) error {
	if m.cfg.Concurrency.Policy == PolicyReject {
		if !m.sem.TryAcquire(1) {
			return ErrOperationInProgress
		}
		return nil
	}
	return m.sem.Acquire(ctx, 1)
}

// transition swaps next in and notifies subscribers. A transition from
// unauthenticated to unauthenticated updates nothing observable and is not
// published.
func (m *Manager) transition(opID string, reason Reason, next Session, warning error) {
	n := next
	m.hub.publish(func() (Event, bool) {
		prev := m.current.Swap(&n)
		if prev.Status == StatusUnauthenticated && n.Status == StatusUnauthenticated {
			return Event{}, false
		}
		return Event{
			OperationID: opID,
			Reason:      reason,
			Previous:    prev.Status,
			Session:     n,
			Warning:     warning,
			At:          m.now(),
		}, true
	})
}

// restoreLocked must be called with the semaphore held.
func (m *Manager) restoreLocked(ctx context.Context) error {
	if m.restored.Load() {
		return nil
	}
	m.restored.Store(true)

	// Restore happens once per process; a cancelled caller must not leave it
	// half-resolved.
	ctx = context.WithoutCancel(ctx)
	opID := uuid.NewString()

	cred, err := m.store.Load(ctx)
	if err == nil && cred != nil && (cred.Token == "" || len(cred.User) == 0) {
		err = credstore.ErrCorrupt
	}
	switch {
	case errors.Is(err, credstore.ErrCorrupt):
		m.logger.WarnContext(ctx, "stored credential corrupt, clearing", "op_id", opID, "error", err)
		m.clearStore(ctx, opID)
		m.transition(opID, ReasonRestoreCorrupt, unauthenticated, nil)
		m.metricInc(MetricRestoreCorrupt)
		m.emitAudit(ctx, auditRestoreCorrupt, false, opID, "", err, nil)
		return nil

	case err != nil:
		m.logger.WarnContext(ctx, "credential load failed, starting signed out", "op_id", opID, "error", err)
		m.transition(opID, ReasonRestore, unauthenticated, err)
		m.metricInc(MetricRestoreFailure)
		m.emitAudit(ctx, auditRestoreFailure, false, opID, "", err, nil)
		return err

	case cred == nil:
		m.transition(opID, ReasonRestore, unauthenticated, nil)
		m.metricInc(MetricRestoreEmpty)
		m.emitAudit(ctx, auditRestoreEmpty, true, opID, "", nil, nil)
		return nil
	}

	user := UserRecord(cred.User)
	if m.cfg.Restore.RejectExpiredTokens && identity.TokenExpired(cred.Token, m.now(), m.cfg.Restore.ExpiryLeeway) {
		m.logger.InfoContext(ctx, "stored token expired, clearing", "op_id", opID, "user_id", user.ID())
		m.clearStore(ctx, opID)
		m.transition(opID, ReasonRestoreExpired, unauthenticated, nil)
		m.metricInc(MetricRestoreExpired)
		m.emitAudit(ctx, auditRestoreExpired, false, opID, user.ID(), nil, nil)
		return nil
	}

	m.transition(opID, ReasonRestore, Session{
		Status: StatusAuthenticated,
		Token:  cred.Token,
		User:   user,
	}, nil)
	m.metricInc(MetricRestoreSuccess)
	m.emitAudit(ctx, auditRestoreSuccess, true, opID, user.ID(), nil, nil)
	m.logger.InfoContext(ctx, "session restored", "op_id", opID, "user_id", user.ID())
	return nil
}

func (m *Manager) clearStore(ctx context.Context, opID string) {
	if err := m.store.Clear(ctx); err != nil {
		m.logger.WarnContext(ctx, "credential clear failed", "op_id", opID, "error", err)
	}
}

func (m *Manager) signIn(ctx context.Context, reason Reason, call func(context.Context) (identity.Account, error)) (Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if m.closed.Load() {
		return Result{}, ErrManagerClosed
	}
	opID := uuid.NewString()

	if err := m.acquire(ctx); err != nil {
		if errors.Is(err, ErrOperationInProgress) {
			m.metricInc(MetricOperationRejected)
			m.emitAudit(ctx, auditOperationRejected, false, opID, "", err, reasonMetadata(reason))
		}
		return Result{}, err
	}
	defer m.sem.Release(1)

	if err := m.restoreLocked(ctx); err != nil {
		m.logger.DebugContext(ctx, "restore before sign-in failed", "op_id", opID, "error", err)
	}

	// Once issued, the identity call runs to completion even if the caller
	// goes away.
	callCtx := context.WithoutCancel(ctx)
	start := time.Now()
	acct, err := call(callCtx)
	m.metrics.Observe(MetricIdentityLatency, time.Since(start))
	if err == nil && (acct.Token == "" || len(acct.Record) == 0) {
		op := "authenticate"
		if reason == ReasonRegister {
			op = "create_account"
		}
		err = &identity.ServiceError{Kind: ErrServiceUnavailable, Op: op, Message: "empty token or record"}
	}

	if m.closed.Load() {
		m.logger.InfoContext(callCtx, "manager closed during sign-in, discarding result",
			"op_id", opID, "reason", string(reason), "success", err == nil)
		return Result{}, ErrManagerClosed
	}

	if err != nil {
		m.recordSignInFailure(callCtx, reason, opID, err)
		return Result{Session: m.Session()}, err
	}

	user := UserRecord(acct.Record).Clone()
	persistErr := m.store.Save(callCtx, acct.Token, user)
	if persistErr != nil {
		m.logger.WarnContext(callCtx, "credential not persisted, session will not survive restart",
			"op_id", opID, "user_id", user.ID(), "error", persistErr)
		m.metricInc(MetricPersistFailure)
		m.emitAudit(callCtx, auditPersistFailure, false, opID, user.ID(), persistErr, reasonMetadata(reason))
	}

	m.transition(opID, reason, Session{
		Status: StatusAuthenticated,
		Token:  acct.Token,
		User:   user,
	}, persistErr)

	if reason == ReasonRegister {
		m.metricInc(MetricRegisterSuccess)
		m.emitAudit(callCtx, auditRegisterSuccess, true, opID, user.ID(), nil, nil)
	} else {
		m.metricInc(MetricLoginSuccess)
		m.emitAudit(callCtx, auditLoginSuccess, true, opID, user.ID(), nil, nil)
	}
	m.logger.InfoContext(callCtx, "session established", "op_id", opID, "reason", string(reason), "user_id", user.ID())

	return Result{Session: m.Session(), PersistErr: persistErr}, nil
}

func (m *Manager) recordSignInFailure(ctx context.Context, reason Reason, opID string, err error) {
	m.logger.InfoContext(ctx, "sign-in failed",
		"op_id", opID, "reason", string(reason), "category", CategoryOf(err).String(), "error", err)

	if reason == ReasonRegister {
		if errors.Is(err, ErrEmailTaken) {
			m.metricInc(MetricRegisterDuplicate)
		} else {
			m.metricInc(MetricRegisterFailure)
		}
		m.emitAudit(ctx, auditRegisterFailure, false, opID, "", err, nil)
		return
	}
	m.metricInc(MetricLoginFailure)
	m.emitAudit(ctx, auditLoginFailure, false, opID, "", err, nil)
}
