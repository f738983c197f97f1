package authsession

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/authsession/credstore"
	"github.com/MrEthical07/authsession/identity"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testSealer(t *testing.T) credstore.Sealer {
	t.Helper()
	key := make([]byte, credstore.KeySize)
	for i := range key {
		key[i] = byte(i + 1)
	}
	s, err := credstore.NewSealer(key)
	if err != nil {
		t.Fatalf("NewSealer failed: %v", err)
	}
	return s
}

func newTestStore(t *testing.T) (*credstore.Store, *credstore.MemoryBackend) {
	t.Helper()
	backend := credstore.NewMemoryBackend()
	store, err := credstore.NewStore(backend, testSealer(t), credstore.Options{})
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	return store, backend
}

// fakeIdentity is an in-process identity service. Authenticate blocks on gate
// when one is set, which lets tests hold a mutation in flight.
type fakeIdentity struct {
	mu          sync.Mutex
	users       map[string]string
	calls       []string
	invalidated []string
	inflight    int
	maxInflight int

	gate    chan struct{}
	started chan string
	authErr error
}

func newFakeIdentity() *fakeIdentity {
	return &fakeIdentity{users: map[string]string{}}
}

func (f *fakeIdentity) Authenticate(ctx context.Context, email, password string) (identity.Account, error) {
	f.mu.Lock()
	f.calls = append(f.calls, "auth:"+email+":"+password)
	f.inflight++
	if f.inflight > f.maxInflight {
		f.maxInflight = f.inflight
	}
	gate, started, authErr := f.gate, f.started, f.authErr
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inflight--
		f.mu.Unlock()
	}()

	if started != nil {
		started <- email
	}
	if gate != nil {
		<-gate
	}
	if authErr != nil {
		return identity.Account{}, authErr
	}

	f.mu.Lock()
	pw, ok := f.users[email]
	f.mu.Unlock()
	switch {
	case !ok:
		return identity.Account{}, &identity.ServiceError{Kind: identity.ErrAccountNotFound, Op: "authenticate", Status: 404}
	case pw != password:
		return identity.Account{}, &identity.ServiceError{Kind: identity.ErrInvalidCredentials, Op: "authenticate", Status: 400}
	}
	return identity.Account{
		Token:  "tok-" + email,
		Record: map[string]any{"id": "id-" + email, "email": email},
	}, nil
}

func (f *fakeIdentity) CreateAccount(ctx context.Context, email, password, passwordConfirm string) (identity.Account, error) {
	f.mu.Lock()
	f.calls = append(f.calls, "register:"+email)
	if _, taken := f.users[email]; taken {
		f.mu.Unlock()
		return identity.Account{}, &identity.ServiceError{Kind: identity.ErrEmailTaken, Op: "create_account", Status: 400, Code: "validation_not_unique"}
	}
	if password != passwordConfirm {
		f.mu.Unlock()
		return identity.Account{}, &identity.ServiceError{Kind: identity.ErrInvalidRegistration, Op: "create_account", Status: 400}
	}
	f.users[email] = password
	f.mu.Unlock()
	return f.Authenticate(ctx, email, password)
}

func (f *fakeIdentity) Invalidate(ctx context.Context, token string) {
	f.mu.Lock()
	f.invalidated = append(f.invalidated, token)
	f.mu.Unlock()
}

func (f *fakeIdentity) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// recordingStore wraps a CredentialStore to count writes, detect overlapping
// writes and inject failures.
type recordingStore struct {
	inner CredentialStore

	mu        sync.Mutex
	saves     int
	active    int
	maxActive int
	saveErr   error
	loadErr   error
	clearErr  error
}

func (r *recordingStore) Save(ctx context.Context, token string, user map[string]any) error {
	r.mu.Lock()
	r.saves++
	r.active++
	if r.active > r.maxActive {
		r.maxActive = r.active
	}
	saveErr := r.saveErr
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.active--
		r.mu.Unlock()
	}()

	if saveErr != nil {
		return saveErr
	}
	// Widen the window so overlapping writes would be caught.
	time.Sleep(time.Millisecond)
	return r.inner.Save(ctx, token, user)
}

func (r *recordingStore) Load(ctx context.Context) (*credstore.Credential, error) {
	r.mu.Lock()
	loadErr := r.loadErr
	r.mu.Unlock()
	if loadErr != nil {
		return nil, loadErr
	}
	return r.inner.Load(ctx)
}

func (r *recordingStore) Clear(ctx context.Context) error {
	r.mu.Lock()
	clearErr := r.clearErr
	r.mu.Unlock()
	if clearErr != nil {
		return clearErr
	}
	return r.inner.Clear(ctx)
}

func (r *recordingStore) saveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saves
}

type testEnv struct {
	manager  *Manager
	store    *credstore.Store
	backend  *credstore.MemoryBackend
	recorder *recordingStore
	identity *fakeIdentity
}

func newTestEnv(t *testing.T, mutate func(*Config)) *testEnv {
	t.Helper()
	store, backend := newTestStore(t)
	rec := &recordingStore{inner: store}
	fake := newFakeIdentity()

	cfg := DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	m, err := New().
		WithConfig(cfg).
		WithCredentialStore(rec).
		WithIdentityClient(fake).
		WithLogger(quietLogger()).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(m.Close)

	return &testEnv{
		manager:  m,
		store:    store,
		backend:  backend,
		recorder: rec,
		identity: fake,
	}
}

// eventRecorder collects subscriber deliveries.
type eventRecorder struct {
	mu     sync.Mutex
	events []Event
	notify chan struct{}
}

func newEventRecorder() *eventRecorder {
	return &eventRecorder{notify: make(chan struct{}, 64)}
}

func (r *eventRecorder) record(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	select {
	case r.notify <- struct{}{}:
	default:
	}
}

func (r *eventRecorder) waitFor(t *testing.T, n int) []Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		r.mu.Lock()
		if len(r.events) >= n {
			out := append([]Event(nil), r.events...)
			r.mu.Unlock()
			return out
		}
		r.mu.Unlock()
		select {
		case <-r.notify:
		case <-deadline:
			r.mu.Lock()
			got := len(r.events)
			r.mu.Unlock()
			t.Fatalf("timed out waiting for %d events, got %d", n, got)
		}
	}
}

func (r *eventRecorder) reasons() []Reason {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Reason, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Reason
	}
	return out
}

func assertInvariant(t *testing.T, s Session) {
	t.Helper()
	hasToken := s.Token != ""
	hasUser := len(s.User) > 0
	authed := s.Status == StatusAuthenticated
	if hasToken != hasUser || hasToken != authed {
		t.Fatalf("partial session: status=%s token=%t user=%t", s.Status, hasToken, hasUser)
	}
}

// newPocketBase serves the identity endpoints the real identity.Client calls.
func newPocketBase(t *testing.T) (*httptest.Server, *pocketBase) {
	t.Helper()
	pb := &pocketBase{users: map[string]string{}}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/collections/users/auth-with-password", pb.auth)
	mux.HandleFunc("POST /api/collections/users/records", pb.create)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, pb
}

type pocketBase struct {
	mu    sync.Mutex
	users map[string]string
	calls []string
}

func (p *pocketBase) auth(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Identity string `json:"identity"`
		Password string `json:"password"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	p.mu.Lock()
	p.calls = append(p.calls, "auth:"+body.Identity)
	pw, ok := p.users[body.Identity]
	p.mu.Unlock()

	switch {
	case !ok:
		writeTestJSON(w, http.StatusNotFound, map[string]any{"message": "not found"})
	case pw != body.Password:
		writeTestJSON(w, http.StatusBadRequest, map[string]any{"message": "Failed to authenticate."})
	default:
		writeTestJSON(w, http.StatusOK, map[string]any{
			"token":  "pb-" + body.Identity,
			"record": map[string]any{"id": "rec-" + body.Identity, "email": body.Identity},
		})
	}
}

func (p *pocketBase) create(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email           string `json:"email"`
		Password        string `json:"password"`
		PasswordConfirm string `json:"passwordConfirm"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, "register:"+body.Email)
	if _, taken := p.users[body.Email]; taken {
		writeTestJSON(w, http.StatusBadRequest, map[string]any{
			"message": "Failed to create record.",
			"data":    map[string]any{"email": map[string]any{"code": "validation_not_unique", "message": "Value must be unique."}},
		})
		return
	}
	p.users[body.Email] = body.Password
	writeTestJSON(w, http.StatusOK, map[string]any{"id": "rec-" + body.Email, "email": body.Email})
}

func (p *pocketBase) callLog() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

func writeTestJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
