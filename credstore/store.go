package credstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultTokenKey is the key holding the sealed bearer token.
	DefaultTokenKey = "authToken"
	// DefaultUserKey is the key holding the sealed user record.
	DefaultUserKey = "authModel"
)

// Credential is the persisted projection of an authenticated session.
type Credential struct {
	Token   string
	User    map[string]any
	SavedAt time.Time
}

// Options tunes the key layout of a Store.
type Options struct {
	TokenKey string
	UserKey  string
	Now      func() time.Time
}

// Store persists at most one Credential. Save, Load and Clear are each atomic with
// respect to one another within the process; across processes the pair id check in
// Load rejects half-written pairs.
type Store struct {
	backend  Backend
	sealer   Sealer
	tokenKey string
	userKey  string
	now      func() time.Time

	mu sync.RWMutex
}

// NewStore creates a Store over backend, sealing every value with sealer.
func NewStore(backend Backend, sealer Sealer, opts Options) (*Store, error) {
	if backend == nil {
		return nil, errors.New("credential store requires a backend")
	}
	if sealer == nil {
		return nil, errors.New("credential store requires a sealer")
	}
	if opts.TokenKey == "" {
		opts.TokenKey = DefaultTokenKey
	}
	if opts.UserKey == "" {
		opts.UserKey = DefaultUserKey
	}
	if opts.TokenKey == opts.UserKey {
		return nil, errors.New("token key and user key must differ")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Store{
		backend:  backend,
		sealer:   sealer,
		tokenKey: opts.TokenKey,
		userKey:  opts.UserKey,
		now:      opts.Now,
	}, nil
}

// Save replaces the stored credential with (token, user).
//
// On a backend failure both keys are removed best-effort and a *StorageError is
// returned; the previous credential is not kept.
func (s *Store) Save(ctx context.Context, token string, user map[string]any) error {
	if token == "" || len(user) == 0 {
		return ErrIncompleteCredential
	}

	userJSON, err := json.Marshal(user)
	if err != nil {
		return storageErr("encode", s.userKey, err)
	}

	pairID := uuid.New()
	savedAt := s.now().Unix()

	tokenBlob, err := s.seal(s.tokenKey, pairID, savedAt, []byte(token))
	if err != nil {
		return storageErr("seal", s.tokenKey, err)
	}
	userBlob, err := s.seal(s.userKey, pairID, savedAt, userJSON)
	if err != nil {
		return storageErr("seal", s.userKey, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.backend.Put(ctx, s.userKey, userBlob); err != nil {
		s.rollback(ctx)
		return storageErr("put", s.userKey, err)
	}
	if err := s.backend.Put(ctx, s.tokenKey, tokenBlob); err != nil {
		s.rollback(ctx)
		return storageErr("put", s.tokenKey, err)
	}
	return nil
}

// Load returns the stored credential, or (nil, nil) when nothing is stored.
//
// A stored credential that cannot be trusted yields an error matching ErrCorrupt;
// callers should Clear it.
func (s *Store) Load(ctx context.Context) (*Credential, error) {
	s.mu.RLock()
	tokenBlob, tokenErr := s.backend.Get(ctx, s.tokenKey)
	userBlob, userErr := s.backend.Get(ctx, s.userKey)
	s.mu.RUnlock()

	tokenMissing := errors.Is(tokenErr, ErrNotFound)
	userMissing := errors.Is(userErr, ErrNotFound)

	if tokenErr != nil && !tokenMissing {
		return nil, storageErr("get", s.tokenKey, tokenErr)
	}
	if userErr != nil && !userMissing {
		return nil, storageErr("get", s.userKey, userErr)
	}
	if tokenMissing && userMissing {
		return nil, nil
	}
	if tokenMissing || userMissing {
		return nil, fmt.Errorf("%w: only one of token and user record present", ErrCorrupt)
	}

	tokenEnv, err := decodeEnvelope(tokenBlob)
	if err != nil {
		return nil, fmt.Errorf("%w: token: %v", ErrCorrupt, err)
	}
	userEnv, err := decodeEnvelope(userBlob)
	if err != nil {
		return nil, fmt.Errorf("%w: user record: %v", ErrCorrupt, err)
	}
	if tokenEnv.pairID != userEnv.pairID {
		return nil, fmt.Errorf("%w: token and user record belong to different saves", ErrCorrupt)
	}

	token, err := s.sealer.Open(tokenEnv.sealed, tokenEnv.additionalData(s.tokenKey))
	if err != nil {
		return nil, fmt.Errorf("%w: token: %v", ErrCorrupt, err)
	}
	userJSON, err := s.sealer.Open(userEnv.sealed, userEnv.additionalData(s.userKey))
	if err != nil {
		return nil, fmt.Errorf("%w: user record: %v", ErrCorrupt, err)
	}

	var user map[string]any
	if err := json.Unmarshal(userJSON, &user); err != nil {
		return nil, fmt.Errorf("%w: user record: %v", ErrCorrupt, err)
	}
	if len(token) == 0 || len(user) == 0 {
		return nil, fmt.Errorf("%w: empty token or user record", ErrCorrupt)
	}

	return &Credential{
		Token:   string(token),
		User:    user,
		SavedAt: time.Unix(tokenEnv.savedAt, 0),
	}, nil
}

// Clear deletes any stored credential. Clearing an empty store succeeds.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tokenErr := s.backend.Delete(ctx, s.tokenKey)
	userErr := s.backend.Delete(ctx, s.userKey)
	switch {
	case tokenErr != nil && userErr != nil:
		return storageErr("delete", "", errors.Join(tokenErr, userErr))
	case tokenErr != nil:
		return storageErr("delete", s.tokenKey, tokenErr)
	case userErr != nil:
		return storageErr("delete", s.userKey, userErr)
	}
	return nil
}

func (s *Store) seal(key string, pairID uuid.UUID, savedAt int64, plaintext []byte) ([]byte, error) {
	env := newEnvelope(pairID, savedAt)
	sealed, err := s.sealer.Seal(plaintext, env.additionalData(key))
	if err != nil {
		return nil, err
	}
	env.sealed = sealed
	return encodeEnvelope(env), nil
}

// rollback runs with s.mu held.
func (s *Store) rollback(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	_ = s.backend.Delete(ctx, s.tokenKey)
	_ = s.backend.Delete(ctx, s.userKey)
}
