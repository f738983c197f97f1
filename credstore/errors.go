package credstore

import (
	"errors"
	"fmt"
)

var (
	// ErrStorage is matched by every failure of the underlying storage medium.
	ErrStorage = errors.New("credential storage error")
	// ErrCorrupt reports a stored credential that cannot be trusted: a missing half,
	// a pair id mismatch, a decryption failure or an undecodable record.
	ErrCorrupt = fmt.Errorf("%w: stored credential corrupt", ErrStorage)
	// ErrNotFound is returned by a Backend when the key holds no value.
	ErrNotFound = errors.New("secure storage key not found")
	// ErrIncompleteCredential rejects a Save without both a token and a user record.
	ErrIncompleteCredential = errors.New("token and user record are both required")
)

// StorageError describes a failed Backend operation.
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("credstore: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("credstore: %s %s: %v", e.Op, e.Key, e.Err)
}

// Unwrap exposes both ErrStorage and the backend cause to errors.Is / errors.As.
func (e *StorageError) Unwrap() []error {
	return []error{ErrStorage, e.Err}
}

func storageErr(op, key string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Key: key, Err: err}
}
