package credstore

import (
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	// KeySize is the sealing key length in bytes.
	KeySize = chacha20poly1305.KeySize

	minSecretBytes        = 16
	minSaltBytes          = 16
	minMemoryKB    uint32 = 8 * 1024
	minTimeCost    uint32 = 1
	minParallelism uint8  = 1
)

var errSealedTooShort = errors.New("sealed value too short")

// Sealer encrypts and authenticates stored values.
type Sealer interface {
	Seal(plaintext, additionalData []byte) ([]byte, error)
	Open(sealed, additionalData []byte) ([]byte, error)
}

// XChaChaSealer seals values with XChaCha20-Poly1305 and a random 24-byte nonce
// prepended to each ciphertext.
type XChaChaSealer struct {
	aead cipher.AEAD
}

// NewSealer builds an XChaChaSealer from a KeySize-byte key.
func NewSealer(key []byte) (*XChaChaSealer, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("sealing key must be %d bytes, got %d", KeySize, len(key))
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	return &XChaChaSealer{aead: aead}, nil
}

func (s *XChaChaSealer) Seal(plaintext, additionalData []byte) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(plaintext)+s.aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return s.aead.Seal(nonce, nonce, plaintext, additionalData), nil
}

func (s *XChaChaSealer) Open(sealed, additionalData []byte) ([]byte, error) {
	ns := s.aead.NonceSize()
	if len(sealed) < ns+s.aead.Overhead() {
		return nil, errSealedTooShort
	}
	return s.aead.Open(nil, sealed[:ns], sealed[ns:], additionalData)
}

// KeyDerivation holds the Argon2id cost parameters used by DeriveKey.
type KeyDerivation struct {
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
}

// DefaultKeyDerivation mirrors the interactive Argon2id profile.
func DefaultKeyDerivation() KeyDerivation {
	return KeyDerivation{
		Memory:      64 * 1024,
		Time:        3,
		Parallelism: 2,
	}
}

// DeriveKey stretches a device secret into a sealing key with Argon2id.
// The same secret and salt always yield the same key.
func DeriveKey(secret, salt []byte, kd KeyDerivation) ([]byte, error) {
	if len(secret) < minSecretBytes {
		return nil, fmt.Errorf("device secret must be at least %d bytes", minSecretBytes)
	}
	if len(salt) < minSaltBytes {
		return nil, fmt.Errorf("salt must be at least %d bytes", minSaltBytes)
	}
	if kd.Memory < minMemoryKB {
		return nil, errors.New("argon2 memory below minimum")
	}
	if kd.Time < minTimeCost {
		return nil, errors.New("argon2 time cost below minimum")
	}
	if kd.Parallelism < minParallelism {
		return nil, errors.New("argon2 parallelism below minimum")
	}
	return argon2.IDKey(secret, salt, kd.Time, kd.Memory, kd.Parallelism, KeySize), nil
}
