package credstore

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

const (
	envelopeVersionCurrent = 1

	pairIDSize         = 16
	envelopeHeaderSize = 1 + pairIDSize + 8
)

type envelope struct {
	version byte
	pairID  uuid.UUID
	savedAt int64
	sealed  []byte
}

func newEnvelope(pairID uuid.UUID, savedAt int64) *envelope {
	return &envelope{
		version: envelopeVersionCurrent,
		pairID:  pairID,
		savedAt: savedAt,
	}
}

func (e *envelope) header() []byte {
	var buf [envelopeHeaderSize]byte
	buf[0] = e.version
	copy(buf[1:1+pairIDSize], e.pairID[:])
	binary.BigEndian.PutUint64(buf[1+pairIDSize:], uint64(e.savedAt))
	return buf[:]
}

// additionalData binds the storage key and the whole header into the AEAD tag, so
// swapping values between keys or editing the pair id breaks Open.
func (e *envelope) additionalData(key string) []byte {
	var buf bytes.Buffer
	buf.Grow(len(key) + 1 + envelopeHeaderSize)
	buf.WriteString(key)
	buf.WriteByte(0)
	buf.Write(e.header())
	return buf.Bytes()
}

func encodeEnvelope(e *envelope) []byte {
	out := make([]byte, 0, envelopeHeaderSize+len(e.sealed))
	out = append(out, e.header()...)
	out = append(out, e.sealed...)
	return out
}

func decodeEnvelope(data []byte) (*envelope, error) {
	if len(data) <= envelopeHeaderSize {
		return nil, errors.New("envelope too short")
	}
	if data[0] != envelopeVersionCurrent {
		return nil, fmt.Errorf("unsupported envelope version %d", data[0])
	}

	e := &envelope{version: data[0]}
	copy(e.pairID[:], data[1:1+pairIDSize])
	e.savedAt = int64(binary.BigEndian.Uint64(data[1+pairIDSize : envelopeHeaderSize]))
	e.sealed = cloneBytes(data[envelopeHeaderSize:])
	return e, nil
}
