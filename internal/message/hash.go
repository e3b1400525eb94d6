package message

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/zeebo/blake3"
)

// HashSize is the length of a message hash in bytes.
const HashSize = 32

// ErrInvalidHash is returned when a string does not encode a message hash.
var ErrInvalidHash = errors.New("invalid message hash")

// Hash is the blake3 digest of a canonically encoded record.
type Hash [HashSize]byte

// IsZero reports whether h is the zero value.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// String returns the lowercase hex encoding of h.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Short returns the first 8 hex characters, for logs.
func (h Hash) Short() string {
	return hex.EncodeToString(h[:4])
}

// MarshalText implements encoding.TextMarshaler.
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *Hash) UnmarshalText(text []byte) error {
	parsed, err := ParseHash(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// ParseHash decodes a 64-character hex string.
func ParseHash(s string) (Hash, error) {
	var h Hash

	if len(s) != HashSize*2 {
		return h, fmt.Errorf("%w: length %d", ErrInvalidHash, len(s))
	}

	if _, err := hex.Decode(h[:], []byte(s)); err != nil {
		return h, fmt.Errorf("%w: %v", ErrInvalidHash, err)
	}

	return h, nil
}

// hashRecord computes the hash of an encoded record.
func hashRecord(data []byte) Hash {
	return blake3.Sum256(data)
}
