package core

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Hash is a hex-encoded sha256 digest
type Hash string

// NewHash creates a new hash from data
func NewHash(data []byte) Hash {
	sum := sha256.Sum256(data)
	return Hash(hex.EncodeToString(sum[:]))
}

// String returns the string representation
func (h Hash) String() string {
	return string(h)
}

// Short returns the first 12 hex digits, for display.
func (h Hash) Short() string {
	if len(h) <= 12 {
		return string(h)
	}
	return string(h[:12])
}

// Fingerprint hashes the JSON encoding of v. Map keys are encoded sorted, so
// equal values always produce equal fingerprints.
func Fingerprint(v interface{}) (Hash, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return NewHash(data), nil
}
