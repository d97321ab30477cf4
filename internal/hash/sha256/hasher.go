// Package sha256 computes the archive checksums carried on completion
// events.
package sha256

import (
	"crypto/sha256"
	"fmt"
)

// Hasher implements bundle.Hasher over crypto/sha256.
type Hasher struct{}

// New returns a Hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash returns the lowercase hex SHA-256 digest of data.
func (h *Hasher) Hash(data []byte) (string, error) {
	return fmt.Sprintf("%x", sha256.Sum256(data)), nil
}
