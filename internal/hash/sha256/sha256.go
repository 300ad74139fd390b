// Package sha256 derives content-addressed names from SHA-256 digests.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
)

// DocumentExt is appended to every stored document filename.
const DocumentExt = ".html"

// Hasher hashes arbitrary bytes into a hex digest.
type Hasher struct{}

// New returns a SHA-256 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash hashes the input and returns a hex digest.
func (h *Hasher) Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Filename returns the stored document name for rawURL. It depends on the URL
// string alone, so repeated fetches of one URL always target the same file.
func (h *Hasher) Filename(rawURL string) string {
	return h.Hash([]byte(rawURL)) + DocumentExt
}

// Filename is a convenience wrapper around (*Hasher).Filename.
func Filename(rawURL string) string {
	return New().Filename(rawURL)
}
