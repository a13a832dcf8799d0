package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Text returns the hex-encoded SHA-256 digest of s.
func Text(s string) string {
	return Sum([]byte(s))
}

// Running accumulates a digest over several chunks written in order.
type Running struct {
	h hash.Hash
}

// NewRunning starts an empty running digest.
func NewRunning() *Running {
	return &Running{h: sha256.New()}
}

// Add feeds the next chunk.
func (r *Running) Add(chunk []byte) {
	_, _ = r.h.Write(chunk)
}

// String returns the hex digest of everything added so far.
func (r *Running) String() string {
	return hex.EncodeToString(r.h.Sum(nil))
}
