// Package crypto holds the hashing helpers shared by transactions, blocks
// and the wire layer.
package crypto

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/Asadullah378/MiniChain/codec"
)

// Hash returns the SHA-256 hash of data as a lowercase hex string.
func Hash(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// HashValue canonically encodes v and returns the SHA-256 hex of the
// encoding. All protocol identifiers (tx_id, block_hash) are computed this
// way so that every node derives the same digest from the same fields.
func HashValue(v any) (string, error) {
	data, err := codec.Marshal(v)
	if err != nil {
		return "", err
	}
	return Hash(data), nil
}

// IsHex64 reports whether s is a 64-char lowercase hex digest.
func IsHex64(s string) bool {
	if len(s) != 64 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
