package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Normalize canonicalizes a query for exact-match keying: lowercased, with
// runs of whitespace collapsed to single spaces and outer whitespace
// trimmed. Two queries differing only in case or spacing share a key.
func Normalize(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}

// Key returns the cache key for a query: the hex form of the first 16
// bytes of the SHA-256 of the normalized text.
func Key(query string) string {
	hash := sha256.Sum256([]byte(Normalize(query)))
	return hex.EncodeToString(hash[:16])
}
