// Package webhook authenticates inbound callback requests from the push
// channel and turns their free-text replies into action lifecycle events.
package webhook

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"sort"
	"strings"
)

// Signature computes the callback signature: the hex SHA-256 digest of the
// shared token, timestamp and nonce joined in lexicographic order. Both
// sides must sort before hashing or signatures will only match by luck.
func Signature(token, timestamp, nonce string) string {
	parts := []string{token, timestamp, nonce}
	sort.Strings(parts)
	sum := sha256.Sum256([]byte(strings.Join(parts, "")))
	return hex.EncodeToString(sum[:])
}

// VerifySignature compares the presented signature in constant time.
func VerifySignature(token, timestamp, nonce, presented string) bool {
	expected := Signature(token, timestamp, nonce)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(presented)) == 1
}
