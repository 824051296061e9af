package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	// keyNamespace prefixes every generated api key so leaked keys can be
	// recognized by secret scanners.
	keyNamespace = "konfig_"

	// keyPrefixLen is the length of the public, non-secret key prefix used
	// to look keys up without revealing the secret part.
	keyPrefixLen = 12

	keyRandomBytes = 32
)

// GenerateKey mints a new api key. It returns the plaintext key (shown to
// the caller exactly once), the public prefix stored for lookup, and the
// SHA-256 hex hash stored for verification. The plaintext is never persisted.
func GenerateKey() (plaintext, prefix, hash string, err error) {
	buf := make([]byte, keyRandomBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", "", fmt.Errorf("failed to generate key material: %w", err)
	}
	plaintext = keyNamespace + base64.RawURLEncoding.EncodeToString(buf)
	return plaintext, plaintext[:keyPrefixLen], HashKey(plaintext), nil
}

// HashKey returns the SHA-256 hex digest of a plaintext key.
func HashKey(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}

// KeyPrefix extracts the public lookup prefix from a presented key. It
// returns false if the key is too short or lacks the expected namespace.
func KeyPrefix(plaintext string) (string, bool) {
	if len(plaintext) < keyPrefixLen || !strings.HasPrefix(plaintext, keyNamespace) {
		return "", false
	}
	return plaintext[:keyPrefixLen], true
}

// VerifyKey compares a presented plaintext key against a stored hash in
// constant time.
func VerifyKey(storedHash, plaintext string) bool {
	computed := HashKey(plaintext)
	return subtle.ConstantTimeCompare([]byte(storedHash), []byte(computed)) == 1
}
