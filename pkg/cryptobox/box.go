// Package cryptobox provides authenticated encryption for configuration
// values at rest. Each value is sealed under a per-tenant data key derived
// from a single master key, so ciphertext from one tenant can never be
// opened in the context of another.
package cryptobox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

const (
	// nonceSize is the size of the GCM nonce (12 bytes is standard for AES-GCM).
	nonceSize = 12
	// keySize is the derived AES-256 key size.
	keySize = 32
	// versionPrefix tags ciphertext with the key version so master key
	// rotation can be layered in later without a data migration.
	versionPrefix = "v1."
)

var (
	// ErrDecryptFailed indicates the ciphertext could not be authenticated.
	// The value is unrecoverable for this record; callers must fail closed.
	ErrDecryptFailed = errors.New("decryption failed")
	// ErrKeyTooShort indicates the master key does not meet the minimum length.
	ErrKeyTooShort = errors.New("master key must be at least 16 bytes")
)

// Box seals and opens configuration values. It is stateless aside from the
// master key and safe for concurrent use.
type Box struct {
	master []byte
}

// New creates a Box from the given master key material.
func New(masterKey []byte) (*Box, error) {
	if len(masterKey) < 16 {
		return nil, ErrKeyTooShort
	}
	b := &Box{master: make([]byte, len(masterKey))}
	copy(b.master, masterKey)
	return b, nil
}

// tenantKey derives the per-tenant AES-256 key using HKDF-SHA256.
// The tenant id is bound into the derivation info, so a ciphertext sealed
// for one tenant fails authentication when opened for any other.
func (b *Box) tenantKey(tenantID string) ([]byte, error) {
	r := hkdf.New(sha256.New, b.master, nil, []byte("konfig/tenant/"+tenantID))
	key := make([]byte, keySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("failed to derive tenant key: %w", err)
	}
	return key, nil
}

// Seal encrypts plaintext for the given tenant using AES-256-GCM.
// The nonce is random per call, so sealing the same plaintext twice yields
// different ciphertext. Output format: "v1." + base64url(nonce || ciphertext).
func (b *Box) Seal(tenantID, plaintext string) (string, error) {
	key, err := b.tenantKey(tenantID)
	if err != nil {
		return "", err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("failed to create GCM: %w", err)
	}

	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return versionPrefix + base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Open decrypts a value sealed for the given tenant. It fails closed with
// ErrDecryptFailed on tamper, truncation, an unknown key version, or a
// tenant mismatch; no partial plaintext is ever returned.
func (b *Box) Open(tenantID, ciphertext string) (string, error) {
	encoded, ok := strings.CutPrefix(ciphertext, versionPrefix)
	if !ok {
		return "", ErrDecryptFailed
	}

	data, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return "", ErrDecryptFailed
	}
	if len(data) < nonceSize {
		return "", ErrDecryptFailed
	}

	key, err := b.tenantKey(tenantID)
	if err != nil {
		return "", err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("failed to create GCM: %w", err)
	}

	plaintext, err := gcm.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return "", ErrDecryptFailed
	}
	return string(plaintext), nil
}
