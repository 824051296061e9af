package cryptobox

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// envKeyName is the environment variable containing the master encryption key.
const envKeyName = "KONFIG_MASTER_KEY"

// DefaultKeyPath returns the default path for the auto-generated master key
// file, following the XDG Base Directory spec.
func DefaultKeyPath() string {
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, _ := os.UserHomeDir()
		dataHome = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataHome, "konfig", "key")
}

// LoadOrGenerateKey loads the master key from the environment or a key file,
// generating and persisting a new one if neither exists.
// Priority:
//  1. Environment variable KONFIG_MASTER_KEY (always takes precedence)
//  2. Key file at the specified path
//  3. Generate new key and save to file
func LoadOrGenerateKey(keyPath string) (string, error) {
	if keyStr := os.Getenv(envKeyName); keyStr != "" {
		return keyStr, nil
	}

	data, err := os.ReadFile(keyPath)
	if err == nil {
		return strings.TrimSpace(string(data)), nil
	}
	if !os.IsNotExist(err) {
		return "", fmt.Errorf("failed to read key file: %w", err)
	}

	keyBytes := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, keyBytes); err != nil {
		return "", fmt.Errorf("failed to generate random key: %w", err)
	}
	keyStr := hex.EncodeToString(keyBytes)

	dir := filepath.Dir(keyPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("failed to create key directory: %w", err)
	}
	if err := os.WriteFile(keyPath, []byte(keyStr), 0600); err != nil {
		return "", fmt.Errorf("failed to write key file: %w", err)
	}

	slog.Info("generated new master key", "path", keyPath)
	return keyStr, nil
}
