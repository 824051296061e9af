package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/GeorgiStavrev/konfig/pkg/authz"
	"github.com/GeorgiStavrev/konfig/pkg/cryptobox"
)

// Tenant represents an organization that owns users, api keys, and namespaces.
type Tenant struct {
	ID        string
	Name      string
	Active    bool
	Settings  map[string]string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// User represents an individual belonging to a tenant.
type User struct {
	ID           string
	TenantID     string
	Email        string
	PasswordHash string
	FullName     string
	Role         authz.Role
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// APIKey represents a long-lived service credential for a tenant.
// Only a one-way hash of the key is stored; the plaintext is returned exactly
// once at creation and is never re-derivable.
type APIKey struct {
	ID         string
	TenantID   string
	Name       string
	KeyHash    string // SHA-256 hex of the full key
	Prefix     string // Public, non-secret identifier (first chars of the key)
	Scopes     []authz.Scope
	ExpiresAt  *time.Time
	RevokedAt  *time.Time
	LastUsedAt *time.Time
	CreatedBy  string
	CreatedAt  time.Time
}

// Revoked reports whether the key has been revoked.
func (k *APIKey) Revoked() bool {
	return k.RevokedAt != nil
}

// Expired reports whether the key is past its expiration, if one is set.
func (k *APIKey) Expired(now time.Time) bool {
	return k.ExpiresAt != nil && !k.ExpiresAt.After(now)
}

// Namespace is a container for configs, owned by a single tenant.
type Namespace struct {
	ID          string
	TenantID    string
	Name        string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ValueType classifies a configuration value.
type ValueType string

const (
	ValueString ValueType = "string"
	ValueNumber ValueType = "number"
	ValueSelect ValueType = "select"
	ValueJSON   ValueType = "json"
)

// Config is a single configuration entry. Value holds plaintext on the way
// in and out of the store; it is encrypted at rest and never exposed as
// ciphertext to callers.
type Config struct {
	ID          string
	NamespaceID string
	Key         string
	Value       string // Plaintext; empty in listings (fetch via GetConfig)
	ValueType   ValueType
	Schema      string // JSON validation schema, empty if unset
	Description string
	Secret      bool
	Version     int64
	CreatedBy   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Change types recorded in config history.
const (
	ChangeCreate = "create"
	ChangeUpdate = "update"
	ChangeDelete = "delete"
)

// ConfigHistory is one append-only history row. Namespace id and key are
// denormalized so history remains addressable after the config row itself
// has been deleted.
type ConfigHistory struct {
	ID          int64
	ConfigID    string
	NamespaceID string
	Key         string
	Value       string // Plaintext snapshot, decrypted on read
	Version     int64
	ChangeType  string
	ChangedBy   string
	ChangedAt   time.Time
}

// Store provides tenant directory and versioned config operations over
// SQLite. All mutations run inside a transaction; all namespace and config
// queries are tenant-scoped at the SQL layer.
type Store struct {
	db  *sql.DB
	box *cryptobox.Box
}

// DefaultPath returns the default database path following the XDG spec.
func DefaultPath() string {
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, _ := os.UserHomeDir()
		dataHome = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataHome, "konfig", "konfig.db")
}

// Open opens or creates a SQLite database at the given path. The box is used
// to encrypt config values at rest.
func Open(path string, box *cryptobox.Box) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite allows one writer at a time. A single connection makes
	// concurrent read-then-write transactions queue behind each other
	// instead of failing with SQLITE_BUSY mid-transaction.
	db.SetMaxOpenConns(1)

	// Enable foreign key constraints
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	// WAL mode lets readers see committed changes without blocking writers.
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Without a busy timeout, concurrent writes immediately return
	// SQLITE_BUSY instead of waiting for the writer to finish.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	store := &Store{db: db, box: box}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// migrate creates the schema if it doesn't exist.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS tenants (
		id TEXT PRIMARY KEY,
		name TEXT UNIQUE NOT NULL,
		active INTEGER NOT NULL DEFAULT 1,
		settings TEXT NOT NULL DEFAULT '{}',
		created_at INTEGER DEFAULT (strftime('%s', 'now')),
		updated_at INTEGER DEFAULT (strftime('%s', 'now'))
	);
	CREATE INDEX IF NOT EXISTS idx_tenants_name ON tenants(name);

	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
		email TEXT NOT NULL,
		password_hash TEXT NOT NULL,
		full_name TEXT DEFAULT '',
		role TEXT NOT NULL DEFAULT 'member',
		active INTEGER NOT NULL DEFAULT 1,
		created_at INTEGER DEFAULT (strftime('%s', 'now')),
		updated_at INTEGER DEFAULT (strftime('%s', 'now')),
		UNIQUE (tenant_id, email)
	);
	CREATE INDEX IF NOT EXISTS idx_users_tenant ON users(tenant_id);
	CREATE INDEX IF NOT EXISTS idx_users_email ON users(email);

	CREATE TABLE IF NOT EXISTS api_keys (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		key_hash TEXT NOT NULL UNIQUE,
		prefix TEXT NOT NULL UNIQUE,
		scopes TEXT NOT NULL DEFAULT 'read',
		expires_at INTEGER,
		revoked_at INTEGER,
		last_used_at INTEGER,
		created_by TEXT DEFAULT '',
		created_at INTEGER DEFAULT (strftime('%s', 'now'))
	);
	CREATE INDEX IF NOT EXISTS idx_api_keys_tenant ON api_keys(tenant_id);
	CREATE INDEX IF NOT EXISTS idx_api_keys_prefix ON api_keys(prefix);

	CREATE TABLE IF NOT EXISTS namespaces (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		description TEXT DEFAULT '',
		created_at INTEGER DEFAULT (strftime('%s', 'now')),
		updated_at INTEGER DEFAULT (strftime('%s', 'now')),
		UNIQUE (tenant_id, name)
	);
	CREATE INDEX IF NOT EXISTS idx_namespaces_tenant ON namespaces(tenant_id);

	CREATE TABLE IF NOT EXISTS configs (
		id TEXT PRIMARY KEY,
		namespace_id TEXT NOT NULL REFERENCES namespaces(id) ON DELETE CASCADE,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		value_type TEXT NOT NULL DEFAULT 'string',
		validation_schema TEXT,
		description TEXT DEFAULT '',
		secret INTEGER NOT NULL DEFAULT 0,
		version INTEGER NOT NULL DEFAULT 1,
		created_by TEXT DEFAULT '',
		created_at INTEGER DEFAULT (strftime('%s', 'now')),
		updated_at INTEGER DEFAULT (strftime('%s', 'now')),
		UNIQUE (namespace_id, key)
	);
	CREATE INDEX IF NOT EXISTS idx_configs_namespace ON configs(namespace_id);
	CREATE INDEX IF NOT EXISTS idx_configs_key ON configs(key);

	-- Append-only. No foreign key to configs: history must survive the
	-- physical deletion of the config row it describes.
	CREATE TABLE IF NOT EXISTS config_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		config_id TEXT NOT NULL,
		namespace_id TEXT NOT NULL,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		version INTEGER NOT NULL,
		change_type TEXT NOT NULL,
		changed_by TEXT DEFAULT '',
		changed_at INTEGER DEFAULT (strftime('%s', 'now'))
	);
	CREATE INDEX IF NOT EXISTS idx_config_history_config ON config_history(config_id);
	CREATE INDEX IF NOT EXISTS idx_config_history_key ON config_history(namespace_id, key);

	CREATE TABLE IF NOT EXISTS audit_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp INTEGER NOT NULL,
		action TEXT NOT NULL,
		actor TEXT DEFAULT '',
		tenant_id TEXT DEFAULT '',
		target TEXT DEFAULT '',
		decision TEXT DEFAULT '',
		details TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_audit_log_timestamp ON audit_log(timestamp);
	CREATE INDEX IF NOT EXISTS idx_audit_log_tenant ON audit_log(tenant_id);
	CREATE INDEX IF NOT EXISTS idx_audit_log_action ON audit_log(action);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection.
// This should only be used in tests to manipulate state for edge cases.
func (s *Store) DB() *sql.DB {
	return s.db
}
