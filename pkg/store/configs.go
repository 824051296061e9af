package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"iter"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const configSelect = `
	SELECT c.id, c.namespace_id, c.key, c.value, c.value_type,
	       COALESCE(c.validation_schema, ''), c.description, c.secret,
	       c.version, c.created_by, c.created_at, c.updated_at
	FROM configs c
	JOIN namespaces n ON n.id = c.namespace_id`

// CreateConfig creates a config entry at version 1 together with its create
// history row. The namespace is resolved by ID or name within the tenant.
// The input Value is plaintext; it is validated against the declared type
// and schema, then encrypted.
func (s *Store) CreateConfig(tenantID string, c *Config) (*Config, error) {
	if err := validateValue(c.ValueType, c.Schema, c.Value); err != nil {
		return nil, err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	ns, err := getNamespaceTx(tx, tenantID, c.NamespaceID)
	if err != nil {
		return nil, err
	}

	sealed, err := s.box.Seal(tenantID, c.Value)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt value: %w", err)
	}

	id := uuid.New().String()
	if _, err := tx.Exec(
		`INSERT INTO configs (id, namespace_id, key, value, value_type, validation_schema, description, secret, version, created_by)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1, ?)`,
		id, ns.ID, c.Key, sealed, string(c.ValueType), nullIfEmpty(c.Schema), c.Description, boolToInt(c.Secret), c.CreatedBy,
	); err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, ErrDuplicateKey
		}
		return nil, fmt.Errorf("failed to create config: %w", err)
	}

	if err := insertHistoryTx(tx, id, ns.ID, c.Key, sealed, 1, ChangeCreate, c.CreatedBy); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return s.GetConfig(tenantID, ns.ID, c.Key)
}

// GetConfig retrieves a config by key within a namespace, decrypting the
// value. The lookup is tenant-scoped through the namespace join.
func (s *Store) GetConfig(tenantID, namespaceID, key string) (*Config, error) {
	row := s.db.QueryRow(
		configSelect+` WHERE n.tenant_id = ? AND (n.id = ? OR n.name = ?) AND c.key = ?`,
		tenantID, namespaceID, namespaceID, key,
	)
	cfg, err := scanConfig(row)
	if err != nil {
		return nil, err
	}
	plaintext, err := s.box.Open(tenantID, cfg.Value)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt value: %w", err)
	}
	cfg.Value = plaintext
	return cfg, nil
}

// UpdateConfig replaces a config's value, bumping the version by exactly one
// and appending an update history row. If expectedVersion is non-nil and does
// not match the stored version, the update fails with ErrVersionConflict and
// nothing changes.
func (s *Store) UpdateConfig(tenantID, namespaceID, key, value string, expectedVersion *int64, updatedBy string) (*Config, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	ns, err := getNamespaceTx(tx, tenantID, namespaceID)
	if err != nil {
		return nil, err
	}

	row := tx.QueryRow(
		`SELECT id, value_type, COALESCE(validation_schema, ''), version FROM configs WHERE namespace_id = ? AND key = ?`,
		ns.ID, key,
	)
	var id, valueType, schema string
	var version int64
	if err := row.Scan(&id, &valueType, &schema, &version); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if expectedVersion != nil && *expectedVersion != version {
		return nil, ErrVersionConflict
	}

	if err := validateValue(ValueType(valueType), schema, value); err != nil {
		return nil, err
	}

	sealed, err := s.box.Seal(tenantID, value)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt value: %w", err)
	}

	newVersion := version + 1
	now := time.Now().Unix()
	if _, err := tx.Exec(
		`UPDATE configs SET value = ?, version = ?, updated_at = ? WHERE id = ?`,
		sealed, newVersion, now, id,
	); err != nil {
		return nil, fmt.Errorf("failed to update config: %w", err)
	}

	if err := insertHistoryTx(tx, id, ns.ID, key, sealed, newVersion, ChangeUpdate, updatedBy); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return s.GetConfig(tenantID, ns.ID, key)
}

// DeleteConfig removes a config after appending a terminal delete history
// row. The history remains addressable by namespace and key; recreating the
// same key later starts over at version 1.
func (s *Store) DeleteConfig(tenantID, namespaceID, key, deletedBy string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	ns, err := getNamespaceTx(tx, tenantID, namespaceID)
	if err != nil {
		return err
	}

	row := tx.QueryRow(
		`SELECT id, value, version FROM configs WHERE namespace_id = ? AND key = ?`,
		ns.ID, key,
	)
	var id, sealed string
	var version int64
	if err := row.Scan(&id, &sealed, &version); err != nil {
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		return fmt.Errorf("failed to read config: %w", err)
	}

	if err := insertHistoryTx(tx, id, ns.ID, key, sealed, version, ChangeDelete, deletedBy); err != nil {
		return err
	}

	if _, err := tx.Exec(`DELETE FROM configs WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete config: %w", err)
	}

	return tx.Commit()
}

// ListConfigs returns config metadata for a namespace ordered by key. Values
// are left empty; fetch individual entries with GetConfig.
func (s *Store) ListConfigs(tenantID, namespaceID string) ([]*Config, error) {
	rows, err := s.db.Query(
		configSelect+` WHERE n.tenant_id = ? AND (n.id = ? OR n.name = ?) ORDER BY c.key`,
		tenantID, namespaceID, namespaceID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list configs: %w", err)
	}
	defer rows.Close()

	var configs []*Config
	for rows.Next() {
		cfg, err := scanConfig(rows)
		if err != nil {
			return nil, err
		}
		cfg.Value = ""
		configs = append(configs, cfg)
	}
	return configs, rows.Err()
}

// IterConfigs returns a restartable iterator over a namespace's configs with
// decrypted values, ordered by key. Each range over the sequence runs a fresh
// query. Iteration stops at the first error, which is yielded with a nil
// config.
func (s *Store) IterConfigs(tenantID, namespaceID string) iter.Seq2[*Config, error] {
	return func(yield func(*Config, error) bool) {
		rows, err := s.db.Query(
			configSelect+` WHERE n.tenant_id = ? AND (n.id = ? OR n.name = ?) ORDER BY c.key`,
			tenantID, namespaceID, namespaceID,
		)
		if err != nil {
			yield(nil, fmt.Errorf("failed to iterate configs: %w", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			cfg, err := scanConfig(rows)
			if err != nil {
				yield(nil, err)
				return
			}
			plaintext, err := s.box.Open(tenantID, cfg.Value)
			if err != nil {
				yield(nil, fmt.Errorf("failed to decrypt value: %w", err))
				return
			}
			cfg.Value = plaintext
			if !yield(cfg, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(nil, fmt.Errorf("failed to iterate configs: %w", err))
		}
	}
}

// GetHistory returns the full change history for a key in a namespace,
// oldest first, with decrypted value snapshots. History survives deletion of
// the config itself, so a deleted key's trail remains readable.
func (s *Store) GetHistory(tenantID, namespaceID, key string) ([]*ConfigHistory, error) {
	ns, err := s.GetNamespace(tenantID, namespaceID)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(
		`SELECT id, config_id, namespace_id, key, value, version, change_type, changed_by, changed_at
		 FROM config_history WHERE namespace_id = ? AND key = ? ORDER BY id`,
		ns.ID, key,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	defer rows.Close()

	var history []*ConfigHistory
	for rows.Next() {
		var h ConfigHistory
		var changedAt int64
		if err := rows.Scan(&h.ID, &h.ConfigID, &h.NamespaceID, &h.Key, &h.Value,
			&h.Version, &h.ChangeType, &h.ChangedBy, &changedAt); err != nil {
			return nil, fmt.Errorf("failed to scan history: %w", err)
		}
		plaintext, err := s.box.Open(tenantID, h.Value)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt history value: %w", err)
		}
		h.Value = plaintext
		h.ChangedAt = time.Unix(changedAt, 0)
		history = append(history, &h)
	}
	if len(history) == 0 {
		return nil, ErrNotFound
	}
	return history, rows.Err()
}

func insertHistoryTx(tx *sql.Tx, configID, namespaceID, key, sealedValue string, version int64, changeType, changedBy string) error {
	if _, err := tx.Exec(
		`INSERT INTO config_history (config_id, namespace_id, key, value, version, change_type, changed_by, changed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		configID, namespaceID, key, sealedValue, version, changeType, changedBy, time.Now().Unix(),
	); err != nil {
		return fmt.Errorf("failed to record history: %w", err)
	}
	return nil
}

// validateValue checks a plaintext value against its declared type and
// optional validation schema. Schemas are small JSON documents:
//
//	number: {"min": 0, "max": 100}        (both optional)
//	select: {"options": ["a", "b", "c"]}  (required)
//	string: {"max_len": 256}              (optional)
//
// json values just have to parse.
func validateValue(valueType ValueType, schema, value string) error {
	switch valueType {
	case ValueString:
		if schema != "" {
			var s struct {
				MaxLen int `json:"max_len"`
			}
			if err := json.Unmarshal([]byte(schema), &s); err != nil {
				return fmt.Errorf("%w: invalid string schema", ErrValidation)
			}
			if s.MaxLen > 0 && len(value) > s.MaxLen {
				return fmt.Errorf("%w: string exceeds %d bytes", ErrValidation, s.MaxLen)
			}
		}
		return nil

	case ValueNumber:
		n, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("%w: not a number: %q", ErrValidation, value)
		}
		if schema != "" {
			var s struct {
				Min *float64 `json:"min"`
				Max *float64 `json:"max"`
			}
			if err := json.Unmarshal([]byte(schema), &s); err != nil {
				return fmt.Errorf("%w: invalid number schema", ErrValidation)
			}
			if s.Min != nil && n < *s.Min {
				return fmt.Errorf("%w: %v below minimum %v", ErrValidation, n, *s.Min)
			}
			if s.Max != nil && n > *s.Max {
				return fmt.Errorf("%w: %v above maximum %v", ErrValidation, n, *s.Max)
			}
		}
		return nil

	case ValueSelect:
		var s struct {
			Options []string `json:"options"`
		}
		if schema == "" || json.Unmarshal([]byte(schema), &s) != nil || len(s.Options) == 0 {
			return fmt.Errorf("%w: select values require an options schema", ErrValidation)
		}
		for _, opt := range s.Options {
			if value == opt {
				return nil
			}
		}
		return fmt.Errorf("%w: %q is not an allowed option", ErrValidation, value)

	case ValueJSON:
		if !json.Valid([]byte(value)) {
			return fmt.Errorf("%w: not valid JSON", ErrValidation)
		}
		return nil

	default:
		return fmt.Errorf("%w: unknown value type %q", ErrValidation, valueType)
	}
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func scanConfig(row scanner) (*Config, error) {
	var c Config
	var valueType string
	var secret int
	var createdAt, updatedAt int64

	err := row.Scan(&c.ID, &c.NamespaceID, &c.Key, &c.Value, &valueType, &c.Schema,
		&c.Description, &secret, &c.Version, &c.CreatedBy, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan config: %w", err)
	}

	c.ValueType = ValueType(valueType)
	c.Secret = secret != 0
	c.CreatedAt = time.Unix(createdAt, 0)
	c.UpdatedAt = time.Unix(updatedAt, 0)
	return &c, nil
}
