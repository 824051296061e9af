package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/GeorgiStavrev/konfig/pkg/authz"
)

// CreateAPIKey persists a new api key record. The KeyHash and Prefix fields
// must be set by the caller; ID and CreatedAt are assigned here.
func (s *Store) CreateAPIKey(k *APIKey) (*APIKey, error) {
	id := uuid.New().String()
	var expiresAt any
	if k.ExpiresAt != nil {
		expiresAt = k.ExpiresAt.Unix()
	}

	_, err := s.db.Exec(
		`INSERT INTO api_keys (id, tenant_id, name, key_hash, prefix, scopes, expires_at, created_by)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, k.TenantID, k.Name, k.KeyHash, k.Prefix, joinScopes(k.Scopes), expiresAt, k.CreatedBy,
	)
	if err != nil {
		if strings.Contains(err.Error(), "FOREIGN KEY constraint failed") {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to create api key: %w", err)
	}
	return s.getAPIKeyByID(id)
}

// GetAPIKey retrieves an api key by ID, scoped to a tenant.
func (s *Store) GetAPIKey(tenantID, id string) (*APIKey, error) {
	row := s.db.QueryRow(apiKeySelect+` WHERE id = ? AND tenant_id = ?`, id, tenantID)
	return scanAPIKey(row)
}

// GetAPIKeyByPrefix retrieves an api key by its public prefix. Used during
// credential resolution, where the tenant is not yet known.
func (s *Store) GetAPIKeyByPrefix(prefix string) (*APIKey, error) {
	row := s.db.QueryRow(apiKeySelect+` WHERE prefix = ?`, prefix)
	return scanAPIKey(row)
}

// ListAPIKeys returns all api keys in a tenant, newest first.
func (s *Store) ListAPIKeys(tenantID string) ([]*APIKey, error) {
	rows, err := s.db.Query(apiKeySelect+` WHERE tenant_id = ? ORDER BY created_at DESC, id`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list api keys: %w", err)
	}
	defer rows.Close()

	var keys []*APIKey
	for rows.Next() {
		k, err := scanAPIKey(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// RevokeAPIKey marks a key as revoked. Revocation is permanent; revoking an
// already-revoked key returns ErrKeyRevoked.
func (s *Store) RevokeAPIKey(tenantID, id string) error {
	now := time.Now().Unix()
	result, err := s.db.Exec(
		`UPDATE api_keys SET revoked_at = ? WHERE id = ? AND tenant_id = ? AND revoked_at IS NULL`,
		now, id, tenantID,
	)
	if err != nil {
		return fmt.Errorf("failed to revoke api key: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		// Distinguish a missing key from one already revoked.
		if _, err := s.GetAPIKey(tenantID, id); err != nil {
			return err
		}
		return ErrKeyRevoked
	}
	return nil
}

// TouchAPIKey records the time a key was last used to authenticate.
// Best-effort: resolution proceeds even if this fails.
func (s *Store) TouchAPIKey(id string) error {
	_, err := s.db.Exec(
		`UPDATE api_keys SET last_used_at = ? WHERE id = ?`,
		time.Now().Unix(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to touch api key: %w", err)
	}
	return nil
}

const apiKeySelect = `SELECT id, tenant_id, name, key_hash, prefix, scopes, expires_at, revoked_at, last_used_at, created_by, created_at FROM api_keys`

func (s *Store) getAPIKeyByID(id string) (*APIKey, error) {
	row := s.db.QueryRow(apiKeySelect+` WHERE id = ?`, id)
	return scanAPIKey(row)
}

func scanAPIKey(row scanner) (*APIKey, error) {
	var k APIKey
	var scopes string
	var expiresAt, revokedAt, lastUsedAt sql.NullInt64
	var createdAt int64

	err := row.Scan(&k.ID, &k.TenantID, &k.Name, &k.KeyHash, &k.Prefix, &scopes,
		&expiresAt, &revokedAt, &lastUsedAt, &k.CreatedBy, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan api key: %w", err)
	}

	k.Scopes = splitScopes(scopes)
	if expiresAt.Valid {
		t := time.Unix(expiresAt.Int64, 0)
		k.ExpiresAt = &t
	}
	if revokedAt.Valid {
		t := time.Unix(revokedAt.Int64, 0)
		k.RevokedAt = &t
	}
	if lastUsedAt.Valid {
		t := time.Unix(lastUsedAt.Int64, 0)
		k.LastUsedAt = &t
	}
	k.CreatedAt = time.Unix(createdAt, 0)
	return &k, nil
}

func joinScopes(scopes []authz.Scope) string {
	parts := make([]string, len(scopes))
	for i, s := range scopes {
		parts[i] = string(s)
	}
	return strings.Join(parts, ",")
}

func splitScopes(raw string) []authz.Scope {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	scopes := make([]authz.Scope, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			scopes = append(scopes, authz.Scope(p))
		}
	}
	return scopes
}
