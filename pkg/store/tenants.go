package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/GeorgiStavrev/konfig/pkg/authz"
)

// RegisterTenant creates a tenant together with its first owner user in a
// single transaction. The passwordHash must already be hashed by the caller.
func (s *Store) RegisterTenant(name, ownerEmail, passwordHash, fullName string) (*Tenant, *User, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	tenantID := uuid.New().String()
	if _, err := tx.Exec(
		`INSERT INTO tenants (id, name) VALUES (?, ?)`,
		tenantID, name,
	); err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: tenants.name") {
			return nil, nil, ErrDuplicateTenant
		}
		return nil, nil, fmt.Errorf("failed to create tenant: %w", err)
	}

	userID := uuid.New().String()
	if _, err := tx.Exec(
		`INSERT INTO users (id, tenant_id, email, password_hash, full_name, role) VALUES (?, ?, ?, ?, ?, ?)`,
		userID, tenantID, ownerEmail, passwordHash, fullName, string(authz.RoleOwner),
	); err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, nil, ErrDuplicateEmail
		}
		return nil, nil, fmt.Errorf("failed to create owner user: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	tenant, err := s.GetTenant(tenantID)
	if err != nil {
		return nil, nil, err
	}
	owner, err := s.GetUserByID(userID)
	if err != nil {
		return nil, nil, err
	}
	return tenant, owner, nil
}

// GetTenant retrieves a tenant by ID.
func (s *Store) GetTenant(id string) (*Tenant, error) {
	row := s.db.QueryRow(
		`SELECT id, name, active, settings, created_at, updated_at FROM tenants WHERE id = ?`,
		id,
	)
	return scanTenant(row)
}

// GetTenantByName retrieves a tenant by its globally unique name.
func (s *Store) GetTenantByName(name string) (*Tenant, error) {
	row := s.db.QueryRow(
		`SELECT id, name, active, settings, created_at, updated_at FROM tenants WHERE name = ?`,
		name,
	)
	return scanTenant(row)
}

// ListTenants returns all tenants ordered by name.
func (s *Store) ListTenants() ([]*Tenant, error) {
	rows, err := s.db.Query(
		`SELECT id, name, active, settings, created_at, updated_at FROM tenants ORDER BY name`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	defer rows.Close()

	var tenants []*Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, err
		}
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}

// UpdateTenant updates a tenant's name and settings.
func (s *Store) UpdateTenant(id, name string, settings map[string]string) error {
	settingsJSON, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	now := time.Now().Unix()
	result, err := s.db.Exec(
		`UPDATE tenants SET name = ?, settings = ?, updated_at = ? WHERE id = ?`,
		name, string(settingsJSON), now, id,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: tenants.name") {
			return ErrDuplicateTenant
		}
		return fmt.Errorf("failed to update tenant: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// SetTenantActive activates or deactivates a tenant. Deactivation blocks all
// operations for the tenant's principals without deleting any data.
func (s *Store) SetTenantActive(id string, active bool) error {
	now := time.Now().Unix()
	result, err := s.db.Exec(
		`UPDATE tenants SET active = ?, updated_at = ? WHERE id = ?`,
		boolToInt(active), now, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update tenant state: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteTenant removes a tenant. Users, api keys, namespaces, and configs
// cascade; config history and audit entries are retained.
func (s *Store) DeleteTenant(id string) error {
	result, err := s.db.Exec(`DELETE FROM tenants WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete tenant: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// scanner abstracts sql.Row and sql.Rows for shared scan helpers.
type scanner interface {
	Scan(dest ...any) error
}

func scanTenant(row scanner) (*Tenant, error) {
	var t Tenant
	var active int
	var settingsJSON string
	var createdAt, updatedAt int64

	err := row.Scan(&t.ID, &t.Name, &active, &settingsJSON, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan tenant: %w", err)
	}

	t.Active = active != 0
	t.Settings = make(map[string]string)
	if settingsJSON != "" {
		if err := json.Unmarshal([]byte(settingsJSON), &t.Settings); err != nil {
			return nil, fmt.Errorf("failed to parse tenant settings: %w", err)
		}
	}
	t.CreatedAt = time.Unix(createdAt, 0)
	t.UpdatedAt = time.Unix(updatedAt, 0)
	return &t, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
