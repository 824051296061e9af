package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/GeorgiStavrev/konfig/pkg/authz"
)

// CreateUser adds a user to a tenant. The passwordHash must already be hashed.
func (s *Store) CreateUser(tenantID, email, passwordHash, fullName string, role authz.Role) (*User, error) {
	id := uuid.New().String()
	_, err := s.db.Exec(
		`INSERT INTO users (id, tenant_id, email, password_hash, full_name, role) VALUES (?, ?, ?, ?, ?, ?)`,
		id, tenantID, email, passwordHash, fullName, string(role),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, ErrDuplicateEmail
		}
		if strings.Contains(err.Error(), "FOREIGN KEY constraint failed") {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return s.GetUserByID(id)
}

// GetUser retrieves a user by ID, scoped to a tenant. A user belonging to a
// different tenant is reported as not found.
func (s *Store) GetUser(tenantID, id string) (*User, error) {
	row := s.db.QueryRow(
		`SELECT id, tenant_id, email, password_hash, full_name, role, active, created_at, updated_at
		 FROM users WHERE id = ? AND tenant_id = ?`,
		id, tenantID,
	)
	return scanUser(row)
}

// GetUserByID retrieves a user by ID without tenant scoping. Intended for
// credential resolution, where the tenant is not yet known.
func (s *Store) GetUserByID(id string) (*User, error) {
	row := s.db.QueryRow(
		`SELECT id, tenant_id, email, password_hash, full_name, role, active, created_at, updated_at
		 FROM users WHERE id = ?`,
		id,
	)
	return scanUser(row)
}

// GetUserByEmail retrieves a user by email within a tenant.
func (s *Store) GetUserByEmail(tenantID, email string) (*User, error) {
	row := s.db.QueryRow(
		`SELECT id, tenant_id, email, password_hash, full_name, role, active, created_at, updated_at
		 FROM users WHERE tenant_id = ? AND email = ?`,
		tenantID, email,
	)
	return scanUser(row)
}

// ListUsers returns all users in a tenant ordered by email.
func (s *Store) ListUsers(tenantID string) ([]*User, error) {
	rows, err := s.db.Query(
		`SELECT id, tenant_id, email, password_hash, full_name, role, active, created_at, updated_at
		 FROM users WHERE tenant_id = ? ORDER BY email`,
		tenantID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// UpdateUser updates a user's full name.
func (s *Store) UpdateUser(tenantID, id, fullName string) error {
	now := time.Now().Unix()
	result, err := s.db.Exec(
		`UPDATE users SET full_name = ?, updated_at = ? WHERE id = ? AND tenant_id = ?`,
		fullName, now, id, tenantID,
	)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateUserPassword replaces a user's password hash.
func (s *Store) UpdateUserPassword(tenantID, id, passwordHash string) error {
	now := time.Now().Unix()
	result, err := s.db.Exec(
		`UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ? AND tenant_id = ?`,
		passwordHash, now, id, tenantID,
	)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateUserRole changes a user's role. Demoting the last active owner of a
// tenant is rejected with ErrLastOwner. The check and the update run in one
// transaction so concurrent demotions cannot leave the tenant ownerless.
func (s *Store) UpdateUserRole(tenantID, id string, role authz.Role) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	current, err := getUserTx(tx, tenantID, id)
	if err != nil {
		return err
	}

	if current.Role == authz.RoleOwner && role != authz.RoleOwner {
		if err := requireAnotherOwner(tx, tenantID, id); err != nil {
			return err
		}
	}

	now := time.Now().Unix()
	if _, err := tx.Exec(
		`UPDATE users SET role = ?, updated_at = ? WHERE id = ? AND tenant_id = ?`,
		string(role), now, id, tenantID,
	); err != nil {
		return fmt.Errorf("failed to update role: %w", err)
	}

	return tx.Commit()
}

// SetUserActive activates or deactivates a user. Deactivating the last active
// owner is rejected with ErrLastOwner.
func (s *Store) SetUserActive(tenantID, id string, active bool) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	current, err := getUserTx(tx, tenantID, id)
	if err != nil {
		return err
	}

	if !active && current.Role == authz.RoleOwner && current.Active {
		if err := requireAnotherOwner(tx, tenantID, id); err != nil {
			return err
		}
	}

	now := time.Now().Unix()
	if _, err := tx.Exec(
		`UPDATE users SET active = ?, updated_at = ? WHERE id = ? AND tenant_id = ?`,
		boolToInt(active), now, id, tenantID,
	); err != nil {
		return fmt.Errorf("failed to update user state: %w", err)
	}

	return tx.Commit()
}

// DeleteUser removes a user. Deleting the last active owner is rejected with
// ErrLastOwner.
func (s *Store) DeleteUser(tenantID, id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	current, err := getUserTx(tx, tenantID, id)
	if err != nil {
		return err
	}

	if current.Role == authz.RoleOwner && current.Active {
		if err := requireAnotherOwner(tx, tenantID, id); err != nil {
			return err
		}
	}

	if _, err := tx.Exec(
		`DELETE FROM users WHERE id = ? AND tenant_id = ?`,
		id, tenantID,
	); err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}

	return tx.Commit()
}

func getUserTx(tx *sql.Tx, tenantID, id string) (*User, error) {
	row := tx.QueryRow(
		`SELECT id, tenant_id, email, password_hash, full_name, role, active, created_at, updated_at
		 FROM users WHERE id = ? AND tenant_id = ?`,
		id, tenantID,
	)
	return scanUser(row)
}

// requireAnotherOwner fails with ErrLastOwner unless the tenant has an active
// owner other than excludeID.
func requireAnotherOwner(tx *sql.Tx, tenantID, excludeID string) error {
	var count int
	err := tx.QueryRow(
		`SELECT COUNT(*) FROM users WHERE tenant_id = ? AND role = ? AND active = 1 AND id != ?`,
		tenantID, string(authz.RoleOwner), excludeID,
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("failed to count owners: %w", err)
	}
	if count == 0 {
		return ErrLastOwner
	}
	return nil
}

func scanUser(row scanner) (*User, error) {
	var u User
	var role string
	var active int
	var createdAt, updatedAt int64

	err := row.Scan(&u.ID, &u.TenantID, &u.Email, &u.PasswordHash, &u.FullName, &role, &active, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}

	u.Role = authz.Role(role)
	u.Active = active != 0
	u.CreatedAt = time.Unix(createdAt, 0)
	u.UpdatedAt = time.Unix(updatedAt, 0)
	return &u, nil
}
