package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CreateNamespace creates a namespace in a tenant.
func (s *Store) CreateNamespace(tenantID, name, description string) (*Namespace, error) {
	id := uuid.New().String()
	_, err := s.db.Exec(
		`INSERT INTO namespaces (id, tenant_id, name, description) VALUES (?, ?, ?, ?)`,
		id, tenantID, name, description,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, ErrDuplicateNamespace
		}
		if strings.Contains(err.Error(), "FOREIGN KEY constraint failed") {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to create namespace: %w", err)
	}
	return s.GetNamespace(tenantID, id)
}

// GetNamespace retrieves a namespace by ID or name, scoped to a tenant.
func (s *Store) GetNamespace(tenantID, idOrName string) (*Namespace, error) {
	row := s.db.QueryRow(
		`SELECT id, tenant_id, name, description, created_at, updated_at
		 FROM namespaces WHERE tenant_id = ? AND (id = ? OR name = ?)`,
		tenantID, idOrName, idOrName,
	)
	return scanNamespace(row)
}

// ListNamespaces returns all namespaces in a tenant ordered by name.
func (s *Store) ListNamespaces(tenantID string) ([]*Namespace, error) {
	rows, err := s.db.Query(
		`SELECT id, tenant_id, name, description, created_at, updated_at
		 FROM namespaces WHERE tenant_id = ? ORDER BY name`,
		tenantID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list namespaces: %w", err)
	}
	defer rows.Close()

	var namespaces []*Namespace
	for rows.Next() {
		ns, err := scanNamespace(rows)
		if err != nil {
			return nil, err
		}
		namespaces = append(namespaces, ns)
	}
	return namespaces, rows.Err()
}

// UpdateNamespace updates a namespace's description.
func (s *Store) UpdateNamespace(tenantID, id, description string) error {
	now := time.Now().Unix()
	result, err := s.db.Exec(
		`UPDATE namespaces SET description = ?, updated_at = ? WHERE id = ? AND tenant_id = ?`,
		description, now, id, tenantID,
	)
	if err != nil {
		return fmt.Errorf("failed to update namespace: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteNamespace removes a namespace and all configs inside it. Every config
// gets a terminal delete history row before removal, all in one transaction.
func (s *Store) DeleteNamespace(tenantID, id, deletedBy string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	ns, err := getNamespaceTx(tx, tenantID, id)
	if err != nil {
		return err
	}

	rows, err := tx.Query(
		`SELECT id, key, value, version FROM configs WHERE namespace_id = ? ORDER BY key`,
		ns.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to list configs: %w", err)
	}

	type doomed struct {
		id, key, value string
		version        int64
	}
	var configs []doomed
	for rows.Next() {
		var c doomed
		if err := rows.Scan(&c.id, &c.key, &c.value, &c.version); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan config: %w", err)
		}
		configs = append(configs, c)
	}
	if err := rows.Close(); err != nil {
		return fmt.Errorf("failed to read configs: %w", err)
	}

	now := time.Now().Unix()
	for _, c := range configs {
		if _, err := tx.Exec(
			`INSERT INTO config_history (config_id, namespace_id, key, value, version, change_type, changed_by, changed_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			c.id, ns.ID, c.key, c.value, c.version, ChangeDelete, deletedBy, now,
		); err != nil {
			return fmt.Errorf("failed to record delete history: %w", err)
		}
	}

	// Configs cascade via the namespace foreign key.
	if _, err := tx.Exec(`DELETE FROM namespaces WHERE id = ?`, ns.ID); err != nil {
		return fmt.Errorf("failed to delete namespace: %w", err)
	}

	return tx.Commit()
}

func getNamespaceTx(tx *sql.Tx, tenantID, idOrName string) (*Namespace, error) {
	row := tx.QueryRow(
		`SELECT id, tenant_id, name, description, created_at, updated_at
		 FROM namespaces WHERE tenant_id = ? AND (id = ? OR name = ?)`,
		tenantID, idOrName, idOrName,
	)
	return scanNamespace(row)
}

func scanNamespace(row scanner) (*Namespace, error) {
	var ns Namespace
	var createdAt, updatedAt int64

	err := row.Scan(&ns.ID, &ns.TenantID, &ns.Name, &ns.Description, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan namespace: %w", err)
	}

	ns.CreatedAt = time.Unix(createdAt, 0)
	ns.UpdatedAt = time.Unix(updatedAt, 0)
	return &ns, nil
}
