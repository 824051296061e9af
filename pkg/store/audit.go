package store

import (
	"fmt"
	"time"
)

// AuditEntry is one immutable record of an authenticated operation or a
// denied attempt.
type AuditEntry struct {
	ID        int64
	Timestamp time.Time
	Action    string
	Actor     string // Principal UID, or empty for failed authentication
	TenantID  string
	Target    string
	Decision  string // "allow", "deny", "error"
	Details   string
}

// Audit decisions.
const (
	DecisionAllow = "allow"
	DecisionDeny  = "deny"
	DecisionError = "error"
)

// InsertAuditEntry appends an entry to the audit log. The log is append-only;
// there is no update or delete path.
func (s *Store) InsertAuditEntry(e *AuditEntry) error {
	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err := s.db.Exec(
		`INSERT INTO audit_log (timestamp, action, actor, tenant_id, target, decision, details)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ts.Unix(), e.Action, e.Actor, e.TenantID, e.Target, e.Decision, e.Details,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}
	return nil
}

// ListAuditEntries returns a tenant's audit entries, newest first, up to
// limit (0 means a default of 100).
func (s *Store) ListAuditEntries(tenantID string, limit int) ([]*AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(
		`SELECT id, timestamp, action, actor, tenant_id, target, decision, COALESCE(details, '')
		 FROM audit_log WHERE tenant_id = ? ORDER BY id DESC LIMIT ?`,
		tenantID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []*AuditEntry
	for rows.Next() {
		var e AuditEntry
		var ts int64
		if err := rows.Scan(&e.ID, &ts, &e.Action, &e.Actor, &e.TenantID, &e.Target, &e.Decision, &e.Details); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		e.Timestamp = time.Unix(ts, 0)
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}
