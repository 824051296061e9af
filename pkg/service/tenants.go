package service

import (
	"context"

	"github.com/GeorgiStavrev/konfig/pkg/auth"
	"github.com/GeorgiStavrev/konfig/pkg/authz"
	"github.com/GeorgiStavrev/konfig/pkg/store"
)

// GetTenant returns the caller's own tenant.
func (s *Service) GetTenant(ctx context.Context, cred auth.Credential) (*store.Tenant, error) {
	principal, err := s.authorize(ctx, cred, authz.ActionTenantRead, "Tenant", "")
	if err != nil {
		return nil, err
	}
	return s.store.GetTenant(principal.TenantID)
}

// UpdateTenant updates the caller's tenant name and settings.
func (s *Service) UpdateTenant(ctx context.Context, cred auth.Credential, name string, settings map[string]string) error {
	principal, err := s.authorize(ctx, cred, authz.ActionTenantUpdate, "Tenant", name)
	if err != nil {
		return err
	}

	if err := s.store.UpdateTenant(principal.TenantID, name, settings); err != nil {
		return err
	}

	s.audit(authz.ActionTenantUpdate, principal.UID, principal.TenantID, name, store.DecisionAllow, "")
	return nil
}

// DeleteTenant removes the caller's tenant and everything in it. Owner only.
func (s *Service) DeleteTenant(ctx context.Context, cred auth.Credential) error {
	principal, err := s.authorize(ctx, cred, authz.ActionTenantDelete, "Tenant", "")
	if err != nil {
		return err
	}

	if err := s.store.DeleteTenant(principal.TenantID); err != nil {
		return err
	}

	s.audit(authz.ActionTenantDelete, principal.UID, principal.TenantID, principal.TenantID, store.DecisionAllow, "")
	return nil
}

// ListAuditEntries returns the caller's tenant's audit trail, newest first.
func (s *Service) ListAuditEntries(ctx context.Context, cred auth.Credential, limit int) ([]*store.AuditEntry, error) {
	principal, err := s.authorize(ctx, cred, authz.ActionAuditRead, "AuditLog", "")
	if err != nil {
		return nil, err
	}
	return s.store.ListAuditEntries(principal.TenantID, limit)
}
