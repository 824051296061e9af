package service

import (
	"context"

	"github.com/GeorgiStavrev/konfig/pkg/auth"
	"github.com/GeorgiStavrev/konfig/pkg/authz"
	"github.com/GeorgiStavrev/konfig/pkg/store"
)

// CreateNamespace creates a namespace in the caller's tenant.
func (s *Service) CreateNamespace(ctx context.Context, cred auth.Credential, name, description string) (*store.Namespace, error) {
	principal, err := s.authorize(ctx, cred, authz.ActionNamespaceCreate, "Namespace", name)
	if err != nil {
		return nil, err
	}

	ns, err := s.store.CreateNamespace(principal.TenantID, name, description)
	if err != nil {
		return nil, err
	}

	s.audit(authz.ActionNamespaceCreate, principal.UID, principal.TenantID, ns.ID, store.DecisionAllow, "name="+name)
	return ns, nil
}

// GetNamespace retrieves a namespace in the caller's tenant by ID or name.
func (s *Service) GetNamespace(ctx context.Context, cred auth.Credential, namespace string) (*store.Namespace, error) {
	principal, err := s.authorize(ctx, cred, authz.ActionNamespaceRead, "Namespace", namespace)
	if err != nil {
		return nil, err
	}
	return s.store.GetNamespace(principal.TenantID, namespace)
}

// ListNamespaces lists the caller's tenant's namespaces.
func (s *Service) ListNamespaces(ctx context.Context, cred auth.Credential) ([]*store.Namespace, error) {
	principal, err := s.authorize(ctx, cred, authz.ActionNamespaceList, "Namespace", "")
	if err != nil {
		return nil, err
	}
	return s.store.ListNamespaces(principal.TenantID)
}

// DeleteNamespace removes a namespace and its configs, writing terminal
// history rows for every config.
func (s *Service) DeleteNamespace(ctx context.Context, cred auth.Credential, namespace string) error {
	principal, err := s.authorize(ctx, cred, authz.ActionNamespaceDelete, "Namespace", namespace)
	if err != nil {
		return err
	}

	if err := s.store.DeleteNamespace(principal.TenantID, namespace, principal.UID); err != nil {
		return err
	}

	s.audit(authz.ActionNamespaceDelete, principal.UID, principal.TenantID, namespace, store.DecisionAllow, "")
	return nil
}
