package service

import (
	"context"

	"github.com/GeorgiStavrev/konfig/pkg/auth"
	"github.com/GeorgiStavrev/konfig/pkg/authz"
	"github.com/GeorgiStavrev/konfig/pkg/store"
)

// CreateUser adds a user to the caller's tenant. Creating a user with the
// owner role additionally requires the owner-assignment permission, so
// admins cannot mint owners through the back door.
func (s *Service) CreateUser(ctx context.Context, cred auth.Credential, email, password, fullName string, role authz.Role) (*store.User, error) {
	action := authz.ActionUserCreate
	if role == authz.RoleOwner {
		action = authz.ActionRoleAssignOwner
	}
	principal, err := s.authorize(ctx, cred, action, "User", email)
	if err != nil {
		return nil, err
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}

	user, err := s.store.CreateUser(principal.TenantID, email, hash, fullName, role)
	if err != nil {
		return nil, err
	}

	s.audit(action, principal.UID, principal.TenantID, user.ID, store.DecisionAllow, "")
	return user, nil
}

// GetUser retrieves a user in the caller's tenant.
func (s *Service) GetUser(ctx context.Context, cred auth.Credential, userID string) (*store.User, error) {
	principal, err := s.authorize(ctx, cred, authz.ActionUserRead, "User", userID)
	if err != nil {
		return nil, err
	}
	return s.store.GetUser(principal.TenantID, userID)
}

// ListUsers lists the caller's tenant's users.
func (s *Service) ListUsers(ctx context.Context, cred auth.Credential) ([]*store.User, error) {
	principal, err := s.authorize(ctx, cred, authz.ActionUserList, "User", "")
	if err != nil {
		return nil, err
	}
	return s.store.ListUsers(principal.TenantID)
}

// UpdateUserRole changes a user's role. Assigning or removing the owner role
// requires the owner-assignment permission in either direction; demoting the
// last active owner is rejected by the store.
func (s *Service) UpdateUserRole(ctx context.Context, cred auth.Credential, userID string, role authz.Role) error {
	action := authz.ActionRoleAssign
	if role == authz.RoleOwner {
		action = authz.ActionRoleAssignOwner
	}
	principal, err := s.authorize(ctx, cred, action, "User", userID)
	if err != nil {
		return err
	}

	// Demoting an owner is an owner-level change too.
	if action != authz.ActionRoleAssignOwner {
		current, err := s.store.GetUser(principal.TenantID, userID)
		if err != nil {
			return err
		}
		if current.Role == authz.RoleOwner {
			if _, err := s.authorize(ctx, cred, authz.ActionRoleAssignOwner, "User", userID); err != nil {
				return err
			}
		}
	}

	if err := s.store.UpdateUserRole(principal.TenantID, userID, role); err != nil {
		return err
	}

	s.audit(action, principal.UID, principal.TenantID, userID, store.DecisionAllow, "role="+string(role))
	return nil
}

// SetUserActive activates or deactivates a user in the caller's tenant.
func (s *Service) SetUserActive(ctx context.Context, cred auth.Credential, userID string, active bool) error {
	principal, err := s.authorize(ctx, cred, authz.ActionUserUpdate, "User", userID)
	if err != nil {
		return err
	}

	if err := s.store.SetUserActive(principal.TenantID, userID, active); err != nil {
		return err
	}

	details := "deactivated"
	if active {
		details = "activated"
	}
	s.audit(authz.ActionUserUpdate, principal.UID, principal.TenantID, userID, store.DecisionAllow, details)
	return nil
}

// DeleteUser removes a user from the caller's tenant.
func (s *Service) DeleteUser(ctx context.Context, cred auth.Credential, userID string) error {
	principal, err := s.authorize(ctx, cred, authz.ActionUserDelete, "User", userID)
	if err != nil {
		return err
	}

	if err := s.store.DeleteUser(principal.TenantID, userID); err != nil {
		return err
	}

	s.audit(authz.ActionUserDelete, principal.UID, principal.TenantID, userID, store.DecisionAllow, "")
	return nil
}
