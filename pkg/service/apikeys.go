package service

import (
	"context"
	"time"

	"github.com/GeorgiStavrev/konfig/pkg/auth"
	"github.com/GeorgiStavrev/konfig/pkg/authz"
	"github.com/GeorgiStavrev/konfig/pkg/store"
)

// CreateAPIKey mints a new service key for the caller's tenant. The returned
// plaintext is shown exactly once; only its hash is stored.
func (s *Service) CreateAPIKey(ctx context.Context, cred auth.Credential, name string, scopes []authz.Scope, expiresAt *time.Time) (plaintext string, key *store.APIKey, err error) {
	principal, err := s.authorize(ctx, cred, authz.ActionAPIKeyCreate, "APIKey", name)
	if err != nil {
		return "", nil, err
	}

	plaintext, prefix, hash, err := auth.GenerateKey()
	if err != nil {
		return "", nil, err
	}

	key, err = s.store.CreateAPIKey(&store.APIKey{
		TenantID:  principal.TenantID,
		Name:      name,
		KeyHash:   hash,
		Prefix:    prefix,
		Scopes:    scopes,
		ExpiresAt: expiresAt,
		CreatedBy: principal.UID,
	})
	if err != nil {
		return "", nil, err
	}

	s.audit(authz.ActionAPIKeyCreate, principal.UID, principal.TenantID, key.ID, store.DecisionAllow, "prefix="+prefix)
	return plaintext, key, nil
}

// ListAPIKeys lists the caller's tenant's service keys. Only hashes are
// stored, so listings can never leak key material.
func (s *Service) ListAPIKeys(ctx context.Context, cred auth.Credential) ([]*store.APIKey, error) {
	principal, err := s.authorize(ctx, cred, authz.ActionAPIKeyList, "APIKey", "")
	if err != nil {
		return nil, err
	}
	return s.store.ListAPIKeys(principal.TenantID)
}

// RevokeAPIKey permanently revokes a service key in the caller's tenant.
func (s *Service) RevokeAPIKey(ctx context.Context, cred auth.Credential, keyID string) error {
	principal, err := s.authorize(ctx, cred, authz.ActionAPIKeyRevoke, "APIKey", keyID)
	if err != nil {
		return err
	}

	if err := s.store.RevokeAPIKey(principal.TenantID, keyID); err != nil {
		return err
	}

	s.audit(authz.ActionAPIKeyRevoke, principal.UID, principal.TenantID, keyID, store.DecisionAllow, "")
	return nil
}
