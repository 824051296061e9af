package service

import (
	"context"
	"fmt"

	"github.com/GeorgiStavrev/konfig/pkg/auth"
	"github.com/GeorgiStavrev/konfig/pkg/authz"
	"github.com/GeorgiStavrev/konfig/pkg/store"
)

// ConfigInput is the caller-supplied part of a new config entry.
type ConfigInput struct {
	Namespace   string // ID or name within the caller's tenant
	Key         string
	Value       string
	ValueType   store.ValueType
	Schema      string
	Description string
	Secret      bool
}

// CreateConfig creates a config entry at version 1.
func (s *Service) CreateConfig(ctx context.Context, cred auth.Credential, in ConfigInput) (*store.Config, error) {
	principal, err := s.authorize(ctx, cred, authz.ActionConfigCreate, "Config", in.Namespace+"/"+in.Key)
	if err != nil {
		return nil, err
	}

	cfg, err := s.store.CreateConfig(principal.TenantID, &store.Config{
		NamespaceID: in.Namespace,
		Key:         in.Key,
		Value:       in.Value,
		ValueType:   in.ValueType,
		Schema:      in.Schema,
		Description: in.Description,
		Secret:      in.Secret,
		CreatedBy:   principal.UID,
	})
	if err != nil {
		return nil, err
	}

	s.audit(authz.ActionConfigCreate, principal.UID, principal.TenantID, cfg.ID, store.DecisionAllow, "key="+in.Key)
	return cfg, nil
}

// GetConfig retrieves a config with its decrypted value.
func (s *Service) GetConfig(ctx context.Context, cred auth.Credential, namespace, key string) (*store.Config, error) {
	principal, err := s.authorize(ctx, cred, authz.ActionConfigRead, "Config", namespace+"/"+key)
	if err != nil {
		return nil, err
	}
	return s.store.GetConfig(principal.TenantID, namespace, key)
}

// UpdateConfig replaces a config's value, bumping its version. A non-nil
// expectedVersion makes the update conditional on the stored version.
func (s *Service) UpdateConfig(ctx context.Context, cred auth.Credential, namespace, key, value string, expectedVersion *int64) (*store.Config, error) {
	principal, err := s.authorize(ctx, cred, authz.ActionConfigUpdate, "Config", namespace+"/"+key)
	if err != nil {
		return nil, err
	}

	cfg, err := s.store.UpdateConfig(principal.TenantID, namespace, key, value, expectedVersion, principal.UID)
	if err != nil {
		return nil, err
	}

	s.audit(authz.ActionConfigUpdate, principal.UID, principal.TenantID, cfg.ID, store.DecisionAllow,
		fmt.Sprintf("key=%s version=%d", key, cfg.Version))
	return cfg, nil
}

// DeleteConfig removes a config, leaving its history intact.
func (s *Service) DeleteConfig(ctx context.Context, cred auth.Credential, namespace, key string) error {
	principal, err := s.authorize(ctx, cred, authz.ActionConfigDelete, "Config", namespace+"/"+key)
	if err != nil {
		return err
	}

	if err := s.store.DeleteConfig(principal.TenantID, namespace, key, principal.UID); err != nil {
		return err
	}

	s.audit(authz.ActionConfigDelete, principal.UID, principal.TenantID, namespace+"/"+key, store.DecisionAllow, "")
	return nil
}

// ListConfigs lists a namespace's config metadata without values.
func (s *Service) ListConfigs(ctx context.Context, cred auth.Credential, namespace string) ([]*store.Config, error) {
	principal, err := s.authorize(ctx, cred, authz.ActionConfigList, "Config", namespace)
	if err != nil {
		return nil, err
	}
	return s.store.ListConfigs(principal.TenantID, namespace)
}

// GetConfigHistory returns the full change trail for a key, including
// entries for configs that have since been deleted.
func (s *Service) GetConfigHistory(ctx context.Context, cred auth.Credential, namespace, key string) ([]*store.ConfigHistory, error) {
	principal, err := s.authorize(ctx, cred, authz.ActionConfigHistory, "Config", namespace+"/"+key)
	if err != nil {
		return nil, err
	}
	return s.store.GetHistory(principal.TenantID, namespace, key)
}
