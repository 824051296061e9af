package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/GeorgiStavrev/konfig/pkg/authz"
	"github.com/GeorgiStavrev/konfig/pkg/store"
)

// Resolver turns presented credentials into verified principals. It is the
// only component that touches raw credential material; everything past it
// works with authz.Principal.
type Resolver struct {
	store  *store.Store
	tokens *TokenSigner
	logger *slog.Logger
	now    func() time.Time
}

// ResolverConfig configures a Resolver.
type ResolverConfig struct {
	Store  *store.Store
	Tokens *TokenSigner
	Logger *slog.Logger

	// Now overrides the clock in tests.
	Now func() time.Time
}

// NewResolver builds a Resolver.
func NewResolver(cfg ResolverConfig) *Resolver {
	r := &Resolver{
		store:  cfg.Store,
		tokens: cfg.Tokens,
		logger: cfg.Logger,
		now:    cfg.Now,
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r
}

// Resolve verifies a credential and returns the principal it authenticates.
// Lookups that miss return ErrInvalidCredential rather than a not-found, so
// a caller probing for valid prefixes learns nothing.
func (r *Resolver) Resolve(ctx context.Context, cred Credential) (authz.Principal, error) {
	switch cred.Kind() {
	case KindSessionToken:
		return r.resolveToken(ctx, cred.raw)
	case KindServiceKey:
		return r.resolveKey(ctx, cred.raw)
	default:
		return authz.Principal{}, ErrInvalidCredential
	}
}

func (r *Resolver) resolveToken(ctx context.Context, raw string) (authz.Principal, error) {
	claims, err := r.tokens.Verify(raw, TokenAccess)
	if err != nil {
		return authz.Principal{}, err
	}

	// Token claims are a snapshot from login time. Reload the user so role
	// changes, deactivation, and deletion take effect immediately.
	user, err := r.store.GetUserByID(claims.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return authz.Principal{}, ErrInvalidCredential
		}
		return authz.Principal{}, err
	}
	if user.TenantID != claims.TenantID {
		return authz.Principal{}, ErrInvalidCredential
	}
	if !user.Active {
		return authz.Principal{}, ErrInactive
	}

	if err := r.requireActiveTenant(user.TenantID); err != nil {
		return authz.Principal{}, err
	}

	return authz.Principal{
		UID:      user.ID,
		Type:     authz.PrincipalUser,
		Role:     user.Role,
		TenantID: user.TenantID,
	}, nil
}

func (r *Resolver) resolveKey(ctx context.Context, raw string) (authz.Principal, error) {
	prefix, ok := KeyPrefix(raw)
	if !ok {
		return authz.Principal{}, ErrInvalidCredential
	}

	key, err := r.store.GetAPIKeyByPrefix(prefix)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return authz.Principal{}, ErrInvalidCredential
		}
		return authz.Principal{}, err
	}

	if !VerifyKey(key.KeyHash, raw) {
		return authz.Principal{}, ErrInvalidCredential
	}
	if key.Revoked() {
		return authz.Principal{}, ErrRevoked
	}
	if key.Expired(r.now()) {
		return authz.Principal{}, ErrExpired
	}

	if err := r.requireActiveTenant(key.TenantID); err != nil {
		return authz.Principal{}, err
	}

	// Best-effort; authentication already succeeded.
	if err := r.store.TouchAPIKey(key.ID); err != nil {
		r.logger.Warn("failed to record api key use", "key_id", key.ID, "error", err)
	}

	return authz.Principal{
		UID:      key.ID,
		Type:     authz.PrincipalServiceKey,
		Role:     authz.RoleService,
		TenantID: key.TenantID,
		Scopes:   key.Scopes,
	}, nil
}

func (r *Resolver) requireActiveTenant(tenantID string) error {
	tenant, err := r.store.GetTenant(tenantID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrInvalidCredential
		}
		return err
	}
	if !tenant.Active {
		return ErrInactive
	}
	return nil
}
