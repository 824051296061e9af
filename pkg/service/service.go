// Package service coordinates authentication, authorization, and storage.
// Every operation follows the same shape: resolve the credential, check the
// permission, run the tenant-scoped store call, record the outcome. Handlers
// and CLIs call this package; nothing above it touches the store directly.
package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/GeorgiStavrev/konfig/pkg/auth"
	"github.com/GeorgiStavrev/konfig/pkg/authz"
	"github.com/GeorgiStavrev/konfig/pkg/store"
)

// ErrUnauthorized is the single error surfaced for every authentication
// failure: bad password, unknown tenant, forged token, revoked key. The
// specific cause goes to the audit log, never to the caller.
var ErrUnauthorized = errors.New("unauthorized")

// Actions recorded in the audit log for unauthenticated entry points.
const (
	auditRegister = "auth:register"
	auditLogin    = "auth:login"
	auditRefresh  = "auth:refresh"
)

// Service is the coordination layer over the store, resolver, and gate.
type Service struct {
	store    *store.Store
	resolver *auth.Resolver
	gate     *authz.Gate
	tokens   *auth.TokenSigner
	logger   *slog.Logger
}

// Config configures a Service.
type Config struct {
	Store  *store.Store
	Tokens *auth.TokenSigner
	Logger *slog.Logger
}

// New builds a Service. The authorization gate is constructed here with the
// embedded policies; there is no way to run the service without it.
func New(cfg Config) (*Service, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	gate, err := authz.NewGate(authz.Config{Logger: logger})
	if err != nil {
		return nil, err
	}

	return &Service{
		store: cfg.Store,
		resolver: auth.NewResolver(auth.ResolverConfig{
			Store:  cfg.Store,
			Tokens: cfg.Tokens,
			Logger: logger,
		}),
		gate:   gate,
		tokens: cfg.Tokens,
		logger: logger,
	}, nil
}

// TokenPair is an access/refresh token pair issued at login.
type TokenPair struct {
	Access  string
	Refresh string
}

// Register creates a new tenant with its first owner and logs the owner in.
// This is the only unauthenticated write in the system.
func (s *Service) Register(ctx context.Context, tenantName, email, password, fullName string) (*store.Tenant, *store.User, *TokenPair, error) {
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, nil, nil, err
	}

	tenant, owner, err := s.store.RegisterTenant(tenantName, email, hash, fullName)
	if err != nil {
		return nil, nil, nil, err
	}

	pair, err := s.issuePair(owner)
	if err != nil {
		return nil, nil, nil, err
	}

	s.audit(auditRegister, owner.ID, tenant.ID, tenant.Name, store.DecisionAllow, "")
	return tenant, owner, pair, nil
}

// Login verifies a password against a tenant-scoped user and issues tokens.
// All failure modes collapse to ErrUnauthorized.
func (s *Service) Login(ctx context.Context, tenantName, email, password string) (*TokenPair, error) {
	deny := func(details string) (*TokenPair, error) {
		s.audit(auditLogin, "", "", tenantName, store.DecisionDeny, details)
		return nil, ErrUnauthorized
	}

	tenant, err := s.store.GetTenantByName(tenantName)
	if err != nil {
		return deny("unknown tenant")
	}
	if !tenant.Active {
		return deny("tenant inactive")
	}

	user, err := s.store.GetUserByEmail(tenant.ID, email)
	if err != nil {
		// Burn a hash comparison anyway so unknown emails take as long as
		// wrong passwords.
		auth.VerifyPassword("$2a$10$000000000000000000000u.ouRGhjJDNtb0EKtGKGYrLZTJRJBUhe", password)
		return deny("unknown user")
	}
	if !auth.VerifyPassword(user.PasswordHash, password) {
		return deny("wrong password")
	}
	if !user.Active {
		return deny("user inactive")
	}

	pair, err := s.issuePair(user)
	if err != nil {
		return nil, err
	}

	s.audit(auditLogin, user.ID, tenant.ID, email, store.DecisionAllow, "")
	return pair, nil
}

// Refresh exchanges a refresh token for a fresh pair. The user is reloaded
// so deactivation since login takes effect.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := s.tokens.Verify(refreshToken, auth.TokenRefresh)
	if err != nil {
		s.audit(auditRefresh, "", "", "", store.DecisionDeny, "invalid refresh token")
		return nil, ErrUnauthorized
	}

	user, err := s.store.GetUserByID(claims.UserID)
	if err != nil || !user.Active || user.TenantID != claims.TenantID {
		s.audit(auditRefresh, claims.UserID, claims.TenantID, "", store.DecisionDeny, "stale principal")
		return nil, ErrUnauthorized
	}
	tenant, err := s.store.GetTenant(user.TenantID)
	if err != nil || !tenant.Active {
		s.audit(auditRefresh, user.ID, user.TenantID, "", store.DecisionDeny, "tenant inactive")
		return nil, ErrUnauthorized
	}

	pair, err := s.issuePair(user)
	if err != nil {
		return nil, err
	}

	s.audit(auditRefresh, user.ID, user.TenantID, "", store.DecisionAllow, "")
	return pair, nil
}

func (s *Service) issuePair(user *store.User) (*TokenPair, error) {
	access, refresh, err := s.tokens.IssuePair(user.ID, user.TenantID, user.Role)
	if err != nil {
		return nil, err
	}
	return &TokenPair{Access: access, Refresh: refresh}, nil
}

// authorize resolves a credential and checks the action. The resource is
// always bound to the principal's own tenant: callers never supply tenant
// IDs, so a credential for tenant A cannot even express a request against
// tenant B.
func (s *Service) authorize(ctx context.Context, cred auth.Credential, action, resourceType, target string) (authz.Principal, error) {
	principal, err := s.resolver.Resolve(ctx, cred)
	if err != nil {
		s.audit(action, "", "", target, store.DecisionDeny, err.Error())
		return authz.Principal{}, ErrUnauthorized
	}

	resource := authz.Resource{UID: target, Type: resourceType, TenantID: principal.TenantID}
	if err := s.gate.Check(ctx, principal, action, resource); err != nil {
		s.audit(action, principal.UID, principal.TenantID, target, store.DecisionDeny, err.Error())
		return authz.Principal{}, err
	}

	return principal, nil
}

// audit appends to the audit log. Failures are logged and swallowed: an
// audit write must never turn a completed operation into an error.
func (s *Service) audit(action, actor, tenantID, target, decision, details string) {
	err := s.store.InsertAuditEntry(&store.AuditEntry{
		Action:   action,
		Actor:    actor,
		TenantID: tenantID,
		Target:   target,
		Decision: decision,
		Details:  details,
	})
	if err != nil {
		s.logger.Error("failed to write audit entry", "action", action, "error", err)
	}
}
