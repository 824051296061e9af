// Package authz provides Cedar-based authorization for konfig.
//
// This package is the single source of truth for all permission decisions.
// No permission check should be made outside the Gate.Check method.
//
// # Role Model
//
// Users hold one of three roles within their tenant, forming a total order:
//   - owner: full access, including tenant deletion and owner assignment
//   - admin: everything except owner promotion/demotion and tenant deletion
//   - member: namespace and config management only
//
// Service keys have no role. Their effective permission for namespace and
// config operations is determined solely by their scopes (read, write).
//
// # Tenant Isolation
//
// The first check in every decision is principal.TenantID == resource.TenantID;
// a mismatch is denied before role or scope logic runs. The embedded Cedar
// policies repeat the tenant check as defense in depth.
//
// # Usage
//
//	gate, err := authz.NewGate(authz.Config{Logger: logger})
//
//	err = gate.Check(ctx, authz.Principal{
//		UID:      "usr_abc",
//		Type:     authz.PrincipalUser,
//		Role:     authz.RoleAdmin,
//		TenantID: "tnt_acme",
//	}, authz.ActionConfigUpdate, authz.Resource{
//		UID:      "ns_prod",
//		Type:     "Namespace",
//		TenantID: "tnt_acme",
//	})
//
// # Thread Safety
//
// Gate is safe for concurrent use. The underlying Cedar PolicySet is
// immutable after construction.
//
// # Decision Logging
//
// Every decision is logged with structured fields: principal, action,
// resource, decision, policy ID, and duration. Configure via Config.Logger.
package authz
