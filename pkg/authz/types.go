package authz

import "time"

// Role represents a user's role within their tenant.
// Hierarchy is a total order: owner > admin > member. Service-key principals
// carry RoleService, which grants nothing by itself; their effective
// permissions come solely from Scopes.
type Role string

const (
	RoleOwner   Role = "owner"
	RoleAdmin   Role = "admin"
	RoleMember  Role = "member"
	RoleService Role = "service"
)

// Scope is a coarse capability grant attached to a service key,
// independent of the role hierarchy.
type Scope string

const (
	ScopeRead  Scope = "read"
	ScopeWrite Scope = "write"
)

// PrincipalType distinguishes between User and ServiceKey principals.
type PrincipalType string

const (
	PrincipalUser       PrincipalType = "User"
	PrincipalServiceKey PrincipalType = "ServiceKey"
)

// Principal is the resolved identity attached to an authorized request:
// who is calling, which tenant they belong to, and what they may do.
type Principal struct {
	UID      string        // User id or service key id
	Type     PrincipalType // User or ServiceKey
	Role     Role          // owner, admin, member, or service
	TenantID string        // Tenant this principal is scoped to
	Scopes   []Scope       // Service key scopes; empty for users
}

// HasScope reports whether the principal carries the given scope.
func (p Principal) HasScope(s Scope) bool {
	for _, scope := range p.Scopes {
		if scope == s {
			return true
		}
	}
	return false
}

// Resource represents the entity being accessed.
type Resource struct {
	UID      string // Unique identifier (e.g., namespace id, user id)
	Type     string // Namespace, Config, User, ApiKey, Tenant, AuditLog
	TenantID string // Tenant that owns this resource
}

// Request contains all information needed for an authorization decision.
type Request struct {
	Principal Principal
	Action    string // Fine-grained action (e.g., "config:update")
	Resource  Resource
}

// Decision contains the result of an authorization check.
type Decision struct {
	Allowed  bool          // True if access is permitted
	Reason   string        // Human-readable explanation (for logging/audit)
	PolicyID string        // ID of the policy that determined the outcome
	Duration time.Duration // How long the check took
}
