package authz

// Action constants for every operation exposed by the service layer.
// The capability matrix in policies.cedar is written against these.
const (
	// User management
	ActionUserCreate = "user:create"
	ActionUserList   = "user:list"
	ActionUserRead   = "user:read"
	ActionUserUpdate = "user:update"
	ActionUserDelete = "user:delete"

	// Role management. Promoting to or demoting from owner is a distinct
	// action because admins may manage users but never touch ownership.
	ActionRoleAssign      = "role:assign"
	ActionRoleAssignOwner = "role:assign_owner"

	// API key management
	ActionAPIKeyCreate = "apikey:create"
	ActionAPIKeyList   = "apikey:list"
	ActionAPIKeyRevoke = "apikey:revoke"

	// Namespace management
	ActionNamespaceCreate = "namespace:create"
	ActionNamespaceList   = "namespace:list"
	ActionNamespaceRead   = "namespace:read"
	ActionNamespaceDelete = "namespace:delete"

	// Config management
	ActionConfigCreate  = "config:create"
	ActionConfigRead    = "config:read"
	ActionConfigUpdate  = "config:update"
	ActionConfigDelete  = "config:delete"
	ActionConfigList    = "config:list"
	ActionConfigHistory = "config:history"

	// Tenant management
	ActionTenantRead   = "tenant:read"
	ActionTenantUpdate = "tenant:update"
	ActionTenantDelete = "tenant:delete"

	// Audit
	ActionAuditRead = "audit:read"
)

// validActions is the set of all valid action strings.
// Unknown actions are rejected (fail-closed).
var validActions = map[string]bool{
	ActionUserCreate:      true,
	ActionUserList:        true,
	ActionUserRead:        true,
	ActionUserUpdate:      true,
	ActionUserDelete:      true,
	ActionRoleAssign:      true,
	ActionRoleAssignOwner: true,
	ActionAPIKeyCreate:    true,
	ActionAPIKeyList:      true,
	ActionAPIKeyRevoke:    true,
	ActionNamespaceCreate: true,
	ActionNamespaceList:   true,
	ActionNamespaceRead:   true,
	ActionNamespaceDelete: true,
	ActionConfigCreate:    true,
	ActionConfigRead:      true,
	ActionConfigUpdate:    true,
	ActionConfigDelete:    true,
	ActionConfigList:      true,
	ActionConfigHistory:   true,
	ActionTenantRead:      true,
	ActionTenantUpdate:    true,
	ActionTenantDelete:    true,
	ActionAuditRead:       true,
}

// IsValidAction reports whether the action is registered.
func IsValidAction(action string) bool {
	return validActions[action]
}
