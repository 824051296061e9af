package authz

import "github.com/cedar-policy/cedar-go"

// buildEntities constructs the Cedar EntityMap from principal and resource.
// This creates the entity graph that Cedar uses to evaluate policies.
func buildEntities(principal Principal, resource Resource) cedar.EntityMap {
	entities := cedar.EntityMap{}

	ensureTenant := func(tenantID string) cedar.EntityUID {
		uid := cedar.NewEntityUID("Tenant", cedar.String(tenantID))
		if _, exists := entities[uid]; !exists {
			entities[uid] = cedar.Entity{
				UID:        uid,
				Parents:    cedar.NewEntityUIDSet(),
				Attributes: cedar.NewRecord(cedar.RecordMap{}),
			}
		}
		return uid
	}

	// Principal entity. The scopes attribute is always present (empty for
	// users) so scope-gated policies never hit a missing-attribute error.
	principalUID := cedar.NewEntityUID(cedar.EntityType(principal.Type), cedar.String(principal.UID))
	scopesSet := make([]cedar.Value, 0, len(principal.Scopes))
	for _, s := range principal.Scopes {
		scopesSet = append(scopesSet, cedar.String(string(s)))
	}

	var principalParents cedar.EntityUIDSet
	if principal.TenantID != "" {
		principalParents = cedar.NewEntityUIDSet(ensureTenant(principal.TenantID))
	} else {
		principalParents = cedar.NewEntityUIDSet()
	}

	entities[principalUID] = cedar.Entity{
		UID:     principalUID,
		Parents: principalParents,
		Attributes: cedar.NewRecord(cedar.RecordMap{
			"role":   cedar.String(string(principal.Role)),
			"tenant": cedar.String(principal.TenantID),
			"scopes": cedar.NewSet(scopesSet...),
		}),
	}

	// Resource entity. On a self-targeting request (a user acting on their
	// own record) the resource UID is the principal UID; the principal entry
	// already carries tenant plus role/scopes, so it must not be clobbered.
	resourceUID := cedar.NewEntityUID(cedar.EntityType(resource.Type), cedar.String(resource.UID))
	if _, exists := entities[resourceUID]; !exists {
		var resourceParents cedar.EntityUIDSet
		if resource.TenantID != "" {
			resourceParents = cedar.NewEntityUIDSet(ensureTenant(resource.TenantID))
		} else {
			resourceParents = cedar.NewEntityUIDSet()
		}

		entities[resourceUID] = cedar.Entity{
			UID:     resourceUID,
			Parents: resourceParents,
			Attributes: cedar.NewRecord(cedar.RecordMap{
				"tenant": cedar.String(resource.TenantID),
			}),
		}
	}

	return entities
}

// buildCedarRequest constructs the Cedar request from an authorization request.
func buildCedarRequest(req Request) cedar.Request {
	return cedar.Request{
		Principal: cedar.NewEntityUID(cedar.EntityType(req.Principal.Type), cedar.String(req.Principal.UID)),
		Action:    cedar.NewEntityUID("Action", cedar.String(req.Action)),
		Resource:  cedar.NewEntityUID(cedar.EntityType(req.Resource.Type), cedar.String(req.Resource.UID)),
		Context:   cedar.NewRecord(cedar.RecordMap{}),
	}
}
