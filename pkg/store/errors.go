package store

import "errors"

// Sentinel errors returned by store operations. Callers match with errors.Is.
var (
	// ErrNotFound covers absent rows and cross-tenant lookups alike, so the
	// existence of another tenant's resources is never leaked.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateTenant is returned when a tenant name is already taken.
	ErrDuplicateTenant = errors.New("tenant name already taken")

	// ErrDuplicateEmail is returned when a user email already exists in the tenant.
	ErrDuplicateEmail = errors.New("email already registered")

	// ErrDuplicateNamespace is returned when a namespace name already exists in the tenant.
	ErrDuplicateNamespace = errors.New("namespace already exists")

	// ErrDuplicateKey is returned when a config key already exists in the namespace.
	ErrDuplicateKey = errors.New("config key already exists")

	// ErrVersionConflict is returned when an update's expected version does
	// not match the stored version (optimistic concurrency).
	ErrVersionConflict = errors.New("config version conflict")

	// ErrLastOwner is returned when deleting, demoting, or deactivating the
	// last active owner of a tenant.
	ErrLastOwner = errors.New("tenant must retain at least one active owner")

	// ErrKeyRevoked is returned when revoking an already-revoked api key.
	ErrKeyRevoked = errors.New("api key already revoked")

	// ErrValidation is returned when a config value does not match its
	// declared type or validation schema.
	ErrValidation = errors.New("value validation failed")
)
