package auth

import "errors"

// Credential resolution errors. Callers presenting credentials over a wire
// boundary should collapse all of these to a single unauthorized response;
// the distinctions exist for logging and the audit trail.
var (
	// ErrInvalidCredential covers malformed, unknown, and forged credentials
	// alike. It deliberately carries no detail about which check failed.
	ErrInvalidCredential = errors.New("invalid credential")

	// ErrExpired is returned for an expired token or api key.
	ErrExpired = errors.New("credential expired")

	// ErrRevoked is returned for a revoked api key.
	ErrRevoked = errors.New("credential revoked")

	// ErrInactive is returned when the credential is valid but its user or
	// tenant has been deactivated.
	ErrInactive = errors.New("principal inactive")
)
