package authz

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"time"

	"github.com/cedar-policy/cedar-go"
)

//go:embed policies.cedar
var policiesContent []byte

// Config contains options for the Gate.
type Config struct {
	// Logger for structured decision logging. If nil, uses slog.Default().
	Logger *slog.Logger

	// PolicyBytes allows loading policies from a custom source (for testing).
	// If nil, embedded policies.cedar is used.
	PolicyBytes []byte
}

// Gate wraps the Cedar policy engine.
// All authorization decisions in the system flow through this single
// component; no permission check may be made anywhere else.
type Gate struct {
	policies *cedar.PolicySet
	logger   *slog.Logger
}

// NewGate creates a gate with the given configuration.
func NewGate(cfg Config) (*Gate, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	policyData := cfg.PolicyBytes
	if policyData == nil {
		policyData = policiesContent
	}

	ps, err := cedar.NewPolicySetFromBytes("policies.cedar", policyData)
	if err != nil {
		return nil, fmt.Errorf("failed to parse policies: %w", err)
	}

	return &Gate{
		policies: ps,
		logger:   logger,
	}, nil
}

// Authorize evaluates an authorization request against the capability matrix.
// Tenant isolation takes precedence over role logic: a tenant mismatch is
// denied before any policy runs, regardless of role or scopes.
func (g *Gate) Authorize(ctx context.Context, req Request) Decision {
	start := time.Now()

	var result Decision
	switch {
	case req.Principal.TenantID == "" || req.Principal.TenantID != req.Resource.TenantID:
		result = Decision{
			Allowed: false,
			Reason:  "tenant mismatch",
		}
	case !validActions[req.Action]:
		result = Decision{
			Allowed: false,
			Reason:  fmt.Sprintf("unknown action %q", req.Action),
		}
	default:
		entities := buildEntities(req.Principal, req.Resource)
		decision, diagnostic := cedar.Authorize(g.policies, entities, buildCedarRequest(req))

		policyID := ""
		if len(diagnostic.Reasons) > 0 {
			policyID = string(diagnostic.Reasons[0].PolicyID)
		}

		allowed := decision == cedar.Allow
		reason := "access permitted"
		if !allowed {
			reason = "access denied - no matching permit policy"
		}

		result = Decision{
			Allowed:  allowed,
			Reason:   reason,
			PolicyID: policyID,
		}

		for _, evalErr := range diagnostic.Errors {
			g.logger.Error("policy evaluation error",
				"policy", evalErr.PolicyID,
				"error", evalErr.Message,
			)
		}
	}
	result.Duration = time.Since(start)

	g.logger.Info("authorization decision",
		"principal", req.Principal.UID,
		"principal_type", req.Principal.Type,
		"role", req.Principal.Role,
		"action", req.Action,
		"resource", req.Resource.UID,
		"resource_type", req.Resource.Type,
		"resource_tenant", req.Resource.TenantID,
		"decision", result.Allowed,
		"reason", result.Reason,
		"policy_id", result.PolicyID,
		"duration_us", result.Duration.Microseconds(),
	)

	return result
}

// Check evaluates the request and converts a denial into a structured error.
// Unknown actions fail closed with their own code so callers can distinguish
// a wiring bug from a genuine denial in logs.
func (g *Gate) Check(ctx context.Context, principal Principal, action string, resource Resource) error {
	if !validActions[action] {
		return ErrUnknownAction(action)
	}

	decision := g.Authorize(ctx, Request{
		Principal: principal,
		Action:    action,
		Resource:  resource,
	})
	if !decision.Allowed {
		return ErrForbidden(decision.Reason)
	}
	return nil
}

// PolicyCount returns the number of loaded policies.
func (g *Gate) PolicyCount() int {
	count := 0
	for range g.policies.All() {
		count++
	}
	return count
}
