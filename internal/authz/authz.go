// Package authz decides what an authenticated caller may do.
//
// This package exists to share access-control logic between the HTTP server
// and the MCP server without creating a circular dependency (both import this
// package; neither imports the other).
package authz

import (
	"errors"
	"fmt"

	"github.com/radiant-ai/radiant/internal/auth"
	"github.com/radiant-ai/radiant/internal/model"
)

// ErrForbidden is wrapped by every denial.
var ErrForbidden = errors.New("forbidden")

// Action names an operation gated by role.
type Action string

const (
	// ActionRead covers listing and fetching decisions, items, alerts and configs.
	ActionRead Action = "read"
	// ActionEvaluate covers submitting envelopes, insights and memory records.
	ActionEvaluate Action = "evaluate"
	// ActionDecide covers resolving and escalating decisions and oversight items.
	ActionDecide Action = "decide"
	// ActionAdminister covers presets, checkpoint and tier config, erasure and alerts.
	ActionAdminister Action = "administer"
)

var minRole = map[Action]model.Role{
	ActionRead:       model.RoleService,
	ActionEvaluate:   model.RoleService,
	ActionDecide:     model.RoleReviewer,
	ActionAdminister: model.RoleAdmin,
}

// Authorize checks that claims permit action on tenantID. Callers are
// confined to the tenant in their token; a service token can submit work
// but never decide it.
func Authorize(claims *auth.Claims, tenantID string, action Action) error {
	if claims == nil {
		return fmt.Errorf("%w: unauthenticated", ErrForbidden)
	}
	need, ok := minRole[action]
	if !ok {
		return fmt.Errorf("%w: unknown action %q", ErrForbidden, action)
	}
	if claims.TenantID != tenantID {
		return fmt.Errorf("%w: token for tenant %q cannot act on tenant %q", ErrForbidden, claims.TenantID, tenantID)
	}
	if action == ActionDecide && claims.Role == model.RoleService {
		return fmt.Errorf("%w: service accounts cannot decide", ErrForbidden)
	}
	if !model.RoleAtLeast(claims.Role, need) {
		return fmt.Errorf("%w: role %q cannot %s", ErrForbidden, claims.Role, action)
	}
	return nil
}

// Actor returns the identity recorded as decided_by for the caller.
func Actor(claims *auth.Claims) string {
	if claims == nil {
		return ""
	}
	return claims.Subject
}
