package authz_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/radiant-ai/radiant/internal/auth"
	"github.com/radiant-ai/radiant/internal/authz"
	"github.com/radiant-ai/radiant/internal/model"
)

func claims(tenant string, role model.Role) *auth.Claims {
	c := &auth.Claims{TenantID: tenant, Role: role}
	c.Subject = "caller"
	return c
}

func TestAuthorize(t *testing.T) {
	tests := []struct {
		name    string
		claims  *auth.Claims
		tenant  string
		action  authz.Action
		allowed bool
	}{
		{name: "service reads own tenant", claims: claims("acme", model.RoleService), tenant: "acme", action: authz.ActionRead, allowed: true},
		{name: "service evaluates", claims: claims("acme", model.RoleService), tenant: "acme", action: authz.ActionEvaluate, allowed: true},
		{name: "service cannot decide", claims: claims("acme", model.RoleService), tenant: "acme", action: authz.ActionDecide},
		{name: "reviewer decides", claims: claims("acme", model.RoleReviewer), tenant: "acme", action: authz.ActionDecide, allowed: true},
		{name: "reviewer cannot administer", claims: claims("acme", model.RoleReviewer), tenant: "acme", action: authz.ActionAdminister},
		{name: "admin administers", claims: claims("acme", model.RoleAdmin), tenant: "acme", action: authz.ActionAdminister, allowed: true},
		{name: "admin confined to tenant", claims: claims("acme", model.RoleAdmin), tenant: "globex", action: authz.ActionRead},
		{name: "no claims", claims: nil, tenant: "acme", action: authz.ActionRead},
		{name: "unknown action", claims: claims("acme", model.RoleAdmin), tenant: "acme", action: "teleport"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := authz.Authorize(tt.claims, tt.tenant, tt.action)
			if tt.allowed {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, authz.ErrForbidden)
			}
		})
	}
}

func TestActor(t *testing.T) {
	assert.Equal(t, "caller", authz.Actor(claims("acme", model.RoleReviewer)))
	assert.Empty(t, authz.Actor(nil))
}
