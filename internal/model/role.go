package model

import "fmt"

// Role is the RBAC role carried in a caller's token.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleReviewer Role = "reviewer"
	RoleService  Role = "service"
)

// RoleRank returns the numeric rank of a role (higher = more privileges).
func RoleRank(r Role) int {
	switch r {
	case RoleAdmin:
		return 3
	case RoleReviewer:
		return 2
	case RoleService:
		return 1
	default:
		return 0
	}
}

// RoleAtLeast returns true if role r has at least the privileges of minRole.
func RoleAtLeast(r, minRole Role) bool {
	return RoleRank(r) >= RoleRank(minRole)
}

// ValidateTenantID checks that a tenant ID is 1-128 ASCII characters:
// alphanumeric, dots, hyphens, and underscores. Tenant IDs become Hot-tier
// key segments and archive prefixes, so '/' and ':' are rejected.
func ValidateTenantID(id string) error {
	if len(id) == 0 {
		return fmt.Errorf("tenant_id is required")
	}
	if len(id) > 128 {
		return fmt.Errorf("tenant_id must be at most 128 characters")
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		if (c < 'a' || c > 'z') && (c < 'A' || c > 'Z') && (c < '0' || c > '9') &&
			c != '.' && c != '-' && c != '_' {
			return fmt.Errorf("tenant_id contains invalid character at position %d: %q", i, c)
		}
	}
	return nil
}
