package auth

import "github.com/sparkleops/dbdistrib/internal/server/models"

// Role is the access tier a principal resolves to.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleAuditor   Role = "auditor"
	RoleDeveloper Role = "dev"
)

// intersects reports whether any of the principal's groups appears in the
// allowed set. An empty allowed set never matches.
func intersects(groups, allowed []string) bool {
	if len(allowed) == 0 {
		return false
	}
	for _, g := range groups {
		for _, a := range allowed {
			if g == a {
				return true
			}
		}
	}
	return false
}

// ResolveRole maps a principal's group memberships to exactly one role.
// The checks are ordered: admin wins over auditor when both match, and
// developer is the default requiring no group. Pure function, no side effects.
func ResolveRole(p *models.Principal, adminGroups, auditorGroups []string) Role {
	if intersects(p.Groups, adminGroups) {
		return RoleAdmin
	}
	if intersects(p.Groups, auditorGroups) {
		return RoleAuditor
	}
	return RoleDeveloper
}
