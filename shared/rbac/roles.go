package rbac

import (
	"github.com/google/uuid"

	"github.com/julis-sh/intranet/shared/apperr"
)

// Role is one of the four ranked user roles
type Role string

const (
	RoleMitarbeiter Role = "mitarbeiter"
	RoleVorstand    Role = "vorstand"
	RoleLeitung     Role = "leitung"
	RoleAdmin       Role = "admin"
)

var ranks = map[Role]int{
	RoleMitarbeiter: 1,
	RoleVorstand:    2,
	RoleLeitung:     3,
	RoleAdmin:       4,
}

// Rank returns the position of r in the hierarchy, 0 for unknown roles
func Rank(r Role) int {
	return ranks[r]
}

// Valid reports whether r is one of the known roles
func (r Role) Valid() bool {
	_, ok := ranks[r]
	return ok
}

// ValidRoles lists the roles from lowest to highest
func ValidRoles() []Role {
	return []Role{RoleMitarbeiter, RoleVorstand, RoleLeitung, RoleAdmin}
}

// HasMinRole reports whether r meets or exceeds min
func HasMinRole(r, min Role) bool {
	return Rank(r) >= Rank(min)
}

// Subject is the authenticated actor as seen by authorization checks
type Subject struct {
	UserID   uuid.UUID
	Role     Role
	TenantID *uuid.UUID
}

// IsAdmin reports whether the subject holds admin rank
func (s Subject) IsAdmin() bool {
	return HasMinRole(s.Role, RoleAdmin)
}

// Require fails with a permission error naming min when s ranks below it
func Require(s Subject, min Role) error {
	if !HasMinRole(s.Role, min) {
		return apperr.PermissionDenied("Insufficient permissions. Required role: %s", min)
	}
	return nil
}
