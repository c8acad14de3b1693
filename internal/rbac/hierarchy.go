package rbac

import (
	"errors"
	"fmt"
	"strings"
)

// Role is a named position in the fixed privilege hierarchy
type Role string

const (
	RoleEmployee   Role = "employee"
	RoleManager    Role = "manager"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "superadmin"
)

// ErrUnknownRole indicates that a role name is not part of the hierarchy
var ErrUnknownRole = errors.New("unknown role")

// hierarchy is ordered from lowest to highest privilege
var hierarchy = []Role{RoleEmployee, RoleManager, RoleAdmin, RoleSuperAdmin}

// All returns every role from lowest to highest privilege
func All() []Role {
	out := make([]Role, len(hierarchy))
	copy(out, hierarchy)
	return out
}

// Parse converts a role name into a Role
func Parse(name string) (Role, error) {
	role := Role(strings.ToLower(strings.TrimSpace(name)))
	if Rank(role) < 0 {
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, name)
	}
	return role, nil
}

// Rank returns the position of the role in the hierarchy, -1 for unknown roles
func Rank(role Role) int {
	for i, r := range hierarchy {
		if r == role {
			return i
		}
	}
	return -1
}

// AtLeast reports whether actual is ranked at or above minimum.
// Unknown roles on either side never satisfy the check.
func AtLeast(actual, minimum Role) bool {
	have, need := Rank(actual), Rank(minimum)
	if have < 0 || need < 0 {
		return false
	}
	return have >= need
}

// CanRetarget reports whether requester may move a subject from current to next.
// The requester must strictly outrank both sides of the move.
func CanRetarget(requester, current, next Role) bool {
	req := Rank(requester)
	if req < 0 || Rank(current) < 0 || Rank(next) < 0 {
		return false
	}
	return req > Rank(current) && req > Rank(next)
}

// String implements fmt.Stringer
func (r Role) String() string {
	return string(r)
}
