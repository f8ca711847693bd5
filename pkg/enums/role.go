package enums

import "fmt"

// Role is the back-office role carried in an employee's access token.
type Role string

const (
	RoleAdmin            Role = "admin"
	RoleFranchiseManager Role = "franchise_manager"
	RoleEmployee         Role = "employee"
)

var validRoles = []Role{
	RoleAdmin,
	RoleFranchiseManager,
	RoleEmployee,
}

// String implements fmt.Stringer.
func (r Role) String() string {
	return string(r)
}

// IsValid reports whether the value is a known Role.
func (r Role) IsValid() bool {
	for _, candidate := range validRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

// Rank orders roles by privilege; unknown roles rank below every known one.
func (r Role) Rank() int {
	switch r {
	case RoleAdmin:
		return 3
	case RoleFranchiseManager:
		return 2
	case RoleEmployee:
		return 1
	default:
		return 0
	}
}

// AtLeast reports whether r carries at least the privilege of min.
func (r Role) AtLeast(min Role) bool {
	return r.IsValid() && r.Rank() >= min.Rank()
}

// ParseRole converts raw input into a Role.
func ParseRole(value string) (Role, error) {
	for _, candidate := range validRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid role %q", value)
}
