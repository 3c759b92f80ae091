package enums

import "fmt"

// Role is the coarse account permission tag stored in identity metadata.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

var validRoles = []Role{RoleUser, RoleAdmin}

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

// ParseRole converts raw input into a Role.
func ParseRole(value string) (Role, error) {
	for _, candidate := range validRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid role %q", value)
}

// RoleOrDefault treats an absent or unknown role as RoleUser.
func RoleOrDefault(value string) Role {
	if role, err := ParseRole(value); err == nil {
		return role
	}
	return RoleUser
}
