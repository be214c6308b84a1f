// Package entity contains the core business objects of the project.
package entity

import "strings"

// Role represents the access level carried by a signed session credential.
type Role string

const (
	// RoleUser indicates a regular reader account.
	RoleUser Role = "user"
	// RoleAdmin indicates an account allowed into the admin area.
	RoleAdmin Role = "admin"
)

// String returns the string representation of the Role.
func (r Role) String() string {
	return string(r)
}

// IsValid checks if the Role is a known value.
func (r Role) IsValid() bool {
	switch r {
	case RoleUser, RoleAdmin:
		return true
	default:
		return false
	}
}

// ParseRole normalizes a role string. Unknown values degrade to RoleUser so a
// malformed directory entry never grants elevated access.
func ParseRole(s string) Role {
	role := Role(strings.ToLower(strings.TrimSpace(s)))
	if !role.IsValid() {
		return RoleUser
	}

	return role
}
