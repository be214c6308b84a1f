package service

import "otpgate/internal/domain/entity"

// RoleRouter maps a role to the landing path of its area.
type RoleRouter interface {
	Route(role entity.Role) string
}
