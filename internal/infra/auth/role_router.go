package auth

import (
	"otpgate/config"
	"otpgate/internal/domain/entity"
	"otpgate/internal/domain/service"
)

// defaultDestinations is used for roles the configuration does not mention.
var defaultDestinations = map[entity.Role]string{
	entity.RoleAdmin: "/dashboard/admin",
	entity.RoleUser:  "/dashboard",
}

// roleRouter is a fixed role to landing path table.
type roleRouter struct {
	destinations map[entity.Role]string
	fallback     string
}

// NewRoleRouter builds the table from defaults overlaid with configured paths.
func NewRoleRouter(cfg *config.Config) service.RoleRouter {
	destinations := make(map[entity.Role]string, len(defaultDestinations))
	for role, path := range defaultDestinations {
		destinations[role] = path
	}
	for role, path := range cfg.Auth.Destinations {
		if path != "" {
			destinations[entity.Role(role)] = path
		}
	}

	fallback := cfg.Auth.DefaultDestination
	if fallback == "" {
		fallback = "/"
	}

	return &roleRouter{destinations: destinations, fallback: fallback}
}

// Route returns the landing path for role, or the low-privilege fallback.
func (r *roleRouter) Route(role entity.Role) string {
	if path, ok := r.destinations[role]; ok {
		return path
	}

	return r.fallback
}
