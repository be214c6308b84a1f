package entity

import (
	"time"

	"github.com/google/uuid"
)

// User is an account owned by the external user directory.
// The login flow only reads users; it never creates or mutates them.
type User struct {
	ID        uuid.UUID // Stable identifier placed in the session credential.
	Email     string    // Normalized login email.
	Name      string    // Display name.
	Role      Role      // Access level, resolved at verification time.
	CreatedAt time.Time // When the directory created the account.
}

// UserView is the projection of a User that is safe to return to browsers.
type UserView struct {
	ID    uuid.UUID `json:"id"`
	Email string    `json:"email"`
	Name  string    `json:"name"`
	Role  Role      `json:"role"`
}

// View returns the public projection of the user.
func (u *User) View() *UserView {
	if u == nil {
		return nil
	}

	return &UserView{
		ID:    u.ID,
		Email: u.Email,
		Name:  u.Name,
		Role:  u.Role,
	}
}
