package usecase

import (
	"context"

	"otpgate/internal/domain/entity"
)

// SessionUsecase resolves the browser-held credential.
type SessionUsecase interface {
	// Authenticate verifies a credential. An empty token yields ErrUnauthenticated.
	Authenticate(ctx context.Context, token string) (*entity.SessionCredential, error)

	// CurrentUser returns the signed-in user, or nil when the credential is missing, invalid
	// or names a user the directory no longer has.
	CurrentUser(ctx context.Context, token string) (*entity.User, error)
}
