// Package usecase contains the application-specific business rules.
// It orchestrates the domain layer to perform tasks.
package usecase

import (
	"context"
	"time"

	"otpgate/internal/domain/entity"

	"github.com/google/uuid"
)

// --- Input DTOs ---

// InitiateLoginInput starts an email login.
type InitiateLoginInput struct {
	Email     string
	RequestID string
}

// VerifyLoginInput submits the code received by email.
type VerifyLoginInput struct {
	SessionID uuid.UUID
	Code      string
}

// ResendCodeInput asks for a fresh code under the same login session.
type ResendCodeInput struct {
	SessionID uuid.UUID
	RequestID string
}

// --- Output DTOs ---

// InitiateLoginOutput carries the login session correlator back to the browser.
type InitiateLoginOutput struct {
	SessionID uuid.UUID
}

// VerifyLoginOutput is the result of a successful verification.
type VerifyLoginOutput struct {
	User        *entity.User
	Token       string
	Destination string
	ExpiresAt   time.Time
}

// LoginUsecase drives the two-phase email code login.
type LoginUsecase interface {
	// InitiateLogin creates a login session and emails a code. A dispatch failure returns
	// the output together with ErrDispatchFailed.
	InitiateLogin(ctx context.Context, input InitiateLoginInput) (*InitiateLoginOutput, error)

	// VerifyLogin consumes the session and mints a credential.
	VerifyLogin(ctx context.Context, input VerifyLoginInput) (*VerifyLoginOutput, error)

	// ResendCode rotates the code of a live session and emails it again.
	ResendCode(ctx context.Context, input ResendCodeInput) error

	// PurgeExpired deletes sessions past their ceiling plus the retention window.
	PurgeExpired(ctx context.Context) (int64, error)
}
