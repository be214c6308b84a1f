package repository

import (
	"context"
	"errors"
	"time"

	"otpgate/internal/domain/entity"

	"github.com/google/uuid"
)

var (
	// ErrLoginSessionNotFound is returned when no record matches, including when a
	// conditional update found the record in a state it may not move from.
	ErrLoginSessionNotFound = errors.New("login session not found")

	// ErrLoginSessionConflict is returned when a compare-and-swap guard did not hold.
	ErrLoginSessionConflict = errors.New("login session modified concurrently")
)

// LoginSessionRepository stores pending email logins.
// Every mutating method is a single atomic conditional update on one record.
type LoginSessionRepository interface {
	// Create inserts a new login session.
	Create(ctx context.Context, session *entity.LoginSession) error

	// FindByID returns the session or ErrLoginSessionNotFound.
	FindByID(ctx context.Context, id uuid.UUID) (*entity.LoginSession, error)

	// MarkSent moves a pending session to code_sent and stamps the dispatch time.
	MarkSent(ctx context.Context, id uuid.UUID, sentAt time.Time) error

	// RotateCode replaces the code and its expiry of a pending session and bumps the
	// resend counter. ExpiresAt is never written.
	RotateCode(ctx context.Context, id uuid.UUID, rotation entity.CodeRotation) error

	// RecordFailedAttempt increments the failure counter of a pending session and moves
	// it to exhausted once the counter reaches maxAttempts.
	RecordFailedAttempt(ctx context.Context, id uuid.UUID, maxAttempts int, at time.Time) (*entity.AttemptResult, error)

	// Consume moves a pending session whose current code digest equals codeHash to
	// verified. Exactly one concurrent caller succeeds; the rest get ErrLoginSessionNotFound.
	Consume(ctx context.Context, id uuid.UUID, codeHash string, at time.Time) error

	// DeleteExpired removes sessions whose ceiling passed before the cutoff.
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}
