// Package memory keeps login sessions and the user directory in process memory.
// It suits single-instance development and tests.
package memory

import (
	"context"
	"sync"
	"time"

	"otpgate/internal/domain/entity"
	"otpgate/internal/domain/repository"

	"github.com/google/uuid"
)

type loginSessionRepository struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]entity.LoginSession
}

// NewLoginSessionRepository returns an empty in-memory store.
func NewLoginSessionRepository() repository.LoginSessionRepository {
	return &loginSessionRepository{
		sessions: make(map[uuid.UUID]entity.LoginSession),
	}
}

func (r *loginSessionRepository) Create(ctx context.Context, session *entity.LoginSession) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[session.ID]; exists {
		return repository.ErrLoginSessionConflict
	}
	r.sessions[session.ID] = *session

	return nil
}

func (r *loginSessionRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.LoginSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[id]
	if !ok {
		return nil, repository.ErrLoginSessionNotFound
	}

	return &session, nil
}

// update applies fn to a pending session under the lock.
func (r *loginSessionRepository) update(ctx context.Context, id uuid.UUID, fn func(s *entity.LoginSession) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[id]
	if !ok || !session.State.IsPending() {
		return repository.ErrLoginSessionNotFound
	}
	if err := fn(&session); err != nil {
		return err
	}
	r.sessions[id] = session

	return nil
}

func (r *loginSessionRepository) MarkSent(ctx context.Context, id uuid.UUID, sentAt time.Time) error {
	return r.update(ctx, id, func(s *entity.LoginSession) error {
		s.State = entity.LoginSessionCodeSent
		s.LastSentAt = sentAt
		s.UpdatedAt = sentAt

		return nil
	})
}

func (r *loginSessionRepository) RotateCode(ctx context.Context, id uuid.UUID, rotation entity.CodeRotation) error {
	return r.update(ctx, id, func(s *entity.LoginSession) error {
		if s.ResendCount != rotation.ExpectedResendCount {
			return repository.ErrLoginSessionConflict
		}
		s.CodeHash = rotation.CodeHash
		s.CodeExpiresAt = rotation.CodeExpiresAt
		s.ResendCount++
		s.UpdatedAt = rotation.RotatedAt

		return nil
	})
}

func (r *loginSessionRepository) RecordFailedAttempt(ctx context.Context, id uuid.UUID, maxAttempts int, at time.Time) (*entity.AttemptResult, error) {
	var result entity.AttemptResult
	err := r.update(ctx, id, func(s *entity.LoginSession) error {
		s.FailedAttempts++
		if s.FailedAttempts >= maxAttempts {
			s.State = entity.LoginSessionExhausted
		}
		s.UpdatedAt = at
		result = entity.AttemptResult{FailedAttempts: s.FailedAttempts, State: s.State}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return &result, nil
}

func (r *loginSessionRepository) Consume(ctx context.Context, id uuid.UUID, codeHash string, at time.Time) error {
	return r.update(ctx, id, func(s *entity.LoginSession) error {
		if s.CodeHash != codeHash {
			return repository.ErrLoginSessionNotFound
		}
		s.State = entity.LoginSessionVerified
		s.UpdatedAt = at

		return nil
	})
}

func (r *loginSessionRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var deleted int64
	for id, session := range r.sessions {
		if session.ExpiresAt.Before(cutoff) {
			delete(r.sessions, id)
			deleted++
		}
	}

	return deleted, nil
}
