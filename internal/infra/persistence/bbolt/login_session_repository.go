package bbolt

import (
	"context"
	"encoding/json"
	"time"

	"otpgate/internal/domain/entity"
	"otpgate/internal/domain/repository"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"
)

// loginSessionRecord is the stored form of a login session.
type loginSessionRecord struct {
	ID             string    `json:"id"`
	Email          string    `json:"email"`
	CodeHash       string    `json:"code_hash"`
	CodeExpiresAt  time.Time `json:"code_expires_at"`
	ExpiresAt      time.Time `json:"expires_at"`
	State          string    `json:"state"`
	FailedAttempts int       `json:"failed_attempts"`
	ResendCount    int       `json:"resend_count"`
	LastSentAt     time.Time `json:"last_sent_at"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type loginSessionRepository struct {
	db *bbolt.DB
}

func (r *loginSessionRepository) Create(ctx context.Context, session *entity.LoginSession) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return r.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketName)
		k := key(recordLoginSession, session.ID.String())
		if b.Get(k) != nil {
			return repository.ErrLoginSessionConflict
		}

		return putJSON(b, k, fromLoginSessionDomain(session))
	})
}

func (r *loginSessionRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.LoginSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var rec loginSessionRecord
	err := r.db.View(func(tx *bbolt.Tx) error {
		found, err := getJSON(tx.Bucket(bucketName), key(recordLoginSession, id.String()), &rec)
		if err != nil {
			return err
		}
		if !found {
			return repository.ErrLoginSessionNotFound
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return toLoginSessionDomain(&rec)
}

// update reads, checks and rewrites one pending session inside a single write transaction.
func (r *loginSessionRepository) update(ctx context.Context, id uuid.UUID, fn func(rec *loginSessionRecord) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return r.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketName)
		k := key(recordLoginSession, id.String())

		var rec loginSessionRecord
		found, err := getJSON(b, k, &rec)
		if err != nil {
			return err
		}
		if !found || !entity.LoginSessionState(rec.State).IsPending() {
			return repository.ErrLoginSessionNotFound
		}
		if err := fn(&rec); err != nil {
			return err
		}

		return putJSON(b, k, &rec)
	})
}

func (r *loginSessionRepository) MarkSent(ctx context.Context, id uuid.UUID, sentAt time.Time) error {
	return r.update(ctx, id, func(rec *loginSessionRecord) error {
		rec.State = string(entity.LoginSessionCodeSent)
		rec.LastSentAt = sentAt
		rec.UpdatedAt = sentAt

		return nil
	})
}

func (r *loginSessionRepository) RotateCode(ctx context.Context, id uuid.UUID, rotation entity.CodeRotation) error {
	return r.update(ctx, id, func(rec *loginSessionRecord) error {
		if rec.ResendCount != rotation.ExpectedResendCount {
			return repository.ErrLoginSessionConflict
		}
		rec.CodeHash = rotation.CodeHash
		rec.CodeExpiresAt = rotation.CodeExpiresAt
		rec.ResendCount++
		rec.UpdatedAt = rotation.RotatedAt

		return nil
	})
}

func (r *loginSessionRepository) RecordFailedAttempt(ctx context.Context, id uuid.UUID, maxAttempts int, at time.Time) (*entity.AttemptResult, error) {
	var result entity.AttemptResult
	err := r.update(ctx, id, func(rec *loginSessionRecord) error {
		rec.FailedAttempts++
		if rec.FailedAttempts >= maxAttempts {
			rec.State = string(entity.LoginSessionExhausted)
		}
		rec.UpdatedAt = at
		result = entity.AttemptResult{
			FailedAttempts: rec.FailedAttempts,
			State:          entity.LoginSessionState(rec.State),
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return &result, nil
}

func (r *loginSessionRepository) Consume(ctx context.Context, id uuid.UUID, codeHash string, at time.Time) error {
	return r.update(ctx, id, func(rec *loginSessionRecord) error {
		if rec.CodeHash != codeHash {
			return repository.ErrLoginSessionNotFound
		}
		rec.State = string(entity.LoginSessionVerified)
		rec.UpdatedAt = at

		return nil
	})
}

func (r *loginSessionRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var deleted int64
	err := r.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketName)
		keys, err := keysWithPrefix(b, prefix(recordLoginSession), func(v []byte) (bool, error) {
			var rec loginSessionRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return false, err
			}

			return rec.ExpiresAt.Before(cutoff), nil
		})
		if err != nil {
			return err
		}
		for _, k := range keys {
			if err := b.Delete(k); err != nil {
				return err
			}
			deleted++
		}

		return nil
	})

	return deleted, err
}

func fromLoginSessionDomain(s *entity.LoginSession) *loginSessionRecord {
	return &loginSessionRecord{
		ID:             s.ID.String(),
		Email:          s.Email,
		CodeHash:       s.CodeHash,
		CodeExpiresAt:  s.CodeExpiresAt,
		ExpiresAt:      s.ExpiresAt,
		State:          string(s.State),
		FailedAttempts: s.FailedAttempts,
		ResendCount:    s.ResendCount,
		LastSentAt:     s.LastSentAt,
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.UpdatedAt,
	}
}

func toLoginSessionDomain(rec *loginSessionRecord) (*entity.LoginSession, error) {
	id, err := uuid.Parse(rec.ID)
	if err != nil {
		return nil, err
	}

	return &entity.LoginSession{
		ID:             id,
		Email:          rec.Email,
		CodeHash:       rec.CodeHash,
		CodeExpiresAt:  rec.CodeExpiresAt,
		ExpiresAt:      rec.ExpiresAt,
		State:          entity.LoginSessionState(rec.State),
		FailedAttempts: rec.FailedAttempts,
		ResendCount:    rec.ResendCount,
		LastSentAt:     rec.LastSentAt,
		CreatedAt:      rec.CreatedAt,
		UpdatedAt:      rec.UpdatedAt,
	}, nil
}
