package postgres

import (
	"context"
	"time"

	"otpgate/internal/domain/entity"
	domainerrors "otpgate/internal/domain/errors"
	"otpgate/internal/domain/repository"
	"otpgate/internal/infra/persistence/model"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/plugin/dbresolver"
)

type loginSessionRepository struct {
	db *gorm.DB
}

// NewLoginSessionRepository returns the PostgreSQL login session store.
func NewLoginSessionRepository(db *gorm.DB) repository.LoginSessionRepository {
	return &loginSessionRepository{db: db}
}

func (repo *loginSessionRepository) Create(ctx context.Context, session *entity.LoginSession) error {
	if err := repo.db.WithContext(ctx).Create(fromLoginSessionDomain(session)).Error; err != nil {
		if isUniqueConstraintViolation(err) {
			return repository.ErrLoginSessionConflict
		}
		if isCheckConstraintViolation(err) {
			return domainerrors.NewDatabaseExecuteError(err, "invalid login session state")
		}

		return domainerrors.NewDatabaseExecuteError(err, "failed to create login session")
	}

	return nil
}

func (repo *loginSessionRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.LoginSession, error) {
	var m model.LoginSessionModel
	// Sessions are read right after they are written, so replicas are never consulted.
	if err := repo.db.WithContext(ctx).Clauses(dbresolver.Write).Where("id = ?", id).Take(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrLoginSessionNotFound
		}

		return nil, errors.Wrap(err, "failed to find login session")
	}

	return toLoginSessionDomain(&m), nil
}

func (repo *loginSessionRepository) MarkSent(ctx context.Context, id uuid.UUID, sentAt time.Time) error {
	return withLockedSession(ctx, repo.db, id, func(m *model.LoginSessionModel) error {
		m.State = string(entity.LoginSessionCodeSent)
		m.LastSentAt = &sentAt
		m.UpdatedAt = sentAt

		return nil
	})
}

func (repo *loginSessionRepository) RotateCode(ctx context.Context, id uuid.UUID, rotation entity.CodeRotation) error {
	return withLockedSession(ctx, repo.db, id, func(m *model.LoginSessionModel) error {
		if m.ResendCount != rotation.ExpectedResendCount {
			return repository.ErrLoginSessionConflict
		}
		m.CodeHash = rotation.CodeHash
		m.CodeExpiresAt = rotation.CodeExpiresAt
		m.ResendCount++
		m.UpdatedAt = rotation.RotatedAt

		return nil
	})
}

func (repo *loginSessionRepository) RecordFailedAttempt(ctx context.Context, id uuid.UUID, maxAttempts int, at time.Time) (*entity.AttemptResult, error) {
	var result entity.AttemptResult
	err := withLockedSession(ctx, repo.db, id, func(m *model.LoginSessionModel) error {
		m.FailedAttempts++
		if m.FailedAttempts >= maxAttempts {
			m.State = string(entity.LoginSessionExhausted)
		}
		m.UpdatedAt = at
		result = entity.AttemptResult{
			FailedAttempts: m.FailedAttempts,
			State:          entity.LoginSessionState(m.State),
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return &result, nil
}

func (repo *loginSessionRepository) Consume(ctx context.Context, id uuid.UUID, codeHash string, at time.Time) error {
	return withLockedSession(ctx, repo.db, id, func(m *model.LoginSessionModel) error {
		if m.CodeHash != codeHash {
			return repository.ErrLoginSessionNotFound
		}
		m.State = string(entity.LoginSessionVerified)
		m.UpdatedAt = at

		return nil
	})
}

func (repo *loginSessionRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	result := repo.db.WithContext(ctx).
		Where("expires_at < ?", cutoff).
		Delete(&model.LoginSessionModel{})
	if result.Error != nil {
		return 0, domainerrors.NewDatabaseExecuteError(result.Error, "failed to delete expired login sessions")
	}

	return result.RowsAffected, nil
}

// --- Mapper Functions ---

func toLoginSessionDomain(data *model.LoginSessionModel) *entity.LoginSession {
	session := &entity.LoginSession{
		ID:             data.ID,
		Email:          data.Email,
		CodeHash:       data.CodeHash,
		CodeExpiresAt:  data.CodeExpiresAt,
		ExpiresAt:      data.ExpiresAt,
		State:          entity.LoginSessionState(data.State),
		FailedAttempts: data.FailedAttempts,
		ResendCount:    data.ResendCount,
		CreatedAt:      data.CreatedAt,
		UpdatedAt:      data.UpdatedAt,
	}
	if data.LastSentAt != nil {
		session.LastSentAt = *data.LastSentAt
	}

	return session
}

func fromLoginSessionDomain(data *entity.LoginSession) *model.LoginSessionModel {
	m := &model.LoginSessionModel{
		ID:             data.ID,
		Email:          data.Email,
		CodeHash:       data.CodeHash,
		CodeExpiresAt:  data.CodeExpiresAt,
		ExpiresAt:      data.ExpiresAt,
		State:          string(data.State),
		FailedAttempts: data.FailedAttempts,
		ResendCount:    data.ResendCount,
		CreatedAt:      data.CreatedAt,
		UpdatedAt:      data.UpdatedAt,
	}
	if !data.LastSentAt.IsZero() {
		lastSent := data.LastSentAt
		m.LastSentAt = &lastSent
	}

	return m
}
