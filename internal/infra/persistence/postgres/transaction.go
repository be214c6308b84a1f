package postgres

import (
	"context"
	"fmt"

	"otpgate/internal/domain/entity"
	"otpgate/internal/domain/repository"
	"otpgate/internal/infra/persistence/model"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// withLockedSession loads a pending session row FOR UPDATE inside a transaction, lets fn
// mutate it and writes it back. Returning an error from fn rolls the transaction back.
func withLockedSession(ctx context.Context, db *gorm.DB, id uuid.UUID, fn func(m *model.LoginSessionModel) error) error {
	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return fmt.Errorf("failed to begin transaction: %w", tx.Error)
	}

	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	err := lockAndUpdate(tx, id, fn)
	if err != nil {
		if rbErr := tx.Rollback().Error; rbErr != nil {
			return fmt.Errorf("transaction rollback failed: %v (original error: %w)", rbErr, err)
		}

		return err
	}

	if err := tx.Commit().Error; err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func lockAndUpdate(tx *gorm.DB, id uuid.UUID, fn func(m *model.LoginSessionModel) error) error {
	var m model.LoginSessionModel
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return repository.ErrLoginSessionNotFound
	}
	if err != nil {
		return err
	}
	if !entity.LoginSessionState(m.State).IsPending() {
		return repository.ErrLoginSessionNotFound
	}

	if err := fn(&m); err != nil {
		return err
	}

	return tx.Model(&model.LoginSessionModel{ID: m.ID}).Updates(map[string]any{
		"code_hash":       m.CodeHash,
		"code_expires_at": m.CodeExpiresAt,
		"state":           m.State,
		"failed_attempts": m.FailedAttempts,
		"resend_count":    m.ResendCount,
		"last_sent_at":    m.LastSentAt,
		"updated_at":      m.UpdatedAt,
	}).Error
}
