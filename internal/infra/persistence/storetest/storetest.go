// Package storetest holds behavior checks shared by every LoginSessionRepository backend.
package storetest

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"otpgate/internal/domain/entity"
	"otpgate/internal/domain/repository"
	"otpgate/internal/util"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns a fresh, empty repository for one subtest.
type Factory func(t *testing.T) repository.LoginSessionRepository

var baseTime = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

// NewSession builds a pending session created at baseTime.
func NewSession(code string) *entity.LoginSession {
	return &entity.LoginSession{
		ID:            uuid.New(),
		Email:         "reader@example.com",
		CodeHash:      util.HashCode(code),
		CodeExpiresAt: baseTime.Add(10 * time.Minute),
		ExpiresAt:     baseTime.Add(30 * time.Minute),
		State:         entity.LoginSessionCreated,
		CreatedAt:     baseTime,
		UpdatedAt:     baseTime,
	}
}

// RunLoginSessionRepositoryTests exercises the repository contract.
func RunLoginSessionRepositoryTests(t *testing.T, newRepo Factory) {
	t.Run("CreateAndFind", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		session := NewSession("123456")

		require.NoError(t, repo.Create(ctx, session))

		got, err := repo.FindByID(ctx, session.ID)
		require.NoError(t, err)
		assert.Equal(t, session.Email, got.Email)
		assert.Equal(t, session.CodeHash, got.CodeHash)
		assert.Equal(t, entity.LoginSessionCreated, got.State)
		assert.True(t, got.ExpiresAt.Equal(session.ExpiresAt))
		assert.True(t, got.CodeExpiresAt.Equal(session.CodeExpiresAt))
	})

	t.Run("FindMissing", func(t *testing.T) {
		repo := newRepo(t)

		_, err := repo.FindByID(context.Background(), uuid.New())
		assert.ErrorIs(t, err, repository.ErrLoginSessionNotFound)
	})

	t.Run("MarkSent", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		session := NewSession("123456")
		require.NoError(t, repo.Create(ctx, session))

		sentAt := baseTime.Add(time.Second)
		require.NoError(t, repo.MarkSent(ctx, session.ID, sentAt))

		got, err := repo.FindByID(ctx, session.ID)
		require.NoError(t, err)
		assert.Equal(t, entity.LoginSessionCodeSent, got.State)
		assert.True(t, got.LastSentAt.Equal(sentAt))

		assert.ErrorIs(t, repo.MarkSent(ctx, uuid.New(), sentAt), repository.ErrLoginSessionNotFound)
	})

	t.Run("RotateCodeKeepsCeiling", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		session := NewSession("111111")
		require.NoError(t, repo.Create(ctx, session))

		rotation := entity.CodeRotation{
			CodeHash:            util.HashCode("222222"),
			CodeExpiresAt:       baseTime.Add(25 * time.Minute),
			ExpectedResendCount: 0,
			RotatedAt:           baseTime.Add(15 * time.Minute),
		}
		require.NoError(t, repo.RotateCode(ctx, session.ID, rotation))

		got, err := repo.FindByID(ctx, session.ID)
		require.NoError(t, err)
		assert.Equal(t, util.HashCode("222222"), got.CodeHash)
		assert.True(t, got.CodeExpiresAt.Equal(rotation.CodeExpiresAt))
		assert.True(t, got.ExpiresAt.Equal(session.ExpiresAt), "resend must not move the ceiling")
		assert.Equal(t, 1, got.ResendCount)

		// A second rotation based on a stale counter loses.
		assert.ErrorIs(t, repo.RotateCode(ctx, session.ID, rotation), repository.ErrLoginSessionConflict)
	})

	t.Run("RecordFailedAttemptExhausts", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		session := NewSession("123456")
		require.NoError(t, repo.Create(ctx, session))

		for i := 1; i < 3; i++ {
			result, err := repo.RecordFailedAttempt(ctx, session.ID, 3, baseTime)
			require.NoError(t, err)
			assert.Equal(t, i, result.FailedAttempts)
			assert.Equal(t, entity.LoginSessionCreated, result.State)
		}

		result, err := repo.RecordFailedAttempt(ctx, session.ID, 3, baseTime)
		require.NoError(t, err)
		assert.Equal(t, 3, result.FailedAttempts)
		assert.Equal(t, entity.LoginSessionExhausted, result.State)

		_, err = repo.RecordFailedAttempt(ctx, session.ID, 3, baseTime)
		assert.ErrorIs(t, err, repository.ErrLoginSessionNotFound)
	})

	t.Run("ConsumeOnce", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		session := NewSession("123456")
		require.NoError(t, repo.Create(ctx, session))

		assert.ErrorIs(t, repo.Consume(ctx, session.ID, util.HashCode("654321"), baseTime), repository.ErrLoginSessionNotFound)
		require.NoError(t, repo.Consume(ctx, session.ID, util.HashCode("123456"), baseTime))
		assert.ErrorIs(t, repo.Consume(ctx, session.ID, util.HashCode("123456"), baseTime), repository.ErrLoginSessionNotFound)

		got, err := repo.FindByID(ctx, session.ID)
		require.NoError(t, err)
		assert.Equal(t, entity.LoginSessionVerified, got.State)

		// Terminal sessions accept no further mutation.
		assert.ErrorIs(t, repo.MarkSent(ctx, session.ID, baseTime), repository.ErrLoginSessionNotFound)
	})

	t.Run("ConcurrentConsumeHasOneWinner", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		session := NewSession("123456")
		require.NoError(t, repo.Create(ctx, session))

		const workers = 16
		var wins atomic.Int32
		var wg sync.WaitGroup
		for range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := repo.Consume(ctx, session.ID, util.HashCode("123456"), baseTime); err == nil {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(1), wins.Load())
	})

	t.Run("DeleteExpired", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		old := NewSession("111111")
		fresh := NewSession("222222")
		fresh.ExpiresAt = baseTime.Add(2 * time.Hour)
		require.NoError(t, repo.Create(ctx, old))
		require.NoError(t, repo.Create(ctx, fresh))

		deleted, err := repo.DeleteExpired(ctx, baseTime.Add(time.Hour))
		require.NoError(t, err)
		assert.Equal(t, int64(1), deleted)

		_, err = repo.FindByID(ctx, old.ID)
		assert.ErrorIs(t, err, repository.ErrLoginSessionNotFound)
		_, err = repo.FindByID(ctx, fresh.ID)
		assert.NoError(t, err)
	})
}
