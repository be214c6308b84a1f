package bbolt

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"otpgate/internal/domain/entity"
	"otpgate/internal/domain/repository"
	"otpgate/internal/infra/persistence/storetest"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := Open(filepath.Join(t.TempDir(), "data", "otpgate.db"), time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	return store
}

func TestLoginSessionRepository(t *testing.T) {
	storetest.RunLoginSessionRepositoryTests(t, func(t *testing.T) repository.LoginSessionRepository {
		return openTestStore(t).LoginSessions()
	})
}

func TestLoginSessionRepository_CreateDuplicate(t *testing.T) {
	repo := openTestStore(t).LoginSessions()
	ctx := context.Background()
	session := storetest.NewSession("123456")

	require.NoError(t, repo.Create(ctx, session))
	assert.ErrorIs(t, repo.Create(ctx, session), repository.ErrLoginSessionConflict)
}

func TestLoginSessionRepository_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "otpgate.db")
	ctx := context.Background()
	session := storetest.NewSession("123456")

	store, err := Open(path, time.Second)
	require.NoError(t, err)
	require.NoError(t, store.LoginSessions().Create(ctx, session))
	require.NoError(t, store.Close())

	store, err = Open(path, time.Second)
	require.NoError(t, err)
	defer store.Close()

	got, err := store.LoginSessions().FindByID(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, session.CodeHash, got.CodeHash)
	assert.True(t, got.ExpiresAt.Equal(session.ExpiresAt))
}

func TestUserRepository(t *testing.T) {
	store := openTestStore(t)
	adminID := uuid.New()
	require.NoError(t, store.SeedUsers([]entity.User{
		{ID: adminID, Email: " Admin@Example.com ", Name: "Admin", Role: entity.RoleAdmin},
		{ID: uuid.New(), Email: "reader@example.com", Name: "Reader", Role: entity.RoleUser},
	}))
	repo := store.Users()
	ctx := context.Background()

	byEmail, err := repo.FindByEmail(ctx, "ADMIN@example.com")
	require.NoError(t, err)
	assert.Equal(t, adminID, byEmail.ID)
	assert.Equal(t, "admin@example.com", byEmail.Email)
	assert.Equal(t, entity.RoleAdmin, byEmail.Role)

	byID, err := repo.FindByID(ctx, adminID)
	require.NoError(t, err)
	assert.Equal(t, "Admin", byID.Name)

	_, err = repo.FindByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, repository.ErrUserNotFound)
	_, err = repo.FindByID(ctx, uuid.New())
	assert.ErrorIs(t, err, repository.ErrUserNotFound)
}
