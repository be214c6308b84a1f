package memory

import (
	"context"
	"sync"

	"otpgate/internal/domain/entity"
	"otpgate/internal/domain/repository"
	"otpgate/internal/util"

	"github.com/google/uuid"
)

type userRepository struct {
	mu      sync.RWMutex
	byID    map[uuid.UUID]entity.User
	byEmail map[string]uuid.UUID
}

// NewUserRepository returns a directory holding the given users. Emails are normalized.
func NewUserRepository(users []entity.User) repository.UserRepository {
	repo := &userRepository{
		byID:    make(map[uuid.UUID]entity.User, len(users)),
		byEmail: make(map[string]uuid.UUID, len(users)),
	}
	for _, u := range users {
		u.Email = util.NormalizeEmail(u.Email)
		repo.byID[u.ID] = u
		repo.byEmail[u.Email] = u.ID
	}

	return repo
}

func (r *userRepository) FindByID(_ context.Context, id uuid.UUID) (*entity.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.byID[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}

	return &u, nil
}

func (r *userRepository) FindByEmail(_ context.Context, email string) (*entity.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[util.NormalizeEmail(email)]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	u := r.byID[id]

	return &u, nil
}
