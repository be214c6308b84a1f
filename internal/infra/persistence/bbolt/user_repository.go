package bbolt

import (
	"context"

	"otpgate/internal/domain/entity"
	"otpgate/internal/domain/repository"
	"otpgate/internal/util"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"
)

type userRepository struct {
	db *bbolt.DB
}

func (r *userRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.User, error) {
	return r.find(ctx, func(b *bbolt.Bucket) []byte {
		return key(recordUser, id.String())
	})
}

func (r *userRepository) FindByEmail(ctx context.Context, email string) (*entity.User, error) {
	return r.find(ctx, func(b *bbolt.Bucket) []byte {
		id := b.Get(key(recordUserEmail, util.NormalizeEmail(email)))
		if id == nil {
			return nil
		}

		return key(recordUser, string(id))
	})
}

func (r *userRepository) find(ctx context.Context, lookup func(b *bbolt.Bucket) []byte) (*entity.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var rec userRecord
	err := r.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketName)
		k := lookup(b)
		if k == nil {
			return repository.ErrUserNotFound
		}
		found, err := getJSON(b, k, &rec)
		if err != nil {
			return err
		}
		if !found {
			return repository.ErrUserNotFound
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	id, err := uuid.Parse(rec.ID)
	if err != nil {
		return nil, err
	}

	return &entity.User{
		ID:        id,
		Email:     rec.Email,
		Name:      rec.Name,
		Role:      entity.ParseRole(rec.Role),
		CreatedAt: rec.CreatedAt,
	}, nil
}

