package postgres

import (
	"context"

	"otpgate/internal/domain/entity"
	domainerrors "otpgate/internal/domain/errors"
	"otpgate/internal/domain/repository"
	"otpgate/internal/infra/persistence/model"
	"otpgate/internal/util"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// userRepository reads the directory's 'users' table.
type userRepository struct {
	db *gorm.DB
}

// NewUserRepository is the constructor for userRepository.
func NewUserRepository(db *gorm.DB) repository.UserRepository {
	return &userRepository{db: db}
}

// FindByID retrieves a single user by their unique ID.
func (repo *userRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.User, error) {
	return repo.take(ctx, "failed to find user by id", "id = ?", id)
}

// FindByEmail retrieves a single user by their normalized email address.
func (repo *userRepository) FindByEmail(ctx context.Context, email string) (*entity.User, error) {
	return repo.take(ctx, "failed to find user by email", "email = ?", util.NormalizeEmail(email))
}

func (repo *userRepository) take(ctx context.Context, failure, query string, arg any) (*entity.User, error) {
	var userM model.UserModel
	if err := repo.db.WithContext(ctx).Where(query, arg).Take(&userM).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrUserNotFound
		}

		return nil, errors.Wrap(err, failure)
	}

	return toUserDomain(&userM), nil
}

// SeedUsers upserts configured directory entries by id. Used for local setups where no
// external directory writes the table.
func SeedUsers(ctx context.Context, db *gorm.DB, users []entity.User) error {
	if len(users) == 0 {
		return nil
	}

	models := make([]*model.UserModel, 0, len(users))
	for i := range users {
		models = append(models, fromUserDomain(&users[i]))
	}

	err := db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"email", "name", "role", "updated_at"}),
	}).Create(&models).Error
	if err != nil {
		if isUniqueConstraintViolation(err) {
			return domainerrors.NewDatabaseExecuteError(err, "seeded email already belongs to another user")
		}

		return domainerrors.NewDatabaseExecuteError(err, "failed to seed users")
	}

	return nil
}

// --- Mapper Functions ---

func toUserDomain(data *model.UserModel) *entity.User {
	return &entity.User{
		ID:        data.ID,
		Email:     data.Email,
		Name:      data.Name,
		Role:      entity.ParseRole(data.Role),
		CreatedAt: data.CreatedAt,
	}
}

func fromUserDomain(data *entity.User) *model.UserModel {
	return &model.UserModel{
		ID:        data.ID,
		Email:     util.NormalizeEmail(data.Email),
		Name:      data.Name,
		Role:      data.Role.String(),
		CreatedAt: data.CreatedAt,
	}
}
