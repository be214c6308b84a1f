// Package persistence selects and wires the configured login session store.
package persistence

import (
	"context"
	"log/slog"

	"otpgate/config"
	"otpgate/internal/domain/constants"
	"otpgate/internal/domain/entity"
	"otpgate/internal/domain/lifecycle"
	"otpgate/internal/domain/repository"
	"otpgate/internal/infra/persistence/bbolt"
	"otpgate/internal/infra/persistence/memory"
	"otpgate/internal/infra/persistence/postgres"
	"otpgate/internal/util"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/fx"
)

// userNamespace derives stable ids for seeded users configured without one.
var userNamespace = uuid.MustParse("0b6c4f0e-5a55-4a8e-9f43-6f7470676174")

// Params holds dependencies for the store, injected by Fx
type Params struct {
	fx.In

	Lc     fx.Lifecycle
	Config *config.Config
	Logger *slog.Logger
}

// Stores exposes the repositories of the selected backend
type Stores struct {
	fx.Out

	LoginSessions repository.LoginSessionRepository
	Users         repository.UserRepository
}

// New opens the store named by store.driver.
func New(params Params) (Stores, error) {
	cfg := params.Config
	logger := params.Logger

	users, err := SeedUsers(cfg.Auth.Users)
	if err != nil {
		return Stores{}, err
	}

	switch cfg.Store.Driver {
	case constants.StoreDriverMemory:
		logger.Info("Using in-memory login session store", slog.Int("users", len(users)))

		return Stores{
			LoginSessions: memory.NewLoginSessionRepository(),
			Users:         memory.NewUserRepository(users),
		}, nil

	case constants.StoreDriverBbolt:
		if cfg.Bbolt == nil || cfg.Bbolt.Path == "" {
			return Stores{}, errors.New("bbolt path is required for bbolt driver")
		}
		store, err := bbolt.Open(cfg.Bbolt.Path, cfg.Bbolt.Timeout)
		if err != nil {
			return Stores{}, err
		}
		if err := store.SeedUsers(users); err != nil {
			store.Close()

			return Stores{}, errors.Wrap(err, "failed to seed bbolt users")
		}
		logger.Info("Using bbolt login session store", slog.String("path", cfg.Bbolt.Path))

		params.Lc.Append(fx.Hook{
			OnStop: func(_ context.Context) error {
				return store.Close()
			},
		})

		return Stores{LoginSessions: store.LoginSessions(), Users: store.Users()}, nil

	case constants.StoreDriverPostgres:
		db, err := postgres.Open(params.Lc, cfg, logger)
		if err != nil {
			return Stores{}, err
		}
		// Appended after Open so the schema exists before seeding.
		params.Lc.Append(fx.Hook{
			OnStart: func(startCtx context.Context) error {
				ctx, cancel := context.WithTimeout(startCtx, lifecycle.DefaultTimeout)
				defer cancel()

				return postgres.SeedUsers(ctx, db, users)
			},
		})
		logger.Info("Using PostgreSQL login session store")

		return Stores{
			LoginSessions: postgres.NewLoginSessionRepository(db),
			Users:         postgres.NewUserRepository(db),
		}, nil

	default:
		return Stores{}, errors.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// SeedUsers converts configured directory entries. Entries without an id get one derived
// from their email so it stays stable across restarts.
func SeedUsers(seeds []config.UserSeed) ([]entity.User, error) {
	users := make([]entity.User, 0, len(seeds))
	seen := make(map[string]struct{}, len(seeds))

	for _, seed := range seeds {
		email := util.NormalizeEmail(seed.Email)
		if email == "" {
			return nil, errors.New("seeded user is missing an email")
		}
		if _, dup := seen[email]; dup {
			return nil, errors.Errorf("seeded user email %s is listed twice", email)
		}
		seen[email] = struct{}{}

		id := uuid.NewSHA1(userNamespace, []byte(email))
		if seed.ID != "" {
			parsed, err := uuid.Parse(seed.ID)
			if err != nil {
				return nil, errors.Wrapf(err, "seeded user %s has an invalid id", email)
			}
			id = parsed
		}

		users = append(users, entity.User{
			ID:    id,
			Email: email,
			Name:  seed.Name,
			Role:  entity.ParseRole(seed.Role),
		})
	}

	return users, nil
}
