package impl

import (
	"context"
	"log/slog"
	"time"

	"otpgate/config"
	deliverycontext "otpgate/internal/delivery/context"
	"otpgate/internal/domain/entity"
	domainerrors "otpgate/internal/domain/errors"
	"otpgate/internal/domain/repository"
	"otpgate/internal/domain/service"
	"otpgate/internal/usecase"

	"github.com/pkg/errors"
)

// sessionService implements the SessionUsecase interface.
type sessionService struct {
	signer       service.CredentialSigner
	users        repository.UserRepository
	storeTimeout time.Duration
	logger       *slog.Logger
}

// NewSessionService is the constructor for sessionService.
func NewSessionService(
	cfg *config.Config,
	signer service.CredentialSigner,
	users repository.UserRepository,
	logger *slog.Logger,
) usecase.SessionUsecase {
	return &sessionService{
		signer:       signer,
		users:        users,
		storeTimeout: cfg.Store.Timeout,
		logger:       logger,
	}
}

// log returns a request-scoped logger if available, otherwise falls back to the service's logger.
func (srv *sessionService) log(ctx context.Context) *slog.Logger {
	return deliverycontext.GetLoggerOrDefault(ctx, srv.logger)
}

// Authenticate implements usecase.SessionUsecase.
func (srv *sessionService) Authenticate(_ context.Context, token string) (*entity.SessionCredential, error) {
	if token == "" {
		return nil, domainerrors.ErrUnauthenticated
	}

	return srv.signer.Verify(token)
}

// CurrentUser implements usecase.SessionUsecase.
func (srv *sessionService) CurrentUser(ctx context.Context, token string) (*entity.User, error) {
	credential, err := srv.Authenticate(ctx, token)
	if err != nil {
		if !errors.Is(err, domainerrors.ErrUnauthenticated) {
			srv.log(ctx).Debug("Ignoring unusable session credential", slog.Any("error", err))
		}

		return nil, nil
	}

	storeCtx, cancel := context.WithTimeout(ctx, srv.storeTimeout)
	defer cancel()

	user, err := srv.users.FindByID(storeCtx, credential.UserID)
	if errors.Is(err, repository.ErrUserNotFound) {
		srv.log(ctx).Info("Session credential names an unknown user", slog.String("user_id", credential.UserID.String()))

		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find user")
	}

	return user, nil
}
