// Package impl contains the application-specific business rules implementations.
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
	"otpgate/internal/util"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/fx"
)

// maxCodeDraws bounds the search for a resend code unlike the previous one.
const maxCodeDraws = 16

//nolint:gochecknoglobals
var emailValidator = validator.New(validator.WithRequiredStructEnabled())

// LoginPolicy holds the limits of the login flow.
type LoginPolicy struct {
	CodeLength     int
	CodeTTL        time.Duration
	SessionTTL     time.Duration
	MaxAttempts    int
	ResendCooldown time.Duration
	MaxResends     int
	StoreTimeout   time.Duration
	MailTimeout    time.Duration
	Retention      time.Duration
}

// NewLoginPolicy reads the limits from configuration.
func NewLoginPolicy(cfg *config.Config) LoginPolicy {
	otp := cfg.Auth.OTP

	return LoginPolicy{
		CodeLength:     otp.Length,
		CodeTTL:        otp.CodeTTL,
		SessionTTL:     otp.SessionTTL,
		MaxAttempts:    otp.MaxAttempts,
		ResendCooldown: otp.ResendCooldown,
		MaxResends:     otp.MaxResends,
		StoreTimeout:   cfg.Store.Timeout,
		MailTimeout:    cfg.Mail.Timeout,
		Retention:      cfg.LoginSession.Retention,
	}
}

// LoginServiceParams holds dependencies for the login service, injected by Fx
type LoginServiceParams struct {
	fx.In

	Policy     LoginPolicy
	Sessions   repository.LoginSessionRepository
	Users      repository.UserRepository
	Codes      service.CodeGenerator
	Dispatcher service.CodeDispatcher
	Signer     service.CredentialSigner
	Router     service.RoleRouter
	Logger     *slog.Logger
}

// loginService implements the LoginUsecase interface.
type loginService struct {
	policy     LoginPolicy
	sessions   repository.LoginSessionRepository
	users      repository.UserRepository
	codes      service.CodeGenerator
	dispatcher service.CodeDispatcher
	signer     service.CredentialSigner
	router     service.RoleRouter
	logger     *slog.Logger
	now        func() time.Time
}

// NewLoginService is the constructor for loginService.
func NewLoginService(params LoginServiceParams) usecase.LoginUsecase {
	return newLoginService(params, time.Now)
}

func newLoginService(params LoginServiceParams, now func() time.Time) *loginService {
	return &loginService{
		policy:     params.Policy,
		sessions:   params.Sessions,
		users:      params.Users,
		codes:      params.Codes,
		dispatcher: params.Dispatcher,
		signer:     params.Signer,
		router:     params.Router,
		logger:     params.Logger,
		now:        now,
	}
}

// log returns a request-scoped logger if available, otherwise falls back to the service's logger.
func (srv *loginService) log(ctx context.Context) *slog.Logger {
	return deliverycontext.GetLoggerOrDefault(ctx, srv.logger)
}

func (srv *loginService) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, srv.policy.StoreTimeout)
}

// InitiateLogin implements usecase.LoginUsecase.
func (srv *loginService) InitiateLogin(ctx context.Context, input usecase.InitiateLoginInput) (*usecase.InitiateLoginOutput, error) {
	email := util.NormalizeEmail(input.Email)
	if err := emailValidator.Var(email, "required,email,max=254"); err != nil {
		return nil, domainerrors.ErrInvalidArgument.WithDetails("a valid email is required")
	}

	code, err := srv.codes.Generate(srv.policy.CodeLength)
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate code")
	}

	now := srv.now()
	session := &entity.LoginSession{
		ID:            uuid.New(),
		Email:         email,
		CodeHash:      util.HashCode(code),
		CodeExpiresAt: now.Add(srv.policy.CodeTTL),
		ExpiresAt:     now.Add(srv.policy.SessionTTL),
		State:         entity.LoginSessionCreated,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	storeCtx, cancel := srv.storeCtx(ctx)
	err = srv.sessions.Create(storeCtx, session)
	cancel()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create login session")
	}

	logger := srv.log(ctx).With(slog.String("login_session_id", session.ID.String()))
	logger.Info("Login session created", slog.String("email", util.MaskEmail(email)))

	output := &usecase.InitiateLoginOutput{SessionID: session.ID}

	if err := srv.deliver(ctx, session, code, input.RequestID); err != nil {
		logger.Warn("Failed to dispatch sign-in code", slog.Any("error", err))

		return output, domainerrors.ErrDispatchFailed
	}
	srv.markSent(ctx, logger, session.ID, now)

	return output, nil
}

// deliver emails the code when the address belongs to a directory user. Unknown addresses
// are skipped silently so the response never reveals whether an account exists.
func (srv *loginService) deliver(ctx context.Context, session *entity.LoginSession, code, requestID string) error {
	storeCtx, cancel := srv.storeCtx(ctx)
	_, err := srv.users.FindByEmail(storeCtx, session.Email)
	cancel()
	if errors.Is(err, repository.ErrUserNotFound) {
		srv.log(ctx).Debug("No directory user for login email, skipping dispatch",
			slog.String("login_session_id", session.ID.String()),
		)

		return nil
	}
	if err != nil {
		return errors.Wrap(err, "failed to look up user")
	}

	mailCtx, cancelMail := context.WithTimeout(ctx, srv.policy.MailTimeout)
	defer cancelMail()

	if requestID == "" {
		requestID = deliverycontext.GetRequestIDFromContext(ctx)
	}

	return srv.dispatcher.DispatchLoginCode(mailCtx, &service.LoginCodeMail{
		RequestID: requestID,
		To:        session.Email,
		Code:      code,
		ExpiresIn: session.CodeExpiresAt.Sub(srv.now()),
	})
}

func (srv *loginService) markSent(ctx context.Context, logger *slog.Logger, id uuid.UUID, at time.Time) {
	storeCtx, cancel := srv.storeCtx(ctx)
	defer cancel()

	// The code is already out; a failure here only leaves the resend cooldown unarmed.
	if err := srv.sessions.MarkSent(storeCtx, id, at); err != nil {
		logger.Error("Failed to record dispatch", slog.Any("error", err))
	}
}

// loadLive fetches a session and maps terminal or expired states to domain errors.
func (srv *loginService) loadLive(ctx context.Context, id uuid.UUID, now time.Time) (*entity.LoginSession, error) {
	storeCtx, cancel := srv.storeCtx(ctx)
	session, err := srv.sessions.FindByID(storeCtx, id)
	cancel()
	if errors.Is(err, repository.ErrLoginSessionNotFound) {
		return nil, domainerrors.ErrLoginSessionNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find login session")
	}

	switch session.EffectiveState(now) {
	case entity.LoginSessionVerified:
		return nil, domainerrors.ErrLoginSessionNotFound
	case entity.LoginSessionExhausted:
		return nil, domainerrors.ErrLoginSessionExhausted
	case entity.LoginSessionExpired:
		return nil, domainerrors.ErrLoginSessionExpired
	}

	return session, nil
}

// VerifyLogin implements usecase.LoginUsecase.
func (srv *loginService) VerifyLogin(ctx context.Context, input usecase.VerifyLoginInput) (*usecase.VerifyLoginOutput, error) {
	now := srv.now()
	logger := srv.log(ctx).With(slog.String("login_session_id", input.SessionID.String()))

	session, err := srv.loadLive(ctx, input.SessionID, now)
	if err != nil {
		return nil, err
	}
	if session.IsCodeExpired(now) {
		return nil, domainerrors.ErrLoginSessionExpired
	}

	submitted := util.HashCode(input.Code)
	if !util.ConstantTimeEqual(submitted, session.CodeHash) {
		return nil, srv.recordMismatch(ctx, logger, session.ID, now)
	}

	storeCtx, cancel := srv.storeCtx(ctx)
	user, err := srv.users.FindByEmail(storeCtx, session.Email)
	cancel()
	if errors.Is(err, repository.ErrUserNotFound) {
		logger.Warn("Matching code for an email with no directory user")

		return nil, domainerrors.ErrUserNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find user")
	}

	storeCtx, cancel = srv.storeCtx(ctx)
	err = srv.sessions.Consume(storeCtx, session.ID, submitted, now)
	cancel()
	if errors.Is(err, repository.ErrLoginSessionNotFound) {
		logger.Info("Login session consumed concurrently")

		return nil, domainerrors.ErrLoginSessionNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to consume login session")
	}

	issuedAt := now.UTC().Truncate(time.Second)
	token, err := srv.signer.Sign(entity.SessionCredential{
		UserID:   user.ID,
		Role:     user.Role,
		IssuedAt: issuedAt,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to sign credential")
	}

	logger.Info("Login verified", slog.String("user_id", user.ID.String()), slog.String("role", user.Role.String()))

	return &usecase.VerifyLoginOutput{
		User:        user,
		Token:       token,
		Destination: srv.router.Route(user.Role),
		ExpiresAt:   issuedAt.Add(srv.signer.TTL()),
	}, nil
}

func (srv *loginService) recordMismatch(ctx context.Context, logger *slog.Logger, id uuid.UUID, now time.Time) error {
	storeCtx, cancel := srv.storeCtx(ctx)
	defer cancel()

	result, err := srv.sessions.RecordFailedAttempt(storeCtx, id, srv.policy.MaxAttempts, now)
	if errors.Is(err, repository.ErrLoginSessionNotFound) {
		// Another request finished the session first; the submitted code is still wrong.
		return domainerrors.ErrCodeMismatch
	}
	if err != nil {
		return errors.Wrap(err, "failed to record failed attempt")
	}

	logger.Info("Wrong sign-in code",
		slog.Int("failed_attempts", result.FailedAttempts),
		slog.String("state", string(result.State)),
	)

	return domainerrors.ErrCodeMismatch
}

// replacementCode draws a code whose hash differs from the current one.
func (srv *loginService) replacementCode(currentHash string) (string, string, error) {
	for range maxCodeDraws {
		code, err := srv.codes.Generate(srv.policy.CodeLength)
		if err != nil {
			return "", "", errors.Wrap(err, "failed to generate code")
		}
		if codeHash := util.HashCode(code); codeHash != currentHash {
			return code, codeHash, nil
		}
	}

	return "", "", errors.Errorf("no distinct code after %d draws", maxCodeDraws)
}

// ResendCode implements usecase.LoginUsecase.
func (srv *loginService) ResendCode(ctx context.Context, input usecase.ResendCodeInput) error {
	now := srv.now()
	logger := srv.log(ctx).With(slog.String("login_session_id", input.SessionID.String()))

	session, err := srv.loadLive(ctx, input.SessionID, now)
	if errors.Is(err, domainerrors.ErrLoginSessionExhausted) {
		return domainerrors.ErrLoginSessionNotFound
	}
	if err != nil {
		return err
	}

	if !session.LastSentAt.IsZero() && now.Sub(session.LastSentAt) < srv.policy.ResendCooldown {
		return domainerrors.ErrResendRateLimited
	}
	if session.ResendCount >= srv.policy.MaxResends {
		return domainerrors.ErrResendRateLimited.WithDetails("resend limit reached")
	}

	code, codeHash, err := srv.replacementCode(session.CodeHash)
	if err != nil {
		return err
	}

	storeCtx, cancel := srv.storeCtx(ctx)
	err = srv.sessions.RotateCode(storeCtx, session.ID, entity.CodeRotation{
		CodeHash:            codeHash,
		CodeExpiresAt:       now.Add(srv.policy.CodeTTL),
		ExpectedResendCount: session.ResendCount,
		RotatedAt:           now,
	})
	cancel()
	switch {
	case errors.Is(err, repository.ErrLoginSessionConflict):
		return domainerrors.ErrResendRateLimited
	case errors.Is(err, repository.ErrLoginSessionNotFound):
		return domainerrors.ErrLoginSessionNotFound
	case err != nil:
		return errors.Wrap(err, "failed to rotate code")
	}

	session.CodeHash = codeHash
	session.CodeExpiresAt = now.Add(srv.policy.CodeTTL)
	if err := srv.deliver(ctx, session, code, input.RequestID); err != nil {
		logger.Warn("Failed to dispatch resent sign-in code", slog.Any("error", err))

		return domainerrors.ErrDispatchFailed
	}
	srv.markSent(ctx, logger, session.ID, now)

	logger.Info("Sign-in code resent", slog.Int("resend_count", session.ResendCount+1))

	return nil
}

// PurgeExpired implements usecase.LoginUsecase.
func (srv *loginService) PurgeExpired(ctx context.Context) (int64, error) {
	storeCtx, cancel := srv.storeCtx(ctx)
	defer cancel()

	deleted, err := srv.sessions.DeleteExpired(storeCtx, srv.now().Add(-srv.policy.Retention))
	if err != nil {
		return 0, errors.Wrap(err, "failed to purge expired login sessions")
	}

	return deleted, nil
}
