package mail

import (
	"context"
	"log/slog"

	"otpgate/config"
	"otpgate/internal/domain/constants"
	"otpgate/internal/domain/service"

	"github.com/pkg/errors"
	"go.uber.org/fx"
)

// SenderParams holds dependencies for the MailSender, injected by Fx
type SenderParams struct {
	fx.In

	Lc     fx.Lifecycle
	Ctx    context.Context
	Config *config.Config
	Logger *slog.Logger
}

// NewMailSender creates a MailSender based on configuration
func NewMailSender(params SenderParams) (service.MailSender, error) {
	sender, err := newSender(params.Ctx, &params.Config.Mail, params.Logger)
	if err != nil {
		return nil, err
	}

	params.Lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			params.Logger.Info("Closing MailSender")

			return sender.Close()
		},
	})

	return sender, nil
}

func newSender(ctx context.Context, cfg *config.MailConfig, logger *slog.Logger) (service.MailSender, error) {
	switch cfg.Provider {
	case constants.MailProviderLog:
		logger.Warn("Using log mail sender, codes are printed instead of delivered")

		return NewLogSender(logger), nil

	case constants.MailProviderLocal:
		if cfg.LocalEndpoint == "" {
			return nil, errors.New("local endpoint is required for local mail provider")
		}
		logger.Info("Using local HTTP mail sender", slog.String("endpoint", cfg.LocalEndpoint))

		return NewLocalHTTPSender(cfg.LocalEndpoint, cfg.Timeout, logger), nil

	case constants.MailProviderGoogle:
		if cfg.ProjectID == "" {
			return nil, errors.New("project ID is required for google mail provider")
		}
		if cfg.TopicID == "" {
			return nil, errors.New("topic ID is required for google mail provider")
		}

		return NewGooglePubSubSender(ctx, GoogleOptions{
			ProjectID:       cfg.ProjectID,
			TopicID:         cfg.TopicID,
			CredentialsFile: cfg.CredentialsFile,
			Endpoint:        cfg.Endpoint,
		}, logger)

	case constants.MailProviderGoCloud:
		if cfg.TopicURL == "" {
			return nil, errors.New("topic URL is required for gocloud mail provider")
		}
		logger.Info("Using gocloud mail sender", slog.String("topic_url", cfg.TopicURL))

		return NewGoCloudSender(ctx, cfg.TopicURL, logger)

	default:
		return nil, errors.Errorf("unknown mail provider: %s", cfg.Provider)
	}
}

// NewRendererFromConfig builds the message renderer from mail settings.
func NewRendererFromConfig(cfg *config.Config) *Renderer {
	return NewRenderer(cfg.Mail.From, cfg.Mail.Subject, cfg.Mail.ProductName)
}

// Module provides the outbound mail FX module
//
//nolint:gochecknoglobals
var Module = fx.Options(
	fx.Provide(
		NewMailSender,
		NewRendererFromConfig,
		NewCodeDispatcher,
	),
)
