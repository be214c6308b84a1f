package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"otpgate/config"
	"otpgate/internal/domain/constants"
	"otpgate/internal/domain/service"
	"otpgate/internal/util"

	"github.com/pkg/errors"
)

// logTransport is the worker's development delivery: it prints the message.
type logTransport struct {
	logger *slog.Logger
}

func (t *logTransport) Deliver(ctx context.Context, msg *service.MailMessage) error {
	t.logger.InfoContext(ctx, "[MailWorker] Delivering message to log",
		slog.String("message_id", msg.MessageID),
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject),
		slog.String("text", msg.Text),
	)

	return nil
}

// webhookTransport posts the rendered message as JSON to an email provider webhook.
type webhookTransport struct {
	url        string
	httpClient *http.Client
	logger     *slog.Logger
}

// ErrPermanentDelivery marks a delivery failure that retrying cannot fix.
var ErrPermanentDelivery = errors.New("permanent delivery failure")

func (t *webhookTransport) Deliver(ctx context.Context, msg *service.MailMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return errors.WithStack(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return errors.WithStack(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", msg.MessageID)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return errors.WithStack(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
	case resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests:
		return errors.Wrapf(ErrPermanentDelivery, "webhook returned status %d", resp.StatusCode)
	default:
		return errors.Errorf("webhook returned status %d", resp.StatusCode)
	}

	t.logger.InfoContext(ctx, "[MailWorker] Message delivered",
		slog.String("message_id", msg.MessageID),
		slog.String("to", util.MaskEmail(msg.To)),
	)

	return nil
}

// NewMailTransport selects the worker's final delivery hop.
func NewMailTransport(cfg *config.Config, logger *slog.Logger) (service.MailTransport, error) {
	switch cfg.Worker.Transport {
	case constants.MailTransportLog:
		return &logTransport{logger: logger}, nil

	case constants.MailTransportWebhook:
		if cfg.Worker.WebhookURL == "" {
			return nil, errors.New("webhook URL is required for webhook transport")
		}

		return &webhookTransport{
			url:        cfg.Worker.WebhookURL,
			httpClient: &http.Client{Timeout: timeoutOrDefault(cfg.Mail.Timeout)},
			logger:     logger,
		}, nil

	default:
		return nil, errors.Errorf("unknown mail transport: %s", cfg.Worker.Transport)
	}
}

func timeoutOrDefault(d time.Duration) time.Duration {
	if d <= 0 {
		return 10 * time.Second
	}

	return d
}
