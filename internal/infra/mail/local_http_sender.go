package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"otpgate/internal/domain/service"

	"github.com/pkg/errors"
)

const localSubscription = "projects/local/subscriptions/login-code-mail"

// localHTTPSender posts push-format envelopes straight to the mail worker, standing in for
// a Pub/Sub push subscription during development.
type localHTTPSender struct {
	endpoint   string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewLocalHTTPSender creates a sender posting to endpoint.
func NewLocalHTTPSender(endpoint string, timeout time.Duration, logger *slog.Logger) service.MailSender {
	return &localHTTPSender{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

func (s *localHTTPSender) Send(ctx context.Context, msg *service.MailMessage) error {
	env, err := NewPushEnvelope(msg, localSubscription, time.Now())
	if err != nil {
		return err
	}
	body, err := json.Marshal(env)
	if err != nil {
		return errors.WithStack(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return errors.WithStack(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if msg.RequestID != "" {
		req.Header.Set("X-Request-Id", msg.RequestID)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return errors.WithStack(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.Errorf("mail worker returned non-success status: %d", resp.StatusCode)
	}

	s.logger.DebugContext(ctx, "[LocalMail] Message pushed",
		slog.String("endpoint", s.endpoint),
		slog.String("message_id", msg.MessageID),
	)

	return nil
}

func (s *localHTTPSender) Close() error {
	s.httpClient.CloseIdleConnections()

	return nil
}
