package mail

import (
	"context"
	"log/slog"

	"otpgate/internal/domain/service"
)

// logSender writes messages to the log instead of delivering them. Development only.
type logSender struct {
	logger *slog.Logger
}

// NewLogSender creates a sender that prints every message, code included.
func NewLogSender(logger *slog.Logger) service.MailSender {
	return &logSender{logger: logger}
}

func (s *logSender) Send(ctx context.Context, msg *service.MailMessage) error {
	s.logger.InfoContext(ctx, "[LogMail] Message not delivered, printing instead",
		slog.String("message_id", msg.MessageID),
		slog.String("request_id", msg.RequestID),
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject),
		slog.String("text", msg.Text),
	)

	return nil
}

func (s *logSender) Close() error {
	return nil
}
