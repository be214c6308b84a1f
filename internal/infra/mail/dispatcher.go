package mail

import (
	"context"
	"log/slog"

	deliverycontext "otpgate/internal/delivery/context"
	"otpgate/internal/domain/service"
	"otpgate/internal/util"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

type codeDispatcher struct {
	renderer *Renderer
	sender   service.MailSender
	logger   *slog.Logger
}

// NewCodeDispatcher renders sign-in codes and passes them to sender.
func NewCodeDispatcher(renderer *Renderer, sender service.MailSender, logger *slog.Logger) service.CodeDispatcher {
	return &codeDispatcher{renderer: renderer, sender: sender, logger: logger}
}

func (d *codeDispatcher) DispatchLoginCode(ctx context.Context, mail *service.LoginCodeMail) error {
	msg, err := d.renderer.RenderLoginCode(mail)
	if err != nil {
		return err
	}
	msg.MessageID = uuid.NewString()

	logger := deliverycontext.GetLoggerOrDefault(ctx, d.logger)
	logger.Debug("Dispatching sign-in code",
		slog.String("message_id", msg.MessageID),
		slog.String("to", util.MaskEmail(msg.To)),
	)

	if err := d.sender.Send(ctx, msg); err != nil {
		return errors.Wrapf(err, "send message %s", msg.MessageID)
	}

	return nil
}
