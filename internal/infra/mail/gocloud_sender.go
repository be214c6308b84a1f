package mail

import (
	"context"
	"encoding/json"
	"log/slog"

	"otpgate/internal/domain/service"

	"github.com/pkg/errors"
	"gocloud.dev/pubsub"
	_ "gocloud.dev/pubsub/gcppubsub"
	_ "gocloud.dev/pubsub/mempubsub"
)

// gocloudSender publishes to any gocloud.dev topic URL (mem://, gcppubsub://).
type gocloudSender struct {
	topic  *pubsub.Topic
	logger *slog.Logger
}

// NewGoCloudSender opens the topic at topicURL.
func NewGoCloudSender(ctx context.Context, topicURL string, logger *slog.Logger) (service.MailSender, error) {
	topic, err := pubsub.OpenTopic(ctx, topicURL)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open topic %s", topicURL)
	}

	return &gocloudSender{topic: topic, logger: logger}, nil
}

func (s *gocloudSender) Send(ctx context.Context, msg *service.MailMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return errors.WithStack(err)
	}

	if err := s.topic.Send(ctx, &pubsub.Message{
		Body:     data,
		Metadata: messageAttributes(msg),
	}); err != nil {
		return errors.WithStack(err)
	}

	s.logger.DebugContext(ctx, "[GoCloudPubSub] Message published", slog.String("message_id", msg.MessageID))

	return nil
}

func (s *gocloudSender) Close() error {
	return errors.WithStack(s.topic.Shutdown(context.Background()))
}
