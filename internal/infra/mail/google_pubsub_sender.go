package mail

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"otpgate/internal/domain/service"

	"cloud.google.com/go/pubsub/v2"
	pubsubpb "cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"github.com/pkg/errors"
	"google.golang.org/api/option"
)

// GoogleOptions configures the Google Pub/Sub sender.
type GoogleOptions struct {
	ProjectID       string
	TopicID         string
	CredentialsFile string
	Endpoint        string
}

func (o GoogleOptions) clientOptions() []option.ClientOption {
	var opts []option.ClientOption
	if o.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(o.CredentialsFile))
	}
	if o.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(o.Endpoint))
	}

	return opts
}

// googlePubSubSender publishes messages to a topic consumed by the mail worker.
type googlePubSubSender struct {
	client    *pubsub.Client
	publisher *pubsub.Publisher
	logger    *slog.Logger
}

// NewGooglePubSubSender connects to Pub/Sub and checks the topic exists.
func NewGooglePubSubSender(ctx context.Context, opts GoogleOptions, logger *slog.Logger) (service.MailSender, error) {
	client, err := pubsub.NewClient(ctx, opts.ProjectID, opts.clientOptions()...)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	topicPath := fmt.Sprintf("projects/%s/topics/%s", opts.ProjectID, opts.TopicID)
	if _, err := client.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: topicPath}); err != nil {
		client.Close()

		return nil, errors.Wrapf(err, "failed to get topic %s", opts.TopicID)
	}

	logger.Info("Google Pub/Sub mail sender initialized",
		slog.String("project_id", opts.ProjectID),
		slog.String("topic_id", opts.TopicID),
	)

	return &googlePubSubSender{
		client:    client,
		publisher: client.Publisher(opts.TopicID),
		logger:    logger,
	}, nil
}

func (s *googlePubSubSender) Send(ctx context.Context, msg *service.MailMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return errors.WithStack(err)
	}

	result := s.publisher.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: messageAttributes(msg),
	})

	serverID, err := result.Get(ctx)
	if err != nil {
		return errors.WithStack(err)
	}

	s.logger.DebugContext(ctx, "[GooglePubSub] Message published",
		slog.String("message_id", msg.MessageID),
		slog.String("server_id", serverID),
	)

	return nil
}

func (s *googlePubSubSender) Close() error {
	if s.publisher != nil {
		s.publisher.Stop()
	}
	if s.client != nil {
		return errors.WithStack(s.client.Close())
	}

	return nil
}
