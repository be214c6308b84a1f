package mail

import (
	"encoding/base64"
	"encoding/json"
	"time"

	"otpgate/internal/domain/service"

	"github.com/pkg/errors"
)

// PushEnvelope is the body Google Pub/Sub posts to push subscriptions.
type PushEnvelope struct {
	Message struct {
		Data        string            `json:"data"`
		Attributes  map[string]string `json:"attributes,omitempty"`
		MessageID   string            `json:"messageId"`
		PublishTime string            `json:"publishTime"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// Attribute keys set on every published message.
const (
	AttributeMessageID = "message_id"
	AttributeRequestID = "request_id"
)

func messageAttributes(msg *service.MailMessage) map[string]string {
	attributes := map[string]string{AttributeMessageID: msg.MessageID}
	if msg.RequestID != "" {
		attributes[AttributeRequestID] = msg.RequestID
	}

	return attributes
}

// NewPushEnvelope wraps msg the way a push subscription would deliver it.
func NewPushEnvelope(msg *service.MailMessage, subscription string, publishedAt time.Time) (*PushEnvelope, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	env := &PushEnvelope{Subscription: subscription}
	env.Message.Data = base64.StdEncoding.EncodeToString(data)
	env.Message.Attributes = messageAttributes(msg)
	env.Message.MessageID = msg.MessageID
	env.Message.PublishTime = publishedAt.UTC().Format(time.RFC3339)

	return env, nil
}

// DecodeMessage extracts the mail message carried by the envelope.
func (e *PushEnvelope) DecodeMessage() (*service.MailMessage, error) {
	data, err := base64.StdEncoding.DecodeString(e.Message.Data)
	if err != nil {
		return nil, errors.Wrap(err, "decode message data")
	}

	var msg service.MailMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, errors.Wrap(err, "parse mail message")
	}

	return &msg, nil
}
