package service

import (
	"context"
	"time"
)

// MailMessage is a rendered email handed to the outbound transport.
type MailMessage struct {
	RequestID string `json:"request_id,omitempty"` // For distributed tracing
	MessageID string `json:"message_id"`
	To        string `json:"to"`
	From      string `json:"from,omitempty"`
	Subject   string `json:"subject"`
	Text      string `json:"text"`
	HTML      string `json:"html,omitempty"`
}

// LoginCodeMail is the input for a verification code email.
type LoginCodeMail struct {
	RequestID string
	To        string
	Code      string
	ExpiresIn time.Duration
}

// CodeDispatcher hands a verification code to the email collaborator.
type CodeDispatcher interface {
	DispatchLoginCode(ctx context.Context, mail *LoginCodeMail) error
}

// MailSender publishes rendered messages to whatever carries them to inboxes.
type MailSender interface {
	Send(ctx context.Context, msg *MailMessage) error

	// Close releases any resources held by the sender
	Close() error
}

// MailTransport is the final hop used by the mail worker.
type MailTransport interface {
	Deliver(ctx context.Context, msg *MailMessage) error
}
