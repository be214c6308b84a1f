// Package handler contains the mail worker's push endpoint.
package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"otpgate/config"
	deliverycontext "otpgate/internal/delivery/context"
	"otpgate/internal/domain/service"
	"otpgate/internal/infra/mail"
	"otpgate/internal/util"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"go.uber.org/fx"
	"google.golang.org/api/idtoken"
)

// retryableError wraps an error to indicate it should trigger a Pub/Sub retry
type retryableError struct {
	err error
}

func (e *retryableError) Error() string {
	return fmt.Sprintf("retryable: %v", e.err)
}

func (e *retryableError) Unwrap() error {
	return e.err
}

// isRetryableError checks if an error is retryable
func isRetryableError(err error) bool {
	var re *retryableError

	return errors.As(err, &re)
}

// PushHandler delivers mail messages pushed by the login service.
type PushHandler struct {
	verifyPushAuth bool
	verifyToken    func(*http.Request) error
	logger         *slog.Logger
	transport      service.MailTransport
}

// PushHandlerParams holds dependencies for the PushHandler
type PushHandlerParams struct {
	fx.In

	Config    *config.Config
	Logger    *slog.Logger
	Transport service.MailTransport
}

// NewPushHandler creates a new Pub/Sub push handler
func NewPushHandler(params PushHandlerParams) *PushHandler {
	return &PushHandler{
		verifyPushAuth: params.Config.Worker.VerifyPushAuth,
		verifyToken:    verifyPubSubToken,
		logger:         params.Logger,
		transport:      params.Transport,
	}
}

// HandlePush answers 200 when the message is delivered or can never be, and 503
// when the push should be retried.
func (h *PushHandler) HandlePush(c echo.Context) error {
	ctx := c.Request().Context()

	if h.verifyPushAuth {
		if err := h.verifyToken(c.Request()); err != nil {
			h.logger.Warn("[MailWorker] Invalid Pub/Sub token", slog.Any("error", err))

			return c.NoContent(http.StatusUnauthorized)
		}
	}

	var envelope mail.PushEnvelope
	if err := c.Bind(&envelope); err != nil {
		h.logger.Error("[MailWorker] Failed to parse push message", slog.Any("error", err))

		return c.NoContent(http.StatusBadRequest)
	}

	msg, err := envelope.DecodeMessage()
	if err != nil {
		h.logger.Error("[MailWorker] Failed to decode mail message", slog.Any("error", err))

		return c.NoContent(http.StatusBadRequest)
	}

	requestID := extractRequestID(ctx, &envelope, msg)
	reqLogger := h.logger.With(slog.String("request_id", requestID))
	ctx = deliverycontext.WithRequestID(ctx, requestID)
	ctx = deliverycontext.WithLogger(ctx, reqLogger)

	reqLogger.Info("[MailWorker] Processing mail message",
		slog.String("message_id", msg.MessageID),
		slog.String("to", util.MaskEmail(msg.To)),
	)

	if err := h.deliver(ctx, msg); err != nil {
		reqLogger.Error("[MailWorker] Failed to deliver mail message",
			slog.String("message_id", msg.MessageID),
			slog.Any("error", err),
			slog.Bool("retryable", isRetryableError(err)),
		)
		if isRetryableError(err) {
			return c.NoContent(http.StatusServiceUnavailable)
		}

		return c.NoContent(http.StatusOK)
	}

	return c.NoContent(http.StatusOK)
}

func (h *PushHandler) deliver(ctx context.Context, msg *service.MailMessage) error {
	if msg.To == "" || msg.MessageID == "" {
		return errors.New("mail message is missing recipient or id")
	}

	if err := h.transport.Deliver(ctx, msg); err != nil {
		if errors.Is(err, mail.ErrPermanentDelivery) {
			return err
		}

		return &retryableError{err: err}
	}

	return nil
}

// extractRequestID prefers message attributes, then the payload, then the request header.
func extractRequestID(ctx context.Context, envelope *mail.PushEnvelope, msg *service.MailMessage) string {
	if requestID := envelope.Message.Attributes[mail.AttributeRequestID]; requestID != "" {
		return requestID
	}
	if msg.RequestID != "" {
		return msg.RequestID
	}
	if requestID := deliverycontext.GetRequestIDFromContext(ctx); requestID != "" {
		return requestID
	}

	return uuid.New().String()
}

// verifyPubSubToken verifies the JWT token from Google Pub/Sub push requests
// Reference: https://cloud.google.com/pubsub/docs/push#authenticating_standard_push_requests
func verifyPubSubToken(req *http.Request) error {
	authHeader := req.Header.Get("Authorization")
	if authHeader == "" {
		return errors.New("missing authorization header")
	}

	const bearerPrefix = "Bearer "
	if !strings.HasPrefix(authHeader, bearerPrefix) {
		return errors.New("invalid authorization header format")
	}
	token := strings.TrimPrefix(authHeader, bearerPrefix)

	// The audience is the URL of this endpoint
	scheme := "https"
	if req.TLS == nil {
		scheme = "http"
	}
	audience := fmt.Sprintf("%s://%s%s", scheme, req.Host, req.URL.Path)

	payload, err := idtoken.Validate(req.Context(), token, audience)
	if err != nil {
		return errors.Wrap(err, "failed to validate token")
	}

	if payload.Issuer != "accounts.google.com" && payload.Issuer != "https://accounts.google.com" {
		return errors.Errorf("invalid issuer: %s", payload.Issuer)
	}

	if emailVerified, ok := payload.Claims["email_verified"].(bool); ok && !emailVerified {
		return errors.New("email not verified")
	}

	return nil
}
