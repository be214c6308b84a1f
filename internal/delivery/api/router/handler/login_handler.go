// Package handler contains the HTTP handlers for the login API.
package handler

import (
	"net/http"

	"otpgate/internal/delivery/api/cookie"
	"otpgate/internal/delivery/api/response"
	deliverycontext "otpgate/internal/delivery/context"
	domainerrors "otpgate/internal/domain/errors"
	"otpgate/internal/usecase"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"go.uber.org/fx"
)

// WarningDispatchFailed tells the browser the session exists but no code went out.
const WarningDispatchFailed = "dispatch_failed"

// LoginHandlerParams holds dependencies for LoginHandler, injected by Fx.
type LoginHandlerParams struct {
	fx.In

	LoginUC usecase.LoginUsecase
	Cookies *cookie.Manager
}

// LoginHandler serves the two-phase email code login.
type LoginHandler struct {
	loginUC usecase.LoginUsecase
	cookies *cookie.Manager
}

// NewLoginHandler is the constructor for LoginHandler
func NewLoginHandler(params LoginHandlerParams) *LoginHandler {
	return &LoginHandler{
		loginUC: params.LoginUC,
		cookies: params.Cookies,
	}
}

// InitiateRequest represents the request body for starting a login
type InitiateRequest struct {
	Email string `json:"email" validate:"required"`
}

// InitiateResponse carries the login session id
type InitiateResponse struct {
	SessionID uuid.UUID `json:"sessionId"`
	Warning   string    `json:"warning,omitempty"`
}

// ResendRequest represents the request body for a fresh code
type ResendRequest struct {
	SessionID string `json:"sessionId" validate:"required"`
}

// ResendResponse acknowledges a resend
type ResendResponse struct {
	OK      bool   `json:"ok"`
	Warning string `json:"warning,omitempty"`
}

// VerifyRequest represents the request body for submitting a code
type VerifyRequest struct {
	SessionID string `json:"sessionId" validate:"required"`
	Code      string `json:"code" validate:"required,max=16"`
}

// VerifyResponse tells the browser where to go after signing in
type VerifyResponse struct {
	OK          bool   `json:"ok"`
	Role        string `json:"role"`
	Destination string `json:"destination"`
}

// Initiate handles POST /login/initiate
func (h *LoginHandler) Initiate(c echo.Context) error {
	var req InitiateRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, domainerrors.ErrInvalidArgument.ErrorCode(), "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	output, err := h.loginUC.InitiateLogin(c.Request().Context(), usecase.InitiateLoginInput{
		Email:     req.Email,
		RequestID: deliverycontext.GetRequestID(c),
	})
	if errors.Is(err, domainerrors.ErrDispatchFailed) && output != nil {
		return response.Success(c, http.StatusAccepted, InitiateResponse{
			SessionID: output.SessionID,
			Warning:   WarningDispatchFailed,
		})
	}
	if err != nil {
		return response.HandleAppError(c, err)
	}

	return response.Success(c, http.StatusOK, InitiateResponse{SessionID: output.SessionID})
}

// Resend handles POST /login/resend. Unknown sessions are reported as 401 "invalid session".
func (h *LoginHandler) Resend(c echo.Context) error {
	var req ResendRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, domainerrors.ErrInvalidArgument.ErrorCode(), "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	sessionID, err := uuid.Parse(req.SessionID)
	if err != nil {
		return invalidSession(c)
	}

	err = h.loginUC.ResendCode(c.Request().Context(), usecase.ResendCodeInput{
		SessionID: sessionID,
		RequestID: deliverycontext.GetRequestID(c),
	})
	switch {
	case err == nil:
		return response.OK(c)
	case errors.Is(err, domainerrors.ErrDispatchFailed):
		return response.Success(c, http.StatusAccepted, ResendResponse{OK: true, Warning: WarningDispatchFailed})
	case errors.Is(err, domainerrors.ErrLoginSessionNotFound):
		return invalidSession(c)
	default:
		return response.HandleAppError(c, err)
	}
}

// Verify handles POST /login/verify and sets the session cookie on success.
func (h *LoginHandler) Verify(c echo.Context) error {
	var req VerifyRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, domainerrors.ErrInvalidArgument.ErrorCode(), "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	sessionID, err := uuid.Parse(req.SessionID)
	if err != nil {
		return domainerrors.ErrLoginSessionNotFound
	}

	output, err := h.loginUC.VerifyLogin(c.Request().Context(), usecase.VerifyLoginInput{
		SessionID: sessionID,
		Code:      req.Code,
	})
	if err != nil {
		return response.HandleAppError(c, err)
	}

	c.SetCookie(h.cookies.Issue(output.Token, output.ExpiresAt))

	return response.Success(c, http.StatusOK, VerifyResponse{
		OK:          true,
		Role:        output.User.Role.String(),
		Destination: output.Destination,
	})
}

func invalidSession(c echo.Context) error {
	return response.Unauthorized(c, domainerrors.ErrLoginSessionNotFound.ErrorCode(), domainerrors.ErrLoginSessionNotFound.Message())
}
