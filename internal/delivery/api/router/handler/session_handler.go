package handler

import (
	"net/http"

	"otpgate/internal/delivery/api/cookie"
	"otpgate/internal/delivery/api/response"
	"otpgate/internal/domain/entity"
	"otpgate/internal/usecase"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

// SessionHandler exposes the signed-in state to the browser.
type SessionHandler struct {
	sessionUC usecase.SessionUsecase
	cookies   *cookie.Manager
}

// NewSessionHandler is the constructor for SessionHandler
func NewSessionHandler(sessionUC usecase.SessionUsecase, cookies *cookie.Manager) *SessionHandler {
	return &SessionHandler{sessionUC: sessionUC, cookies: cookies}
}

// MeResponse holds the current user, or null when signed out.
type MeResponse struct {
	User *entity.UserView `json:"user"`
}

// Me handles GET /session/me
func (h *SessionHandler) Me(c echo.Context) error {
	user, err := h.sessionUC.CurrentUser(c.Request().Context(), h.cookies.Token(c.Request()))
	if err != nil {
		return errors.WithStack(err)
	}

	return response.Success(c, http.StatusOK, MeResponse{User: user.View()})
}

// Logout handles POST /logout. It always succeeds.
func (h *SessionHandler) Logout(c echo.Context) error {
	c.SetCookie(h.cookies.Clear())

	return response.OK(c)
}
