package middleware

import (
	"otpgate/internal/delivery/api/cookie"
	deliverycontext "otpgate/internal/delivery/context"
	"otpgate/internal/domain/entity"
	domainerrors "otpgate/internal/domain/errors"
	"otpgate/internal/usecase"

	"github.com/labstack/echo/v4"
)

// SessionMiddleware guards routes that require a signed-in user.
type SessionMiddleware struct {
	sessions usecase.SessionUsecase
	cookies  *cookie.Manager
}

// NewSessionMiddleware is the constructor for SessionMiddleware.
func NewSessionMiddleware(sessions usecase.SessionUsecase, cookies *cookie.Manager) *SessionMiddleware {
	return &SessionMiddleware{sessions: sessions, cookies: cookies}
}

// RequireSession verifies the session cookie and stores the credential on the context.
func (m *SessionMiddleware) RequireSession(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		credential, err := m.sessions.Authenticate(c.Request().Context(), m.cookies.Token(c.Request()))
		if err != nil {
			return err
		}

		deliverycontext.SetCredential(c, credential)

		return next(c)
	}
}

// RequireRole rejects credentials whose role differs from role.
// It must be used AFTER RequireSession.
func (m *SessionMiddleware) RequireRole(role entity.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			credential, ok := deliverycontext.GetCredential(c)
			if !ok {
				return domainerrors.ErrUnauthenticated
			}
			if credential.Role != role {
				return domainerrors.ErrForbidden.WithDetails("requires role " + role.String())
			}

			return next(c)
		}
	}
}
