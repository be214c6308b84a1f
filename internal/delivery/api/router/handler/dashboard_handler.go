package handler

import (
	"net/http"

	"otpgate/internal/delivery/api/response"
	deliverycontext "otpgate/internal/delivery/context"
	domainerrors "otpgate/internal/domain/errors"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// WhoAmIResponse echoes the verified credential.
type WhoAmIResponse struct {
	UserID uuid.UUID `json:"userId"`
	Role   string    `json:"role"`
}

// WhoAmI handles the protected dashboard probes. It must run behind RequireSession.
func WhoAmI(c echo.Context) error {
	credential, ok := deliverycontext.GetCredential(c)
	if !ok {
		return domainerrors.ErrUnauthenticated
	}

	return response.Success(c, http.StatusOK, WhoAmIResponse{
		UserID: credential.UserID,
		Role:   credential.Role.String(),
	})
}

// HealthCheck is a simple handler to check if the service is up.
func HealthCheck(c echo.Context) error {
	return response.Success(c, http.StatusOK, map[string]string{"status": "ok"})
}
