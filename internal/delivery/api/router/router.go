// Package router contains routing and server setup for the HTTP delivery.
package router

import (
	"otpgate/internal/delivery/api/middleware"
	"otpgate/internal/delivery/api/router/handler"
	"otpgate/internal/domain/entity"

	"github.com/labstack/echo/v4"
	"go.uber.org/fx"
)

type RouterParams struct {
	fx.In

	LoginHandler      *handler.LoginHandler
	SessionHandler    *handler.SessionHandler
	SessionMiddleware *middleware.SessionMiddleware
}

// router holds all the handlers that need to be registered.
type router struct {
	loginHandler      *handler.LoginHandler
	sessionHandler    *handler.SessionHandler
	sessionMiddleware *middleware.SessionMiddleware
}

// NewRouter is the constructor for the Router.
// Fx will inject the required handlers here.
func NewRouter(params RouterParams) *router {
	return &router{
		loginHandler:      params.LoginHandler,
		sessionHandler:    params.SessionHandler,
		sessionMiddleware: params.SessionMiddleware,
	}
}

// RegisterRoutes sets up all the API routes for the application.
func (r *router) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", handler.HealthCheck)

	loginGroup := e.Group("/login")
	{
		loginGroup.POST("/initiate", r.loginHandler.Initiate)
		loginGroup.POST("/resend", r.loginHandler.Resend)
		loginGroup.POST("/verify", r.loginHandler.Verify)
	}

	e.POST("/logout", r.sessionHandler.Logout)
	e.GET("/session/me", r.sessionHandler.Me)

	// Dashboard routes require a verified session credential
	dashboardGroup := e.Group("/dashboard")
	dashboardGroup.Use(r.sessionMiddleware.RequireSession)
	{
		dashboardGroup.GET("/whoami", handler.WhoAmI)
	}

	adminGroup := dashboardGroup.Group("/admin")
	adminGroup.Use(r.sessionMiddleware.RequireRole(entity.RoleAdmin))
	{
		adminGroup.GET("/whoami", handler.WhoAmI)
	}
}
