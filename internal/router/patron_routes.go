package router

import (
	"github.com/labstack/echo/v4"

	"github.com/avdeyev/biblio-programs/internal/handler"
	"github.com/avdeyev/biblio-programs/internal/middleware"
	"github.com/avdeyev/biblio-programs/internal/model"
)

// RegisterPatron registers the self-service endpoints under /v1. All
// routes require a valid JWT; mutating routes additionally pass through
// the Redis token bucket so a stuck client cannot hammer the per-event
// lock. Staff accounts may use these routes for their own
// registrations too.
func RegisterPatron(e *echo.Echo, h *handler.RegistrationHandler, jwtSecret string, limiter echo.MiddlewareFunc) {
	g := e.Group(
		"/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RolePatron, model.RoleStaff),
	)

	g.POST("/events/:id/register", h.Register, limiter)
	g.POST("/events/:id/cancel", h.Cancel, limiter)
	g.PATCH("/events/:id/reminder", h.UpdateReminder, limiter)

	g.GET("/my-registrations", h.MyRegistrations)
	g.GET("/my-history", h.MyHistory)
}
