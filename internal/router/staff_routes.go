package router

import (
	"github.com/labstack/echo/v4"

	"github.com/avdeyev/biblio-programs/internal/handler"
	"github.com/avdeyev/biblio-programs/internal/middleware"
	"github.com/avdeyev/biblio-programs/internal/model"
)

// RegisterStaff registers the desk console under /v1/staff. All routes
// require the STAFF role. Read endpoints sit behind the Redis response
// cache; register/cancel go through the rate limiter like the patron
// routes.
func RegisterStaff(e *echo.Echo, h *handler.StaffHandler, jwtSecret string, limiter, cache echo.MiddlewareFunc) {
	g := e.Group(
		"/v1/staff",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleStaff),
	)

	g.POST("/events/:id/register", h.Register, limiter)
	g.POST("/events/:id/cancel", h.Cancel, limiter)

	g.GET("/events/counts", h.EventCounts, cache)
	g.GET("/events/:id/registrations", h.EventRegistrations, cache)
	g.GET("/events/:id/history", h.EventHistory, cache)
}
