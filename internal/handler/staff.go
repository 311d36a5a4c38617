package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/avdeyev/biblio-programs/internal/service"
)

// StaffHandler exposes the desk-side console: registering or canceling
// on a patron's behalf and reading event rosters, counts and history.
type StaffHandler struct {
	Svc *service.RegistrationService
}

func NewStaffHandler(svc *service.RegistrationService) *StaffHandler {
	if svc == nil {
		panic("nil service passed to NewStaffHandler")
	}
	return &StaffHandler{Svc: svc}
}

type staffRegisterBody struct {
	PatronID        int64  `json:"patron_id"`
	EventDate       string `json:"event_date"`
	Capacity        *int   `json:"capacity"`
	ReminderChannel string `json:"reminder_channel"`
	ReminderOptIn   *bool  `json:"reminder_opt_in"`
}

type staffCancelBody struct {
	PatronID  int64  `json:"patron_id"`
	EventDate string `json:"event_date"`
	Capacity  *int   `json:"capacity"`
}

// Register handles POST /v1/staff/events/:id/register on behalf of the
// patron named in the body. Same semantics as patron self-registration.
func (h *StaffHandler) Register(c echo.Context) error {
	var body staffRegisterBody
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 15*time.Second)
	defer cancel()

	res, err := h.Svc.Register(ctx, service.RegisterParams{
		EventID:         c.Param("id"),
		PatronID:        body.PatronID,
		EventDate:       body.EventDate,
		Capacity:        body.Capacity,
		ReminderChannel: body.ReminderChannel,
		ReminderOptIn:   body.ReminderOptIn,
	})
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// Cancel handles POST /v1/staff/events/:id/cancel on a patron's behalf.
func (h *StaffHandler) Cancel(c echo.Context) error {
	var body staffCancelBody
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 15*time.Second)
	defer cancel()

	res, err := h.Svc.Cancel(ctx, service.CancelParams{
		EventID:   c.Param("id"),
		PatronID:  body.PatronID,
		EventDate: body.EventDate,
		Capacity:  body.Capacity,
	})
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// EventCounts handles GET /v1/staff/events/counts?event_id=a&event_id=b.
// Every requested id appears in the response, zero-filled when the
// event has no rows.
func (h *StaffHandler) EventCounts(c echo.Context) error {
	eventIDs := queryEventIDs(c)
	if len(eventIDs) == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "at least one event_id is required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	counts, err := h.Svc.EventCounts(ctx, eventIDs)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"counts": counts})
}

// EventRegistrations handles GET /v1/staff/events/:id/registrations.
// Registered rows come first, then waitlisted by position; pass
// include_canceled=true to see canceled rows too.
func (h *StaffHandler) EventRegistrations(c echo.Context) error {
	includeCanceled := strings.EqualFold(c.QueryParam("include_canceled"), "true")

	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	regs, err := h.Svc.ListEventRegistrations(ctx, c.Param("id"), includeCanceled)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"registrations": regs})
}

// EventHistory handles GET /v1/staff/events/:id/history, newest first.
func (h *StaffHandler) EventHistory(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))

	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	entries, err := h.Svc.EventHistory(ctx, c.Param("id"), limit)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"history": entries})
}
