package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/avdeyev/biblio-programs/internal/repository"
	"github.com/avdeyev/biblio-programs/internal/service"
)

// RegistrationHandler exposes the patron self-service endpoints:
// register for an event, cancel, change reminder preferences and read
// back one's own registrations and history.
type RegistrationHandler struct {
	Svc *service.RegistrationService
}

func NewRegistrationHandler(svc *service.RegistrationService) *RegistrationHandler {
	if svc == nil {
		panic("nil service passed to NewRegistrationHandler")
	}
	return &RegistrationHandler{Svc: svc}
}

// ----- DTOs -----

// eventDetails carries the event facts the external catalog knows:
// when the event happens and how many seats it has (absent = unlimited).
type eventDetails struct {
	EventDate string `json:"event_date"`
	Capacity  *int   `json:"capacity"`
}

type registerBody struct {
	eventDetails
	ReminderChannel string `json:"reminder_channel"`
	ReminderOptIn   *bool  `json:"reminder_opt_in"`
}

type reminderBody struct {
	EventDate       string `json:"event_date"`
	ReminderChannel string `json:"reminder_channel"`
	ReminderOptIn   *bool  `json:"reminder_opt_in"`
}

// writeServiceError maps service/repository sentinels onto HTTP codes.
func writeServiceError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, service.ErrInvalidArgument):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	case errors.Is(err, repository.ErrLockTimeout):
		// The per-event lock could not be acquired in time; the client
		// may retry the identical request.
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "event is busy, retry shortly"})
	default:
		c.Logger().Errorf("registration: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
}

// Register handles POST /v1/events/:id/register for the caller's own
// patron id. Re-registering while already active is a safe no-op that
// returns the current state.
func (h *RegistrationHandler) Register(c echo.Context) error {
	pid, err := getPatronID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var body registerBody
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 15*time.Second)
	defer cancel()

	res, err := h.Svc.Register(ctx, service.RegisterParams{
		EventID:         c.Param("id"),
		PatronID:        pid,
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

// Cancel handles POST /v1/events/:id/cancel. Canceling an absent or
// already-canceled registration returns 200 with canceled=false.
func (h *RegistrationHandler) Cancel(c echo.Context) error {
	pid, err := getPatronID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var body eventDetails
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 15*time.Second)
	defer cancel()

	res, err := h.Svc.Cancel(ctx, service.CancelParams{
		EventID:   c.Param("id"),
		PatronID:  pid,
		EventDate: body.EventDate,
		Capacity:  body.Capacity,
	})
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// UpdateReminder handles PATCH /v1/events/:id/reminder. When the patron
// holds no active registration for the event the response is 200 with
// updated=false rather than an error.
func (h *RegistrationHandler) UpdateReminder(c echo.Context) error {
	pid, err := getPatronID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var body reminderBody
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	reg, err := h.Svc.UpdateReminderPreference(ctx, service.ReminderParams{
		EventID:         c.Param("id"),
		PatronID:        pid,
		EventDate:       body.EventDate,
		ReminderChannel: body.ReminderChannel,
		ReminderOptIn:   body.ReminderOptIn,
	})
	if err != nil {
		return writeServiceError(c, err)
	}
	if reg == nil {
		return c.JSON(http.StatusOK, echo.Map{"updated": false})
	}
	return c.JSON(http.StatusOK, echo.Map{"updated": true, "registration": reg})
}

// MyRegistrations handles GET /v1/my-registrations. Optional query
// params: event_id (repeatable) to filter, include_canceled=true to
// include canceled rows.
func (h *RegistrationHandler) MyRegistrations(c echo.Context) error {
	pid, err := getPatronID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	includeCanceled := strings.EqualFold(c.QueryParam("include_canceled"), "true")
	eventIDs := queryEventIDs(c)

	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	regs, err := h.Svc.ListRegistrations(ctx, pid, eventIDs, includeCanceled)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"registrations": regs})
}

// MyHistory handles GET /v1/my-history, newest entries first.
func (h *RegistrationHandler) MyHistory(c echo.Context) error {
	pid, err := getPatronID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))

	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	entries, err := h.Svc.PatronHistory(ctx, pid, limit)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"history": entries})
}
