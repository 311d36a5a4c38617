package service

import (
	"strings"
	"time"

	"github.com/avdeyev/biblio-programs/internal/model"
)

// Reminder timing: 09:00 local time, one calendar day before the
// event.
const (
	reminderLeadDays = 1
	reminderHour     = 9
)

// ComputeReminderSchedule returns the instant a reminder should be sent
// for an event on eventDate, or nil when no reminder applies:
// the patron opted out, the channel is NONE, or the send window has
// already passed (reminders are never sent retroactively).
//
// The schedule must be recomputed, never carried over, on every
// status, channel or opt-in change, including waitlist promotion.
func ComputeReminderSchedule(eventDate time.Time, optIn bool, channel string) *time.Time {
	return computeReminderScheduleAt(eventDate, optIn, channel, time.Now())
}

// computeReminderScheduleAt is the clock-injected body of
// ComputeReminderSchedule so the past-suppression rule is testable.
func computeReminderScheduleAt(eventDate time.Time, optIn bool, channel string, now time.Time) *time.Time {
	if !optIn || channel == model.ChannelNone {
		return nil
	}
	day := eventDate.AddDate(0, 0, -reminderLeadDays)
	at := time.Date(day.Year(), day.Month(), day.Day(), reminderHour, 0, 0, 0, time.Local)
	if !at.After(now) {
		return nil
	}
	return &at
}

// parseEventDate accepts the event date formats callers send: a plain
// ISO date (2024-07-01) or a full RFC3339 timestamp. Only the calendar
// day matters for reminder math.
func parseEventDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}
