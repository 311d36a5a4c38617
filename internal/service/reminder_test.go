package service

import (
	"testing"
	"time"

	"github.com/avdeyev/biblio-programs/internal/model"
)

func TestReminderScheduledDayBeforeAtNine(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.Local)
	event := time.Date(2026, 6, 10, 18, 30, 0, 0, time.Local)

	got := computeReminderScheduleAt(event, true, model.ChannelEmail, now)
	if got == nil {
		t.Fatal("expected a schedule, got nil")
	}
	want := time.Date(2026, 6, 9, 9, 0, 0, 0, time.Local)
	if !got.Equal(want) {
		t.Fatalf("schedule = %v, want %v", got, want)
	}
}

func TestReminderSuppressedWhenOptedOut(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.Local)
	event := time.Date(2026, 6, 10, 0, 0, 0, 0, time.Local)

	if got := computeReminderScheduleAt(event, false, model.ChannelEmail, now); got != nil {
		t.Fatalf("opted-out patron got a schedule: %v", got)
	}
}

func TestReminderSuppressedForNoneChannel(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.Local)
	event := time.Date(2026, 6, 10, 0, 0, 0, 0, time.Local)

	if got := computeReminderScheduleAt(event, true, model.ChannelNone, now); got != nil {
		t.Fatalf("NONE channel got a schedule: %v", got)
	}
}

func TestReminderSuppressedWhenWindowPassed(t *testing.T) {
	// Registering the evening before the event: 09:00 that day is
	// already behind us, so no reminder gets scheduled.
	now := time.Date(2026, 6, 9, 20, 0, 0, 0, time.Local)
	event := time.Date(2026, 6, 10, 18, 0, 0, 0, time.Local)

	if got := computeReminderScheduleAt(event, true, model.ChannelSMS, now); got != nil {
		t.Fatalf("past window got a schedule: %v", got)
	}
}

func TestReminderExactBoundaryIsSuppressed(t *testing.T) {
	// A send time equal to now is not strictly in the future.
	now := time.Date(2026, 6, 9, 9, 0, 0, 0, time.Local)
	event := time.Date(2026, 6, 10, 18, 0, 0, 0, time.Local)

	if got := computeReminderScheduleAt(event, true, model.ChannelBoth, now); got != nil {
		t.Fatalf("boundary send time got a schedule: %v", got)
	}
}

func TestParseEventDateFormats(t *testing.T) {
	if _, err := parseEventDate("2026-09-14"); err != nil {
		t.Fatalf("date-only form rejected: %v", err)
	}
	if _, err := parseEventDate("2026-09-14T18:30:00Z"); err != nil {
		t.Fatalf("RFC3339 form rejected: %v", err)
	}
	if _, err := parseEventDate("14/09/2026"); err == nil {
		t.Fatal("slash-form date accepted, want error")
	}
	if _, err := parseEventDate(""); err == nil {
		t.Fatal("empty date accepted, want error")
	}
}
