package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/avdeyev/biblio-programs/internal/database"
	"github.com/avdeyev/biblio-programs/internal/model"
	"github.com/avdeyev/biblio-programs/internal/repository"
)

// newTestService connects to the database named by TEST_DATABASE_DSN
// and skips the test when the variable is unset, so the pure-function
// tests in this package still run everywhere.
func newTestService(t *testing.T) (*RegistrationService, *sql.DB) {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_DSN")
	if dsn == "" {
		t.Skip("TEST_DATABASE_DSN not set; skipping database integration test")
	}
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := database.Bootstrap(ctx, db); err != nil {
		t.Fatalf("bootstrap schema: %v", err)
	}

	regs := repository.NewRegistrationRepo(db)
	hist := repository.NewHistoryRepo(db)
	return NewRegistrationService(db, regs, hist, false), db
}

// testEventID returns an event id unique to this test run so parallel
// or repeated runs never see each other's rows.
func testEventID(t *testing.T) string {
	return fmt.Sprintf("test-%s-%d", t.Name(), time.Now().UnixNano())
}

func futureDate() string {
	return time.Now().AddDate(0, 1, 0).Format("2006-01-02")
}

func TestRegisterCancelPromotionFlow(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	eventID := testEventID(t)
	capOne := 1

	// Patron 1 takes the only seat.
	r1, err := svc.Register(ctx, RegisterParams{
		EventID: eventID, PatronID: 1001, EventDate: futureDate(), Capacity: &capOne,
	})
	if err != nil {
		t.Fatalf("register patron 1: %v", err)
	}
	if r1.Registration.Status != model.StatusRegistered {
		t.Fatalf("patron 1 status = %q, want REGISTERED", r1.Registration.Status)
	}

	// Patron 2 lands on the waitlist at position 1.
	r2, err := svc.Register(ctx, RegisterParams{
		EventID: eventID, PatronID: 1002, EventDate: futureDate(), Capacity: &capOne,
	})
	if err != nil {
		t.Fatalf("register patron 2: %v", err)
	}
	if r2.Registration.Status != model.StatusWaitlisted {
		t.Fatalf("patron 2 status = %q, want WAITLISTED", r2.Registration.Status)
	}
	if r2.Registration.WaitlistPosition == nil || *r2.Registration.WaitlistPosition != 1 {
		t.Fatalf("patron 2 position = %v, want 1", r2.Registration.WaitlistPosition)
	}

	// Patron 3 queues behind at position 2.
	r3, err := svc.Register(ctx, RegisterParams{
		EventID: eventID, PatronID: 1003, EventDate: futureDate(), Capacity: &capOne,
	})
	if err != nil {
		t.Fatalf("register patron 3: %v", err)
	}
	if r3.Registration.WaitlistPosition == nil || *r3.Registration.WaitlistPosition != 2 {
		t.Fatalf("patron 3 position = %v, want 2", r3.Registration.WaitlistPosition)
	}

	// Patron 1 cancels; patron 2 is promoted FIFO and patron 3 shifts
	// forward, keeping the waitlist dense from position 1.
	cr, err := svc.Cancel(ctx, CancelParams{
		EventID: eventID, PatronID: 1001, EventDate: futureDate(), Capacity: &capOne,
	})
	if err != nil {
		t.Fatalf("cancel patron 1: %v", err)
	}
	if !cr.Canceled || !cr.PromotedWaitlist {
		t.Fatalf("cancel result = %+v, want canceled with promotion", cr)
	}

	regs, err := svc.ListEventRegistrations(ctx, eventID, false)
	if err != nil {
		t.Fatalf("list registrations: %v", err)
	}
	byPatron := map[int64]model.Registration{}
	for _, r := range regs {
		byPatron[r.PatronID] = r
	}
	if got := byPatron[1002]; got.Status != model.StatusRegistered {
		t.Fatalf("patron 2 after promotion = %q, want REGISTERED", got.Status)
	}
	if got := byPatron[1003]; got.WaitlistPosition == nil || *got.WaitlistPosition != 1 {
		t.Fatalf("patron 3 after reindex = %v, want position 1", got.WaitlistPosition)
	}

	// Counts honor the capacity again.
	counts, err := svc.EventCounts(ctx, []string{eventID})
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if c := counts[eventID]; c.RegisteredCount != 1 || c.WaitlistedCount != 1 {
		t.Fatalf("counts = %+v, want 1 registered / 1 waitlisted", c)
	}
}

func TestCancelWaitlistedClosesTheirSlot(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	eventID := testEventID(t)
	capOne := 1

	// Fill the seat, then queue three patrons at positions 1..3.
	patrons := []int64{5001, 5002, 5003, 5004}
	for _, pid := range patrons {
		if _, err := svc.Register(ctx, RegisterParams{
			EventID: eventID, PatronID: pid, EventDate: futureDate(), Capacity: &capOne,
		}); err != nil {
			t.Fatalf("register patron %d: %v", pid, err)
		}
	}

	// Canceling the middle waitlisted patron frees no seat, so no one is
	// promoted, but the positions behind them must shift down.
	cr, err := svc.Cancel(ctx, CancelParams{
		EventID: eventID, PatronID: 5003, EventDate: futureDate(), Capacity: &capOne,
	})
	if err != nil {
		t.Fatalf("cancel waitlisted patron: %v", err)
	}
	if !cr.Canceled {
		t.Fatal("cancel of a waitlisted patron reported no change")
	}
	if cr.PromotedWaitlist {
		t.Fatal("waitlisted cancel must not promote anyone")
	}

	regs, err := svc.ListEventRegistrations(ctx, eventID, false)
	if err != nil {
		t.Fatalf("list registrations: %v", err)
	}
	positions := map[int64]int{}
	for _, r := range regs {
		if r.Status == model.StatusWaitlisted {
			if r.WaitlistPosition == nil {
				t.Fatalf("patron %d waitlisted without a position", r.PatronID)
			}
			positions[r.PatronID] = *r.WaitlistPosition
		}
	}
	if positions[5002] != 1 {
		t.Fatalf("patron ahead of the canceled slot moved: position = %d, want 1", positions[5002])
	}
	if positions[5004] != 2 {
		t.Fatalf("patron behind the canceled slot did not shift: position = %d, want 2", positions[5004])
	}
	if len(positions) != 2 {
		t.Fatalf("waitlist has %d entries, want 2", len(positions))
	}
}

func TestWaitlistedReRegisterPromotesWhenCapacityOpens(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	eventID := testEventID(t)
	capOne := 1

	// One seat, then two patrons on the waitlist.
	for _, pid := range []int64{6001, 6002, 6003} {
		if _, err := svc.Register(ctx, RegisterParams{
			EventID: eventID, PatronID: pid, EventDate: futureDate(), Capacity: &capOne,
		}); err != nil {
			t.Fatalf("register patron %d: %v", pid, err)
		}
	}

	// The organizer raises capacity; the head of the waitlist re-registers
	// and walks into the freed slot.
	capThree := 3
	res, err := svc.Register(ctx, RegisterParams{
		EventID: eventID, PatronID: 6002, EventDate: futureDate(), Capacity: &capThree,
	})
	if err != nil {
		t.Fatalf("re-register after capacity increase: %v", err)
	}
	if res.Registration.Status != model.StatusRegistered {
		t.Fatalf("status = %q after capacity opened, want REGISTERED", res.Registration.Status)
	}
	if !res.PromotedFromWaitlist {
		t.Fatal("expected promoted_from_waitlist on the register result")
	}
	if res.Registration.WaitlistPosition != nil {
		t.Fatalf("position = %v after promotion, want nil", *res.Registration.WaitlistPosition)
	}

	// The patron behind them closes the vacated slot.
	regs, err := svc.ListEventRegistrations(ctx, eventID, false)
	if err != nil {
		t.Fatalf("list registrations: %v", err)
	}
	for _, r := range regs {
		if r.PatronID == 6003 {
			if r.Status != model.StatusWaitlisted || r.WaitlistPosition == nil || *r.WaitlistPosition != 1 {
				t.Fatalf("trailing patron = %q at %v, want WAITLISTED at 1", r.Status, r.WaitlistPosition)
			}
		}
	}

	counts, err := svc.EventCounts(ctx, []string{eventID})
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if c := counts[eventID]; c.RegisteredCount != 2 || c.WaitlistedCount != 1 {
		t.Fatalf("counts = %+v, want 2 registered / 1 waitlisted", c)
	}
}

func TestRegisterIsIdempotent(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	eventID := testEventID(t)
	capTen := 10

	first, err := svc.Register(ctx, RegisterParams{
		EventID: eventID, PatronID: 2001, EventDate: futureDate(), Capacity: &capTen,
	})
	if err != nil {
		t.Fatalf("first register: %v", err)
	}
	second, err := svc.Register(ctx, RegisterParams{
		EventID: eventID, PatronID: 2001, EventDate: futureDate(), Capacity: &capTen,
	})
	if err != nil {
		t.Fatalf("second register: %v", err)
	}
	if second.Action != model.ActionAlreadyRegistered {
		t.Fatalf("second action = %q, want %q", second.Action, model.ActionAlreadyRegistered)
	}
	if second.Registration.ID != first.Registration.ID {
		t.Fatal("re-register created a second row for the same (event, patron)")
	}

	counts, err := svc.EventCounts(ctx, []string{eventID})
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if c := counts[eventID]; c.RegisteredCount != 1 {
		t.Fatalf("registered count = %d after double register, want 1", c.RegisteredCount)
	}
}

func TestCancelThenReRegisterReusesRow(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	eventID := testEventID(t)
	capFive := 5

	first, err := svc.Register(ctx, RegisterParams{
		EventID: eventID, PatronID: 3001, EventDate: futureDate(), Capacity: &capFive,
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := svc.Cancel(ctx, CancelParams{
		EventID: eventID, PatronID: 3001, EventDate: futureDate(), Capacity: &capFive,
	}); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	// Canceling again is a quiet no-op.
	again, err := svc.Cancel(ctx, CancelParams{
		EventID: eventID, PatronID: 3001, EventDate: futureDate(), Capacity: &capFive,
	})
	if err != nil {
		t.Fatalf("second cancel: %v", err)
	}
	if again.Canceled {
		t.Fatal("second cancel reported a state change")
	}

	// registered_at is stored at second precision; step past it so the
	// fresh stamp is observably newer than the original.
	time.Sleep(1100 * time.Millisecond)

	back, err := svc.Register(ctx, RegisterParams{
		EventID: eventID, PatronID: 3001, EventDate: futureDate(), Capacity: &capFive,
	})
	if err != nil {
		t.Fatalf("re-register: %v", err)
	}
	if back.Registration.ID != first.Registration.ID {
		t.Fatal("re-register after cancel created a new row instead of reusing it")
	}
	if back.Registration.Status != model.StatusRegistered {
		t.Fatalf("re-register status = %q, want REGISTERED", back.Registration.Status)
	}
	if back.Registration.CanceledAt != nil {
		t.Fatal("canceled_at not cleared on re-register")
	}
	// The round trip gets a fresh registration time, not the original one.
	if !back.Registration.RegisteredAt.After(first.Registration.RegisteredAt) {
		t.Fatalf("registered_at = %v, want later than original %v",
			back.Registration.RegisteredAt, first.Registration.RegisteredAt)
	}
}

func TestUpdateReminderPreference(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	eventID := testEventID(t)

	// No active registration yet: nothing to update.
	reg, err := svc.UpdateReminderPreference(ctx, ReminderParams{
		EventID: eventID, PatronID: 4001, EventDate: futureDate(), ReminderChannel: model.ChannelSMS,
	})
	if err != nil {
		t.Fatalf("update with no row: %v", err)
	}
	if reg != nil {
		t.Fatalf("update with no row returned %+v, want nil", reg)
	}

	if _, err := svc.Register(ctx, RegisterParams{
		EventID: eventID, PatronID: 4001, EventDate: futureDate(),
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	reg, err = svc.UpdateReminderPreference(ctx, ReminderParams{
		EventID: eventID, PatronID: 4001, EventDate: futureDate(), ReminderChannel: model.ChannelSMS,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if reg == nil || reg.ReminderChannel != model.ChannelSMS {
		t.Fatalf("updated registration = %+v, want SMS channel", reg)
	}
	if reg.ReminderScheduledFor == nil {
		t.Fatal("reminder schedule missing after channel update")
	}

	// Opting out clears the schedule.
	out := false
	reg, err = svc.UpdateReminderPreference(ctx, ReminderParams{
		EventID: eventID, PatronID: 4001, EventDate: futureDate(),
		ReminderChannel: model.ChannelSMS, ReminderOptIn: &out,
	})
	if err != nil {
		t.Fatalf("opt out: %v", err)
	}
	if reg == nil || reg.ReminderScheduledFor != nil {
		t.Fatalf("opt-out left a schedule: %+v", reg)
	}
}

func TestRegisterRejectsBadInput(t *testing.T) {
	// Validation failures never reach the database, so no DSN is needed.
	svc := NewRegistrationService(&sql.DB{}, repository.NewRegistrationRepo(&sql.DB{}), repository.NewHistoryRepo(&sql.DB{}), false)
	ctx := context.Background()

	cases := []struct {
		name string
		p    RegisterParams
	}{
		{"empty event id", RegisterParams{EventID: "  ", PatronID: 1, EventDate: "2026-09-14"}},
		{"oversized event id", RegisterParams{EventID: strings.Repeat("x", 65), PatronID: 1, EventDate: "2026-09-14"}},
		{"zero patron id", RegisterParams{EventID: "ev-1", PatronID: 0, EventDate: "2026-09-14"}},
		{"bad date", RegisterParams{EventID: "ev-1", PatronID: 1, EventDate: "next tuesday"}},
		{"negative capacity", RegisterParams{EventID: "ev-1", PatronID: 1, EventDate: "2026-09-14", Capacity: intPtr(-1)}},
		{"unknown channel", RegisterParams{EventID: "ev-1", PatronID: 1, EventDate: "2026-09-14", ReminderChannel: "PIGEON"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Register(ctx, tc.p); err == nil {
				t.Fatal("expected validation error, got nil")
			} else if !errors.Is(err, ErrInvalidArgument) {
				t.Fatalf("error = %v, want ErrInvalidArgument", err)
			}
		})
	}
}
