// Package service implements the registration workflow: capacity
// evaluation, waitlist bookkeeping, reminder scheduling and the
// transactional orchestration that ties them together. Handlers call
// into this package; repositories are never mutated from anywhere else.
package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/avdeyev/biblio-programs/internal/model"
	"github.com/avdeyev/biblio-programs/internal/queue"
	"github.com/avdeyev/biblio-programs/internal/repository"
)

// ErrInvalidArgument marks caller contract violations (empty event id,
// non-positive patron id, unknown channel, bad date). These are
// rejected before any transaction opens and must not be retried
// unchanged. Handlers translate them into HTTP 400.
var ErrInvalidArgument = errors.New("invalid argument")

// RegistrationService orchestrates register, cancel and
// reminder-preference operations. Every mutating operation runs inside
// one database transaction on a dedicated connection that also holds
// the per-event advisory lock, so register/cancel calls for the same
// event are strictly serialized while different events proceed in
// parallel.
type RegistrationService struct {
	db            *sql.DB
	registrations *repository.RegistrationRepo
	history       *repository.HistoryRepo
	publish       bool
}

// NewRegistrationService constructs a RegistrationService. publish
// controls whether committed transitions are forwarded to the message
// broker (disabled in tests).
func NewRegistrationService(db *sql.DB, regs *repository.RegistrationRepo, hist *repository.HistoryRepo, publish bool) *RegistrationService {
	if db == nil || regs == nil || hist == nil {
		panic("nil dependency passed to NewRegistrationService")
	}
	return &RegistrationService{db: db, registrations: regs, history: hist, publish: publish}
}

// RegisterParams are the inputs to Register. Capacity is nil for
// unlimited events; the caller (the external event catalog) is
// authoritative for its current value. ReminderChannel defaults to
// EMAIL; ReminderOptIn defaults to true unless the channel is NONE.
type RegisterParams struct {
	EventID         string
	PatronID        int64
	EventDate       string
	Capacity        *int
	ReminderChannel string
	ReminderOptIn   *bool
}

// RegisterResult is the outcome of a Register call.
type RegisterResult struct {
	Registration         *model.Registration `json:"registration"`
	Action               string              `json:"action"`
	PromotedFromWaitlist bool                `json:"promoted_from_waitlist"`
}

// CancelParams are the inputs to Cancel. EventDate and Capacity are
// needed because cancellation of a registered patron may promote the
// earliest waitlisted patron, whose reminder must be rescheduled.
type CancelParams struct {
	EventID   string
	PatronID  int64
	EventDate string
	Capacity  *int
}

// CancelResult is the outcome of a Cancel call. Canceled is false when
// the row was absent or already canceled (idempotent no-op).
// PromotedWaitlist reports whether another patron was moved off the
// waitlist into the freed slot.
type CancelResult struct {
	Registration     *model.Registration `json:"registration"`
	Canceled         bool                `json:"canceled"`
	PromotedWaitlist bool                `json:"promoted_waitlist"`
}

// ReminderParams are the inputs to UpdateReminderPreference.
type ReminderParams struct {
	EventID         string
	PatronID        int64
	EventDate       string
	ReminderChannel string
	ReminderOptIn   *bool
}

// maxEventIDLen matches the event_id VARCHAR width in the schema.
// Longer ids are rejected up front instead of surfacing as truncation
// errors out of the driver.
const maxEventIDLen = 64

func validateKeys(eventID string, patronID int64) (string, error) {
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return "", fmt.Errorf("%w: event id is required", ErrInvalidArgument)
	}
	if len(eventID) > maxEventIDLen {
		return "", fmt.Errorf("%w: event id exceeds %d characters", ErrInvalidArgument, maxEventIDLen)
	}
	if patronID <= 0 {
		return "", fmt.Errorf("%w: patron id must be positive", ErrInvalidArgument)
	}
	return eventID, nil
}

// resolveReminder normalizes the channel/opt-in inputs: channel
// defaults to EMAIL, opt-in defaults to true unless the channel is
// NONE, and an explicit opt-in always wins.
func resolveReminder(channel string, optIn *bool) (string, bool, error) {
	ch := strings.ToUpper(strings.TrimSpace(channel))
	if ch == "" {
		ch = model.ChannelEmail
	}
	if !model.ValidChannel(ch) {
		return "", false, fmt.Errorf("%w: unknown reminder channel %q", ErrInvalidArgument, channel)
	}
	opted := ch != model.ChannelNone
	if optIn != nil {
		opted = *optIn
	}
	return ch, opted, nil
}

// Register applies one register call for (EventID, PatronID). The full
// sequence (advisory lock, row lock, count, capacity decision, upsert,
// waitlist reindex, history append) commits or rolls back as a unit.
// Re-registration is idempotent: an already-registered patron gets
// action already_registered and no count changes.
func (s *RegistrationService) Register(ctx context.Context, p RegisterParams) (*RegisterResult, error) {
	eventID, err := validateKeys(p.EventID, p.PatronID)
	if err != nil {
		return nil, err
	}
	eventDate, err := parseEventDate(p.EventDate)
	if err != nil {
		return nil, fmt.Errorf("%w: bad event date %q", ErrInvalidArgument, p.EventDate)
	}
	if p.Capacity != nil && *p.Capacity < 0 {
		return nil, fmt.Errorf("%w: capacity must not be negative", ErrInvalidArgument)
	}
	channel, optIn, err := resolveReminder(p.ReminderChannel, p.ReminderOptIn)
	if err != nil {
		return nil, err
	}

	var result *RegisterResult
	err = s.withEventLock(ctx, eventID, func(tx *sql.Tx) error {
		existing, err := s.registrations.GetForUpdateTx(ctx, tx, eventID, p.PatronID)
		if err != nil {
			return err
		}
		registered, waitlisted, err := s.registrations.CountsTx(ctx, tx, eventID)
		if err != nil {
			return err
		}

		dec := EvaluateCapacity(p.Capacity, registered, waitlisted, existing)
		schedule := ComputeReminderSchedule(eventDate, optIn, channel)
		now := time.Now().UTC()

		reg := &model.Registration{
			EventID:              eventID,
			PatronID:             p.PatronID,
			Status:               dec.Status,
			WaitlistPosition:     dec.Position,
			ReminderChannel:      channel,
			ReminderOptIn:        optIn,
			ReminderScheduledFor: schedule,
			RegisteredAt:         now,
			UpdatedAt:            now,
		}
		// A canceled row re-registering gets a fresh registered_at; an
		// active row keeps its original one.
		if existing != nil && existing.Status != model.StatusCanceled {
			reg.RegisteredAt = existing.RegisteredAt
		}
		if err := s.registrations.UpsertTx(ctx, tx, reg); err != nil {
			return err
		}
		// The caller just vacated their own waitlist slot; close it after
		// their row is already updated so it cannot be shifted twice.
		if dec.PromotedFromWaitlist && dec.VacatedPosition > 0 {
			if err := s.registrations.CloseWaitlistSlotTx(ctx, tx, eventID, dec.VacatedPosition); err != nil {
				return err
			}
		}

		var fromStatus *string
		if existing != nil {
			st := existing.Status
			fromStatus = &st
		}
		meta := map[string]interface{}{
			"registered_count": registered,
			"waitlisted_count": waitlisted,
		}
		if p.Capacity != nil {
			meta["capacity"] = *p.Capacity
		}
		if dec.Position != nil {
			meta["waitlist_position"] = *dec.Position
		}
		if dec.PromotedFromWaitlist {
			meta["promoted_from_waitlist"] = true
		}
		if err := s.history.AppendTx(ctx, tx, eventID, p.PatronID, dec.Action, fromStatus, dec.Status, meta); err != nil {
			return err
		}

		result = &RegisterResult{
			Registration:         reg,
			Action:               dec.Action,
			PromotedFromWaitlist: dec.PromotedFromWaitlist,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publishActivity(result.Registration, result.Action, result.PromotedFromWaitlist)
	return result, nil
}

// Cancel marks the (EventID, PatronID) registration canceled. Canceling
// a waitlisted patron closes their slot; canceling a registered patron
// on a finite-capacity event promotes the earliest waitlisted patron,
// FIFO by position. Absent or already-canceled rows are a no-op.
func (s *RegistrationService) Cancel(ctx context.Context, p CancelParams) (*CancelResult, error) {
	eventID, err := validateKeys(p.EventID, p.PatronID)
	if err != nil {
		return nil, err
	}
	eventDate, err := parseEventDate(p.EventDate)
	if err != nil {
		return nil, fmt.Errorf("%w: bad event date %q", ErrInvalidArgument, p.EventDate)
	}

	var (
		result      *CancelResult
		promotedReg *model.Registration
	)
	err = s.withEventLock(ctx, eventID, func(tx *sql.Tx) error {
		existing, err := s.registrations.GetForUpdateTx(ctx, tx, eventID, p.PatronID)
		if err != nil {
			return err
		}
		if existing == nil || existing.Status == model.StatusCanceled {
			// Already in the desired state; commit nothing.
			result = &CancelResult{Registration: existing, Canceled: false}
			return nil
		}

		wasStatus := existing.Status
		oldPosition := existing.WaitlistPosition
		now := time.Now().UTC()

		if err := s.registrations.CancelTx(ctx, tx, existing.ID, now); err != nil {
			return err
		}
		if wasStatus == model.StatusWaitlisted && oldPosition != nil {
			if err := s.registrations.CloseWaitlistSlotTx(ctx, tx, eventID, *oldPosition); err != nil {
				return err
			}
		}

		promoted := false
		// Only a registered cancellation frees a slot, and only finite
		// capacity ever produced a waitlist to promote from.
		if wasStatus == model.StatusRegistered && p.Capacity != nil {
			next, err := s.registrations.NextWaitlistedForUpdateTx(ctx, tx, eventID)
			if err != nil {
				return err
			}
			if next != nil {
				schedule := ComputeReminderSchedule(eventDate, next.ReminderOptIn, next.ReminderChannel)
				if err := s.registrations.PromoteTx(ctx, tx, next.ID, schedule); err != nil {
					return err
				}
				if next.WaitlistPosition != nil {
					if err := s.registrations.CloseWaitlistSlotTx(ctx, tx, eventID, *next.WaitlistPosition); err != nil {
						return err
					}
				}
				fromWaitlisted := model.StatusWaitlisted
				meta := map[string]interface{}{
					"vacated_by_patron_id": p.PatronID,
				}
				if next.WaitlistPosition != nil {
					meta["old_waitlist_position"] = *next.WaitlistPosition
				}
				if err := s.history.AppendTx(ctx, tx, eventID, next.PatronID, model.ActionPromoted, &fromWaitlisted, model.StatusRegistered, meta); err != nil {
					return err
				}
				promotedReg, err = s.registrations.GetTx(ctx, tx, next.ID)
				if err != nil {
					return err
				}
				promoted = true
			}
		}

		meta := map[string]interface{}{}
		if p.Capacity != nil {
			meta["capacity"] = *p.Capacity
		}
		if oldPosition != nil {
			meta["waitlist_position"] = *oldPosition
		}
		if err := s.history.AppendTx(ctx, tx, eventID, p.PatronID, model.ActionCanceled, &wasStatus, model.StatusCanceled, meta); err != nil {
			return err
		}

		canceled, err := s.registrations.GetTx(ctx, tx, existing.ID)
		if err != nil {
			return err
		}
		result = &CancelResult{Registration: canceled, Canceled: true, PromotedWaitlist: promoted}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Canceled {
		s.publishActivity(result.Registration, model.ActionCanceled, false)
	}
	if promotedReg != nil {
		s.publishActivity(promotedReg, model.ActionPromoted, true)
	}
	return result, nil
}

// UpdateReminderPreference changes the reminder channel/opt-in of an
// active registration and recomputes its schedule. It returns
// (nil, nil) when the patron has no active row for the event; that is
// "nothing to update", not an error. No advisory lock is taken: the
// guarded single-row update cannot interact with capacity decisions.
func (s *RegistrationService) UpdateReminderPreference(ctx context.Context, p ReminderParams) (*model.Registration, error) {
	eventID, err := validateKeys(p.EventID, p.PatronID)
	if err != nil {
		return nil, err
	}
	eventDate, err := parseEventDate(p.EventDate)
	if err != nil {
		return nil, fmt.Errorf("%w: bad event date %q", ErrInvalidArgument, p.EventDate)
	}
	channel, optIn, err := resolveReminder(p.ReminderChannel, p.ReminderOptIn)
	if err != nil {
		return nil, err
	}
	schedule := ComputeReminderSchedule(eventDate, optIn, channel)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	reg, err := s.registrations.UpdateReminderTx(ctx, tx, eventID, p.PatronID, channel, optIn, schedule)
	if err != nil {
		return nil, err
	}
	if reg != nil {
		st := reg.Status
		meta := map[string]interface{}{
			"reminder_channel": channel,
			"reminder_opt_in":  optIn,
		}
		if err := s.history.AppendTx(ctx, tx, eventID, p.PatronID, model.ActionReminderUpdated, &st, st, meta); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	committed = true
	return reg, nil
}

// ListRegistrations returns a patron's registrations.
func (s *RegistrationService) ListRegistrations(ctx context.Context, patronID int64, eventIDs []string, includeCanceled bool) ([]model.Registration, error) {
	if patronID <= 0 {
		return nil, fmt.Errorf("%w: patron id must be positive", ErrInvalidArgument)
	}
	return s.registrations.ListByPatron(ctx, patronID, eventIDs, includeCanceled)
}

// ListEventRegistrations returns every row for one event (staff view).
func (s *RegistrationService) ListEventRegistrations(ctx context.Context, eventID string, includeCanceled bool) ([]model.Registration, error) {
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return nil, fmt.Errorf("%w: event id is required", ErrInvalidArgument)
	}
	return s.registrations.ListByEvent(ctx, eventID, includeCanceled)
}

// EventCounts returns {registered, waitlisted} aggregates for a batch
// of event ids. The counts are a read-path convenience; the locked
// transaction inside Register/Cancel never consults them.
func (s *RegistrationService) EventCounts(ctx context.Context, eventIDs []string) (map[string]model.EventCounts, error) {
	cleaned := make([]string, 0, len(eventIDs))
	for _, id := range eventIDs {
		if id = strings.TrimSpace(id); id != "" {
			cleaned = append(cleaned, id)
		}
	}
	return s.registrations.CountsByEvent(ctx, cleaned)
}

// PatronHistory returns a patron's history entries newest-first.
func (s *RegistrationService) PatronHistory(ctx context.Context, patronID int64, limit int) ([]model.HistoryEntry, error) {
	if patronID <= 0 {
		return nil, fmt.Errorf("%w: patron id must be positive", ErrInvalidArgument)
	}
	return s.history.ListByPatron(ctx, patronID, limit)
}

// EventHistory returns an event's history entries newest-first.
func (s *RegistrationService) EventHistory(ctx context.Context, eventID string, limit int) ([]model.HistoryEntry, error) {
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return nil, fmt.Errorf("%w: event id is required", ErrInvalidArgument)
	}
	return s.history.ListByEvent(ctx, eventID, limit)
}

// withEventLock runs fn inside a transaction that holds the per-event
// advisory lock. The lock lives on a dedicated connection and the
// transaction runs on that same connection; the deferred release fires
// only after commit or rollback, so no other writer can observe
// pre-commit state. If the transaction aborts, the caller may retry the
// whole operation, since every write path re-reads its inputs inside its own
// transaction.
func (s *RegistrationService) withEventLock(ctx context.Context, eventID string, fn func(tx *sql.Tx) error) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()

	if err := repository.AcquireEventLock(ctx, conn, eventID); err != nil {
		return err
	}
	defer func() {
		if err := repository.ReleaseEventLock(ctx, conn, eventID); err != nil {
			log.Printf("registration: release lock for event %s: %v", eventID, err)
		}
	}()

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	committed = true
	return nil
}

// publishActivity forwards one committed transition to the broker.
// Failures are logged inside the publisher and deliberately ignored:
// the registration is already durable and the queue is advisory.
func (s *RegistrationService) publishActivity(reg *model.Registration, action string, promoted bool) {
	if !s.publish || reg == nil {
		return
	}
	ev := queue.RegistrationActivityEvent{
		EventID:              reg.EventID,
		PatronID:             reg.PatronID,
		Action:               action,
		Status:               reg.Status,
		WaitlistPosition:     reg.WaitlistPosition,
		PromotedFromWaitlist: promoted,
		ReminderChannel:      reg.ReminderChannel,
		OccurredAt:           time.Now().UTC().Format(time.RFC3339),
	}
	if reg.ReminderScheduledFor != nil {
		ev.ReminderScheduledFor = reg.ReminderScheduledFor.UTC().Format(time.RFC3339)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = PublishRegistrationActivity(ctx, ev)
}
