package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/avdeyev/biblio-programs/internal/model"
)

// regColumns is the canonical select list for event_registrations.
// Every scan in this file uses it so the column order stays in one place.
const regColumns = `id, event_id, patron_id, status, waitlist_position,
	reminder_channel, reminder_opt_in, reminder_scheduled_for, reminder_sent_at,
	registered_at, canceled_at, updated_at`

// RegistrationRepo provides data access to the event_registrations
// table. Methods suffixed Tx run inside a caller-owned transaction; the
// caller must commit or roll back. Mutating methods are only ever
// invoked by the registration service while it holds the per-event
// advisory lock, so none of them re-check capacity themselves.
type RegistrationRepo struct {
	db *sql.DB
}

// NewRegistrationRepo returns a RegistrationRepo bound to the given database.
func NewRegistrationRepo(db *sql.DB) *RegistrationRepo { return &RegistrationRepo{db: db} }

// DB exposes the underlying handle so the service layer can open
// transactions and dedicated connections.
func (r *RegistrationRepo) DB() *sql.DB { return r.db }

// rowScanner lets one scan helper serve both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRegistration(s rowScanner) (*model.Registration, error) {
	var (
		reg          model.Registration
		position     sql.NullInt64
		scheduledFor sql.NullTime
		sentAt       sql.NullTime
		canceledAt   sql.NullTime
	)
	err := s.Scan(
		&reg.ID, &reg.EventID, &reg.PatronID, &reg.Status, &position,
		&reg.ReminderChannel, &reg.ReminderOptIn, &scheduledFor, &sentAt,
		&reg.RegisteredAt, &canceledAt, &reg.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if position.Valid {
		p := int(position.Int64)
		reg.WaitlistPosition = &p
	}
	if scheduledFor.Valid {
		t := scheduledFor.Time
		reg.ReminderScheduledFor = &t
	}
	if sentAt.Valid {
		t := sentAt.Time
		reg.ReminderSentAt = &t
	}
	if canceledAt.Valid {
		t := canceledAt.Time
		reg.CanceledAt = &t
	}
	return &reg, nil
}

// GetForUpdateTx loads the (event, patron) row with an exclusive row
// lock. It returns (nil, nil) when no row exists so callers can treat
// absence as "first registration" without error plumbing.
func (r *RegistrationRepo) GetForUpdateTx(ctx context.Context, tx *sql.Tx, eventID string, patronID int64) (*model.Registration, error) {
	q := `SELECT ` + regColumns + ` FROM event_registrations
	      WHERE event_id = ? AND patron_id = ?
	      FOR UPDATE`
	reg, err := scanRegistration(tx.QueryRowContext(ctx, q, eventID, patronID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lock registration row: %w", err)
	}
	return reg, nil
}

// CountsTx returns the committed registered/waitlisted counts for one
// event. It must run inside the same transaction as the write that
// depends on it, after the advisory lock is held; counting outside the
// lock scope would let two registrants both observe one free slot.
func (r *RegistrationRepo) CountsTx(ctx context.Context, tx *sql.Tx, eventID string) (registered, waitlisted int, err error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM event_registrations
		 WHERE event_id = ? AND status IN (?, ?)
		 GROUP BY status`,
		eventID, model.StatusRegistered, model.StatusWaitlisted,
	)
	if err != nil {
		return 0, 0, fmt.Errorf("count registrations: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return 0, 0, fmt.Errorf("scan count: %w", err)
		}
		switch status {
		case model.StatusRegistered:
			registered = n
		case model.StatusWaitlisted:
			waitlisted = n
		}
	}
	return registered, waitlisted, rows.Err()
}

// UpsertTx writes the target state for a (event, patron) pair. On
// conflict with the unique key the existing row is overwritten:
// status, position, reminder fields and registered_at are replaced,
// reminder_sent_at and canceled_at are cleared. The provided record is
// refreshed from the database afterwards so the caller gets the stored
// row back, including its id.
func (r *RegistrationRepo) UpsertTx(ctx context.Context, tx *sql.Tx, reg *model.Registration) error {
	var position interface{}
	if reg.WaitlistPosition != nil {
		position = *reg.WaitlistPosition
	}
	var scheduledFor interface{}
	if reg.ReminderScheduledFor != nil {
		scheduledFor = reg.ReminderScheduledFor.UTC()
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO event_registrations
		   (event_id, patron_id, status, waitlist_position,
		    reminder_channel, reminder_opt_in, reminder_scheduled_for,
		    reminder_sent_at, registered_at, canceled_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, NULL, ?, NULL, ?)
		 ON DUPLICATE KEY UPDATE
		   status                 = VALUES(status),
		   waitlist_position      = VALUES(waitlist_position),
		   reminder_channel       = VALUES(reminder_channel),
		   reminder_opt_in        = VALUES(reminder_opt_in),
		   reminder_scheduled_for = VALUES(reminder_scheduled_for),
		   reminder_sent_at       = NULL,
		   registered_at          = VALUES(registered_at),
		   canceled_at            = NULL,
		   updated_at             = VALUES(updated_at)`,
		reg.EventID, reg.PatronID, reg.Status, position,
		reg.ReminderChannel, reg.ReminderOptIn, scheduledFor,
		reg.RegisteredAt.UTC(), reg.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert registration: %w", err)
	}
	// Query back the stored row to populate id and normalized timestamps.
	stored, err := scanRegistration(tx.QueryRowContext(ctx,
		`SELECT `+regColumns+` FROM event_registrations WHERE event_id = ? AND patron_id = ?`,
		reg.EventID, reg.PatronID,
	))
	if err != nil {
		return fmt.Errorf("reload registration: %w", err)
	}
	*reg = *stored
	return nil
}

// CloseWaitlistSlotTx shifts every still-waitlisted row for the event
// down by one position when the row at vacatedPosition has left the
// waitlist. It must run in the same transaction as the vacating update,
// after that update, so the vacating row is never shifted twice.
func (r *RegistrationRepo) CloseWaitlistSlotTx(ctx context.Context, tx *sql.Tx, eventID string, vacatedPosition int) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE event_registrations
		 SET waitlist_position = waitlist_position - 1,
		     updated_at = UTC_TIMESTAMP()
		 WHERE event_id = ? AND status = ? AND waitlist_position > ?`,
		eventID, model.StatusWaitlisted, vacatedPosition,
	)
	if err != nil {
		return fmt.Errorf("close waitlist slot: %w", err)
	}
	return nil
}

// NextWaitlistedForUpdateTx locks and returns the earliest waitlisted
// row for the event, or (nil, nil) when the waitlist is empty. The
// updated_at tie-break is kept from the source system even though
// positions are unique and already decide the order.
func (r *RegistrationRepo) NextWaitlistedForUpdateTx(ctx context.Context, tx *sql.Tx, eventID string) (*model.Registration, error) {
	q := `SELECT ` + regColumns + ` FROM event_registrations
	      WHERE event_id = ? AND status = ?
	      ORDER BY waitlist_position ASC, updated_at ASC
	      LIMIT 1
	      FOR UPDATE`
	reg, err := scanRegistration(tx.QueryRowContext(ctx, q, eventID, model.StatusWaitlisted))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lock next waitlisted: %w", err)
	}
	return reg, nil
}

// PromoteTx moves a previously locked waitlisted row to REGISTERED,
// clearing its position and installing a freshly computed reminder
// schedule. reminder_sent_at is cleared because promotion is a
// state-affecting update.
func (r *RegistrationRepo) PromoteTx(ctx context.Context, tx *sql.Tx, id uint64, scheduledFor *time.Time) error {
	var sched interface{}
	if scheduledFor != nil {
		sched = scheduledFor.UTC()
	}
	_, err := tx.ExecContext(ctx,
		`UPDATE event_registrations
		 SET status = ?, waitlist_position = NULL,
		     reminder_scheduled_for = ?, reminder_sent_at = NULL,
		     updated_at = UTC_TIMESTAMP()
		 WHERE id = ?`,
		model.StatusRegistered, sched, id,
	)
	if err != nil {
		return fmt.Errorf("promote registration: %w", err)
	}
	return nil
}

// CancelTx marks a previously locked row as canceled: position and all
// reminder state are cleared, the channel collapses to NONE and opt-in
// to false, canceled_at is stamped.
func (r *RegistrationRepo) CancelTx(ctx context.Context, tx *sql.Tx, id uint64, now time.Time) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE event_registrations
		 SET status = ?, waitlist_position = NULL,
		     reminder_channel = ?, reminder_opt_in = 0,
		     reminder_scheduled_for = NULL, reminder_sent_at = NULL,
		     canceled_at = ?, updated_at = ?
		 WHERE id = ?`,
		model.StatusCanceled, model.ChannelNone, now.UTC(), now.UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("cancel registration: %w", err)
	}
	return nil
}

// GetTx reloads one row by id inside the transaction.
func (r *RegistrationRepo) GetTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Registration, error) {
	reg, err := scanRegistration(tx.QueryRowContext(ctx,
		`SELECT `+regColumns+` FROM event_registrations WHERE id = ?`, id))
	if err != nil {
		return nil, fmt.Errorf("reload registration: %w", err)
	}
	return reg, nil
}

// UpdateReminderTx applies a reminder preference change to an active
// (registered or waitlisted) row and returns the updated row. It
// returns (nil, nil) when no active row exists; "nothing to update" is
// not an error. No advisory lock is needed: the guarded update only
// ever touches the caller's own row.
func (r *RegistrationRepo) UpdateReminderTx(ctx context.Context, tx *sql.Tx, eventID string, patronID int64, channel string, optIn bool, scheduledFor *time.Time) (*model.Registration, error) {
	var sched interface{}
	if scheduledFor != nil {
		sched = scheduledFor.UTC()
	}
	_, err := tx.ExecContext(ctx,
		`UPDATE event_registrations
		 SET reminder_channel = ?, reminder_opt_in = ?,
		     reminder_scheduled_for = ?, reminder_sent_at = NULL,
		     updated_at = UTC_TIMESTAMP()
		 WHERE event_id = ? AND patron_id = ? AND status IN (?, ?)`,
		channel, optIn, sched,
		eventID, patronID, model.StatusRegistered, model.StatusWaitlisted,
	)
	if err != nil {
		return nil, fmt.Errorf("update reminder: %w", err)
	}
	// RowsAffected is 0 both when no active row matched and when the new
	// values equal the old ones, so the reload decides which case it was.
	reg, err := scanRegistration(tx.QueryRowContext(ctx,
		`SELECT `+regColumns+` FROM event_registrations
		 WHERE event_id = ? AND patron_id = ? AND status IN (?, ?)`,
		eventID, patronID, model.StatusRegistered, model.StatusWaitlisted,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reload registration: %w", err)
	}
	return reg, nil
}

// ListByPatron returns a patron's registrations, optionally restricted
// to a set of event ids and optionally including canceled rows. Rows
// come back newest-registered-first.
func (r *RegistrationRepo) ListByPatron(ctx context.Context, patronID int64, eventIDs []string, includeCanceled bool) ([]model.Registration, error) {
	q := `SELECT ` + regColumns + ` FROM event_registrations WHERE patron_id = ?`
	args := []interface{}{patronID}
	if !includeCanceled {
		q += ` AND status != ?`
		args = append(args, model.StatusCanceled)
	}
	if len(eventIDs) > 0 {
		placeholders := make([]string, len(eventIDs))
		for i, id := range eventIDs {
			placeholders[i] = "?"
			args = append(args, id)
		}
		q += ` AND event_id IN (` + strings.Join(placeholders, ",") + `)`
	}
	q += ` ORDER BY registered_at DESC, id DESC`

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	defer rows.Close()
	regs := make([]model.Registration, 0)
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, fmt.Errorf("scan registration: %w", err)
		}
		regs = append(regs, *reg)
	}
	return regs, rows.Err()
}

// ListByEvent returns every registration row for one event, waitlisted
// rows in position order, for the staff console.
func (r *RegistrationRepo) ListByEvent(ctx context.Context, eventID string, includeCanceled bool) ([]model.Registration, error) {
	q := `SELECT ` + regColumns + ` FROM event_registrations WHERE event_id = ?`
	args := []interface{}{eventID}
	if !includeCanceled {
		q += ` AND status != ?`
		args = append(args, model.StatusCanceled)
	}
	q += ` ORDER BY status ASC, waitlist_position ASC, registered_at ASC`

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list event registrations: %w", err)
	}
	defer rows.Close()
	regs := make([]model.Registration, 0)
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, fmt.Errorf("scan registration: %w", err)
		}
		regs = append(regs, *reg)
	}
	return regs, rows.Err()
}

// CountsByEvent returns {registered, waitlisted} aggregates for a batch
// of event ids in a single grouped query. Events with no rows are
// present in the result with zero counts so callers need no nil checks.
func (r *RegistrationRepo) CountsByEvent(ctx context.Context, eventIDs []string) (map[string]model.EventCounts, error) {
	out := make(map[string]model.EventCounts, len(eventIDs))
	for _, id := range eventIDs {
		out[id] = model.EventCounts{}
	}
	if len(eventIDs) == 0 {
		return out, nil
	}
	placeholders := make([]string, len(eventIDs))
	args := make([]interface{}, 0, len(eventIDs)+2)
	for i, id := range eventIDs {
		placeholders[i] = "?"
		args = append(args, id)
	}
	args = append(args, model.StatusRegistered, model.StatusWaitlisted)

	q := `SELECT event_id, status, COUNT(*)
	      FROM event_registrations
	      WHERE event_id IN (` + strings.Join(placeholders, ",") + `) AND status IN (?, ?)
	      GROUP BY event_id, status`
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("count by event: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var eventID, status string
		var n int
		if err := rows.Scan(&eventID, &status, &n); err != nil {
			return nil, fmt.Errorf("scan event count: %w", err)
		}
		c := out[eventID]
		switch status {
		case model.StatusRegistered:
			c.RegisteredCount = n
		case model.StatusWaitlisted:
			c.WaitlistedCount = n
		}
		out[eventID] = c
	}
	return out, rows.Err()
}
