package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/avdeyev/biblio-programs/internal/model"
)

// History page sizing. Requests can ask for fewer rows but never more
// than the cap; zero or negative limits fall back to the default.
const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// HistoryRepo appends to and reads from the registration_history
// ledger. Rows are write-once: there is no update or delete path.
type HistoryRepo struct {
	db *sql.DB
}

// NewHistoryRepo returns a HistoryRepo bound to the given database.
func NewHistoryRepo(db *sql.DB) *HistoryRepo { return &HistoryRepo{db: db} }

// AppendTx writes one history entry inside the caller's transaction so
// the ledger commits or rolls back together with the store mutation it
// describes. Metadata may be nil.
func (r *HistoryRepo) AppendTx(ctx context.Context, tx *sql.Tx, eventID string, patronID int64, action string, fromStatus *string, toStatus string, metadata map[string]interface{}) error {
	var meta interface{}
	if metadata != nil {
		b, err := json.Marshal(metadata)
		if err != nil {
			return fmt.Errorf("marshal history metadata: %w", err)
		}
		meta = string(b)
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO registration_history
		   (event_id, patron_id, action, from_status, to_status, metadata)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		eventID, patronID, action, fromStatus, toStatus, meta,
	)
	if err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}

func clampHistoryLimit(limit int) int {
	if limit <= 0 {
		return defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		return maxHistoryLimit
	}
	return limit
}

// ListByPatron returns a patron's history entries newest-first.
func (r *HistoryRepo) ListByPatron(ctx context.Context, patronID int64, limit int) ([]model.HistoryEntry, error) {
	return r.list(ctx,
		`SELECT id, event_id, patron_id, action, from_status, to_status, metadata, created_at
		 FROM registration_history
		 WHERE patron_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		patronID, clampHistoryLimit(limit))
}

// ListByEvent returns an event's history entries newest-first.
func (r *HistoryRepo) ListByEvent(ctx context.Context, eventID string, limit int) ([]model.HistoryEntry, error) {
	return r.list(ctx,
		`SELECT id, event_id, patron_id, action, from_status, to_status, metadata, created_at
		 FROM registration_history
		 WHERE event_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		eventID, clampHistoryLimit(limit))
}

func (r *HistoryRepo) list(ctx context.Context, q string, args ...interface{}) ([]model.HistoryEntry, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()
	entries := make([]model.HistoryEntry, 0)
	for rows.Next() {
		var (
			e          model.HistoryEntry
			fromStatus sql.NullString
			metadata   sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.EventID, &e.PatronID, &e.Action, &fromStatus, &e.ToStatus, &metadata, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		if fromStatus.Valid {
			s := fromStatus.String
			e.FromStatus = &s
		}
		if metadata.Valid {
			e.Metadata = json.RawMessage(metadata.String)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
