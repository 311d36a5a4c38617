package model

import (
	"encoding/json"
	"time"
)

// History actions recorded in registration_history.action. The four
// register-path actions come from the capacity decision; canceled and
// promoted are written by the cancel path.
const (
	ActionRegistered        = "registered"
	ActionWaitlisted        = "waitlisted"
	ActionAlreadyRegistered = "already_registered"
	ActionAlreadyWaitlisted = "already_waitlisted"
	ActionCanceled          = "canceled"
	ActionPromoted          = "promoted"
	ActionReminderUpdated   = "reminder_updated"
)

// HistoryEntry is one row of the append-only registration_history
// ledger. Entries are written in the same transaction as the store
// mutation they describe and are never updated or deleted.
//
// FromStatus is nil for the very first registration of a pair.
// Metadata carries small structured context (capacity, positions,
// promotion flags) as a JSON object.
type HistoryEntry struct {
	ID         uint64          `json:"id"`          // registration_history.id
	EventID    string          `json:"event_id"`    // registration_history.event_id
	PatronID   int64           `json:"patron_id"`   // registration_history.patron_id
	Action     string          `json:"action"`      // registration_history.action
	FromStatus *string         `json:"from_status"` // registration_history.from_status (nullable)
	ToStatus   string          `json:"to_status"`   // registration_history.to_status
	Metadata   json.RawMessage `json:"metadata"`    // registration_history.metadata (JSON column)
	CreatedAt  time.Time       `json:"created_at"`  // registration_history.created_at
}
