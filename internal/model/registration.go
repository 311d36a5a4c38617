package model

import "time"

// Registration statuses as stored in the event_registrations.status
// enum column. A registration is never deleted; cancellation is a
// status so that history and idempotent re-registration keep working.
const (
	StatusRegistered = "REGISTERED"
	StatusWaitlisted = "WAITLISTED"
	StatusCanceled   = "CANCELED"
)

// Reminder channels as stored in event_registrations.reminder_channel.
const (
	ChannelNone  = "NONE"
	ChannelEmail = "EMAIL"
	ChannelSMS   = "SMS"
	ChannelBoth  = "BOTH"
)

// ValidChannel reports whether s is one of the reminder channel enum
// values. The empty string is not valid; callers apply defaults first.
func ValidChannel(s string) bool {
	switch s {
	case ChannelNone, ChannelEmail, ChannelSMS, ChannelBoth:
		return true
	}
	return false
}

// Registration records a patron's intent to attend a library program.
// There is exactly one row per (event_id, patron_id) pair; repeat
// register/cancel calls mutate the row in place.
//
// Fields:
//  ID                   – primary key identifier.
//  EventID              – opaque key of the externally managed event.
//  PatronID             – opaque key of the externally managed patron.
//  Status               – REGISTERED, WAITLISTED or CANCELED.
//  WaitlistPosition     – 1-based rank among waitlisted rows for the
//                         event; nil unless Status is WAITLISTED.
//  ReminderChannel      – NONE, EMAIL, SMS or BOTH.
//  ReminderOptIn        – whether the patron wants a reminder at all.
//  ReminderScheduledFor – computed send instant; nil when suppressed.
//  ReminderSentAt       – stamped by the delivery pipeline; cleared on
//                         every state-affecting update.
//  RegisteredAt         – first registration time; refreshed when a
//                         canceled row re-registers.
//  CanceledAt           – cancellation time; nil while active.
//  UpdatedAt            – last mutation time.
type Registration struct {
	ID                   uint64     `json:"id"`                     // event_registrations.id
	EventID              string     `json:"event_id"`               // event_registrations.event_id
	PatronID             int64      `json:"patron_id"`              // event_registrations.patron_id
	Status               string     `json:"status"`                 // event_registrations.status
	WaitlistPosition     *int       `json:"waitlist_position"`      // event_registrations.waitlist_position (nullable)
	ReminderChannel      string     `json:"reminder_channel"`       // event_registrations.reminder_channel
	ReminderOptIn        bool       `json:"reminder_opt_in"`        // event_registrations.reminder_opt_in
	ReminderScheduledFor *time.Time `json:"reminder_scheduled_for"` // event_registrations.reminder_scheduled_for (nullable)
	ReminderSentAt       *time.Time `json:"reminder_sent_at"`       // event_registrations.reminder_sent_at (nullable)
	RegisteredAt         time.Time  `json:"registered_at"`          // event_registrations.registered_at
	CanceledAt           *time.Time `json:"canceled_at"`            // event_registrations.canceled_at (nullable)
	UpdatedAt            time.Time  `json:"updated_at"`             // event_registrations.updated_at
}

// EventCounts is the aggregate view of one event's committed
// registration state. Counts are always derived by query, never kept
// in a counter column.
type EventCounts struct {
	RegisteredCount int `json:"registered_count"`
	WaitlistedCount int `json:"waitlisted_count"`
}
