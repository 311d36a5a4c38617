// Package queue defines message payloads exchanged over the message broker.
package queue

// RegistrationActivityQueue is the durable queue every registration
// state transition is published to. Downstream notification and
// reporting systems consume from it; this service never reads it back
// except for the local logging consumer.
const RegistrationActivityQueue = "registration.activity"

// RegistrationActivityEvent is published after a register, cancel or
// waitlist-promotion transition commits. It carries enough information
// for downstream consumers to notify patrons or feed reports without
// querying the primary database.
type RegistrationActivityEvent struct {
	EventID              string `json:"event_id"`
	PatronID             int64  `json:"patron_id"`
	Action               string `json:"action"`
	Status               string `json:"status"`
	WaitlistPosition     *int   `json:"waitlist_position,omitempty"`
	PromotedFromWaitlist bool   `json:"promoted_from_waitlist,omitempty"`
	ReminderChannel      string `json:"reminder_channel"`
	ReminderScheduledFor string `json:"reminder_scheduled_for,omitempty"`
	OccurredAt           string `json:"occurred_at"`
}
