package service

import "github.com/avdeyev/biblio-programs/internal/model"

// CapacityDecision is the outcome of evaluating one register call
// against an event's committed counts.
//
//  Status               – target status for the caller's row.
//  Position             – waitlist position to write; nil unless the
//                         target status is WAITLISTED.
//  Action               – history/action tag for the transition.
//  PromotedFromWaitlist – true when a previously waitlisted caller is
//                         being moved into a freed slot; VacatedPosition
//                         then holds their old slot so the reindexer can
//                         close it.
type CapacityDecision struct {
	Status               string
	Position             *int
	Action               string
	PromotedFromWaitlist bool
	VacatedPosition      int
}

// EvaluateCapacity decides what a register call should do. capacity is
// nil for unlimited events. registered/waitlisted are the committed
// counts for the event, read inside the locked transaction; existing is
// the caller's current row, or nil on first contact. The cases are
// evaluated strictly in order:
//
//  1. already REGISTERED            -> no-op, already_registered
//  2. WAITLISTED and a slot is free -> promote, registered
//  3. WAITLISTED and still full     -> no-op, already_waitlisted
//  4. new/canceled and a slot free  -> registered
//  5. new/canceled and full         -> waitlisted at the tail
//
// The function is pure; callers own all locking and persistence.
func EvaluateCapacity(capacity *int, registered, waitlisted int, existing *model.Registration) CapacityDecision {
	hasRoom := capacity == nil || registered < *capacity

	if existing != nil {
		switch existing.Status {
		case model.StatusRegistered:
			return CapacityDecision{
				Status: model.StatusRegistered,
				Action: model.ActionAlreadyRegistered,
			}
		case model.StatusWaitlisted:
			if hasRoom {
				d := CapacityDecision{
					Status:               model.StatusRegistered,
					Action:               model.ActionRegistered,
					PromotedFromWaitlist: true,
				}
				if existing.WaitlistPosition != nil {
					d.VacatedPosition = *existing.WaitlistPosition
				}
				return d
			}
			// Position stays exactly where it was.
			return CapacityDecision{
				Status:   model.StatusWaitlisted,
				Position: existing.WaitlistPosition,
				Action:   model.ActionAlreadyWaitlisted,
			}
		}
		// CANCELED falls through and is treated like a fresh registration.
	}

	if hasRoom {
		return CapacityDecision{
			Status: model.StatusRegistered,
			Action: model.ActionRegistered,
		}
	}
	pos := waitlisted + 1
	return CapacityDecision{
		Status:   model.StatusWaitlisted,
		Position: &pos,
		Action:   model.ActionWaitlisted,
	}
}
