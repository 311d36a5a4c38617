package service

import (
	"testing"

	"github.com/avdeyev/biblio-programs/internal/model"
)

func intPtr(n int) *int { return &n }

func existingRow(status string, pos *int) *model.Registration {
	return &model.Registration{
		EventID:          "ev-100",
		PatronID:         7,
		Status:           status,
		WaitlistPosition: pos,
	}
}

func TestEvaluateCapacityFreshWithRoom(t *testing.T) {
	d := EvaluateCapacity(intPtr(10), 3, 0, nil)
	if d.Status != model.StatusRegistered {
		t.Fatalf("status = %q, want REGISTERED", d.Status)
	}
	if d.Action != model.ActionRegistered {
		t.Fatalf("action = %q, want %q", d.Action, model.ActionRegistered)
	}
	if d.Position != nil {
		t.Fatalf("position = %v, want nil", *d.Position)
	}
	if d.PromotedFromWaitlist {
		t.Fatal("fresh registration must not be flagged as promotion")
	}
}

func TestEvaluateCapacityFreshEventFull(t *testing.T) {
	d := EvaluateCapacity(intPtr(2), 2, 3, nil)
	if d.Status != model.StatusWaitlisted {
		t.Fatalf("status = %q, want WAITLISTED", d.Status)
	}
	if d.Action != model.ActionWaitlisted {
		t.Fatalf("action = %q, want %q", d.Action, model.ActionWaitlisted)
	}
	if d.Position == nil || *d.Position != 4 {
		t.Fatalf("position = %v, want 4 (tail of a 3-deep waitlist)", d.Position)
	}
}

func TestEvaluateCapacityZeroCapacityAlwaysWaitlists(t *testing.T) {
	d := EvaluateCapacity(intPtr(0), 0, 0, nil)
	if d.Status != model.StatusWaitlisted {
		t.Fatalf("status = %q, want WAITLISTED", d.Status)
	}
	if d.Position == nil || *d.Position != 1 {
		t.Fatalf("position = %v, want 1", d.Position)
	}
}

func TestEvaluateCapacityUnlimitedNeverWaitlists(t *testing.T) {
	d := EvaluateCapacity(nil, 100000, 0, nil)
	if d.Status != model.StatusRegistered {
		t.Fatalf("status = %q, want REGISTERED for unlimited capacity", d.Status)
	}
}

func TestEvaluateCapacityAlreadyRegisteredIsNoop(t *testing.T) {
	// Re-registering while REGISTERED is idempotent even when the event
	// is otherwise full.
	d := EvaluateCapacity(intPtr(1), 1, 2, existingRow(model.StatusRegistered, nil))
	if d.Status != model.StatusRegistered {
		t.Fatalf("status = %q, want REGISTERED", d.Status)
	}
	if d.Action != model.ActionAlreadyRegistered {
		t.Fatalf("action = %q, want %q", d.Action, model.ActionAlreadyRegistered)
	}
	if d.PromotedFromWaitlist {
		t.Fatal("no-op must not be flagged as promotion")
	}
}

func TestEvaluateCapacityWaitlistedPromotedWhenRoomOpens(t *testing.T) {
	d := EvaluateCapacity(intPtr(5), 4, 2, existingRow(model.StatusWaitlisted, intPtr(2)))
	if d.Status != model.StatusRegistered {
		t.Fatalf("status = %q, want REGISTERED", d.Status)
	}
	if !d.PromotedFromWaitlist {
		t.Fatal("expected promotion flag")
	}
	if d.VacatedPosition != 2 {
		t.Fatalf("vacated position = %d, want 2", d.VacatedPosition)
	}
	if d.Position != nil {
		t.Fatalf("position = %v, want nil after promotion", *d.Position)
	}
}

func TestEvaluateCapacityWaitlistedStaysPutWhileFull(t *testing.T) {
	d := EvaluateCapacity(intPtr(3), 3, 4, existingRow(model.StatusWaitlisted, intPtr(3)))
	if d.Status != model.StatusWaitlisted {
		t.Fatalf("status = %q, want WAITLISTED", d.Status)
	}
	if d.Action != model.ActionAlreadyWaitlisted {
		t.Fatalf("action = %q, want %q", d.Action, model.ActionAlreadyWaitlisted)
	}
	// The patron keeps their exact slot, not the tail.
	if d.Position == nil || *d.Position != 3 {
		t.Fatalf("position = %v, want 3", d.Position)
	}
}

func TestEvaluateCapacityCanceledRowReactsLikeFresh(t *testing.T) {
	full := EvaluateCapacity(intPtr(1), 1, 0, existingRow(model.StatusCanceled, nil))
	if full.Status != model.StatusWaitlisted || full.Position == nil || *full.Position != 1 {
		t.Fatalf("canceled re-register on full event: got %+v, want WAITLISTED at 1", full)
	}

	open := EvaluateCapacity(intPtr(1), 0, 0, existingRow(model.StatusCanceled, nil))
	if open.Status != model.StatusRegistered || open.Action != model.ActionRegistered {
		t.Fatalf("canceled re-register with room: got %+v, want REGISTERED", open)
	}
}

func TestEvaluateCapacityBoundary(t *testing.T) {
	// registered == capacity-1 is the last direct seat; registered ==
	// capacity flips to the waitlist.
	if d := EvaluateCapacity(intPtr(4), 3, 0, nil); d.Status != model.StatusRegistered {
		t.Fatalf("one seat left: status = %q, want REGISTERED", d.Status)
	}
	if d := EvaluateCapacity(intPtr(4), 4, 0, nil); d.Status != model.StatusWaitlisted {
		t.Fatalf("exactly full: status = %q, want WAITLISTED", d.Status)
	}
}
