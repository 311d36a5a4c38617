package repository

import (
	"strings"
	"testing"
)

func TestEventLockNameStable(t *testing.T) {
	a := EventLockName("ev-2026-summer-reading")
	b := EventLockName("ev-2026-summer-reading")
	if a != b {
		t.Fatalf("same event produced different lock names: %q vs %q", a, b)
	}
}

func TestEventLockNameDistinctPerEvent(t *testing.T) {
	if EventLockName("ev-1") == EventLockName("ev-2") {
		t.Fatal("different events collided on one lock name")
	}
}

func TestEventLockNameFitsMySQLLimit(t *testing.T) {
	// GET_LOCK names are capped at 64 characters; hashing keeps even
	// very long external event ids under the cap.
	name := EventLockName(strings.Repeat("long-external-event-identifier-", 10))
	if len(name) > 64 {
		t.Fatalf("lock name is %d chars, exceeds MySQL's 64-char cap", len(name))
	}
	if !strings.HasPrefix(name, "evreg:") {
		t.Fatalf("lock name %q missing namespace prefix", name)
	}
}
