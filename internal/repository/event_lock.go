package repository

import (
	"context"
	"crypto/sha1"
	"database/sql"
	"fmt"
)

// lockWaitSeconds is how long GET_LOCK blocks before giving up. Lock
// holders finish in a few statements, so a short wait only triggers
// under pathological contention or a wedged transaction.
const lockWaitSeconds = 10

// EventLockName derives the MySQL named-lock key for an event. Names
// are capped at 64 characters server-side, so the event id is hashed
// rather than embedded.
func EventLockName(eventID string) string {
	sum := sha1.Sum([]byte(eventID))
	return fmt.Sprintf("evreg:%x", sum)
}

// AcquireEventLock takes the per-event advisory lock on the given
// dedicated connection. MySQL named locks are session-scoped, not
// transaction-scoped, so the caller must run its whole transaction on
// this same connection and call ReleaseEventLock only after commit;
// releasing earlier would let another writer read counts that do not
// yet include this transaction's rows. If the connection drops, the
// server releases the lock on its own.
//
// Returns ErrLockTimeout when the wait elapses.
func AcquireEventLock(ctx context.Context, conn *sql.Conn, eventID string) error {
	var got sql.NullInt64
	err := conn.QueryRowContext(ctx,
		`SELECT GET_LOCK(?, ?)`, EventLockName(eventID), lockWaitSeconds,
	).Scan(&got)
	if err != nil {
		return fmt.Errorf("acquire event lock: %w", err)
	}
	if !got.Valid || got.Int64 != 1 {
		return ErrLockTimeout
	}
	return nil
}

// ReleaseEventLock drops the advisory lock on the same connection that
// acquired it. Errors are returned for logging but are not fatal to the
// already-committed operation.
func ReleaseEventLock(ctx context.Context, conn *sql.Conn, eventID string) error {
	var released sql.NullInt64
	err := conn.QueryRowContext(ctx,
		`SELECT RELEASE_LOCK(?)`, EventLockName(eventID),
	).Scan(&released)
	if err != nil {
		return fmt.Errorf("release event lock: %w", err)
	}
	return nil
}
