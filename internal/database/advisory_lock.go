package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// LockHandle wraps a dedicated pooled connection that holds a
// session-level advisory lock. It is itself a Querier so that all work
// done under the lock runs on the locked session. Call Release to unlock
// and return the connection to the pool.
type LockHandle struct {
	conn   *pgxpool.Conn
	lockID int64
}

// AcquireLock blocks until the session-level advisory lock lockID is granted
// or ctx is done. A second process calling AcquireLock with the same lockID
// waits here until the first releases it.
func AcquireLock(ctx context.Context, pool *pgxpool.Pool, lockID int64) (*LockHandle, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: acquiring connection for advisory lock: %w", ErrConnectionFailed, err)
	}

	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", lockID); err != nil {
		conn.Release()

		return nil, fmt.Errorf("%w: pg_advisory_lock(%d): %w", ErrLockFailed, lockID, err)
	}

	return &LockHandle{conn: conn, lockID: lockID}, nil
}

// TryAcquireLock attempts to acquire the advisory lock without waiting.
// Returns ErrLockNotAcquired if the lock is already held by another session.
func TryAcquireLock(ctx context.Context, pool *pgxpool.Pool, lockID int64) (*LockHandle, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: acquiring connection for advisory lock: %w", ErrConnectionFailed, err)
	}

	var acquired bool

	err = conn.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", lockID).Scan(&acquired)
	if err != nil {
		conn.Release()

		return nil, fmt.Errorf("%w: pg_try_advisory_lock(%d): %w", ErrLockFailed, lockID, err)
	}

	if !acquired {
		conn.Release()

		return nil, fmt.Errorf("%w: lock id %d", ErrLockNotAcquired, lockID)
	}

	return &LockHandle{conn: conn, lockID: lockID}, nil
}

// LockID returns the advisory lock key this handle holds.
func (h *LockHandle) LockID() int64 {
	return h.lockID
}

// Release unlocks the advisory lock and returns the connection to the pool.
// Safe to call multiple times; subsequent calls are no-ops.
func (h *LockHandle) Release(ctx context.Context) error {
	if h == nil || h.conn == nil {
		return nil
	}

	_, err := h.conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", h.lockID)
	h.conn.Release()
	h.conn = nil

	if err != nil {
		return fmt.Errorf("releasing advisory lock %d: %w", h.lockID, err)
	}

	return nil
}

// Exec runs sql on the locked session.
func (h *LockHandle) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return h.conn.Exec(ctx, sql, args...)
}

// Query runs sql on the locked session.
func (h *LockHandle) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return h.conn.Query(ctx, sql, args...)
}

// QueryRow runs sql on the locked session.
func (h *LockHandle) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return h.conn.QueryRow(ctx, sql, args...)
}

// Begin starts a transaction on the locked session.
func (h *LockHandle) Begin(ctx context.Context) (pgx.Tx, error) {
	return h.conn.Begin(ctx)
}
