package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// execer is anything that can run a statement: a pgx.Tx or a database.Querier.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// SetLockTimeout sets lock_timeout for the current transaction only.
// The migration fails fast if it cannot acquire a lock within the
// duration instead of queueing behind application traffic.
func SetLockTimeout(ctx context.Context, tx execer, timeout time.Duration) error {
	sql := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", timeout.Milliseconds())

	_, err := tx.Exec(ctx, sql)
	if err != nil {
		return fmt.Errorf("setting lock_timeout: %w", err)
	}

	return nil
}

// SetStatementTimeout sets statement_timeout for the current transaction only.
func SetStatementTimeout(ctx context.Context, tx execer, timeout time.Duration) error {
	sql := fmt.Sprintf("SET LOCAL statement_timeout = '%dms'", timeout.Milliseconds())

	_, err := tx.Exec(ctx, sql)
	if err != nil {
		return fmt.Errorf("setting statement_timeout: %w", err)
	}

	return nil
}

// SetSessionTimeouts sets both timeouts for the whole session. Used for
// migrations that cannot run in a transaction; pair with ResetTimeouts.
func SetSessionTimeouts(ctx context.Context, db execer, lock, statement time.Duration) error {
	sql := fmt.Sprintf("SET lock_timeout = '%dms'; SET statement_timeout = '%dms'",
		lock.Milliseconds(), statement.Milliseconds())

	_, err := db.Exec(ctx, sql)
	if err != nil {
		return fmt.Errorf("setting session timeouts: %w", err)
	}

	return nil
}

// ResetTimeouts restores both session timeouts to the server defaults.
func ResetTimeouts(ctx context.Context, db execer) error {
	_, err := db.Exec(ctx, "RESET lock_timeout; RESET statement_timeout")
	if err != nil {
		return fmt.Errorf("resetting timeouts: %w", err)
	}

	return nil
}
