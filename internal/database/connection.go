package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// dedicatedConns caps the pool at one connection: the lock handle pins it and
// every ledger write and migration transaction runs over that session.
const dedicatedConns = 1

// Querier is the subset of pgx shared by *pgxpool.Pool, *pgxpool.Conn and
// *LockHandle. The ledger and executor are written against it.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PoolOptions bounds how long the dedicated pool waits to connect and how
// long it keeps an idle connection open.
type PoolOptions struct {
	ConnectTimeout time.Duration
	IdleTimeout    time.Duration
}

// NewPool creates the dedicated migration pool for the given database URL.
// It parses the connection string, applies the timeouts, and pings the
// database to verify connectivity.
func NewPool(ctx context.Context, databaseURL string, opts PoolOptions) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDatabaseURL, err)
	}

	poolCfg.MaxConns = dedicatedConns
	poolCfg.MinConns = 0

	if opts.ConnectTimeout > 0 {
		poolCfg.ConnConfig.ConnectTimeout = opts.ConnectTimeout
	}

	if opts.IdleTimeout > 0 {
		poolCfg.MaxConnIdleTime = opts.IdleTimeout
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	pingCtx := ctx

	if opts.ConnectTimeout > 0 {
		var cancel context.CancelFunc

		pingCtx, cancel = context.WithTimeout(ctx, opts.ConnectTimeout)
		defer cancel()
	}

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()

		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	return pool, nil
}
