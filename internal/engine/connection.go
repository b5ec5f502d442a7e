package engine

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aqasim81/depmigrate/internal/config"
	"github.com/aqasim81/depmigrate/internal/database"
)

// session is the locked connection a run works through.
type session interface {
	database.Querier
	Release(ctx context.Context) error
}

// connection is the dedicated database connection opened for one attempt.
type connection interface {
	Lock(ctx context.Context) (session, error)
	Querier() database.Querier
	Close()
}

type pgConnection struct {
	pool   *pgxpool.Pool
	lockID int64
	noWait bool
}

func (c *pgConnection) Lock(ctx context.Context) (session, error) {
	var (
		h   *database.LockHandle
		err error
	)

	if c.noWait {
		h, err = database.TryAcquireLock(ctx, c.pool, c.lockID)
	} else {
		h, err = database.AcquireLock(ctx, c.pool, c.lockID)
	}

	if err != nil {
		return nil, err
	}

	return h, nil
}

func (c *pgConnection) Querier() database.Querier {
	return c.pool
}

func (c *pgConnection) Close() {
	c.pool.Close()
}

// dialPostgres opens the dedicated single-connection pool.
func (e *Engine) dialPostgres(ctx context.Context) (connection, error) {
	if e.settings.DatabaseURL == "" {
		return nil, config.ErrNoConnection
	}

	pool, err := database.NewPool(ctx, e.settings.DatabaseURL, database.PoolOptions{
		ConnectTimeout: e.settings.ConnectTimeout,
		IdleTimeout:    e.settings.IdleTimeout,
	})
	if err != nil {
		return nil, err
	}

	return &pgConnection{pool: pool, lockID: e.settings.LockID, noWait: e.settings.NoWait}, nil
}
