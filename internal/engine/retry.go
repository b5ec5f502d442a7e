package engine

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/aqasim81/depmigrate/internal/config"
	"github.com/aqasim81/depmigrate/internal/database"
	"github.com/aqasim81/depmigrate/internal/executor"
	"github.com/aqasim81/depmigrate/internal/migration"
	"github.com/aqasim81/depmigrate/internal/resolver"
)

//nolint:gochecknoglobals // fixed classification table
var permanentErrors = []error{
	config.ErrNoConnection,
	database.ErrInvalidDatabaseURL,
	database.ErrLockNotAcquired,
	database.ErrLockFailed,
	migration.ErrLoad,
	resolver.ErrExtract,
	resolver.ErrCircularDependency,
	executor.ErrExecutionFailed,
	context.Canceled,
}

// isPermanent reports whether retrying the whole pipeline cannot help:
// configuration defects, a held lock in no-wait mode, and failed
// migrations that need a file-level fix.
func isPermanent(err error) bool {
	for _, target := range permanentErrors {
		if errors.Is(err, target) {
			return true
		}
	}

	return false
}

// retryPolicy is a fixed delay between at most maxAttempts attempts.
func retryPolicy(ctx context.Context, maxAttempts int, delay time.Duration) backoff.BackOff {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	return backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(delay), uint64(maxAttempts-1)),
		ctx,
	)
}
