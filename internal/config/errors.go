package config

import "errors"

// ErrInvalidConfig indicates a configuration value the engine cannot run with.
var ErrInvalidConfig = errors.New("invalid configuration")

// ErrNoConnection indicates neither a database URL nor a database host was configured.
var ErrNoConnection = errors.New(
	"database connection is required (set --database-url, MIGRATE_DATABASE_URL, DATABASE_URL, or PGHOST/PGDATABASE)",
)
