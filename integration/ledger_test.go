//go:build integration

package integration

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aqasim81/depmigrate/internal/ledger"
)

func TestLedger_fullLifecycle(t *testing.T) {
	t.Parallel()

	pool, _ := SetupPostgres(t)
	ctx := context.Background()
	l := ledger.New(pool, "")

	require.NoError(t, l.EnsureSchema(ctx))
	require.NoError(t, l.EnsureSchema(ctx), "schema setup is idempotent")

	completed, err := l.CompletedChecksums(ctx)
	require.NoError(t, err)
	assert.Empty(t, completed)

	require.NoError(t, l.MarkRunning(ctx, ledger.RunningParams{
		Filename: "001_create_users.sql",
		Checksum: "abc123",
		Metadata: ledger.Metadata{Extractor: "regex", Order: 1, Creates: []string{"users"}, Reason: "new"},
	}))

	rec, err := l.Record(ctx, "001_create_users.sql")
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusRunning, rec.Status)
	assert.Equal(t, 1, rec.RecoveryAttempts)

	completed, err = l.CompletedChecksums(ctx)
	require.NoError(t, err)
	assert.Empty(t, completed, "running rows are not completed")

	require.NoError(t, l.MarkCompleted(ctx, "001_create_users.sql", 42))

	rec, err = l.Record(ctx, "001_create_users.sql")
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusCompleted, rec.Status)
	assert.Equal(t, 42, rec.ExecutionTimeMs)
	assert.Empty(t, rec.ErrorMessage)
	assert.False(t, rec.ExecutedAt.IsZero())
	require.NotNil(t, rec.Metadata)
	assert.Equal(t, []string{"users"}, rec.Metadata.Creates)
	assert.Equal(t, 1, rec.Metadata.Order)

	completed, err = l.CompletedChecksums(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"001_create_users.sql": "abc123"}, completed)
}

func TestLedger_failureThenRetry(t *testing.T) {
	t.Parallel()

	pool, _ := SetupPostgres(t)
	ctx := context.Background()
	l := ledger.New(pool, "")
	require.NoError(t, l.EnsureSchema(ctx))

	params := ledger.RunningParams{Filename: "002_add_email_index.sql", Checksum: "v1"}

	require.NoError(t, l.MarkRunning(ctx, params))
	require.NoError(t, l.MarkFailed(ctx, params.Filename, 3, `relation "users" does not exist`))

	rec, err := l.Record(ctx, params.Filename)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusFailed, rec.Status)
	assert.Equal(t, `relation "users" does not exist`, rec.ErrorMessage)

	params.Checksum = "v2"
	require.NoError(t, l.MarkRunning(ctx, params))
	require.NoError(t, l.MarkCompleted(ctx, params.Filename, 5))

	rec, err = l.Record(ctx, params.Filename)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusCompleted, rec.Status)
	assert.Equal(t, "v2", rec.Checksum)
	assert.Equal(t, 2, rec.RecoveryAttempts)
	assert.Empty(t, rec.ErrorMessage, "completion clears the previous error")

	records, err := l.Records(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
}

func TestLedger_missingRecord(t *testing.T) {
	t.Parallel()

	pool, _ := SetupPostgres(t)
	ctx := context.Background()
	l := ledger.New(pool, "")
	require.NoError(t, l.EnsureSchema(ctx))

	_, err := l.Record(ctx, "nope.sql")
	require.ErrorIs(t, err, ledger.ErrRecordNotFound)

	require.ErrorIs(t, l.MarkCompleted(ctx, "nope.sql", 1), ledger.ErrRecordNotFound)
}

func TestLedger_customSchemaQualifiedTable(t *testing.T) {
	t.Parallel()

	pool, _ := SetupPostgres(t)
	ctx := context.Background()

	_, err := pool.Exec(ctx, "CREATE SCHEMA ops")
	require.NoError(t, err)

	l := ledger.New(pool, "ops.migration_ledger")
	require.NoError(t, l.EnsureSchema(ctx))

	var exists bool

	require.NoError(t, pool.QueryRow(ctx, "SELECT to_regclass('ops.migration_ledger') IS NOT NULL").Scan(&exists))
	assert.True(t, exists)
}

func TestLedger_upgradesLegacyTable(t *testing.T) {
	t.Parallel()

	pool, _ := SetupPostgres(t)
	ctx := context.Background()

	_, err := pool.Exec(ctx, `CREATE TABLE schema_migrations (
		id SERIAL PRIMARY KEY,
		filename TEXT NOT NULL UNIQUE,
		checksum TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'completed',
		executed_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`)
	require.NoError(t, err)

	_, err = pool.Exec(ctx, `INSERT INTO schema_migrations (filename, checksum) VALUES ('001_create_users.sql', 'abc')`)
	require.NoError(t, err)

	l := ledger.New(pool, "")
	require.NoError(t, l.EnsureSchema(ctx))

	rec, err := l.Record(ctx, "001_create_users.sql")
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusCompleted, rec.Status)
	assert.Equal(t, 0, rec.ExecutionTimeMs)
	assert.Nil(t, rec.Metadata)
}
