package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/aqasim81/depmigrate/internal/database"
)

// Status is the outcome recorded for a migration.
type Status string

// Ledger statuses.
const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Metadata is stored in the metadata JSONB column: what the resolver saw
// when the migration last ran.
type Metadata struct {
	Extractor    string   `json:"extractor,omitempty"`
	Order        int      `json:"order"`
	Creates      []string `json:"creates,omitempty"`
	References   []string `json:"references,omitempty"`
	Dependencies []string `json:"dependencies,omitempty"`
	Reason       string   `json:"reason,omitempty"`
}

// MigrationRecord is one persisted ledger row.
type MigrationRecord struct {
	ID               int64
	Filename         string
	Checksum         string
	Status           Status
	ExecutedAt       time.Time
	ExecutionTimeMs  int
	ErrorMessage     string
	RecoveryAttempts int
	Metadata         *Metadata
}

// RunningParams contains the fields written when a migration starts.
type RunningParams struct {
	Filename string
	Checksum string
	Metadata Metadata
}

// Ledger reads and writes the migration ledger table. All writes are
// expected to happen while the caller holds the migration advisory lock.
type Ledger struct {
	db    database.Querier
	table string // sanitized, ready to interpolate
}

// New creates a Ledger over db for the named table ("" means DefaultTable).
func New(db database.Querier, table string) *Ledger {
	return &Ledger{db: db, table: quoteTable(table)}
}

// Table returns the sanitized table name.
func (l *Ledger) Table() string {
	return l.table
}

// EnsureSchema creates the ledger table and any missing columns. Safe to
// run on every invocation.
func (l *Ledger) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements(l.table) {
		if _, err := l.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("%w: %w", ErrSchemaSetup, err)
		}
	}

	return nil
}

// CompletedChecksums returns filename -> checksum for every completed record.
func (l *Ledger) CompletedChecksums(ctx context.Context) (map[string]string, error) {
	rows, err := l.db.Query(ctx,
		fmt.Sprintf(`SELECT filename, checksum FROM %s WHERE status = $1`, l.table),
		string(StatusCompleted),
	)
	if err != nil {
		return nil, fmt.Errorf("querying completed migrations: %w", err)
	}
	defer rows.Close()

	sums := make(map[string]string)

	for rows.Next() {
		var filename, checksum string
		if err := rows.Scan(&filename, &checksum); err != nil {
			return nil, fmt.Errorf("scanning completed migration: %w", err)
		}

		sums[filename] = checksum
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading completed migrations: %w", err)
	}

	return sums, nil
}

// MarkRunning upserts the record for a migration about to execute: status
// running, recovery_attempts incremented, previous error kept until the
// outcome is known.
func (l *Ledger) MarkRunning(ctx context.Context, p RunningParams) error {
	meta, err := json.Marshal(p.Metadata)
	if err != nil {
		return fmt.Errorf("encoding metadata for %s: %w", p.Filename, err)
	}

	_, err = l.db.Exec(ctx,
		fmt.Sprintf(`INSERT INTO %s AS l (filename, checksum, status, executed_at, recovery_attempts, metadata)
		 VALUES ($1, $2, $3, NOW(), 1, $4::jsonb)
		 ON CONFLICT (filename) DO UPDATE SET
		     checksum = EXCLUDED.checksum,
		     status = EXCLUDED.status,
		     executed_at = NOW(),
		     recovery_attempts = l.recovery_attempts + 1,
		     metadata = EXCLUDED.metadata`, l.table),
		p.Filename, p.Checksum, string(StatusRunning), string(meta),
	)
	if err != nil {
		return fmt.Errorf("recording migration %s as running: %w", p.Filename, err)
	}

	return nil
}

// MarkCompleted records a successful run and clears any earlier error.
func (l *Ledger) MarkCompleted(ctx context.Context, filename string, elapsedMs int) error {
	return l.finish(ctx, filename, StatusCompleted, elapsedMs, nil)
}

// MarkFailed records a failed run with its error text.
func (l *Ledger) MarkFailed(ctx context.Context, filename string, elapsedMs int, message string) error {
	return l.finish(ctx, filename, StatusFailed, elapsedMs, &message)
}

func (l *Ledger) finish(ctx context.Context, filename string, status Status, elapsedMs int, message *string) error {
	tag, err := l.db.Exec(ctx,
		fmt.Sprintf(`UPDATE %s
		 SET status = $2, execution_time_ms = $3, error_message = $4, executed_at = NOW()
		 WHERE filename = $1`, l.table),
		filename, string(status), elapsedMs, message,
	)
	if err != nil {
		return fmt.Errorf("recording migration %s as %s: %w", filename, status, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("migration %s: %w", filename, ErrRecordNotFound)
	}

	return nil
}

const selectColumns = `id, filename, checksum, status, executed_at,
       COALESCE(execution_time_ms, 0), COALESCE(error_message, ''),
       recovery_attempts, metadata`

// Records returns every ledger row ordered by filename.
func (l *Ledger) Records(ctx context.Context) ([]MigrationRecord, error) {
	rows, err := l.db.Query(ctx,
		fmt.Sprintf(`SELECT %s FROM %s ORDER BY filename`, selectColumns, l.table),
	)
	if err != nil {
		return nil, fmt.Errorf("querying ledger: %w", err)
	}
	defer rows.Close()

	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (MigrationRecord, error) {
		return scanRecord(row)
	})
	if err != nil {
		return nil, fmt.Errorf("scanning ledger: %w", err)
	}

	return records, nil
}

// Record returns the ledger row for filename.
func (l *Ledger) Record(ctx context.Context, filename string) (MigrationRecord, error) {
	row := l.db.QueryRow(ctx,
		fmt.Sprintf(`SELECT %s FROM %s WHERE filename = $1`, selectColumns, l.table),
		filename,
	)

	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return MigrationRecord{}, fmt.Errorf("migration %s: %w", filename, ErrRecordNotFound)
		}

		return MigrationRecord{}, fmt.Errorf("reading ledger record %s: %w", filename, err)
	}

	return rec, nil
}

func scanRecord(row pgx.Row) (MigrationRecord, error) {
	var (
		r      MigrationRecord
		status string
		meta   []byte
	)

	err := row.Scan(&r.ID, &r.Filename, &r.Checksum, &status, &r.ExecutedAt,
		&r.ExecutionTimeMs, &r.ErrorMessage, &r.RecoveryAttempts, &meta)
	if err != nil {
		return MigrationRecord{}, err
	}

	r.Status = Status(status)

	if len(meta) > 0 {
		var m Metadata
		if err := json.Unmarshal(meta, &m); err != nil {
			return MigrationRecord{}, fmt.Errorf("decoding metadata for %s: %w", r.Filename, err)
		}

		r.Metadata = &m
	}

	return r, nil
}
