package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/aqasim81/depmigrate/internal/database"
	"github.com/aqasim81/depmigrate/internal/ledger"
	"github.com/aqasim81/depmigrate/internal/migration"
	"github.com/aqasim81/depmigrate/internal/parser"
)

// Progress status constants reported via ProgressEvent.
const (
	StatusStarting  = "starting"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusSkipped   = "skipped"
	StatusPending   = "pending"
)

// Reason says why a migration is being executed.
type Reason string

// Execution reasons.
const (
	ReasonNew           Reason = "new"
	ReasonChecksumDrift Reason = "checksum_drift"
)

// ProgressEvent is emitted by the executor for each migration processed.
type ProgressEvent struct {
	Migration *migration.Migration
	Status    string
	Reason    Reason
	Duration  time.Duration
	Error     error
}

// Result lists what happened to each migration in one Apply call.
type Result struct {
	Executed []string
	Skipped  []string
	Pending  []string // dry run only: would have executed
	Failed   string
}

// Total is the number of migrations Apply looked at.
func (r Result) Total() int {
	n := len(r.Executed) + len(r.Skipped) + len(r.Pending)
	if r.Failed != "" {
		n++
	}

	return n
}

// Ledger abstracts the migration ledger for testability.
type Ledger interface {
	CompletedChecksums(ctx context.Context) (map[string]string, error)
	MarkRunning(ctx context.Context, p ledger.RunningParams) error
	MarkCompleted(ctx context.Context, filename string, elapsedMs int) error
	MarkFailed(ctx context.Context, filename string, elapsedMs int, message string) error
}

// sqlExecFunc executes a single migration's SQL.
type sqlExecFunc func(ctx context.Context, m *migration.Migration) error

// Executor runs pending migrations in the given order, one transaction each,
// and stops at the first failure.
type Executor struct {
	db               database.Querier
	ledger           Ledger
	lockTimeout      time.Duration
	statementTimeout time.Duration
	dryRun           bool
	extractor        string
	onProgress       func(ProgressEvent)
	execSQL          sqlExecFunc
}

// Option configures an Executor.
type Option func(*Executor)

// WithLockTimeout sets the per-transaction lock_timeout.
func WithLockTimeout(d time.Duration) Option {
	return func(e *Executor) { e.lockTimeout = d }
}

// WithStatementTimeout sets the per-transaction statement_timeout.
func WithStatementTimeout(d time.Duration) Option {
	return func(e *Executor) { e.statementTimeout = d }
}

// WithDryRun enables dry-run mode where no SQL is executed and the ledger is not written.
func WithDryRun(b bool) Option {
	return func(e *Executor) { e.dryRun = b }
}

// WithProgressCallback sets a function called for each migration processed.
func WithProgressCallback(fn func(ProgressEvent)) Option {
	return func(e *Executor) { e.onProgress = fn }
}

// WithExtractorName records which extractor produced the entity sets in ledger metadata.
func WithExtractorName(name string) Option {
	return func(e *Executor) { e.extractor = name }
}

// New creates an Executor that runs SQL on db and records outcomes in l.
func New(db database.Querier, l Ledger, opts ...Option) *Executor {
	e := &Executor{
		db:     db,
		ledger: l,
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.execSQL == nil {
		e.execSQL = e.executeMigration
	}

	return e
}

// Apply diffs migrations against the ledger and executes, in slice order,
// every migration without a completed record of the same checksum. It
// returns at the first failure; migrations after it are not attempted.
func (e *Executor) Apply(ctx context.Context, migrations []migration.Migration) (Result, error) {
	var res Result

	completed, err := e.ledger.CompletedChecksums(ctx)
	if err != nil {
		return res, fmt.Errorf("%w: %w", ErrLedger, err)
	}

	for i := range migrations {
		m := &migrations[i]

		reason, run := decide(completed, m)
		if !run {
			res.Skipped = append(res.Skipped, m.Filename)
			e.fireProgress(ProgressEvent{Migration: m, Status: StatusSkipped})

			continue
		}

		if e.dryRun {
			res.Pending = append(res.Pending, m.Filename)
			e.fireProgress(ProgressEvent{Migration: m, Status: StatusPending, Reason: reason})

			continue
		}

		if err := e.applyOne(ctx, m, reason); err != nil {
			res.Failed = m.Filename

			return res, err
		}

		res.Executed = append(res.Executed, m.Filename)
	}

	return res, nil
}

// decide reports whether m must run and why. Checksum drift is not an
// error: the changed file simply runs again.
func decide(completed map[string]string, m *migration.Migration) (Reason, bool) {
	stored, ok := completed[m.Filename]

	switch {
	case !ok:
		return ReasonNew, true
	case stored != m.Checksum:
		return ReasonChecksumDrift, true
	default:
		return "", false
	}
}

// applyOne marks the migration running, executes it, and records the outcome.
func (e *Executor) applyOne(ctx context.Context, m *migration.Migration, reason Reason) error {
	err := e.ledger.MarkRunning(ctx, ledger.RunningParams{
		Filename: m.Filename,
		Checksum: m.Checksum,
		Metadata: ledger.Metadata{
			Extractor:    e.extractor,
			Order:        m.Order,
			Creates:      m.Creates,
			References:   m.References,
			Dependencies: m.Dependencies,
			Reason:       string(reason),
		},
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrLedger, err)
	}

	e.fireProgress(ProgressEvent{Migration: m, Status: StatusStarting, Reason: reason})

	start := time.Now()
	execErr := e.execSQL(ctx, m)
	duration := time.Since(start)
	elapsed := elapsedMs(duration)

	if execErr != nil {
		e.fireProgress(ProgressEvent{
			Migration: m,
			Status:    StatusFailed,
			Reason:    reason,
			Duration:  duration,
			Error:     execErr,
		})

		failErr := fmt.Errorf("%w: %s: %w", ErrExecutionFailed, m.Filename, execErr)

		if err := e.ledger.MarkFailed(ctx, m.Filename, elapsed, execErr.Error()); err != nil {
			return errors.Join(failErr, fmt.Errorf("%w: %w", ErrLedger, err))
		}

		return failErr
	}

	if err := e.ledger.MarkCompleted(ctx, m.Filename, elapsed); err != nil {
		return fmt.Errorf("%w: recording %s: %w", ErrLedger, m.Filename, err)
	}

	e.fireProgress(ProgressEvent{
		Migration: m,
		Status:    StatusCompleted,
		Reason:    reason,
		Duration:  duration,
	})

	return nil
}

// executeMigration runs the SQL for a single migration, choosing between
// transactional and non-transactional execution based on whether the
// migration contains CREATE INDEX CONCURRENTLY.
func (e *Executor) executeMigration(ctx context.Context, m *migration.Migration) error {
	if parser.HasConcurrentIndex(m.Content) {
		return e.executeOutsideTransaction(ctx, m)
	}

	return ExecInTransaction(ctx, e.db, func(tx pgx.Tx) error {
		if e.lockTimeout > 0 {
			if err := SetLockTimeout(ctx, tx, e.lockTimeout); err != nil {
				return err
			}
		}

		if e.statementTimeout > 0 {
			if err := SetStatementTimeout(ctx, tx, e.statementTimeout); err != nil {
				return err
			}
		}

		if _, err := tx.Exec(ctx, m.Content); err != nil {
			return fmt.Errorf("executing SQL: %w", err)
		}

		return nil
	})
}

func (e *Executor) executeOutsideTransaction(ctx context.Context, m *migration.Migration) error {
	if e.lockTimeout > 0 || e.statementTimeout > 0 {
		if err := SetSessionTimeouts(ctx, e.db, e.lockTimeout, e.statementTimeout); err != nil {
			return err
		}

		defer ResetTimeouts(ctx, e.db) //nolint:errcheck // session is reused; best-effort restore
	}

	return ExecWithoutTransaction(ctx, e.db, m.Content)
}

func (e *Executor) fireProgress(event ProgressEvent) {
	if e.onProgress != nil {
		e.onProgress(event)
	}
}

// elapsedMs rounds d up to whole milliseconds so a completed migration never
// records zero.
func elapsedMs(d time.Duration) int {
	ms := int((d + time.Millisecond - 1) / time.Millisecond)
	if ms < 1 {
		return 1
	}

	return ms
}
