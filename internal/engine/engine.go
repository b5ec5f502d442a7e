// Package engine runs the migration pipeline: connect, lock, ensure the
// ledger, load, resolve, execute, release, close. The whole pipeline is
// retried at the process level for transient failures.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/aqasim81/depmigrate/internal/config"
	"github.com/aqasim81/depmigrate/internal/database"
	"github.com/aqasim81/depmigrate/internal/executor"
	"github.com/aqasim81/depmigrate/internal/ledger"
	"github.com/aqasim81/depmigrate/internal/migration"
	"github.com/aqasim81/depmigrate/internal/parser"
	"github.com/aqasim81/depmigrate/internal/resolver"
)

// Phase names logged under the "phase" key.
const (
	PhaseConnect = "connect"
	PhaseLock    = "lock"
	PhaseSchema  = "schema"
	PhaseLoad    = "load"
	PhaseResolve = "resolve"
	PhaseExecute = "execute"
	PhaseRelease = "release"
	PhaseClose   = "close"
)

// Settings is everything one engine needs to run.
type Settings struct {
	DatabaseURL              string
	MigrationsDir            string
	LedgerTable              string
	LockID                   int64
	NoWait                   bool
	DryRun                   bool
	ConnectTimeout           time.Duration
	IdleTimeout              time.Duration
	LockTimeout              time.Duration
	StatementTimeout         time.Duration
	MaxAttempts              int
	RetryDelay               time.Duration
	Extractor                string
	AllowForwardDependencies bool
}

// SettingsFromConfig copies the engine's settings out of cfg. A missing
// connection leaves DatabaseURL empty; commands that need the database
// fail with config.ErrNoConnection when they dial.
func SettingsFromConfig(cfg *config.Config) Settings {
	url, _ := cfg.ConnString()

	return Settings{
		DatabaseURL:              url,
		MigrationsDir:            cfg.MigrationsDir,
		LedgerTable:              cfg.LedgerTable,
		LockID:                   cfg.LockID,
		ConnectTimeout:           cfg.ConnectTimeout,
		IdleTimeout:              cfg.IdleTimeout,
		LockTimeout:              cfg.LockTimeout,
		StatementTimeout:         cfg.StatementTimeout,
		MaxAttempts:              cfg.MaxAttempts,
		RetryDelay:               cfg.RetryDelay,
		Extractor:                cfg.Extractor,
		AllowForwardDependencies: cfg.AllowForwardDependencies,
	}
}

// Summary describes a finished run.
type Summary struct {
	Result   executor.Result
	Total    int // migrations found in the directory
	Elapsed  time.Duration
	Attempts int
	Forward  []resolver.ForwardReference
}

// runLedger is the ledger surface one attempt needs.
type runLedger interface {
	executor.Ledger
	EnsureSchema(ctx context.Context) error
}

// applier executes resolved migrations against the ledger.
type applier interface {
	Apply(ctx context.Context, migrations []migration.Migration) (executor.Result, error)
}

type (
	dialFunc      func(ctx context.Context) (connection, error)
	ledgerFunc    func(db database.Querier) runLedger
	applierFunc   func(db database.Querier, l executor.Ledger) applier
	loadFunc      func(dir string) ([]migration.Migration, error)
	extractorFunc func(name string) (parser.Extractor, error)
)

// Engine runs migrations for one database.
type Engine struct {
	settings Settings
	log      *zap.Logger

	dial         dialFunc
	newLedger    ledgerFunc
	newApplier   applierFunc
	load         loadFunc
	newExtractor extractorFunc
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. The default discards everything.
func WithLogger(log *zap.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// New creates an Engine. The advisory lock key, ledger table and every
// timeout come from s.
func New(s Settings, opts ...Option) *Engine {
	e := &Engine{
		settings:     s,
		log:          zap.NewNop(),
		load:         migration.LoadFromDir,
		newExtractor: parser.NewExtractor,
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.dial == nil {
		e.dial = e.dialPostgres
	}

	if e.newLedger == nil {
		e.newLedger = func(db database.Querier) runLedger {
			return ledger.New(db, e.settings.LedgerTable)
		}
	}

	if e.newApplier == nil {
		e.newApplier = e.defaultApplier
	}

	return e
}

func (e *Engine) defaultApplier(db database.Querier, l executor.Ledger) applier {
	return executor.New(db, l,
		executor.WithLockTimeout(e.settings.LockTimeout),
		executor.WithStatementTimeout(e.settings.StatementTimeout),
		executor.WithDryRun(e.settings.DryRun),
		executor.WithExtractorName(e.extractorName()),
		executor.WithProgressCallback(e.logProgress),
	)
}

// Run executes the pipeline, retrying the whole of it with a fixed delay
// while failures are transient. Permanent failures return immediately.
func (e *Engine) Run(ctx context.Context) (Summary, error) {
	var (
		summary  Summary
		attempts int
	)

	start := time.Now()

	op := func() error {
		attempts++

		s, err := e.runOnce(ctx, attempts)
		summary = s

		if err != nil && isPermanent(err) {
			return backoff.Permanent(err)
		}

		return err
	}

	notify := func(err error, wait time.Duration) {
		e.log.Warn("Attempt failed, retrying.",
			zap.Int("attempt", attempts),
			zap.Int("max_attempts", e.settings.MaxAttempts),
			zap.Duration("retry_in", wait),
			zap.Error(err))
	}

	err := backoff.RetryNotify(op, retryPolicy(ctx, e.settings.MaxAttempts, e.settings.RetryDelay), notify)

	summary.Attempts = attempts
	summary.Elapsed = time.Since(start)

	if err != nil {
		if !isPermanent(err) && attempts >= e.settings.MaxAttempts {
			err = fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, attempts, err)
		}

		fields := []zap.Field{zap.Int("attempts", attempts), zap.Error(err)}
		if summary.Result.Failed != "" {
			fields = append(fields, zap.String("filename", summary.Result.Failed))
		}

		e.log.Error("Migration run failed.", fields...)

		return summary, err
	}

	e.log.Info("Migration run complete.",
		zap.Int("executed", len(summary.Result.Executed)),
		zap.Int("skipped", len(summary.Result.Skipped)),
		zap.Int("pending", len(summary.Result.Pending)),
		zap.Int("total", summary.Total),
		zap.Duration("elapsed", summary.Elapsed),
		zap.Bool("dry_run", e.settings.DryRun))

	return summary, nil
}

// runOnce is a single attempt. The lock is released and the connection
// closed on every path once they have been obtained.
func (e *Engine) runOnce(ctx context.Context, attempt int) (Summary, error) {
	var summary Summary

	log := e.log.With(zap.Int("attempt", attempt))

	log.Info("Connecting to database.", phase(PhaseConnect),
		zap.String("database", config.RedactURL(e.settings.DatabaseURL)))

	conn, err := e.dial(ctx)
	if err != nil {
		log.Error("Connection failed.", phase(PhaseConnect), zap.Error(err))

		return summary, err
	}

	defer func() {
		conn.Close()
		log.Debug("Connection closed.", phase(PhaseClose))
	}()

	log.Info("Acquiring advisory lock.", phase(PhaseLock),
		zap.Int64("lock_id", e.settings.LockID), zap.Bool("wait", !e.settings.NoWait))

	sess, err := conn.Lock(ctx)
	if err != nil {
		log.Error("Advisory lock not acquired.", phase(PhaseLock), zap.Error(err))

		return summary, err
	}

	defer func() {
		if err := sess.Release(context.WithoutCancel(ctx)); err != nil {
			log.Warn("Releasing advisory lock failed.", phase(PhaseRelease), zap.Error(err))

			return
		}

		log.Info("Advisory lock released.", phase(PhaseRelease))
	}()

	led := e.newLedger(sess)

	var runLed executor.Ledger = led

	if e.settings.DryRun {
		runLed = absentLedger{led}

		log.Debug("Dry run, ledger schema left untouched.", phase(PhaseSchema))
	} else {
		if err := led.EnsureSchema(ctx); err != nil {
			log.Error("Ledger schema setup failed.", phase(PhaseSchema), zap.Error(err))

			return summary, err
		}

		log.Debug("Ledger schema ready.", phase(PhaseSchema), zap.String("table", e.settings.LedgerTable))
	}

	plan, err := e.plan(log)
	if err != nil {
		return summary, err
	}

	summary.Forward = plan.Forward
	summary.Total = len(plan.Migrations)

	res, err := e.newApplier(sess, runLed).Apply(ctx, plan.Migrations)
	summary.Result = res

	if err != nil {
		log.Error("Migration failed.", phase(PhaseExecute),
			zap.String("filename", res.Failed), zap.Error(err))

		return summary, err
	}

	return summary, nil
}

// Plan loads and resolves the migrations directory without touching the database.
func (e *Engine) Plan() (*resolver.Plan, error) {
	return e.plan(e.log)
}

func (e *Engine) plan(log *zap.Logger) (*resolver.Plan, error) {
	ms, err := e.load(e.settings.MigrationsDir)
	if err != nil {
		log.Error("Loading migrations failed.", phase(PhaseLoad), zap.Error(err))

		return nil, err
	}

	log.Info("Migrations loaded.", phase(PhaseLoad),
		zap.String("dir", e.settings.MigrationsDir), zap.Int("count", len(ms)))

	extractor, err := e.newExtractor(e.settings.Extractor)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", resolver.ErrExtract, err)
	}

	plan, err := resolver.New(
		resolver.WithExtractor(extractor),
		resolver.WithForwardDependencies(e.settings.AllowForwardDependencies),
	).Resolve(ms)
	if err != nil {
		fields := []zap.Field{phase(PhaseResolve), zap.Error(err)}

		var cycle *resolver.CycleError
		if errors.As(err, &cycle) {
			fields = append(fields, zap.String("filename", cycle.Filename), zap.Strings("cycle", cycle.Path))
		}

		log.Error("Dependency resolution failed.", fields...)

		return nil, err
	}

	for _, fr := range plan.Forward {
		log.Warn("Reference to an entity created by a later migration; no dependency recorded.",
			phase(PhaseResolve),
			zap.String("filename", fr.Filename),
			zap.String("entity", fr.Entity),
			zap.String("created_by", fr.CreatedBy))
	}

	log.Info("Dependencies resolved.", phase(PhaseResolve),
		zap.Strings("order", migration.Filenames(plan.Migrations)))

	return plan, nil
}

// logProgress turns executor events into log lines.
func (e *Engine) logProgress(ev executor.ProgressEvent) {
	log := e.log.With(phase(PhaseExecute), zap.String("filename", ev.Migration.Filename))

	switch ev.Status {
	case executor.StatusStarting:
		log.Info("Executing migration.", zap.Int("order", ev.Migration.Order), zap.String("reason", string(ev.Reason)))
	case executor.StatusCompleted:
		log.Info("Migration completed.", zap.Duration("duration", ev.Duration))
	case executor.StatusFailed:
		log.Error("Migration failed, halting run.", zap.Duration("duration", ev.Duration), zap.Error(ev.Error))
	case executor.StatusSkipped:
		log.Debug("Migration unchanged, skipping.")
	case executor.StatusPending:
		log.Info("Migration pending (dry run).", zap.String("reason", string(ev.Reason)))
	}
}

func (e *Engine) extractorName() string {
	if e.settings.Extractor == "" {
		return config.ExtractorRegex
	}

	return e.settings.Extractor
}

func phase(name string) zap.Field {
	return zap.String("phase", name)
}
