package engine

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/aqasim81/depmigrate/internal/executor"
	"github.com/aqasim81/depmigrate/internal/ledger"
	"github.com/aqasim81/depmigrate/internal/migration"
)

// undefinedTable is the Postgres SQLSTATE for a missing relation.
const undefinedTable = "42P01"

// File states reported by Status.
const (
	StateApplied = "applied"
	StateChanged = "changed" // completed, but the file's checksum has drifted
	StatePending = "pending" // no ledger row yet
	StateFailed  = "failed"
	StateRunning = "running"
	StateMissing = "missing" // ledger row without a file on disk
)

// FileStatus joins one migration file with its ledger row.
type FileStatus struct {
	Filename string
	State    string
	Checksum string
	Record   *ledger.MigrationRecord
}

// StatusReport is the ledger as seen against the migrations directory.
type StatusReport struct {
	LedgerExists bool
	Files        []FileStatus
}

// Status reads the ledger without taking the advisory lock and compares it
// with the files on disk. A database without a ledger table reports every
// file as pending.
func (e *Engine) Status(ctx context.Context) (*StatusReport, error) {
	ms, err := e.load(e.settings.MigrationsDir)
	if err != nil {
		return nil, err
	}

	conn, err := e.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	records, err := ledger.New(conn.Querier(), e.settings.LedgerTable).Records(ctx)

	switch {
	case isUndefinedTable(err):
		e.log.Info("Ledger table does not exist yet.", zap.String("table", e.settings.LedgerTable))

		return &StatusReport{Files: joinStatus(ms, nil)}, nil
	case err != nil:
		return nil, err
	}

	return &StatusReport{LedgerExists: true, Files: joinStatus(ms, records)}, nil
}

func isUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError

	return errors.As(err, &pgErr) && pgErr.Code == undefinedTable
}

// absentLedger reads a ledger table that may not exist yet. A dry run
// never creates it, so a missing table means nothing has completed.
type absentLedger struct {
	executor.Ledger
}

func (l absentLedger) CompletedChecksums(ctx context.Context) (map[string]string, error) {
	sums, err := l.Ledger.CompletedChecksums(ctx)
	if isUndefinedTable(err) {
		return map[string]string{}, nil
	}

	return sums, err
}

// joinStatus lists files in filename order followed by ledger rows whose
// file is gone.
func joinStatus(ms []migration.Migration, records []ledger.MigrationRecord) []FileStatus {
	byName := make(map[string]*ledger.MigrationRecord, len(records))
	for i := range records {
		byName[records[i].Filename] = &records[i]
	}

	out := make([]FileStatus, 0, len(ms))
	seen := make(map[string]bool, len(ms))

	for _, m := range migration.Sort(ms) {
		seen[m.Filename] = true
		fs := FileStatus{Filename: m.Filename, Checksum: m.Checksum, Record: byName[m.Filename]}

		switch {
		case fs.Record == nil:
			fs.State = StatePending
		case fs.Record.Status == ledger.StatusFailed:
			fs.State = StateFailed
		case fs.Record.Status == ledger.StatusRunning:
			fs.State = StateRunning
		case fs.Record.Checksum != m.Checksum:
			fs.State = StateChanged
		default:
			fs.State = StateApplied
		}

		out = append(out, fs)
	}

	for i := range records {
		if !seen[records[i].Filename] {
			out = append(out, FileStatus{
				Filename: records[i].Filename,
				State:    StateMissing,
				Checksum: records[i].Checksum,
				Record:   &records[i],
			})
		}
	}

	return out
}
