package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/aqasim81/depmigrate/internal/engine"
	"github.com/aqasim81/depmigrate/internal/migration"
)

var statusCmd = &cobra.Command{ //nolint:gochecknoglobals // standard Cobra pattern
	Use:   "status",
	Short: "Show migration status",
	Long: `Compare the migrations directory with the ledger table. Each file is
reported as applied, changed, pending, failed or running; ledger rows whose
file is gone are reported as missing. The advisory lock is not taken.`,
	RunE: runStatus,
}

func init() { //nolint:gochecknoinits // standard Cobra pattern for flag registration
	statusCmd.Flags().String("format", "", "output format (text, json)")
	rootCmd.AddCommand(statusCmd)
}

type statusEntry struct {
	Filename         string     `json:"filename"`
	State            string     `json:"state"`
	Checksum         string     `json:"checksum"`
	ExecutedAt       *time.Time `json:"executed_at,omitempty"`
	ExecutionTimeMs  int        `json:"execution_time_ms,omitempty"`
	RecoveryAttempts int        `json:"recovery_attempts,omitempty"`
	Error            string     `json:"error,omitempty"`
}

type statusOutput struct {
	LedgerExists bool          `json:"ledger_exists"`
	Migrations   []statusEntry `json:"migrations"`
}

func runStatus(cmd *cobra.Command, _ []string) error {
	format, err := outputFormat(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	report, err := engine.New(engine.SettingsFromConfig(AppConfig), engine.WithLogger(currentLogger())).Status(ctx)
	if err != nil {
		return err
	}

	out := toStatusOutput(report)

	if format == "json" {
		return writeJSON(cmd.OutOrStdout(), out)
	}

	return printStatus(cmd.OutOrStdout(), out)
}

func toStatusOutput(report *engine.StatusReport) statusOutput {
	so := statusOutput{
		LedgerExists: report.LedgerExists,
		Migrations:   make([]statusEntry, 0, len(report.Files)),
	}

	for _, f := range report.Files {
		e := statusEntry{
			Filename: f.Filename,
			State:    f.State,
			Checksum: f.Checksum,
		}

		if r := f.Record; r != nil {
			executedAt := r.ExecutedAt
			e.ExecutedAt = &executedAt
			e.ExecutionTimeMs = r.ExecutionTimeMs
			e.RecoveryAttempts = r.RecoveryAttempts
			e.Error = r.ErrorMessage
		}

		so.Migrations = append(so.Migrations, e)
	}

	return so
}

func printStatus(out io.Writer, so statusOutput) error {
	if !so.LedgerExists {
		fmt.Fprintln(out, "Ledger table does not exist yet; nothing has been applied.")
	}

	if len(so.Migrations) == 0 {
		fmt.Fprintln(out, "No migration files found.")

		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FILENAME\tSTATE\tCHECKSUM\tEXECUTED AT\tTIME\tATTEMPTS")

	counts := make(map[string]int)

	for _, e := range so.Migrations {
		counts[e.State]++

		executedAt, elapsed, attempts := "-", "-", "-"
		if e.ExecutedAt != nil {
			executedAt = e.ExecutedAt.UTC().Format(time.RFC3339)
			elapsed = fmt.Sprintf("%dms", e.ExecutionTimeMs)
			attempts = strconv.Itoa(e.RecoveryAttempts)
		}

		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			e.Filename, e.State, migration.ShortChecksum(e.Checksum), executedAt, elapsed, attempts)
	}

	if err := tw.Flush(); err != nil {
		return fmt.Errorf("writing status: %w", err)
	}

	for _, e := range so.Migrations {
		if e.Error != "" {
			fmt.Fprintf(out, "\n%s failed: %s\n", e.Filename, e.Error)
		}
	}

	fmt.Fprintf(out, "\n%d applied, %d changed, %d pending, %d failed, %d running, %d missing.\n",
		counts[engine.StateApplied], counts[engine.StateChanged], counts[engine.StatePending],
		counts[engine.StateFailed], counts[engine.StateRunning], counts[engine.StateMissing])

	return nil
}
