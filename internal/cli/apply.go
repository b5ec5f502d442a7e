package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/aqasim81/depmigrate/internal/engine"
)

var applyCmd = &cobra.Command{ //nolint:gochecknoglobals // standard Cobra pattern
	Use:   "apply",
	Short: "Apply pending migrations in dependency order",
	Long: `Apply every migration that has no completed ledger row, or whose content
changed since it completed, in dependency order. The run holds a Postgres
advisory lock, executes each migration in its own transaction, and stops at
the first failure. Transient connection failures retry the whole run.`,
	RunE: runApply,
}

func init() { //nolint:gochecknoinits // standard Cobra pattern for flag registration
	applyCmd.Flags().Bool("dry-run", false, "show what would be applied without executing")
	applyCmd.Flags().Bool("no-wait", false, "fail immediately if another runner holds the lock")
	applyCmd.Flags().Duration("lock-timeout", 0, "override lock timeout (e.g., 10s, 1m)")
	applyCmd.Flags().Duration("statement-timeout", 0, "override statement timeout (e.g., 30s, 5m)")
	applyCmd.Flags().Int("max-attempts", 0, "override process-level attempts")
	applyCmd.Flags().Duration("retry-delay", 0, "override delay between attempts")
	rootCmd.AddCommand(applyCmd)
}

func runApply(cmd *cobra.Command, _ []string) error {
	settings := applySettings(cmd)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	summary, err := engine.New(settings, engine.WithLogger(currentLogger())).Run(ctx)
	if err != nil {
		return err
	}

	printSummary(cmd.OutOrStdout(), summary, settings.DryRun)

	return nil
}

// applySettings derives engine settings from AppConfig and apply's own flags.
func applySettings(cmd *cobra.Command) engine.Settings {
	s := engine.SettingsFromConfig(AppConfig)
	flags := cmd.Flags()

	s.DryRun, _ = flags.GetBool("dry-run")
	s.NoWait, _ = flags.GetBool("no-wait")

	if flags.Changed("lock-timeout") {
		s.LockTimeout, _ = flags.GetDuration("lock-timeout")
	}

	if flags.Changed("statement-timeout") {
		s.StatementTimeout, _ = flags.GetDuration("statement-timeout")
	}

	if flags.Changed("max-attempts") {
		if n, _ := flags.GetInt("max-attempts"); n > 0 {
			s.MaxAttempts = n
		}
	}

	if flags.Changed("retry-delay") {
		s.RetryDelay, _ = flags.GetDuration("retry-delay")
	}

	return s
}

func printSummary(out io.Writer, s engine.Summary, dryRun bool) {
	res := s.Result

	if s.Total == 0 {
		fmt.Fprintln(out, "No migration files found.")

		return
	}

	if dryRun {
		fmt.Fprintln(out, "--- DRY RUN (no changes were made) ---")

		for _, name := range res.Pending {
			fmt.Fprintf(out, "  would apply %s\n", name)
		}

		fmt.Fprintf(out, "\nDry run complete: %d migration(s) would be applied, %d already applied.\n",
			len(res.Pending), len(res.Skipped))

		return
	}

	for _, name := range res.Executed {
		fmt.Fprintf(out, "  applied %s\n", name)
	}

	fmt.Fprintf(out, "\nApply complete: %d applied, %d skipped, %d total in %s.\n",
		len(res.Executed), len(res.Skipped), s.Total, s.Elapsed.Truncate(time.Millisecond))
}
