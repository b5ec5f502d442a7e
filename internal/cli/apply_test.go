package cli

import (
	"bytes"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aqasim81/depmigrate/internal/config"
	"github.com/aqasim81/depmigrate/internal/engine"
	"github.com/aqasim81/depmigrate/internal/executor"
)

func newApplyFlagCmd() *cobra.Command {
	cmd := &cobra.Command{}
	cmd.Flags().Bool("dry-run", false, "")
	cmd.Flags().Bool("no-wait", false, "")
	cmd.Flags().Duration("lock-timeout", 0, "")
	cmd.Flags().Duration("statement-timeout", 0, "")
	cmd.Flags().Int("max-attempts", 0, "")
	cmd.Flags().Duration("retry-delay", 0, "")

	return cmd
}

func TestApplySettings_overrides(t *testing.T) { //nolint:paralleltest // writes global AppConfig
	old := AppConfig
	t.Cleanup(func() { AppConfig = old })

	AppConfig = config.New()
	AppConfig.DatabaseURL = "postgres://localhost/db"

	cmd := newApplyFlagCmd()
	require.NoError(t, cmd.Flags().Set("dry-run", "true"))
	require.NoError(t, cmd.Flags().Set("no-wait", "true"))
	require.NoError(t, cmd.Flags().Set("lock-timeout", "2s"))
	require.NoError(t, cmd.Flags().Set("statement-timeout", "1m"))
	require.NoError(t, cmd.Flags().Set("max-attempts", "5"))
	require.NoError(t, cmd.Flags().Set("retry-delay", "10ms"))

	s := applySettings(cmd)

	assert.Equal(t, "postgres://localhost/db", s.DatabaseURL)
	assert.True(t, s.DryRun)
	assert.True(t, s.NoWait)
	assert.Equal(t, 2*time.Second, s.LockTimeout)
	assert.Equal(t, time.Minute, s.StatementTimeout)
	assert.Equal(t, 5, s.MaxAttempts)
	assert.Equal(t, 10*time.Millisecond, s.RetryDelay)
	assert.Equal(t, config.DefaultLockID, s.LockID)
}

func TestApplySettings_defaultsFromConfig(t *testing.T) { //nolint:paralleltest // writes global AppConfig
	old := AppConfig
	t.Cleanup(func() { AppConfig = old })

	AppConfig = config.New()

	cmd := newApplyFlagCmd()
	require.NoError(t, cmd.Flags().Set("max-attempts", "0"))

	s := applySettings(cmd)

	assert.False(t, s.DryRun)
	assert.Equal(t, config.DefaultLockTimeout, s.LockTimeout)
	assert.Equal(t, config.DefaultStatementTimeout, s.StatementTimeout)
	assert.Equal(t, config.DefaultMaxAttempts, s.MaxAttempts, "non-positive override is ignored")
	assert.Empty(t, s.DatabaseURL)
}

func TestRunApply_noConnection_returnsError(t *testing.T) { //nolint:paralleltest // writes global AppConfig
	old := AppConfig
	t.Cleanup(func() { AppConfig = old })

	AppConfig = config.New()
	AppConfig.MigrationsDir = "./testdata/migrations"

	cmd := newApplyFlagCmd()
	cmd.SetOut(new(bytes.Buffer))

	err := runApply(cmd, nil)

	require.ErrorIs(t, err, config.ErrNoConnection)
}

func TestPrintSummary(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		summary engine.Summary
		dryRun  bool
		want    []string
	}{
		{
			name:    "empty directory",
			summary: engine.Summary{},
			want:    []string{"No migration files found."},
		},
		{
			name: "applied and skipped",
			summary: engine.Summary{
				Result: executor.Result{
					Executed: []string{"002_add_email_index.sql", "003_create_posts.sql"},
					Skipped:  []string{"001_create_users.sql"},
				},
				Total:   3,
				Elapsed: 1500 * time.Millisecond,
			},
			want: []string{
				"applied 002_add_email_index.sql",
				"applied 003_create_posts.sql",
				"Apply complete: 2 applied, 1 skipped, 3 total in 1.5s.",
			},
		},
		{
			name: "dry run lists pending",
			summary: engine.Summary{
				Result: executor.Result{Pending: []string{"001_create_users.sql"}, Skipped: []string{"000_init.sql"}},
				Total:  2,
			},
			dryRun: true,
			want: []string{
				"DRY RUN",
				"would apply 001_create_users.sql",
				"Dry run complete: 1 migration(s) would be applied, 1 already applied.",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			buf := new(bytes.Buffer)
			printSummary(buf, tt.summary, tt.dryRun)

			for _, w := range tt.want {
				assert.Contains(t, buf.String(), w)
			}
		})
	}
}
