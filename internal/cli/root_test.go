package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aqasim81/depmigrate/internal/config"
)

// newFlagCmd returns a command carrying fresh copies of the global flags.
func newFlagCmd() *cobra.Command {
	cmd := &cobra.Command{}
	flags := cmd.Flags()
	flags.String("config", "migrate.yml", "")
	flags.String("database-url", "", "")
	flags.String("migrations-dir", "", "")
	flags.String("ledger-table", "", "")
	flags.Int64("lock-id", 0, "")
	flags.String("extractor", "", "")
	flags.Bool("allow-forward-dependencies", false, "")
	flags.String("log-format", "", "")
	flags.Bool("verbose", false, "")

	return cmd
}

func TestMergeFlags(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		flag  string
		value string
		check func(t *testing.T, cfg *config.Config)
	}{
		{
			name:  "database url",
			flag:  "database-url",
			value: "postgres://test:5432/db",
			check: func(t *testing.T, cfg *config.Config) {
				t.Helper()
				assert.Equal(t, "postgres://test:5432/db", cfg.DatabaseURL)
			},
		},
		{
			name:  "migrations dir",
			flag:  "migrations-dir",
			value: "/custom/migrations",
			check: func(t *testing.T, cfg *config.Config) {
				t.Helper()
				assert.Equal(t, "/custom/migrations", cfg.MigrationsDir)
			},
		},
		{
			name:  "ledger table",
			flag:  "ledger-table",
			value: "ops.ledger",
			check: func(t *testing.T, cfg *config.Config) {
				t.Helper()
				assert.Equal(t, "ops.ledger", cfg.LedgerTable)
			},
		},
		{
			name:  "lock id",
			flag:  "lock-id",
			value: "4242",
			check: func(t *testing.T, cfg *config.Config) {
				t.Helper()
				assert.Equal(t, int64(4242), cfg.LockID)
			},
		},
		{
			name:  "extractor",
			flag:  "extractor",
			value: "ast",
			check: func(t *testing.T, cfg *config.Config) {
				t.Helper()
				assert.Equal(t, config.ExtractorAST, cfg.Extractor)
			},
		},
		{
			name:  "forward dependencies",
			flag:  "allow-forward-dependencies",
			value: "true",
			check: func(t *testing.T, cfg *config.Config) {
				t.Helper()
				assert.True(t, cfg.AllowForwardDependencies)
			},
		},
		{
			name:  "log format",
			flag:  "log-format",
			value: "json",
			check: func(t *testing.T, cfg *config.Config) {
				t.Helper()
				assert.Equal(t, "json", cfg.LogFormat)
			},
		},
		{
			name:  "verbose sets debug level",
			flag:  "verbose",
			value: "true",
			check: func(t *testing.T, cfg *config.Config) {
				t.Helper()
				assert.Equal(t, "debug", cfg.LogLevel)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := config.New()
			cmd := newFlagCmd()

			require.NoError(t, cmd.Flags().Set(tt.flag, tt.value))

			mergeFlags(cmd, cfg)
			tt.check(t, cfg)
		})
	}
}

func TestMergeFlags_unchangedFlags_preserveConfig(t *testing.T) {
	t.Parallel()

	cfg := config.New()
	cfg.DatabaseURL = "postgres://original:5432/db"
	cfg.MigrationsDir = "/original/dir"
	cfg.LockID = 7

	cmd := &cobra.Command{}
	cmd.Flags().String("database-url", "", "")
	cmd.Flags().String("migrations-dir", "", "")
	cmd.Flags().Int64("lock-id", 0, "")

	mergeFlags(cmd, cfg)
	assert.Equal(t, "postgres://original:5432/db", cfg.DatabaseURL)
	assert.Equal(t, "/original/dir", cfg.MigrationsDir)
	assert.Equal(t, int64(7), cfg.LockID)
	assert.Equal(t, config.DefaultLogLevel, cfg.LogLevel)
}

func TestLoadConfig_missingFile_usesDefaults(t *testing.T) { //nolint:paralleltest // writes global AppConfig
	old := AppConfig
	t.Cleanup(func() { AppConfig = old })

	cmd := newFlagCmd()
	require.NoError(t, cmd.Flags().Set("database-url", "postgres://localhost/db"))

	require.NoError(t, loadConfig(cmd))
	require.NotNil(t, AppConfig)
	assert.Equal(t, config.DefaultMigrationsDir, AppConfig.MigrationsDir)
	assert.Equal(t, config.DefaultLockID, AppConfig.LockID)
	assert.Equal(t, "postgres://localhost/db", AppConfig.DatabaseURL)
}

func TestLoadConfig_validFile_loadsValues(t *testing.T) { //nolint:paralleltest // writes global AppConfig
	old := AppConfig
	t.Cleanup(func() { AppConfig = old })

	cfgPath := filepath.Join(t.TempDir(), "migrate.yml")
	yamlContent := "migrations_dir: /from/yaml\nlock_id: 55\nextractor: ast\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(yamlContent), 0o600))

	cmd := newFlagCmd()
	require.NoError(t, cmd.Flags().Set("config", cfgPath))
	require.NoError(t, cmd.Flags().Set("lock-id", "56"))

	require.NoError(t, loadConfig(cmd))
	assert.Equal(t, "/from/yaml", AppConfig.MigrationsDir)
	assert.Equal(t, int64(56), AppConfig.LockID, "flag beats file")
	assert.Equal(t, config.ExtractorAST, AppConfig.Extractor)
}

func TestLoadConfig_errors(t *testing.T) { //nolint:paralleltest // writes global AppConfig
	old := AppConfig
	t.Cleanup(func() { AppConfig = old })

	tests := []struct {
		name        string
		content     string
		flags       map[string]string
		errIs       error
		errContains string
	}{
		{
			name:        "invalid yaml",
			content:     "lock_id: [unclosed",
			errContains: "loading configuration",
		},
		{
			name:    "unknown extractor from flag",
			content: "",
			flags:   map[string]string{"extractor": "llm"},
			errIs:   config.ErrInvalidConfig,
		},
		{
			name:    "negative attempts from file",
			content: "max_attempts: -1\n",
			errIs:   config.ErrInvalidConfig,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfgPath := filepath.Join(t.TempDir(), "migrate.yml")
			require.NoError(t, os.WriteFile(cfgPath, []byte(tt.content), 0o600))

			cmd := newFlagCmd()
			require.NoError(t, cmd.Flags().Set("config", cfgPath))

			for k, v := range tt.flags {
				require.NoError(t, cmd.Flags().Set(k, v))
			}

			err := loadConfig(cmd)
			require.Error(t, err)

			if tt.errIs != nil {
				require.ErrorIs(t, err, tt.errIs)
			}

			if tt.errContains != "" {
				assert.Contains(t, err.Error(), tt.errContains)
			}
		})
	}
}

func TestCurrentLogger_beforeSetup_isNop(t *testing.T) { //nolint:paralleltest // reads global logger
	old := logger
	t.Cleanup(func() { logger = old })

	logger = nil

	assert.NotNil(t, currentLogger())
}

func TestRootCmd_registersSubcommands(t *testing.T) {
	t.Parallel()

	names := make([]string, 0, len(rootCmd.Commands()))
	for _, c := range rootCmd.Commands() {
		names = append(names, c.Name())
	}

	assert.Subset(t, names, []string{"apply", "plan", "status"})
}
