package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/aqasim81/depmigrate/internal/config"
	"github.com/aqasim81/depmigrate/internal/logging"
)

const version = "0.1.0"

// AppConfig holds the loaded configuration, set during PersistentPreRunE.
var AppConfig *config.Config //nolint:gochecknoglobals // standard Cobra pattern for shared config

// logger is built from AppConfig once flags are parsed.
var logger *zap.Logger //nolint:gochecknoglobals // shared by every subcommand

// rootCmd is the base command for the migrate CLI.
var rootCmd = &cobra.Command{ //nolint:gochecknoglobals // standard Cobra pattern
	Use:     "migrate",
	Version: version,
	Short:   "Dependency-ordered, idempotent PostgreSQL migration runner",
	Long: `migrate reads a directory of SQL files, works out which files depend on
tables and columns created by others, and applies them in dependency order.
Every run takes a Postgres advisory lock, skips files whose checksum matches
a completed ledger row, and stops at the first failing migration.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if err := loadConfig(cmd); err != nil {
			return err
		}

		return setupLogger(cmd)
	},
}

func init() { //nolint:gochecknoinits // standard Cobra pattern for flag registration
	flags := rootCmd.PersistentFlags()
	flags.String("config", "migrate.yml", "path to configuration file")
	flags.String("database-url", "", "PostgreSQL connection string")
	flags.String("migrations-dir", "", "path to migration files")
	flags.String("ledger-table", "", "name of the migration ledger table")
	flags.Int64("lock-id", 0, "advisory lock key shared by every runner of this database")
	flags.String("extractor", "", "dependency extractor (regex, ast)")
	flags.Bool("allow-forward-dependencies", false, "let a migration depend on a later-named file")
	flags.String("log-format", "", "log format (console, json)")
	flags.Bool("verbose", false, "enable debug logging")
}

// Execute runs the root command. Called from main.
func Execute() {
	err := rootCmd.Execute()

	if logger != nil {
		_ = logger.Sync()
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig loads configuration with precedence: flag > env > file.
func loadConfig(cmd *cobra.Command) error {
	configPath, _ := cmd.Flags().GetString("config")
	allowMissing := !cmd.Flags().Changed("config")

	cfg, err := config.Load(configPath, allowMissing)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	config.MergeEnv(cfg)
	mergeFlags(cmd, cfg)

	if err := cfg.Validate(); err != nil {
		return err
	}

	AppConfig = cfg

	return nil
}

// mergeFlags overrides config with explicitly-set CLI flags.
func mergeFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()

	if flags.Changed("database-url") {
		cfg.DatabaseURL, _ = flags.GetString("database-url")
	}

	if flags.Changed("migrations-dir") {
		cfg.MigrationsDir, _ = flags.GetString("migrations-dir")
	}

	if flags.Changed("ledger-table") {
		cfg.LedgerTable, _ = flags.GetString("ledger-table")
	}

	if flags.Changed("lock-id") {
		cfg.LockID, _ = flags.GetInt64("lock-id")
	}

	if flags.Changed("extractor") {
		cfg.Extractor, _ = flags.GetString("extractor")
	}

	if flags.Changed("allow-forward-dependencies") {
		cfg.AllowForwardDependencies, _ = flags.GetBool("allow-forward-dependencies")
	}

	if flags.Changed("log-format") {
		cfg.LogFormat, _ = flags.GetString("log-format")
	}

	if verbose, _ := flags.GetBool("verbose"); verbose {
		cfg.LogLevel = "debug"
	}
}

// setupLogger builds the shared logger on the command's stderr.
func setupLogger(cmd *cobra.Command) error {
	l, err := logging.New(AppConfig.LogLevel, AppConfig.LogFormat, cmd.ErrOrStderr())
	if err != nil {
		return fmt.Errorf("configuring logger: %w", err)
	}

	logger = l

	return nil
}

// currentLogger returns the shared logger, or a no-op one before setup.
func currentLogger() *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}

	return logger
}
