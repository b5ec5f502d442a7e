package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values for configuration fields.
const (
	DefaultMigrationsDir    = "./migrations"
	DefaultLedgerTable      = "schema_migrations"
	DefaultLockID           = int64(123456789)
	DefaultDBPort           = 5432
	DefaultConnectTimeout   = 10 * time.Second
	DefaultIdleTimeout      = time.Minute
	DefaultMaxAttempts      = 3
	DefaultRetryDelay       = 5 * time.Second
	DefaultLockTimeout      = 5 * time.Second
	DefaultStatementTimeout = 30 * time.Second
	DefaultExtractor        = ExtractorRegex
	DefaultLogLevel         = "info"
	DefaultLogFormat        = "console"
	DefaultFormat           = "text"
)

// Extractor names accepted by the extractor setting.
const (
	ExtractorRegex = "regex"
	ExtractorAST   = "ast"
)

// Config holds the application configuration loaded from file, environment, and flags.
type Config struct {
	DatabaseURL string

	// Discrete connection parts, used only when DatabaseURL is empty.
	DBHost      string
	DBPort      int
	DBUser      string
	DBPassword  string
	DBName      string
	SSLMode     string
	Environment string

	MigrationsDir            string
	LedgerTable              string
	LockID                   int64
	ConnectTimeout           time.Duration
	IdleTimeout              time.Duration
	MaxAttempts              int
	RetryDelay               time.Duration
	LockTimeout              time.Duration
	StatementTimeout         time.Duration
	Extractor                string
	AllowForwardDependencies bool
	LogLevel                 string
	LogFormat                string
	Format                   string
}

// yamlConfig is the raw YAML file representation with string durations.
type yamlConfig struct {
	DatabaseURL              string `yaml:"database_url"`
	DBHost                   string `yaml:"db_host"`
	DBPort                   int    `yaml:"db_port"`
	DBUser                   string `yaml:"db_user"`
	DBPassword               string `yaml:"db_password"`
	DBName                   string `yaml:"db_name"`
	SSLMode                  string `yaml:"ssl_mode"`
	Environment              string `yaml:"environment"`
	MigrationsDir            string `yaml:"migrations_dir"`
	LedgerTable              string `yaml:"ledger_table"`
	LockID                   int64  `yaml:"lock_id"`
	ConnectTimeout           string `yaml:"connect_timeout"`
	IdleTimeout              string `yaml:"idle_timeout"`
	MaxAttempts              int    `yaml:"max_attempts"`
	RetryDelay               string `yaml:"retry_delay"`
	LockTimeout              string `yaml:"lock_timeout"`
	StatementTimeout         string `yaml:"statement_timeout"`
	Extractor                string `yaml:"extractor"`
	AllowForwardDependencies bool   `yaml:"allow_forward_dependencies"`
	LogLevel                 string `yaml:"log_level"`
	LogFormat                string `yaml:"log_format"`
	Format                   string `yaml:"format"`
}

// New returns a Config populated with default values.
func New() *Config {
	return &Config{
		DBPort:           DefaultDBPort,
		MigrationsDir:    DefaultMigrationsDir,
		LedgerTable:      DefaultLedgerTable,
		LockID:           DefaultLockID,
		ConnectTimeout:   DefaultConnectTimeout,
		IdleTimeout:      DefaultIdleTimeout,
		MaxAttempts:      DefaultMaxAttempts,
		RetryDelay:       DefaultRetryDelay,
		LockTimeout:      DefaultLockTimeout,
		StatementTimeout: DefaultStatementTimeout,
		Extractor:        DefaultExtractor,
		LogLevel:         DefaultLogLevel,
		LogFormat:        DefaultLogFormat,
		Format:           DefaultFormat,
	}
}

// Load reads a YAML configuration file and returns a Config.
// If allowMissing is true and the file does not exist, defaults are returned.
func Load(path string, allowMissing bool) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && allowMissing {
			return New(), nil
		}

		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	var raw yamlConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	return fromYAML(&raw)
}

// fromYAML converts the raw YAML representation to a Config with defaults applied.
func fromYAML(raw *yamlConfig) (*Config, error) {
	cfg := New()

	setString(&cfg.DatabaseURL, raw.DatabaseURL)
	setString(&cfg.DBHost, raw.DBHost)
	setString(&cfg.DBUser, raw.DBUser)
	setString(&cfg.DBPassword, raw.DBPassword)
	setString(&cfg.DBName, raw.DBName)
	setString(&cfg.SSLMode, raw.SSLMode)
	setString(&cfg.Environment, raw.Environment)
	setString(&cfg.MigrationsDir, raw.MigrationsDir)
	setString(&cfg.LedgerTable, raw.LedgerTable)
	setString(&cfg.Extractor, raw.Extractor)
	setString(&cfg.LogLevel, raw.LogLevel)
	setString(&cfg.LogFormat, raw.LogFormat)
	setString(&cfg.Format, raw.Format)

	if raw.DBPort != 0 {
		cfg.DBPort = raw.DBPort
	}

	if raw.LockID != 0 {
		cfg.LockID = raw.LockID
	}

	if raw.MaxAttempts != 0 {
		cfg.MaxAttempts = raw.MaxAttempts
	}

	cfg.AllowForwardDependencies = raw.AllowForwardDependencies

	durations := []struct {
		key   string
		value string
		dst   *time.Duration
	}{
		{"connect_timeout", raw.ConnectTimeout, &cfg.ConnectTimeout},
		{"idle_timeout", raw.IdleTimeout, &cfg.IdleTimeout},
		{"retry_delay", raw.RetryDelay, &cfg.RetryDelay},
		{"lock_timeout", raw.LockTimeout, &cfg.LockTimeout},
		{"statement_timeout", raw.StatementTimeout, &cfg.StatementTimeout},
	}

	for _, d := range durations {
		if d.value == "" {
			continue
		}

		parsed, err := time.ParseDuration(d.value)
		if err != nil {
			return nil, fmt.Errorf("parsing %s %q: %w", d.key, d.value, err)
		}

		*d.dst = parsed
	}

	return cfg, nil
}

// MergeEnv overrides config fields from MIGRATE_* and libpq-style PG* environment variables.
// Unparseable numeric or duration values leave the field unchanged.
func MergeEnv(cfg *Config) {
	setString(&cfg.DatabaseURL, os.Getenv("DATABASE_URL"))
	setString(&cfg.DatabaseURL, os.Getenv("MIGRATE_DATABASE_URL"))
	setString(&cfg.DBHost, os.Getenv("PGHOST"))
	setString(&cfg.DBUser, os.Getenv("PGUSER"))
	setString(&cfg.DBPassword, os.Getenv("PGPASSWORD"))
	setString(&cfg.DBName, os.Getenv("PGDATABASE"))
	setString(&cfg.SSLMode, os.Getenv("PGSSLMODE"))
	setString(&cfg.Environment, os.Getenv("MIGRATE_ENVIRONMENT"))
	setString(&cfg.MigrationsDir, os.Getenv("MIGRATE_MIGRATIONS_DIR"))
	setString(&cfg.LedgerTable, os.Getenv("MIGRATE_LEDGER_TABLE"))
	setString(&cfg.Extractor, os.Getenv("MIGRATE_EXTRACTOR"))
	setString(&cfg.LogLevel, os.Getenv("MIGRATE_LOG_LEVEL"))
	setString(&cfg.LogFormat, os.Getenv("MIGRATE_LOG_FORMAT"))

	if v, err := strconv.Atoi(os.Getenv("PGPORT")); err == nil {
		cfg.DBPort = v
	}

	if v, err := strconv.ParseInt(os.Getenv("MIGRATE_LOCK_ID"), 10, 64); err == nil {
		cfg.LockID = v
	}

	if v, err := strconv.Atoi(os.Getenv("MIGRATE_MAX_ATTEMPTS")); err == nil {
		cfg.MaxAttempts = v
	}

	if v, err := strconv.ParseBool(os.Getenv("MIGRATE_ALLOW_FORWARD_DEPENDENCIES")); err == nil {
		cfg.AllowForwardDependencies = v
	}

	setDuration(&cfg.ConnectTimeout, os.Getenv("MIGRATE_CONNECT_TIMEOUT"))
	setDuration(&cfg.IdleTimeout, os.Getenv("MIGRATE_IDLE_TIMEOUT"))
	setDuration(&cfg.RetryDelay, os.Getenv("MIGRATE_RETRY_DELAY"))
	setDuration(&cfg.LockTimeout, os.Getenv("MIGRATE_LOCK_TIMEOUT"))
	setDuration(&cfg.StatementTimeout, os.Getenv("MIGRATE_STATEMENT_TIMEOUT"))
}

// Validate checks that the settings the engine depends on are usable.
func (c *Config) Validate() error {
	if c.MaxAttempts < 1 {
		return fmt.Errorf("%w: max_attempts must be at least 1, got %d", ErrInvalidConfig, c.MaxAttempts)
	}

	if c.RetryDelay < 0 || c.ConnectTimeout < 0 || c.IdleTimeout < 0 ||
		c.LockTimeout < 0 || c.StatementTimeout < 0 {
		return fmt.Errorf("%w: durations must not be negative", ErrInvalidConfig)
	}

	if c.Extractor != ExtractorRegex && c.Extractor != ExtractorAST {
		return fmt.Errorf("%w: unknown extractor %q (want %s or %s)",
			ErrInvalidConfig, c.Extractor, ExtractorRegex, ExtractorAST)
	}

	if c.LogFormat != "console" && c.LogFormat != "json" {
		return fmt.Errorf("%w: unknown log_format %q", ErrInvalidConfig, c.LogFormat)
	}

	if c.Format != "text" && c.Format != "json" {
		return fmt.Errorf("%w: unknown format %q", ErrInvalidConfig, c.Format)
	}

	if c.LedgerTable == "" {
		return fmt.Errorf("%w: ledger_table must not be empty", ErrInvalidConfig)
	}

	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v string) {
	if v == "" {
		return
	}

	if d, err := time.ParseDuration(v); err == nil {
		*dst = d
	}
}
