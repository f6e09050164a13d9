package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Database connection.
	DatabaseURL    string
	DatabaseUser   string
	DatabasePass   string
	AnalyzeTimeout time.Duration

	// Check suite.
	ManifestFile string // path to checks YAML (required for cli transport)

	// Logging.
	LogLevel slog.Level

	// Transport.
	Transport string // "cli" (default) or "mcp"

	// Connection pool.
	PoolMaxConns        int32         // default: 5
	PoolMinConns        int32         // default: 1
	PoolMaxConnLifetime time.Duration // default: 30m

	// Observability.
	OTelEnabled bool   // enable OpenTelemetry tracing and metrics
	AuditLog    string // path to NDJSON audit log file
}

// Overrides holds CLI flag values that override environment variables.
// Pointer fields distinguish "not set" from zero values.
type Overrides struct {
	DatabaseURL    *string
	DatabaseUser   *string
	DatabasePass   *string
	LogLevel       *string
	AnalyzeTimeout *time.Duration
	ManifestFile   *string
	Transport      *string
	OTelEnabled    bool
	AuditLog       string

	// Connection pool overrides.
	PoolMaxConns        *int32
	PoolMinConns        *int32
	PoolMaxConnLifetime *time.Duration
}

// Load builds a Config from environment variables, then applies CLI overrides,
// then validates the result.
func Load(overrides Overrides) (*Config, error) {
	cfg := defaults()

	if err := loadEnvVars(cfg); err != nil {
		return nil, err
	}
	if err := applyOverrides(cfg, overrides); err != nil {
		return nil, err
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// defaults returns a Config populated with default values.
func defaults() *Config {
	return &Config{
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		AnalyzeTimeout:      10 * time.Second,
		Transport:           "cli",
		PoolMaxConns:        5,
		PoolMinConns:        1,
		PoolMaxConnLifetime: 30 * time.Minute,
	}
}

// loadEnvVars reads all supported environment variables into cfg.
func loadEnvVars(cfg *Config) error {
	cfg.DatabaseUser = os.Getenv("DATABASE_USER")
	cfg.DatabasePass = os.Getenv("DATABASE_PASSWORD")

	if v := os.Getenv("ANALYZE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid ANALYZE_TIMEOUT value %q: %w", v, err)
		}
		cfg.AnalyzeTimeout = d
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		level, err := parseLogLevel(v)
		if err != nil {
			return err
		}
		cfg.LogLevel = level
	}

	cfg.ManifestFile = os.Getenv("MANIFEST")
	cfg.AuditLog = os.Getenv("AUDIT_LOG")

	if v := os.Getenv("TRANSPORT"); v != "" {
		cfg.Transport = v
	}

	if v := os.Getenv("OTEL_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid OTEL_ENABLED value %q: %w", v, err)
		}
		cfg.OTelEnabled = b
	}

	return loadPoolEnvVars(cfg)
}

// loadPoolEnvVars reads connection pool environment variables.
func loadPoolEnvVars(cfg *Config) error {
	if v := os.Getenv("POOL_MAX_CONNS"); v != "" {
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid POOL_MAX_CONNS value %q: must be a positive integer", v)
		}
		cfg.PoolMaxConns = int32(n)
	}
	if v := os.Getenv("POOL_MIN_CONNS"); v != "" {
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil || n < 0 {
			return fmt.Errorf("invalid POOL_MIN_CONNS value %q: must be a non-negative integer", v)
		}
		cfg.PoolMinConns = int32(n)
	}
	if v := os.Getenv("POOL_MAX_CONN_LIFETIME"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid POOL_MAX_CONN_LIFETIME value %q: %w", v, err)
		}
		cfg.PoolMaxConnLifetime = d
	}
	return nil
}

// applyOverrides applies CLI flag values on top of the env-loaded config.
func applyOverrides(cfg *Config, o Overrides) error {
	if o.DatabaseURL != nil {
		cfg.DatabaseURL = *o.DatabaseURL
	}
	if o.DatabaseUser != nil {
		cfg.DatabaseUser = *o.DatabaseUser
	}
	if o.DatabasePass != nil {
		cfg.DatabasePass = *o.DatabasePass
	}
	if o.LogLevel != nil {
		level, err := parseLogLevel(*o.LogLevel)
		if err != nil {
			return err
		}
		cfg.LogLevel = level
	}
	if o.AnalyzeTimeout != nil {
		cfg.AnalyzeTimeout = *o.AnalyzeTimeout
	}
	if o.ManifestFile != nil {
		cfg.ManifestFile = *o.ManifestFile
	}
	if o.Transport != nil {
		cfg.Transport = *o.Transport
	}

	if err := applyPoolOverrides(cfg, o); err != nil {
		return err
	}

	if o.AuditLog != "" {
		cfg.AuditLog = o.AuditLog
	}
	cfg.OTelEnabled = cfg.OTelEnabled || o.OTelEnabled

	return nil
}

// applyPoolOverrides applies connection pool CLI flag overrides.
func applyPoolOverrides(cfg *Config, o Overrides) error {
	if o.PoolMaxConns != nil {
		if *o.PoolMaxConns <= 0 {
			return fmt.Errorf("invalid --pool-max-conns value: must be a positive integer")
		}
		cfg.PoolMaxConns = *o.PoolMaxConns
	}
	if o.PoolMinConns != nil {
		if *o.PoolMinConns < 0 {
			return fmt.Errorf("invalid --pool-min-conns value: must be a non-negative integer")
		}
		cfg.PoolMinConns = *o.PoolMinConns
	}
	if o.PoolMaxConnLifetime != nil {
		cfg.PoolMaxConnLifetime = *o.PoolMaxConnLifetime
	}
	return nil
}

// validate checks cross-field constraints on the final config.
func validate(cfg *Config) error {
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required (set via env var or --database-url flag)")
	}

	switch cfg.Transport {
	case "cli", "mcp":
	default:
		return fmt.Errorf("invalid TRANSPORT value %q: must be \"cli\" or \"mcp\"", cfg.Transport)
	}

	if cfg.Transport == "cli" && cfg.ManifestFile == "" {
		return fmt.Errorf("MANIFEST is required for the cli transport (set via env var or --manifest flag)")
	}

	if cfg.PoolMinConns > cfg.PoolMaxConns {
		return fmt.Errorf("POOL_MIN_CONNS (%d) must not exceed POOL_MAX_CONNS (%d)", cfg.PoolMinConns, cfg.PoolMaxConns)
	}

	return nil
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL value %q: must be debug, info, warn, or error", s)
	}
}
