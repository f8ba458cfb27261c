// Package config handles application configuration and environment loading.
package config

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"sqlbeam/internal/sqldag"
)

// BeamConfig bounds one optimization session's search.
type BeamConfig struct {
	WideRequests     int     // parallel requests per wide exploration round
	WideSynthesis    int     // synthesis rounds after a wide exploration
	WideCompounds    int     // compound candidates per wide synthesis call
	FocusedRequests  int     // parallel requests per focused round
	FocusedSynthesis int     // synthesis rounds for focused sessions
	MaxSorties       int     // round budget per session
	MinImprovement   float64 // negligible-margin termination threshold
}

// Config holds the configuration for the optimizer CLI.
type Config struct {
	EngineKind string // target engine: "duckdb" (default) or "postgres"
	EngineDSN  string // engine connection string or database file path

	OutcomeDBPath    string        // path to the SQLite outcome log (default "sqlbeam_outcomes.sqlite")
	HintsFile        string        // optional YAML file mapping table names to column lists
	StatementTimeout time.Duration // per-statement execution deadline (default 5m)
	GeneratorTimeout time.Duration // per generator call deadline (default 2m)
	GeneratorRPS     float64       // generator call pacing, 0 = unlimited
	Workers          int           // worker pool size (default 8)
	LogLevel         string        // log level: debug, info, warn, error (default "info")

	Beam BeamConfig

	// Warnings collects non-fatal warnings generated during config loading.
	// These are logged by the caller after the logger is initialised.
	Warnings []string
}

// SlogLevel maps the LogLevel string to an slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	switch c.EngineKind {
	case "duckdb", "postgres":
	default:
		return fmt.Errorf("ENGINE_KIND must be duckdb or postgres, got %q", c.EngineKind)
	}
	if c.EngineKind == "postgres" && c.EngineDSN == "" {
		return fmt.Errorf("ENGINE_DSN is required when ENGINE_KIND=postgres")
	}
	if c.StatementTimeout <= 0 {
		return fmt.Errorf("STATEMENT_TIMEOUT must be positive")
	}
	return nil
}

// LoadFromEnv loads configuration from environment variables.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		EngineKind:    os.Getenv("ENGINE_KIND"),
		EngineDSN:     os.Getenv("ENGINE_DSN"),
		OutcomeDBPath: os.Getenv("OUTCOME_DB_PATH"),
		HintsFile:     os.Getenv("HINTS_FILE"),
		LogLevel:      os.Getenv("LOG_LEVEL"),
	}

	if v := os.Getenv("STATEMENT_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.StatementTimeout = d
		}
	}
	if v := os.Getenv("GENERATOR_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.GeneratorTimeout = d
		}
	}
	if v := os.Getenv("GENERATOR_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.GeneratorRPS = f
		}
	}
	if v := os.Getenv("WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Workers = n
		}
	}

	cfg.Beam = BeamConfig{
		WideRequests:     intEnv("BEAM_WIDE_REQUESTS"),
		WideSynthesis:    intEnv("BEAM_WIDE_SYNTHESIS"),
		WideCompounds:    intEnv("BEAM_WIDE_COMPOUNDS"),
		FocusedRequests:  intEnv("BEAM_FOCUSED_REQUESTS"),
		FocusedSynthesis: intEnv("BEAM_FOCUSED_SYNTHESIS"),
		MaxSorties:       intEnv("BEAM_MAX_SORTIES"),
	}
	if v := os.Getenv("BEAM_MIN_IMPROVEMENT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Beam.MinImprovement = f
		}
	}

	// Defaults
	if cfg.EngineKind == "" {
		cfg.EngineKind = "duckdb"
	}
	if cfg.EngineKind == "duckdb" && cfg.EngineDSN == "" {
		cfg.Warnings = append(cfg.Warnings, "ENGINE_DSN not set, using an in-memory DuckDB database")
	}
	if cfg.OutcomeDBPath == "" {
		cfg.OutcomeDBPath = "sqlbeam_outcomes.sqlite"
	}
	if cfg.StatementTimeout == 0 {
		cfg.StatementTimeout = 5 * time.Minute
	}
	if cfg.GeneratorTimeout == 0 {
		cfg.GeneratorTimeout = 2 * time.Minute
	}
	if cfg.Workers == 0 {
		cfg.Workers = 8
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func intEnv(key string) int {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

// LoadHints reads the optional table-to-columns hints file. A missing
// path or empty HintsFile yields nil hints.
func (c *Config) LoadHints() (sqldag.SchemaHints, error) {
	if c.HintsFile == "" {
		return nil, nil
	}
	data, err := os.ReadFile(c.HintsFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", c.HintsFile, err)
	}
	var raw map[string][]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse %s: %w", c.HintsFile, err)
	}
	hints := make(sqldag.SchemaHints, len(raw))
	for table, cols := range raw {
		hints[strings.ToLower(table)] = cols
	}
	return hints, nil
}

// LoadDotEnv reads a .env file and sets any variables not already in the
// environment. Lines must be in KEY=VALUE format. Comments (#) and blank
// lines are skipped.
func LoadDotEnv(path string) error {
	f, err := os.Open(path) //nolint:gosec // path is caller-controlled
	if err != nil {
		if os.IsNotExist(err) {
			return nil // .env not found is not an error
		}
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = stripQuotes(strings.TrimSpace(value))
		// Only set if not already in the environment (env vars take precedence)
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("setenv %s: %w", key, err)
			}
		}
	}
	return scanner.Err()
}

// stripQuotes removes surrounding double or single quotes from a value.
// Only strips if both the first and last characters are matching quotes.
func stripQuotes(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
