package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"ENGINE_KIND", "ENGINE_DSN", "OUTCOME_DB_PATH", "HINTS_FILE",
		"LOG_LEVEL", "STATEMENT_TIMEOUT", "GENERATOR_TIMEOUT",
		"GENERATOR_RPS", "WORKERS",
		"BEAM_WIDE_REQUESTS", "BEAM_WIDE_SYNTHESIS", "BEAM_WIDE_COMPOUNDS",
		"BEAM_FOCUSED_REQUESTS", "BEAM_FOCUSED_SYNTHESIS",
		"BEAM_MAX_SORTIES", "BEAM_MIN_IMPROVEMENT",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadFromEnv_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "duckdb", cfg.EngineKind)
	assert.Equal(t, "sqlbeam_outcomes.sqlite", cfg.OutcomeDBPath)
	assert.Equal(t, 5*time.Minute, cfg.StatementTimeout)
	assert.Equal(t, 2*time.Minute, cfg.GeneratorTimeout)
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.NotEmpty(t, cfg.Warnings, "in-memory duckdb should warn")
}

func TestLoadFromEnv_AllVarsSet(t *testing.T) {
	clearEnv(t)
	t.Setenv("ENGINE_KIND", "postgres")
	t.Setenv("ENGINE_DSN", "postgres://localhost/bench")
	t.Setenv("OUTCOME_DB_PATH", "/tmp/out.sqlite")
	t.Setenv("STATEMENT_TIMEOUT", "30s")
	t.Setenv("GENERATOR_RPS", "0.5")
	t.Setenv("WORKERS", "4")
	t.Setenv("BEAM_WIDE_REQUESTS", "20")
	t.Setenv("BEAM_MIN_IMPROVEMENT", "0.02")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.EngineKind)
	assert.Equal(t, "postgres://localhost/bench", cfg.EngineDSN)
	assert.Equal(t, "/tmp/out.sqlite", cfg.OutcomeDBPath)
	assert.Equal(t, 30*time.Second, cfg.StatementTimeout)
	assert.Equal(t, 0.5, cfg.GeneratorRPS)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, 20, cfg.Beam.WideRequests)
	assert.Equal(t, 0.02, cfg.Beam.MinImprovement)
	assert.Empty(t, cfg.Warnings)
}

func TestLoadFromEnv_PostgresRequiresDSN(t *testing.T) {
	clearEnv(t)
	t.Setenv("ENGINE_KIND", "postgres")

	_, err := LoadFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ENGINE_DSN")
}

func TestLoadFromEnv_BadEngineKind(t *testing.T) {
	clearEnv(t)
	t.Setenv("ENGINE_KIND", "mysql")

	_, err := LoadFromEnv()
	require.Error(t, err)
}

func TestSlogLevel(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"WARN", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		cfg := &Config{LogLevel: tt.level}
		assert.Equal(t, tt.want, cfg.SlogLevel(), "level %q", tt.level)
	}
}

func TestLoadHints(t *testing.T) {
	tmpDir := t.TempDir()
	hintsFile := filepath.Join(tmpDir, "hints.yaml")
	body := "Orders:\n  - id\n  - amount\nusers:\n  - id\n  - name\n"
	require.NoError(t, os.WriteFile(hintsFile, []byte(body), 0644))

	cfg := &Config{HintsFile: hintsFile}
	hints, err := cfg.LoadHints()
	require.NoError(t, err)

	assert.Equal(t, []string{"id", "amount"}, hints["orders"], "table names are lowercased")
	assert.Equal(t, []string{"id", "name"}, hints["users"])
}

func TestLoadHints_Missing(t *testing.T) {
	cfg := &Config{HintsFile: "/nonexistent/hints.yaml"}
	hints, err := cfg.LoadHints()
	require.NoError(t, err)
	assert.Nil(t, hints)

	cfg = &Config{}
	hints, err = cfg.LoadHints()
	require.NoError(t, err)
	assert.Nil(t, hints)
}

func TestLoadDotEnv_FileNotFound(t *testing.T) {
	err := LoadDotEnv("/nonexistent/.env")
	if err != nil {
		t.Errorf("expected no error for missing .env, got: %v", err)
	}
}

func TestLoadDotEnv_ParsesKeyValue(t *testing.T) {
	tmpDir := t.TempDir()
	envFile := filepath.Join(tmpDir, ".env")

	err := os.WriteFile(envFile, []byte("# comment\nTEST_SQLBEAM_KEY=\"quoted value\"\n"), 0644)
	if err != nil {
		t.Fatalf("write .env: %v", err)
	}

	if err := LoadDotEnv(envFile); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}

	if val := os.Getenv("TEST_SQLBEAM_KEY"); val != "quoted value" {
		t.Errorf("TEST_SQLBEAM_KEY = %q, want %q", val, "quoted value")
	}
	_ = os.Unsetenv("TEST_SQLBEAM_KEY")
}

func TestLoadDotEnv_EnvVarPrecedence(t *testing.T) {
	t.Setenv("TEST_SQLBEAM_PRECEDENCE", "from_env")

	tmpDir := t.TempDir()
	envFile := filepath.Join(tmpDir, ".env")

	err := os.WriteFile(envFile, []byte("TEST_SQLBEAM_PRECEDENCE=from_file\n"), 0644)
	if err != nil {
		t.Fatalf("write .env: %v", err)
	}

	if err := LoadDotEnv(envFile); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}

	if val := os.Getenv("TEST_SQLBEAM_PRECEDENCE"); val != "from_env" {
		t.Errorf("TEST_SQLBEAM_PRECEDENCE = %q, want %q (env precedence)", val, "from_env")
	}
}
