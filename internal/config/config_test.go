package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"LISTEN_ADDR", "DB_PATH", "POLICY_FILE", "JWT_SECRET", "LOG_LEVEL", "ENV",
		"MAX_PAGE_SIZE", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
		"CORS_ALLOWED_ORIGINS", "AUDIT_RETENTION_DAYS",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key) //nolint:errcheck
	}
}

func TestLoadFromEnv_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "planbase.sqlite", cfg.DBPath)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 100, cfg.MaxPageSize)
	assert.Equal(t, float64(100), cfg.RateLimitRPS)
	assert.Equal(t, 200, cfg.RateLimitBurst)
	assert.Equal(t, 90, cfg.AuditRetentionDays)
	assert.Equal(t, []string{"*"}, cfg.CORSAllowedOrigins)
	assert.False(t, cfg.IsProduction())

	// Missing secret and policy file are warnings, not errors.
	assert.NotEmpty(t, cfg.Warnings)
}

func TestLoadFromEnv_ReadsValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("LISTEN_ADDR", ":9090")
	t.Setenv("DB_PATH", "/tmp/data.sqlite")
	t.Setenv("POLICY_FILE", "/etc/planbase/policy.yaml")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("MAX_PAGE_SIZE", "250")
	t.Setenv("RATE_LIMIT_RPS", "10.5")
	t.Setenv("RATE_LIMIT_BURST", "20")
	t.Setenv("AUDIT_RETENTION_DAYS", "30")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.ListenAddr)
	assert.Equal(t, "/tmp/data.sqlite", cfg.DBPath)
	assert.Equal(t, "/etc/planbase/policy.yaml", cfg.PolicyFile)
	assert.Equal(t, 250, cfg.MaxPageSize)
	assert.Equal(t, 10.5, cfg.RateLimitRPS)
	assert.Equal(t, 20, cfg.RateLimitBurst)
	assert.Equal(t, 30, cfg.AuditRetentionDays)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.CORSAllowedOrigins)
}

func TestLoadFromEnv_BadNumbersWarn(t *testing.T) {
	clearEnv(t)
	t.Setenv("MAX_PAGE_SIZE", "lots")
	t.Setenv("AUDIT_RETENTION_DAYS", "-5")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, 100, cfg.MaxPageSize)
	assert.Equal(t, 90, cfg.AuditRetentionDays)
	assert.GreaterOrEqual(t, len(cfg.Warnings), 2)
}

func TestLoadFromEnv_ProductionHardening(t *testing.T) {
	clearEnv(t)
	t.Setenv("ENV", "production")

	_, err := LoadFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")

	t.Setenv("JWT_SECRET", "real-secret")
	_, err = LoadFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CORS")

	t.Setenv("CORS_ALLOWED_ORIGINS", "https://app.example.com")
	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
}

func TestSlogLevel(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		cfg := &Config{LogLevel: tt.level}
		assert.Equal(t, tt.want, cfg.SlogLevel(), "level %q", tt.level)
	}
}

func TestLoadDotEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte(
		"# comment\n"+
			"LISTEN_ADDR=:7070\n"+
			"JWT_SECRET=\"quoted-secret\"\n"+
			"malformed line\n"), 0o600))

	// Pre-set values win over the file.
	t.Setenv("LISTEN_ADDR", ":6060")

	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, ":6060", os.Getenv("LISTEN_ADDR"))
	assert.Equal(t, "quoted-secret", os.Getenv("JWT_SECRET"))

	// A missing file is fine.
	assert.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "nope.env")))
}
