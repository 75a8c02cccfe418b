package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "development", cfg.Env)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, StorePostgres, cfg.Store)
	assert.Equal(t, 5*time.Second, cfg.PollInterval)
	assert.Equal(t, 15*time.Minute, cfg.GoalInterval)
	assert.Equal(t, time.Hour, cfg.RCInterval)
	assert.Equal(t, 24*time.Hour, cfg.RCRetention)
	assert.True(t, strings.HasPrefix(cfg.WorkerID, "worker-"))
	assert.False(t, cfg.AlertsEnabled())
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("POSTGRES_DSN", "postgres://localhost/wordsprint")
	t.Setenv("POLL_INTERVAL", "2s")
	t.Setenv("RC_INTERVAL", "600")
	t.Setenv("MIGRATE", "true")
	t.Setenv("WORKER_ID", "w1")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "postgres://localhost/wordsprint", cfg.PostgresDSN)
	assert.Equal(t, 2*time.Second, cfg.PollInterval)
	assert.Equal(t, 10*time.Minute, cfg.RCInterval)
	assert.True(t, cfg.Migrate)
	assert.Equal(t, "w1", cfg.WorkerID)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wordsprint.yaml")
	content := `
env: production
port: "7000"
store: memory
poll_interval: 10s
rc_retention: 48h
redis_addr: localhost:6379
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("PORT", "7001")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "production", cfg.Env)
	assert.Equal(t, "7001", cfg.Port)
	assert.Equal(t, StoreMemory, cfg.Store)
	assert.Equal(t, 10*time.Second, cfg.PollInterval)
	assert.Equal(t, 48*time.Hour, cfg.RCRetention)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, time.Hour, cfg.RCInterval)
}

func TestLoad_BadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: [unterminated"), 0o600))
	t.Setenv("CONFIG_FILE", path)

	_, err := Load()
	assert.Error(t, err)

	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	_, err = Load()
	assert.Error(t, err)
}

func TestBindFlags(t *testing.T) {
	cfg := Default()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	cfg.BindFlags(fs)

	require.NoError(t, fs.Parse([]string{"--port=6000", "--store=memory", "--poll-interval=1s", "--migrate"}))

	assert.Equal(t, "6000", cfg.Port)
	assert.Equal(t, StoreMemory, cfg.Store)
	assert.Equal(t, time.Second, cfg.PollInterval)
	assert.True(t, cfg.Migrate)
	assert.Equal(t, "development", cfg.Env)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "POSTGRES_DSN")

	cfg.Store = StoreMemory
	assert.NoError(t, cfg.Validate())

	cfg.Store = "sqlite"
	cfg.PollInterval = 0
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown store")
	assert.Contains(t, err.Error(), "poll interval")
}

func TestAlertsEnabled(t *testing.T) {
	cfg := Default()
	cfg.SendgridKey = "SG.key"
	cfg.AlertFrom = "bot@example.com"
	assert.False(t, cfg.AlertsEnabled())

	cfg.AlertTo = "ops@example.com"
	assert.True(t, cfg.AlertsEnabled())
}

func TestGetEnvAsDuration(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  time.Duration
	}{
		{"unset", "", time.Minute},
		{"duration", "90s", 90 * time.Second},
		{"seconds", "30", 30 * time.Second},
		{"garbage", "soon", time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_DURATION", tt.value)
			assert.Equal(t, tt.want, getEnvAsDuration("TEST_DURATION", time.Minute))
		})
	}
}

func TestGetEnvAsBool(t *testing.T) {
	t.Setenv("TEST_BOOL", "")
	assert.True(t, getEnvAsBool("TEST_BOOL", true))

	t.Setenv("TEST_BOOL", "false")
	assert.False(t, getEnvAsBool("TEST_BOOL", true))

	t.Setenv("TEST_BOOL", "maybe")
	assert.True(t, getEnvAsBool("TEST_BOOL", true))
}

func TestInitLogger(t *testing.T) {
	tests := []struct {
		name  string
		env   string
		level string
		want  zapcore.Level
	}{
		{"development debug", "development", "debug", zapcore.DebugLevel},
		{"production info", "production", "info", zapcore.InfoLevel},
		{"production warn", "production", "warn", zapcore.WarnLevel},
		{"empty level", "development", "", zapcore.InfoLevel},
		{"invalid level", "development", "not-a-level", zapcore.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := InitLogger(tt.env, tt.level)
			require.NoError(t, err)
			require.NotNil(t, logger)

			assert.True(t, logger.Core().Enabled(tt.want))
			if tt.want > zapcore.DebugLevel {
				assert.False(t, logger.Core().Enabled(tt.want-1))
			}
		})
	}
}

func TestMustInitLogger(t *testing.T) {
	assert.NotPanics(t, func() {
		logger := MustInitLogger("development", "info")
		logger.Info("test from MustInitLogger")
	})
}
