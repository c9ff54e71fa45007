package config_test

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/condition-engine/config"
)

func envOf(vars map[string]string) func(string) string {
	return func(key string) string { return vars[key] }
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load(nil, envOf(nil))
	require.NoError(t, err)

	assert.Equal(t, config.DefaultPort, cfg.Port)
	assert.Equal(t, config.DefaultDBPath, cfg.DBPath)
	assert.Equal(t, slog.LevelInfo, cfg.Level())
	assert.Equal(t, []string{"http://localhost:5173", "http://localhost:8080"}, cfg.AllowedOrigins)
	assert.Equal(t, 30*time.Minute, cfg.SessionTTL)
	assert.Equal(t, ":8080", cfg.Addr())
}

func TestLoad_EnvironmentThenFlags(t *testing.T) {
	env := envOf(map[string]string{
		"PORT":            "9000",
		"DB_PATH":         ":memory:",
		"LOG_LEVEL":       "debug",
		"ALLOWED_ORIGINS": "https://app.example.com, https://admin.example.com",
		"SESSION_TTL":     "5m",
	})

	cfg, err := config.Load(nil, env)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, ":memory:", cfg.DBPath)
	assert.Equal(t, slog.LevelDebug, cfg.Level())
	assert.Equal(t, []string{"https://app.example.com", "https://admin.example.com"}, cfg.AllowedOrigins)
	assert.Equal(t, 5*time.Minute, cfg.SessionTTL)

	// Flags win
	cfg, err = config.Load([]string{"-port", "3000", "-log-level", "warn", "-session-ttl", "0"}, env)
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Port)
	assert.Equal(t, slog.LevelWarn, cfg.Level())
	assert.Zero(t, cfg.SessionTTL)
	assert.Equal(t, ":memory:", cfg.DBPath)
}

func TestLoad_BadEnvironment(t *testing.T) {
	_, err := config.Load(nil, envOf(map[string]string{"PORT": "http", "SESSION_TTL": "forever"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PORT")
	assert.Contains(t, err.Error(), "SESSION_TTL")
}

func TestValidate_ListsEveryProblem(t *testing.T) {
	cfg := config.Config{Port: 70000, DBPath: " ", LogLevel: "loud", SessionTTL: -time.Second}

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{"port 70000", "db path", "loud", "session ttl"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
		ok   bool
	}{
		{"debug", slog.LevelDebug, true},
		{"INFO", slog.LevelInfo, true},
		{"", slog.LevelInfo, true},
		{"warning", slog.LevelWarn, true},
		{"error", slog.LevelError, true},
		{"trace", slog.LevelInfo, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := config.ParseLevel(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.ok, err == nil)
		})
	}
}
