package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/capacity-engine/config"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load(nil)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, ":8080", cfg.Addr())
	assert.Equal(t, "20-S", cfg.RateLimit.Validate)
	assert.Equal(t, time.Minute, cfg.Alert.Interval)
	assert.Equal(t, []string{"http://localhost:5173", "http://localhost:8080"}, cfg.AllowedOrigins)
	assert.Equal(t, logrus.InfoLevel, cfg.LogrusLogLevel())
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("ALERT_MONITOR_INTERVAL", "30s")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example,https://b.example")

	cfg, err := config.Load(nil)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, logrus.DebugLevel, cfg.LogrusLogLevel())
	assert.Equal(t, 30*time.Second, cfg.Alert.Interval)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	_, isJSON := cfg.Logger().Formatter.(*logrus.JSONFormatter)
	assert.True(t, isJSON)
}

func TestLoad_EnvFile(t *testing.T) {
	// GIVEN: A .env file setting the database path
	dir := t.TempDir()
	file := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(file, []byte("DB_PATH=/tmp/from-dotenv.db\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("DB_PATH") })

	// WHEN: Loading with that file plus one that does not exist
	n, err := config.LoadEnv([]string{file, filepath.Join(dir, ".env.local")})
	require.NoError(t, err)
	cfg, err := config.Load(nil)
	require.NoError(t, err)

	// THEN: Only the existing file counts and its value is used
	assert.Equal(t, 1, n)
	assert.Equal(t, "/tmp/from-dotenv.db", cfg.DBPath)
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"bad port", "PORT", "70000"},
		{"bad log format", "LOG_FORMAT", "xml"},
		{"bad rate", "RATE_LIMIT_VALIDATE", "lots"},
		{"non-positive interval", "ALERT_MONITOR_INTERVAL", "0s"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			_, err := config.Load(nil)
			assert.Error(t, err)
		})
	}
}
