package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func noEnvFile(t *testing.T) {
	t.Setenv("LICHKA_ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
}

func TestLoad_Defaults(t *testing.T) {
	noEnvFile(t)

	cfg, err := Load(false)
	require.NoError(t, err)
	require.Equal(t, "lichka.db", cfg.DBFile)
	require.Equal(t, ":8080", cfg.APIAddr)
	require.Equal(t, 24*time.Hour, cfg.SessionTTL)
	require.Equal(t, 5*time.Minute, cfg.EditWindow)
	require.Equal(t, 256, cfg.EventBuffer)
	require.Equal(t, slog.LevelInfo, cfg.LogLevel)
	require.False(t, cfg.PushEnabled())
}

func TestLoad_Env(t *testing.T) {
	noEnvFile(t)
	t.Setenv("LICHKA_DB", "/tmp/x.db")
	t.Setenv("EDIT_WINDOW", "90s")
	t.Setenv("CONNECTION_BUFFER", "8")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load(false)
	require.NoError(t, err)
	require.Equal(t, "/tmp/x.db", cfg.DBFile)
	require.Equal(t, 90*time.Second, cfg.EditWindow)
	require.Equal(t, 8, cfg.ConnectionBuffer)
	require.Equal(t, slog.LevelDebug, cfg.LogLevel)
}

func TestLoad_EnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("MAX_MESSAGE_LENGTH=100\nAPI_ADDR=:9999\n"), 0o600))
	t.Setenv("LICHKA_ENV_FILE", path)
	// Already set variables win over the file.
	t.Setenv("API_ADDR", ":7777")
	// godotenv sets variables on the process, make sure they are cleaned up.
	t.Setenv("MAX_MESSAGE_LENGTH", "")
	require.NoError(t, os.Unsetenv("MAX_MESSAGE_LENGTH"))

	cfg, err := Load(false)
	require.NoError(t, err)
	require.Equal(t, 100, cfg.MaxMessageLength)
	require.Equal(t, ":7777", cfg.APIAddr)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"bad duration", "SESSION_TTL", "soon"},
		{"zero ttl", "SESSION_TTL", "0s"},
		{"bad number", "EVENT_BUFFER", "many"},
		{"zero buffer", "CONNECTION_BUFFER", "0"},
		{"bad level", "LOG_LEVEL", "loud"},
		{"relative base url", "BASE_URL", "example.com"},
		{"half vapid", "VAPID_PUBLIC_KEY", "pub"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			noEnvFile(t)
			t.Setenv(tt.key, tt.value)
			_, err := Load(false)
			require.Error(t, err)
		})
	}
}

func TestLoad_CLIMode(t *testing.T) {
	noEnvFile(t)
	t.Setenv("SESSION_TTL", "0s")

	cfg, err := Load(true)
	require.NoError(t, err)
	require.Equal(t, "localhost:8081", cfg.AdminAddr)
}
