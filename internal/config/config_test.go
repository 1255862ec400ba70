package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadKeepsDefaultsForMissingFields(t *testing.T) {
	path := writeConfig(t, `
[mainConfig]
apiBaseURL = "https://api.example.com"

[sessionConfig]
baseDelay = "250ms"
maxAttempts = 3
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://api.example.com", cfg.APIBaseURL)
	assert.Equal(t, 250*time.Millisecond, cfg.BaseDelay.Duration)
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Equal(t, 30*time.Second, cfg.MaxDelay.Duration)
	assert.Equal(t, 10*time.Second, cfg.ConnectTimeout.Duration)
	assert.True(t, cfg.LegacyWelcome)
	assert.Equal(t, "wss://api.example.com/ws/chat", cfg.ChatURL())
}

func TestLoadRejectsBadDuration(t *testing.T) {
	path := writeConfig(t, `
[sessionConfig]
baseDelay = "soon"
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("API_BASE_URL", "http://10.0.0.2:9000")
	t.Setenv("JWT_TOKEN", "tok")
	t.Setenv("REDIS_ENABLED", "true")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)
	assert.Equal(t, "http://10.0.0.2:9000", cfg.APIBaseURL)
	assert.Equal(t, "tok", cfg.AuthConfig.Token)
	assert.True(t, cfg.RedisConfig.Enabled)
	assert.Equal(t, "debug", cfg.LogConfig.Level)
	assert.Equal(t, "ws://10.0.0.2:9000/ws/chat", cfg.ChatURL())
}

func TestValidate(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	cfg.APIBaseURL = ""
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.APIBaseURL = "ftp://example.com"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.MaxAttempts = -1
	assert.Error(t, cfg.Validate())
}

func TestWebSocketURL(t *testing.T) {
	cases := []struct {
		base, path, want string
	}{
		{"http://localhost:8000", "", "ws://localhost:8000/ws/chat"},
		{"https://api.example.com/", "/ws/chat", "wss://api.example.com/ws/chat"},
		{"https://api.example.com/v1", "ws/chat", "wss://api.example.com/v1/ws/chat"},
		{"ws://127.0.0.1:1234", "/socket", "ws://127.0.0.1:1234/socket"},
	}
	for _, tc := range cases {
		got, err := WebSocketURL(tc.base, tc.path)
		require.NoError(t, err, tc.base)
		assert.Equal(t, tc.want, got, tc.base)
	}

	_, err := WebSocketURL("localhost:8000", "")
	assert.Error(t, err)
}
