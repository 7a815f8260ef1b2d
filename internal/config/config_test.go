package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpFile := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(tmpFile, []byte(content), 0644))
	return tmpFile
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"BACKEND_URL", "BACKEND_STREAM_URL", "AGENT_API_TOKEN", "DATABASE_URL", "LOG_FORMAT", "LOG_LEVEL", "PORT"} {
		t.Setenv(key, "")
	}
}

func TestLoadConfig_ValidJSON(t *testing.T) {
	path := writeConfig(t, `{
		"backend_url": "https://agent.example",
		"backend_stream_url": "wss://stream.agent.example",
		"database_url": "postgres://localhost/jobs",
		"log_format": "json",
		"port": 9090
	}`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "https://agent.example", cfg.BackendURL)
	assert.Equal(t, "wss://stream.agent.example", cfg.BackendStreamURL)
	assert.Equal(t, "postgres://localhost/jobs", cfg.DatabaseURL)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 9090, cfg.Port)
}

func TestLoadConfig_InvalidJSON(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, `{ invalid json }`))
	assert.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "failed to parse config JSON")
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	cfg, err := LoadConfig("/nonexistent/path/config.json")
	assert.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoadConfig_EmptyPath(t *testing.T) {
	cfg, err := LoadConfig("")
	assert.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "config path is empty")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{"empty is fine", Config{}, ""},
		{"defaults are fine", Defaults(), ""},
		{"backend without scheme", Config{BackendURL: "agent.example"}, "backend_url"},
		{"backend with ws scheme", Config{BackendURL: "ws://agent.example"}, "backend_url"},
		{"stream with http scheme", Config{BackendStreamURL: "http://agent.example"}, "backend_stream_url"},
		{"bad log format", Config{LogFormat: "xml"}, "log_format"},
		{"bad log level", Config{LogLevel: "loud"}, "log_level"},
		{"bad port", Config{Port: 70000}, "port"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestMergeWithDefaults(t *testing.T) {
	cfg := &Config{BackendURL: "https://agent.example"}

	merged := cfg.MergeWithDefaults(Defaults())

	assert.Equal(t, "https://agent.example", merged.BackendURL)
	assert.Equal(t, DefaultLogFormat, merged.LogFormat)
	assert.Equal(t, DefaultLogLevel, merged.LogLevel)
	assert.Equal(t, DefaultPort, merged.Port)
	assert.Empty(t, cfg.LogFormat, "receiver must not be modified")
}

func TestLoad_Precedence(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `{"backend_url": "https://file.example", "log_level": "debug", "port": 9000}`)
	t.Setenv("BACKEND_URL", "https://env.example")
	t.Setenv("AGENT_API_TOKEN", "token-from-env")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://env.example", cfg.BackendURL)
	assert.Equal(t, "token-from-env", cfg.APIToken)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, DefaultLogFormat, cfg.LogFormat)
}

func TestLoad_WithoutFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "7070")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultBackendURL, cfg.BackendURL)
	assert.Equal(t, 7070, cfg.Port)
}

func TestLoad_InvalidPort(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "eighty")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid PORT")
}

func TestLoad_InvalidMerged(t *testing.T) {
	clearEnv(t)
	t.Setenv("LOG_FORMAT", "yaml")

	_, err := Load("")
	assert.Error(t, err)
}
