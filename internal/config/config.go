// Package config provides configuration loading and validation for the service and CLI.
package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
)

// Default values applied when neither the file nor the environment sets a field
const (
	DefaultBackendURL = "http://localhost:8000"
	DefaultLogFormat  = "text"
	DefaultLogLevel   = "info"
	DefaultPort       = 8080
)

// Config holds the settings shared by serve, watch and replay.
// All fields are optional in the file; the environment overrides the file.
type Config struct {
	// Backend
	BackendURL       string `json:"backend_url,omitempty"`        // Base URL of the automation backend
	BackendStreamURL string `json:"backend_stream_url,omitempty"` // WebSocket base; derived from backend_url when empty
	APIToken         string `json:"api_token,omitempty"`          // Fallback bearer credential for the backend

	// Storage
	DatabaseURL string `json:"database_url,omitempty"` // PostgreSQL connection URL for hand-off storage

	// Logging
	LogFormat string `json:"log_format,omitempty"` // json or text
	LogLevel  string `json:"log_level,omitempty"`  // debug, info, warn, error

	// Server
	Port int `json:"port,omitempty"`
}

// LoadConfig loads configuration from a JSON file.
// Returns an error if the file cannot be read or parsed.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	// Resolve path relative to current directory if not absolute
	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	return &cfg, nil
}

// FromEnv reads BACKEND_URL, BACKEND_STREAM_URL, AGENT_API_TOKEN, DATABASE_URL,
// LOG_FORMAT, LOG_LEVEL and PORT. Unset variables leave fields empty.
func FromEnv() (*Config, error) {
	cfg := &Config{
		BackendURL:       os.Getenv("BACKEND_URL"),
		BackendStreamURL: os.Getenv("BACKEND_STREAM_URL"),
		APIToken:         os.Getenv("AGENT_API_TOKEN"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		LogFormat:        os.Getenv("LOG_FORMAT"),
		LogLevel:         os.Getenv("LOG_LEVEL"),
	}
	if portStr := os.Getenv("PORT"); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, fmt.Errorf("invalid PORT: %v", err)
		}
		cfg.Port = port
	}
	return cfg, nil
}

// Defaults returns the built-in configuration
func Defaults() Config {
	return Config{
		BackendURL: DefaultBackendURL,
		LogFormat:  DefaultLogFormat,
		LogLevel:   DefaultLogLevel,
		Port:       DefaultPort,
	}
}

// Load resolves the effective configuration: environment over file over defaults.
// An empty path skips the file.
func Load(path string) (*Config, error) {
	file := &Config{}
	if path != "" {
		loaded, err := LoadConfig(path)
		if err != nil {
			return nil, err
		}
		file = loaded
	}

	env, err := FromEnv()
	if err != nil {
		return nil, err
	}

	merged := env.MergeWithDefaults(file.MergeWithDefaults(Defaults()))
	if err := merged.Validate(); err != nil {
		return nil, err
	}
	return &merged, nil
}

// Validate checks that the configuration has valid values.
// Note: empty values are allowed; commands check what they need.
func (c *Config) Validate() error {
	if c.BackendURL != "" {
		if err := checkURL(c.BackendURL, "http", "https"); err != nil {
			return fmt.Errorf("config error: 'backend_url' %w", err)
		}
	}
	if c.BackendStreamURL != "" {
		if err := checkURL(c.BackendStreamURL, "ws", "wss"); err != nil {
			return fmt.Errorf("config error: 'backend_stream_url' %w", err)
		}
	}

	switch c.LogFormat {
	case "", "json", "text":
	default:
		return fmt.Errorf("config error: 'log_format' must be json or text, got %q", c.LogFormat)
	}
	switch c.LogLevel {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("config error: 'log_level' must be debug, info, warn or error, got %q", c.LogLevel)
	}

	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("config error: 'port' must be between 0 and 65535")
	}

	return nil
}

func checkURL(raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return fmt.Errorf("is not a valid URL: %s", raw)
	}
	for _, s := range schemes {
		if u.Scheme == s {
			return nil
		}
	}
	return fmt.Errorf("must use scheme %v, got %q", schemes, u.Scheme)
}

// MergeWithDefaults returns a new Config with empty fields filled from defaults.
func (c *Config) MergeWithDefaults(defaults Config) Config {
	result := *c

	// String fields: use default if empty
	if result.BackendURL == "" {
		result.BackendURL = defaults.BackendURL
	}
	if result.BackendStreamURL == "" {
		result.BackendStreamURL = defaults.BackendStreamURL
	}
	if result.APIToken == "" {
		result.APIToken = defaults.APIToken
	}
	if result.DatabaseURL == "" {
		result.DatabaseURL = defaults.DatabaseURL
	}
	if result.LogFormat == "" {
		result.LogFormat = defaults.LogFormat
	}
	if result.LogLevel == "" {
		result.LogLevel = defaults.LogLevel
	}

	// Int fields: use default if zero
	if result.Port == 0 {
		result.Port = defaults.Port
	}

	return result
}
