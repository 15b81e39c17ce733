package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "8000", cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "0.0.0.0:8000", cfg.Server.Addr())
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout())

	assert.Equal(t, 5*time.Second, cfg.Sandbox.DefaultTimeout())
	assert.Equal(t, 30*time.Second, cfg.Sandbox.MaxTimeout())
	assert.Equal(t, 1000, cfg.Sandbox.LogCapacity)
	assert.Equal(t, 100*time.Millisecond, cfg.Sandbox.GracePeriod())
	assert.Equal(t, 50*time.Millisecond, cfg.Sandbox.PollInterval())
	assert.Equal(t, 256*1024, cfg.Sandbox.MaxSourceBytes())
	assert.Equal(t, int64(1024*1024), cfg.Sandbox.MaxResponseBytes())
	assert.False(t, cfg.Sandbox.FetchEnabled)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.True(t, cfg.RateLimit.Enabled)
	assert.Empty(t, cfg.CORS.Origins)

	assert.NoError(t, cfg.Validate())
}

func TestLoadOrDefault(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	cfg := LoadOrDefault()

	assert.NotNil(t, cfg)
	assert.Equal(t, "8000", cfg.Server.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadOrDefaultFallsBackOnInvalidEnv(t *testing.T) {
	t.Setenv("SANDBOX_LOG_CAPACITY", "lots")
	cfg := LoadOrDefault()
	assert.Equal(t, 1000, cfg.Sandbox.LogCapacity)
}

func TestLoadWithEnvironmentVariables(t *testing.T) {
	envVars := map[string]string{
		"PORT":                       "9000",
		"HOST":                       "127.0.0.1",
		"SHUTDOWN_TIMEOUT_MS":        "2500",
		"SANDBOX_DEFAULT_TIMEOUT_MS": "3000",
		"SANDBOX_MAX_TIMEOUT_MS":     "60000",
		"SANDBOX_LOG_CAPACITY":       "50",
		"SANDBOX_FETCH_ENABLED":      "true",
		"LOG_LEVEL":                  "debug",
		"LOG_DEV":                    "true",
		"RATE_LIMIT_RPS":             "500",
		"RATE_LIMIT_BURST":           "1000",
		"RATE_LIMIT_ENABLED":         "false",
		"CORS_ORIGINS":               "http://localhost:5173,https://pad.example.com",
		"CONFIG_FILE":                "",
	}
	for key, value := range envVars {
		t.Setenv(key, value)
	}

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 2500*time.Millisecond, cfg.Server.ShutdownTimeout())
	assert.Equal(t, 3*time.Second, cfg.Sandbox.DefaultTimeout())
	assert.Equal(t, time.Minute, cfg.Sandbox.MaxTimeout())
	assert.Equal(t, 50, cfg.Sandbox.LogCapacity)
	assert.True(t, cfg.Sandbox.FetchEnabled)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Development)
	assert.Equal(t, 500, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, 1000, cfg.RateLimit.Burst)
	assert.False(t, cfg.RateLimit.Enabled)
	assert.Equal(t, []string{"http://localhost:5173", "https://pad.example.com"}, cfg.CORS.Origins)

	// untouched values keep their defaults
	assert.Equal(t, 100, cfg.Sandbox.GraceMS)
	assert.Equal(t, 20, cfg.Sandbox.MaxFetches)
}

func TestLoadYAMLFile(t *testing.T) {
	path := writeFile(t, "scratchpad.yaml", `
server:
  port: "7000"
sandbox:
  defaultTimeoutMs: 2000
  logCapacity: 200
cors:
  origins:
    - http://localhost:3000
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "7000", cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 2*time.Second, cfg.Sandbox.DefaultTimeout())
	assert.Equal(t, 200, cfg.Sandbox.LogCapacity)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.CORS.Origins)
}

func TestLoadTOMLFile(t *testing.T) {
	path := writeFile(t, "scratchpad.toml", `
[sandbox]
maxTimeoutMs = 10000
fetchEnabled = true

[logging]
level = "warn"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 10*time.Second, cfg.Sandbox.MaxTimeout())
	assert.True(t, cfg.Sandbox.FetchEnabled)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := writeFile(t, "scratchpad.yml", "server:\n  port: \"7000\"\n")
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("PORT", "7100")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "7100", cfg.Server.Port)
}

func TestLoadFileErrors(t *testing.T) {
	tests := []struct {
		name string
		file string
		body string
	}{
		{name: "unsupported extension", file: "config.json", body: "{}"},
		{name: "malformed yaml", file: "config.yaml", body: "server: [unclosed"},
		{name: "malformed toml", file: "config.toml", body: "[server\nport ="},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.file, tt.body))
			assert.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "bad port", mutate: func(c *Config) { c.Server.Port = "http" }},
		{name: "port out of range", mutate: func(c *Config) { c.Server.Port = "70000" }},
		{name: "zero default timeout", mutate: func(c *Config) { c.Sandbox.DefaultTimeoutMS = 0 }},
		{name: "default above max", mutate: func(c *Config) { c.Sandbox.DefaultTimeoutMS = c.Sandbox.MaxTimeoutMS + 1 }},
		{name: "zero log capacity", mutate: func(c *Config) { c.Sandbox.LogCapacity = 0 }},
		{name: "negative poll", mutate: func(c *Config) { c.Sandbox.PollMS = -1 }},
		{name: "rate limit without rps", mutate: func(c *Config) { c.RateLimit.RequestsPerSecond = 0 }},
		{name: "unknown log level", mutate: func(c *Config) { c.Logging.Level = "verbose" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	t.Run("disabled rate limit ignores zero rps", func(t *testing.T) {
		cfg := Default()
		cfg.RateLimit.Enabled = false
		cfg.RateLimit.RequestsPerSecond = 0
		assert.NoError(t, cfg.Validate())
	})
}
