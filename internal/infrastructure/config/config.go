package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"
)

// Config holds all application configuration.
//
// Values are layered: Default(), then an optional YAML or TOML file, then
// environment variables. CLI flags are applied by the caller afterwards.
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Sandbox   SandboxConfig   `yaml:"sandbox" toml:"sandbox"`
	Logging   LogConfig       `yaml:"logging" toml:"logging"`
	RateLimit RateLimitConfig `yaml:"rateLimit" toml:"rateLimit"`
	CORS      CORSConfig      `yaml:"cors" toml:"cors"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port              string `envconfig:"PORT" yaml:"port" toml:"port"`
	Host              string `envconfig:"HOST" yaml:"host" toml:"host"`
	ShutdownTimeoutMS int    `envconfig:"SHUTDOWN_TIMEOUT_MS" yaml:"shutdownTimeoutMs" toml:"shutdownTimeoutMs"`
}

// SandboxConfig holds script execution limits.
type SandboxConfig struct {
	DefaultTimeoutMS int  `envconfig:"SANDBOX_DEFAULT_TIMEOUT_MS" yaml:"defaultTimeoutMs" toml:"defaultTimeoutMs"`
	MaxTimeoutMS     int  `envconfig:"SANDBOX_MAX_TIMEOUT_MS" yaml:"maxTimeoutMs" toml:"maxTimeoutMs"`
	LogCapacity      int  `envconfig:"SANDBOX_LOG_CAPACITY" yaml:"logCapacity" toml:"logCapacity"`
	GraceMS          int  `envconfig:"SANDBOX_GRACE_MS" yaml:"graceMs" toml:"graceMs"`
	PollMS           int  `envconfig:"SANDBOX_POLL_MS" yaml:"pollMs" toml:"pollMs"`
	MaxSourceKB      int  `envconfig:"SANDBOX_MAX_SOURCE_KB" yaml:"maxSourceKb" toml:"maxSourceKb"`
	MaxCallStack     int  `envconfig:"SANDBOX_MAX_CALL_STACK" yaml:"maxCallStack" toml:"maxCallStack"`
	FetchEnabled     bool `envconfig:"SANDBOX_FETCH_ENABLED" yaml:"fetchEnabled" toml:"fetchEnabled"`
	FetchTimeoutMS   int  `envconfig:"SANDBOX_FETCH_TIMEOUT_MS" yaml:"fetchTimeoutMs" toml:"fetchTimeoutMs"`
	MaxFetches       int  `envconfig:"SANDBOX_MAX_FETCHES" yaml:"maxFetches" toml:"maxFetches"`
	MaxResponseKB    int  `envconfig:"SANDBOX_MAX_RESPONSE_KB" yaml:"maxResponseKb" toml:"maxResponseKb"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" yaml:"level" toml:"level"`
	Development bool   `envconfig:"LOG_DEV" yaml:"development" toml:"development"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" yaml:"requestsPerSecond" toml:"requestsPerSecond"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" yaml:"burst" toml:"burst"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" yaml:"enabled" toml:"enabled"`
}

// CORSConfig holds allowed browser origins. Empty means allow all.
type CORSConfig struct {
	Origins []string `envconfig:"CORS_ORIGINS" yaml:"origins" toml:"origins"`
}

// Load builds configuration from defaults, an optional file and the
// environment. An empty path falls back to $CONFIG_FILE.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load("")
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:              "8000",
			Host:              "0.0.0.0",
			ShutdownTimeoutMS: 10000,
		},
		Sandbox: SandboxConfig{
			DefaultTimeoutMS: 5000,
			MaxTimeoutMS:     30000,
			LogCapacity:      1000,
			GraceMS:          100,
			PollMS:           50,
			MaxSourceKB:      256,
			MaxCallStack:     1024,
			FetchEnabled:     false,
			FetchTimeoutMS:   10000,
			MaxFetches:       20,
			MaxResponseKB:    1024,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 20,
			Burst:             40,
			Enabled:           true,
		},
	}
}

// loadFile overlays a YAML or TOML file chosen by extension
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, c)
	case ".toml":
		err = toml.Unmarshal(data, c)
	default:
		return fmt.Errorf("unsupported config file type %q", ext)
	}
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}
	return nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	var errs []error

	if port, err := strconv.Atoi(c.Server.Port); err != nil || port < 0 || port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %q is not a valid port", c.Server.Port))
	}

	s := c.Sandbox
	for _, f := range []struct {
		name  string
		value int
	}{
		{"sandbox.defaultTimeoutMs", s.DefaultTimeoutMS},
		{"sandbox.maxTimeoutMs", s.MaxTimeoutMS},
		{"sandbox.logCapacity", s.LogCapacity},
		{"sandbox.graceMs", s.GraceMS},
		{"sandbox.pollMs", s.PollMS},
		{"sandbox.maxSourceKb", s.MaxSourceKB},
	} {
		if f.value <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", f.name, f.value))
		}
	}
	if s.MaxTimeoutMS > 0 && s.DefaultTimeoutMS > s.MaxTimeoutMS {
		errs = append(errs, fmt.Errorf("sandbox.defaultTimeoutMs %d exceeds maxTimeoutMs %d", s.DefaultTimeoutMS, s.MaxTimeoutMS))
	}

	if c.RateLimit.Enabled && (c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst <= 0) {
		errs = append(errs, errors.New("rateLimit requires positive requestsPerSecond and burst when enabled"))
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// ShutdownTimeout returns the graceful shutdown budget.
func (s ServerConfig) ShutdownTimeout() time.Duration {
	return ms(s.ShutdownTimeoutMS)
}

// DefaultTimeout applies when a request omits its timeout.
func (s SandboxConfig) DefaultTimeout() time.Duration { return ms(s.DefaultTimeoutMS) }

// MaxTimeout clamps requested timeouts.
func (s SandboxConfig) MaxTimeout() time.Duration { return ms(s.MaxTimeoutMS) }

// GracePeriod is the wait after a script settles.
func (s SandboxConfig) GracePeriod() time.Duration { return ms(s.GraceMS) }

// PollInterval is the pending-work poll period.
func (s SandboxConfig) PollInterval() time.Duration { return ms(s.PollMS) }

// FetchTimeout bounds each fetch() request.
func (s SandboxConfig) FetchTimeout() time.Duration { return ms(s.FetchTimeoutMS) }

// MaxSourceBytes is the largest accepted script.
func (s SandboxConfig) MaxSourceBytes() int { return s.MaxSourceKB * 1024 }

// MaxResponseBytes is the largest body fetch() will read.
func (s SandboxConfig) MaxResponseBytes() int64 { return int64(s.MaxResponseKB) * 1024 }

func ms(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}
