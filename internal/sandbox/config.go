package sandbox

import "time"

// Config defines per-run engine limits
type Config struct {
	LogCapacity      int           // Ordinary records kept before truncation
	GracePeriod      time.Duration // Wait after the script settles before checking pending work
	PollInterval     time.Duration // Pending-work poll period while settling
	MaxCallStackSize int           // goja call stack limit, 0 keeps the engine default
	EnableFetch      bool          // Expose a proxied fetch() to scripts
	FetchTimeout     time.Duration // Per-request timeout for fetch()
	MaxFetches       int           // fetch() calls allowed per run
	MaxResponseBytes int64         // Largest response body fetch() will read
}

// DefaultConfig returns the engine defaults
func DefaultConfig() Config {
	return Config{
		LogCapacity:      1000,
		GracePeriod:      100 * time.Millisecond,
		PollInterval:     50 * time.Millisecond,
		MaxCallStackSize: 1024,
		EnableFetch:      false,
		FetchTimeout:     10 * time.Second,
		MaxFetches:       20,
		MaxResponseBytes: 1 << 20,
	}
}

// withDefaults fills zero values from DefaultConfig
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.LogCapacity <= 0 {
		c.LogCapacity = def.LogCapacity
	}
	if c.GracePeriod <= 0 {
		c.GracePeriod = def.GracePeriod
	}
	if c.PollInterval <= 0 {
		c.PollInterval = def.PollInterval
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = def.FetchTimeout
	}
	if c.MaxFetches <= 0 {
		c.MaxFetches = def.MaxFetches
	}
	if c.MaxResponseBytes <= 0 {
		c.MaxResponseBytes = def.MaxResponseBytes
	}
	return c
}
