package fetcher

import "time"

// Config is the configuration for the product fetcher and its HTTP client
type Config struct {
	// Endpoint is the base URL of the upstream product API (required for the HTTP client)
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`
	// APIKey is sent in the X-Api-Key header
	APIKey string `mapstructure:"api_key" yaml:"api_key"`
	// MaxKeysPerCall is the largest batch the upstream accepts; also the refresh batch size
	// default: 10
	MaxKeysPerCall int `mapstructure:"max_keys_per_call" yaml:"max_keys_per_call"`
	// CallsPerWindow is the upstream call budget per Window
	// default: 1
	CallsPerWindow int `mapstructure:"calls_per_window" yaml:"calls_per_window"`
	// Window is the period the call budget applies to
	// default: 1s
	Window time.Duration `mapstructure:"window" yaml:"window"`
	// Timeout bounds every upstream call; keys of a timed out call are failures
	// default: 10s
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
	// MaxResponseBytes caps the decoded response body
	// default: 4MB
	MaxResponseBytes int64 `mapstructure:"max_response_bytes" yaml:"max_response_bytes"`
}

// DefaultConfig returns the default fetcher configuration
func DefaultConfig() *Config {
	return &Config{
		MaxKeysPerCall:   10,
		CallsPerWindow:   1,
		Window:           time.Second,
		Timeout:          10 * time.Second,
		MaxResponseBytes: 4 << 20,
	}
}

// MergeDefaults fills empty fields with defaults
func (c *Config) MergeDefaults() *Config {
	defaults := DefaultConfig()
	if c.MaxKeysPerCall == 0 {
		c.MaxKeysPerCall = defaults.MaxKeysPerCall
	}
	if c.CallsPerWindow == 0 {
		c.CallsPerWindow = defaults.CallsPerWindow
	}
	if c.Window == 0 {
		c.Window = defaults.Window
	}
	if c.Timeout == 0 {
		c.Timeout = defaults.Timeout
	}
	if c.MaxResponseBytes == 0 {
		c.MaxResponseBytes = defaults.MaxResponseBytes
	}
	return c
}

// Validate validates the limits; the endpoint is checked by NewHTTPClient
func (c *Config) Validate() error {
	if c.MaxKeysPerCall < 1 {
		return ErrInvalidConfig("max_keys_per_call must be >= 1")
	}
	if c.CallsPerWindow < 1 {
		return ErrInvalidConfig("calls_per_window must be >= 1")
	}
	if c.Window <= 0 {
		return ErrInvalidConfig("window must be > 0")
	}
	if c.Timeout <= 0 {
		return ErrInvalidConfig("timeout must be > 0")
	}
	if c.MaxResponseBytes <= 0 {
		return ErrInvalidConfig("max_response_bytes must be > 0")
	}
	return nil
}
