package collection

import "time"

// Config holds configuration for the Catalog
type Config struct {
	// Path is the YAML file collections are loaded from
	Path string `mapstructure:"path" yaml:"path"`
	// SyncInterval is the interval between reloads
	// default: 5m
	SyncInterval time.Duration `mapstructure:"sync_interval" yaml:"sync_interval"`
	// SyncTimeout bounds a single load
	// default: 30s
	SyncTimeout time.Duration `mapstructure:"sync_timeout" yaml:"sync_timeout"`
	// MaxRetries is the number of attempts per sync for transient errors
	// default: 3
	MaxRetries int `mapstructure:"max_retries" yaml:"max_retries"`
}

// DefaultConfig returns the default catalog configuration
func DefaultConfig() *Config {
	return &Config{
		SyncInterval: 5 * time.Minute,
		SyncTimeout:  30 * time.Second,
		MaxRetries:   3,
	}
}

// MergeDefaults fills empty fields with defaults
func (c *Config) MergeDefaults() *Config {
	d := DefaultConfig()
	if c.SyncInterval == 0 {
		c.SyncInterval = d.SyncInterval
	}
	if c.SyncTimeout == 0 {
		c.SyncTimeout = d.SyncTimeout
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = d.MaxRetries
	}
	return c
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.SyncInterval <= 0 {
		return ErrInvalidSyncInterval(c.SyncInterval)
	}
	if c.SyncTimeout <= 0 {
		return ErrInvalidSyncTimeout(c.SyncTimeout)
	}
	if c.MaxRetries < 1 {
		return ErrInvalidMaxRetries(c.MaxRetries)
	}
	return nil
}
