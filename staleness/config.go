package staleness

import "time"

// Config is the configuration form of a Policy
type Config struct {
	// TTL is how long a fetched record stays fresh
	// default: 720h (30 days)
	TTL time.Duration `mapstructure:"ttl" yaml:"ttl"`
	// RetryBackoff is the quiet period after any attempt, 0 disables it
	// default: 1h
	RetryBackoff *time.Duration `mapstructure:"retry_backoff" yaml:"retry_backoff"`
}

// DefaultConfig returns the default staleness configuration
func DefaultConfig() *Config {
	p := DefaultPolicy()
	return &Config{
		TTL:          p.TTL,
		RetryBackoff: &p.RetryBackoff,
	}
}

// MergeDefaults fills unset fields with defaults
// An explicit zero RetryBackoff is kept
func (c *Config) MergeDefaults() *Config {
	defaults := DefaultConfig()
	if c.TTL == 0 {
		c.TTL = defaults.TTL
	}
	if c.RetryBackoff == nil {
		c.RetryBackoff = defaults.RetryBackoff
	}
	return c
}

// Validate validates the configuration
func (c *Config) Validate() error {
	p := c.Policy()
	return p.Validate()
}

// Policy returns the policy described by c
func (c *Config) Policy() Policy {
	p := Policy{TTL: c.TTL}
	if c.RetryBackoff != nil {
		p.RetryBackoff = *c.RetryBackoff
	}
	return p
}
