package refresh

// Config is the configuration for the refresh coordinator
type Config struct {
	// Concurrency is the number of batches fetched at the same time
	// Higher values trade upstream rate limit headroom for latency
	// default: 1
	Concurrency int `mapstructure:"concurrency" yaml:"concurrency"`
}

// DefaultConfig returns the default coordinator configuration
func DefaultConfig() *Config {
	return &Config{
		Concurrency: 1,
	}
}

// MergeDefaults fills empty fields with defaults
func (c *Config) MergeDefaults() *Config {
	if c.Concurrency == 0 {
		c.Concurrency = DefaultConfig().Concurrency
	}
	return c
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Concurrency < 1 {
		return ErrInvalidConfig("concurrency must be >= 1")
	}
	return nil
}
