package cron

// Config is the configuration for the refresh scheduler
type Config struct {
	// Spec is the cron spec of the default refresh job, with seconds
	// default: "0 */10 * * * *"
	Spec string `mapstructure:"spec" yaml:"spec"`
	// MaxContinuations caps the extra cycles started by one tick
	// A negative value disables continuations
	// default: 3
	MaxContinuations int `mapstructure:"max_continuations" yaml:"max_continuations"`
}

// DefaultConfig returns the default scheduler configuration
func DefaultConfig() *Config {
	return &Config{
		Spec:             "0 */10 * * * *",
		MaxContinuations: 3,
	}
}

// MergeDefaults fills empty fields with defaults
func (c *Config) MergeDefaults() *Config {
	d := DefaultConfig()
	if c.Spec == "" {
		c.Spec = d.Spec
	}
	if c.MaxContinuations == 0 {
		c.MaxContinuations = d.MaxContinuations
	}
	return c
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Spec == "" {
		return ErrInvalidSpec
	}
	return nil
}

func (c *Config) continuations() int {
	return max(c.MaxContinuations, 0)
}
