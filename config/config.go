// Package config loads the widget cache configuration.
//
// The configuration is one YAML document whose sections belong to the
// component packages. ${VAR} references are expanded from the environment
// after an optional .env file next to the configuration has been loaded.
package config

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/michaellenahan/amazon-product-widget/collection"
	"github.com/michaellenahan/amazon-product-widget/cron"
	"github.com/michaellenahan/amazon-product-widget/events"
	"github.com/michaellenahan/amazon-product-widget/fetcher"
	"github.com/michaellenahan/amazon-product-widget/logger"
	"github.com/michaellenahan/amazon-product-widget/refresh"
	"github.com/michaellenahan/amazon-product-widget/staleness"
	"github.com/michaellenahan/amazon-product-widget/store"
	"gopkg.in/yaml.v3"
)

// Config is the application configuration
type Config struct {
	Logger      *logger.Config     `mapstructure:"logger" yaml:"logger"`
	Store       *store.Config      `mapstructure:"store" yaml:"store"`
	Staleness   *staleness.Config  `mapstructure:"staleness" yaml:"staleness"`
	Fetcher     *fetcher.Config    `mapstructure:"fetcher" yaml:"fetcher"`
	Refresh     *refresh.Config    `mapstructure:"refresh" yaml:"refresh"`
	Events      *events.Config     `mapstructure:"events" yaml:"events"`
	Collections *collection.Config `mapstructure:"collections" yaml:"collections"`
	Cron        *cron.Config       `mapstructure:"cron" yaml:"cron"`
}

// Default returns a configuration with every section at its defaults
func Default() *Config {
	return (&Config{}).MergeDefaults()
}

// Load reads the configuration file at path
// A .env file in the same directory is loaded first when present; variables
// already set in the environment win.
func Load(path string) (*Config, error) {
	envFile := filepath.Join(filepath.Dir(path), ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, ErrEnv(envFile, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, ErrRead(path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, ErrParse(path, err)
	}
	return cfg, nil
}

// Parse decodes a YAML document, expands environment references, applies defaults and validates
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}

	cfg.MergeDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// MergeDefaults fills missing sections and empty fields with defaults
func (c *Config) MergeDefaults() *Config {
	if c.Logger == nil {
		c.Logger = logger.DefaultConfig()
	}
	c.Logger.MergeDefaults()
	if c.Store == nil {
		c.Store = store.DefaultConfig()
	}
	c.Store.MergeDefaults()
	if c.Staleness == nil {
		c.Staleness = staleness.DefaultConfig()
	}
	c.Staleness.MergeDefaults()
	if c.Fetcher == nil {
		c.Fetcher = fetcher.DefaultConfig()
	}
	c.Fetcher.MergeDefaults()
	if c.Refresh == nil {
		c.Refresh = refresh.DefaultConfig()
	}
	c.Refresh.MergeDefaults()
	if c.Events == nil {
		c.Events = &events.Config{}
	}
	if c.Collections == nil {
		c.Collections = collection.DefaultConfig()
	}
	c.Collections.MergeDefaults()
	if c.Cron == nil {
		c.Cron = cron.DefaultConfig()
	}
	c.Cron.MergeDefaults()
	return c
}

// Validate validates every section
func (c *Config) Validate() error {
	validators := []interface{ Validate() error }{
		c.Logger,
		c.Store,
		c.Staleness,
		c.Fetcher,
		c.Refresh,
		c.Events,
		c.Collections,
		c.Cron,
	}
	for _, v := range validators {
		if err := v.Validate(); err != nil {
			return ErrInvalid(err)
		}
	}
	return nil
}
