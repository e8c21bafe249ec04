package store

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Supported drivers
const (
	DriverBadger = "badger"
	DriverRedis  = "redis"
	DriverMySQL  = "mysql"
)

// Config selects and configures the record store backend
type Config struct {
	// Driver is one of badger, redis, mysql
	// default: "badger"
	Driver string        `mapstructure:"driver" yaml:"driver"`
	Badger *BadgerConfig `mapstructure:"badger" yaml:"badger"`
	Redis  *RedisConfig  `mapstructure:"redis" yaml:"redis"`
	MySQL  *MySQLConfig  `mapstructure:"mysql" yaml:"mysql"`
}

// DefaultConfig returns the default store configuration (badger under ./data/products)
func DefaultConfig() *Config {
	return &Config{
		Driver: DriverBadger,
		Badger: DefaultBadgerConfig(),
	}
}

// MergeDefaults fills empty fields of the selected driver with defaults
func (c *Config) MergeDefaults() *Config {
	if c.Driver == "" {
		c.Driver = DriverBadger
	}
	switch c.Driver {
	case DriverBadger:
		if c.Badger == nil {
			c.Badger = DefaultBadgerConfig()
		}
		c.Badger.MergeDefaults()
	case DriverRedis:
		if c.Redis == nil {
			c.Redis = DefaultRedisConfig()
		}
		c.Redis.MergeDefaults()
	case DriverMySQL:
		if c.MySQL == nil {
			c.MySQL = DefaultMySQLConfig()
		}
		c.MySQL.MergeDefaults()
	}
	return c
}

// Validate validates the configuration of the selected driver
func (c *Config) Validate() error {
	switch c.Driver {
	case DriverBadger:
		if c.Badger == nil {
			return ErrInvalidConfig("badger section is required")
		}
		return c.Badger.Validate()
	case DriverRedis:
		if c.Redis == nil {
			return ErrInvalidConfig("redis section is required")
		}
		return c.Redis.Validate()
	case DriverMySQL:
		if c.MySQL == nil {
			return ErrInvalidConfig("mysql section is required")
		}
		return c.MySQL.Validate()
	default:
		return ErrUnknownDriver(c.Driver)
	}
}

// BadgerConfig configures the embedded badger store
type BadgerConfig struct {
	// Path is the data directory, ignored when InMemory is set
	// default: "./data/products"
	Path string `mapstructure:"path" yaml:"path"`
	// InMemory keeps everything in memory, for tests and dry runs
	InMemory bool `mapstructure:"in_memory" yaml:"in_memory"`
	// SyncWrites fsyncs every write before it returns
	// default: true
	SyncWrites *bool `mapstructure:"sync_writes" yaml:"sync_writes"`
	// GCInterval is how often value log garbage collection runs, 0 disables it
	// default: 10m
	GCInterval *time.Duration `mapstructure:"gc_interval" yaml:"gc_interval"`
}

// DefaultBadgerConfig returns the default badger configuration
func DefaultBadgerConfig() *BadgerConfig {
	sync := true
	gc := 10 * time.Minute
	return &BadgerConfig{
		Path:       "./data/products",
		SyncWrites: &sync,
		GCInterval: &gc,
	}
}

// MergeDefaults fills empty fields with defaults
func (c *BadgerConfig) MergeDefaults() *BadgerConfig {
	defaults := DefaultBadgerConfig()
	if c.Path == "" && !c.InMemory {
		c.Path = defaults.Path
	}
	if c.SyncWrites == nil {
		c.SyncWrites = defaults.SyncWrites
	}
	if c.GCInterval == nil {
		c.GCInterval = defaults.GCInterval
	}
	return c
}

// Validate validates the badger configuration
func (c *BadgerConfig) Validate() error {
	if !c.InMemory && c.Path == "" {
		return ErrInvalidConfig("badger.path is required")
	}
	if c.gcInterval() < 0 {
		return ErrInvalidConfig("badger.gc_interval cannot be negative")
	}
	return nil
}

func (c *BadgerConfig) syncWrites() bool {
	return c.SyncWrites == nil || *c.SyncWrites
}

func (c *BadgerConfig) gcInterval() time.Duration {
	if c.GCInterval == nil {
		return 0
	}
	return *c.GCInterval
}

// RedisConfig configures the redis store
type RedisConfig struct {
	Addr     string `mapstructure:"addr" yaml:"addr"`
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"password"`
	DB       int    `mapstructure:"db" yaml:"db"`
	// default: 10
	PoolSize int `mapstructure:"pool_size" yaml:"pool_size"`
	// default: 5s
	DialTimeout time.Duration `mapstructure:"dial_timeout" yaml:"dial_timeout"`
	// KeyPrefix namespaces every redis key written by the store
	// default: "apw:"
	KeyPrefix string `mapstructure:"key_prefix" yaml:"key_prefix"`
}

// DefaultRedisConfig returns the default redis configuration
func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Addr:        "localhost:6379",
		PoolSize:    10,
		DialTimeout: 5 * time.Second,
		KeyPrefix:   "apw:",
	}
}

// MergeDefaults fills empty fields with defaults
func (c *RedisConfig) MergeDefaults() *RedisConfig {
	defaults := DefaultRedisConfig()
	if c.PoolSize == 0 {
		c.PoolSize = defaults.PoolSize
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = defaults.DialTimeout
	}
	if c.KeyPrefix == "" {
		c.KeyPrefix = defaults.KeyPrefix
	}
	return c
}

// Validate validates the redis configuration
func (c *RedisConfig) Validate() error {
	if c.Addr == "" {
		return ErrInvalidConfig("redis.addr is required")
	}
	if c.DB < 0 {
		return ErrInvalidConfig("redis.db cannot be negative")
	}
	if c.PoolSize < 0 {
		return ErrInvalidConfig("redis.pool_size cannot be negative")
	}
	if c.DialTimeout < 0 {
		return ErrInvalidConfig("redis.dial_timeout cannot be negative")
	}
	return nil
}

// Options converts the configuration into go-redis options
func (c *RedisConfig) Options() *redis.Options {
	return &redis.Options{
		Addr:        c.Addr,
		Username:    c.Username,
		Password:    c.Password,
		DB:          c.DB,
		PoolSize:    c.PoolSize,
		DialTimeout: c.DialTimeout,
	}
}

// MySQLConfig configures the mysql store
type MySQLConfig struct {
	Host string `mapstructure:"host" yaml:"host"`
	// default: 3306
	Port     int    `mapstructure:"port" yaml:"port"`
	User     string `mapstructure:"user" yaml:"user"`
	Password string `mapstructure:"password" yaml:"password"`
	Database string `mapstructure:"database" yaml:"database"`
	// default: 25
	MaxOpenConns int `mapstructure:"max_open_conns" yaml:"max_open_conns"`
	// default: 10
	MaxIdleConns int `mapstructure:"max_idle_conns" yaml:"max_idle_conns"`
	// default: 1800s
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" yaml:"conn_max_lifetime"`
	// default: 600s
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time" yaml:"conn_max_idle_time"`
	// LogLevel is the gorm log level: silent, error, warn, info
	// default: "warn"
	LogLevel string `mapstructure:"log_level" yaml:"log_level"`
	// default: 1s
	SlowThreshold time.Duration `mapstructure:"slow_threshold" yaml:"slow_threshold"`
	// AutoMigrate creates or updates the entries table on open
	AutoMigrate bool `mapstructure:"auto_migrate" yaml:"auto_migrate"`
}

// DefaultMySQLConfig returns the default mysql configuration
func DefaultMySQLConfig() *MySQLConfig {
	return &MySQLConfig{
		Port:            3306,
		MaxOpenConns:    25,
		MaxIdleConns:    10,
		ConnMaxLifetime: 1800 * time.Second,
		ConnMaxIdleTime: 600 * time.Second,
		LogLevel:        "warn",
		SlowThreshold:   time.Second,
	}
}

// DSN returns the go-sql-driver data source name; timestamps are stored in UTC
func (c *MySQLConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		c.User, c.Password, c.Host, c.Port, c.Database,
	)
}

// MergeDefaults fills empty fields with defaults
func (c *MySQLConfig) MergeDefaults() *MySQLConfig {
	defaults := DefaultMySQLConfig()
	if c.Port == 0 {
		c.Port = defaults.Port
	}
	if c.MaxOpenConns == 0 {
		c.MaxOpenConns = defaults.MaxOpenConns
	}
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = defaults.MaxIdleConns
	}
	if c.ConnMaxLifetime == 0 {
		c.ConnMaxLifetime = defaults.ConnMaxLifetime
	}
	if c.ConnMaxIdleTime == 0 {
		c.ConnMaxIdleTime = defaults.ConnMaxIdleTime
	}
	if c.LogLevel == "" {
		c.LogLevel = defaults.LogLevel
	}
	if c.SlowThreshold == 0 {
		c.SlowThreshold = defaults.SlowThreshold
	}
	return c
}

var validGormLogLevels = []string{"silent", "error", "warn", "info"}

// Validate validates the mysql configuration
func (c *MySQLConfig) Validate() error {
	if c.Host == "" {
		return ErrInvalidConfig("mysql.host is required")
	}
	if c.Port <= 0 {
		return ErrInvalidConfig("mysql.port is required")
	}
	if c.User == "" {
		return ErrInvalidConfig("mysql.user is required")
	}
	if c.Database == "" {
		return ErrInvalidConfig("mysql.database is required")
	}
	if !slices.ContainsFunc(validGormLogLevels, func(level string) bool {
		return strings.EqualFold(c.LogLevel, level)
	}) {
		return ErrInvalidConfig(fmt.Sprintf("mysql.log_level %q must be one of: %s",
			c.LogLevel, strings.Join(validGormLogLevels, ", ")))
	}
	return nil
}
