package events

import (
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

// Config selects the sinks events are published to
// The log sink is always enabled; nil sections are disabled
type Config struct {
	Kafka      *KafkaConfig      `mapstructure:"kafka" yaml:"kafka"`
	ClickHouse *ClickHouseConfig `mapstructure:"clickhouse" yaml:"clickhouse"`
}

// Validate validates the enabled sections
func (c *Config) Validate() error {
	if c.Kafka != nil {
		if err := c.Kafka.MergeDefaults().Validate(); err != nil {
			return err
		}
	}
	if c.ClickHouse != nil {
		if err := c.ClickHouse.MergeDefaults().Validate(); err != nil {
			return err
		}
	}
	return nil
}

// KafkaConfig is the configuration for the kafka event sink
type KafkaConfig struct {
	// kafka cluster brokers
	Brokers []string `mapstructure:"brokers" yaml:"brokers"`
	// Topic events are produced to
	// default: "product-refresh-events"
	Topic string `mapstructure:"topic" yaml:"topic"`
	// Optional: kafka client id, shown in broker logs and metrics
	ClientID string `mapstructure:"client_id" yaml:"client_id"`
	// Acks required before a message counts as committed: all, 1 or 0
	// default: "all"
	Acks string `mapstructure:"acks" yaml:"acks"`
	// Compression codec: none, gzip, snappy, lz4, zstd
	// default: "none"
	Compression string `mapstructure:"compression" yaml:"compression"`
	// LingerMs batches messages for up to this many milliseconds
	// default: 5
	LingerMs int `mapstructure:"linger_ms" yaml:"linger_ms"`
	// Security protocol, only PLAINTEXT is supported for now
	// default: "PLAINTEXT"
	SecurityProtocol string `mapstructure:"security_protocol" yaml:"security_protocol"`
	// Max retries of a produce request
	// default: 3
	MaxRetries int `mapstructure:"max_retries" yaml:"max_retries"`
	// FlushTimeout bounds delivery of pending messages on Close
	// default: 10s
	FlushTimeout time.Duration `mapstructure:"flush_timeout" yaml:"flush_timeout"`
}

// DefaultKafkaConfig returns the default kafka sink configuration
func DefaultKafkaConfig() *KafkaConfig {
	return &KafkaConfig{
		Topic:            "product-refresh-events",
		Acks:             "all",
		Compression:      "none",
		LingerMs:         5,
		SecurityProtocol: "PLAINTEXT",
		MaxRetries:       3,
		FlushTimeout:     10 * time.Second,
	}
}

// MergeDefaults fills empty fields with defaults
func (c *KafkaConfig) MergeDefaults() *KafkaConfig {
	d := DefaultKafkaConfig()
	if c.Topic == "" {
		c.Topic = d.Topic
	}
	if c.Acks == "" {
		c.Acks = d.Acks
	}
	if c.Compression == "" {
		c.Compression = d.Compression
	}
	if c.LingerMs == 0 {
		c.LingerMs = d.LingerMs
	}
	if c.SecurityProtocol == "" {
		c.SecurityProtocol = d.SecurityProtocol
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = d.MaxRetries
	}
	if c.FlushTimeout == 0 {
		c.FlushTimeout = d.FlushTimeout
	}
	return c
}

// Validate validates the kafka sink configuration
func (c *KafkaConfig) Validate() error {
	if len(c.Brokers) == 0 {
		return ErrInvalidConfig("kafka.brokers are required")
	}
	if c.Topic == "" {
		return ErrInvalidConfig("kafka.topic is required")
	}
	switch strings.ToLower(c.Acks) {
	case "all", "-1", "0", "1":
	default:
		return ErrInvalidConfig("kafka.acks must be one of all, -1, 0, 1")
	}
	if c.LingerMs < 0 {
		return ErrInvalidConfig("kafka.linger_ms cannot be negative")
	}
	return nil
}

// BuildConfigMap returns the librdkafka producer settings
func (c *KafkaConfig) BuildConfigMap() *kafka.ConfigMap {
	configMap := &kafka.ConfigMap{
		"bootstrap.servers": strings.Join(c.Brokers, ","),
		"compression.type":  strings.ToLower(c.Compression),
		"acks":              strings.ToLower(c.Acks),
		"linger.ms":         c.LingerMs,
		"retries":           c.MaxRetries,
		"security.protocol": c.SecurityProtocol,
	}

	if c.ClientID != "" {
		_ = configMap.SetKey("client.id", c.ClientID)
	}

	return configMap
}

// ClickHouseConfig is the configuration for the clickhouse event sink
type ClickHouseConfig struct {
	// clickhouse connection config
	Hosts       []string      `mapstructure:"hosts" yaml:"hosts"`
	Database    string        `mapstructure:"database" yaml:"database"`
	Username    string        `mapstructure:"username" yaml:"username"`
	Password    string        `mapstructure:"password" yaml:"password"`
	DialTimeout time.Duration `mapstructure:"dial_timeout" yaml:"dial_timeout"`
	Debug       bool          `mapstructure:"debug" yaml:"debug"`
	// clickhouse settings (https://clickhouse.com/docs/operations/settings/settings)
	Settings clickhouse.Settings `mapstructure:"settings" yaml:"settings"`
	// Table events are inserted into
	// default: "product_refresh_events"
	Table string `mapstructure:"table" yaml:"table"`
	// FlushInterval is how often buffered events are inserted
	// default: 10s
	FlushInterval time.Duration `mapstructure:"flush_interval" yaml:"flush_interval"`
	// FlushSize inserts as soon as this many events are buffered
	// default: 500
	FlushSize int `mapstructure:"flush_size" yaml:"flush_size"`
}

// DefaultClickHouseConfig returns the default clickhouse sink configuration
func DefaultClickHouseConfig() *ClickHouseConfig {
	return &ClickHouseConfig{
		Database:      "default",
		DialTimeout:   10 * time.Second,
		Table:         "product_refresh_events",
		FlushInterval: 10 * time.Second,
		FlushSize:     500,
	}
}

// MergeDefaults fills empty fields with defaults
func (c *ClickHouseConfig) MergeDefaults() *ClickHouseConfig {
	d := DefaultClickHouseConfig()
	if c.Database == "" {
		c.Database = d.Database
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = d.DialTimeout
	}
	if c.Table == "" {
		c.Table = d.Table
	}
	if c.FlushInterval == 0 {
		c.FlushInterval = d.FlushInterval
	}
	if c.FlushSize == 0 {
		c.FlushSize = d.FlushSize
	}
	return c
}

// Validate validates the clickhouse sink configuration
func (c *ClickHouseConfig) Validate() error {
	if len(c.Hosts) == 0 {
		return ErrInvalidConfig("clickhouse.hosts are required")
	}
	if c.Username == "" {
		return ErrInvalidConfig("clickhouse.username is required")
	}
	if c.FlushInterval <= 0 {
		return ErrInvalidConfig("clickhouse.flush_interval must be > 0")
	}
	if c.FlushSize <= 0 {
		return ErrInvalidConfig("clickhouse.flush_size must be > 0")
	}
	return nil
}
