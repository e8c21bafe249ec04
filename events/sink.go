package events

import (
	"github.com/michaellenahan/amazon-product-widget/logger"
)

// New builds the log sink plus every sink enabled in cfg
func New(log logger.Logger, cfg *Config) (Sink, error) {
	sinks := []Sink{NewLogSink(log)}
	if cfg == nil {
		return Multi(sinks...), nil
	}

	if cfg.Kafka != nil {
		s, err := NewKafkaSink(log, cfg.Kafka)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, s)
	}
	if cfg.ClickHouse != nil {
		s, err := NewClickHouseSink(log, cfg.ClickHouse)
		if err != nil {
			_ = Multi(sinks...).Close()
			return nil, err
		}
		sinks = append(sinks, s)
	}
	return Multi(sinks...), nil
}
