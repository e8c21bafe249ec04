package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/michaellenahan/amazon-product-widget/logger"
	"go.uber.org/zap"
)

// producer is the part of *kafka.Producer the sink uses
type producer interface {
	Produce(msg *kafka.Message, deliveryChan chan kafka.Event) error
	Events() chan kafka.Event
	Flush(timeoutMs int) int
	Close()
}

type kafkaSink struct {
	logger       logger.Logger
	p            producer
	topic        string
	flushTimeout time.Duration

	wg        sync.WaitGroup
	done      chan struct{}
	closeOnce sync.Once
}

// NewKafkaSink creates a sink producing JSON events keyed by collection ID
func NewKafkaSink(log logger.Logger, cfg *KafkaConfig) (Sink, error) {
	if cfg == nil {
		cfg = DefaultKafkaConfig()
	} else {
		cfg = cfg.MergeDefaults()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := validateKafkaCluster(log, cfg.Brokers); err != nil {
		return nil, err
	}

	var p *kafka.Producer
	var err error

	maxRetries := 3
	retryDelay := 3 * time.Second
	for i := 0; i < maxRetries; i++ {
		p, err = kafka.NewProducer(cfg.BuildConfigMap())
		if err == nil {
			break
		}

		if i < maxRetries-1 {
			log.Warn("failed to create kafka producer, retrying...",
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("max_retries", maxRetries),
			)
			time.Sleep(retryDelay)
		}
	}
	if err != nil {
		return nil, ErrConnection("kafka", fmt.Errorf("after %d retries: %w", maxRetries, err))
	}

	log.Info("kafka event sink initialized",
		zap.Strings("brokers", cfg.Brokers),
		zap.String("topic", cfg.Topic),
	)
	return newKafkaSink(log, p, cfg.Topic, cfg.FlushTimeout), nil
}

func newKafkaSink(log logger.Logger, p producer, topic string, flushTimeout time.Duration) *kafkaSink {
	s := &kafkaSink{
		logger:       log,
		p:            p,
		topic:        topic,
		flushTimeout: flushTimeout,
		done:         make(chan struct{}),
	}
	s.wg.Add(1)
	go s.handleDeliveryReports()
	return s
}

func (s *kafkaSink) handleDeliveryReports() {
	defer s.wg.Done()

	for {
		select {
		case <-s.done:
			return
		case e := <-s.p.Events():
			switch ev := e.(type) {
			case *kafka.Message:
				if ev.TopicPartition.Error != nil {
					s.logger.Error("failed to deliver event",
						zap.Error(ev.TopicPartition.Error),
						zap.ByteString("key", ev.Key),
					)
				} else {
					s.logger.Debug("event delivered",
						zap.Int32("partition", ev.TopicPartition.Partition),
						zap.Int64("offset", int64(ev.TopicPartition.Offset)),
					)
				}
			case kafka.Error:
				s.logger.Error("kafka producer error",
					zap.Int("code", int(ev.Code())),
					zap.String("error", ev.String()),
				)
			case nil:
				return
			default:
				s.logger.Debug("received unknown event", zap.String("type", fmt.Sprintf("%T", ev)))
			}
		}
	}
}

// Emit produces e asynchronously; delivery failures are logged by the report loop
func (s *kafkaSink) Emit(_ context.Context, e Event) error {
	select {
	case <-s.done:
		return ErrSinkClosed
	default:
	}

	value, err := json.Marshal(e)
	if err != nil {
		return ErrEncode(err)
	}
	msg := &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &s.topic, Partition: kafka.PartitionAny},
		Key:            []byte(e.CollectionID),
		Value:          value,
		Headers:        []kafka.Header{{Key: "event", Value: []byte(e.Name)}},
	}
	if err := s.p.Produce(msg, nil); err != nil {
		return ErrPublish("kafka", err)
	}
	return nil
}

// Close flushes pending messages and closes the producer
func (s *kafkaSink) Close() error {
	s.closeOnce.Do(func() {
		remaining := s.p.Flush(int(s.flushTimeout.Milliseconds()))
		if remaining > 0 {
			s.logger.Warn("events left undelivered at shutdown", zap.Int("remaining", remaining))
		}
		close(s.done)
		s.wg.Wait()
		s.p.Close()
	})
	return nil
}

// validateKafkaCluster checks that the brokers answer a metadata request
func validateKafkaCluster(log logger.Logger, brokers []string) error {
	configMap := &kafka.ConfigMap{
		"bootstrap.servers":  strings.Join(brokers, ","),
		"request.timeout.ms": 10000,
	}

	maxRetries := 3
	retryDelay := 2 * time.Second

	var admin *kafka.AdminClient
	var err error
	for i := 0; i < maxRetries; i++ {
		admin, err = kafka.NewAdminClient(configMap)
		if err == nil {
			break
		}
		if i < maxRetries-1 {
			log.Warn("failed to create kafka admin client, retrying...",
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("max_retries", maxRetries),
			)
			time.Sleep(retryDelay)
		}
	}
	if err != nil {
		return ErrConnection("kafka", err)
	}
	defer admin.Close()

	if _, err := admin.GetMetadata(nil, false, int((10 * time.Second).Milliseconds())); err != nil {
		return ErrConnection("kafka", err)
	}

	log.Info("kafka brokers connection validated", zap.Strings("brokers", brokers))
	return nil
}
