package events

import (
	"context"

	"github.com/michaellenahan/amazon-product-widget/logger"
	"go.uber.org/zap"
)

type logSink struct {
	logger logger.Logger
}

// NewLogSink returns a sink writing every event as a structured info line
func NewLogSink(log logger.Logger) Sink {
	return &logSink{logger: log}
}

// Emit logs e at info level
func (s *logSink) Emit(_ context.Context, e Event) error {
	s.logger.Info(e.Name, fields(e)...)
	return nil
}

// Close is a no-op
func (s *logSink) Close() error {
	return nil
}

func fields(e Event) []zap.Field {
	return []zap.Field{
		zap.String("collection_id", e.CollectionID),
		zap.Int("attempted", e.Attempted),
		zap.Int("succeeded", e.Succeeded),
		zap.Int("failed", e.Failed),
		zap.Int("deferred", e.Deferred),
		zap.Bool("remaining_stale", e.RemainingStale),
		zap.Bool("rate_limited", e.RateLimited),
		zap.Bool("cancelled", e.Cancelled),
		zap.Duration("duration", e.Duration),
	}
}
