package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/michaellenahan/amazon-product-widget/logger"
	"github.com/smallnest/chanx"
	"go.uber.org/zap"
)

const insertColumns = "(event, collection_id, attempted, succeeded, failed, deferred, " +
	"remaining_stale, rate_limited, cancelled, duration_ms, at)"

// insertFunc writes one batch of events
type insertFunc func(ctx context.Context, events []Event) error

type clickHouseSink struct {
	logger        logger.Logger
	insert        insertFunc
	closeConn     func() error
	flushSize     int
	flushInterval time.Duration

	in *chanx.UnboundedChan[Event]

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
	wg     sync.WaitGroup
}

// NewClickHouseSink creates a sink that batch inserts events into cfg.Table
func NewClickHouseSink(log logger.Logger, cfg *ClickHouseConfig) (Sink, error) {
	if cfg == nil {
		cfg = DefaultClickHouseConfig()
	} else {
		cfg = cfg.MergeDefaults()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: cfg.Hosts,
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		DialTimeout: cfg.DialTimeout,
		Debug:       cfg.Debug,
		Settings:    cfg.Settings,
	})
	if err != nil {
		return nil, ErrConnection("clickhouse", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, ErrConnection("clickhouse", err)
	}

	log.Info("clickhouse event sink initialized",
		zap.Strings("hosts", cfg.Hosts),
		zap.String("database", cfg.Database),
		zap.String("table", cfg.Table),
	)

	s := newClickHouseSink(log, batchInserter(conn, cfg.Table), cfg.FlushSize, cfg.FlushInterval)
	s.closeConn = conn.Close
	return s, nil
}

func batchInserter(conn driver.Conn, table string) insertFunc {
	query := fmt.Sprintf("INSERT INTO `%s` %s", table, insertColumns)
	return func(ctx context.Context, events []Event) error {
		batch, err := conn.PrepareBatch(ctx, query)
		if err != nil {
			return ErrInsert(table, err)
		}
		for _, e := range events {
			if err := batch.Append(
				e.Name,
				e.CollectionID,
				uint32(e.Attempted),
				uint32(e.Succeeded),
				uint32(e.Failed),
				uint32(e.Deferred),
				e.RemainingStale,
				e.RateLimited,
				e.Cancelled,
				e.Duration.Milliseconds(),
				e.At,
			); err != nil {
				_ = batch.Abort()
				return ErrInsert(table, err)
			}
		}
		if err := batch.Send(); err != nil {
			return ErrInsert(table, err)
		}
		return nil
	}
}

func newClickHouseSink(log logger.Logger, insert insertFunc, flushSize int, flushInterval time.Duration) *clickHouseSink {
	s := &clickHouseSink{
		logger:        log,
		insert:        insert,
		flushSize:     flushSize,
		flushInterval: flushInterval,
		in:            chanx.NewUnboundedChan[Event](context.Background(), flushSize),
		done:          make(chan struct{}),
	}
	s.wg.Add(1)
	go s.processLoop()
	return s
}

// Emit queues e for the next batch insert
func (s *clickHouseSink) Emit(ctx context.Context, e Event) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrSinkClosed
	}

	select {
	case s.in.In <- e:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close flushes queued events and closes the connection
func (s *clickHouseSink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.done)
	close(s.in.In)
	s.mu.Unlock()

	s.wg.Wait()
	if s.closeConn != nil {
		return s.closeConn()
	}
	return nil
}

func (s *clickHouseSink) processLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	buffer := make([]Event, 0, s.flushSize)
	for {
		select {
		case e, ok := <-s.in.Out:
			if !ok {
				s.flush(buffer)
				return
			}
			buffer = append(buffer, e)
			if len(buffer) >= s.flushSize {
				s.flush(buffer)
				buffer = buffer[:0]
			}

		case <-ticker.C:
			if len(buffer) > 0 {
				s.flush(buffer)
				buffer = buffer[:0]
			}

		case <-s.done:
			// drain what is still queued; Out closes once In is closed and empty
			for e := range s.in.Out {
				buffer = append(buffer, e)
			}
			s.flush(buffer)
			return
		}
	}
}

func (s *clickHouseSink) flush(buffer []Event) {
	if len(buffer) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.flushInterval)
	defer cancel()

	if err := s.insert(ctx, buffer); err != nil {
		s.logger.Error("failed to insert refresh events", zap.Int("events", len(buffer)), zap.Error(err))
		return
	}
	s.logger.Debug("refresh events flushed", zap.Int("events", len(buffer)))
}
