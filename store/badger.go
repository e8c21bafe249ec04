package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/michaellenahan/amazon-product-widget/logger"
	"github.com/michaellenahan/amazon-product-widget/product"
	"github.com/michaellenahan/amazon-product-widget/routine"
	"github.com/michaellenahan/amazon-product-widget/staleness"
	"go.uber.org/zap"
)

const (
	badgerEntryPrefix = "entry/"
	maxTxnRetries     = 64
)

type badgerStore struct {
	logger logger.Logger
	policy staleness.Policy
	db     *badger.DB

	runner routine.Runner
	done   chan struct{}
	once   sync.Once
}

// NewBadger opens an embedded badger store
func NewBadger(log logger.Logger, cfg *BadgerConfig, policy staleness.Policy) (Store, error) {
	if cfg == nil {
		cfg = DefaultBadgerConfig()
	} else {
		cfg = cfg.MergeDefaults()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts := badger.DefaultOptions(cfg.Path).
		WithSyncWrites(cfg.syncWrites()).
		WithLogger(&badgerLogger{logger: log})
	if cfg.InMemory {
		opts = opts.WithDir("").WithValueDir("").WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, ErrConnection(err)
	}

	s := &badgerStore{
		logger: log,
		policy: policy,
		db:     db,
		runner: routine.New(log),
		done:   make(chan struct{}),
	}

	if interval := cfg.gcInterval(); interval > 0 && !cfg.InMemory {
		s.runner.GoNamed("badger-gc", func() { s.gcLoop(interval) })
	}

	log.Info("badger store opened",
		zap.String("path", cfg.Path),
		zap.Bool("in_memory", cfg.InMemory),
		zap.Bool("sync_writes", cfg.syncWrites()),
		zap.Duration("gc_interval", cfg.gcInterval()),
	)
	return s, nil
}

func badgerKey(key string) []byte {
	return []byte(badgerEntryPrefix + key)
}

// Get returns the stored entry for key, or nil when the key was never stored
func (s *badgerStore) Get(ctx context.Context, key string) (*product.Entry, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, product.ErrStore("get", err)
	}

	var entry *product.Entry
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		entry, err = readBadgerEntry(txn, key)
		return err
	})
	if err != nil {
		return nil, product.ErrStore("get", err)
	}
	return entry, nil
}

// OutdatedKeys scans every entry and returns the sorted outdated keys
func (s *badgerStore) OutdatedKeys(ctx context.Context, now time.Time) ([]string, error) {
	var entries []*product.Entry
	err := s.scan(ctx, func(e *product.Entry) bool {
		entries = append(entries, e)
		return true
	})
	if err != nil {
		return nil, err
	}
	return s.policy.Filter(entries, now), nil
}

// HasStaleData stops the scan at the first outdated entry
func (s *badgerStore) HasStaleData(ctx context.Context, now time.Time) (bool, error) {
	stale := false
	err := s.scan(ctx, func(e *product.Entry) bool {
		stale = s.policy.Outdated(e, now)
		return !stale
	})
	return stale, err
}

// Put stores a fetched record unless a newer attempt was already written
func (s *badgerStore) Put(ctx context.Context, key string, record *product.Record, now time.Time) error {
	if err := checkKey(key); err != nil {
		return err
	}
	if record == nil {
		return product.ErrInvalid("nil record")
	}
	return s.update(ctx, key, now, putMutation(key, record, now))
}

// MarkFailed records a failed attempt and keeps the last good record
func (s *badgerStore) MarkFailed(ctx context.Context, key string, now time.Time) error {
	if err := checkKey(key); err != nil {
		return err
	}
	return s.update(ctx, key, now, failMutation(key, now))
}

// Close stops the GC loop and closes the database
func (s *badgerStore) Close() error {
	s.once.Do(func() { close(s.done) })
	s.runner.Wait()
	if err := s.db.Close(); err != nil {
		return product.ErrStore("close", err)
	}
	return nil
}

// update applies m to key inside one read-write transaction, retrying on conflicts
func (s *badgerStore) update(ctx context.Context, key string, now time.Time, m mutation) error {
	if err := ctx.Err(); err != nil {
		return product.ErrStore("update", err)
	}

	for attempt := 0; attempt < maxTxnRetries; attempt++ {
		err := s.db.Update(func(txn *badger.Txn) error {
			prev, err := readBadgerEntry(txn, key)
			if err != nil {
				return err
			}
			if !product.Supersedes(prev, now) {
				s.logger.Debug("dropping out of order write",
					zap.String("key", key),
					zap.Time("now", now),
					zap.Time("last_attempt_at", prev.LastAttemptAt),
				)
				return nil
			}
			data, err := encodeEntry(m(prev))
			if err != nil {
				return err
			}
			return txn.Set(badgerKey(key), data)
		})
		if errors.Is(err, badger.ErrConflict) {
			continue
		}
		if err != nil {
			return product.ErrStore("update", err)
		}
		return nil
	}
	return product.ErrStore("update", ErrTxnConflict)
}

// scan calls fn for every stored entry until fn returns false
func (s *badgerStore) scan(ctx context.Context, fn func(*product.Entry) bool) error {
	if err := ctx.Err(); err != nil {
		return product.ErrStore("scan", err)
	}

	prefix := []byte(badgerEntryPrefix)
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var entry *product.Entry
			err := it.Item().Value(func(val []byte) error {
				var err error
				entry, err = decodeEntry(val)
				return err
			})
			if err != nil {
				return err
			}
			if !fn(entry) {
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return product.ErrStore("scan", err)
	}
	return nil
}

func (s *badgerStore) gcLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			// one rewrite per tick at most; ErrNoRewrite means nothing to reclaim
			if err := s.db.RunValueLogGC(0.5); err != nil && !errors.Is(err, badger.ErrNoRewrite) {
				s.logger.Warn("badger value log gc failed", zap.Error(err))
			}
		case <-s.done:
			return
		}
	}
}

func readBadgerEntry(txn *badger.Txn, key string) (*product.Entry, error) {
	item, err := txn.Get(badgerKey(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var entry *product.Entry
	err = item.Value(func(val []byte) error {
		entry, err = decodeEntry(val)
		return err
	})
	return entry, err
}

// badgerLogger routes badger's printf-style logging into zap
type badgerLogger struct {
	logger logger.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(badgerMessage(format, args...), zap.String("component", "badger"))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(badgerMessage(format, args...), zap.String("component", "badger"))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(badgerMessage(format, args...), zap.String("component", "badger"))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(badgerMessage(format, args...), zap.String("component", "badger"))
}

func badgerMessage(format string, args ...interface{}) string {
	return strings.TrimSpace(fmt.Sprintf(format, args...))
}
