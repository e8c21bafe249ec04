// Package store persists cached product entries and their freshness metadata.
//
// Three backends share the Store contract:
// - badger: embedded local key-value store, the default
// - redis: shared cache server
// - mysql: relational table through gorm
//
// Every mutating call is durable in the backend before it returns, and
// same-key writes are last-write-wins ordered by the caller's timestamp.
// Backend failures are wrapped with product.ErrStoreUnavailable.
package store

import (
	"context"
	"time"

	"github.com/michaellenahan/amazon-product-widget/logger"
	"github.com/michaellenahan/amazon-product-widget/product"
	"github.com/michaellenahan/amazon-product-widget/staleness"
	"go.uber.org/zap"
)

// Store is the record store contract used by the refresh coordinator
type Store interface {
	// Get returns the entry for key, or nil when the key was never stored
	Get(ctx context.Context, key string) (*product.Entry, error)
	// OutdatedKeys returns the sorted keys of stored entries the policy considers outdated
	OutdatedKeys(ctx context.Context, now time.Time) ([]string, error)
	// Put stores a successfully fetched record
	Put(ctx context.Context, key string, record *product.Record, now time.Time) error
	// MarkFailed records a failed attempt, leaving any cached record untouched
	MarkFailed(ctx context.Context, key string, now time.Time) error
	// HasStaleData reports whether OutdatedKeys would be non-empty
	HasStaleData(ctx context.Context, now time.Time) (bool, error)
	// Close releases the backend
	Close() error
}

// New opens the backend selected by cfg.Driver
func New(log logger.Logger, cfg *Config, policy staleness.Policy) (Store, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	} else {
		cfg = cfg.MergeDefaults()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log.Info("opening record store",
		zap.String("driver", cfg.Driver),
		zap.Duration("ttl", policy.TTL),
		zap.Duration("retry_backoff", policy.RetryBackoff),
	)

	switch cfg.Driver {
	case DriverBadger:
		return NewBadger(log, cfg.Badger, policy)
	case DriverRedis:
		return NewRedis(log, cfg.Redis, policy)
	case DriverMySQL:
		return NewMySQL(log, cfg.MySQL, policy)
	default:
		return nil, ErrUnknownDriver(cfg.Driver)
	}
}

// mutation computes the next entry from the stored one
type mutation func(prev *product.Entry) *product.Entry

func putMutation(key string, record *product.Record, now time.Time) mutation {
	return func(*product.Entry) *product.Entry {
		return product.Fetched(key, record, now)
	}
}

func failMutation(key string, now time.Time) mutation {
	return func(prev *product.Entry) *product.Entry {
		return product.Failed(key, prev, now)
	}
}

func checkKey(key string) error {
	if key == "" {
		return product.ErrInvalid("empty key")
	}
	return nil
}
