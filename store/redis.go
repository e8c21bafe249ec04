package store

import (
	"context"
	"errors"
	"time"

	"github.com/michaellenahan/amazon-product-widget/logger"
	"github.com/michaellenahan/amazon-product-widget/product"
	"github.com/michaellenahan/amazon-product-widget/staleness"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// redisScanChunk bounds the number of keys fetched per MGET
const redisScanChunk = 500

// redisStore keeps one JSON value per product key plus a set indexing all keys
// Durability follows the server's persistence settings (appendfsync)
type redisStore struct {
	logger logger.Logger
	policy staleness.Policy
	client *redis.Client
	prefix string
}

// NewRedis connects to redis and verifies the connection with a PING
func NewRedis(log logger.Logger, cfg *RedisConfig, policy staleness.Policy) (Store, error) {
	if cfg == nil {
		cfg = DefaultRedisConfig()
	} else {
		cfg = cfg.MergeDefaults()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client := redis.NewClient(cfg.Options())

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, ErrConnection(err)
	}

	log.Info("redis store connected",
		zap.String("addr", cfg.Addr),
		zap.Int("db", cfg.DB),
		zap.String("key_prefix", cfg.KeyPrefix),
	)

	return &redisStore{
		logger: log,
		policy: policy,
		client: client,
		prefix: cfg.KeyPrefix,
	}, nil
}

func (s *redisStore) entryKey(key string) string {
	return s.prefix + "entry:" + key
}

func (s *redisStore) indexKey() string {
	return s.prefix + "keys"
}

// Get returns the stored entry for key, or nil when the key was never stored
func (s *redisStore) Get(ctx context.Context, key string) (*product.Entry, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}
	entry, err := readRedisEntry(ctx, s.client, s.entryKey(key))
	if err != nil {
		return nil, product.ErrStore("get", err)
	}
	return entry, nil
}

func (s *redisStore) OutdatedKeys(ctx context.Context, now time.Time) ([]string, error) {
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

func (s *redisStore) HasStaleData(ctx context.Context, now time.Time) (bool, error) {
	stale := false
	err := s.scan(ctx, func(e *product.Entry) bool {
		stale = s.policy.Outdated(e, now)
		return !stale
	})
	return stale, err
}

// Put stores a fetched record unless a newer attempt was already written
func (s *redisStore) Put(ctx context.Context, key string, record *product.Record, now time.Time) error {
	if err := checkKey(key); err != nil {
		return err
	}
	if record == nil {
		return product.ErrInvalid("nil record")
	}
	return s.update(ctx, key, now, putMutation(key, record, now))
}

// MarkFailed records a failed attempt and keeps the last good record
func (s *redisStore) MarkFailed(ctx context.Context, key string, now time.Time) error {
	if err := checkKey(key); err != nil {
		return err
	}
	return s.update(ctx, key, now, failMutation(key, now))
}

func (s *redisStore) Close() error {
	if err := s.client.Close(); err != nil {
		return product.ErrStore("close", err)
	}
	return nil
}

// update applies m under WATCH so concurrent writers of the same key retry
func (s *redisStore) update(ctx context.Context, key string, now time.Time, m mutation) error {
	entryKey := s.entryKey(key)

	txf := func(tx *redis.Tx) error {
		prev, err := readRedisEntry(ctx, tx, entryKey)
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
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, entryKey, data, 0)
			pipe.SAdd(ctx, s.indexKey(), key)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxTxnRetries; attempt++ {
		err := s.client.Watch(ctx, txf, entryKey)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return product.ErrStore("update", err)
		}
		return nil
	}
	return product.ErrStore("update", ErrTxnConflict)
}

// scan calls fn for every indexed entry until fn returns false
func (s *redisStore) scan(ctx context.Context, fn func(*product.Entry) bool) error {
	keys, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return product.ErrStore("scan", err)
	}

	for start := 0; start < len(keys); start += redisScanChunk {
		end := min(start+redisScanChunk, len(keys))
		entryKeys := make([]string, 0, end-start)
		for _, key := range keys[start:end] {
			entryKeys = append(entryKeys, s.entryKey(key))
		}

		values, err := s.client.MGet(ctx, entryKeys...).Result()
		if err != nil {
			return product.ErrStore("scan", err)
		}
		for _, v := range values {
			raw, ok := v.(string)
			if !ok {
				// indexed but deleted out of band
				continue
			}
			entry, err := decodeEntry([]byte(raw))
			if err != nil {
				return product.ErrStore("scan", err)
			}
			if !fn(entry) {
				return nil
			}
		}
	}
	return nil
}

// stringGetter is satisfied by both *redis.Client and *redis.Tx
type stringGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func readRedisEntry(ctx context.Context, c stringGetter, entryKey string) (*product.Entry, error) {
	data, err := c.Get(ctx, entryKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeEntry(data)
}
