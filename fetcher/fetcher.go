// Package fetcher adapts the upstream product API to the refresh coordinator.
//
// The Fetcher never throttles by waiting: a call beyond the configured budget
// or key limit fails immediately with product.ErrRateLimited so the caller can
// defer the remaining work. Every other failure is reported per key.
package fetcher

import (
	"context"
	"errors"
	"time"

	"github.com/michaellenahan/amazon-product-widget/logger"
	"github.com/michaellenahan/amazon-product-widget/product"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Client is the upstream product API
// A returned error means the whole call failed; per-key failures belong in the map
type Client interface {
	FetchBatch(ctx context.Context, keys []string, timeout time.Duration) (map[string]product.Result, error)
}

// Fetcher enforces the upstream limits and normalizes results to one per requested key
type Fetcher struct {
	logger  logger.Logger
	client  Client
	limiter *rate.Limiter
	maxKeys int
	timeout time.Duration
}

// New creates a Fetcher over client
func New(log logger.Logger, client Client, cfg *Config) (*Fetcher, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	} else {
		cfg = cfg.MergeDefaults()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if client == nil {
		return nil, ErrInvalidConfig("client is required")
	}

	every := cfg.Window / time.Duration(cfg.CallsPerWindow)
	return &Fetcher{
		logger:  log,
		client:  client,
		limiter: rate.NewLimiter(rate.Every(every), cfg.CallsPerWindow),
		maxKeys: cfg.MaxKeysPerCall,
		timeout: cfg.Timeout,
	}, nil
}

// BatchSize is the largest key set a single Fetch accepts
func (f *Fetcher) BatchSize() int {
	return f.maxKeys
}

// Fetch retrieves keys in one upstream call
// The only error returned is one wrapping product.ErrRateLimited; then nothing was fetched.
// Otherwise the map holds exactly one Result per requested key.
func (f *Fetcher) Fetch(ctx context.Context, keys []string) (map[string]product.Result, error) {
	if len(keys) == 0 {
		return map[string]product.Result{}, nil
	}
	if len(keys) > f.maxKeys {
		return nil, ErrBatchTooLarge(len(keys), f.maxKeys)
	}
	if !f.limiter.Allow() {
		return nil, ErrBudgetExhausted
	}

	callCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	start := time.Now()
	results, err := f.client.FetchBatch(callCtx, keys, f.timeout)
	if err != nil {
		if errors.Is(err, product.ErrRateLimited) {
			f.logger.Warn("upstream rejected batch", zap.Int("keys", len(keys)), zap.Error(err))
			return nil, err
		}
		f.logger.Warn("upstream call failed",
			zap.Int("keys", len(keys)),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		return failAll(keys, product.ErrNetwork, err), nil
	}

	out := make(map[string]product.Result, len(keys))
	for _, key := range keys {
		r, ok := results[key]
		out[key] = normalize(key, r, ok)
	}

	f.logger.Debug("batch fetched",
		zap.Int("keys", len(keys)),
		zap.Int("returned", len(results)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return out, nil
}

func normalize(key string, r product.Result, present bool) product.Result {
	switch {
	case !present:
		return product.Failure(key, product.ErrNotFound, nil)
	case r.Err != nil:
		var fe *product.FetchError
		if errors.As(r.Err, &fe) {
			return r
		}
		return product.Failure(key, product.KindOf(r.Err), r.Err)
	case r.Record == nil:
		return product.Failure(key, product.ErrNotFound, nil)
	default:
		return r
	}
}

func failAll(keys []string, kind, cause error) map[string]product.Result {
	out := make(map[string]product.Result, len(keys))
	for _, key := range keys {
		out[key] = product.Failure(key, kind, cause)
	}
	return out
}
