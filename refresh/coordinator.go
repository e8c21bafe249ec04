// Package refresh runs refresh cycles: it selects the outdated keys of a
// collection, fetches them in bounded batches and writes the outcome of every
// key back to the store.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"slices"
	"sync"
	"time"

	"github.com/michaellenahan/amazon-product-widget/events"
	"github.com/michaellenahan/amazon-product-widget/logger"
	"github.com/michaellenahan/amazon-product-widget/product"
	"github.com/michaellenahan/amazon-product-widget/routine"
	"github.com/michaellenahan/amazon-product-widget/staleness"
	"github.com/michaellenahan/amazon-product-widget/store"
	"go.uber.org/zap"
)

// Fetcher retrieves batches of product records
// *fetcher.Fetcher implements it
type Fetcher interface {
	// Fetch returns one Result per key, or an error wrapping product.ErrRateLimited
	Fetch(ctx context.Context, keys []string) (map[string]product.Result, error)
	// BatchSize is the largest key set Fetch accepts
	BatchSize() int
}

// Request is one refresh run over a collection's keys
type Request struct {
	// CollectionID is reported on the emitted event; it may be empty
	CollectionID string
	Keys         []string
	// ForceAll refreshes every key regardless of freshness
	ForceAll bool
}

// Option configures a Coordinator
type Option func(*Coordinator)

// WithClock overrides the time source used for staleness and write timestamps
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		c.now = now
	}
}

// Coordinator runs refresh cycles
type Coordinator struct {
	logger      logger.Logger
	store       store.Store
	fetcher     Fetcher
	policy      staleness.Policy
	sink        events.Sink
	concurrency int
	now         func() time.Time
}

// New creates a Coordinator
// sink may be nil to drop events
func New(log logger.Logger, st store.Store, f Fetcher, policy staleness.Policy, sink events.Sink, cfg *Config, opts ...Option) (*Coordinator, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	} else {
		cfg = cfg.MergeDefaults()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	if st == nil || f == nil {
		return nil, ErrInvalidConfig("store and fetcher are required")
	}
	if f.BatchSize() < 1 {
		return nil, ErrInvalidConfig("fetcher batch size must be >= 1")
	}
	if sink == nil {
		sink = events.Nop()
	}

	c := &Coordinator{
		logger:      log,
		store:       st,
		fetcher:     f,
		policy:      policy,
		sink:        sink,
		concurrency: cfg.Concurrency,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// RunOnce refreshes the outdated keys among keys, or all of them when forceAll is set
func (c *Coordinator) RunOnce(ctx context.Context, keys []string, forceAll bool) (*Report, error) {
	return c.Run(ctx, Request{Keys: keys, ForceAll: forceAll})
}

// Run executes one refresh run
//
// Invalid input is rejected with product.ErrInvalidInput before the store is
// touched. A rate limit stops the run early and is reported, not returned. A
// store failure stops the run and is returned, wrapping
// product.ErrStoreUnavailable, together with the partial report. On
// cancellation batches already in flight complete and are written.
func (c *Coordinator) Run(ctx context.Context, req Request) (*Report, error) {
	keys, err := uniqueKeys(req.Keys)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	report := &Report{}
	// writes of in-flight batches must land even after ctx is cancelled
	storeCtx := context.WithoutCancel(ctx)

	if ctx.Err() != nil {
		report.Cancelled = true
	} else {
		candidates, err := c.candidates(storeCtx, keys, req.ForceAll)
		if err != nil {
			report.Duration = time.Since(start)
			return report, ErrRun(err)
		}
		if len(candidates) == 0 {
			report.Duration = time.Since(start)
			c.finish(storeCtx, req.CollectionID, report)
			return report, nil
		}
		if err := c.runBatches(ctx, storeCtx, candidates, report); err != nil {
			report.Duration = time.Since(start)
			c.logger.Error("refresh run aborted",
				zap.String("collection_id", req.CollectionID),
				zap.Int("attempted", report.Attempted),
				zap.Error(err),
			)
			return report, ErrRun(err)
		}
	}

	stale, err := c.store.HasStaleData(storeCtx, c.now())
	if err != nil {
		report.Duration = time.Since(start)
		return report, ErrRun(err)
	}
	// deferred keys may never have been stored, so the store alone cannot report them
	report.RemainingStale = stale || report.Deferred > 0
	report.Duration = time.Since(start)
	c.finish(storeCtx, req.CollectionID, report)
	return report, nil
}

func (c *Coordinator) finish(ctx context.Context, collectionID string, report *Report) {
	c.logger.Info("updated product data",
		zap.String("collection_id", collectionID),
		zap.Int("count", report.Succeeded),
		zap.Int("failed", report.Failed),
		zap.Int("deferred", report.Deferred),
		zap.Bool("rate_limited", report.RateLimited),
		zap.Bool("cancelled", report.Cancelled),
		zap.Bool("remaining_stale", report.RemainingStale),
		zap.Duration("duration", report.Duration),
	)
	if err := c.sink.Emit(ctx, report.Event(collectionID, c.now())); err != nil {
		c.logger.Warn("failed to emit refresh event", zap.String("collection_id", collectionID), zap.Error(err))
	}
}

// candidates returns the sorted keys to refresh
func (c *Coordinator) candidates(ctx context.Context, keys []string, forceAll bool) ([]string, error) {
	if forceAll {
		return keys, nil
	}

	now := c.now()
	out := make([]string, 0, len(keys))
	for _, key := range keys {
		entry, err := c.store.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if c.policy.Outdated(entry, now) {
			out = append(out, key)
		}
	}
	return out, nil
}

// runBatches fetches candidates in batches with bounded concurrency
// It returns the first store error; the report is updated in place
func (c *Coordinator) runBatches(ctx, storeCtx context.Context, candidates []string, report *Report) error {
	batches := partition(candidates, c.fetcher.BatchSize())
	runner := routine.NewLimited(c.logger, c.concurrency)

	var (
		mu       sync.Mutex
		stopped  bool
		storeErr error
		started  = make([]bool, len(batches))
	)
	stop := func() bool {
		mu.Lock()
		defer mu.Unlock()
		return stopped
	}

	for i, batch := range batches {
		if ctx.Err() != nil || stop() {
			break
		}

		err := runner.GoNamed(ctx, fmt.Sprintf("refresh-batch-%d", i+1), func() {
			// the previous batch may have stopped the run while this one waited for a slot
			if ctx.Err() != nil || stop() {
				return
			}
			mu.Lock()
			started[i] = true
			mu.Unlock()

			out := c.runBatch(storeCtx, batch)

			mu.Lock()
			defer mu.Unlock()
			report.add(out)
			if out.rateLimited || out.err != nil {
				stopped = true
			}
			if out.err != nil && storeErr == nil {
				storeErr = out.err
			}
		})
		if err != nil {
			break
		}
	}
	runner.Wait()

	for i, batch := range batches {
		if !started[i] {
			report.Deferred += len(batch)
		}
	}
	report.Cancelled = ctx.Err() != nil && slices.Contains(started, false)
	return storeErr
}

// runBatch fetches one batch and records the outcome of every key
// A panic defers the keys the batch had not yet written
func (c *Coordinator) runBatch(ctx context.Context, keys []string) (out batchOutcome) {
	out.attempted = len(keys)
	defer func() {
		if r := recover(); r != nil {
			out.rateLimited = false
			out.deferred = len(keys) - out.succeeded - out.failed
			c.logger.Error("refresh batch panicked, deferring unwritten keys",
				zap.Int("keys", len(keys)),
				zap.Int("deferred", out.deferred),
				zap.Error(routine.ErrPanic(r)),
				zap.String("stack", string(debug.Stack())),
			)
		}
	}()

	results, err := c.fetcher.Fetch(ctx, keys)
	switch {
	case errors.Is(err, product.ErrRateLimited):
		c.logger.Warn("batch rate limited, deferring remaining work",
			zap.Int("keys", len(keys)),
			zap.Error(err),
		)
		out.rateLimited = true
		out.deferred = len(keys)
		return out
	case err != nil:
		// any other batch error fails every key of the batch
		c.logger.Warn("batch fetch failed", zap.Int("keys", len(keys)), zap.Error(err))
		results = nil
	}

	now := c.now()
	for _, key := range keys {
		r := results[key]
		if r.OK() {
			if err := c.store.Put(ctx, key, r.Record, now); err != nil {
				out.err = err
				return out
			}
			out.succeeded++
			continue
		}

		if err := c.store.MarkFailed(ctx, key, now); err != nil {
			out.err = err
			return out
		}
		out.failed++
		c.logger.Debug("product refresh failed", zap.String("key", key), zap.Error(r.Err))
	}
	return out
}

// uniqueKeys validates keys and returns them sorted without duplicates
func uniqueKeys(keys []string) ([]string, error) {
	if len(keys) == 0 {
		return nil, product.ErrInvalid("empty key set")
	}
	out := make([]string, 0, len(keys))
	for _, key := range keys {
		if key == "" {
			return nil, product.ErrInvalid("empty key")
		}
		out = append(out, key)
	}
	slices.Sort(out)
	return slices.Compact(out), nil
}

// partition splits keys into consecutive batches of at most size keys
func partition(keys []string, size int) [][]string {
	batches := make([][]string, 0, (len(keys)+size-1)/size)
	for start := 0; start < len(keys); start += size {
		end := min(start+size, len(keys))
		batches = append(batches, keys[start:end])
	}
	return batches
}
