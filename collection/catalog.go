package collection

import (
	"context"
	"errors"
	"io/fs"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/michaellenahan/amazon-product-widget/logger"
	"github.com/michaellenahan/amazon-product-widget/routine"
	"go.uber.org/zap"
)

// Catalog serves the last loaded collections and reloads them periodically
type Catalog struct {
	logger logger.Logger
	load   LoadFunc

	syncInterval time.Duration
	syncTimeout  time.Duration
	maxRetries   int
	backoff      time.Duration

	mu          sync.RWMutex
	collections []Collection
	byID        map[string]Collection

	cancel context.CancelFunc
	once   sync.Once
}

// New creates a catalog over load
// The returned Catalog must have Start called before use
func New(log logger.Logger, cfg *Config, load LoadFunc) (*Catalog, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	} else {
		cfg = cfg.MergeDefaults()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if load == nil {
		return nil, ErrMissingSource
	}

	return &Catalog{
		logger:       log,
		load:         load,
		syncInterval: cfg.SyncInterval,
		syncTimeout:  cfg.SyncTimeout,
		maxRetries:   cfg.MaxRetries,
		backoff:      time.Second,
		byID:         map[string]Collection{},
	}, nil
}

// Start loads the catalog and starts the periodic reload
// Returns error if the initial load fails
func (c *Catalog) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	if err := c.Sync(ctx); err != nil {
		cancel()
		return err
	}

	routine.GoNamed(c.logger, "collection-sync", func() {
		ticker := time.NewTicker(c.syncInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := c.Sync(ctx); err != nil {
					c.logger.Error("periodic collection sync failed, keeping previous catalog", zap.Error(err))
				}
			case <-ctx.Done():
				c.logger.Info("stopping collection sync")
				return
			}
		}
	})
	return nil
}

// Stop stops the periodic reload
// It can be called multiple times safely
func (c *Catalog) Stop() {
	c.once.Do(func() {
		if c.cancel != nil {
			c.cancel()
		}
	})
}

// Get returns the current collections in file order
// The returned slice must be treated as read-only
func (c *Catalog) Get() []Collection {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.collections
}

// Lookup returns the collection with id
func (c *Catalog) Lookup(id string) (Collection, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	col, ok := c.byID[id]
	return col, ok
}

// Sync reloads the catalog now, retrying transient errors with exponential backoff
func (c *Catalog) Sync(ctx context.Context) error {
	var lastErr error

	for attempt := 0; attempt < c.maxRetries; attempt++ {
		// 1s, 2s, 4s, ...
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * c.backoff
			c.logger.Warn("retrying collection sync after backoff",
				zap.Int("attempt", attempt),
				zap.Duration("backoff", backoff),
			)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ErrSync(ctx.Err())
			}
		}

		loadCtx, cancel := context.WithTimeout(ctx, c.syncTimeout)
		collections, err := c.load(loadCtx)
		cancel()
		if err == nil {
			err = validate(collections)
		}
		if err == nil {
			c.replace(collections)
			c.logger.Debug("collection sync completed",
				zap.Int("collections", len(collections)),
				zap.Int("attempt", attempt+1),
			)
			return nil
		}

		lastErr = err
		if !isRetryableError(err) {
			c.logger.Error("non-retryable collection sync error", zap.Error(err))
			return ErrSync(err)
		}
		c.logger.Warn("collection sync failed, will retry",
			zap.Error(err),
			zap.Int("attempt", attempt+1),
			zap.Int("max_retries", c.maxRetries),
		)
	}
	return ErrSync(lastErr)
}

func (c *Catalog) replace(collections []Collection) {
	byID := make(map[string]Collection, len(collections))
	for _, col := range collections {
		byID[col.ID] = col
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.collections = collections
	c.byID = byID
}

// isRetryableError reports whether err looks transient
// A missing file counts as transient
func isRetryableError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, fs.ErrNotExist) {
		return true
	}

	errStr := err.Error()
	retryableErrors := []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"timeout",
		"temporary failure",
		"network is unreachable",
	}
	for _, retryable := range retryableErrors {
		if strings.Contains(errStr, retryable) {
			return true
		}
	}
	return false
}
