// Package guard deduplicates collection refreshes within one trigger cycle
// and tells the caller whether another cycle should follow.
package guard

import (
	"context"

	"github.com/michaellenahan/amazon-product-widget/logger"
	"github.com/michaellenahan/amazon-product-widget/product"
	"github.com/michaellenahan/amazon-product-widget/refresh"
	"go.uber.org/zap"
)

// Runner executes refresh runs
// *refresh.Coordinator implements it
type Runner interface {
	Run(ctx context.Context, req refresh.Request) (*refresh.Report, error)
}

// Outcome is the answer to one trigger
type Outcome struct {
	// Skipped is set when the collection was already processed in this cycle
	Skipped bool `json:"skipped"`
	// Report is nil when skipped
	Report *refresh.Report `json:"report,omitempty"`
	// ContinuationRequested asks the caller to start another cycle; this package never loops
	ContinuationRequested bool `json:"continuation_requested"`
}

// Guard triggers refresh runs at most once per collection and cycle
type Guard struct {
	logger   logger.Logger
	runner   Runner
	forceAll bool
}

// Option configures a Guard
type Option func(*Guard)

// WithForceAll makes every triggered run refresh all keys regardless of freshness
func WithForceAll(forceAll bool) Option {
	return func(g *Guard) {
		g.forceAll = forceAll
	}
}

// New creates a Guard delegating to runner
func New(log logger.Logger, runner Runner, opts ...Option) *Guard {
	g := &Guard{logger: log, runner: runner}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Trigger refreshes collectionID unless state shows it was processed already
//
// Invalid input is rejected with product.ErrInvalidInput and leaves state
// unchanged. A run-level error is returned together with the partial outcome.
func (g *Guard) Trigger(ctx context.Context, state *RunState, collectionID string, keys []string) (*Outcome, error) {
	switch {
	case state == nil:
		return nil, product.ErrInvalid("run state is required")
	case collectionID == "":
		return nil, product.ErrInvalid("empty collection id")
	case len(keys) == 0:
		return nil, product.ErrInvalid("empty key set")
	}
	for _, key := range keys {
		if key == "" {
			return nil, product.ErrInvalid("empty key")
		}
	}

	if !state.MarkProcessed(collectionID) {
		g.logger.Debug("collection already refreshed in this cycle", zap.String("collection_id", collectionID))
		return &Outcome{Skipped: true}, nil
	}

	report, err := g.runner.Run(ctx, refresh.Request{
		CollectionID: collectionID,
		Keys:         keys,
		ForceAll:     g.forceAll,
	})
	if report == nil {
		return nil, err
	}

	out := &Outcome{
		Report:                report,
		ContinuationRequested: report.RemainingStale,
	}
	if out.ContinuationRequested {
		g.logger.Info("continuation requested",
			zap.String("collection_id", collectionID),
			zap.Int("deferred", report.Deferred),
		)
	}
	return out, err
}
