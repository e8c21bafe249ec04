// Package cron schedules refresh cycles with robfig/cron.
//
// Every tick is one trigger cycle: it gets a fresh guard.RunState, triggers
// each catalog collection in order, and starts another cycle right away when
// a collection asked for continuation, up to a configured limit. Ticks never
// overlap, so a run state is never shared between cycles.
package cron

import (
	"context"

	"github.com/michaellenahan/amazon-product-widget/collection"
	"github.com/michaellenahan/amazon-product-widget/guard"
	"github.com/michaellenahan/amazon-product-widget/logger"
)

// Task is one step of a cycle
type Task interface {
	// Name returns the identifier used in logs
	Name() string
	// Run executes the task; the context carries the cycle's RunState
	Run(ctx context.Context) error
}

// Trigger refreshes one collection within a cycle
// *guard.Guard implements it
type Trigger interface {
	Trigger(ctx context.Context, state *guard.RunState, collectionID string, keys []string) (*guard.Outcome, error)
}

// Source lists the collections to refresh on every tick
// *collection.Catalog implements it
type Source interface {
	Get() []collection.Collection
}

// Scheduler runs refresh cycles on cron specs
type Scheduler interface {
	// Start begins the cron scheduler
	Start()
	// Close stops the scheduler, cancels running cycles and waits for them to return
	Close()
	// AddRefresh refreshes every collection of source on spec
	// The spec follows the cron format with seconds (6 fields)
	AddRefresh(name, spec string, source Source, trigger Trigger) error
}

// New creates a scheduler with the given logger and middlewares
// Middlewares are applied to every collection task in the order given,
// after the built-in recovery and logging middlewares
func New(log logger.Logger, cfg *Config, mws ...Middleware) (Scheduler, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	} else {
		cfg = cfg.MergeDefaults()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	defaultMws := []Middleware{
		recoveryMiddleware(log),
		loggingMiddleware(log),
	}
	return newScheduler(log, cfg, append(defaultMws, mws...)...), nil
}

type runStateKey struct{}

// WithRunState returns a context carrying state
func WithRunState(ctx context.Context, state *guard.RunState) context.Context {
	return context.WithValue(ctx, runStateKey{}, state)
}

// RunStateFrom returns the cycle's RunState, or nil outside a cycle
func RunStateFrom(ctx context.Context) *guard.RunState {
	state, _ := ctx.Value(runStateKey{}).(*guard.RunState)
	return state
}
