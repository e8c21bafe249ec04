package cron

import (
	"context"
	"fmt"
	"sync"

	"github.com/michaellenahan/amazon-product-widget/guard"
	"github.com/michaellenahan/amazon-product-widget/logger"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// refreshJob is one scheduled refresh; every Run is one tick
type refreshJob struct {
	name          string
	source        Source
	trigger       Trigger
	middlewares   []Middleware
	continuations int
	logger        logger.Logger
	ctx           context.Context
}

// Run executes a tick: the first cycle plus any requested continuations
func (j *refreshJob) Run() {
	for cycle := 0; cycle <= j.continuations; cycle++ {
		if j.ctx.Err() != nil {
			return
		}
		continuation, err := j.runCycle(cycle)
		if err != nil {
			j.logger.Error("refresh cycle aborted due to task failure",
				zap.String("job", j.name),
				zap.Int("cycle", cycle),
				zap.Error(err),
			)
			return
		}
		if !continuation {
			return
		}
		if cycle == j.continuations {
			j.logger.Warn("continuation limit reached, stale data left for the next tick",
				zap.String("job", j.name),
				zap.Int("max_continuations", j.continuations),
			)
		}
	}
}

// runCycle triggers every collection once with a fresh run state
// It stops at the first failing collection, like a task chain
func (j *refreshJob) runCycle(cycle int) (bool, error) {
	state := guard.NewRunState()
	ctx := WithRunState(j.ctx, state)
	collections := j.source.Get()

	j.logger.Info("refresh cycle started",
		zap.String("job", j.name),
		zap.Int("cycle", cycle),
		zap.Int("collections", len(collections)),
	)

	continuation := false
	for _, col := range collections {
		task := &wrappedTask{
			name: fmt.Sprintf("%s:%s", j.name, col.ID),
			exec: func(ctx context.Context) error {
				out, err := j.trigger.Trigger(ctx, RunStateFrom(ctx), col.ID, col.Keys)
				if out != nil && out.ContinuationRequested {
					continuation = true
				}
				return err
			},
		}
		if err := applyMiddlewares(task, j.middlewares...).Run(ctx); err != nil {
			return false, err
		}
	}

	j.logger.Info("refresh cycle completed",
		zap.String("job", j.name),
		zap.Int("cycle", cycle),
		zap.Int("processed", state.Len()),
		zap.Bool("continuation", continuation),
	)
	return continuation, nil
}

// scheduler is the default implementation of the Scheduler interface
type scheduler struct {
	cron          *cron.Cron
	wrap          cron.JobWrapper
	middlewares   []Middleware
	continuations int
	logger        logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

func newScheduler(log logger.Logger, cfg *Config, mws ...Middleware) *scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	cl := cronLogger{logger: log}
	return &scheduler{
		cron:          cron.New(cron.WithSeconds(), cron.WithLogger(cl)),
		wrap:          cron.SkipIfStillRunning(cl),
		middlewares:   mws,
		continuations: cfg.continuations(),
		logger:        log,
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Start begins the cron scheduler
func (s *scheduler) Start() {
	s.cron.Start()
}

// Close stops the cron scheduler, cancels running cycles and waits for them
func (s *scheduler) Close() {
	s.once.Do(func() {
		ctx := s.cron.Stop()
		s.cancel()
		<-ctx.Done()
	})
}

// AddRefresh adds a refresh job; overlapping ticks of the job are skipped
func (s *scheduler) AddRefresh(name, spec string, source Source, trigger Trigger) error {
	if source == nil || trigger == nil {
		return ErrMissingDependency
	}

	job := s.newJob(name, source, trigger)
	if _, err := s.cron.AddJob(spec, s.wrap(job)); err != nil {
		return ErrAddJob(name, spec, err)
	}

	s.logger.Info("refresh job added",
		zap.String("job", name),
		zap.String("spec", spec),
		zap.Int("max_continuations", s.continuations),
	)
	return nil
}

func (s *scheduler) newJob(name string, source Source, trigger Trigger) *refreshJob {
	return &refreshJob{
		name:          name,
		source:        source,
		trigger:       trigger,
		middlewares:   s.middlewares,
		continuations: s.continuations,
		logger:        s.logger,
		ctx:           s.ctx,
	}
}
