// Package routine provides safe goroutine execution with panic recovery.
//
// It prevents direct use of `go func()` from crashing the entire application
// when a panic occurs, by wrapping goroutine execution with recovery logic.
// Limited bounds how many of those goroutines run at once.
package routine

import (
	"context"
	"runtime/debug"
	"sync"

	"github.com/michaellenahan/amazon-product-widget/logger"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Runner provides safe goroutine execution with panic recovery
type Runner interface {
	// Go executes a function in a new goroutine with panic recovery
	Go(fn func())

	// GoNamed executes a named function in a new goroutine with panic recovery
	// The name is used for logging purposes
	GoNamed(name string, fn func())

	// Wait waits for all goroutines started by this runner to complete
	Wait()
}

// defaultRunner implements Runner interface
type defaultRunner struct {
	log logger.Logger
	wg  sync.WaitGroup
}

// New creates a new Runner with the given logger
func New(log logger.Logger) Runner {
	return &defaultRunner{
		log: log,
	}
}

// Go runs fn in a new tracked goroutine with panic recovery
func (r *defaultRunner) Go(fn func()) {
	r.GoNamed("", fn)
}

// GoNamed runs fn in a new tracked goroutine; a panic is logged with name
func (r *defaultRunner) GoNamed(name string, fn func()) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer recoverWithLog(r.log, name)
		fn()
	}()
}

// Wait blocks until every goroutine started by r has returned
func (r *defaultRunner) Wait() {
	r.wg.Wait()
}

// Limited runs named functions with at most a fixed number in flight
type Limited struct {
	runner Runner
	sem    *semaphore.Weighted
	limit  int
}

// NewLimited creates a Limited runner allowing limit concurrent goroutines
// A limit below 1 is treated as 1
func NewLimited(log logger.Logger, limit int) *Limited {
	if limit < 1 {
		limit = 1
	}
	return &Limited{
		runner: New(log),
		sem:    semaphore.NewWeighted(int64(limit)),
		limit:  limit,
	}
}

// Limit returns the maximum number of goroutines in flight
func (l *Limited) Limit() int {
	return l.limit
}

// GoNamed waits for a free slot and starts fn in a new goroutine
// It returns ErrNotStarted without running fn when ctx is done before a slot frees up
func (l *Limited) GoNamed(ctx context.Context, name string, fn func()) error {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return ErrNotStarted(name, err)
	}
	l.runner.GoNamed(name, func() {
		defer l.sem.Release(1)
		fn()
	})
	return nil
}

// Wait waits for all started goroutines to complete
func (l *Limited) Wait() {
	l.runner.Wait()
}

// GoNamed is a convenience function that executes a named function
// in a new goroutine with panic recovery
func GoNamed(log logger.Logger, name string, fn func()) {
	go func() {
		defer recoverWithLog(log, name)
		fn()
	}()
}

// recoverWithLog handles panic recovery and logging
func recoverWithLog(log logger.Logger, name string) {
	if rec := recover(); rec != nil {
		fields := []zap.Field{
			zap.Any("panic", rec),
			zap.String("stack", string(debug.Stack())),
		}
		if name != "" {
			fields = append([]zap.Field{zap.String("routine", name)}, fields...)
		}
		log.Error("goroutine panicked", fields...)
	}
}
