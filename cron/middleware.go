package cron

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/michaellenahan/amazon-product-widget/logger"
	"github.com/michaellenahan/amazon-product-widget/routine"
	"go.uber.org/zap"
)

// Middleware wraps a collection task with additional behavior
type Middleware func(Task) Task

// applyMiddlewares applies mws so the first one runs outermost
// applyMiddlewares(task, mw1, mw2) results in mw1(mw2(task))
func applyMiddlewares(t Task, mws ...Middleware) Task {
	for i := len(mws) - 1; i >= 0; i-- {
		t = mws[i](t)
	}
	return t
}

// recoveryMiddleware converts a panicking task into a routine.ErrPanic error
func recoveryMiddleware(log logger.Logger) Middleware {
	return func(next Task) Task {
		return &wrappedTask{
			name: next.Name(),
			exec: func(ctx context.Context) (err error) {
				defer func() {
					if r := recover(); r != nil {
						log.Error("refresh task panicked",
							zap.String("task", next.Name()),
							zap.Any("panic", r),
							zap.String("stack", string(debug.Stack())),
						)
						err = routine.ErrPanic(r)
					}
				}()
				return next.Run(ctx)
			},
		}
	}
}

// loggingMiddleware logs every task with its run state size and duration
func loggingMiddleware(log logger.Logger) Middleware {
	return func(next Task) Task {
		return &wrappedTask{
			name: next.Name(),
			exec: func(ctx context.Context) error {
				start := time.Now()
				log.Debug("refresh task started", zap.String("task", next.Name()))

				err := next.Run(ctx)

				fields := []zap.Field{
					zap.String("task", next.Name()),
					zap.Duration("duration", time.Since(start)),
				}
				if state := RunStateFrom(ctx); state != nil {
					fields = append(fields, zap.Int("processed", state.Len()))
				}
				if err != nil {
					log.Error("refresh task failed", append(fields, zap.Error(err))...)
				} else {
					log.Info("refresh task completed", fields...)
				}
				return err
			},
		}
	}
}

// wrappedTask adapts a function to Task
type wrappedTask struct {
	name string
	exec func(ctx context.Context) error
}

func (w *wrappedTask) Name() string {
	return w.name
}

func (w *wrappedTask) Run(ctx context.Context) error {
	return w.exec(ctx)
}
