// Package postcommit runs best-effort side effects after a primary write has
// committed. Each task runs at most once on its own goroutine; failures are
// logged and never reach the request that scheduled them.
package postcommit

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Task is a side effect scheduled after a successful write.
type Task func(ctx context.Context) error

type Runner struct {
	logger  *zap.Logger
	timeout time.Duration
	wg      sync.WaitGroup
	errs    chan<- error
}

// NewRunner returns a Runner that bounds each task by timeout.
func NewRunner(logger *zap.Logger, timeout time.Duration) *Runner {
	return &Runner{logger: logger, timeout: timeout}
}

// WithErrors also forwards task failures to ch (non-blocking). Used by tests
// and by callers that aggregate failures.
func (r *Runner) WithErrors(ch chan<- error) *Runner {
	r.errs = ch
	return r
}

// Go schedules task on a background context so it outlives the request.
func (r *Runner) Go(name string, task Task, fields ...zap.Field) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()

		if err := task(ctx); err != nil {
			r.logger.Warn("post-commit task failed",
				append(fields, zap.String("task", name), zap.Error(err))...)
			if r.errs != nil {
				select {
				case r.errs <- err:
				default:
				}
			}
			return
		}
		r.logger.Debug("post-commit task done", append(fields, zap.String("task", name))...)
	}()
}

// Wait blocks until scheduled tasks finish or ctx expires. Called on shutdown.
func (r *Runner) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
