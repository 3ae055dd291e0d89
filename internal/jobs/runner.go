// Package jobs runs fire-and-forget background tasks.
package jobs

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"go.uber.org/zap"
)

// Task is a unit of background work. It must return when ctx is done.
type Task func(ctx context.Context) error

// Runner owns the context of every task it starts and waits for them on shutdown.
type Runner struct {
	logger *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

func NewRunner(logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Go starts task in its own goroutine. Panics are recovered and logged.
// It returns an error once the runner is shutting down.
func (r *Runner) Go(name string, task Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return fmt.Errorf("runner is shut down, %s not started", name)
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		log := r.logger.With(zap.String("task", name))

		defer func() {
			if rec := recover(); rec != nil {
				log.Error("background task panicked",
					zap.Any("panic", rec),
					zap.ByteString("stack", debug.Stack()),
				)
			}
		}()

		log.Debug("background task started")
		if err := task(r.ctx); err != nil {
			log.Warn("background task failed", zap.Error(err))
			return
		}
		log.Debug("background task finished")
	}()

	return nil
}

// Wait blocks until every started task returned.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Shutdown cancels the tasks and waits for them until ctx expires.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	r.cancel()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for background tasks: %w", ctx.Err())
	}
}
