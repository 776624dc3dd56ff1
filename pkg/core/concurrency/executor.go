package concurrency

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	eventalog "github.com/fluxorio/eventa/pkg/log"
)

var (
	// ErrExecutorClosed is returned by Submit after Shutdown
	ErrExecutorClosed = errors.New("executor is closed")

	// ErrExecutorFull is returned by Submit when MaxTasks tasks are running
	ErrExecutorFull = errors.New("executor is at capacity")
)

// ExecutorConfig sizes an Executor
type ExecutorConfig struct {
	MaxTasks int // bound on concurrently running tasks
}

// DefaultExecutorConfig allows 1000 concurrent tasks
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{MaxTasks: 1000}
}

// ExecutorStats is a point-in-time view of an executor
type ExecutorStats struct {
	RunningTasks   int64 // tasks started and not yet returned
	CompletedTasks int64 // tasks that returned (successfully or not)
	RejectedTasks  int64 // tasks refused because MaxTasks were running
	PanickedTasks  int64 // tasks that panicked and were isolated
	MaxTasks       int
}

// Executor runs every accepted task on its own goroutine. Submit never
// blocks: at most MaxTasks run at once and further tasks are rejected, so a
// task that waits on another task can never starve it. A panicking task is
// recovered and counted.
type Executor struct {
	mu       sync.RWMutex
	closed   bool
	group    errgroup.Group
	maxTasks int
	ctx      context.Context
	cancel   context.CancelFunc
	logger   zerolog.Logger

	running   atomic.Int64
	completed atomic.Int64
	rejected  atomic.Int64
	panicked  atomic.Int64
}

// NewExecutor returns an executor whose tasks receive a context derived from
// ctx that ends on Shutdown.
func NewExecutor(ctx context.Context, config ExecutorConfig) *Executor {
	if config.MaxTasks < 1 {
		config.MaxTasks = DefaultExecutorConfig().MaxTasks
	}

	ctx, cancel := context.WithCancel(ctx)
	e := &Executor{
		maxTasks: config.MaxTasks,
		ctx:      ctx,
		cancel:   cancel,
		logger:   eventalog.WithComponent("executor"),
	}
	e.group.SetLimit(config.MaxTasks)
	return e
}

func (e *Executor) run(task Task) {
	defer func() {
		if r := recover(); r != nil {
			e.panicked.Add(1)
			e.logger.Error().Str("task", task.Name()).Interface("panic", r).Msg("task panicked")
		}
	}()
	if err := task.Execute(e.ctx); err != nil {
		e.logger.Error().Str("task", task.Name()).Err(err).Msg("task failed")
	}
}

// Submit starts task without blocking. It returns ErrExecutorFull when
// MaxTasks tasks are running and ErrExecutorClosed after Shutdown.
func (e *Executor) Submit(task Task) error {
	if task == nil {
		return errors.New("task cannot be nil")
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return ErrExecutorClosed
	}
	started := e.group.TryGo(func() error {
		e.running.Add(1)
		defer func() {
			e.running.Add(-1)
			e.completed.Add(1)
		}()
		e.run(task)
		return nil
	})
	if !started {
		e.rejected.Add(1)
		return ErrExecutorFull
	}
	return nil
}

// Shutdown refuses new tasks, cancels the task context and waits for running
// tasks to return, bounded by ctx. Calling it again is a no-op.
func (e *Executor) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	e.cancel()

	done := make(chan struct{})
	go func() {
		_ = e.group.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("executor shutdown: %w", ctx.Err())
	}
}

// Stats returns current counters
func (e *Executor) Stats() ExecutorStats {
	return ExecutorStats{
		RunningTasks:   e.running.Load(),
		CompletedTasks: e.completed.Load(),
		RejectedTasks:  e.rejected.Load(),
		PanickedTasks:  e.panicked.Load(),
		MaxTasks:       e.maxTasks,
	}
}
