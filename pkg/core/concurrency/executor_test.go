package concurrency

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestNewExecutor(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	executor := NewExecutor(context.Background(), DefaultExecutorConfig())
	if executor == nil {
		t.Fatal("NewExecutor() should not return nil")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	if err := executor.Shutdown(shutdownCtx); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
	// second shutdown is a no-op
	if err := executor.Shutdown(shutdownCtx); err != nil {
		t.Errorf("Shutdown() twice error = %v", err)
	}
}

func TestExecutor_Submit(t *testing.T) {
	executor := NewExecutor(context.Background(), ExecutorConfig{MaxTasks: 10})
	defer executor.Shutdown(context.Background())

	if err := executor.Submit(nil); err == nil {
		t.Error("Submit() with nil task should fail")
	}

	done := make(chan struct{})
	task := Named("test-task", func(ctx context.Context) error {
		close(done)
		return nil
	})
	if err := executor.Submit(task); err != nil {
		t.Errorf("Submit() error = %v", err)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task was not executed")
	}
}

func TestExecutor_SubmitAtCapacity(t *testing.T) {
	executor := NewExecutor(context.Background(), ExecutorConfig{MaxTasks: 2})
	defer executor.Shutdown(context.Background())

	release := make(chan struct{})
	started := make(chan struct{}, 2)
	for range 2 {
		err := executor.Submit(Named("blocking", func(ctx context.Context) error {
			started <- struct{}{}
			<-release
			return nil
		}))
		if err != nil {
			t.Fatalf("Submit() under capacity error = %v", err)
		}
	}
	<-started
	<-started

	err := executor.Submit(TaskFunc(func(ctx context.Context) error { return nil }))
	if !errors.Is(err, ErrExecutorFull) {
		t.Errorf("Submit() at capacity error = %v, want ErrExecutorFull", err)
	}
	if got := executor.Stats().RejectedTasks; got != 1 {
		t.Errorf("Stats().RejectedTasks = %d, want 1", got)
	}
	close(release)
}

// A task waiting on a task it submitted itself must not stall the executor.
func TestExecutor_NestedTasksDoNotStarve(t *testing.T) {
	executor := NewExecutor(context.Background(), ExecutorConfig{MaxTasks: 64})
	defer executor.Shutdown(context.Background())

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		err := executor.Submit(Named("outer", func(ctx context.Context) error {
			defer wg.Done()
			inner := make(chan struct{})
			if err := executor.Submit(Named("inner", func(ctx context.Context) error {
				close(inner)
				return nil
			})); err != nil {
				return err
			}
			select {
			case <-inner:
			case <-time.After(time.Second):
				t.Error("inner task did not run while its parent waited")
			}
			return nil
		}))
		if err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
	}
	wg.Wait()
}

func TestExecutor_SubmitAfterShutdown(t *testing.T) {
	executor := NewExecutor(context.Background(), DefaultExecutorConfig())
	executor.Shutdown(context.Background())

	err := executor.Submit(TaskFunc(func(ctx context.Context) error { return nil }))
	if !errors.Is(err, ErrExecutorClosed) {
		t.Errorf("Submit() after Shutdown() error = %v, want ErrExecutorClosed", err)
	}
}

func TestExecutor_SubmitRacesShutdown(t *testing.T) {
	executor := NewExecutor(context.Background(), ExecutorConfig{MaxTasks: 64})

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				_ = executor.Submit(TaskFunc(func(ctx context.Context) error { return nil }))
			}
		}()
	}
	executor.Shutdown(context.Background())
	wg.Wait()
}

func TestExecutor_PanicIsolated(t *testing.T) {
	executor := NewExecutor(context.Background(), ExecutorConfig{MaxTasks: 4})
	defer executor.Shutdown(context.Background())

	executor.Submit(Named("boom", func(ctx context.Context) error {
		panic("boom")
	}))

	done := make(chan struct{})
	executor.Submit(Named("after", func(ctx context.Context) error {
		close(done)
		return nil
	}))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("executor did not survive a panicking task")
	}
	if got := executor.Stats().PanickedTasks; got != 1 {
		t.Errorf("Stats().PanickedTasks = %d, want 1", got)
	}
}

func TestExecutor_ShutdownCancelsRunningTasks(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	executor := NewExecutor(context.Background(), ExecutorConfig{MaxTasks: 4})

	started := make(chan struct{})
	executor.Submit(Named("waits", func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := executor.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
	if got := executor.Stats().CompletedTasks; got != 1 {
		t.Errorf("Stats().CompletedTasks = %d, want 1", got)
	}
}

func TestExecutor_Stats(t *testing.T) {
	executor := NewExecutor(context.Background(), ExecutorConfig{MaxTasks: 10})
	defer executor.Shutdown(context.Background())

	release := make(chan struct{})
	started := make(chan struct{})
	executor.Submit(Named("running", func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	}))
	<-started

	stats := executor.Stats()
	if stats.RunningTasks != 1 {
		t.Errorf("Stats().RunningTasks = %d, want 1", stats.RunningTasks)
	}
	if stats.MaxTasks != 10 {
		t.Errorf("Stats().MaxTasks = %d, want 10", stats.MaxTasks)
	}
	close(release)
}
