package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrStopped is returned when submitting to a stopped executor.
var ErrStopped = errors.New("task executor stopped")

// ErrQueueFull is returned when the task queue is at capacity.
var ErrQueueFull = errors.New("task queue full")

// defaultQueueSize bounds the number of pending mutations.
const defaultQueueSize = 64

// Executor runs tasks one at a time on a single worker goroutine.
type Executor struct {
	queue  chan *Task
	logger *slog.Logger

	mu      sync.Mutex
	stopped bool
	wg      sync.WaitGroup
}

// NewExecutor creates and starts the executor.
func NewExecutor(logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Executor{
		queue:  make(chan *Task, defaultQueueSize),
		logger: logger.With(slog.String("component", "task_executor")),
	}
	e.wg.Add(1)
	go e.worker()
	return e
}

func (e *Executor) worker() {
	defer e.wg.Done()
	for t := range e.queue {
		start := time.Now()
		e.logger.Debug("task started",
			slog.String("task_id", t.ID.String()),
			slog.String("task_name", t.Name))

		t.Status = StatusProcessing
		err := e.runOne(t)
		if err != nil {
			t.Status = StatusFailed
		} else {
			t.Status = StatusCompleted
		}
		t.done <- err

		if err != nil {
			e.logger.Error("task failed",
				slog.String("task_id", t.ID.String()),
				slog.String("task_name", t.Name),
				slog.Duration("elapsed", time.Since(start)),
				slog.Any("error", err))
		} else {
			e.logger.Debug("task completed",
				slog.String("task_id", t.ID.String()),
				slog.String("task_name", t.Name),
				slog.Duration("elapsed", time.Since(start)))
		}
	}
}

// runOne executes a task, converting a panic into an error so one bad
// mutation cannot take the worker down.
func (e *Executor) runOne(t *Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task %s panicked: %v", t.Name, r)
		}
	}()
	return t.fn(context.Background())
}

// Submit enqueues a task. It returns ErrQueueFull rather than
// blocking the caller when the queue is saturated.
func (e *Executor) Submit(t *Task) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return ErrStopped
	}
	select {
	case e.queue <- t:
		return nil
	default:
		return ErrQueueFull
	}
}

// Run submits a mutation and waits for it to finish.
func (e *Executor) Run(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	t := New(name, fn)
	if err := e.Submit(t); err != nil {
		return err
	}
	return t.Wait(ctx)
}

// Stop drains the queue and waits for the worker to exit. Tasks
// submitted after Stop fail with ErrStopped.
func (e *Executor) Stop(ctx context.Context) error {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return nil
	}
	e.stopped = true
	close(e.queue)
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("task executor did not drain before shutdown deadline: %w", ctx.Err())
	}
}
