// Package task serializes scheduler mutations. Every write operation
// (answering, burying, rebuilding a filtered deck, undo) runs as a
// task on a single worker, so at most one mutation is in flight and
// the scheduler never sees interleaved writes.
package task

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Status represents the current state of a task.
type Status string

// Possible task status values.
const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Task is one serialized mutation.
type Task struct {
	// ID is the task's unique identifier, carried into logs.
	ID uuid.UUID

	// Name describes the mutation, e.g. "answer_card".
	Name string

	// EnqueuedAt is when the task entered the queue.
	EnqueuedAt time.Time

	// Status is maintained by the executor; read it only after Wait
	// returns.
	Status Status

	fn   func(ctx context.Context) error
	done chan error
}

// New wraps a mutation into a task.
func New(name string, fn func(ctx context.Context) error) *Task {
	return &Task{
		ID:         uuid.New(),
		Name:       name,
		EnqueuedAt: time.Now(),
		Status:     StatusPending,
		fn:         fn,
		done:       make(chan error, 1),
	}
}

// Wait blocks until the task finishes or the context is done. A task
// abandoned by its waiter still runs to completion on the worker.
func (t *Task) Wait(ctx context.Context) error {
	select {
	case err := <-t.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
