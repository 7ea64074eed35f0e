package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Task is a piece of background work started by the service.
type Task[T any] struct {
	ID       string
	Kind     string
	Accepted time.Time

	done   chan struct{}
	result T
	err    error
}

func newTask[T any](kind string) *Task[T] {
	return &Task[T]{ID: uuid.NewString(), Kind: kind, Accepted: time.Now(), done: make(chan struct{})}
}

func (t *Task[T]) Done() <-chan struct{} { return t.done }

// Wait blocks until the task finished or ctx is done. The task keeps
// running when ctx is cancelled.
func (t *Task[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-t.done:
		return t.result, t.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func (t *Task[T]) finish(v T, err error) {
	t.result, t.err = v, err
	close(t.done)
}
