package worker

import (
	"context"
	"sync"
)

// Task tracks one submitted job until it completes.
type Task struct {
	ctx  context.Context
	key  string
	name string
	fn   Job

	once sync.Once
	done chan struct{}
	err  error
}

func newTask(ctx context.Context, key, name string, fn Job) *Task {
	return &Task{
		ctx:  context.WithoutCancel(ctx),
		key:  key,
		name: name,
		fn:   fn,
		done: make(chan struct{}),
	}
}

// Name returns the task name given at submission.
func (t *Task) Name() string { return t.name }

// Key returns the shard key given at submission.
func (t *Task) Key() string { return t.key }

// Done is closed once the task has finished.
func (t *Task) Done() <-chan struct{} { return t.done }

// Err returns the task's error. It is nil until Done is closed.
func (t *Task) Err() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}

// Wait blocks until the task finishes or ctx is done.
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Task) finish(err error) {
	t.once.Do(func() {
		t.err = err
		close(t.done)
	})
}
