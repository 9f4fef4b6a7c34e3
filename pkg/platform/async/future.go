// Package async runs a unit of work in the background and hands back a Future.
//
// Timeout and cancellation are explicit: Go derives a context bounded by the
// given timeout, and Cancel aborts the work. Await returns the result, or the
// caller's context error if the caller stops waiting first.
package async

import (
	"context"
	"errors"
	"time"
)

// ErrCancelled is returned by Await when the future was cancelled before completing.
var ErrCancelled = errors.New("task cancelled")

// Future is the pending result of a task started with Go.
type Future[T any] struct {
	done   chan struct{}
	cancel context.CancelFunc
	value  T
	err    error
}

// Go starts fn in a new goroutine. When timeout is positive the task context
// carries that deadline in addition to any deadline on ctx.
func Go[T any](ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (T, error)) *Future[T] {
	var taskCtx context.Context
	var cancel context.CancelFunc
	if timeout > 0 {
		taskCtx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		taskCtx, cancel = context.WithCancel(ctx)
	}

	f := &Future[T]{done: make(chan struct{}), cancel: cancel}
	go func() {
		defer close(f.done)
		defer cancel()
		// a result that arrives after the deadline is still the result
		v, err := fn(taskCtx)
		if errors.Is(err, context.Canceled) && ctx.Err() == nil {
			err = ErrCancelled
		}
		f.value, f.err = v, err
	}()
	return f
}

// Await blocks until the task finishes or ctx is done.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Done is closed once the task has finished.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Cancel aborts the task. Safe to call more than once and after completion.
func (f *Future[T]) Cancel() {
	f.cancel()
}
