package async

import (
	"context"
	"errors"
	"time"
)

// Future represents the eventual result of a computation started with Async.
type Future[T any] struct {
	value T
	err   error
	done  chan struct{}
}

// Async runs fn in its own goroutine and returns a Future for its result.
// If ctx is already cancelled the future completes immediately with ctx.Err()
// without invoking fn.
func Async[P any, T any](ctx context.Context, param P, fn func(context.Context, P) (T, error)) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}

	go func() {
		defer close(f.done)

		select {
		case <-ctx.Done():
			f.err = ctx.Err()
			return
		default:
		}

		f.value, f.err = fn(ctx, param)
	}()

	return f
}

// Await blocks until the computation finishes and returns its result.
func (f *Future[T]) Await() (T, error) {
	<-f.done
	return f.value, f.err
}

// AwaitWithTimeout blocks until the computation finishes or the timeout
// elapses, in which case it returns ErrTimeout.
func (f *Future[T]) AwaitWithTimeout(timeout time.Duration) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-time.After(timeout):
		var zero T
		return zero, ErrTimeout
	}
}

// IsComplete reports whether the computation has finished, without blocking.
func (f *Future[T]) IsComplete() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// WaitAll awaits every future in order and returns their results. The first
// error encountered is returned alongside the results gathered so far.
func WaitAll[T any](futures ...*Future[T]) ([]T, error) {
	results := make([]T, len(futures))

	for i, f := range futures {
		value, err := f.Await()
		results[i] = value
		if err != nil {
			return results, err
		}
	}

	return results, nil
}

// CollectAll awaits every future and returns all results together with every
// failure joined via errors.Join. Unlike WaitAll it never stops early, so the
// returned slice always has one entry per future.
func CollectAll[T any](futures ...*Future[T]) ([]T, error) {
	results := make([]T, len(futures))
	var errs []error

	for i, f := range futures {
		value, err := f.Await()
		results[i] = value
		if err != nil {
			errs = append(errs, err)
		}
	}

	return results, errors.Join(errs...)
}
