package sdk

import (
	"context"
	"fmt"
	"sync"
)

// Future is a result which will be available later.
//
// A Future completes exactly once, with a value or with an error.
// Failures of tasks run by Supply and Then are carried as *CompletionError.
type Future[T any] struct {
	done  chan struct{}
	once  sync.Once
	value T
	err   error
}

func NewFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

func Completed[T any](value T) *Future[T] {
	f := NewFuture[T]()
	f.Complete(value)
	return f
}

// Failed returns a Future already failed with err, as it is.
func Failed[T any](err error) *Future[T] {
	f := NewFuture[T]()
	f.Fail(err)
	return f
}

// Complete completes f with value. It returns false if f has been completed already.
func (f *Future[T]) Complete(value T) bool {
	completed := false
	f.once.Do(func() {
		f.value = value
		close(f.done)
		completed = true
	})
	return completed
}

// Fail completes f with err. It returns false if f has been completed already.
func (f *Future[T]) Fail(err error) bool {
	completed := false
	f.once.Do(func() {
		f.err = err
		close(f.done)
		completed = true
	})
	return completed
}

// Done is closed when f completes.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Await blocks until f completes or ctx is done.
//
// Errors are returned as they are stored; see UnwrapAndConvert.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	default:
	}
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		return *new(T), ctx.Err()
	}
}

// WhenComplete calls fn with the result after f completes.
func (f *Future[T]) WhenComplete(fn func(T, error)) {
	go func() {
		<-f.done
		fn(f.value, f.err)
	}()
}

// Supply runs fn on executor and returns its result as a Future.
func Supply[T any](ctx context.Context, executor Executor, fn func(context.Context) (T, error)) *Future[T] {
	if executor == nil {
		executor = DefaultExecutor()
	}
	f := NewFuture[T]()
	executor.Execute(func() { run(f, func() (T, error) { return fn(ctx) }) })
	return f
}

// Then maps the value of f with fn, run on executor.
//
// When f fails, the returned Future fails with the same error.
func Then[T any, R any](f *Future[T], executor Executor, fn func(T) (R, error)) *Future[R] {
	if executor == nil {
		executor = DefaultExecutor()
	}
	next := NewFuture[R]()
	f.WhenComplete(func(value T, err error) {
		if err != nil {
			next.Fail(err)
			return
		}
		executor.Execute(func() { run(next, func() (R, error) { return fn(value) }) })
	})
	return next
}

// Compose chains f with a Future-returning fn.
func Compose[T any, R any](f *Future[T], executor Executor, fn func(T) *Future[R]) *Future[R] {
	if executor == nil {
		executor = DefaultExecutor()
	}
	next := NewFuture[R]()
	f.WhenComplete(func(value T, err error) {
		if err != nil {
			next.Fail(err)
			return
		}
		executor.Execute(func() {
			inner := fn(value)
			inner.WhenComplete(func(r R, err error) {
				if err != nil {
					next.Fail(err)
					return
				}
				next.Complete(r)
			})
		})
	})
	return next
}

func run[T any](f *Future[T], fn func() (T, error)) {
	defer func() {
		if r := recover(); r != nil {
			err, ok := r.(error)
			if !ok {
				err = fmt.Errorf("%+v", r)
			}
			f.Fail(&CompletionError{Cause: err})
		}
	}()

	value, err := fn()
	if err != nil {
		if _, ok := err.(*CompletionError); !ok {
			err = &CompletionError{Cause: err}
		}
		f.Fail(err)
		return
	}
	f.Complete(value)
}
