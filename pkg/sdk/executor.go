package sdk

import (
	"context"
	"runtime"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Executor runs tasks, possibly in background.
type Executor interface {
	Execute(task func())
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(task func())

func (f ExecutorFunc) Execute(task func()) {
	f(task)
}

// DirectExecutor runs tasks in the calling goroutine.
var DirectExecutor Executor = ExecutorFunc(func(task func()) { task() })

// PoolExecutor runs tasks in goroutines, at most `parallelism` at once.
//
// Execute never blocks; tasks beyond the limit wait for a slot in their own goroutine.
type PoolExecutor struct {
	sem *semaphore.Weighted
}

func NewPoolExecutor(parallelism int64) *PoolExecutor {
	if parallelism < 1 {
		parallelism = 1
	}
	return &PoolExecutor{sem: semaphore.NewWeighted(parallelism)}
}

func (p *PoolExecutor) Execute(task func()) {
	go func() {
		if err := p.sem.Acquire(context.Background(), 1); err != nil {
			return
		}
		defer p.sem.Release(1)
		task()
	}()
}

var defaultExecutor = sync.OnceValue(func() Executor {
	return NewPoolExecutor(int64(max(16, 4*runtime.GOMAXPROCS(0))))
})

// DefaultExecutor is the process-wide pool used when no Executor is given.
func DefaultExecutor() Executor {
	return defaultExecutor()
}
