// Package workerpool bounds how many CPU-heavy jobs run at once so that
// inference work cannot starve the I/O path.
package workerpool

import (
	"context"
	"runtime"

	"golang.org/x/sync/semaphore"
)

// Pool 限制并发执行的 CPU 密集任务数量
type Pool struct {
	sem  *semaphore.Weighted
	size int
}

// New creates a pool with size slots; size <= 0 means runtime.NumCPU().
func New(size int) *Pool {
	if size <= 0 {
		size = runtime.NumCPU()
	}
	return &Pool{
		sem:  semaphore.NewWeighted(int64(size)),
		size: size,
	}
}

// Size returns the number of slots.
func (p *Pool) Size() int {
	return p.size
}

// Run blocks until a slot is free, then runs fn on the calling goroutine.
// It returns ctx.Err() if the context ends while waiting.
func Run[T any](ctx context.Context, p *Pool, fn func() (T, error)) (T, error) {
	var zero T
	if p == nil {
		return fn()
	}
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return zero, err
	}
	defer p.sem.Release(1)
	return fn()
}
