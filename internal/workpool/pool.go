// Package workpool bounds concurrent CPU-bound work with a simple channel
// semaphore. Callers block until a slot frees up or their context ends, so a
// burst of chunk encodes cannot fan out past the configured width.
package workpool

import (
	"context"
	"fmt"
	"runtime"
)

// Pool is a fixed-width semaphore for CPU-bound tasks.
type Pool struct {
	slots chan struct{}
}

// New returns a pool admitting at most size concurrent tasks. A size of zero
// or less falls back to runtime.NumCPU().
func New(size int) *Pool {
	if size <= 0 {
		size = runtime.NumCPU()
	}
	return &Pool{slots: make(chan struct{}, size)}
}

// Size reports the pool width.
func (p *Pool) Size() int { return cap(p.slots) }

// Do runs fn once a slot is available. It returns the context error without
// running fn when ctx ends first.
func (p *Pool) Do(ctx context.Context, fn func() error) error {
	select {
	case p.slots <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("workpool: %w", ctx.Err())
	}
	defer func() { <-p.slots }()
	return fn()
}
