// Package gate implements the fair FIFO concurrency limiter that bounds
// how many probes may be in flight at once.
package gate

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Gate runs thunks with at most Limit concurrently in flight; callers
// beyond that bound queue in strict FIFO order, the ordering guarantee
// golang.org/x/sync/semaphore provides for its blocking Acquire calls.
// A Limit of zero or less means unlimited: Run never blocks.
type Gate struct {
	sem     *semaphore.Weighted
	limit   int64
	active  int64
	pending int64
}

// New constructs a Gate capping in-flight work at limit. limit <= 0
// disables the cap entirely.
func New(limit int) *Gate {
	g := &Gate{limit: int64(limit)}
	if limit > 0 {
		g.sem = semaphore.NewWeighted(int64(limit))
	}
	return g
}

// Run executes fn, blocking until a slot is available or ctx is canceled.
// It returns fn's error, or ctx.Err() if the context is canceled while
// waiting for a slot.
func (g *Gate) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	if g.sem == nil {
		return fn(ctx)
	}

	atomic.AddInt64(&g.pending, 1)
	err := g.sem.Acquire(ctx, 1)
	atomic.AddInt64(&g.pending, -1)
	if err != nil {
		return err
	}

	atomic.AddInt64(&g.active, 1)
	defer func() {
		atomic.AddInt64(&g.active, -1)
		g.sem.Release(1)
	}()

	return fn(ctx)
}

// ActiveCount returns the number of thunks currently running.
func (g *Gate) ActiveCount() int {
	return int(atomic.LoadInt64(&g.active))
}

// PendingCount returns the number of callers currently waiting for a slot.
func (g *Gate) PendingCount() int {
	return int(atomic.LoadInt64(&g.pending))
}

// Limit returns the cap passed to New; zero or less means unlimited.
func (g *Gate) Limit() int {
	return int(g.limit)
}
