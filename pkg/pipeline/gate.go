package pipeline

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Gate bounds how many requests execute at once across the whole
// process. Acquire suspends until a slot frees or ctx is done, so a
// request that times out while queued never starts executing.
type Gate struct {
	sem *semaphore.Weighted
}

// NewGate creates a gate with the given slot capacity.
func NewGate(capacity int) *Gate {
	return &Gate{sem: semaphore.NewWeighted(int64(capacity))}
}

// Acquire takes one slot, waiting until one is free. Returns ctx.Err()
// if ctx is done first.
func (g *Gate) Acquire(ctx context.Context) error {
	return g.sem.Acquire(ctx, 1)
}

// Release returns one slot.
func (g *Gate) Release() {
	g.sem.Release(1)
}
