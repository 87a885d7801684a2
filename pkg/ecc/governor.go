package ecc

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Governor bounds in-flight remote work: one semaphore for graph RPCs
// (the backend serializes write-heavy calls, so this stays low), one for
// model calls. A pause gate additionally blocks new dispatch between
// batches; in-flight work always finishes.
type Governor struct {
	graphSem *semaphore.Weighted
	modelSem *semaphore.Weighted

	mu     sync.Mutex
	paused bool
	ready  chan struct{}
}

// NewGovernor creates a governor. Limits default to 2 graph RPCs and 8
// model calls when non-positive.
func NewGovernor(graphLimit, modelLimit int64) *Governor {
	if graphLimit <= 0 {
		graphLimit = 2
	}
	if modelLimit <= 0 {
		modelLimit = 8
	}
	ready := make(chan struct{})
	close(ready)
	return &Governor{
		graphSem: semaphore.NewWeighted(graphLimit),
		modelSem: semaphore.NewWeighted(modelLimit),
		ready:    ready,
	}
}

func (g *Governor) AcquireGraph(ctx context.Context) error { return g.graphSem.Acquire(ctx, 1) }
func (g *Governor) ReleaseGraph()                          { g.graphSem.Release(1) }

func (g *Governor) AcquireModel(ctx context.Context) error { return g.modelSem.Acquire(ctx, 1) }
func (g *Governor) ReleaseModel()                          { g.modelSem.Release(1) }

// Pause blocks future WaitReady calls until Resume. Work already past the
// gate is unaffected.
func (g *Governor) Pause() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.paused {
		return
	}
	g.paused = true
	g.ready = make(chan struct{})
}

// Resume releases everything blocked in WaitReady.
func (g *Governor) Resume() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.paused {
		return
	}
	g.paused = false
	close(g.ready)
}

// Paused reports the gate state.
func (g *Governor) Paused() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.paused
}

// WaitReady blocks while the gate is paused. Workers call it between
// batches, never mid-item.
func (g *Governor) WaitReady(ctx context.Context) error {
	for {
		g.mu.Lock()
		ready := g.ready
		g.mu.Unlock()

		select {
		case <-ready:
			// re-check: a Pause may have swapped the channel after close
			g.mu.Lock()
			paused := g.paused
			g.mu.Unlock()
			if !paused {
				return nil
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
