package ecc

import (
	"context"
	"time"

	"github.com/graphora-ai/graphora/pkg/gdb"
	"github.com/graphora-ai/graphora/pkg/logger"
)

// Flusher is the queue's single consumer: it drains up to batchSize
// items, groups them by type into one upsert payload, and issues a
// single write. A failed flush is logged and dropped, never re-queued;
// idempotent upserts make the retry on the next natural pass safe.
type Flusher struct {
	queue     *Queue
	conn      gdb.Connection
	gov       *Governor
	batchSize int
}

func NewFlusher(queue *Queue, conn gdb.Connection, gov *Governor, batchSize int) *Flusher {
	if batchSize <= 0 {
		batchSize = 500
	}
	return &Flusher{queue: queue, conn: conn, gov: gov, batchSize: batchSize}
}

// Flush drains one batch and writes it. Returns the number of items
// drained.
func (f *Flusher) Flush(ctx context.Context) (int, error) {
	return f.flush(ctx, nil)
}

func (f *Flusher) flush(ctx context.Context, head *Item) (int, error) {
	payload := &gdb.UpsertPayload{}
	n := 0
	if head != nil {
		addItem(payload, *head)
		n++
	}
	for n < f.batchSize {
		item, ok := f.queue.TryGet()
		if !ok {
			break
		}
		addItem(payload, item)
		n++
	}
	if payload.Empty() {
		return 0, nil
	}

	if err := f.gov.AcquireGraph(ctx); err != nil {
		return n, err
	}
	defer f.gov.ReleaseGraph()

	if err := f.conn.UpsertData(ctx, payload); err != nil {
		logger.Error("flush failed, batch dropped", "graph", f.conn.GraphName(), "items", n, "error", err)
		return n, Transient("flush", err)
	}
	logger.Debug("flushed write batch", "graph", f.conn.GraphName(), "items", n)
	return n, nil
}

func addItem(payload *gdb.UpsertPayload, item Item) {
	switch item.Kind {
	case ItemVertex:
		payload.AddVertex(item.Vertex)
	case ItemEdge:
		payload.AddEdge(item.Edge)
	}
}

// Run blocks for the first pending write, lets a batch accumulate
// behind it for one interval, then writes. When the context ends the
// held item and whatever is still queued are drained, so shutdown never
// strands writes.
func (f *Flusher) Run(ctx context.Context, interval time.Duration) {
	for {
		head, ok, err := f.queue.Get(ctx)
		if err != nil {
			f.Drain()
			return
		}
		if !ok {
			// closed and empty: nothing will ever arrive
			return
		}

		select {
		case <-time.After(interval):
		case <-ctx.Done():
		}

		fctx := ctx
		if ctx.Err() != nil {
			// the held item is already off the queue; write it out even
			// though the loop context ended
			fctx = context.Background()
		}
		if _, err := f.flush(fctx, &head); err != nil && ctx.Err() == nil {
			logger.Warn("periodic flush error", "error", err)
		}
		if ctx.Err() != nil {
			f.Drain()
			return
		}
	}
}

// Drain flushes until the queue is empty, outside the cancelled loop
// context.
func (f *Flusher) Drain() {
	ctx := context.Background()
	for f.queue.Len() > 0 {
		n, err := f.Flush(ctx)
		if err != nil {
			logger.Error("drain flush failed", "error", err)
			return
		}
		if n == 0 {
			return
		}
	}
}
