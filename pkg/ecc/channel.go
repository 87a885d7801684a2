package ecc

import (
	"context"
	"sync"

	"github.com/graphora-ai/graphora/pkg/gdb"
)

// ItemKind tags a queued write.
type ItemKind int

const (
	ItemVertex ItemKind = iota
	ItemEdge
)

// Item is one pending graph write: a vertex or an edge upsert.
type Item struct {
	Kind   ItemKind
	Vertex gdb.Vertex
	Edge   gdb.Edge
}

// VertexItem wraps a vertex write for the queue.
func VertexItem(v gdb.Vertex) Item { return Item{Kind: ItemVertex, Vertex: v} }

// EdgeItem wraps an edge write for the queue.
func EdgeItem(e gdb.Edge) Item { return Item{Kind: ItemEdge, Edge: e} }

// Queue is an unbounded multi-producer multi-consumer FIFO of pending
// writes. Put never blocks; consumers drain with TryGet or block in Get.
// Closing the queue starts the drain toward shutdown.
type Queue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []Item
	closed bool
}

func NewQueue() *Queue {
	q := &Queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Put appends an item. Items put after Close are dropped; a closed queue
// is draining toward shutdown and accepts no new work.
func (q *Queue) Put(item Item) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.items = append(q.items, item)
	q.cond.Signal()
}

// TryGet pops the oldest item without blocking.
func (q *Queue) TryGet() (Item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return Item{}, false
	}
	item := q.items[0]
	q.items = q.items[1:]
	return item, true
}

// Get blocks until an item is available, the queue is closed and empty,
// or the context ends. The second return is false only when no item will
// ever arrive.
func (q *Queue) Get(ctx context.Context) (Item, bool, error) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			q.cond.Broadcast()
		case <-done:
		}
	}()

	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 {
		if q.closed {
			return Item{}, false, nil
		}
		if err := ctx.Err(); err != nil {
			return Item{}, false, err
		}
		q.cond.Wait()
	}
	item := q.items[0]
	q.items = q.items[1:]
	return item, true, nil
}

// Len returns the number of queued items.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close stops accepting new items. Queued items stay drainable.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}
