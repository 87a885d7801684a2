package ecc

import (
	"context"
	"testing"
	"time"

	"github.com/graphora-ai/graphora/pkg/gdb"
)

func vitem(id string) Item {
	return VertexItem(gdb.Vertex{Type: TypeEntity, ID: id})
}

func TestQueueFIFO(t *testing.T) {
	q := NewQueue()
	for _, id := range []string{"a", "b", "c"} {
		q.Put(vitem(id))
	}

	for _, want := range []string{"a", "b", "c"} {
		item, ok := q.TryGet()
		if !ok {
			t.Fatalf("queue empty, want %q", want)
		}
		if item.Vertex.ID != want {
			t.Errorf("got %q, want %q", item.Vertex.ID, want)
		}
	}
	if _, ok := q.TryGet(); ok {
		t.Error("TryGet succeeded on empty queue")
	}
}

func TestQueueGetBlocksUntilPut(t *testing.T) {
	q := NewQueue()
	got := make(chan Item, 1)
	go func() {
		item, ok, err := q.Get(context.Background())
		if err != nil || !ok {
			t.Errorf("Get() = %v, %v", ok, err)
			return
		}
		got <- item
	}()

	time.Sleep(20 * time.Millisecond)
	q.Put(vitem("x"))

	select {
	case item := <-got:
		if item.Vertex.ID != "x" {
			t.Errorf("got %q, want x", item.Vertex.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("Get did not observe the Put")
	}
}

func TestQueueClosedDropsNewItems(t *testing.T) {
	q := NewQueue()
	q.Put(vitem("before"))
	q.Close()
	q.Put(vitem("after"))

	if q.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", q.Len())
	}
	item, ok := q.TryGet()
	if !ok || item.Vertex.ID != "before" {
		t.Errorf("queued item lost across Close")
	}

	// closed and empty: Get reports no item will ever arrive
	_, ok, err := q.Get(context.Background())
	if ok || err != nil {
		t.Errorf("Get() on closed empty queue = %v, %v", ok, err)
	}
}

func TestQueueGetHonorsContext(t *testing.T) {
	q := NewQueue()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, ok, err := q.Get(ctx)
	if ok {
		t.Error("Get returned an item from an empty queue")
	}
	if err == nil {
		t.Error("Get returned nil error on expired context")
	}
}
