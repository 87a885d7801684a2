package ecc

import (
	"context"
	"fmt"

	"github.com/graphora-ai/graphora/pkg/gdb"
)

// Batch is one slice of a vertex type's unprocessed set.
type Batch struct {
	IDs   []string
	Index int
	Epoch int
}

// Cursor walks a vertex type's unprocessed set in ttlBatches slices. The
// counter and epoch live on the graph, so restarts and concurrent
// processes resume from the same position. The counter only advances
// after a successful read; a failed tick retries the same batch.
type Cursor struct {
	conn       gdb.Connection
	gov        *Governor
	vertexType string
	ttlBatches int
}

func NewCursor(conn gdb.Connection, gov *Governor, vertexType string, ttlBatches int) *Cursor {
	if ttlBatches <= 0 {
		ttlBatches = 5
	}
	return &Cursor{conn: conn, gov: gov, vertexType: vertexType, ttlBatches: ttlBatches}
}

func (c *Cursor) query(ctx context.Context, name string, params map[string]any) ([]map[string]any, error) {
	if err := c.gov.AcquireGraph(ctx); err != nil {
		return nil, err
	}
	defer c.gov.ReleaseGraph()
	return c.conn.RunInstalledQuery(ctx, name, params)
}

// NextBatch reads the current batch of unprocessed ids and advances the
// graph-resident counter. On wraparound the counter returns to 0 and the
// epoch increments.
func (c *Cursor) NextBatch(ctx context.Context) (Batch, error) {
	state, err := c.query(ctx, "get_batch_cursor", map[string]any{
		"v_type":      c.vertexType,
		"ttl_batches": c.ttlBatches,
	})
	if err != nil {
		return Batch{}, Transient("get_batch_cursor", err)
	}
	current, err := resultInt(state, "current_batch")
	if err != nil {
		return Batch{}, Transient("get_batch_cursor", err)
	}
	epoch, err := resultInt(state, "epoch")
	if err != nil {
		return Batch{}, Transient("get_batch_cursor", err)
	}

	res, err := c.query(ctx, "stream_ids", map[string]any{
		"current_batch": current,
		"ttl_batches":   c.ttlBatches,
		"v_type":        c.vertexType,
	})
	if err != nil {
		return Batch{}, Transient("stream_ids", err)
	}
	ids, err := resultIDs(res)
	if err != nil {
		return Batch{}, Transient("stream_ids", err)
	}

	// advance only after a successful read, so a failed tick retries
	// the same batch
	if _, err := c.query(ctx, "advance_batch_cursor", map[string]any{
		"v_type":      c.vertexType,
		"ttl_batches": c.ttlBatches,
	}); err != nil {
		return Batch{}, Transient("advance_batch_cursor", err)
	}

	return Batch{IDs: ids, Index: current, Epoch: epoch}, nil
}

func resultInt(res []map[string]any, key string) (int, error) {
	if len(res) == 0 {
		return 0, fmt.Errorf("empty result looking for %q", key)
	}
	switch v := res[0][key].(type) {
	case int:
		return v, nil
	case float64:
		return int(v), nil
	default:
		return 0, fmt.Errorf("result field %q missing or not numeric", key)
	}
}

func resultIDs(res []map[string]any) ([]string, error) {
	if len(res) == 0 {
		return nil, fmt.Errorf("empty result looking for @@ids")
	}
	raw, ok := res[0]["@@ids"].([]any)
	if !ok {
		if typed, ok := res[0]["@@ids"].([]string); ok {
			return typed, nil
		}
		return nil, fmt.Errorf("result field @@ids missing")
	}
	ids := make([]string, 0, len(raw))
	for _, r := range raw {
		if s, ok := r.(string); ok {
			ids = append(ids, s)
		}
	}
	return ids, nil
}
