package ecc

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/graphora-ai/graphora/pkg/gdb/gdbtest"
)

// scriptCursor wires a Fake with a graph-resident batch counter for one
// vertex type, ttlBatches wide. Returned ids encode the batch index.
func scriptCursor(f *gdbtest.Fake, ttlBatches int, streamErr *error) {
	current, epoch := 0, 0
	f.QueryFunc = func(name string, params map[string]any) ([]map[string]any, error) {
		switch name {
		case "get_batch_cursor":
			return []map[string]any{{"current_batch": current, "epoch": epoch}}, nil
		case "stream_ids":
			if streamErr != nil && *streamErr != nil {
				return nil, *streamErr
			}
			return []map[string]any{{"@@ids": []any{fmt.Sprintf("doc_%d_%d", epoch, current)}}}, nil
		case "advance_batch_cursor":
			current++
			if current >= ttlBatches {
				current = 0
				epoch++
			}
			return nil, nil
		}
		return nil, nil
	}
}

func TestCursorWrapsAround(t *testing.T) {
	fake := &gdbtest.Fake{}
	scriptCursor(fake, 3, nil)
	cursor := NewCursor(fake, NewGovernor(2, 8), TypeDocument, 3)

	wantIdx := []int{0, 1, 2, 0}
	wantEpoch := []int{0, 0, 0, 1}
	for i := range wantIdx {
		batch, err := cursor.NextBatch(context.Background())
		if err != nil {
			t.Fatalf("NextBatch #%d: %v", i, err)
		}
		if batch.Index != wantIdx[i] {
			t.Errorf("batch #%d index = %d, want %d", i, batch.Index, wantIdx[i])
		}
		if batch.Epoch != wantEpoch[i] {
			t.Errorf("batch #%d epoch = %d, want %d", i, batch.Epoch, wantEpoch[i])
		}
		if len(batch.IDs) != 1 {
			t.Fatalf("batch #%d ids = %v, want one id", i, batch.IDs)
		}
	}
}

func TestCursorDoesNotAdvanceOnFailure(t *testing.T) {
	fake := &gdbtest.Fake{}
	var streamErr error
	scriptCursor(fake, 3, &streamErr)
	cursor := NewCursor(fake, NewGovernor(2, 8), TypeDocument, 3)

	if _, err := cursor.NextBatch(context.Background()); err != nil {
		t.Fatal(err)
	}

	streamErr = errors.New("timeout")
	if _, err := cursor.NextBatch(context.Background()); err == nil {
		t.Fatal("NextBatch succeeded despite stream failure")
	} else if KindOf(err) != KindTransient {
		t.Errorf("stream failure kind = %v, want transient", KindOf(err))
	}

	// failed tick retries the same batch
	streamErr = nil
	batch, err := cursor.NextBatch(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if batch.Index != 1 {
		t.Errorf("retry batch index = %d, want 1", batch.Index)
	}
}

func TestResultInt(t *testing.T) {
	tests := []struct {
		name    string
		res     []map[string]any
		want    int
		wantErr bool
	}{
		{"int", []map[string]any{{"epoch": 3}}, 3, false},
		{"float64 from json", []map[string]any{{"epoch": float64(7)}}, 7, false},
		{"missing", []map[string]any{{"other": 1}}, 0, true},
		{"empty", nil, 0, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := resultInt(tc.res, "epoch")
			if (err != nil) != tc.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tc.wantErr)
			}
			if got != tc.want {
				t.Errorf("got %d, want %d", got, tc.want)
			}
		})
	}
}

func TestResultIDs(t *testing.T) {
	res := []map[string]any{{"@@ids": []any{"a", "b"}}}
	ids, err := resultIDs(res)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
		t.Errorf("ids = %v", ids)
	}

	if _, err := resultIDs(nil); err == nil {
		t.Error("empty result did not error")
	}
}
