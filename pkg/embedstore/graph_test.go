package embedstore

import (
	"context"
	"testing"

	"github.com/graphora-ai/graphora/pkg/gdb/gdbtest"
)

func TestGraphStoreUpsertWritesEmbeddingAttr(t *testing.T) {
	conn := &gdbtest.Fake{}
	s := NewGraphStore(conn)

	err := s.Upsert(context.Background(), "Entity", map[string][]float32{
		"apple_inc": {0.1, 0.2},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := conn.VertexAttr("Entity", "apple_inc", "embedding"); got == nil {
		t.Fatal("expected embedding attribute to be written")
	}
}

func TestGraphStoreUpsertEmptyIsNoop(t *testing.T) {
	conn := &gdbtest.Fake{}
	s := NewGraphStore(conn)

	if err := s.Upsert(context.Background(), "Entity", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(conn.Upserts()) != 0 {
		t.Fatal("empty upsert should not hit the graph")
	}
}

func TestGraphStoreTopKSimilar(t *testing.T) {
	conn := &gdbtest.Fake{
		QueryFunc: func(name string, params map[string]any) ([]map[string]any, error) {
			if name != "get_topk_similar" {
				t.Fatalf("unexpected query %q", name)
			}
			return []map[string]any{{
				"results": []any{
					map[string]any{"v_id": "a", "v_type": "Entity", "score": 0.7},
					map[string]any{"v_id": "b", "v_type": "Entity", "score": 0.95},
					map[string]any{"v_id": "c", "v_type": "Entity", "score": 0.8},
				},
			}}, nil
		},
	}
	s := NewGraphStore(conn)

	matches, err := s.TopKSimilar(context.Background(), []string{"Entity"}, []float32{1, 0}, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("got %d matches, want 2", len(matches))
	}
	if matches[0].ID != "b" || matches[1].ID != "c" {
		t.Errorf("matches not ordered by score: %+v", matches)
	}
}

func TestGraphStoreAllHaveEmbeddings(t *testing.T) {
	tests := []struct {
		name   string
		result []map[string]any
		want   bool
	}{
		{name: "all present", result: []map[string]any{{"all_have_embedding": true}}, want: true},
		{name: "missing some", result: []map[string]any{{"all_have_embedding": false}}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := &gdbtest.Fake{
				QueryFunc: func(name string, params map[string]any) ([]map[string]any, error) {
					return tt.result, nil
				},
			}
			got, err := NewGraphStore(conn).AllHaveEmbeddings(context.Background(), "Entity")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGraphStoreHasEmbeddings(t *testing.T) {
	present := map[string]bool{"a": true, "b": true}
	conn := &gdbtest.Fake{
		QueryFunc: func(name string, params map[string]any) ([]map[string]any, error) {
			id := params["v_id"].(string)
			if !present[id] {
				return []map[string]any{{"results": []any{}}}, nil
			}
			return []map[string]any{{
				"results": []any{map[string]any{"v_id": id}},
			}}, nil
		},
	}
	s := NewGraphStore(conn)

	ok, err := s.HasEmbeddings(context.Background(), "Entity", []string{"a", "b"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Error("expected all embeddings present")
	}

	ok, err = s.HasEmbeddings(context.Background(), "Entity", []string{"a", "missing"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected missing embedding to be reported")
	}
}
