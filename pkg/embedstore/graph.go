package embedstore

import (
	"context"
	"fmt"
	"sort"

	"github.com/graphora-ai/graphora/pkg/gdb"
)

// GraphStore keeps embeddings on the graph itself, as a vector attribute
// on each vertex, and searches them with installed vector queries.
// Requires a graph version with native vector support.
type GraphStore struct {
	conn gdb.Connection
}

func NewGraphStore(conn gdb.Connection) *GraphStore {
	return &GraphStore{conn: conn}
}

func (s *GraphStore) Upsert(ctx context.Context, vertexType string, embeddings map[string][]float32) error {
	if len(embeddings) == 0 {
		return nil
	}
	payload := &gdb.UpsertPayload{}
	for id, vec := range embeddings {
		payload.AddVertex(gdb.Vertex{
			Type:  vertexType,
			ID:    id,
			Attrs: gdb.Attrs{"embedding": {Value: vec}},
		})
	}
	return s.conn.UpsertData(ctx, payload)
}

func (s *GraphStore) TopKSimilar(ctx context.Context, vertexTypes []string, query []float32, topK int) ([]Match, error) {
	res, err := s.conn.RunInstalledQuery(ctx, "get_topk_similar", map[string]any{
		"vertex_types": vertexTypes,
		"query_vector": query,
		// over-fetch so duplicates across types still leave topK results
		"top_k": topK * 2,
	})
	if err != nil {
		return nil, fmt.Errorf("get_topk_similar: %w", err)
	}

	matches := make([]Match, 0, topK)
	for _, r := range res {
		results, ok := r["results"].([]any)
		if !ok {
			continue
		}
		for _, raw := range results {
			v, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			m := Match{}
			if id, ok := v["v_id"].(string); ok {
				m.ID = id
			}
			if typ, ok := v["v_type"].(string); ok {
				m.Type = typ
			}
			if score, ok := v["score"].(float64); ok {
				m.Score = score
			}
			matches = append(matches, m)
		}
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func (s *GraphStore) TopKClosest(ctx context.Context, vertexType, id string, topK int) ([]Match, error) {
	res, err := s.conn.RunInstalledQuery(ctx, "get_topk_closest", map[string]any{
		"v_type": vertexType,
		"v_id":   id,
		"top_k":  topK,
	})
	if err != nil {
		return nil, fmt.Errorf("get_topk_closest: %w", err)
	}

	matches := make([]Match, 0, topK)
	for _, r := range res {
		results, ok := r["results"].([]any)
		if !ok {
			continue
		}
		for _, raw := range results {
			v, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			m := Match{}
			if vid, ok := v["v_id"].(string); ok {
				m.ID = vid
			}
			if typ, ok := v["v_type"].(string); ok {
				m.Type = typ
			}
			if score, ok := v["score"].(float64); ok {
				m.Score = score
			}
			if m.ID == id {
				continue
			}
			matches = append(matches, m)
		}
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func (s *GraphStore) HasEmbeddings(ctx context.Context, vertexType string, ids []string) (bool, error) {
	for _, id := range ids {
		res, err := s.conn.RunInstalledQuery(ctx, "check_embedding_exists", map[string]any{
			"v_type": vertexType,
			"v_id":   id,
		})
		if err != nil {
			return false, fmt.Errorf("check_embedding_exists: %w", err)
		}
		if !embeddingExists(res, id) {
			return false, nil
		}
	}
	return true, nil
}

func embeddingExists(res []map[string]any, id string) bool {
	if len(res) == 0 {
		return false
	}
	results, ok := res[0]["results"].([]any)
	if !ok {
		return false
	}
	for _, raw := range results {
		if v, ok := raw.(map[string]any); ok {
			if vid, ok := v["v_id"].(string); ok && vid == id {
				return true
			}
		}
	}
	return false
}

func (s *GraphStore) AllHaveEmbeddings(ctx context.Context, vertexType string) (bool, error) {
	res, err := s.conn.RunInstalledQuery(ctx, "vertices_have_embedding", map[string]any{
		"v_type": vertexType,
	})
	if err != nil {
		return false, fmt.Errorf("vertices_have_embedding: %w", err)
	}
	if len(res) == 0 {
		return false, fmt.Errorf("vertices_have_embedding: empty result")
	}
	all, ok := res[0]["all_have_embedding"].(bool)
	if !ok {
		return false, fmt.Errorf("vertices_have_embedding: missing all_have_embedding flag")
	}
	return all, nil
}
