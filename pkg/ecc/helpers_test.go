package ecc

import (
	"context"
	"sync"

	"github.com/graphora-ai/graphora/pkg/ai"
	"github.com/graphora-ai/graphora/pkg/embedstore"
	"github.com/graphora-ai/graphora/pkg/extractor"
)

// chunkerFunc adapts a function to chunker.Chunker.
type chunkerFunc func(text string) ([]string, error)

func (f chunkerFunc) Chunk(text string) ([]string, error) { return f(text) }

// extractorFunc adapts a function to extractor.Extractor.
type extractorFunc func(ctx context.Context, text string) (extractor.Result, error)

func (f extractorFunc) Extract(ctx context.Context, text string) (extractor.Result, error) {
	return f(ctx, text)
}

// fakeAI is a scriptable model client. Unscripted calls succeed with
// empty output.
type fakeAI struct {
	// EmbedFunc scripts GenerateEmbedding per input text.
	EmbedFunc func(text string) ([]float32, error)

	// FormatFunc scripts GenerateCompletionWithFormat; out is the target
	// to fill.
	FormatFunc func(prompt string, out any) error

	mu         sync.Mutex
	embedCalls []string
}

func (f *fakeAI) GenerateCompletion(ctx context.Context, prompt string, opts ...ai.GenerateOption) (string, error) {
	return "", nil
}

func (f *fakeAI) GenerateCompletionWithFormat(ctx context.Context, name, description, prompt string, out any, opts ...ai.GenerateOption) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if f.FormatFunc == nil {
		return nil
	}
	return f.FormatFunc(prompt, out)
}

func (f *fakeAI) GenerateEmbedding(ctx context.Context, input []byte) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.embedCalls = append(f.embedCalls, string(input))
	f.mu.Unlock()
	if f.EmbedFunc == nil {
		return []float32{0.1, 0.2}, nil
	}
	return f.EmbedFunc(string(input))
}

func (f *fakeAI) GenerateEmbeddings(ctx context.Context, inputs [][]byte) ([][]float32, error) {
	out := make([][]float32, len(inputs))
	for i, in := range inputs {
		vec, err := f.GenerateEmbedding(ctx, in)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (f *fakeAI) ResetMetrics()               {}
func (f *fakeAI) GetMetrics() ai.ModelMetrics { return ai.ModelMetrics{} }

func (f *fakeAI) EmbedCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.embedCalls))
	copy(out, f.embedCalls)
	return out
}

// fakeStore is an in-memory embedstore.Store with scriptable search
// results.
type fakeStore struct {
	// Closest scripts TopKClosest by vertex id.
	Closest map[string][]embedstore.Match

	// Similar scripts TopKSimilar.
	Similar []embedstore.Match

	// AllHave is the AllHaveEmbeddings answer.
	AllHave bool

	// UpsertErr, when set, fails every Upsert.
	UpsertErr error

	mu      sync.Mutex
	vectors map[string]map[string][]float32
}

func (s *fakeStore) Upsert(ctx context.Context, vertexType string, embeddings map[string][]float32) error {
	if s.UpsertErr != nil {
		return s.UpsertErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.vectors == nil {
		s.vectors = make(map[string]map[string][]float32)
	}
	byID, ok := s.vectors[vertexType]
	if !ok {
		byID = make(map[string][]float32)
		s.vectors[vertexType] = byID
	}
	for id, vec := range embeddings {
		byID[id] = vec
	}
	return nil
}

func (s *fakeStore) TopKSimilar(ctx context.Context, vertexTypes []string, query []float32, topK int) ([]embedstore.Match, error) {
	matches := s.Similar
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func (s *fakeStore) TopKClosest(ctx context.Context, vertexType, id string, topK int) ([]embedstore.Match, error) {
	matches := s.Closest[id]
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func (s *fakeStore) HasEmbeddings(ctx context.Context, vertexType string, ids []string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byID := s.vectors[vertexType]
	for _, id := range ids {
		if _, ok := byID[id]; !ok {
			return false, nil
		}
	}
	return true, nil
}

func (s *fakeStore) AllHaveEmbeddings(ctx context.Context, vertexType string) (bool, error) {
	return s.AllHave, nil
}

func (s *fakeStore) stored(vertexType, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.vectors[vertexType][id]
	return ok
}
