// Package embedstore stores and searches vertex embeddings. Graphs at
// version 4.2 or later keep embeddings natively on vertices; older
// graphs fall back to an external pgvector store.
package embedstore

import (
	"context"
)

// Match is one similarity search hit.
type Match struct {
	ID    string
	Type  string
	Score float64
}

// Store is the embedding capability the pipeline depends on.
type Store interface {
	// Upsert writes embeddings for vertices of one type, keyed by vertex id.
	Upsert(ctx context.Context, vertexType string, embeddings map[string][]float32) error

	// TopKSimilar returns the topK vertices most similar to query across
	// the given vertex types, best first.
	TopKSimilar(ctx context.Context, vertexTypes []string, query []float32, topK int) ([]Match, error)

	// TopKClosest returns the topK vertices closest to an already-stored
	// vertex's embedding, excluding the vertex itself, best first.
	TopKClosest(ctx context.Context, vertexType, id string, topK int) ([]Match, error)

	// HasEmbeddings reports whether every listed vertex has an embedding.
	HasEmbeddings(ctx context.Context, vertexType string, ids []string) (bool, error)

	// AllHaveEmbeddings reports whether every vertex of the type has an
	// embedding. Used as a convergence predicate.
	AllHaveEmbeddings(ctx context.Context, vertexType string) (bool, error)
}
