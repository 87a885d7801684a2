// Package pgvector is the external embedding store for graphs without
// native vector support. Embeddings live in a Postgres table with the
// pgvector extension, keyed by graph, vertex type and vertex id.
package pgvector

import (
	"context"
	"fmt"

	"github.com/graphora-ai/graphora/pkg/embedstore"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvec "github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
)

// VertexCounter reports how many vertices of a type exist on the graph.
// The store needs it to answer AllHaveEmbeddings, since Postgres only
// knows about vertices that were embedded.
type VertexCounter func(ctx context.Context, vertexType string) (int, error)

// Store implements embedstore.Store on a Postgres pool.
type Store struct {
	pool      *pgxpool.Pool
	graphName string
	count     VertexCounter
}

// NewPool opens a pgx pool with pgvector types registered on every
// connection.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}
	return pgxpool.NewWithConfig(ctx, cfg)
}

func NewStore(pool *pgxpool.Pool, graphName string, count VertexCounter) *Store {
	return &Store{pool: pool, graphName: graphName, count: count}
}

func (s *Store) Upsert(ctx context.Context, vertexType string, embeddings map[string][]float32) error {
	if len(embeddings) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for id, vec := range embeddings {
		batch.Queue(`
			INSERT INTO vertex_embeddings (graph_name, vertex_type, vertex_id, embedding)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (graph_name, vertex_type, vertex_id)
			DO UPDATE SET embedding = EXCLUDED.embedding, updated_at = now()`,
			s.graphName, vertexType, id, pgvec.NewVector(vec),
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range embeddings {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("upsert embedding: %w", err)
		}
	}
	return nil
}

func (s *Store) TopKSimilar(ctx context.Context, vertexTypes []string, query []float32, topK int) ([]embedstore.Match, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT vertex_id, vertex_type, 1 - (embedding <=> $3) AS score
		FROM vertex_embeddings
		WHERE graph_name = $1 AND vertex_type = ANY($2)
		ORDER BY embedding <=> $3
		LIMIT $4`,
		s.graphName, vertexTypes, pgvec.NewVector(query), topK,
	)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}
	defer rows.Close()

	matches := make([]embedstore.Match, 0, topK)
	for rows.Next() {
		var m embedstore.Match
		if err := rows.Scan(&m.ID, &m.Type, &m.Score); err != nil {
			return nil, err
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

func (s *Store) TopKClosest(ctx context.Context, vertexType, id string, topK int) ([]embedstore.Match, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT e.vertex_id, e.vertex_type, 1 - (e.embedding <=> q.embedding) AS score
		FROM vertex_embeddings e,
		     (SELECT embedding FROM vertex_embeddings
		      WHERE graph_name = $1 AND vertex_type = $2 AND vertex_id = $3) q
		WHERE e.graph_name = $1 AND e.vertex_type = $2 AND e.vertex_id <> $3
		ORDER BY e.embedding <=> q.embedding
		LIMIT $4`,
		s.graphName, vertexType, id, topK,
	)
	if err != nil {
		return nil, fmt.Errorf("closest search: %w", err)
	}
	defer rows.Close()

	matches := make([]embedstore.Match, 0, topK)
	for rows.Next() {
		var m embedstore.Match
		if err := rows.Scan(&m.ID, &m.Type, &m.Score); err != nil {
			return nil, err
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

func (s *Store) HasEmbeddings(ctx context.Context, vertexType string, ids []string) (bool, error) {
	if len(ids) == 0 {
		return true, nil
	}
	var stored int
	err := s.pool.QueryRow(ctx, `
		SELECT count(*)
		FROM vertex_embeddings
		WHERE graph_name = $1 AND vertex_type = $2 AND vertex_id = ANY($3)`,
		s.graphName, vertexType, ids,
	).Scan(&stored)
	if err != nil {
		return false, fmt.Errorf("count embeddings: %w", err)
	}
	return stored == len(ids), nil
}

func (s *Store) AllHaveEmbeddings(ctx context.Context, vertexType string) (bool, error) {
	expected, err := s.count(ctx, vertexType)
	if err != nil {
		return false, fmt.Errorf("count vertices: %w", err)
	}
	if expected == 0 {
		return true, nil
	}

	var stored int
	err = s.pool.QueryRow(ctx, `
		SELECT count(*)
		FROM vertex_embeddings
		WHERE graph_name = $1 AND vertex_type = $2`,
		s.graphName, vertexType,
	).Scan(&stored)
	if err != nil {
		return false, fmt.Errorf("count embeddings: %w", err)
	}
	return stored >= expected, nil
}
