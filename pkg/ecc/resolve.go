package ecc

import (
	"context"
	"fmt"

	"github.com/graphora-ai/graphora/pkg/embedstore"
	"github.com/graphora-ai/graphora/pkg/gdb"
	"github.com/graphora-ai/graphora/pkg/logger"
)

// Resolver links duplicate entities. Candidates come from embedding
// similarity; of those, only pairs whose ids are lexically close (small
// edit distance relative to id length) are linked. The link is a
// RESOLVES_TO edge, never a physical merge, so resolution stays
// idempotent and reversible.
type Resolver struct {
	conn  gdb.Connection
	gov   *Governor
	queue *Queue
	store embedstore.Store

	topK                int
	similarityThreshold float64
	editDistanceRatio   float64
}

// ResolverParams configures a Resolver. Zero thresholds take the
// defaults: top 5 candidates, similarity >= 0.9, edit ratio < 0.75.
type ResolverParams struct {
	Conn  gdb.Connection
	Gov   *Governor
	Queue *Queue
	Store embedstore.Store

	TopK                int
	SimilarityThreshold float64
	EditDistanceRatio   float64
}

func NewResolver(params ResolverParams) *Resolver {
	r := &Resolver{
		conn:                params.Conn,
		gov:                 params.Gov,
		queue:               params.Queue,
		store:               params.Store,
		topK:                params.TopK,
		similarityThreshold: params.SimilarityThreshold,
		editDistanceRatio:   params.EditDistanceRatio,
	}
	if r.topK <= 0 {
		r.topK = 5
	}
	if r.similarityThreshold <= 0 {
		r.similarityThreshold = 0.9
	}
	if r.editDistanceRatio <= 0 {
		r.editDistanceRatio = 0.75
	}
	return r
}

// ResolveEntity finds duplicates of one entity and enqueues RESOLVES_TO
// edges for every candidate passing both filters.
func (r *Resolver) ResolveEntity(ctx context.Context, entityID string) error {
	if err := r.gov.AcquireGraph(ctx); err != nil {
		return err
	}
	matches, err := r.store.TopKClosest(ctx, TypeEntity, entityID, r.topK)
	r.gov.ReleaseGraph()
	if err != nil {
		return Transient("topk_closest", err)
	}
	r.linkMatches(entityID, matches)
	return nil
}

// ResolveByVector links duplicates of a freshly embedded entity using
// its vector directly, without reading it back from the store. The
// epoch sweep still covers the full entity set; this path links
// obvious duplicates as soon as the embedding lands.
func (r *Resolver) ResolveByVector(ctx context.Context, entityID string, vec []float32) error {
	if err := r.gov.AcquireGraph(ctx); err != nil {
		return err
	}
	matches, err := r.store.TopKSimilar(ctx, []string{TypeEntity}, vec, r.topK)
	r.gov.ReleaseGraph()
	if err != nil {
		return Transient("topk_similar", err)
	}
	r.linkMatches(entityID, matches)
	return nil
}

func (r *Resolver) linkMatches(entityID string, matches []embedstore.Match) {
	for _, m := range matches {
		if m.ID == entityID || m.Score < r.similarityThreshold {
			continue
		}
		ratio := editRatio(entityID, m.ID)
		if ratio >= r.editDistanceRatio {
			continue
		}
		logger.Debug("resolving entities",
			"src", entityID, "tgt", m.ID, "score", m.Score, "edit_ratio", ratio)
		r.queue.Put(EdgeItem(gdb.Edge{
			SrcType:  TypeEntity,
			SrcID:    entityID,
			EdgeType: EdgeResolvesTo,
			TgtType:  TypeEntity,
			TgtID:    m.ID,
		}))
	}
}

// AllResolved is the completion predicate gating community building.
func (r *Resolver) AllResolved(ctx context.Context) (bool, error) {
	if err := r.gov.AcquireGraph(ctx); err != nil {
		return false, err
	}
	defer r.gov.ReleaseGraph()

	res, err := r.conn.RunInstalledQuery(ctx, "entities_have_resolution", nil)
	if err != nil {
		return false, Transient("entities_have_resolution", err)
	}
	if len(res) == 0 {
		return false, Transient("entities_have_resolution", fmt.Errorf("empty result"))
	}
	all, ok := res[0]["all_resolved"].(bool)
	if !ok {
		return false, Transient("entities_have_resolution", fmt.Errorf("missing all_resolved flag"))
	}
	return all, nil
}

// ResolveRelationships rewires relationship edges from duplicates onto
// their resolution targets, graph-side.
func (r *Resolver) ResolveRelationships(ctx context.Context) error {
	if err := r.gov.AcquireGraph(ctx); err != nil {
		return err
	}
	defer r.gov.ReleaseGraph()

	if _, err := r.conn.RunInstalledQuery(ctx, "resolve_relationships", nil); err != nil {
		return Transient("resolve_relationships", err)
	}
	return nil
}

// CreateTypeRelationships materializes relationships between entity
// types after resolution converges.
func (r *Resolver) CreateTypeRelationships(ctx context.Context) error {
	if err := r.gov.AcquireGraph(ctx); err != nil {
		return err
	}
	defer r.gov.ReleaseGraph()

	if _, err := r.conn.RunInstalledQuery(ctx, "create_entity_type_relationships", nil); err != nil {
		return Transient("create_entity_type_relationships", err)
	}
	return nil
}

// editRatio is the Levenshtein distance between two ids relative to the
// longer id's length. 0 means identical, 1 means nothing in common.
func editRatio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	longest := len(ra)
	if len(rb) > longest {
		longest = len(rb)
	}
	if longest == 0 {
		return 0
	}
	return float64(levenshtein(ra, rb)) / float64(longest)
}

func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min3(curr[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
