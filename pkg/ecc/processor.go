package ecc

import (
	"context"
	"fmt"

	"github.com/graphora-ai/graphora/pkg/ai"
	"github.com/graphora-ai/graphora/pkg/chunker"
	"github.com/graphora-ai/graphora/pkg/embedstore"
	"github.com/graphora-ai/graphora/pkg/extractor"
	"github.com/graphora-ai/graphora/pkg/gdb"
	"github.com/graphora-ai/graphora/pkg/logger"

	"golang.org/x/sync/errgroup"
)

// Vertex types the pipeline watches and writes.
const (
	TypeDocument      = "Document"
	TypeDocumentChunk = "DocumentChunk"
	TypeEntity        = "Entity"
	TypeCommunity     = "Community"

	EdgeHasChild     = "HAS_CHILD"
	EdgeRelationship = "RELATIONSHIP"
	EdgeResolvesTo   = "RESOLVES_TO"
)

// Processing status values carried on every watched vertex.
const (
	StatusUnprocessed = "Unprocessed"
	StatusProcessing  = "Processing"
	StatusProcessed   = "Processed"
)

// ProcessorParams wires a Processor's collaborators.
type ProcessorParams struct {
	Conn      gdb.Connection
	Governor  *Governor
	Queue     *Queue
	Chunker   chunker.Chunker
	Extractor extractor.Extractor
	AI        ai.Client
	Store     embedstore.Store

	// Resolver, when set, is handed each freshly embedded entity
	// vector to link obvious duplicates ahead of the epoch sweep.
	Resolver *Resolver

	// ChunkWorkers bounds concurrent chunk processing per document.
	ChunkWorkers int
}

// Processor runs the per-document pipeline: fetch content, chunk, embed,
// extract, enqueue upserts, mark processed. A chunk failure never fails
// its siblings; the failed chunk stays Unprocessed for a later pass.
type Processor struct {
	conn         gdb.Connection
	gov          *Governor
	queue        *Queue
	chunker      chunker.Chunker
	extractor    extractor.Extractor
	ai           ai.Client
	store        embedstore.Store
	resolver     *Resolver
	chunkWorkers int
}

func NewProcessor(params ProcessorParams) *Processor {
	workers := params.ChunkWorkers
	if workers <= 0 {
		workers = 4
	}
	return &Processor{
		conn:         params.Conn,
		gov:          params.Governor,
		queue:        params.Queue,
		chunker:      params.Chunker,
		extractor:    params.Extractor,
		ai:           params.AI,
		store:        params.Store,
		resolver:     params.Resolver,
		chunkWorkers: workers,
	}
}

// ProcessVertex dispatches one unprocessed vertex through the pipeline
// stage appropriate for its type.
func (p *Processor) ProcessVertex(ctx context.Context, vertexType, id string) error {
	switch vertexType {
	case TypeDocument:
		return p.ProcessDocument(ctx, id)
	case TypeDocumentChunk:
		return p.ReprocessChunk(ctx, id)
	case TypeEntity:
		return p.EmbedEntity(ctx, id)
	default:
		return Validation("process_vertex", fmt.Errorf("unwatched vertex type %q", vertexType))
	}
}

func (p *Processor) fetchContent(ctx context.Context, vertexType, id string) (string, error) {
	if err := p.gov.AcquireGraph(ctx); err != nil {
		return "", err
	}
	defer p.gov.ReleaseGraph()

	res, err := p.conn.RunInstalledQuery(ctx, "stream_doc_content", map[string]any{
		"v_type": vertexType,
		"v_id":   id,
	})
	if err != nil {
		return "", Transient("stream_doc_content", err)
	}
	if len(res) == 0 {
		return "", Transient("stream_doc_content", fmt.Errorf("no content for %s %s", vertexType, id))
	}
	content, ok := res[0]["content"].(string)
	if !ok {
		return "", Transient("stream_doc_content", fmt.Errorf("content field missing for %s %s", vertexType, id))
	}
	return content, nil
}

// ProcessDocument runs the full pipeline for one document. The document
// is marked Processed once all its chunks are durably enqueued; chunks
// that failed stay Unprocessed and are retried by the DocumentChunk pass.
func (p *Processor) ProcessDocument(ctx context.Context, docID string) error {
	content, err := p.fetchContent(ctx, TypeDocument, docID)
	if err != nil {
		return err
	}

	chunks, err := p.chunker.Chunk(content)
	if err != nil {
		return Validation("chunk", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.chunkWorkers)
	for i, text := range chunks {
		g.Go(func() error {
			if err := p.processChunk(gctx, docID, i, text); err != nil {
				// isolation: a failed chunk stays Unprocessed, siblings continue
				logger.Error("chunk processing failed",
					"doc", docID, "seq", i, "error", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	p.markProcessed(TypeDocument, docID)
	return nil
}

// processChunk writes one chunk and pipes it through embedding and
// extraction. The chunk vertex and its HAS_CHILD edge are enqueued
// before any model call: a chunk whose embedding or extraction fails is
// still on the graph, Unprocessed, where the DocumentChunk pass retries
// it. On success the final Processed write supersedes the initial
// status within the same flush.
func (p *Processor) processChunk(ctx context.Context, docID string, seq int, text string) error {
	chunkID := fmt.Sprintf("%s_chunk_%d", docID, seq)

	p.queue.Put(VertexItem(gdb.Vertex{
		Type: TypeDocumentChunk,
		ID:   chunkID,
		Attrs: gdb.MapAttrs(map[string]any{
			"content":           text,
			"seq_no":            seq,
			"processing_status": StatusUnprocessed,
		}),
	}))
	p.queue.Put(EdgeItem(gdb.Edge{
		SrcType:  TypeDocument,
		SrcID:    docID,
		EdgeType: EdgeHasChild,
		TgtType:  TypeDocumentChunk,
		TgtID:    chunkID,
		Attrs:    gdb.MapAttrs(map[string]any{"seq_no": seq}),
	}))

	if _, err := p.embedAndStore(ctx, TypeDocumentChunk, chunkID, text); err != nil {
		return err
	}
	if err := p.extractInto(ctx, chunkID, text); err != nil {
		return err
	}

	p.markProcessed(TypeDocumentChunk, chunkID)
	return nil
}

// ReprocessChunk re-runs embedding and extraction for a chunk that a
// previous pass left Unprocessed.
func (p *Processor) ReprocessChunk(ctx context.Context, chunkID string) error {
	text, err := p.fetchContent(ctx, TypeDocumentChunk, chunkID)
	if err != nil {
		return err
	}
	if _, err := p.embedAndStore(ctx, TypeDocumentChunk, chunkID, text); err != nil {
		return err
	}
	if err := p.extractInto(ctx, chunkID, text); err != nil {
		return err
	}
	p.markProcessed(TypeDocumentChunk, chunkID)
	return nil
}

// EmbedEntity embeds an entity's accumulated description so the
// resolution pass can search it, and checks the fresh vector for
// obvious duplicates.
func (p *Processor) EmbedEntity(ctx context.Context, entityID string) error {
	desc, err := p.fetchContent(ctx, TypeEntity, entityID)
	if err != nil {
		return err
	}
	if desc == "" {
		desc = entityID
	}
	vec, err := p.embedAndStore(ctx, TypeEntity, entityID, desc)
	if err != nil {
		return err
	}
	if p.resolver != nil && len(vec) > 0 {
		if err := p.resolver.ResolveByVector(ctx, entityID, vec); err != nil {
			// the epoch sweep links whatever this check missed
			logger.Warn("duplicate check failed", "id", entityID, "error", err)
		}
	}
	p.markProcessed(TypeEntity, entityID)
	return nil
}

// embedAndStore returns the stored vector, or nil when the vertex was
// already embedded and the model call was skipped.
func (p *Processor) embedAndStore(ctx context.Context, vertexType, id, text string) ([]float32, error) {
	if err := p.gov.AcquireGraph(ctx); err != nil {
		return nil, err
	}
	exists, err := p.store.HasEmbeddings(ctx, vertexType, []string{id})
	p.gov.ReleaseGraph()
	if err == nil && exists {
		// retry passes land here: the vertex was embedded before an
		// extraction failure, the model call is not repeated
		return nil, nil
	}

	if err := p.gov.AcquireModel(ctx); err != nil {
		return nil, err
	}
	vec, err := p.ai.GenerateEmbedding(ctx, []byte(text))
	p.gov.ReleaseModel()
	if err != nil {
		return nil, Transient("embed", err)
	}

	if err := p.gov.AcquireGraph(ctx); err != nil {
		return nil, err
	}
	defer p.gov.ReleaseGraph()
	if err := p.store.Upsert(ctx, vertexType, map[string][]float32{id: vec}); err != nil {
		return nil, Transient("store_embedding", err)
	}
	return vec, nil
}

// extractInto runs extraction on chunk text and enqueues entity and
// relationship writes. Same-id entities within the chunk accumulate
// their descriptions instead of overwriting.
func (p *Processor) extractInto(ctx context.Context, chunkID, text string) error {
	if err := p.gov.AcquireModel(ctx); err != nil {
		return err
	}
	res, err := p.extractor.Extract(ctx, text)
	p.gov.ReleaseModel()
	if err != nil {
		return Transient("extract", err)
	}

	type entityEvidence struct {
		typ   string
		descs []string
	}
	merged := make(map[string]*entityEvidence)
	order := make([]string, 0, len(res.Entities))
	for _, e := range res.Entities {
		id := gdb.NormalizeID(e.ID)
		if id == "" {
			continue
		}
		ev, ok := merged[id]
		if !ok {
			ev = &entityEvidence{typ: e.Type}
			merged[id] = ev
			order = append(order, id)
		}
		if e.Description != "" {
			ev.descs = append(ev.descs, e.Description)
		}
	}

	for _, id := range order {
		ev := merged[id]
		p.queue.Put(VertexItem(gdb.Vertex{
			Type: TypeEntity,
			ID:   id,
			Attrs: gdb.MapAttrs(map[string]any{
				"entity_type": ev.typ,
				// set-typed attribute: "add" accumulates evidence across
				// chunks instead of overwriting
				"description": gdb.OpValue{Value: ev.descs, Op: "add"},
			}),
		}))
		p.queue.Put(EdgeItem(gdb.Edge{
			SrcType:  TypeDocumentChunk,
			SrcID:    chunkID,
			EdgeType: "CONTAINS_ENTITY",
			TgtType:  TypeEntity,
			TgtID:    id,
		}))
	}

	for _, r := range res.Relationships {
		src := gdb.NormalizeID(r.Source)
		tgt := gdb.NormalizeID(r.Target)
		if src == "" || tgt == "" {
			continue
		}
		p.queue.Put(EdgeItem(gdb.Edge{
			SrcType:  TypeEntity,
			SrcID:    src,
			EdgeType: EdgeRelationship,
			TgtType:  TypeEntity,
			TgtID:    tgt,
			Attrs: gdb.MapAttrs(map[string]any{
				"relation_type": r.Type,
				"description":   r.Description,
			}),
		}))
	}
	return nil
}

func (p *Processor) markProcessed(vertexType, id string) {
	p.queue.Put(VertexItem(gdb.Vertex{
		Type:  vertexType,
		ID:    id,
		Attrs: gdb.MapAttrs(map[string]any{"processing_status": StatusProcessed}),
	}))
}
