package ecc

import (
	"context"
	"embed"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/graphora-ai/graphora/pkg/ai"
	"github.com/graphora-ai/graphora/pkg/chunker"
	"github.com/graphora-ai/graphora/pkg/embedstore"
	"github.com/graphora-ai/graphora/pkg/extractor"
	"github.com/graphora-ai/graphora/pkg/gdb"
	"github.com/graphora-ai/graphora/pkg/logger"

	"golang.org/x/sync/errgroup"
)

//go:embed gsql/*.gsql
var gsqlFS embed.FS

// State is the checker lifecycle state.
type State int

const (
	StateIdle State = iota
	StateRunning
	StatePaused
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Config tunes one checker. Zero values take defaults.
type Config struct {
	GraphName string

	ProcessInterval time.Duration // main tick, default 30s
	CleanupInterval time.Duration // flush timer, default 5s

	TTLBatches int // batch denominator per vertex type, default 5
	BatchSize  int // max items per flush, default 500

	GraphConcurrency int64 // concurrent graph RPCs, default 2
	ModelConcurrency int64 // concurrent model calls, default 8
	ChunkWorkers     int   // concurrent chunks per document, default 4
	BatchWorkers     int   // concurrent vertices per batch, default 4

	MaxCommunityLevels  int
	TopK                int
	SimilarityThreshold float64
	EditDistanceRatio   float64

	// RequireNativeVector makes initialization fail on graphs older than
	// 4.2. Set when the graph-native embedding store is selected.
	RequireNativeVector bool

	// WatchedTypes are processed in order each tick. Defaults to
	// Document, DocumentChunk, Entity.
	WatchedTypes []string
}

func (cfg *Config) applyDefaults() {
	if cfg.ProcessInterval <= 0 {
		cfg.ProcessInterval = 30 * time.Second
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 5 * time.Second
	}
	if cfg.TTLBatches <= 0 {
		cfg.TTLBatches = 5
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if cfg.BatchWorkers <= 0 {
		cfg.BatchWorkers = 4
	}
	if len(cfg.WatchedTypes) == 0 {
		cfg.WatchedTypes = []string{TypeDocument, TypeDocumentChunk, TypeEntity}
	}
}

// Dependencies are the collaborators a checker is assembled from.
type Dependencies struct {
	Conn      gdb.Connection
	AI        ai.Client
	Chunker   chunker.Chunker
	Extractor extractor.Extractor
	Store     embedstore.Store
}

// Checker is the per-graph convergence loop: it repeatedly pulls batches
// of unprocessed vertices, pipes them through the document processor,
// and once embedding and resolution predicates hold, builds community
// summaries. One checker exists per graph name.
type Checker struct {
	cfg   Config
	conn  gdb.Connection
	store embedstore.Store

	gov       *Governor
	queue     *Queue
	flusher   *Flusher
	processor *Processor
	resolver  *Resolver
	builder   *Builder
	cursors   map[string]*Cursor

	mu     sync.Mutex
	state  State
	status string

	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

var registry sync.Map

// Start returns the checker for the graph, creating and initializing one
// on first call. Concurrent starts for the same graph all observe the
// same instance; LoadOrStore makes the check-and-insert atomic.
func Start(ctx context.Context, cfg Config, deps Dependencies) (*Checker, error) {
	cfg.applyDefaults()

	candidate := newChecker(cfg, deps)
	actual, loaded := registry.LoadOrStore(cfg.GraphName, candidate)
	c := actual.(*Checker)
	if loaded {
		return c, nil
	}

	if err := c.initialize(ctx); err != nil {
		registry.Delete(cfg.GraphName)
		return nil, err
	}
	c.start()
	logger.Info("eventual consistency checker started", "graph", cfg.GraphName)
	return c, nil
}

// Lookup returns the running checker for a graph, if any.
func Lookup(graphName string) (*Checker, bool) {
	v, ok := registry.Load(graphName)
	if !ok {
		return nil, false
	}
	return v.(*Checker), true
}

// Checkers returns every registered checker.
func Checkers() []*Checker {
	var out []*Checker
	registry.Range(func(_, v any) bool {
		out = append(out, v.(*Checker))
		return true
	})
	return out
}

func newChecker(cfg Config, deps Dependencies) *Checker {
	cfg.applyDefaults()
	gov := NewGovernor(cfg.GraphConcurrency, cfg.ModelConcurrency)
	queue := NewQueue()

	resolver := NewResolver(ResolverParams{
		Conn:                deps.Conn,
		Gov:                 gov,
		Queue:               queue,
		Store:               deps.Store,
		TopK:                cfg.TopK,
		SimilarityThreshold: cfg.SimilarityThreshold,
		EditDistanceRatio:   cfg.EditDistanceRatio,
	})

	c := &Checker{
		cfg:     cfg,
		conn:    deps.Conn,
		store:   deps.Store,
		gov:     gov,
		queue:   queue,
		flusher: NewFlusher(queue, deps.Conn, gov, cfg.BatchSize),
		processor: NewProcessor(ProcessorParams{
			Conn:         deps.Conn,
			Governor:     gov,
			Queue:        queue,
			Chunker:      deps.Chunker,
			Extractor:    deps.Extractor,
			AI:           deps.AI,
			Store:        deps.Store,
			Resolver:     resolver,
			ChunkWorkers: cfg.ChunkWorkers,
		}),
		resolver: resolver,
		builder: NewBuilder(BuilderParams{
			Conn:       deps.Conn,
			Gov:        gov,
			Queue:      queue,
			Summarizer: NewSummarizer(deps.AI, gov),
			MaxLevels:  cfg.MaxCommunityLevels,
		}),
		cursors: make(map[string]*Cursor, len(cfg.WatchedTypes)),
		state:   StateIdle,
	}
	for _, vt := range cfg.WatchedTypes {
		c.cursors[vt] = NewCursor(deps.Conn, gov, vt, cfg.TTLBatches)
	}
	// the resolution sweep walks entities even when Entity is not watched
	if _, ok := c.cursors[TypeEntity]; !ok {
		c.cursors[TypeEntity] = NewCursor(deps.Conn, gov, TypeEntity, cfg.TTLBatches)
	}
	return c
}

func (c *Checker) initialize(ctx context.Context) error {
	if c.cfg.RequireNativeVector {
		verStr, err := c.conn.GetVer(ctx)
		if err != nil {
			return Fatal("get_version", err)
		}
		ver, err := gdb.ParseVersion(verStr)
		if err != nil {
			return Fatal("parse_version", err)
		}
		if !ver.SupportsNativeVector() {
			return Fatal("version_gate",
				fmt.Errorf("graph version %s does not support the vector feature", ver))
		}
	}

	if err := c.ensureSchema(ctx); err != nil {
		return err
	}
	if err := c.installQueries(ctx); err != nil {
		return err
	}

	c.setStatus(fmt.Sprintf("GraphRAG initialization on %s %s",
		c.cfg.GraphName, time.Now().Format(time.ANSIC)))
	return nil
}

// ensureSchema adds the pipeline's vertex and edge types when missing.
// A graph that already carries ResolvedEntity is assumed bootstrapped.
func (c *Checker) ensureSchema(ctx context.Context) error {
	types, err := c.conn.GetVertexTypes(ctx)
	if err != nil {
		return Fatal("get_vertex_types", err)
	}
	for _, t := range types {
		if t == "ResolvedEntity" {
			return nil
		}
	}

	ddl := fmt.Sprintf(schemaDDL, c.cfg.GraphName, c.cfg.GraphName)
	if _, err := c.conn.GSQL(ctx, ddl); err != nil {
		return Fatal("schema_bootstrap", err)
	}
	logger.Info("graph schema bootstrapped", "graph", c.cfg.GraphName)
	return nil
}

// installQueries creates every required installed query and installs them
// in one pass. A required query that cannot be created is fatal.
func (c *Checker) installQueries(ctx context.Context) error {
	entries, err := gsqlFS.ReadDir("gsql")
	if err != nil {
		return Fatal("read_queries", err)
	}

	for _, entry := range entries {
		body, err := gsqlFS.ReadFile("gsql/" + entry.Name())
		if err != nil {
			return Fatal("read_query", err)
		}
		name := strings.TrimSuffix(entry.Name(), ".gsql")
		stmt := fmt.Sprintf("USE GRAPH %s\nBEGIN\n%s\nEND\n", c.cfg.GraphName, string(body))
		if _, err := c.conn.GSQL(ctx, stmt); err != nil {
			return Fatal("create_query", fmt.Errorf("%s: %w", name, err))
		}
		logger.Debug("created query", "graph", c.cfg.GraphName, "query", name)
	}

	install := fmt.Sprintf("USE GRAPH %s\nINSTALL QUERY ALL\n", c.cfg.GraphName)
	if _, err := c.conn.GSQL(ctx, install); err != nil {
		return Fatal("install_queries", err)
	}
	logger.Info("installed required queries", "graph", c.cfg.GraphName)
	return nil
}

func (c *Checker) start() {
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.setState(StateRunning)

	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		c.flusher.Run(ctx, c.cfg.CleanupInterval)
	}()
	go func() {
		defer c.wg.Done()
		c.run(ctx)
	}()
}

func (c *Checker) run(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.ProcessInterval)
	defer ticker.Stop()

	for {
		if err := c.Tick(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			if IsFatal(err) {
				logger.Error("checker stopping on fatal error",
					"graph", c.cfg.GraphName, "error", err)
				c.setStatus(fmt.Sprintf("failed: %v", err))
				return
			}
			logger.Warn("tick failed, retrying next interval",
				"graph", c.cfg.GraphName, "error", err)
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}

// Tick runs one convergence pass: a processing batch per watched type,
// then, once the embedding predicate holds, resolution, and once
// resolution converges, community building. Every phase transition is
// re-derived from graph-resident state.
func (c *Checker) Tick(ctx context.Context) error {
	if err := c.gov.WaitReady(ctx); err != nil {
		return err
	}

	for _, vt := range c.cfg.WatchedTypes {
		if err := c.processBatch(ctx, vt); err != nil {
			if IsFatal(err) {
				return err
			}
			logger.Warn("batch processing failed",
				"graph", c.cfg.GraphName, "vertex_type", vt, "error", err)
		}
	}

	if err := c.gov.AcquireGraph(ctx); err != nil {
		return err
	}
	embedded, err := c.store.AllHaveEmbeddings(ctx, TypeEntity)
	c.gov.ReleaseGraph()
	if err != nil {
		return Transient("vertices_have_embedding", err)
	}
	if !embedded {
		return nil
	}

	resolved, err := c.resolver.AllResolved(ctx)
	if err != nil {
		return err
	}
	if !resolved {
		return c.resolveEpoch(ctx)
	}

	if err := c.resolver.CreateTypeRelationships(ctx); err != nil {
		return err
	}
	return c.builder.Build(ctx)
}

func (c *Checker) processBatch(ctx context.Context, vertexType string) error {
	batch, err := c.cursors[vertexType].NextBatch(ctx)
	if err != nil {
		return err
	}
	if len(batch.IDs) == 0 {
		return nil
	}
	logger.Debug("processing batch",
		"graph", c.cfg.GraphName, "vertex_type", vertexType,
		"batch", batch.Index, "epoch", batch.Epoch, "size", len(batch.IDs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.BatchWorkers)
	for _, id := range batch.IDs {
		g.Go(func() error {
			if err := c.gov.WaitReady(gctx); err != nil {
				return err
			}
			if err := c.processor.ProcessVertex(gctx, vertexType, id); err != nil {
				// per-item isolation: log, leave the vertex unprocessed
				logger.Error("vertex processing failed",
					"vertex_type", vertexType, "id", id, "error", err)
			}
			return nil
		})
	}
	return g.Wait()
}

// resolveEpoch runs one full resolution sweep over the entity set. The
// embedding pass left every entity Processed and the id stream skips
// Processed vertices, so the sweep first resets the type's statuses,
// then walks a whole cursor epoch, re-marking each entity Processed
// once its candidates were examined. Relationships are rewired only
// after the sweep covered the epoch.
func (c *Checker) resolveEpoch(ctx context.Context) error {
	if err := c.gov.AcquireGraph(ctx); err != nil {
		return err
	}
	_, err := c.conn.RunInstalledQuery(ctx, "set_epoch_processing", map[string]any{
		"v_type": TypeEntity,
	})
	c.gov.ReleaseGraph()
	if err != nil {
		return Transient("set_epoch_processing", err)
	}

	cursor := c.cursors[TypeEntity]
	for range c.cfg.TTLBatches {
		batch, err := cursor.NextBatch(ctx)
		if err != nil {
			return err
		}
		for _, id := range batch.IDs {
			if err := c.resolver.ResolveEntity(ctx, id); err != nil {
				logger.Error("entity resolution failed", "id", id, "error", err)
				continue
			}
			c.queue.Put(VertexItem(gdb.Vertex{
				Type:  TypeEntity,
				ID:    id,
				Attrs: gdb.MapAttrs(map[string]any{"processing_status": StatusProcessed}),
			}))
		}
	}
	return c.resolver.ResolveRelationships(ctx)
}

// Pause blocks new dispatch; in-flight work drains naturally.
func (c *Checker) Pause() {
	c.gov.Pause()
	c.setState(StatePaused)
}

// Resume reopens dispatch after a Pause.
func (c *Checker) Resume() {
	c.gov.Resume()
	c.setState(StateRunning)
}

// Stop ends scheduling, waits for in-flight work, drains the queue, and
// removes the checker from the registry. Drain-to-completion: nothing
// already dispatched is cancelled.
func (c *Checker) Stop() {
	c.stopOnce.Do(func() {
		c.gov.Resume() // unblock anything parked at the gate
		if c.cancel != nil {
			c.cancel()
		}
		c.wg.Wait()
		c.queue.Close()
		c.flusher.Drain()
		c.setState(StateStopped)
		registry.Delete(c.cfg.GraphName)
		logger.Info("eventual consistency checker stopped", "graph", c.cfg.GraphName)
	})
}

// GraphName returns the graph this checker watches.
func (c *Checker) GraphName() string { return c.cfg.GraphName }

// State returns the lifecycle state.
func (c *Checker) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Status returns the last status line, answerable without blocking the
// pipeline.
func (c *Checker) Status() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *Checker) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Checker) setStatus(s string) {
	c.mu.Lock()
	c.status = s
	c.mu.Unlock()
}

const schemaDDL = `USE GRAPH %s
CREATE SCHEMA_CHANGE JOB graphora_schema_init FOR GRAPH %s {
  ADD VERTEX DocumentChunk(PRIMARY_ID id STRING, content STRING, seq_no INT, processing_status STRING) WITH primary_id_as_attribute="true";
  ADD VERTEX Entity(PRIMARY_ID id STRING, entity_type STRING, description SET<STRING>, processing_status STRING) WITH primary_id_as_attribute="true";
  ADD VERTEX ResolvedEntity(PRIMARY_ID id STRING, entity_type STRING) WITH primary_id_as_attribute="true";
  ADD VERTEX Community(PRIMARY_ID id STRING, iter INT, description STRING) WITH primary_id_as_attribute="true";
  ADD VERTEX EntityType(PRIMARY_ID id STRING, description STRING) WITH primary_id_as_attribute="true";
  ADD VERTEX BatchCursor(PRIMARY_ID id STRING, current_batch INT, epoch INT) WITH primary_id_as_attribute="true";
  ADD DIRECTED EDGE HAS_CHILD(FROM Document, TO DocumentChunk, seq_no INT) WITH REVERSE_EDGE="reverse_HAS_CHILD";
  ADD DIRECTED EDGE CONTAINS_ENTITY(FROM DocumentChunk, TO Entity) WITH REVERSE_EDGE="reverse_CONTAINS_ENTITY";
  ADD DIRECTED EDGE RELATIONSHIP(FROM Entity, TO Entity, relation_type STRING, description STRING) WITH REVERSE_EDGE="reverse_RELATIONSHIP";
  ADD DIRECTED EDGE RESOLVES_TO(FROM Entity, TO Entity) WITH REVERSE_EDGE="reverse_RESOLVES_TO";
  ADD DIRECTED EDGE REPRESENTED_BY(FROM Entity, TO ResolvedEntity) WITH REVERSE_EDGE="reverse_REPRESENTED_BY";
  ADD DIRECTED EDGE IN_COMMUNITY(FROM ResolvedEntity, TO Community) WITH REVERSE_EDGE="reverse_IN_COMMUNITY";
  ADD DIRECTED EDGE HAS_PARENT(FROM Community, TO Community) WITH REVERSE_EDGE="reverse_HAS_PARENT";
}
RUN SCHEMA_CHANGE JOB graphora_schema_init
DROP JOB graphora_schema_init
`
