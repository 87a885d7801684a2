package ecc

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/graphora-ai/graphora/pkg/embedstore"
	"github.com/graphora-ai/graphora/pkg/extractor"
	"github.com/graphora-ai/graphora/pkg/gdb/gdbtest"
)

func testConfig(graph string) Config {
	return Config{
		GraphName:       graph,
		ProcessInterval: time.Hour,
		CleanupInterval: time.Hour,
	}
}

func testDeps(fake *gdbtest.Fake, store *fakeStore) Dependencies {
	return Dependencies{
		Conn:      fake,
		AI:        &fakeAI{},
		Chunker:   chunkerFunc(splitPipes),
		Extractor: extractorFunc(func(ctx context.Context, text string) (extractor.Result, error) {
			return extractor.Result{}, nil
		}),
		Store: store,
	}
}

func TestStartIsIdempotentPerGraph(t *testing.T) {
	fake := &gdbtest.Fake{}
	deps := testDeps(fake, &fakeStore{})

	first, err := Start(context.Background(), testConfig("reg_test"), deps)
	if err != nil {
		t.Fatal(err)
	}
	defer first.Stop()
	installed := len(fake.GSQLCalls())

	second, err := Start(context.Background(), testConfig("reg_test"), deps)
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Error("second Start returned a different checker")
	}
	if got := len(fake.GSQLCalls()); got != installed {
		t.Errorf("second Start re-ran initialization: %d GSQL calls, had %d", got, installed)
	}

	found, ok := Lookup("reg_test")
	if !ok || found != first {
		t.Error("Lookup did not return the running checker")
	}
}

func TestStartBootstrapsSchemaAndQueries(t *testing.T) {
	fake := &gdbtest.Fake{}
	c, err := Start(context.Background(), testConfig("boot_test"), testDeps(fake, &fakeStore{}))
	if err != nil {
		t.Fatal(err)
	}
	defer c.Stop()

	calls := fake.GSQLCalls()
	var sawSchema, sawInstall bool
	for _, call := range calls {
		if strings.Contains(call, "SCHEMA_CHANGE JOB") {
			sawSchema = true
		}
		if strings.Contains(call, "INSTALL QUERY ALL") {
			sawInstall = true
		}
	}
	if !sawSchema {
		t.Error("schema bootstrap never ran")
	}
	if !sawInstall {
		t.Error("queries never installed")
	}
	if c.Status() == "" {
		t.Error("status unset after initialization")
	}
}

func TestStartSkipsSchemaWhenBootstrapped(t *testing.T) {
	fake := &gdbtest.Fake{VertexTypes: []string{"Document", "ResolvedEntity"}}
	c, err := Start(context.Background(), testConfig("skip_test"), testDeps(fake, &fakeStore{}))
	if err != nil {
		t.Fatal(err)
	}
	defer c.Stop()

	for _, call := range fake.GSQLCalls() {
		if strings.Contains(call, "SCHEMA_CHANGE JOB") {
			t.Fatal("schema bootstrap re-ran on a bootstrapped graph")
		}
	}
}

func TestStartRejectsOldGraphForNativeVector(t *testing.T) {
	fake := &gdbtest.Fake{Version: "3.9.5"}
	cfg := testConfig("gate_test")
	cfg.RequireNativeVector = true

	_, err := Start(context.Background(), cfg, testDeps(fake, &fakeStore{}))
	if err == nil {
		t.Fatal("Start accepted a graph below 4.2 with native vector required")
	}
	if !IsFatal(err) {
		t.Errorf("version gate kind = %v, want fatal", KindOf(err))
	}
	if _, ok := Lookup("gate_test"); ok {
		t.Error("failed checker left in registry")
	}
}

// scriptPipeline wires a Fake so a single document flows through one
// Tick: the Document batch holds doc1, other batches are empty.
func scriptPipeline(fake *gdbtest.Fake, content string) {
	fake.QueryFunc = func(name string, params map[string]any) ([]map[string]any, error) {
		switch name {
		case "get_batch_cursor":
			return []map[string]any{{"current_batch": 0, "epoch": 0}}, nil
		case "stream_ids":
			if params["v_type"] == TypeDocument {
				return []map[string]any{{"@@ids": []any{"doc1"}}}, nil
			}
			return []map[string]any{{"@@ids": []any{}}}, nil
		case "stream_doc_content":
			return []map[string]any{{"content": content}}, nil
		}
		return nil, nil
	}
}

func TestTickProcessesDocumentEndToEnd(t *testing.T) {
	fake := &gdbtest.Fake{}
	scriptPipeline(fake, "alpha|beta|gamma")
	store := &fakeStore{}

	cfg := testConfig("e2e_test")
	cfg.GraphConcurrency = 1
	c := newChecker(cfg, testDeps(fake, store))

	if err := c.Tick(context.Background()); err != nil {
		t.Fatal(err)
	}
	c.flusher.Drain()

	for i := 0; i < 3; i++ {
		chunkID := "doc1_chunk_" + string(rune('0'+i))
		if got := fake.VertexAttr(TypeDocumentChunk, chunkID, "seq_no"); got != i {
			t.Errorf("%s seq_no = %v, want %d", chunkID, got, i)
		}
		if !fake.HasEdge(TypeDocument, "doc1", EdgeHasChild, TypeDocumentChunk, chunkID) {
			t.Errorf("missing HAS_CHILD edge to %s", chunkID)
		}
		if !store.stored(TypeDocumentChunk, chunkID) {
			t.Errorf("%s not embedded", chunkID)
		}
	}
	if got := fake.VertexAttr(TypeDocument, "doc1", "processing_status"); got != StatusProcessed {
		t.Errorf("document status = %v, want %s", got, StatusProcessed)
	}
	if fake.MaxInFlight() > 1 {
		t.Errorf("observed %d concurrent graph calls, limit is 1", fake.MaxInFlight())
	}
	// embeddings incomplete: resolution never starts
	if calls := fake.QueryCallsNamed("entities_have_resolution"); len(calls) != 0 {
		t.Error("resolution started before the embedding predicate held")
	}
}

func TestTickRunsResolutionWhenEmbedded(t *testing.T) {
	fake := &gdbtest.Fake{}
	fake.QueryFunc = func(name string, params map[string]any) ([]map[string]any, error) {
		switch name {
		case "get_batch_cursor":
			return []map[string]any{{"current_batch": 0, "epoch": 0}}, nil
		case "stream_ids":
			return []map[string]any{{"@@ids": []any{}}}, nil
		case "entities_have_resolution":
			return []map[string]any{{"all_resolved": false}}, nil
		}
		return nil, nil
	}
	store := &fakeStore{AllHave: true}
	c := newChecker(testConfig("resolve_test"), testDeps(fake, store))

	if err := c.Tick(context.Background()); err != nil {
		t.Fatal(err)
	}
	if calls := fake.QueryCallsNamed("set_epoch_processing"); len(calls) != 1 {
		t.Errorf("set_epoch_processing calls = %d, want 1", len(calls))
	}
	if calls := fake.QueryCallsNamed("resolve_relationships"); len(calls) != 1 {
		t.Errorf("resolve_relationships calls = %d, want 1", len(calls))
	}
	if calls := fake.QueryCallsNamed("graphrag_louvain_init"); len(calls) != 0 {
		t.Error("community building started before resolution converged")
	}
}

func TestResolutionSweepCoversEpoch(t *testing.T) {
	fake := &gdbtest.Fake{}
	var reset, served bool
	fake.QueryFunc = func(name string, params map[string]any) ([]map[string]any, error) {
		switch name {
		case "get_batch_cursor":
			return []map[string]any{{"current_batch": 0, "epoch": 0}}, nil
		case "set_epoch_processing":
			reset = true
			return nil, nil
		case "stream_ids":
			// the embedding pass marked everything Processed; entities
			// reappear in the stream only after the status reset
			if reset && !served && params["v_type"] == TypeEntity {
				served = true
				return []map[string]any{{"@@ids": []any{"marie_curie", "m_curie"}}}, nil
			}
			return []map[string]any{{"@@ids": []any{}}}, nil
		case "entities_have_resolution":
			return []map[string]any{{"all_resolved": false}}, nil
		}
		return nil, nil
	}
	store := &fakeStore{
		AllHave: true,
		Closest: map[string][]embedstore.Match{
			"marie_curie": {{ID: "m_curie", Type: TypeEntity, Score: 0.97}},
		},
	}
	c := newChecker(testConfig("sweep_test"), testDeps(fake, store))

	if err := c.Tick(context.Background()); err != nil {
		t.Fatal(err)
	}
	c.flusher.Drain()

	if !fake.HasEdge(TypeEntity, "marie_curie", EdgeResolvesTo, TypeEntity, "m_curie") {
		t.Error("similar entities not linked by RESOLVES_TO")
	}
	for _, id := range []string{"marie_curie", "m_curie"} {
		if got := fake.VertexAttr(TypeEntity, id, "processing_status"); got != StatusProcessed {
			t.Errorf("swept entity %s status = %v, want %s", id, got, StatusProcessed)
		}
	}
	if calls := fake.QueryCallsNamed("resolve_relationships"); len(calls) != 1 {
		t.Errorf("resolve_relationships calls = %d, want 1", len(calls))
	}
	if calls := fake.QueryCallsNamed("graphrag_louvain_init"); len(calls) != 0 {
		t.Error("community building started before resolution converged")
	}
}

func TestTickResolvesWithCustomWatchedTypes(t *testing.T) {
	fake := &gdbtest.Fake{}
	fake.QueryFunc = func(name string, params map[string]any) ([]map[string]any, error) {
		switch name {
		case "get_batch_cursor":
			return []map[string]any{{"current_batch": 0, "epoch": 0}}, nil
		case "stream_ids":
			return []map[string]any{{"@@ids": []any{}}}, nil
		case "entities_have_resolution":
			return []map[string]any{{"all_resolved": false}}, nil
		}
		return nil, nil
	}
	cfg := testConfig("custom_watch_test")
	cfg.WatchedTypes = []string{TypeDocument}
	c := newChecker(cfg, testDeps(fake, &fakeStore{AllHave: true}))

	if err := c.Tick(context.Background()); err != nil {
		t.Fatal(err)
	}
	if calls := fake.QueryCallsNamed("resolve_relationships"); len(calls) != 1 {
		t.Errorf("resolve_relationships calls = %d, want 1", len(calls))
	}
}

func TestTickBuildsCommunitiesWhenResolved(t *testing.T) {
	fake := &gdbtest.Fake{}
	fake.QueryFunc = func(name string, params map[string]any) ([]map[string]any, error) {
		switch name {
		case "get_batch_cursor":
			return []map[string]any{{"current_batch": 0, "epoch": 0}}, nil
		case "stream_ids", "stream_community":
			return []map[string]any{{"@@ids": []any{}}}, nil
		case "entities_have_resolution":
			return []map[string]any{{"all_resolved": true}}, nil
		case "communities_have_desc":
			return []map[string]any{{"all_have_desc": true}}, nil
		}
		return nil, nil
	}
	store := &fakeStore{AllHave: true}
	c := newChecker(testConfig("community_test"), testDeps(fake, store))

	if err := c.Tick(context.Background()); err != nil {
		t.Fatal(err)
	}
	if calls := fake.QueryCallsNamed("create_entity_type_relationships"); len(calls) != 1 {
		t.Errorf("create_entity_type_relationships calls = %d, want 1", len(calls))
	}
	if calls := fake.QueryCallsNamed("graphrag_louvain_init"); len(calls) != 1 {
		t.Errorf("graphrag_louvain_init calls = %d, want 1", len(calls))
	}
}

func TestStopDrainsQueueAndDeregisters(t *testing.T) {
	fake := &gdbtest.Fake{}
	c, err := Start(context.Background(), testConfig("stop_test"), testDeps(fake, &fakeStore{}))
	if err != nil {
		t.Fatal(err)
	}

	c.queue.Put(vitem("pending"))
	c.Stop()

	if !fake.HasVertex(TypeEntity, "pending") {
		t.Error("queued write lost on Stop")
	}
	if c.State() != StateStopped {
		t.Errorf("state = %v, want stopped", c.State())
	}
	if _, ok := Lookup("stop_test"); ok {
		t.Error("stopped checker still registered")
	}

	c.Stop() // second Stop is a no-op
}

func TestPauseBlocksDispatch(t *testing.T) {
	fake := &gdbtest.Fake{}
	c := newChecker(testConfig("pause_test"), testDeps(fake, &fakeStore{}))

	c.Pause()
	if c.State() != StatePaused {
		t.Fatalf("state = %v, want paused", c.State())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := c.Tick(ctx); err == nil {
		t.Fatal("Tick proceeded while paused")
	}
	if len(fake.QueryCalls()) != 0 {
		t.Error("paused checker issued graph calls")
	}

	c.Resume()
	if c.State() != StateRunning {
		t.Errorf("state = %v, want running", c.State())
	}
}
