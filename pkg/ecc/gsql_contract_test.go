package ecc

import (
	"context"
	"regexp"
	"strings"
	"testing"

	"github.com/graphora-ai/graphora/pkg/embedstore"
	"github.com/graphora-ai/graphora/pkg/gdb/gdbtest"
)

var queryDeclPat = regexp.MustCompile(`(?m)^CREATE (?:DISTRIBUTED )?QUERY (\w+)\(([^)]*)\)`)

// querySignatures parses the declared parameter names out of every
// embedded query file, keyed by query name.
func querySignatures(t *testing.T) map[string]map[string]bool {
	t.Helper()

	entries, err := gsqlFS.ReadDir("gsql")
	if err != nil {
		t.Fatal(err)
	}

	sigs := make(map[string]map[string]bool, len(entries))
	for _, entry := range entries {
		body, err := gsqlFS.ReadFile("gsql/" + entry.Name())
		if err != nil {
			t.Fatal(err)
		}
		m := queryDeclPat.FindStringSubmatch(string(body))
		if m == nil {
			t.Fatalf("%s: no query declaration found", entry.Name())
		}
		if want := strings.TrimSuffix(entry.Name(), ".gsql"); m[1] != want {
			t.Errorf("%s declares query %q, want %q", entry.Name(), m[1], want)
		}

		params := make(map[string]bool)
		for _, decl := range strings.Split(m[2], ",") {
			decl = strings.TrimSpace(decl)
			if decl == "" {
				continue
			}
			if i := strings.Index(decl, "="); i >= 0 {
				decl = strings.TrimSpace(decl[:i])
			}
			fields := strings.Fields(decl)
			params[fields[len(fields)-1]] = true
		}
		sigs[m[1]] = params
	}
	return sigs
}

func contractResult(name string) []map[string]any {
	switch name {
	case "get_batch_cursor":
		return []map[string]any{{"current_batch": 0, "epoch": 0}}
	case "stream_ids", "stream_community":
		return []map[string]any{{"@@ids": []any{}}}
	case "stream_doc_content":
		return []map[string]any{{"content": "text"}}
	case "entities_have_resolution":
		return []map[string]any{{"all_resolved": true}}
	case "communities_have_desc":
		return []map[string]any{{"all_have_desc": true}}
	case "vertices_have_embedding":
		return []map[string]any{{"all_have_embedding": true}}
	case "check_embedding_exists", "get_topk_similar", "get_topk_closest":
		return []map[string]any{{"results": []any{}}}
	case "get_community_children":
		return []map[string]any{{"children": []any{}}}
	}
	return nil
}

// TestInstalledQueryCallsMatchDeclarations drives every installed-query
// caller against the embedded query files and rejects any parameter a
// query does not declare.
func TestInstalledQueryCallsMatchDeclarations(t *testing.T) {
	sigs := querySignatures(t)
	fake := &gdbtest.Fake{}
	fake.QueryFunc = func(name string, params map[string]any) ([]map[string]any, error) {
		sig, ok := sigs[name]
		if !ok {
			t.Errorf("call to %q: no such query under gsql/", name)
			return nil, nil
		}
		for p := range params {
			if !sig[p] {
				t.Errorf("%s called with undeclared parameter %q", name, p)
			}
		}
		return contractResult(name), nil
	}

	ctx := context.Background()
	c := newChecker(testConfig("contract_test"), testDeps(fake, &fakeStore{AllHave: true}))

	if _, err := c.cursors[TypeEntity].NextBatch(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := c.processor.fetchContent(ctx, TypeDocument, "doc1"); err != nil {
		t.Fatal(err)
	}
	if err := c.resolveEpoch(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := c.resolver.AllResolved(ctx); err != nil {
		t.Fatal(err)
	}
	if err := c.resolver.CreateTypeRelationships(ctx); err != nil {
		t.Fatal(err)
	}
	if err := c.builder.Build(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := c.builder.communityChildren(ctx, 1, "comm_1"); err != nil {
		t.Fatal(err)
	}

	store := embedstore.NewGraphStore(fake)
	if _, err := store.TopKSimilar(ctx, []string{TypeEntity}, []float32{1}, 3); err != nil {
		t.Fatal(err)
	}
	if _, err := store.TopKClosest(ctx, TypeEntity, "e1", 3); err != nil {
		t.Fatal(err)
	}
	if _, err := store.HasEmbeddings(ctx, TypeEntity, []string{"e1"}); err != nil {
		t.Fatal(err)
	}
	if _, err := store.AllHaveEmbeddings(ctx, TypeEntity); err != nil {
		t.Fatal(err)
	}
}
