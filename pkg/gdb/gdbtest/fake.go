// Package gdbtest provides an in-memory gdb.Connection fake for tests.
package gdbtest

import (
	"context"
	"fmt"
	"sync"

	"github.com/graphora-ai/graphora/pkg/gdb"
)

// QueryCall records one RunInstalledQuery invocation.
type QueryCall struct {
	Name   string
	Params map[string]any
}

// Fake is a scriptable in-memory Connection. Zero value is usable; set
// QueryFunc to script installed query results. All recorded state is
// safe for concurrent access.
type Fake struct {
	Graph   string
	Version string

	// QueryFunc scripts RunInstalledQuery. Unscripted queries return an
	// empty result set.
	QueryFunc func(name string, params map[string]any) ([]map[string]any, error)

	// GSQLFunc scripts GSQL. Unscripted calls return an empty response.
	GSQLFunc func(text string) (string, error)

	// UpsertErr, when set, fails every UpsertData call.
	UpsertErr error

	VertexTypes []string
	EdgeTypes   []string
	VertexAttrs map[string][]string
	EdgeAttrs   map[string][]string

	mu          sync.Mutex
	queryCalls  []QueryCall
	gsqlCalls   []string
	upserts     []*gdb.UpsertPayload
	inFlight    int
	maxInFlight int
}

var _ gdb.Connection = (*Fake)(nil)

func (f *Fake) GraphName() string {
	if f.Graph == "" {
		return "TestGraph"
	}
	return f.Graph
}

func (f *Fake) GetVer(ctx context.Context) (string, error) {
	if f.Version == "" {
		return "4.2.0", nil
	}
	return f.Version, nil
}

func (f *Fake) GetVertexTypes(ctx context.Context) ([]string, error) { return f.VertexTypes, nil }
func (f *Fake) GetEdgeTypes(ctx context.Context) ([]string, error)   { return f.EdgeTypes, nil }

func (f *Fake) GetVertexAttrs(ctx context.Context, vertexType string) ([]string, error) {
	return f.VertexAttrs[vertexType], nil
}

func (f *Fake) GetEdgeAttrs(ctx context.Context, edgeType string) ([]string, error) {
	return f.EdgeAttrs[edgeType], nil
}

func (f *Fake) enter() {
	f.mu.Lock()
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	f.mu.Unlock()
}

func (f *Fake) leave() {
	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()
}

func (f *Fake) RunInstalledQuery(ctx context.Context, name string, params map[string]any) ([]map[string]any, error) {
	f.enter()
	defer f.leave()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	f.queryCalls = append(f.queryCalls, QueryCall{Name: name, Params: params})
	fn := f.QueryFunc
	f.mu.Unlock()

	if fn == nil {
		return nil, nil
	}
	return fn(name, params)
}

func (f *Fake) UpsertData(ctx context.Context, payload *gdb.UpsertPayload) error {
	f.enter()
	defer f.leave()

	if err := ctx.Err(); err != nil {
		return err
	}
	if f.UpsertErr != nil {
		return f.UpsertErr
	}

	f.mu.Lock()
	f.upserts = append(f.upserts, payload)
	f.mu.Unlock()
	return nil
}

func (f *Fake) GSQL(ctx context.Context, text string) (string, error) {
	f.mu.Lock()
	f.gsqlCalls = append(f.gsqlCalls, text)
	fn := f.GSQLFunc
	f.mu.Unlock()

	if fn == nil {
		return "", nil
	}
	return fn(text)
}

// QueryCalls returns a copy of all recorded installed query calls.
func (f *Fake) QueryCalls() []QueryCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]QueryCall, len(f.queryCalls))
	copy(out, f.queryCalls)
	return out
}

// QueryCallsNamed returns recorded calls for one query name.
func (f *Fake) QueryCallsNamed(name string) []QueryCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []QueryCall
	for _, c := range f.queryCalls {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}

// GSQLCalls returns a copy of all recorded GSQL calls.
func (f *Fake) GSQLCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.gsqlCalls))
	copy(out, f.gsqlCalls)
	return out
}

// Upserts returns a copy of all recorded upsert payloads.
func (f *Fake) Upserts() []*gdb.UpsertPayload {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*gdb.UpsertPayload, len(f.upserts))
	copy(out, f.upserts)
	return out
}

// MaxInFlight reports the highest number of concurrently running graph
// RPCs observed so far.
func (f *Fake) MaxInFlight() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxInFlight
}

// VertexAttr returns the recorded attribute value for one vertex, or nil.
func (f *Fake) VertexAttr(vertexType, id, attr string) any {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.upserts) - 1; i >= 0; i-- {
		if byID, ok := f.upserts[i].Vertices[vertexType]; ok {
			if attrs, ok := byID[id]; ok {
				if v, ok := attrs[attr]; ok {
					return v.Value
				}
			}
		}
	}
	return nil
}

// HasVertex reports whether any recorded upsert wrote the vertex.
func (f *Fake) HasVertex(vertexType, id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.upserts {
		if byID, ok := p.Vertices[vertexType]; ok {
			if _, ok := byID[id]; ok {
				return true
			}
		}
	}
	return false
}

// HasEdge reports whether any recorded upsert wrote the edge.
func (f *Fake) HasEdge(srcType, srcID, edgeType, tgtType, tgtID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.upserts {
		for _, e := range p.Edges {
			if e.SrcType == srcType && e.SrcID == srcID &&
				e.EdgeType == edgeType && e.TgtType == tgtType && e.TgtID == tgtID {
				return true
			}
		}
	}
	return false
}

// String implements fmt.Stringer for debug output in failing tests.
func (f *Fake) String() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return fmt.Sprintf("gdbtest.Fake{graph=%s queries=%d upserts=%d}",
		f.Graph, len(f.queryCalls), len(f.upserts))
}
