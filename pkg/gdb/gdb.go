// Package gdb defines the connection contract to the remote graph database
// and the wire types used by its batched upsert endpoint.
package gdb

import "context"

// Connection is the transactional RPC surface the pipeline needs from the
// graph backend. Implementations must be safe for concurrent use; the caller
// is responsible for bounding in-flight requests.
type Connection interface {
	// GraphName returns the name of the graph this connection is bound to.
	GraphName() string

	// GetVer returns the backend version as a "major.minor.patch" string.
	GetVer(ctx context.Context) (string, error)

	// Schema introspection.
	GetVertexTypes(ctx context.Context) ([]string, error)
	GetEdgeTypes(ctx context.Context) ([]string, error)
	GetVertexAttrs(ctx context.Context, vertexType string) ([]string, error)
	GetEdgeAttrs(ctx context.Context, edgeType string) ([]string, error)

	// RunInstalledQuery invokes a named stored procedure with the given
	// parameters and returns its result rows.
	RunInstalledQuery(ctx context.Context, name string, params map[string]any) ([]map[string]any, error)

	// UpsertData applies a batched, idempotent vertex/edge write.
	UpsertData(ctx context.Context, payload *UpsertPayload) error

	// GSQL executes schema DDL or an ad hoc interpreted query and returns
	// the raw backend response.
	GSQL(ctx context.Context, text string) (string, error)
}
