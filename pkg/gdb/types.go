package gdb

// AttrValue is the tagged value shape the upsert endpoint expects for a
// single attribute: a value plus an optional accumulation operator.
type AttrValue struct {
	Value any    `json:"value"`
	Op    string `json:"op,omitempty"`
}

// Attrs maps attribute names to their tagged values.
type Attrs map[string]AttrValue

// OpValue marks an attribute write with an accumulation operator ("add",
// "max", ...) instead of a plain overwrite. Pass it through MapAttrs.
type OpValue struct {
	Value any
	Op    string
}

// KeyList is the wire shape of a map-typed attribute value.
type KeyList struct {
	KeyList   []any `json:"keylist"`
	ValueList []any `json:"valuelist"`
}

// MapAttrs converts a plain attribute map into the tagged wire shape.
// OpValue entries become {value, op} pairs and map values become
// keylist/valuelist records; everything else is a plain value.
func MapAttrs(attributes map[string]any) Attrs {
	attrs := make(Attrs, len(attributes))
	for k, v := range attributes {
		switch val := v.(type) {
		case OpValue:
			attrs[k] = AttrValue{Value: val.Value, Op: val.Op}
		case map[string]any:
			keys := make([]any, 0, len(val))
			values := make([]any, 0, len(val))
			for mk, mv := range val {
				keys = append(keys, mk)
				values = append(values, mv)
			}
			attrs[k] = AttrValue{Value: KeyList{KeyList: keys, ValueList: values}}
		default:
			attrs[k] = AttrValue{Value: v}
		}
	}
	return attrs
}

// Vertex is a single vertex write destined for the upsert endpoint.
type Vertex struct {
	Type  string
	ID    string
	Attrs Attrs
}

// Edge is a single directed edge write destined for the upsert endpoint.
// Upserting the same (src, type, tgt) tuple twice is a no-op beyond
// attribute overwrite.
type Edge struct {
	SrcType  string `json:"src_type"`
	SrcID    string `json:"src_id"`
	EdgeType string `json:"edge_type"`
	TgtType  string `json:"tgt_type"`
	TgtID    string `json:"tgt_id"`
	Attrs    Attrs  `json:"attributes,omitempty"`
}

// UpsertPayload is the batched write shape the graph's upsert endpoint
// accepts: vertices grouped by type and id, edges as a flat list.
type UpsertPayload struct {
	Vertices map[string]map[string]Attrs `json:"vertices,omitempty"`
	Edges    []Edge                      `json:"edges,omitempty"`
}

// AddVertex merges a vertex into the payload. Attributes of an id already
// present are overwritten key by key, so evidence accumulated by the caller
// survives repeated adds.
func (p *UpsertPayload) AddVertex(v Vertex) {
	if p.Vertices == nil {
		p.Vertices = make(map[string]map[string]Attrs)
	}
	byID, ok := p.Vertices[v.Type]
	if !ok {
		byID = make(map[string]Attrs)
		p.Vertices[v.Type] = byID
	}
	existing, ok := byID[v.ID]
	if !ok {
		byID[v.ID] = v.Attrs
		return
	}
	for k, val := range v.Attrs {
		existing[k] = val
	}
}

// AddEdge appends an edge to the payload in enqueue order.
func (p *UpsertPayload) AddEdge(e Edge) {
	p.Edges = append(p.Edges, e)
}

// Empty reports whether the payload carries no writes.
func (p *UpsertPayload) Empty() bool {
	return len(p.Vertices) == 0 && len(p.Edges) == 0
}
