// Package extractor turns chunk text into knowledge graph fragments:
// typed entities and the relationships between them, each carrying a
// short definition.
package extractor

import (
	"context"
	"strings"
)

// Entity is a single extracted node. Type is normalized to
// Capitalized_underscore form.
type Entity struct {
	ID          string
	Type        string
	Description string
}

// Relationship connects two extracted entities by id. Type is normalized
// to UPPER_UNDERSCORE form.
type Relationship struct {
	Source      string
	Target      string
	Type        string
	Description string
}

// Result is the extraction output for one chunk. A failed extraction
// yields an empty Result rather than an error so a bad chunk never
// poisons its siblings.
type Result struct {
	Entities      []Entity
	Relationships []Relationship
}

// Extractor extracts entities and relationships from a piece of text.
type Extractor interface {
	Extract(ctx context.Context, text string) (Result, error)
}

// NormalizeEntityType converts a raw model-produced node type into
// Capitalized_underscore form ("city council" -> "City_council").
func NormalizeEntityType(t string) string {
	t = strings.ReplaceAll(t, " ", "_")
	if t == "" {
		return t
	}
	return strings.ToUpper(t[:1]) + strings.ToLower(t[1:])
}

// NormalizeRelationshipType converts a raw relation type into
// UPPER_UNDERSCORE form ("is part of" -> "IS_PART_OF").
func NormalizeRelationshipType(t string) string {
	return strings.ToUpper(strings.ReplaceAll(t, " ", "_"))
}
