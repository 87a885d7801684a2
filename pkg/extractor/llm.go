package extractor

import (
	"context"
	"fmt"
	"strings"

	"github.com/graphora-ai/graphora/pkg/ai"
	"github.com/graphora-ai/graphora/pkg/logger"
)

const extractionSystemPrompt = `You are a knowledge graph extraction system. ` +
	`Given a passage of text, extract the entities it mentions and the ` +
	`relationships between them. Give every entity a short definition based ` +
	`only on the passage. Do not include any explanations, only the extracted ` +
	`entities and relationships.`

type kgNode struct {
	ID         string `json:"id" jsonschema_description:"Name of the entity"`
	NodeType   string `json:"node_type" jsonschema_description:"Type of the entity"`
	Definition string `json:"definition" jsonschema_description:"Short definition of the entity from the passage"`
}

type kgRelationship struct {
	Source       string `json:"source" jsonschema_description:"Id of the source entity"`
	Target       string `json:"target" jsonschema_description:"Id of the target entity"`
	RelationType string `json:"relation_type" jsonschema_description:"Type of the relationship"`
	Definition   string `json:"definition" jsonschema_description:"Short definition of the relationship from the passage"`
}

type knowledgeGraph struct {
	Nodes []kgNode         `json:"nodes"`
	Rels  []kgRelationship `json:"rels"`
}

// LLMExtractor extracts knowledge graph fragments with a structured
// model call. When strict mode is on, extracted items whose normalized
// type is outside the allow-lists are dropped silently.
type LLMExtractor struct {
	client ai.Client

	allowedEntityTypes       []string
	allowedRelationshipTypes []string
	strictMode               bool
}

// LLMExtractorParams configures an LLMExtractor.
type LLMExtractorParams struct {
	Client ai.Client

	// AllowedEntityTypes and AllowedRelationshipTypes are offered to the
	// model as suggestions, and enforced as filters when StrictMode is set.
	AllowedEntityTypes       []string
	AllowedRelationshipTypes []string
	StrictMode               bool
}

// NewLLMExtractor normalizes the allow-lists the same way extracted
// types are normalized, so configured entries match whatever casing the
// operator used.
func NewLLMExtractor(params LLMExtractorParams) *LLMExtractor {
	return &LLMExtractor{
		client:                   params.Client,
		allowedEntityTypes:       normalizeAll(params.AllowedEntityTypes, NormalizeEntityType),
		allowedRelationshipTypes: normalizeAll(params.AllowedRelationshipTypes, NormalizeRelationshipType),
		strictMode:               params.StrictMode,
	}
}

func normalizeAll(ss []string, norm func(string) string) []string {
	if len(ss) == 0 {
		return nil
	}
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = norm(s)
	}
	return out
}

func (e *LLMExtractor) buildPrompt(text string) string {
	var b strings.Builder
	b.WriteString("Extract all entities and relationships from the following input:\n\n")
	b.WriteString(text)
	if len(e.allowedEntityTypes) > 0 || len(e.allowedRelationshipTypes) > 0 {
		b.WriteString("\n\nUse the following types if they are applicable. ")
		b.WriteString("If the input does not contain any of the types, you may create your own.")
	}
	if len(e.allowedEntityTypes) > 0 {
		fmt.Fprintf(&b, "\nAllowed entity types: %s", strings.Join(e.allowedEntityTypes, ", "))
	}
	if len(e.allowedRelationshipTypes) > 0 {
		fmt.Fprintf(&b, "\nAllowed relationship types: %s", strings.Join(e.allowedRelationshipTypes, ", "))
	}
	return b.String()
}

// Extract runs a structured extraction call for one chunk of text. Model
// and parse failures are logged and produce an empty Result; the error
// return is reserved for context cancellation.
func (e *LLMExtractor) Extract(ctx context.Context, text string) (Result, error) {
	var kg knowledgeGraph
	err := e.client.GenerateCompletionWithFormat(
		ctx,
		"knowledge_graph",
		"Entities and relationships extracted from a passage of text",
		e.buildPrompt(text),
		&kg,
		ai.WithSystemPrompts(extractionSystemPrompt),
	)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		logger.Warn("extraction failed, returning empty result", "error", err)
		return Result{}, nil
	}

	allowedEntities := toSet(e.allowedEntityTypes)
	allowedRels := toSet(e.allowedRelationshipTypes)

	res := Result{}
	for _, n := range kg.Nodes {
		if n.ID == "" {
			continue
		}
		typ := NormalizeEntityType(n.NodeType)
		if e.strictMode && len(allowedEntities) > 0 && !allowedEntities[typ] {
			continue
		}
		res.Entities = append(res.Entities, Entity{
			ID:          n.ID,
			Type:        typ,
			Description: n.Definition,
		})
	}
	for _, r := range kg.Rels {
		if r.Source == "" || r.Target == "" {
			continue
		}
		typ := NormalizeRelationshipType(r.RelationType)
		if e.strictMode && len(allowedRels) > 0 && !allowedRels[typ] {
			continue
		}
		res.Relationships = append(res.Relationships, Relationship{
			Source:      r.Source,
			Target:      r.Target,
			Type:        typ,
			Description: r.Definition,
		})
	}
	return res, nil
}

func toSet(ss []string) map[string]bool {
	if len(ss) == 0 {
		return nil
	}
	m := make(map[string]bool, len(ss))
	for _, s := range ss {
		m[s] = true
	}
	return m
}
