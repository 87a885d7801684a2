package ecc

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/graphora-ai/graphora/pkg/ai"
	"github.com/graphora-ai/graphora/pkg/gdb"
	"github.com/graphora-ai/graphora/pkg/logger"
)

const summarizeSystemPrompt = `You are a helpful assistant responsible for ` +
	`generating a comprehensive summary of the data provided below. Given one ` +
	`or two entities, and a list of descriptions, all related to the same ` +
	`entity or group of entities, concatenate all of these into a single, ` +
	`comprehensive description. Make sure to include information collected ` +
	`from all the descriptions. If the provided descriptions are ` +
	`contradictory, resolve the contradictions and provide a single, coherent ` +
	`summary, but do not add any information that is not in the descriptions. ` +
	`Make sure it is written in third person, and include the entity names so ` +
	`we have the full context.`

// iteration counters and epoch tags embedded in community ids are
// stripped before the id is used as a human-readable title
var idSuffixPat = regexp.MustCompile(`[_\d]+`)

type communitySummary struct {
	Summary string `json:"summary" jsonschema_description:"Comprehensive third-person summary of the community"`
}

// SummaryResult is the per-community outcome of one summarization call.
// Failures are recorded, never propagated; the community's description
// stays unset and the next pass retries it.
type SummaryResult struct {
	Error   bool
	Summary string
	Message string
}

// Summarizer produces one coherent paragraph per community from its
// children's descriptions.
type Summarizer struct {
	client ai.Client
	gov    *Governor
}

func NewSummarizer(client ai.Client, gov *Governor) *Summarizer {
	return &Summarizer{client: client, gov: gov}
}

// Summarize merges a description list into a single paragraph titled by
// the community's stable name.
func (s *Summarizer) Summarize(ctx context.Context, name string, descriptions []string) SummaryResult {
	title := idSuffixPat.ReplaceAllString(name, "")
	if title == "" {
		title = name
	}

	prompt := fmt.Sprintf("Community Title: %s\nDescription List: %s",
		title, strings.Join(descriptions, "\n"))

	if err := s.gov.AcquireModel(ctx); err != nil {
		return SummaryResult{Error: true, Message: err.Error()}
	}
	defer s.gov.ReleaseModel()

	var out communitySummary
	err := s.client.GenerateCompletionWithFormat(
		ctx,
		"community_summary",
		"A single comprehensive paragraph describing a community of entities",
		prompt,
		&out,
		ai.WithSystemPrompts(summarizeSystemPrompt),
	)
	if err != nil {
		return SummaryResult{Error: true, Message: err.Error()}
	}
	return SummaryResult{Summary: out.Summary}
}

// Builder assigns communities with the graph's Louvain procedures and
// summarizes each level bottom-up. A level is only promoted once every
// community on it has a description.
type Builder struct {
	conn       gdb.Connection
	gov        *Governor
	queue      *Queue
	summarizer *Summarizer
	maxLevels  int
}

// BuilderParams configures a Builder. MaxLevels defaults to 3.
type BuilderParams struct {
	Conn       gdb.Connection
	Gov        *Governor
	Queue      *Queue
	Summarizer *Summarizer
	MaxLevels  int
}

func NewBuilder(params BuilderParams) *Builder {
	levels := params.MaxLevels
	if levels <= 0 {
		levels = 3
	}
	return &Builder{
		conn:       params.Conn,
		gov:        params.Gov,
		queue:      params.Queue,
		summarizer: params.Summarizer,
		maxLevels:  levels,
	}
}

func (b *Builder) query(ctx context.Context, name string, params map[string]any) ([]map[string]any, error) {
	if err := b.gov.AcquireGraph(ctx); err != nil {
		return nil, err
	}
	defer b.gov.ReleaseGraph()
	return b.conn.RunInstalledQuery(ctx, name, params)
}

// CommunitiesHaveDesc is the completion predicate for one level.
func (b *Builder) CommunitiesHaveDesc(ctx context.Context, level int) (bool, error) {
	res, err := b.query(ctx, "communities_have_desc", map[string]any{"iter": level})
	if err != nil {
		return false, Transient("communities_have_desc", err)
	}
	if len(res) == 0 {
		return false, Transient("communities_have_desc", fmt.Errorf("empty result"))
	}
	all, ok := res[0]["all_have_desc"].(bool)
	if !ok {
		return false, Transient("communities_have_desc", fmt.Errorf("missing all_have_desc flag"))
	}
	return all, nil
}

// communityChildren returns the description list for one community. At
// level 1 the children are entities carrying description sets: empties
// are filtered and a descriptionless entity falls back to its own id.
// Above level 1 each child community contributes its single description.
func (b *Builder) communityChildren(ctx context.Context, level int, community string) ([]string, error) {
	res, err := b.query(ctx, "get_community_children", map[string]any{
		"comm": community,
		"iter": level,
	})
	if err != nil {
		return nil, Transient("get_community_children", err)
	}
	if len(res) == 0 {
		return nil, nil
	}
	children, ok := res[0]["children"].([]any)
	if !ok {
		return nil, nil
	}

	var descrs []string
	for _, raw := range children {
		child, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		attrs, _ := child["attributes"].(map[string]any)
		vid, _ := child["v_id"].(string)

		if level == 1 {
			descs := stringList(attrs["description"])
			kept := descs[:0]
			for _, d := range descs {
				if len(d) > 0 {
					kept = append(kept, d)
				}
			}
			if len(kept) == 0 {
				kept = []string{vid}
			}
			descrs = append(descrs, kept...)
			continue
		}
		if desc, ok := attrs["description"].(string); ok {
			descrs = append(descrs, desc)
		}
	}
	return descrs, nil
}

func stringList(v any) []string {
	switch val := v.(type) {
	case []string:
		return val
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		return []string{val}
	default:
		return nil
	}
}

// streamCommunities lists community ids at one level.
func (b *Builder) streamCommunities(ctx context.Context, level int) ([]string, error) {
	res, err := b.query(ctx, "stream_community", map[string]any{"iter": level})
	if err != nil {
		return nil, Transient("stream_community", err)
	}
	ids, err := resultIDs(res)
	if err != nil {
		return nil, Transient("stream_community", err)
	}
	return ids, nil
}

// summarizeLevel writes a description for every community on the level
// that can be summarized. Per-community failures are logged and skipped.
func (b *Builder) summarizeLevel(ctx context.Context, level int) error {
	comms, err := b.streamCommunities(ctx, level)
	if err != nil {
		return err
	}

	for _, comm := range comms {
		descrs, err := b.communityChildren(ctx, level, comm)
		if err != nil {
			logger.Error("fetching community children failed",
				"community", comm, "level", level, "error", err)
			continue
		}

		result := b.summarizer.Summarize(ctx, comm, descrs)
		if result.Error {
			logger.Error("community summarization failed",
				"community", comm, "level", level, "message", result.Message)
			continue
		}

		b.queue.Put(VertexItem(gdb.Vertex{
			Type: TypeCommunity,
			ID:   comm,
			Attrs: gdb.MapAttrs(map[string]any{
				"description": result.Summary,
				"iter":        level,
			}),
		}))
	}
	return nil
}

// Build runs one community pass: Louvain assignment at level 1, then
// per-level summarization, promoting to the next coarser level only once
// every community on the current level has a description. An incomplete
// level ends the pass; the next tick picks it back up.
func (b *Builder) Build(ctx context.Context) error {
	if _, err := b.query(ctx, "graphrag_louvain_init", map[string]any{"n_batches": 1}); err != nil {
		return Transient("graphrag_louvain_init", err)
	}

	for level := 1; level <= b.maxLevels; level++ {
		if err := b.summarizeLevel(ctx, level); err != nil {
			return err
		}

		done, err := b.CommunitiesHaveDesc(ctx, level)
		if err != nil {
			return err
		}
		if !done {
			logger.Info("community level incomplete, deferring promotion",
				"graph", b.conn.GraphName(), "level", level)
			return nil
		}
		if level == b.maxLevels {
			break
		}

		if _, err := b.query(ctx, "graphrag_louvain_communities", map[string]any{
			"n_batches": 1,
			"iteration": level + 1,
		}); err != nil {
			return Transient("graphrag_louvain_communities", err)
		}
		next, err := b.streamCommunities(ctx, level+1)
		if err != nil {
			return err
		}
		if len(next) == 0 {
			break
		}
	}
	return nil
}
