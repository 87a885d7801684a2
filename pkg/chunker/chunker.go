// Package chunker splits document text into chunks suitable for
// embedding and knowledge extraction. The strategy is resolved once at
// startup; callers hold a concrete Chunker for the lifetime of the
// process.
package chunker

import (
	"fmt"
)

// Chunker splits input text into an ordered list of chunks.
type Chunker interface {
	Chunk(text string) ([]string, error)
}

// Config selects and parameterizes a chunking strategy.
type Config struct {
	// Type is one of "character", "regex", "markdown" or "token".
	Type string

	// ChunkSize is the target chunk size for the character, markdown and
	// token strategies. Characters for the former two, tokens for the
	// latter.
	ChunkSize int

	// OverlapSize is the amount carried over between adjacent chunks.
	OverlapSize int

	// Pattern is the split pattern for the regex strategy.
	Pattern string
}

// New resolves a Config into a concrete Chunker. Unknown types are an
// error, not a fallback.
func New(cfg Config) (Chunker, error) {
	switch cfg.Type {
	case "character":
		return NewCharacterChunker(cfg.ChunkSize, cfg.OverlapSize)
	case "regex":
		return NewRegexChunker(cfg.Pattern)
	case "markdown":
		return NewMarkdownChunker(cfg.ChunkSize, cfg.OverlapSize)
	case "token":
		return NewTokenChunker(cfg.ChunkSize, cfg.OverlapSize)
	default:
		return nil, fmt.Errorf("invalid chunker type: %q", cfg.Type)
	}
}
