package chunker

import (
	"strings"
)

// MarkdownChunker splits markdown along heading boundaries, keeping each
// section's heading with its body. Sections larger than the chunk size
// are further split by a character chunker so no chunk exceeds the
// configured size.
type MarkdownChunker struct {
	chunkSize int
	fallback  *CharacterChunker
}

// NewMarkdownChunker creates a markdown chunker. chunkSize defaults to
// 1024 when zero.
func NewMarkdownChunker(chunkSize, overlapSize int) (*MarkdownChunker, error) {
	if chunkSize == 0 {
		chunkSize = 1024
	}
	fallback, err := NewCharacterChunker(chunkSize, overlapSize)
	if err != nil {
		return nil, err
	}
	return &MarkdownChunker{chunkSize: chunkSize, fallback: fallback}, nil
}

func isHeading(line string) bool {
	trimmed := strings.TrimLeft(line, " ")
	if !strings.HasPrefix(trimmed, "#") {
		return false
	}
	rest := strings.TrimLeft(trimmed, "#")
	return rest == "" || strings.HasPrefix(rest, " ")
}

func (c *MarkdownChunker) Chunk(text string) ([]string, error) {
	lines := strings.Split(text, "\n")

	sections := make([]string, 0)
	var current strings.Builder
	inFence := false
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inFence = !inFence
		}
		// headings inside code fences are literal text
		if !inFence && isHeading(line) && current.Len() > 0 {
			sections = append(sections, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteString("\n")
		}
		current.WriteString(line)
	}
	if current.Len() > 0 {
		sections = append(sections, current.String())
	}

	chunks := make([]string, 0, len(sections))
	for _, s := range sections {
		if strings.TrimSpace(s) == "" {
			continue
		}
		if len([]rune(s)) <= c.chunkSize {
			chunks = append(chunks, s)
			continue
		}
		sub, err := c.fallback.Chunk(s)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, sub...)
	}
	return chunks, nil
}
