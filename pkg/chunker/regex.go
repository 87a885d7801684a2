package chunker

import (
	"regexp"
	"strings"
)

// RegexChunker splits text on a regular expression. Empty segments are
// dropped so that consecutive separators do not produce blank chunks.
type RegexChunker struct {
	pattern *regexp.Regexp
}

// NewRegexChunker compiles the split pattern. An empty pattern defaults
// to line breaks.
func NewRegexChunker(pattern string) (*RegexChunker, error) {
	if pattern == "" {
		pattern = `\r?\n`
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	return &RegexChunker{pattern: re}, nil
}

func (c *RegexChunker) Chunk(text string) ([]string, error) {
	parts := c.pattern.Split(text, -1)
	chunks := make([]string, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p) == "" {
			continue
		}
		chunks = append(chunks, p)
	}
	return chunks, nil
}
