package chunker

import (
	"strings"
	"testing"
)

func TestNewSelectsStrategy(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "character", cfg: Config{Type: "character", ChunkSize: 100}},
		{name: "regex", cfg: Config{Type: "regex", Pattern: `\n\n`}},
		{name: "markdown", cfg: Config{Type: "markdown", ChunkSize: 100}},
		{name: "token", cfg: Config{Type: "token", ChunkSize: 64}},
		{name: "unknown type", cfg: Config{Type: "semantic"}, wantErr: true},
		{name: "empty type", cfg: Config{}, wantErr: true},
		{name: "bad regex", cfg: Config{Type: "regex", Pattern: "("}, wantErr: true},
		{name: "overlap too large", cfg: Config{Type: "character", ChunkSize: 10, OverlapSize: 10}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.cfg)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got chunker %T", c)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if c == nil {
				t.Fatal("expected chunker, got nil")
			}
		})
	}
}

func TestCharacterChunker(t *testing.T) {
	c, err := NewCharacterChunker(4, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	chunks, err := c.Chunk("abcdefghij")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"abcd", "efgh", "ij"}
	if len(chunks) != len(want) {
		t.Fatalf("got %d chunks, want %d: %v", len(chunks), len(want), chunks)
	}
	for i := range want {
		if chunks[i] != want[i] {
			t.Errorf("chunk %d: got %q want %q", i, chunks[i], want[i])
		}
	}
}

func TestCharacterChunkerOverlap(t *testing.T) {
	c, err := NewCharacterChunker(4, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	chunks, err := c.Chunk("abcdefgh")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"abcd", "cdef", "efgh"}
	if len(chunks) != len(want) {
		t.Fatalf("got %d chunks, want %d: %v", len(chunks), len(want), chunks)
	}
	for i := range want {
		if chunks[i] != want[i] {
			t.Errorf("chunk %d: got %q want %q", i, chunks[i], want[i])
		}
	}
}

func TestCharacterChunkerEmptyInput(t *testing.T) {
	c, err := NewCharacterChunker(4, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	chunks, err := c.Chunk("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 0 {
		t.Fatalf("expected no chunks, got %v", chunks)
	}
}

func TestRegexChunker(t *testing.T) {
	c, err := NewRegexChunker("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	chunks, err := c.Chunk("first line\n\nsecond line\r\nthird line")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"first line", "second line", "third line"}
	if len(chunks) != len(want) {
		t.Fatalf("got %d chunks, want %d: %v", len(chunks), len(want), chunks)
	}
	for i := range want {
		if chunks[i] != want[i] {
			t.Errorf("chunk %d: got %q want %q", i, chunks[i], want[i])
		}
	}
}

func TestMarkdownChunkerSplitsOnHeadings(t *testing.T) {
	c, err := NewMarkdownChunker(1024, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	text := "# Title\nintro text\n## Section A\nbody a\n## Section B\nbody b"
	chunks, err := c.Chunk(text)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3: %v", len(chunks), chunks)
	}
	if !strings.HasPrefix(chunks[0], "# Title") {
		t.Errorf("chunk 0 should start with title heading, got %q", chunks[0])
	}
	if !strings.Contains(chunks[1], "body a") {
		t.Errorf("chunk 1 should keep section body with heading, got %q", chunks[1])
	}
}

func TestMarkdownChunkerIgnoresHeadingsInCodeFence(t *testing.T) {
	c, err := NewMarkdownChunker(1024, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	text := "# Title\n```\n# not a heading\n```\nafter fence"
	chunks, err := c.Chunk(text)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1: %v", len(chunks), chunks)
	}
}

func TestMarkdownChunkerSplitsOversizedSection(t *testing.T) {
	c, err := NewMarkdownChunker(10, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	chunks, err := c.Chunk("# T\n" + strings.Repeat("x", 50))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) < 2 {
		t.Fatalf("expected oversized section to be split, got %v", chunks)
	}
	for i, ch := range chunks {
		if len([]rune(ch)) > 10 {
			t.Errorf("chunk %d exceeds size limit: %q", i, ch)
		}
	}
}

func TestTokenChunkerRoundTripsText(t *testing.T) {
	c, err := NewTokenChunker(8, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	text := "The quick brown fox jumps over the lazy dog. " +
		"Pack my box with five dozen liquor jugs."
	chunks, err := c.Chunk(text)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %v", chunks)
	}
	if strings.Join(chunks, "") != text {
		t.Errorf("concatenated chunks should reproduce input with zero overlap")
	}
}
