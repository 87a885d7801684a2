package chunker

import (
	"errors"
)

// CharacterChunker splits text into fixed-size windows of runes with an
// optional overlap between adjacent windows.
type CharacterChunker struct {
	chunkSize   int
	overlapSize int
}

// NewCharacterChunker creates a character chunker. chunkSize defaults to
// 1024 when zero; the overlap must be smaller than the chunk size.
func NewCharacterChunker(chunkSize, overlapSize int) (*CharacterChunker, error) {
	if chunkSize == 0 {
		chunkSize = 1024
	}
	if chunkSize < 0 {
		return nil, errors.New("chunk size must be positive")
	}
	if overlapSize < 0 || overlapSize >= chunkSize {
		return nil, errors.New("overlap size must be smaller than chunk size")
	}
	return &CharacterChunker{chunkSize: chunkSize, overlapSize: overlapSize}, nil
}

func (c *CharacterChunker) Chunk(text string) ([]string, error) {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil, nil
	}

	step := c.chunkSize - c.overlapSize
	chunks := make([]string, 0, (len(runes)+step-1)/step)
	for start := 0; start < len(runes); start += step {
		end := start + c.chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return chunks, nil
}
