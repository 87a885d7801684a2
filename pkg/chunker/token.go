package chunker

import (
	"errors"

	"github.com/pkoukk/tiktoken-go"
)

// TokenChunker splits text into windows of model tokens using the
// o200k_base encoding, so chunk sizes line up with what the embedding
// and extraction models actually see.
type TokenChunker struct {
	chunkSize   int
	overlapSize int
	enc         *tiktoken.Tiktoken
}

// NewTokenChunker creates a token chunker. chunkSize defaults to 512
// tokens when zero; the overlap must be smaller than the chunk size.
func NewTokenChunker(chunkSize, overlapSize int) (*TokenChunker, error) {
	if chunkSize == 0 {
		chunkSize = 512
	}
	if chunkSize < 0 {
		return nil, errors.New("chunk size must be positive")
	}
	if overlapSize < 0 || overlapSize >= chunkSize {
		return nil, errors.New("overlap size must be smaller than chunk size")
	}
	enc, err := tiktoken.GetEncoding("o200k_base")
	if err != nil {
		return nil, err
	}
	return &TokenChunker{chunkSize: chunkSize, overlapSize: overlapSize, enc: enc}, nil
}

func (c *TokenChunker) Chunk(text string) ([]string, error) {
	tokens := c.enc.Encode(text, nil, nil)
	if len(tokens) == 0 {
		return nil, nil
	}

	step := c.chunkSize - c.overlapSize
	chunks := make([]string, 0, (len(tokens)+step-1)/step)
	for start := 0; start < len(tokens); start += step {
		end := start + c.chunkSize
		if end > len(tokens) {
			end = len(tokens)
		}
		chunks = append(chunks, c.enc.Decode(tokens[start:end]))
		if end == len(tokens) {
			break
		}
	}
	return chunks, nil
}
