package chunker

import (
	"strings"
	"unicode/utf8"

	"docrag/internal/domain"
)

const (
	DefaultChunkSize      = 600
	DefaultOverlap        = 50
	DefaultMinChunkLength = 10
	DefaultMaxChunkSize   = 2000
)

// WindowChunker splits text into overlapping windows of whitespace-delimited
// words. Windows shorter than minChunkLength characters are dropped.
type WindowChunker struct {
	minChunkLength int
	maxChunkSize   int
}

// NewWindowChunker returns a chunker. maxChunkSize is capped at
// DefaultMaxChunkSize; non-positive values take the defaults.
func NewWindowChunker(minChunkLength, maxChunkSize int) *WindowChunker {
	if minChunkLength <= 0 {
		minChunkLength = DefaultMinChunkLength
	}
	if maxChunkSize <= 0 || maxChunkSize > DefaultMaxChunkSize {
		maxChunkSize = DefaultMaxChunkSize
	}
	return &WindowChunker{minChunkLength: minChunkLength, maxChunkSize: maxChunkSize}
}

// MinChunkLength returns the minimum character length of an emitted chunk.
func (c *WindowChunker) MinChunkLength() int { return c.minChunkLength }

// Split returns the chunks of text in window order. chunkSize and overlap
// are counted in words.
func (c *WindowChunker) Split(text string, chunkSize, overlap int) ([]string, error) {
	if err := c.Validate(text, chunkSize, overlap); err != nil {
		return nil, err
	}
	words := strings.Fields(text)
	if len(words) <= chunkSize {
		return []string{strings.TrimSpace(text)}, nil
	}

	step := chunkSize - overlap
	var chunks []string
	for i := 0; i < len(words); i += step {
		end := i + chunkSize
		if end > len(words) {
			end = len(words)
		}
		chunk := strings.Join(words[i:end], " ")
		if utf8.RuneCountInString(chunk) >= c.minChunkLength {
			chunks = append(chunks, chunk)
		}
		if i+chunkSize >= len(words) {
			break
		}
	}
	return chunks, nil
}

// Validate checks text and window sizes the way Split does.
func (c *WindowChunker) Validate(text string, chunkSize, overlap int) error {
	const op = "chunk"
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return domain.NewValidationError(op, "text cannot be empty or whitespace only")
	}
	if utf8.RuneCountInString(trimmed) < c.minChunkLength {
		return domain.NewValidationError(op, "text too short (minimum %d characters)", c.minChunkLength)
	}
	if chunkSize <= 0 {
		return domain.NewValidationError(op, "chunk size must be a positive integer, got %d", chunkSize)
	}
	if chunkSize > c.maxChunkSize {
		return domain.NewValidationError(op, "chunk size cannot exceed %d words, got %d", c.maxChunkSize, chunkSize)
	}
	if overlap < 0 {
		return domain.NewValidationError(op, "overlap must be non-negative, got %d", overlap)
	}
	if overlap >= chunkSize {
		return domain.NewValidationError(op, "overlap (%d) must be less than chunk size (%d)", overlap, chunkSize)
	}
	return nil
}
