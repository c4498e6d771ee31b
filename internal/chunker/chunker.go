// Package chunker splits extracted document text into fixed-size retrievable units.
package chunker

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/kailas-cloud/docqa/internal/domain"
)

// DefaultMaxLen is the chunk size used when none is configured.
const DefaultMaxLen = 500

// Split cuts text into contiguous, non-overlapping pieces of at most maxLen characters.
// Characters are runes, so multi-byte text is never cut inside a code point.
// The last piece may be shorter. Concatenating the pieces yields text.
func Split(text string, maxLen int) ([]string, error) {
	if text == "" {
		return nil, fmt.Errorf("empty text: %w", domain.ErrInvalidInput)
	}
	if maxLen <= 0 {
		return nil, fmt.Errorf("max chunk length must be positive, got %d: %w", maxLen, domain.ErrInvalidInput)
	}

	pieces := make([]string, 0, utf8.RuneCountInString(text)/maxLen+1)
	start, runes := 0, 0
	for i := range text {
		if runes == maxLen {
			pieces = append(pieces, text[start:i])
			start, runes = i, 0
		}
		runes++
	}
	pieces = append(pieces, text[start:])
	return pieces, nil
}

// Chunker turns document text into sequentially numbered chunks.
type Chunker struct {
	maxLen int
}

// New creates a chunker. maxLen <= 0 falls back to DefaultMaxLen.
func New(maxLen int) *Chunker {
	if maxLen <= 0 {
		maxLen = DefaultMaxLen
	}
	return &Chunker{maxLen: maxLen}
}

// MaxLen returns the configured window size.
func (c *Chunker) MaxLen() int { return c.maxLen }

// Chunk splits text and assigns ids by position.
// Whitespace-only text is rejected: it would produce chunks with nothing to embed.
func (c *Chunker) Chunk(text string) ([]domain.Chunk, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("document has no text: %w", domain.ErrInvalidInput)
	}
	pieces, err := Split(text, c.maxLen)
	if err != nil {
		return nil, err
	}
	chunks := make([]domain.Chunk, len(pieces))
	for i, p := range pieces {
		chunks[i] = domain.Chunk{ID: i, Text: p}
	}
	return chunks, nil
}
