// Package corpus holds the chunk text of the currently loaded document.
package corpus

import (
	"fmt"

	"github.com/kailas-cloud/docqa/internal/domain"
)

// Store maps chunk ids to chunk text.
// A Store that has been published in a snapshot must not be Put again;
// ingestion always builds a fresh one.
type Store struct {
	chunks []domain.Chunk
}

// New creates a store holding chunks.
func New(chunks []domain.Chunk) (*Store, error) {
	s := &Store{}
	if err := s.Put(chunks); err != nil {
		return nil, err
	}
	return s, nil
}

// Put replaces the stored sequence. Chunk ids must equal their positions and texts
// must be non-empty. On error the previous contents are kept.
func (s *Store) Put(chunks []domain.Chunk) error {
	next := make([]domain.Chunk, len(chunks))
	for i, c := range chunks {
		if c.ID != i {
			return fmt.Errorf("chunk at position %d has id %d: %w", i, c.ID, domain.ErrInvalidInput)
		}
		if c.Text == "" {
			return fmt.Errorf("chunk %d is empty: %w", i, domain.ErrInvalidInput)
		}
		next[i] = c
	}
	s.chunks = next
	return nil
}

// Get returns the chunk with the given id.
func (s *Store) Get(id int) (domain.Chunk, error) {
	if s == nil || id < 0 || id >= len(s.chunks) {
		return domain.Chunk{}, fmt.Errorf("chunk %d: %w", id, domain.ErrNotFound)
	}
	return s.chunks[id], nil
}

// GetMany resolves ids in order, failing on the first unknown id.
func (s *Store) GetMany(ids []int) ([]domain.Chunk, error) {
	out := make([]domain.Chunk, len(ids))
	for i, id := range ids {
		c, err := s.Get(id)
		if err != nil {
			return nil, err
		}
		out[i] = c
	}
	return out, nil
}

// Len returns the number of chunks. Zero for a nil store.
func (s *Store) Len() int {
	if s == nil {
		return 0
	}
	return len(s.chunks)
}
