// Package snapshot publishes the current document's (index, corpus) pair as one
// immutable unit. Readers load a pointer and never observe a half-ingested document.
package snapshot

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/kailas-cloud/docqa/internal/corpus"
	"github.com/kailas-cloud/docqa/internal/domain"
	"github.com/kailas-cloud/docqa/internal/index"
	"github.com/kailas-cloud/docqa/internal/metrics"
)

// Snapshot is one ingested document: its vector index and chunk text, built together.
type Snapshot struct {
	DocumentID uuid.UUID
	Index      *index.Index
	Corpus     *corpus.Store
	IndexedAt  time.Time
}

// New pairs an index with its corpus under a fresh document id.
func New(ix *index.Index, c *corpus.Store) (*Snapshot, error) {
	s := &Snapshot{
		DocumentID: uuid.New(),
		Index:      ix,
		Corpus:     c,
		IndexedAt:  time.Now().UTC(),
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Snapshot) validate() error {
	if s == nil || s.Index == nil || s.Corpus == nil {
		return fmt.Errorf("incomplete snapshot: %w", domain.ErrInvalidInput)
	}
	if s.Index.Size() != s.Corpus.Len() {
		return fmt.Errorf("index has %d vectors but corpus has %d chunks: %w",
			s.Index.Size(), s.Corpus.Len(), domain.ErrInvalidInput)
	}
	return nil
}

// Holder owns the published snapshot. Zero value is ready to use and empty.
type Holder struct {
	current atomic.Pointer[Snapshot]
}

// NewHolder creates an empty holder.
func NewHolder() *Holder {
	return &Holder{}
}

// Publish replaces the current snapshot. The last successful publish wins.
func (h *Holder) Publish(s *Snapshot) error {
	if err := s.validate(); err != nil {
		return fmt.Errorf("publish snapshot: %w", err)
	}
	h.current.Store(s)

	metrics.SnapshotPublishesTotal.Inc()
	metrics.SnapshotChunks.Set(float64(s.Corpus.Len()))
	return nil
}

// Current returns the published snapshot.
func (h *Holder) Current() (*Snapshot, error) {
	s := h.current.Load()
	if s == nil {
		return nil, domain.ErrNoDocumentIndexed
	}
	return s, nil
}

// Loaded reports whether a document has been published.
func (h *Holder) Loaded() bool {
	return h.current.Load() != nil
}
