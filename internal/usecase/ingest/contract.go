package ingest

import (
	"context"

	"github.com/kailas-cloud/docqa/internal/domain"
	"github.com/kailas-cloud/docqa/internal/snapshot"
)

// Chunker splits a document into id-ordered chunks.
type Chunker interface {
	Chunk(text string) ([]domain.Chunk, error)
}

// Embedder vectorizes chunk texts. BatchEmbedder implementations are used when available.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}

// Publisher swaps in the new document snapshot.
type Publisher interface {
	Publish(s *snapshot.Snapshot) error
}
