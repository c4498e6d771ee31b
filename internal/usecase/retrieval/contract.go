package retrieval

import (
	"context"

	"github.com/kailas-cloud/docqa/internal/domain"
	"github.com/kailas-cloud/docqa/internal/snapshot"
)

// Embedder vectorizes the question.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}

// SnapshotSource returns the published document.
type SnapshotSource interface {
	Current() (*snapshot.Snapshot, error)
}
