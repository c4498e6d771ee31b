package query

import (
	"context"

	"github.com/kailas-cloud/docqa/internal/domain"
	"github.com/kailas-cloud/docqa/internal/domain/retrieval/result"
	"github.com/kailas-cloud/docqa/internal/usecase/retrieval"
)

// Retriever finds the chunks relevant to a question.
type Retriever interface {
	Retrieve(ctx context.Context, question string, k int) (retrieval.Retrieval, error)
}

// Synthesizer produces a cited answer from retrieved chunks.
type Synthesizer interface {
	Synthesize(ctx context.Context, question string, hits result.Hits, chunks []domain.Chunk) (domain.Answer, error)
}
