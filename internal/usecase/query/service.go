// Package query answers questions about the current document.
package query

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kailas-cloud/docqa/internal/domain"
	"github.com/kailas-cloud/docqa/internal/logger"
)

// Service runs retrieve, synthesize and source-clause resolution against one snapshot.
type Service struct {
	retriever   Retriever
	synthesizer Synthesizer
}

// New creates a query service.
func New(retriever Retriever, synthesizer Synthesizer) *Service {
	return &Service{retriever: retriever, synthesizer: synthesizer}
}

// Ask answers question. The result always holds exactly one answer.
func (s *Service) Ask(ctx context.Context, question string) ([]domain.Answer, error) {
	ret, err := s.retriever.Retrieve(ctx, question, 0)
	if err != nil {
		return nil, fmt.Errorf("retrieve: %w", err)
	}
	ctx = logger.WithFields(ctx, zap.String("document_id", ret.Snapshot.DocumentID.String()))

	chunks, err := ret.Chunks()
	if err != nil {
		return nil, err //nolint:wrapcheck // wrapped by Chunks
	}

	ans, err := s.synthesizer.Synthesize(ctx, question, ret.Hits, chunks)
	if err != nil {
		return nil, fmt.Errorf("synthesize: %w", err)
	}

	cited, err := ret.Snapshot.Corpus.Get(ans.CitedChunkID)
	if err != nil {
		return nil, fmt.Errorf("resolve source clause: %w", err)
	}
	ans.SourceClause = cited.Text

	logger.FromContext(ctx).Debug("Question answered",
		zap.Ints("retrieved", ret.Hits.IDs()),
		zap.Int("cited", ans.CitedChunkID),
		zap.Float32("confidence", ans.Confidence),
	)
	return []domain.Answer{ans}, nil
}
