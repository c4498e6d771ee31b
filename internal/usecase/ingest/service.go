// Package ingest turns a document into a queryable snapshot.
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kailas-cloud/docqa/internal/corpus"
	"github.com/kailas-cloud/docqa/internal/domain"
	"github.com/kailas-cloud/docqa/internal/index"
	"github.com/kailas-cloud/docqa/internal/logger"
	"github.com/kailas-cloud/docqa/internal/snapshot"
)

// DefaultMaxDocumentBytes bounds accepted document text.
const DefaultMaxDocumentBytes = 10 << 20

// StatusIndexed is reported after a successful ingestion.
const StatusIndexed = "indexed"

// Result describes the published document.
type Result struct {
	Status     string
	ChunkCount int
	DocumentID uuid.UUID
}

// Service chunks, embeds and indexes a document, then publishes it in one swap.
// Nothing is published when any step fails; the previous document stays current.
type Service struct {
	chunker   Chunker
	embed     Embedder
	publisher Publisher
	maxBytes  int
	indexOpts []index.Option
}

// New creates an ingestion service.
func New(chunker Chunker, embed Embedder, publisher Publisher) *Service {
	return &Service{
		chunker:   chunker,
		embed:     embed,
		publisher: publisher,
		maxBytes:  DefaultMaxDocumentBytes,
	}
}

// WithMaxDocumentBytes overrides the document size limit.
func (s *Service) WithMaxDocumentBytes(n int) *Service {
	if n > 0 {
		s.maxBytes = n
	}
	return s
}

// WithIndexOptions passes options to every index build.
func (s *Service) WithIndexOptions(opts ...index.Option) *Service {
	s.indexOpts = append(s.indexOpts, opts...)
	return s
}

// Ingest replaces the current document with text.
func (s *Service) Ingest(ctx context.Context, text string) (Result, error) {
	if len(text) > s.maxBytes {
		return Result{}, fmt.Errorf("document is %d bytes, limit %d: %w", len(text), s.maxBytes, domain.ErrInvalidInput)
	}

	chunks, err := s.chunker.Chunk(text)
	if err != nil {
		return Result{}, fmt.Errorf("chunk document: %w", err)
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	start := time.Now()
	emb, err := domain.EmbedAll(ctx, s.embed, texts)
	if err != nil {
		return Result{}, fmt.Errorf("embed %d chunks: %w", len(chunks), err)
	}
	domain.UsageFromContext(ctx).AddEmbeddingTokens(emb.TotalTokens)

	ix, err := index.Build(emb.Embeddings, s.indexOpts...)
	if err != nil {
		return Result{}, fmt.Errorf("build index: %w", err)
	}
	store, err := corpus.New(chunks)
	if err != nil {
		return Result{}, fmt.Errorf("build corpus: %w", err)
	}
	snap, err := snapshot.New(ix, store)
	if err != nil {
		return Result{}, fmt.Errorf("assemble snapshot: %w", err)
	}
	if err := s.publisher.Publish(snap); err != nil {
		return Result{}, err //nolint:wrapcheck // already wrapped by the holder
	}

	logger.FromContext(ctx).Info("Document indexed",
		zap.String("document_id", snap.DocumentID.String()),
		zap.Int("chunks", len(chunks)),
		zap.Int("dimensions", ix.Dim()),
		zap.Int("embedding_tokens", emb.TotalTokens),
		zap.Duration("embed_duration", time.Since(start)),
	)

	return Result{Status: StatusIndexed, ChunkCount: len(chunks), DocumentID: snap.DocumentID}, nil
}
