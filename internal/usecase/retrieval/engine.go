// Package retrieval finds the chunks closest to a question in the current document.
package retrieval

import (
	"context"
	"fmt"
	"strings"

	"github.com/kailas-cloud/docqa/internal/domain"
	"github.com/kailas-cloud/docqa/internal/domain/retrieval/result"
	"github.com/kailas-cloud/docqa/internal/metrics"
	"github.com/kailas-cloud/docqa/internal/snapshot"
)

// DefaultK is the number of chunks retrieved per question.
const DefaultK = 3

// Retrieval holds hits and the snapshot they were computed against.
// Chunk text must be resolved from this Snapshot, never from a fresher one.
type Retrieval struct {
	Hits     result.Hits
	Snapshot *snapshot.Snapshot
}

// Chunks returns the text of every hit, in hit order.
func (r Retrieval) Chunks() ([]domain.Chunk, error) {
	chunks, err := r.Snapshot.Corpus.GetMany(r.Hits.IDs())
	if err != nil {
		return nil, fmt.Errorf("resolve hit chunks: %w", err)
	}
	return chunks, nil
}

// Engine embeds questions and searches the current snapshot.
type Engine struct {
	embed    Embedder
	source   SnapshotSource
	defaultK int
}

// New creates a retrieval engine. defaultK <= 0 uses DefaultK.
func New(embed Embedder, source SnapshotSource, defaultK int) *Engine {
	if defaultK <= 0 {
		defaultK = DefaultK
	}
	return &Engine{embed: embed, source: source, defaultK: defaultK}
}

// DefaultK returns the k used when Retrieve is called with k <= 0.
func (e *Engine) DefaultK() int { return e.defaultK }

// Retrieve returns up to k hits for question. The snapshot is loaded once, before embedding.
func (e *Engine) Retrieve(ctx context.Context, question string, k int) (Retrieval, error) {
	snap, err := e.source.Current()
	if err != nil {
		return Retrieval{}, fmt.Errorf("load snapshot: %w", err)
	}
	if strings.TrimSpace(question) == "" {
		return Retrieval{}, fmt.Errorf("question is empty: %w", domain.ErrInvalidInput)
	}
	if k <= 0 {
		k = e.defaultK
	}

	emb, err := e.embed.Embed(ctx, question)
	if err != nil {
		return Retrieval{}, fmt.Errorf("vectorize question: %w", err)
	}
	domain.UsageFromContext(ctx).AddEmbeddingTokens(emb.TotalTokens)

	hits, err := snap.Index.Search(emb.Embedding, k)
	if err != nil {
		return Retrieval{}, fmt.Errorf("search index: %w", err)
	}
	if top, ok := hits.Top(); ok {
		metrics.RetrievalTopScore.Observe(float64(top.Score()))
	}

	return Retrieval{Hits: hits, Snapshot: snap}, nil
}
