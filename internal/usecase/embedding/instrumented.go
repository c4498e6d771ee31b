package embedding

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/docqa/internal/domain"
	"github.com/kailas-cloud/docqa/internal/metrics"
)

// DefaultMaxBatchSize caps the number of texts sent in one provider request.
const DefaultMaxBatchSize = 256

// BudgetChecker enforces the embedding token budget.
type BudgetChecker interface {
	Check(ctx context.Context) error
	Record(tokens int64)
	RemainingDaily() int64
	RemainingMonthly() int64
}

// InstrumentedConfig configures an InstrumentedEmbedder.
type InstrumentedConfig struct {
	Provider     string
	Model        string
	MaxBatchSize int
	// Budget is optional.
	Budget BudgetChecker
	Logger *zap.Logger
}

// InstrumentedEmbedder adds budget enforcement, sub-batching and logs on top of an embedder.
// Request and batch-size metrics live in the provider transport, which only sees calls that
// actually go out; this layer owns the budget gauges.
type InstrumentedEmbedder struct {
	inner        domain.Embedder
	provider     string
	model        string
	maxBatchSize int
	budget       BudgetChecker
	logger       *zap.Logger
}

// NewInstrumentedEmbedder wraps inner.
func NewInstrumentedEmbedder(inner domain.Embedder, cfg InstrumentedConfig) *InstrumentedEmbedder {
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = DefaultMaxBatchSize
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &InstrumentedEmbedder{
		inner:        inner,
		provider:     cfg.Provider,
		model:        cfg.Model,
		maxBatchSize: cfg.MaxBatchSize,
		budget:       cfg.Budget,
		logger:       cfg.Logger,
	}
}

func (p *InstrumentedEmbedder) fields(extra ...zap.Field) []zap.Field {
	return append([]zap.Field{zap.String("provider", p.provider), zap.String("model", p.model)}, extra...)
}

func (p *InstrumentedEmbedder) checkBudget(ctx context.Context, batch int) error {
	if p.budget == nil {
		return nil
	}
	if err := p.budget.Check(ctx); err != nil {
		p.logger.Error("Embedding budget exceeded", p.fields(zap.Int("batch_size", batch), zap.Error(err))...)
		return fmt.Errorf("budget check: %w", err)
	}
	return nil
}

// Embed vectorizes a single text (the query path).
func (p *InstrumentedEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	if err := p.checkBudget(ctx, 1); err != nil {
		return domain.EmbeddingResult{}, err
	}

	start := time.Now()
	result, err := p.inner.Embed(ctx, text)
	duration := time.Since(start)
	if err != nil {
		p.logger.Error("Embedding request failed", p.fields(zap.Duration("duration", duration), zap.Error(err))...)
		return domain.EmbeddingResult{}, fmt.Errorf("embed: %w", err)
	}

	p.record(result.TotalTokens)
	p.logger.Debug("Embedding request completed", p.fields(
		zap.Duration("duration", duration),
		zap.Int("dimensions", len(result.Embedding)),
		zap.Int("total_tokens", result.TotalTokens),
	)...)
	return result, nil
}

// BatchEmbed vectorizes texts in sub-batches of at most MaxBatchSize, in order.
// The budget is rechecked before every sub-batch.
func (p *InstrumentedEmbedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.BatchEmbeddingResult{}, nil
	}

	start := time.Now()
	out := domain.BatchEmbeddingResult{Embeddings: make([][]float32, 0, len(texts))}

	for offset := 0; offset < len(texts); offset += p.maxBatchSize {
		part := texts[offset:min(offset+p.maxBatchSize, len(texts))]
		if err := p.checkBudget(ctx, len(part)); err != nil {
			return domain.BatchEmbeddingResult{}, err
		}

		res, err := domain.EmbedAll(ctx, p.inner, part)
		if err != nil {
			p.logger.Error("Batch embedding request failed", p.fields(
				zap.Int("batch_offset", offset),
				zap.Int("batch_size", len(part)),
				zap.Error(err),
			)...)
			return domain.BatchEmbeddingResult{}, fmt.Errorf("batch embed at %d: %w", offset, err)
		}
		p.record(res.TotalTokens)

		out.Embeddings = append(out.Embeddings, res.Embeddings...)
		out.PromptTokens += res.PromptTokens
		out.TotalTokens += res.TotalTokens
	}

	p.logger.Debug("Batch embedding completed", p.fields(
		zap.Duration("duration", time.Since(start)),
		zap.Int("texts", len(texts)),
		zap.Int("total_tokens", out.TotalTokens),
	)...)
	return out, nil
}

// HealthCheck delegates to the wrapped embedder.
func (p *InstrumentedEmbedder) HealthCheck(ctx context.Context) error {
	if hc, ok := p.inner.(domain.HealthChecker); ok {
		return hc.HealthCheck(ctx) //nolint:wrapcheck // transparent decorator
	}
	return nil
}

func (p *InstrumentedEmbedder) record(tokens int) {
	if p.budget == nil || tokens <= 0 {
		return
	}
	p.budget.Record(int64(tokens))
	remaining := metrics.EmbeddingBudgetTokensRemaining
	remaining.WithLabelValues(p.provider, "daily").Set(float64(p.budget.RemainingDaily()))
	remaining.WithLabelValues(p.provider, "monthly").Set(float64(p.budget.RemainingMonthly()))
}
