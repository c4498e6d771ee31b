package embedding

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/docqa/internal/domain"
	"github.com/kailas-cloud/docqa/internal/metrics"
	"github.com/kailas-cloud/docqa/internal/resilience"
)

// RetryingEmbedder retries transient provider failures with exponential backoff.
// When attempts run out the last error is returned and still wraps ErrTransientService.
type RetryingEmbedder struct {
	inner  domain.Embedder
	policy resilience.RetryPolicy
}

// NewRetryingEmbedder wraps inner. Retryable and OnRetry on the policy are overridden.
func NewRetryingEmbedder(inner domain.Embedder, policy resilience.RetryPolicy, logger *zap.Logger) *RetryingEmbedder {
	if logger == nil {
		logger = zap.NewNop()
	}
	policy.Retryable = domain.IsTransient
	policy.OnRetry = func(err error, wait time.Duration) {
		metrics.ExternalRetriesTotal.WithLabelValues("embedding").Inc()
		logger.Warn("Retrying embedding request", zap.Duration("wait", wait), zap.Error(err))
	}
	return &RetryingEmbedder{inner: inner, policy: policy}
}

// Embed retries a single-text embedding.
func (r *RetryingEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	res, err := resilience.Retry(ctx, r.policy, func(ctx context.Context) (domain.EmbeddingResult, error) {
		return r.inner.Embed(ctx, text) //nolint:wrapcheck // wrapped below
	})
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("embed with retry: %w", err)
	}
	return res, nil
}

// BatchEmbed retries the whole batch; the provider call is all-or-nothing.
func (r *RetryingEmbedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	res, err := resilience.Retry(ctx, r.policy, func(ctx context.Context) (domain.BatchEmbeddingResult, error) {
		return domain.EmbedAll(ctx, r.inner, texts)
	})
	if err != nil {
		return domain.BatchEmbeddingResult{}, fmt.Errorf("batch embed with retry: %w", err)
	}
	return res, nil
}

// HealthCheck is not retried.
func (r *RetryingEmbedder) HealthCheck(ctx context.Context) error {
	if hc, ok := r.inner.(domain.HealthChecker); ok {
		return hc.HealthCheck(ctx) //nolint:wrapcheck // transparent decorator
	}
	return nil
}
