// Package generation guards the answer generator with retries and a circuit breaker.
package generation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/kailas-cloud/docqa/internal/domain"
	"github.com/kailas-cloud/docqa/internal/metrics"
	"github.com/kailas-cloud/docqa/internal/resilience"
)

// Config configures a Resilient generator.
type Config struct {
	// Retry.MaxAttempts of 1 disables retries.
	Retry   resilience.RetryPolicy
	Breaker resilience.BreakerConfig
	Logger  *zap.Logger
}

// Resilient retries transient generation failures and stops calling the provider
// while it keeps failing. Every attempt passes through the breaker.
type Resilient struct {
	inner   domain.Generator
	retry   resilience.RetryPolicy
	breaker *resilience.Breaker
	logger  *zap.Logger
}

// NewResilient wraps inner.
func NewResilient(inner domain.Generator, cfg Config) *Resilient {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Breaker.Name == "" {
		cfg.Breaker.Name = "generation"
	}

	observe := cfg.Breaker.OnStateChange
	cfg.Breaker.OnStateChange = func(name string, from, to gobreaker.State) {
		metrics.GenerationBreakerState.WithLabelValues(name).Set(float64(to))
		if observe != nil {
			observe(name, from, to)
		}
	}
	metrics.GenerationBreakerState.WithLabelValues(cfg.Breaker.Name).Set(float64(gobreaker.StateClosed))

	policy := cfg.Retry
	policy.Retryable = domain.IsTransient
	policy.OnRetry = func(err error, wait time.Duration) {
		metrics.ExternalRetriesTotal.WithLabelValues("generation").Inc()
		logger.Warn("Retrying generation request", zap.Duration("wait", wait), zap.Error(err))
	}

	return &Resilient{
		inner:   inner,
		retry:   policy,
		breaker: resilience.NewBreaker(cfg.Breaker, logger),
		logger:  logger,
	}
}

// Generate calls the inner generator under retry and breaker protection.
// Errors keep wrapping ErrGeneration.
func (r *Resilient) Generate(ctx context.Context, prompt string) (domain.GenerationResult, error) {
	res, err := resilience.Retry(ctx, r.retry, func(ctx context.Context) (domain.GenerationResult, error) {
		return resilience.Execute(r.breaker, func() (domain.GenerationResult, error) {
			return r.inner.Generate(ctx, prompt) //nolint:wrapcheck // classified by the provider
		})
	})
	if err != nil {
		// Provider errors already carry ErrGeneration; breaker rejections do not.
		if errors.Is(err, domain.ErrGeneration) {
			return domain.GenerationResult{}, err
		}
		return domain.GenerationResult{}, fmt.Errorf("%w: %w", domain.ErrGeneration, err)
	}
	return res, nil
}

// State exposes the breaker state.
func (r *Resilient) State() gobreaker.State {
	return r.breaker.State()
}

// HealthCheck reports an open breaker as unhealthy, then delegates.
func (r *Resilient) HealthCheck(ctx context.Context) error {
	if r.breaker.State() == gobreaker.StateOpen {
		return fmt.Errorf("circuit breaker open: %w", domain.ErrTransientService)
	}
	if hc, ok := r.inner.(domain.HealthChecker); ok {
		return hc.HealthCheck(ctx) //nolint:wrapcheck // transparent decorator
	}
	return nil
}
