package resilience

import (
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/kailas-cloud/docqa/internal/domain"
)

// BreakerConfig configures a circuit breaker around an external capability.
type BreakerConfig struct {
	Name         string
	FailureRatio float64       // trip when failures/requests reaches this ratio
	MinRequests  uint32        // ...over at least this many requests
	OpenTimeout  time.Duration // time spent open before probing again
	Interval     time.Duration // closed-state counter reset period; 0 never resets
	// OnStateChange observes transitions, e.g. to export a gauge.
	OnStateChange func(name string, from, to gobreaker.State)
}

// Breaker rejects calls while the wrapped capability keeps failing.
type Breaker struct {
	cb *gobreaker.CircuitBreaker
}

// NewBreaker creates a circuit breaker. Only transient failures count against it:
// a fatal error says nothing about the provider's availability.
func NewBreaker(cfg BreakerConfig, logger *zap.Logger) *Breaker {
	minReq := cfg.MinRequests
	if minReq == 0 {
		minReq = 5
	}
	ratio := cfg.FailureRatio
	if ratio <= 0 {
		ratio = 0.6
	}

	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Interval:    cfg.Interval,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < minReq {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= ratio
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !domain.IsTransient(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			if cfg.OnStateChange != nil {
				cfg.OnStateChange(name, from, to)
			}
		},
	}
	return &Breaker{cb: gobreaker.NewCircuitBreaker(settings)}
}

// Execute runs op through the breaker. While open, calls fail fast with an error
// wrapping domain.ErrTransientService.
func Execute[T any](b *Breaker, op func() (T, error)) (T, error) {
	res, err := b.cb.Execute(func() (any, error) {
		return op()
	})
	if err != nil {
		var zero T
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return zero, fmt.Errorf("%s: %w: %w", b.cb.Name(), err, domain.ErrTransientService)
		}
		return zero, err
	}
	return res.(T), nil //nolint:forcetypeassert // op always returns T
}

// State returns the breaker's current state.
func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}
