package generation

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sony/gobreaker"

	"github.com/kailas-cloud/docqa/internal/domain"
	"github.com/kailas-cloud/docqa/internal/metrics"
	"github.com/kailas-cloud/docqa/internal/resilience"
)

func TestMain(m *testing.M) {
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterPipelineMetrics()
	os.Exit(m.Run())
}

type scriptedGenerator struct {
	errs  []error
	calls int
}

func (g *scriptedGenerator) Generate(context.Context, string) (domain.GenerationResult, error) {
	g.calls++
	if g.calls <= len(g.errs) && g.errs[g.calls-1] != nil {
		return domain.GenerationResult{}, g.errs[g.calls-1]
	}
	return domain.GenerationResult{Text: "answer [0]"}, nil
}

func newTestResilient(inner domain.Generator, attempts int, name string) *Resilient {
	return NewResilient(inner, Config{
		Retry: resilience.RetryPolicy{
			MaxAttempts:     attempts,
			InitialInterval: time.Millisecond,
			MaxInterval:     time.Millisecond,
			Multiplier:      1,
		},
		Breaker: resilience.BreakerConfig{
			Name:         name,
			FailureRatio: 0.5,
			MinRequests:  4,
			OpenTimeout:  time.Minute,
		},
	})
}

func transient() error {
	return errors.Join(domain.ErrGeneration, domain.ErrTransientService)
}

func TestResilient_RetriesTransient(t *testing.T) {
	inner := &scriptedGenerator{errs: []error{transient()}}
	r := newTestResilient(inner, 3, "retry-ok")

	res, err := r.Generate(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Text != "answer [0]" {
		t.Errorf("text = %q", res.Text)
	}
	if inner.calls != 2 {
		t.Errorf("calls = %d, want 2", inner.calls)
	}
}

func TestResilient_SingleAttemptByDefault(t *testing.T) {
	inner := &scriptedGenerator{errs: []error{transient(), transient()}}
	r := newTestResilient(inner, 1, "single")

	_, err := r.Generate(context.Background(), "prompt")
	if !errors.Is(err, domain.ErrGeneration) || !errors.Is(err, domain.ErrTransientService) {
		t.Fatalf("expected transient generation error, got %v", err)
	}
	if inner.calls != 1 {
		t.Errorf("calls = %d, want 1", inner.calls)
	}
}

func TestResilient_FatalNotRetried(t *testing.T) {
	fatal := errors.Join(domain.ErrGeneration, domain.ErrFatalService)
	inner := &scriptedGenerator{errs: []error{fatal, fatal, fatal}}
	r := newTestResilient(inner, 3, "fatal")

	_, err := r.Generate(context.Background(), "prompt")
	if !errors.Is(err, domain.ErrFatalService) {
		t.Fatalf("expected fatal error, got %v", err)
	}
	if inner.calls != 1 {
		t.Errorf("calls = %d, want 1", inner.calls)
	}
}

func TestResilient_BreakerOpensAndShortCircuits(t *testing.T) {
	errs := make([]error, 10)
	for i := range errs {
		errs[i] = transient()
	}
	inner := &scriptedGenerator{errs: errs}
	r := newTestResilient(inner, 1, "trip")

	for range 4 {
		_, _ = r.Generate(context.Background(), "prompt")
	}
	if r.State() != gobreaker.StateOpen {
		t.Fatalf("breaker state = %s, want open", r.State())
	}
	if got := testutil.ToFloat64(metrics.GenerationBreakerState.WithLabelValues("trip")); got != float64(gobreaker.StateOpen) {
		t.Errorf("breaker gauge = %v", got)
	}

	calls := inner.calls
	_, err := r.Generate(context.Background(), "prompt")
	if !errors.Is(err, domain.ErrGeneration) || !errors.Is(err, domain.ErrTransientService) {
		t.Errorf("open breaker error = %v", err)
	}
	if inner.calls != calls {
		t.Error("open breaker reached the provider")
	}
	if err := r.HealthCheck(context.Background()); err == nil {
		t.Error("health check passed with open breaker")
	}
}

func TestResilient_GenerationErrorWrappedOnce(t *testing.T) {
	inner := &scriptedGenerator{errs: []error{transient()}}
	r := newTestResilient(inner, 1, "wrap-once")

	_, err := r.Generate(context.Background(), "prompt")
	if !errors.Is(err, domain.ErrGeneration) {
		t.Fatalf("expected generation error, got %v", err)
	}
	if n := strings.Count(err.Error(), domain.ErrGeneration.Error()); n != 1 {
		t.Errorf("%q repeats the generation sentinel %d times", err.Error(), n)
	}
}

func TestResilient_BreakerRejectionWrapsGeneration(t *testing.T) {
	errs := make([]error, 4)
	for i := range errs {
		errs[i] = transient()
	}
	inner := &scriptedGenerator{errs: errs}
	r := newTestResilient(inner, 1, "wrap-open")
	for range 4 {
		_, _ = r.Generate(context.Background(), "prompt")
	}

	_, err := r.Generate(context.Background(), "prompt")
	if !errors.Is(err, domain.ErrGeneration) {
		t.Fatalf("expected generation error, got %v", err)
	}
	if n := strings.Count(err.Error(), domain.ErrGeneration.Error()); n != 1 {
		t.Errorf("%q repeats the generation sentinel %d times", err.Error(), n)
	}
}
