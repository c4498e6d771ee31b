package answer

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/kailas-cloud/docqa/internal/domain"
	"github.com/kailas-cloud/docqa/internal/domain/retrieval/result"
	"github.com/kailas-cloud/docqa/internal/metrics"
)

func TestMain(m *testing.M) {
	metrics.RegisterPipelineMetrics()
	os.Exit(m.Run())
}

type mockGenerator struct {
	text   string
	err    error
	prompt string
}

func (m *mockGenerator) Generate(_ context.Context, prompt string) (domain.GenerationResult, error) {
	m.prompt = prompt
	if m.err != nil {
		return domain.GenerationResult{}, m.err
	}
	return domain.GenerationResult{Text: m.text, PromptTokens: 50, CompletionTokens: 7}, nil
}

func fixture() (result.Hits, []domain.Chunk) {
	hits := result.Hits{result.New(2, 0.9), result.New(0, 0.8), result.New(5, 0.4)}
	chunks := []domain.Chunk{
		{ID: 2, Text: "Rent is due monthly."},
		{ID: 0, Text: "This lease starts in May."},
		{ID: 5, Text: "Pets are not allowed."},
	}
	return hits, chunks
}

func TestSynthesize_ModelCitation(t *testing.T) {
	gen := &mockGenerator{text: "Pets are forbidden [5]."}
	hits, chunks := fixture()
	ctx, usage := domain.NewContextWithUsage(context.Background())

	before := testutil.ToFloat64(metrics.CitationsTotal.WithLabelValues("model"))
	ans, err := New(gen, "").Synthesize(ctx, "Can I keep a cat?", hits, chunks)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ans.CitedChunkID != 5 || ans.Confidence != 0.4 {
		t.Errorf("cited %d with %v, want 5 with 0.4", ans.CitedChunkID, ans.Confidence)
	}
	if ans.Question != "Can I keep a cat?" || ans.AnswerText != "Pets are forbidden [5]." {
		t.Errorf("answer = %+v", ans)
	}
	if !strings.Contains(gen.prompt, "[5]: Pets are not allowed.\n") {
		t.Errorf("prompt lacks sources: %q", gen.prompt)
	}
	if usage.GenerationTokens != 57 {
		t.Errorf("generation tokens = %d, want 57", usage.GenerationTokens)
	}
	if testutil.ToFloat64(metrics.CitationsTotal.WithLabelValues("model"))-before != 1 {
		t.Error("model citation not counted")
	}
}

func TestSynthesize_FallsBackToTopHit(t *testing.T) {
	tests := map[string]string{
		"no citation":       "Monthly.",
		"unretrieved id":    "See [7].",
		"non-numeric tag":   "See [a].",
		"only first counts": "See [9] or [0].",
	}
	for name, text := range tests {
		t.Run(name, func(t *testing.T) {
			hits, chunks := fixture()
			ans, err := New(&mockGenerator{text: text}, "").Synthesize(context.Background(), "q", hits, chunks)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if ans.CitedChunkID != 2 || ans.Confidence != 0.9 {
				t.Errorf("cited %d with %v, want top hit 2 with 0.9", ans.CitedChunkID, ans.Confidence)
			}
		})
	}
}

func TestSynthesize_GenerationError(t *testing.T) {
	genErr := errors.Join(domain.ErrGeneration, domain.ErrTransientService)
	hits, chunks := fixture()

	_, err := New(&mockGenerator{err: genErr}, "").Synthesize(context.Background(), "q", hits, chunks)
	if !errors.Is(err, domain.ErrGeneration) || !errors.Is(err, domain.ErrTransientService) {
		t.Fatalf("expected generation error, got %v", err)
	}
}

func TestSynthesize_NoHits(t *testing.T) {
	gen := &mockGenerator{text: "x"}
	_, err := New(gen, "").Synthesize(context.Background(), "q", nil, nil)
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if gen.prompt != "" {
		t.Error("generator called without hits")
	}
}
