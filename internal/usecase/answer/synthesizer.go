// Package answer turns retrieved chunks into a cited answer.
package answer

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kailas-cloud/docqa/internal/domain"
	"github.com/kailas-cloud/docqa/internal/domain/retrieval/result"
	"github.com/kailas-cloud/docqa/internal/logger"
	"github.com/kailas-cloud/docqa/internal/metrics"
)

// Synthesizer prompts the generator with the retrieved chunks and resolves the citation.
type Synthesizer struct {
	gen         domain.Generator
	instruction string
}

// New creates a synthesizer. An empty instruction uses DefaultInstruction.
func New(gen domain.Generator, instruction string) *Synthesizer {
	return &Synthesizer{gen: gen, instruction: instruction}
}

// Synthesize answers question from chunks, which must be the texts of hits.
// The cited chunk is the first [id] in the answer when it names a retrieved chunk,
// the top hit otherwise; confidence is that hit's score.
func (s *Synthesizer) Synthesize(
	ctx context.Context, question string, hits result.Hits, chunks []domain.Chunk,
) (domain.Answer, error) {
	top, ok := hits.Top()
	if !ok {
		return domain.Answer{}, fmt.Errorf("no retrieved chunks: %w", domain.ErrInvalidInput)
	}

	prompt := BuildPrompt(question, chunks, s.instruction)
	gen, err := s.gen.Generate(ctx, prompt)
	if err != nil {
		return domain.Answer{}, fmt.Errorf("generate answer: %w", err)
	}
	domain.UsageFromContext(ctx).AddGenerationTokens(gen.PromptTokens + gen.CompletionTokens)

	cited, source := top, "fallback"
	if id, found := ExtractCitation(gen.Text); found {
		if hit, retrieved := hits.Find(id); retrieved {
			cited, source = hit, "model"
		}
	}
	metrics.CitationsTotal.WithLabelValues(source).Inc()
	if source == "fallback" {
		logger.FromContext(ctx).Debug("Answer citation fell back to top hit",
			zap.Int("chunk_id", cited.ChunkID()))
	}

	return domain.Answer{
		Question:     question,
		AnswerText:   gen.Text,
		CitedChunkID: cited.ChunkID(),
		Confidence:   cited.Score(),
	}, nil
}
