package domain

import "context"

type usageKey struct{}

// Usage collects the external token spend of one HTTP request.
// The handler attaches it before calling a service and reads it back for response headers.
type Usage struct {
	EmbeddingTokens  int
	GenerationTokens int
	// Embedded is true once the embedder was called, even when the cache served it for free.
	Embedded bool
}

// NewContextWithUsage returns a context carrying a fresh usage collector.
func NewContextWithUsage(ctx context.Context) (context.Context, *Usage) {
	u := &Usage{}
	return context.WithValue(ctx, usageKey{}, u), u
}

// UsageFromContext returns the collector, nil when none is attached.
// All methods are nil-safe.
func UsageFromContext(ctx context.Context) *Usage {
	u, _ := ctx.Value(usageKey{}).(*Usage)
	return u
}

// AddEmbeddingTokens records embedding tokens.
func (u *Usage) AddEmbeddingTokens(n int) {
	if u != nil {
		u.EmbeddingTokens += n
		u.Embedded = true
	}
}

// AddGenerationTokens records prompt plus completion tokens.
func (u *Usage) AddGenerationTokens(n int) {
	if u != nil {
		u.GenerationTokens += n
	}
}
