package domain

import "errors"

var (
	// ErrInvalidInput signals bad or empty caller input. Never retried.
	ErrInvalidInput = errors.New("invalid input")
	// ErrEmptyInput signals an index build over zero vectors.
	ErrEmptyInput = errors.New("empty input")
	// ErrDimensionMismatch signals vectors of inconsistent dimensionality.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrNotIndexed signals a search against an index that was never built.
	ErrNotIndexed = errors.New("index not built")
	// ErrNotFound signals a chunk id outside the corpus.
	ErrNotFound = errors.New("not found")
	// ErrNoDocumentIndexed signals a query before any successful ingestion.
	ErrNoDocumentIndexed = errors.New("no document indexed")

	// ErrTransientService signals a retryable provider failure (rate limit, timeout, 5xx).
	ErrTransientService = errors.New("service temporarily unavailable")
	// ErrFatalService signals a non-retryable provider failure (auth, malformed input).
	ErrFatalService = errors.New("service error")
	// ErrGeneration signals a failed text generation call.
	ErrGeneration = errors.New("generation failed")
	// ErrEmbeddingQuotaExceeded signals an exhausted embedding budget.
	ErrEmbeddingQuotaExceeded = errors.New("embedding quota exceeded")
)

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransientService)
}
