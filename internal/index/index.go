// Package index is an exact inner-product vector index over the chunks of one document.
//
// An Index is immutable once built, so any number of goroutines may search it
// while a replacement is being built elsewhere.
package index

import (
	"fmt"
	"math"

	"github.com/kailas-cloud/docqa/internal/domain"
	"github.com/kailas-cloud/docqa/internal/domain/retrieval/result"
)

// Index stores one vector per chunk, in chunk-id order.
type Index struct {
	dim       int
	vectors   [][]float32
	normalize bool
}

// Option configures Build.
type Option func(*Index)

// WithNormalize L2-normalizes stored vectors and every query, making inner product
// equal to cosine similarity.
func WithNormalize() Option {
	return func(ix *Index) { ix.normalize = true }
}

// Build constructs an index over vectors. Vector i is addressed as chunk id i.
func Build(vectors [][]float32, opts ...Option) (*Index, error) {
	if len(vectors) == 0 {
		return nil, fmt.Errorf("build index: %w", domain.ErrEmptyInput)
	}
	dim := len(vectors[0])
	if dim == 0 {
		return nil, fmt.Errorf("build index: zero-length vector: %w", domain.ErrDimensionMismatch)
	}

	ix := &Index{dim: dim, vectors: make([][]float32, len(vectors))}
	for _, opt := range opts {
		opt(ix)
	}

	for i, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("build index: vector %d has %d dimensions, want %d: %w",
				i, len(v), dim, domain.ErrDimensionMismatch)
		}
		cp := make([]float32, dim)
		copy(cp, v)
		if ix.normalize {
			Normalize(cp)
		}
		ix.vectors[i] = cp
	}
	return ix, nil
}

// Size returns the number of indexed vectors. Zero for a nil index.
func (ix *Index) Size() int {
	if ix == nil {
		return 0
	}
	return len(ix.vectors)
}

// Dim returns the vector dimensionality. Zero for a nil index.
func (ix *Index) Dim() int {
	if ix == nil {
		return 0
	}
	return ix.dim
}

// Search returns up to k chunk ids most similar to query by inner product,
// best first, ties broken by ascending id. k larger than Size returns every vector.
func (ix *Index) Search(query []float32, k int) (result.Hits, error) {
	if ix == nil || len(ix.vectors) == 0 {
		return nil, fmt.Errorf("search: %w", domain.ErrNotIndexed)
	}
	if k < 1 {
		return nil, fmt.Errorf("search: k must be >= 1, got %d: %w", k, domain.ErrInvalidInput)
	}
	if len(query) != ix.dim {
		return nil, fmt.Errorf("search: query has %d dimensions, index has %d: %w",
			len(query), ix.dim, domain.ErrDimensionMismatch)
	}

	q := query
	if ix.normalize {
		q = make([]float32, len(query))
		copy(q, query)
		Normalize(q)
	}

	hits := make(result.Hits, len(ix.vectors))
	for i, v := range ix.vectors {
		hits[i] = result.New(i, Dot(q, v))
	}
	hits.Sort()

	if k < len(hits) {
		hits = hits[:k]
	}
	return hits, nil
}

// Dot returns the inner product of two equal-length vectors.
func Dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// Normalize scales v to unit L2 length in place. Zero vectors are left unchanged.
func Normalize(v []float32) {
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if norm == 0 {
		return
	}
	inv := float32(1 / math.Sqrt(norm))
	for i := range v {
		v[i] *= inv
	}
}
