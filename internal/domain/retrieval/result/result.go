// Package result holds retrieval hits: (chunk id, similarity) pairs ranked by similarity.
package result

import "sort"

// Hit is a single retrieved chunk with its similarity to the query.
type Hit struct {
	chunkID int
	score   float32
}

// New creates a retrieval hit.
func New(chunkID int, score float32) Hit {
	return Hit{chunkID: chunkID, score: score}
}

// ChunkID returns the position of the chunk in the corpus.
func (h Hit) ChunkID() int { return h.chunkID }

// Score returns the inner-product similarity.
func (h Hit) Score() float32 { return h.score }

// Hits is an ordered retrieval result: descending score, ascending chunk id on ties.
type Hits []Hit

// Sort orders hits by descending score; equal scores by ascending chunk id.
func (hs Hits) Sort() {
	sort.Slice(hs, func(i, j int) bool { return Less(hs[i], hs[j]) })
}

// Less reports whether a ranks before b.
func Less(a, b Hit) bool {
	if a.score != b.score {
		return a.score > b.score
	}
	return a.chunkID < b.chunkID
}

// Top returns the best-ranked hit. ok is false for an empty result.
func (hs Hits) Top() (Hit, bool) {
	if len(hs) == 0 {
		return Hit{}, false
	}
	return hs[0], true
}

// Find returns the hit for chunkID, if present.
func (hs Hits) Find(chunkID int) (Hit, bool) {
	for _, h := range hs {
		if h.chunkID == chunkID {
			return h, true
		}
	}
	return Hit{}, false
}

// IDs returns the chunk ids in rank order.
func (hs Hits) IDs() []int {
	ids := make([]int, len(hs))
	for i, h := range hs {
		ids[i] = h.chunkID
	}
	return ids
}
