package domain

// KeyPrefix namespaces every key this service writes to a shared KV store.
const KeyPrefix = "docqa:"

// Chunk is a bounded-size slice of the current document, the unit of retrieval.
// ID is the chunk's position in the document and doubles as its vector index position.
type Chunk struct {
	ID   int
	Text string
}

// Answer is a synthesized reply to a question with the source chunk it cites.
type Answer struct {
	Question     string
	AnswerText   string
	CitedChunkID int
	SourceClause string  // text of the cited chunk
	Confidence   float32 // similarity score of the cited chunk
}
