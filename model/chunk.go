package model

import (
	"time"

	"github.com/google/uuid"
)

// Chunk is a redacted, bounded piece of a document and the unit of embedding and retrieval.
// Ord is dense and 0-based per document.
type Chunk struct {
	ID           uuid.UUID `json:"id"`
	DocumentID   uuid.UUID `json:"document_id"`
	Ord          int       `json:"ord"`
	RedactedText string    `json:"redacted_text"`
	CreatedAt    time.Time `json:"created_at"`
}

// Embedding is the vector of one chunk under one model.
type Embedding struct {
	ChunkID   uuid.UUID `json:"chunk_id"`
	ModelName string    `json:"model_name"`
	Vector    []float32 `json:"vector"`
}

// ScoredChunk is a chunk returned by the similarity query together with its distance to the query.
type ScoredChunk struct {
	Chunk
	DocumentTitle string  `json:"document_title"`
	Distance      float64 `json:"distance"`
}
