package model

import (
	"time"

	"github.com/google/uuid"
)

// RetrievalTrace is the audit record of one search: who asked what and which chunks were returned.
type RetrievalTrace struct {
	ID        uuid.UUID  `json:"id"`
	UserID    uuid.UUID  `json:"user_id"`
	Query     string     `json:"query"`
	TopK      int        `json:"top_k"`
	CreatedAt time.Time  `json:"created_at"`
	Hits      []TraceHit `json:"hits"`
}

// TraceHit is one ranked result of a trace. Rank is 1-based.
// ChunkID is kept even after the chunk itself was replaced.
type TraceHit struct {
	Rank    int       `json:"rank"`
	ChunkID uuid.UUID `json:"chunk_id"`
	Score   float64   `json:"score"`
}

// NewRetrievalTrace builds a trace with a fresh id from a list of search hits.
func NewRetrievalTrace(userID uuid.UUID, query string, topK int, hits []SearchHit) *RetrievalTrace {
	trace := &RetrievalTrace{
		ID:        uuid.New(),
		UserID:    userID,
		Query:     query,
		TopK:      topK,
		CreatedAt: time.Now().UTC(),
		Hits:      make([]TraceHit, 0, len(hits)),
	}
	for i, h := range hits {
		trace.Hits = append(trace.Hits, TraceHit{Rank: i + 1, ChunkID: h.ChunkID, Score: h.Score})
	}
	return trace
}
