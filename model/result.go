package model

import (
	"github.com/google/uuid"
)

// SearchRequest is the input of a search call.
type SearchRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

// SearchHit is one ranked result of a search. Rank is 1-based, Score lies in [0,1] and higher is more similar.
type SearchHit struct {
	Rank          int       `json:"rank"`
	ChunkID       uuid.UUID `json:"chunk_id"`
	DocumentID    uuid.UUID `json:"doc_id"`
	DocumentTitle string    `json:"doc_title"`
	Ord           int       `json:"ord"`
	Snippet       string    `json:"snippet"`
	Score         float64   `json:"score"`
}

// SearchResponse is the result of a search call. TraceID references the audit record.
type SearchResponse struct {
	TraceID uuid.UUID   `json:"trace_id"`
	Hits    []SearchHit `json:"hits"`
}

// ChunkIDs returns the chunk ids of the hits in rank order.
func (r *SearchResponse) ChunkIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(r.Hits))
	for _, h := range r.Hits {
		ids = append(ids, h.ChunkID)
	}
	return ids
}
