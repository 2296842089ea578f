package model

import (
	"time"

	"github.com/google/uuid"
)

// GoldItem is one labelled query of a recall evaluation set.
// GoldDocuments are expanded to all of their chunks before comparison.
type GoldItem struct {
	Query         string      `json:"query"`
	GoldChunks    []uuid.UUID `json:"gold_chunks,omitempty"`
	GoldDocuments []uuid.UUID `json:"gold_doc_ids,omitempty"`
	TopK          int         `json:"top_k,omitempty"`
}

// RetrievalEval is the persisted outcome of replaying one gold item.
type RetrievalEval struct {
	ID         uuid.UUID   `json:"id"`
	TraceID    uuid.UUID   `json:"trace_id"`
	Query      string      `json:"query"`
	GoldChunks []uuid.UUID `json:"gold_chunks"`
	TopK       int         `json:"top_k"`
	Hits       []uuid.UUID `json:"hits"`
	RecallAtK  float64     `json:"recall_at_k"`
	CreatedAt  time.Time   `json:"created_at"`
}

// LeaderboardSummary aggregates all evaluation rows.
type LeaderboardSummary struct {
	AvgRecall  float64    `json:"avg_recall"`
	NumEvals   int        `json:"n_evals"`
	LastEvalAt *time.Time `json:"last_eval_at"`
}

// Leaderboard is the summary plus the most recent evaluation rows.
type Leaderboard struct {
	Summary LeaderboardSummary `json:"summary"`
	Rows    []*RetrievalEval   `json:"rows"`
}

// RecallReport is the result of one evaluator run.
type RecallReport struct {
	Evals     []*RetrievalEval `json:"evals"`
	AvgRecall float64          `json:"avg_recall"`
}
