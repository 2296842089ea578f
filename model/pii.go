package model

import (
	"time"

	"github.com/google/uuid"
)

// PIIEntityMetric holds the confusion counts and derived scores of one entity type.
type PIIEntityMetric struct {
	EntityType EntityType `json:"entity_type"`
	TP         int        `json:"tp"`
	FP         int        `json:"fp"`
	FN         int        `json:"fn"`
	Precision  float64    `json:"precision"`
	Recall     float64    `json:"recall"`
	F1         float64    `json:"f1"`
}

// PIIOverall holds the micro-averaged scores over all entity types.
type PIIOverall struct {
	TP        int     `json:"tp"`
	FP        int     `json:"fp"`
	FN        int     `json:"fn"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
}

// PIIEvalRun is one run of the redaction evaluation harness.
type PIIEvalRun struct {
	ID        uuid.UUID         `json:"id"`
	Notes     string            `json:"notes"`
	Samples   int               `json:"samples"`
	Seed      uint64            `json:"seed"`
	CreatedAt time.Time         `json:"created_at"`
	Entities  []PIIEntityMetric `json:"entities"`
	Overall   PIIOverall        `json:"overall"`
}

// PIISample is a generated sentence with its gold entity annotations.
type PIISample struct {
	Text string       `json:"text"`
	Gold []GoldEntity `json:"gold"`
}

// GoldEntity is one planted entity of a sample.
type GoldEntity struct {
	Type  EntityType `json:"entity_type"`
	Value string     `json:"value"`
}

// Scores computes precision, recall and F1 from confusion counts. A zero denominator yields 0.
func Scores(tp, fp, fn int) (precision, recall, f1 float64) {
	if tp+fp > 0 {
		precision = float64(tp) / float64(tp+fp)
	}
	if tp+fn > 0 {
		recall = float64(tp) / float64(tp+fn)
	}
	if precision+recall > 0 {
		f1 = 2 * precision * recall / (precision + recall)
	}
	return precision, recall, f1
}
