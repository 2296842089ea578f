package model

import (
	"time"

	"github.com/google/uuid"
)

// RedactionLogEntry counts the spans of one entity type removed from one chunk.
type RedactionLogEntry struct {
	ID         uuid.UUID  `json:"id"`
	DocumentID uuid.UUID  `json:"doc_id"`
	ChunkID    uuid.UUID  `json:"chunk_id"`
	EntityType EntityType `json:"entity_type"`
	Count      int        `json:"count"`
	CreatedAt  time.Time  `json:"created_at"`
}

// EntityCount is the aggregated number of redactions of one entity type.
type EntityCount struct {
	EntityType EntityType `json:"entity_type"`
	Total      int        `json:"total"`
}

// SecurityStats aggregates the redaction log over several time windows.
type SecurityStats struct {
	Totals   []EntityCount `json:"totals"`
	Last7d   []EntityCount `json:"last_7d"`
	Last24h  []EntityCount `json:"last_24h"`
	Computed time.Time     `json:"computed_at"`
}
