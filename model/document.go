package model

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Document represents an ingested source. SourceKey is unique and makes re-ingestion replace
// the previous content instead of creating a second document.
type Document struct {
	ID        uuid.UUID `json:"id"`
	OwnerID   uuid.UUID `json:"owner_id"`
	Title     string    `json:"title"`
	SourceKey string    `json:"source_key"`
	Metadata  Metadata  `json:"metadata,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AdhocSourceKey derives a source key from a title for ingests that did not supply one.
func AdhocSourceKey(title string) string {
	return "adhoc/" + slug(title)
}

// UploadSourceKey derives a source key from an uploaded file name.
func UploadSourceKey(filename string) string {
	return "upload/" + slug(filename)
}

// slug lowercases and replaces spaces only. Any other character is kept so distinct
// titles never share a key.
func slug(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), " ", "-")
}

// IngestRequest is the input of an ingest call.
type IngestRequest struct {
	Title     string   `json:"title"`
	Text      string   `json:"text"`
	SourceKey string   `json:"source_key,omitempty"`
	Metadata  Metadata `json:"metadata,omitempty"`
}

// NewIngestRequestFromFile reads a plain text file into an IngestRequest.
// The title defaults to the file name without extension, the source key to the upload key of the file name.
func NewIngestRequestFromFile(filePath string) (*IngestRequest, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	filename := filepath.Base(filePath)
	title := filename[:len(filename)-len(filepath.Ext(filename))]
	if title == "" {
		title = filename
	}

	return &IngestRequest{
		Title:     title,
		Text:      string(content),
		SourceKey: UploadSourceKey(filename),
		Metadata:  Metadata{"path": filePath},
	}, nil
}

// IngestStatus tells whether an ingest created a document or replaced an existing one.
type IngestStatus string

const (
	IngestStatusCreated  IngestStatus = "created"
	IngestStatusReplaced IngestStatus = "replaced"
)

// IngestResult is the outcome of an ingest call.
type IngestResult struct {
	DocumentID uuid.UUID          `json:"doc_id"`
	ChunkCount int                `json:"chunks"`
	Status     IngestStatus       `json:"status"`
	Redactions map[EntityType]int `json:"redactions,omitempty"`
}
