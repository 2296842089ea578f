package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/siherrmann/securerag/helper"
	"github.com/siherrmann/securerag/model"
	"github.com/siherrmann/securerag/sql"
)

// ChunksDBHandlerFunctions defines the interface for Chunks database operations.
type ChunksDBHandlerFunctions interface {
	InsertChunks(ctx context.Context, tx helper.Querier, documentID uuid.UUID, texts []string) ([]*model.Chunk, error)
	DeleteChunksByDocument(ctx context.Context, tx helper.Querier, documentID uuid.UUID) (int, error)
	SelectChunksByDocument(ctx context.Context, documentID uuid.UUID) ([]*model.Chunk, error)
	SelectChunkIDsByDocuments(ctx context.Context, documentIDs []uuid.UUID) ([]uuid.UUID, error)
}

// ChunksDBHandler handles chunk-related database operations
type ChunksDBHandler struct {
	db *helper.Database
}

// NewChunksDBHandler creates a new chunks database handler.
// It initializes the database connection and loads chunk-related SQL functions.
// If force is true, it will reload the SQL functions even if they already exist.
func NewChunksDBHandler(db *helper.Database, force bool) (*ChunksDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	chunksDbHandler := &ChunksDBHandler{
		db: db,
	}

	err := sql.LoadChunksSql(chunksDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load chunks sql", err)
	}

	err = chunksDbHandler.CreateTable()
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized ChunksDBHandler")

	return chunksDbHandler, nil
}

// CreateTable creates the 'chunks' table in the database.
// If the table already exists, it does not create it again.
func (h *ChunksDBHandler) CreateTable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_chunks();`)
	if err != nil {
		return helper.NewError("init chunks", err)
	}

	h.db.Logger.Info("Checked/created table chunks")

	return nil
}

// InsertChunks inserts the redacted texts of a document as chunks with ord 0..n-1.
// The returned chunks are ordered by ord.
func (h *ChunksDBHandler) InsertChunks(ctx context.Context, tx helper.Querier, documentID uuid.UUID, texts []string) ([]*model.Chunk, error) {
	if len(texts) == 0 {
		return []*model.Chunk{}, nil
	}

	rows, err := querier(h.db, tx).QueryContext(
		ctx,
		`SELECT * FROM insert_chunks($1, $2)`,
		documentID,
		pq.Array(texts),
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	chunks := make([]*model.Chunk, 0, len(texts))
	for rows.Next() {
		chunk := &model.Chunk{}
		err := rows.Scan(
			&chunk.ID,
			&chunk.DocumentID,
			&chunk.Ord,
			&chunk.RedactedText,
			&chunk.CreatedAt,
		)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}

		chunks = append(chunks, chunk)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return chunks, nil
}

// DeleteChunksByDocument deletes every chunk of a document and, by cascade, their embeddings.
// It returns the number of deleted chunks.
func (h *ChunksDBHandler) DeleteChunksByDocument(ctx context.Context, tx helper.Querier, documentID uuid.UUID) (int, error) {
	var deleted int
	err := querier(h.db, tx).QueryRowContext(
		ctx,
		`SELECT delete_chunks_by_document($1)`,
		documentID,
	).Scan(&deleted)
	if err != nil {
		return 0, helper.NewError("scan", err)
	}

	return deleted, nil
}

// SelectChunksByDocument retrieves all chunks of a document ordered by ord.
func (h *ChunksDBHandler) SelectChunksByDocument(ctx context.Context, documentID uuid.UUID) ([]*model.Chunk, error) {
	rows, err := h.db.Instance.QueryContext(
		ctx,
		`SELECT * FROM select_chunks_by_document($1)`,
		documentID,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var chunks []*model.Chunk
	for rows.Next() {
		chunk := &model.Chunk{}
		err := rows.Scan(
			&chunk.ID,
			&chunk.DocumentID,
			&chunk.Ord,
			&chunk.RedactedText,
			&chunk.CreatedAt,
		)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}

		chunks = append(chunks, chunk)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return chunks, nil
}

// SelectChunkIDsByDocuments expands documents to the ids of their member chunks.
func (h *ChunksDBHandler) SelectChunkIDsByDocuments(ctx context.Context, documentIDs []uuid.UUID) ([]uuid.UUID, error) {
	if len(documentIDs) == 0 {
		return []uuid.UUID{}, nil
	}

	rows, err := h.db.Instance.QueryContext(
		ctx,
		`SELECT * FROM select_chunk_ids_by_documents($1::uuid[])`,
		pq.Array(uuidStrings(documentIDs)),
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	ids := []uuid.UUID{}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, helper.NewError("scan", err)
		}
		ids = append(ids, id)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return ids, nil
}
