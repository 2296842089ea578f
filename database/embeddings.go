package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"github.com/siherrmann/securerag/helper"
	"github.com/siherrmann/securerag/model"
	"github.com/siherrmann/securerag/sql"
)

// EmbeddingsDBHandlerFunctions defines the interface for Embeddings database operations.
type EmbeddingsDBHandlerFunctions interface {
	Dimension() int
	UpsertEmbeddings(ctx context.Context, tx helper.Querier, modelName string, chunkIDs []uuid.UUID, vectors [][]float32) error
	SelectEmbedding(ctx context.Context, chunkID uuid.UUID, modelName string) (*model.Embedding, error)
	SelectChunksBySimilarity(ctx context.Context, query []float32, modelName string, userID uuid.UUID, limit int) ([]*model.ScoredChunk, error)
	ChangeIndexType(ctx context.Context, indexType string, params map[string]interface{}) error
}

// EmbeddingsDBHandler handles embedding storage and the ACL scoped similarity search.
type EmbeddingsDBHandler struct {
	db        *helper.Database
	dimension int
}

// NewEmbeddingsDBHandler creates a new embeddings database handler with a fixed vector dimension.
// It fails with model.ErrDimensionMismatch if the table exists with another dimension.
// If force is true, it will reload the SQL functions even if they already exist.
func NewEmbeddingsDBHandler(db *helper.Database, dimension int, force bool) (*EmbeddingsDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}
	if dimension <= 0 {
		return nil, helper.NewError("dimension validation", fmt.Errorf("%w: dimension must be positive, got %d", model.ErrValidation, dimension))
	}

	embeddingsDbHandler := &EmbeddingsDBHandler{
		db:        db,
		dimension: dimension,
	}

	err := sql.LoadEmbeddingsSql(embeddingsDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load embeddings sql", err)
	}

	err = embeddingsDbHandler.CreateTable()
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized EmbeddingsDBHandler", "dimension", dimension)

	return embeddingsDbHandler, nil
}

// CreateTable creates the 'embeddings' table with the configured dimension and verifies
// that an existing table uses the same dimension.
func (h *EmbeddingsDBHandler) CreateTable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_embeddings($1);`, h.dimension)
	if err != nil {
		return helper.NewError("init embeddings", err)
	}

	var stored int
	err = h.db.Instance.QueryRowContext(ctx, `SELECT embedding_dimension();`).Scan(&stored)
	if err != nil {
		return helper.NewError("select embedding dimension", err)
	}
	if stored != h.dimension {
		return helper.NewError("check dimension", fmt.Errorf("%w: table uses %d, configured %d", model.ErrDimensionMismatch, stored, h.dimension))
	}

	h.db.Logger.Info("Checked/created table embeddings")

	return nil
}

// Dimension returns the vector dimension of the embeddings table.
func (h *EmbeddingsDBHandler) Dimension() int {
	return h.dimension
}

// UpsertEmbeddings stores one vector per chunk for the given model, replacing
// a previous vector of the same (chunk, model) pair.
func (h *EmbeddingsDBHandler) UpsertEmbeddings(ctx context.Context, tx helper.Querier, modelName string, chunkIDs []uuid.UUID, vectors [][]float32) error {
	if len(chunkIDs) != len(vectors) {
		return helper.NewError("upsert embeddings", fmt.Errorf("%w: %d chunks but %d vectors", model.ErrValidation, len(chunkIDs), len(vectors)))
	}

	q := querier(h.db, tx)
	for i, chunkID := range chunkIDs {
		if err := h.checkDimension(vectors[i]); err != nil {
			return helper.NewError("upsert embeddings", err)
		}

		_, err := q.ExecContext(
			ctx,
			`SELECT upsert_embedding($1, $2, $3)`,
			chunkID,
			modelName,
			pgvector.NewVector(vectors[i]),
		)
		if err != nil {
			return helper.NewError("exec", err)
		}
	}

	return nil
}

// SelectEmbedding retrieves the vector of a chunk for a model.
func (h *EmbeddingsDBHandler) SelectEmbedding(ctx context.Context, chunkID uuid.UUID, modelName string) (*model.Embedding, error) {
	embedding := &model.Embedding{}
	var vector pgvector.Vector
	row := h.db.Instance.QueryRowContext(
		ctx,
		`SELECT * FROM select_embedding($1, $2)`,
		chunkID,
		modelName,
	)

	err := row.Scan(
		&embedding.ChunkID,
		&embedding.ModelName,
		&vector,
	)
	if err != nil {
		return nil, helper.NewError("scan", err)
	}
	embedding.Vector = vector.Slice()

	return embedding, nil
}

// SelectChunksBySimilarity returns the limit nearest chunks to query by L2 distance,
// restricted to embeddings of modelName and to documents userID holds an ACL entry on.
// Chunks at equal distance are ordered by chunk id.
func (h *EmbeddingsDBHandler) SelectChunksBySimilarity(ctx context.Context, query []float32, modelName string, userID uuid.UUID, limit int) ([]*model.ScoredChunk, error) {
	if err := h.checkDimension(query); err != nil {
		return nil, helper.NewError("similarity search", err)
	}
	if limit <= 0 {
		return nil, helper.NewError("similarity search", fmt.Errorf("%w: limit must be positive, got %d", model.ErrValidation, limit))
	}

	rows, err := h.db.Instance.QueryContext(
		ctx,
		`SELECT * FROM select_chunks_by_similarity($1, $2, $3, $4)`,
		pgvector.NewVector(query),
		modelName,
		userID,
		limit,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	chunks := []*model.ScoredChunk{}
	for rows.Next() {
		chunk := &model.ScoredChunk{}
		err := rows.Scan(
			&chunk.ID,
			&chunk.DocumentID,
			&chunk.Ord,
			&chunk.RedactedText,
			&chunk.CreatedAt,
			&chunk.DocumentTitle,
			&chunk.Distance,
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

func (h *EmbeddingsDBHandler) checkDimension(vector []float32) error {
	if len(vector) != h.dimension {
		return fmt.Errorf("%w: expected %d, got %d", model.ErrDimensionMismatch, h.dimension, len(vector))
	}
	return nil
}
