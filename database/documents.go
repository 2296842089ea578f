package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/securerag/helper"
	"github.com/siherrmann/securerag/model"
	"github.com/siherrmann/securerag/sql"
)

// DocumentsDBHandlerFunctions defines the interface for Documents database operations.
type DocumentsDBHandlerFunctions interface {
	CreateOrGetDocument(ctx context.Context, tx helper.Querier, ownerID uuid.UUID, title string, sourceKey string, metadata model.Metadata) (*model.Document, bool, error)
	LockSourceKey(ctx context.Context, tx helper.Querier, sourceKey string) error
	SelectDocument(ctx context.Context, id uuid.UUID) (*model.Document, error)
	SelectDocumentBySourceKey(ctx context.Context, sourceKey string) (*model.Document, error)
	DeleteDocument(ctx context.Context, id uuid.UUID) error
}

// DocumentsDBHandler handles document-related database operations
type DocumentsDBHandler struct {
	db *helper.Database
}

// NewDocumentsDBHandler creates a new documents database handler.
// It initializes the database connection and loads document-related SQL functions.
// If force is true, it will reload the SQL functions even if they already exist.
func NewDocumentsDBHandler(db *helper.Database, force bool) (*DocumentsDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	documentsDbHandler := &DocumentsDBHandler{
		db: db,
	}

	err := sql.LoadDocumentsSql(documentsDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load documents sql", err)
	}

	err = documentsDbHandler.CreateTable()
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized DocumentsDBHandler")

	return documentsDbHandler, nil
}

// CreateTable creates the 'documents' table in the database.
// If the table already exists, it does not create it again.
func (h *DocumentsDBHandler) CreateTable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_documents();`)
	if err != nil {
		return helper.NewError("init documents", err)
	}

	h.db.Logger.Info("Checked/created table documents")

	return nil
}

// LockSourceKey takes a transaction scoped advisory lock on the source key.
// Concurrent ingests of the same key are serialized until the holding transaction ends.
func (h *DocumentsDBHandler) LockSourceKey(ctx context.Context, tx helper.Querier, sourceKey string) error {
	_, err := querier(h.db, tx).ExecContext(ctx, `SELECT lock_source_key($1)`, sourceKey)
	if err != nil {
		return helper.NewError("lock source key", err)
	}
	return nil
}

// CreateOrGetDocument inserts a document or, if the source key exists, refreshes its title
// and metadata. The bool result reports whether the document was newly created.
// The owner of an existing document is never changed.
func (h *DocumentsDBHandler) CreateOrGetDocument(ctx context.Context, tx helper.Querier, ownerID uuid.UUID, title string, sourceKey string, metadata model.Metadata) (*model.Document, bool, error) {
	if metadata == nil {
		metadata = model.Metadata{}
	}

	doc := &model.Document{}
	var isNew bool
	row := querier(h.db, tx).QueryRowContext(
		ctx,
		`SELECT * FROM upsert_document($1, $2, $3, $4)`,
		ownerID,
		title,
		sourceKey,
		metadata,
	)

	err := row.Scan(
		&doc.ID,
		&doc.OwnerID,
		&doc.Title,
		&doc.SourceKey,
		&doc.Metadata,
		&doc.CreatedAt,
		&doc.UpdatedAt,
		&isNew,
	)
	if err != nil {
		return nil, false, helper.NewError("scan", err)
	}

	return doc, isNew, nil
}

// SelectDocument retrieves a document by ID
func (h *DocumentsDBHandler) SelectDocument(ctx context.Context, id uuid.UUID) (*model.Document, error) {
	return h.selectOne(ctx, `SELECT * FROM select_document($1)`, id)
}

// SelectDocumentBySourceKey retrieves a document by its source key
func (h *DocumentsDBHandler) SelectDocumentBySourceKey(ctx context.Context, sourceKey string) (*model.Document, error) {
	return h.selectOne(ctx, `SELECT * FROM select_document_by_source_key($1)`, sourceKey)
}

// DeleteDocument deletes a document with its chunks, embeddings and ACL entries.
func (h *DocumentsDBHandler) DeleteDocument(ctx context.Context, id uuid.UUID) error {
	_, err := h.db.Instance.ExecContext(ctx, `SELECT delete_document($1)`, id)
	if err != nil {
		return helper.NewError("exec", err)
	}
	return nil
}

func (h *DocumentsDBHandler) selectOne(ctx context.Context, query string, arg interface{}) (*model.Document, error) {
	doc := &model.Document{}
	row := h.db.Instance.QueryRowContext(ctx, query, arg)

	err := row.Scan(
		&doc.ID,
		&doc.OwnerID,
		&doc.Title,
		&doc.SourceKey,
		&doc.Metadata,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	)
	if err != nil {
		return nil, helper.NewError("scan", err)
	}

	return doc, nil
}
