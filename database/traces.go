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

// TracesDBHandlerFunctions defines the interface for retrieval trace operations.
type TracesDBHandlerFunctions interface {
	InsertTrace(ctx context.Context, trace *model.RetrievalTrace) error
	SelectTrace(ctx context.Context, id uuid.UUID) (*model.RetrievalTrace, error)
}

// TracesDBHandler handles retrieval traces and their hits.
type TracesDBHandler struct {
	db *helper.Database
}

// NewTracesDBHandler creates a new traces database handler.
// If force is true, it will reload the SQL functions even if they already exist.
func NewTracesDBHandler(db *helper.Database, force bool) (*TracesDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	tracesDbHandler := &TracesDBHandler{
		db: db,
	}

	err := sql.LoadTracesSql(tracesDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load traces sql", err)
	}

	err = tracesDbHandler.CreateTable()
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized TracesDBHandler")

	return tracesDbHandler, nil
}

// CreateTable creates the 'traces' and 'trace_hits' tables if they do not exist.
func (h *TracesDBHandler) CreateTable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_traces();`)
	if err != nil {
		return helper.NewError("init traces", err)
	}

	h.db.Logger.Info("Checked/created tables traces and trace_hits")

	return nil
}

// InsertTrace persists the trace header and its hits in one statement.
// Hits are ranked by their position in trace.Hits.
func (h *TracesDBHandler) InsertTrace(ctx context.Context, trace *model.RetrievalTrace) error {
	if trace == nil || trace.ID == uuid.Nil {
		return helper.NewError("validate trace", fmt.Errorf("%w: trace id is missing", model.ErrValidation))
	}

	chunkIDs := make([]string, 0, len(trace.Hits))
	scores := make([]float64, 0, len(trace.Hits))
	for _, hit := range trace.Hits {
		chunkIDs = append(chunkIDs, hit.ChunkID.String())
		scores = append(scores, hit.Score)
	}

	var createdAt *time.Time
	if !trace.CreatedAt.IsZero() {
		createdAt = &trace.CreatedAt
	}

	_, err := h.db.Instance.ExecContext(
		ctx,
		`SELECT insert_trace($1, $2, $3, $4, $5, $6::uuid[], $7::double precision[])`,
		trace.ID,
		trace.UserID,
		trace.Query,
		trace.TopK,
		createdAt,
		pq.Array(chunkIDs),
		pq.Array(scores),
	)
	if err != nil {
		return helper.NewError("exec", err)
	}

	return nil
}

// SelectTrace retrieves a trace with its hits ordered by rank.
func (h *TracesDBHandler) SelectTrace(ctx context.Context, id uuid.UUID) (*model.RetrievalTrace, error) {
	trace := &model.RetrievalTrace{}
	row := h.db.Instance.QueryRowContext(ctx, `SELECT * FROM select_trace($1)`, id)

	err := row.Scan(
		&trace.ID,
		&trace.UserID,
		&trace.Query,
		&trace.TopK,
		&trace.CreatedAt,
	)
	if err != nil {
		return nil, helper.NewError("scan", err)
	}

	rows, err := h.db.Instance.QueryContext(ctx, `SELECT * FROM select_trace_hits($1)`, id)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	trace.Hits = []model.TraceHit{}
	for rows.Next() {
		hit := model.TraceHit{}
		if err := rows.Scan(&hit.Rank, &hit.ChunkID, &hit.Score); err != nil {
			return nil, helper.NewError("scan", err)
		}
		trace.Hits = append(trace.Hits, hit)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return trace, nil
}
