package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/siherrmann/securerag/helper"
	"github.com/siherrmann/securerag/model"
	loadSql "github.com/siherrmann/securerag/sql"
)

// EvalsDBHandlerFunctions defines the interface for recall evaluation operations.
type EvalsDBHandlerFunctions interface {
	InsertEval(ctx context.Context, eval *model.RetrievalEval) error
	SelectLeaderboard(ctx context.Context, limit int) (*model.Leaderboard, error)
}

// EvalsDBHandler handles recall evaluation rows and the leaderboard.
type EvalsDBHandler struct {
	db *helper.Database
}

// NewEvalsDBHandler creates a new evaluation database handler.
// If force is true, it will reload the SQL functions even if they already exist.
func NewEvalsDBHandler(db *helper.Database, force bool) (*EvalsDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	evalsDbHandler := &EvalsDBHandler{
		db: db,
	}

	err := loadSql.LoadEvalsSql(evalsDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load evals sql", err)
	}

	err = evalsDbHandler.CreateTable()
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized EvalsDBHandler")

	return evalsDbHandler, nil
}

// CreateTable creates the 'eval_rows' table in the database if it does not exist.
func (h *EvalsDBHandler) CreateTable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_evals();`)
	if err != nil {
		return helper.NewError("init evals", err)
	}

	h.db.Logger.Info("Checked/created table eval_rows")

	return nil
}

// InsertEval persists one evaluation row and sets its id and creation time.
func (h *EvalsDBHandler) InsertEval(ctx context.Context, eval *model.RetrievalEval) error {
	if eval.RecallAtK < 0 || eval.RecallAtK > 1 {
		return helper.NewError("validate recall", fmt.Errorf("%w: recall %v outside [0,1]", model.ErrValidation, eval.RecallAtK))
	}

	row := h.db.Instance.QueryRowContext(
		ctx,
		`SELECT * FROM insert_eval($1, $2, $3::uuid[], $4, $5::uuid[], $6)`,
		eval.TraceID,
		eval.Query,
		pq.Array(uuidStrings(eval.GoldChunks)),
		eval.TopK,
		pq.Array(uuidStrings(eval.Hits)),
		eval.RecallAtK,
	)

	err := row.Scan(&eval.ID, &eval.CreatedAt)
	if err != nil {
		return helper.NewError("scan", err)
	}

	return nil
}

// SelectLeaderboard returns the summary over all rows and the latest limit rows, newest first.
func (h *EvalsDBHandler) SelectLeaderboard(ctx context.Context, limit int) (*model.Leaderboard, error) {
	if limit <= 0 {
		return nil, helper.NewError("validate limit", fmt.Errorf("%w: limit must be positive, got %d", model.ErrValidation, limit))
	}

	board := &model.Leaderboard{Rows: []*model.RetrievalEval{}}

	var numEvals int64
	var lastEvalAt sql.NullTime
	err := h.db.Instance.QueryRowContext(ctx, `SELECT * FROM select_eval_summary()`).Scan(
		&board.Summary.AvgRecall,
		&numEvals,
		&lastEvalAt,
	)
	if err != nil {
		return nil, helper.NewError("scan summary", err)
	}
	board.Summary.NumEvals = int(numEvals)
	if lastEvalAt.Valid {
		board.Summary.LastEvalAt = &lastEvalAt.Time
	}

	rows, err := h.db.Instance.QueryContext(ctx, `SELECT * FROM select_recent_evals($1)`, limit)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	for rows.Next() {
		eval := &model.RetrievalEval{}
		var gold, hits []string
		err := rows.Scan(
			&eval.ID,
			&eval.TraceID,
			&eval.Query,
			pq.Array(&gold),
			&eval.TopK,
			pq.Array(&hits),
			&eval.RecallAtK,
			&eval.CreatedAt,
		)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}

		if eval.GoldChunks, err = parseUUIDs(gold); err != nil {
			return nil, err
		}
		if eval.Hits, err = parseUUIDs(hits); err != nil {
			return nil, err
		}

		board.Rows = append(board.Rows, eval)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return board, nil
}
