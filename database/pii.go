package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/siherrmann/securerag/helper"
	"github.com/siherrmann/securerag/model"
	loadSql "github.com/siherrmann/securerag/sql"
)

// PIIDBHandlerFunctions defines the interface for PII evaluation run operations.
type PIIDBHandlerFunctions interface {
	InsertRun(ctx context.Context, run *model.PIIEvalRun) error
	SelectRecentRuns(ctx context.Context, limit int) ([]*model.PIIEvalRun, error)
}

// PIIDBHandler handles PII evaluation runs with their per entity and overall metrics.
type PIIDBHandler struct {
	db *helper.Database
}

// NewPIIDBHandler creates a new PII evaluation database handler.
// If force is true, it will reload the SQL functions even if they already exist.
func NewPIIDBHandler(db *helper.Database, force bool) (*PIIDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	piiDbHandler := &PIIDBHandler{
		db: db,
	}

	err := loadSql.LoadPIISql(piiDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load pii sql", err)
	}

	err = piiDbHandler.CreateTable()
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized PIIDBHandler")

	return piiDbHandler, nil
}

// CreateTable creates the 'pii_runs', 'pii_entity_metrics' and 'pii_overall' tables if they do not exist.
func (h *PIIDBHandler) CreateTable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_pii();`)
	if err != nil {
		return helper.NewError("init pii", err)
	}

	h.db.Logger.Info("Checked/created pii evaluation tables")

	return nil
}

// InsertRun persists the run, its entity metrics and the overall metrics in one transaction.
// It sets the id and creation time of run.
func (h *PIIDBHandler) InsertRun(ctx context.Context, run *model.PIIEvalRun) error {
	return h.db.WithTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(
			ctx,
			`SELECT * FROM insert_pii_run($1, $2, $3)`,
			run.Notes,
			run.Samples,
			int64(run.Seed),
		).Scan(&run.ID, &run.CreatedAt)
		if err != nil {
			return helper.NewError("scan", err)
		}

		for _, m := range run.Entities {
			_, err := tx.ExecContext(
				ctx,
				`SELECT insert_pii_entity_metric($1, $2, $3, $4, $5, $6, $7, $8)`,
				run.ID,
				string(m.EntityType),
				m.TP,
				m.FP,
				m.FN,
				m.Precision,
				m.Recall,
				m.F1,
			)
			if err != nil {
				return helper.NewError("insert entity metric", err)
			}
		}

		o := run.Overall
		_, err = tx.ExecContext(
			ctx,
			`SELECT insert_pii_overall($1, $2, $3, $4, $5, $6, $7)`,
			run.ID,
			o.TP,
			o.FP,
			o.FN,
			o.Precision,
			o.Recall,
			o.F1,
		)
		if err != nil {
			return helper.NewError("insert overall", err)
		}

		return nil
	})
}

// SelectRecentRuns returns the latest limit runs, newest first, with their metrics.
func (h *PIIDBHandler) SelectRecentRuns(ctx context.Context, limit int) ([]*model.PIIEvalRun, error) {
	if limit <= 0 {
		return nil, helper.NewError("validate limit", fmt.Errorf("%w: limit must be positive, got %d", model.ErrValidation, limit))
	}

	rows, err := h.db.Instance.QueryContext(ctx, `SELECT * FROM select_recent_pii_runs($1)`, limit)
	if err != nil {
		return nil, helper.NewError("query", err)
	}

	runs := []*model.PIIEvalRun{}
	for rows.Next() {
		run := &model.PIIEvalRun{}
		var seed int64
		o := &run.Overall
		err := rows.Scan(
			&run.ID,
			&run.Notes,
			&run.Samples,
			&seed,
			&run.CreatedAt,
			&o.TP,
			&o.FP,
			&o.FN,
			&o.Precision,
			&o.Recall,
			&o.F1,
		)
		if err != nil {
			rows.Close()
			return nil, helper.NewError("scan", err)
		}
		run.Seed = uint64(seed)
		runs = append(runs, run)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	for _, run := range runs {
		run.Entities, err = h.selectEntityMetrics(ctx, run)
		if err != nil {
			return nil, err
		}
	}

	return runs, nil
}

func (h *PIIDBHandler) selectEntityMetrics(ctx context.Context, run *model.PIIEvalRun) ([]model.PIIEntityMetric, error) {
	rows, err := h.db.Instance.QueryContext(ctx, `SELECT * FROM select_pii_entity_metrics($1)`, run.ID)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	metrics := []model.PIIEntityMetric{}
	for rows.Next() {
		m := model.PIIEntityMetric{}
		var entityType string
		err := rows.Scan(
			&entityType,
			&m.TP,
			&m.FP,
			&m.FN,
			&m.Precision,
			&m.Recall,
			&m.F1,
		)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}
		m.EntityType = model.EntityType(entityType)
		metrics = append(metrics, m)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return metrics, nil
}
