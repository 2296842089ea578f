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

// RedactionsDBHandlerFunctions defines the interface for redaction log operations.
type RedactionsDBHandlerFunctions interface {
	InsertRedactions(ctx context.Context, tx helper.Querier, documentID uuid.UUID, entries []*model.RedactionLogEntry) (int, error)
	SelectRedactionCounts(ctx context.Context, window time.Duration) ([]model.EntityCount, error)
	SelectRedactionStats(ctx context.Context) (*model.SecurityStats, error)
}

// RedactionsDBHandler handles the redaction log.
type RedactionsDBHandler struct {
	db *helper.Database
}

// NewRedactionsDBHandler creates a new redaction log database handler.
// If force is true, it will reload the SQL functions even if they already exist.
func NewRedactionsDBHandler(db *helper.Database, force bool) (*RedactionsDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	redactionsDbHandler := &RedactionsDBHandler{
		db: db,
	}

	err := sql.LoadRedactionsSql(redactionsDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load redactions sql", err)
	}

	err = redactionsDbHandler.CreateTable()
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized RedactionsDBHandler")

	return redactionsDbHandler, nil
}

// CreateTable creates the 'redaction_log' table in the database if it does not exist.
func (h *RedactionsDBHandler) CreateTable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_redactions();`)
	if err != nil {
		return helper.NewError("init redactions", err)
	}

	h.db.Logger.Info("Checked/created table redaction_log")

	return nil
}

// InsertRedactions writes one log row per entry. Entries with a count below one are skipped.
// It returns the number of rows written.
func (h *RedactionsDBHandler) InsertRedactions(ctx context.Context, tx helper.Querier, documentID uuid.UUID, entries []*model.RedactionLogEntry) (int, error) {
	chunkIDs := make([]string, 0, len(entries))
	entityTypes := make([]string, 0, len(entries))
	counts := make([]int64, 0, len(entries))
	for _, e := range entries {
		if e.Count < 1 {
			continue
		}
		chunkIDs = append(chunkIDs, e.ChunkID.String())
		entityTypes = append(entityTypes, string(e.EntityType))
		counts = append(counts, int64(e.Count))
	}
	if len(chunkIDs) == 0 {
		return 0, nil
	}

	var inserted int
	err := querier(h.db, tx).QueryRowContext(
		ctx,
		`SELECT insert_redactions($1, $2::uuid[], $3, $4::integer[])`,
		documentID,
		pq.Array(chunkIDs),
		pq.Array(entityTypes),
		pq.Array(counts),
	).Scan(&inserted)
	if err != nil {
		return 0, helper.NewError("scan", err)
	}

	return inserted, nil
}

// SelectRedactionCounts sums counts per entity type for rows created within window before
// the database clock. A zero window covers the whole log.
func (h *RedactionsDBHandler) SelectRedactionCounts(ctx context.Context, window time.Duration) ([]model.EntityCount, error) {
	var windowSeconds *float64
	if window > 0 {
		seconds := window.Seconds()
		windowSeconds = &seconds
	}

	rows, err := h.db.Instance.QueryContext(
		ctx,
		`SELECT * FROM select_redaction_counts($1)`,
		windowSeconds,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	counts := []model.EntityCount{}
	for rows.Next() {
		var entityType string
		var total int64
		if err := rows.Scan(&entityType, &total); err != nil {
			return nil, helper.NewError("scan", err)
		}
		counts = append(counts, model.EntityCount{EntityType: model.EntityType(entityType), Total: int(total)})
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return counts, nil
}

// SelectRedactionStats aggregates the log over all time, the last seven days and the last day.
// Windows are relative to the database clock, the same clock that stamps the rows.
func (h *RedactionsDBHandler) SelectRedactionStats(ctx context.Context) (*model.SecurityStats, error) {
	stats := &model.SecurityStats{}

	err := h.db.Instance.QueryRowContext(ctx, `SELECT now()`).Scan(&stats.Computed)
	if err != nil {
		return nil, helper.NewError("select now", err)
	}
	stats.Computed = stats.Computed.UTC()

	stats.Totals, err = h.SelectRedactionCounts(ctx, 0)
	if err != nil {
		return nil, helper.NewError("select totals", err)
	}

	stats.Last7d, err = h.SelectRedactionCounts(ctx, 7*24*time.Hour)
	if err != nil {
		return nil, helper.NewError("select last 7d", err)
	}

	stats.Last24h, err = h.SelectRedactionCounts(ctx, 24*time.Hour)
	if err != nil {
		return nil, helper.NewError("select last 24h", err)
	}

	return stats, nil
}
