package evaluation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/siherrmann/securerag/helper"
	"github.com/siherrmann/securerag/model"
	"golang.org/x/sync/errgroup"
)

// Searcher is the public search contract. Both the in-process SecureRAG and the HTTP client implement it.
type Searcher interface {
	Search(ctx context.Context, principal model.Principal, req model.SearchRequest) (*model.SearchResponse, error)
}

// ChunkResolver expands documents to their chunk ids.
type ChunkResolver interface {
	SelectChunkIDsByDocuments(ctx context.Context, documentIDs []uuid.UUID) ([]uuid.UUID, error)
}

// EvalWriter persists one evaluation row.
type EvalWriter interface {
	InsertEval(ctx context.Context, eval *model.RetrievalEval) error
}

// RecallEvaluator replays gold queries through a Searcher and records binary recall per query.
type RecallEvaluator struct {
	searcher Searcher
	chunks   ChunkResolver
	evals    EvalWriter
	logger   *slog.Logger

	// DefaultTopK is used for gold items without top_k.
	DefaultTopK int
	// Concurrency bounds the number of queries replayed at once. Values below 2 run sequentially.
	Concurrency int
}

// NewRecallEvaluator creates a new recall evaluator.
func NewRecallEvaluator(searcher Searcher, chunks ChunkResolver, evals EvalWriter, logger *slog.Logger) *RecallEvaluator {
	return &RecallEvaluator{
		searcher:    searcher,
		chunks:      chunks,
		evals:       evals,
		logger:      logger,
		DefaultTopK: 5,
		Concurrency: 1,
	}
}

// Run evaluates all items as principal and writes one row per item. The first failing item
// aborts the run with an error naming its query, rows of completed items stay persisted.
func (e *RecallEvaluator) Run(ctx context.Context, principal model.Principal, items []model.GoldItem) (*model.RecallReport, error) {
	if len(items) == 0 {
		return nil, helper.NewError("recall evaluation", fmt.Errorf("%w: gold set is empty", model.ErrValidation))
	}

	results := make([]*model.RetrievalEval, len(items))

	if e.Concurrency < 2 {
		for i, item := range items {
			eval, err := e.evaluate(ctx, principal, item)
			if err != nil {
				return nil, err
			}
			results[i] = eval
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(e.Concurrency)
		for i, item := range items {
			g.Go(func() error {
				eval, err := e.evaluate(gctx, principal, item)
				if err != nil {
					return err
				}
				results[i] = eval
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	report := &model.RecallReport{Evals: results}
	var sum float64
	for _, r := range results {
		sum += r.RecallAtK
	}
	report.AvgRecall = sum / float64(len(results))

	e.logger.Info("Recall evaluation finished", slog.Int("queries", len(results)), slog.Float64("avg_recall", report.AvgRecall))

	return report, nil
}

func (e *RecallEvaluator) evaluate(ctx context.Context, principal model.Principal, item model.GoldItem) (*model.RetrievalEval, error) {
	fail := func(err error) error {
		return helper.NewError("recall evaluation", fmt.Errorf("%w: query %q: %v", model.ErrEvaluation, item.Query, err))
	}

	if strings.TrimSpace(item.Query) == "" {
		return nil, fail(fmt.Errorf("%w: query is empty", model.ErrValidation))
	}

	gold, err := e.goldChunks(ctx, item)
	if err != nil {
		return nil, fail(err)
	}
	if len(gold) == 0 {
		return nil, fail(fmt.Errorf("%w: gold set resolves to no chunks", model.ErrValidation))
	}

	topK := item.TopK
	if topK <= 0 {
		topK = e.DefaultTopK
	}

	resp, err := e.searcher.Search(ctx, principal, model.SearchRequest{Query: item.Query, TopK: topK})
	if err != nil {
		return nil, fail(err)
	}

	hits := resp.ChunkIDs()
	eval := &model.RetrievalEval{
		TraceID:    resp.TraceID,
		Query:      item.Query,
		GoldChunks: gold,
		TopK:       topK,
		Hits:       hits,
		RecallAtK:  BinaryRecall(gold, hits),
	}

	if err := e.evals.InsertEval(ctx, eval); err != nil {
		return nil, fail(err)
	}

	e.logger.Debug("Evaluated query", slog.String("query", item.Query), slog.Float64("recall", eval.RecallAtK))

	return eval, nil
}

// goldChunks returns the gold chunk ids plus all chunks of the gold documents, deduplicated.
func (e *RecallEvaluator) goldChunks(ctx context.Context, item model.GoldItem) ([]uuid.UUID, error) {
	gold := slices.Clone(item.GoldChunks)
	if len(item.GoldDocuments) > 0 {
		expanded, err := e.chunks.SelectChunkIDsByDocuments(ctx, item.GoldDocuments)
		if err != nil {
			return nil, err
		}
		gold = append(gold, expanded...)
	}

	seen := make(map[uuid.UUID]struct{}, len(gold))
	out := make([]uuid.UUID, 0, len(gold))
	for _, id := range gold {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out, nil
}

// BinaryRecall is 1 if any hit is in the gold set and 0 otherwise.
func BinaryRecall(gold []uuid.UUID, hits []uuid.UUID) float64 {
	for _, h := range hits {
		if slices.Contains(gold, h) {
			return 1
		}
	}
	return 0
}

// LoadGoldFile reads a JSON array of gold items.
func LoadGoldFile(path string) ([]model.GoldItem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, helper.NewError("read gold file", err)
	}

	var items []model.GoldItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, helper.NewError("parse gold file", fmt.Errorf("%w: %v", model.ErrValidation, err))
	}

	return items, nil
}
