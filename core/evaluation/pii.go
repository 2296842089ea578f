package evaluation

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/siherrmann/securerag/helper"
	"github.com/siherrmann/securerag/model"
)

// Redactor is the redaction contract the harness measures.
type Redactor interface {
	Redact(ctx context.Context, text string, allowed []model.EntityType) (string, map[model.EntityType]int, error)
}

// RunWriter persists a PII evaluation run.
type RunWriter interface {
	InsertRun(ctx context.Context, run *model.PIIEvalRun) error
}

// PIIEvaluator measures redaction quality on samples with known entities.
type PIIEvaluator struct {
	redactor Redactor
	entities []model.EntityType
	runs     RunWriter
	logger   *slog.Logger
	notes    string
	seed     uint64
}

// PIIEvaluatorOption configures a PIIEvaluator.
type PIIEvaluatorOption func(*PIIEvaluator)

// WithNotes sets the notes stored with the run.
func WithNotes(notes string) PIIEvaluatorOption {
	return func(e *PIIEvaluator) {
		e.notes = notes
	}
}

// WithSeed records the seed the samples were generated with.
func WithSeed(seed uint64) PIIEvaluatorOption {
	return func(e *PIIEvaluator) {
		e.seed = seed
	}
}

// NewPIIEvaluator creates a harness redacting with the given entity allow-list.
// A nil runs writer skips persistence.
func NewPIIEvaluator(redactor Redactor, entities []model.EntityType, runs RunWriter, logger *slog.Logger, opts ...PIIEvaluatorOption) *PIIEvaluator {
	e := &PIIEvaluator{
		redactor: redactor,
		entities: slices.Clone(entities),
		runs:     runs,
		logger:   logger,
		notes:    "synthetic PII eval",
		seed:     DefaultSeed,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type confusion struct {
	tp, fp, fn int
}

// Run redacts every sample and scores the reported counts against the planted entities.
// For each gold entity tp = min(occurrences of its value, detected count of its type),
// detections of types absent from the gold set are false positives.
func (e *PIIEvaluator) Run(ctx context.Context, samples []model.PIISample) (*model.PIIEvalRun, error) {
	if len(samples) == 0 {
		return nil, helper.NewError("pii evaluation", fmt.Errorf("%w: no samples", model.ErrValidation))
	}

	perType := map[model.EntityType]*confusion{}
	for _, t := range e.entities {
		perType[t] = &confusion{}
	}
	get := func(t model.EntityType) *confusion {
		c, ok := perType[t]
		if !ok {
			c = &confusion{}
			perType[t] = c
		}
		return c
	}

	for i, sample := range samples {
		_, counts, err := e.redactor.Redact(ctx, sample.Text, e.entities)
		if err != nil {
			return nil, helper.NewError("pii evaluation", fmt.Errorf("%w: sample %d: %v", model.ErrEvaluation, i, err))
		}

		inGold := map[model.EntityType]bool{}
		for _, g := range sample.Gold {
			occurrences := strings.Count(sample.Text, g.Value)
			tp := min(occurrences, counts[g.Type])

			c := get(g.Type)
			c.tp += tp
			c.fn += max(0, occurrences-tp)
			c.fp += max(0, counts[g.Type]-tp)
			inGold[g.Type] = true
		}

		for t, n := range counts {
			if !inGold[t] && n > 0 {
				get(t).fp += n
			}
		}
	}

	run := &model.PIIEvalRun{
		Notes:   e.notes,
		Samples: len(samples),
		Seed:    e.seed,
	}

	types := make([]model.EntityType, 0, len(perType))
	for t := range perType {
		types = append(types, t)
	}
	slices.Sort(types)

	for _, t := range types {
		c := perType[t]
		p, r, f1 := model.Scores(c.tp, c.fp, c.fn)
		run.Entities = append(run.Entities, model.PIIEntityMetric{
			EntityType: t,
			TP:         c.tp,
			FP:         c.fp,
			FN:         c.fn,
			Precision:  p,
			Recall:     r,
			F1:         f1,
		})
		run.Overall.TP += c.tp
		run.Overall.FP += c.fp
		run.Overall.FN += c.fn
	}
	run.Overall.Precision, run.Overall.Recall, run.Overall.F1 = model.Scores(run.Overall.TP, run.Overall.FP, run.Overall.FN)

	if e.runs != nil {
		if err := e.runs.InsertRun(ctx, run); err != nil {
			return nil, helper.NewError("insert pii run", err)
		}
	}

	e.logger.Info("PII evaluation finished",
		slog.Int("samples", run.Samples),
		slog.Float64("precision", run.Overall.Precision),
		slog.Float64("recall", run.Overall.Recall),
		slog.Float64("f1", run.Overall.F1),
	)

	return run, nil
}
