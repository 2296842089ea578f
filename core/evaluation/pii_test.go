package evaluation

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/siherrmann/securerag/core/pipeline"
	"github.com/siherrmann/securerag/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countRedactor reports fixed counts for every text.
type countRedactor struct {
	counts map[model.EntityType]int
	err    error
}

func (r *countRedactor) Redact(ctx context.Context, text string, allowed []model.EntityType) (string, map[model.EntityType]int, error) {
	return text, r.counts, r.err
}

type memoryRuns struct {
	runs []*model.PIIEvalRun
}

func (m *memoryRuns) InsertRun(ctx context.Context, run *model.PIIEvalRun) error {
	m.runs = append(m.runs, run)
	return nil
}

func metricFor(run *model.PIIEvalRun, t model.EntityType) model.PIIEntityMetric {
	for _, m := range run.Entities {
		if m.EntityType == t {
			return m
		}
	}
	return model.PIIEntityMetric{}
}

func TestPIIEvaluator(t *testing.T) {
	ctx := context.Background()
	entities := []model.EntityType{model.EntityEmail, model.EntityPhone}

	t.Run("Counts are scored against gold occurrences", func(t *testing.T) {
		redactor := &countRedactor{counts: map[model.EntityType]int{model.EntityEmail: 2, model.EntitySSN: 1}}
		runs := &memoryRuns{}
		evaluator := NewPIIEvaluator(redactor, entities, runs, discardLogger(), WithNotes("unit"), WithSeed(7))

		run, err := evaluator.Run(ctx, []model.PIISample{{
			Text: "a@x.com reached out to us. Their phone number is 555-000-1111.",
			Gold: []model.GoldEntity{
				{Type: model.EntityEmail, Value: "a@x.com"},
				{Type: model.EntityPhone, Value: "555-000-1111"},
			},
		}})
		require.NoError(t, err)

		email := metricFor(run, model.EntityEmail)
		assert.Equal(t, 1, email.TP)
		assert.Equal(t, 1, email.FP, "Expected the extra email detection to be a false positive")
		assert.Equal(t, 0, email.FN)

		phone := metricFor(run, model.EntityPhone)
		assert.Equal(t, 0, phone.TP)
		assert.Equal(t, 1, phone.FN)

		ssn := metricFor(run, model.EntitySSN)
		assert.Equal(t, 1, ssn.FP, "Expected detections of types absent from gold to be false positives")

		assert.Equal(t, 1, run.Overall.TP)
		assert.Equal(t, 2, run.Overall.FP)
		assert.Equal(t, 1, run.Overall.FN)
		assert.InDelta(t, 1.0/3, run.Overall.Precision, 1e-9)
		assert.InDelta(t, 0.5, run.Overall.Recall, 1e-9)
		assert.InDelta(t, 0.4, run.Overall.F1, 1e-9)
		assert.Equal(t, "unit", run.Notes)
		assert.Equal(t, uint64(7), run.Seed)
		assert.Equal(t, 1, run.Samples)
		require.Len(t, runs.runs, 1)
	})

	t.Run("Pattern redactor finds planted structured entities", func(t *testing.T) {
		redactor := pipeline.NewRedactor(pipeline.NewPatternRecognizer())
		structured := []model.EntityType{model.EntityEmail, model.EntityPhone, model.EntitySSN}
		samples := NewPIIGenerator(DefaultSeed, structured).Samples(DefaultSampleCount)

		run, err := NewPIIEvaluator(redactor, structured, nil, discardLogger()).Run(ctx, samples)
		require.NoError(t, err)
		assert.Equal(t, 1.0, run.Overall.Recall, "Expected every generated email, phone and ssn to be detected")
		assert.Equal(t, 1.0, run.Overall.Precision)
	})

	t.Run("Redactor failure aborts the run", func(t *testing.T) {
		evaluator := NewPIIEvaluator(&countRedactor{err: errors.New("down")}, entities, nil, discardLogger())
		_, err := evaluator.Run(ctx, []model.PIISample{{Text: "x"}})
		assert.ErrorIs(t, err, model.ErrEvaluation)
	})

	t.Run("No samples is a validation error", func(t *testing.T) {
		_, err := NewPIIEvaluator(&countRedactor{}, entities, nil, discardLogger()).Run(ctx, nil)
		assert.ErrorIs(t, err, model.ErrValidation)
	})
}

func TestPIIGenerator(t *testing.T) {
	t.Run("Same seed produces same samples", func(t *testing.T) {
		first := NewPIIGenerator(DefaultSeed, model.DefaultEntities).Samples(20)
		second := NewPIIGenerator(DefaultSeed, model.DefaultEntities).Samples(20)
		assert.Equal(t, first, second)
	})

	t.Run("Different seeds produce different samples", func(t *testing.T) {
		first := NewPIIGenerator(1, model.DefaultEntities).Samples(5)
		second := NewPIIGenerator(2, model.DefaultEntities).Samples(5)
		assert.NotEqual(t, first, second)
	})

	t.Run("Samples plant one to three distinct entities", func(t *testing.T) {
		for _, s := range NewPIIGenerator(DefaultSeed, model.DefaultEntities).Samples(DefaultSampleCount) {
			require.GreaterOrEqual(t, len(s.Gold), 1)
			require.LessOrEqual(t, len(s.Gold), 3)
			seen := map[model.EntityType]bool{}
			for _, g := range s.Gold {
				assert.False(t, seen[g.Type], "Expected distinct entity types in %q", s.Text)
				seen[g.Type] = true
				assert.True(t, strings.Contains(s.Text, g.Value), "Expected %q to contain %q", s.Text, g.Value)
			}
		}
	})

	t.Run("Unsupported entities fall back to defaults", func(t *testing.T) {
		s := NewPIIGenerator(DefaultSeed, []model.EntityType{"UNKNOWN"}).Sample()
		for _, g := range s.Gold {
			assert.Contains(t, model.DefaultEntities, g.Type)
		}
	})

	t.Run("Generated card numbers pass the checksum", func(t *testing.T) {
		redactor := pipeline.NewRedactor(pipeline.NewPatternRecognizer())
		for _, s := range NewPIIGenerator(3, []model.EntityType{model.EntityCreditCard}).Samples(10) {
			_, counts, err := redactor.Redact(context.Background(), s.Text, []model.EntityType{model.EntityCreditCard})
			require.NoError(t, err)
			assert.Equal(t, 1, counts[model.EntityCreditCard], "Expected card in %q to be detected", s.Text)
		}
	})
}
