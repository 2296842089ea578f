package database

import (
	"context"
	"testing"

	"github.com/siherrmann/securerag/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPIINewPIIDBHandler(t *testing.T) {
	database := initDB(t)

	t.Run("Valid call NewPIIDBHandler", func(t *testing.T) {
		piiDbHandler, err := NewPIIDBHandler(database, true)
		assert.NoError(t, err, "Expected NewPIIDBHandler to not return an error")
		require.NotNil(t, piiDbHandler)
	})

	t.Run("Invalid call NewPIIDBHandler with nil database", func(t *testing.T) {
		_, err := NewPIIDBHandler(nil, false)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "database connection is nil")
	})
}

func TestPIIRuns(t *testing.T) {
	database := initDB(t)
	ctx := context.Background()

	piiDbHandler, err := NewPIIDBHandler(database, true)
	require.NoError(t, err)

	run := &model.PIIEvalRun{
		Notes:   "pattern recognizer",
		Samples: 100,
		Seed:    42,
		Entities: []model.PIIEntityMetric{
			{EntityType: model.EntityEmail, TP: 10, FP: 0, FN: 0, Precision: 1, Recall: 1, F1: 1},
			{EntityType: model.EntityPerson, TP: 5, FP: 1, FN: 5, Precision: 5.0 / 6.0, Recall: 0.5, F1: 0.625},
		},
		Overall: model.PIIOverall{TP: 15, FP: 1, FN: 5, Precision: 15.0 / 16.0, Recall: 0.75, F1: 0.8333},
	}

	t.Run("Insert run with metrics", func(t *testing.T) {
		err := piiDbHandler.InsertRun(ctx, run)
		require.NoError(t, err, "Expected InsertRun to not return an error")
		assert.NotEmpty(t, run.ID)
		assert.False(t, run.CreatedAt.IsZero())
	})

	t.Run("Select recent runs returns metrics", func(t *testing.T) {
		runs, err := piiDbHandler.SelectRecentRuns(ctx, 5)
		require.NoError(t, err)
		require.NotEmpty(t, runs)

		latest := runs[0]
		assert.Equal(t, run.ID, latest.ID)
		assert.Equal(t, uint64(42), latest.Seed)
		assert.Equal(t, 100, latest.Samples)
		assert.Equal(t, 15, latest.Overall.TP)
		assert.InDelta(t, 0.75, latest.Overall.Recall, 1e-9)
		require.Len(t, latest.Entities, 2)
		assert.Equal(t, model.EntityEmail, latest.Entities[0].EntityType)
		assert.Equal(t, 5, latest.Entities[1].FN)
	})

	t.Run("Duplicate entity metric rolls back the run", func(t *testing.T) {
		broken := &model.PIIEvalRun{
			Notes:   "broken",
			Samples: 1,
			Seed:    1,
			Entities: []model.PIIEntityMetric{
				{EntityType: model.EntityEmail},
				{EntityType: model.EntityEmail},
			},
		}
		err := piiDbHandler.InsertRun(ctx, broken)
		require.Error(t, err)

		var count int
		err = database.Instance.QueryRowContext(ctx, `SELECT COUNT(*) FROM pii_runs WHERE notes = 'broken'`).Scan(&count)
		require.NoError(t, err)
		assert.Zero(t, count, "Expected the run to be rolled back")
	})

	t.Run("Non positive limit is rejected", func(t *testing.T) {
		_, err := piiDbHandler.SelectRecentRuns(ctx, 0)
		assert.ErrorIs(t, err, model.ErrValidation)
	})
}
