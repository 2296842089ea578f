package audit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/securerag/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryWriter stores traces in memory. A non nil block channel holds every write until it is closed.
type memoryWriter struct {
	mu     sync.Mutex
	traces []*model.RetrievalTrace
	err    error
	block  chan struct{}
}

func (w *memoryWriter) InsertTrace(ctx context.Context, trace *model.RetrievalTrace) error {
	if w.block != nil {
		<-w.block
	}
	if w.err != nil {
		return w.err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.traces = append(w.traces, trace)
	return nil
}

func (w *memoryWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.traces)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testTrace() *model.RetrievalTrace {
	hits := []model.SearchHit{{ChunkID: uuid.New(), Score: 0.9}, {ChunkID: uuid.New(), Score: 0.4}}
	return model.NewRetrievalTrace(uuid.New(), "merger agreement", 5, hits)
}

func TestTraceLogger(t *testing.T) {
	t.Run("Logged traces are persisted", func(t *testing.T) {
		writer := &memoryWriter{}
		logger := NewTraceLogger(writer, 2, 16, testLogger())

		trace := testTrace()
		id := logger.Log(context.Background(), trace)
		assert.Equal(t, trace.ID, id)

		require.NoError(t, logger.Close(context.Background()))
		assert.Equal(t, 1, writer.count())
		assert.Equal(t, TraceStats{Enqueued: 1, Persisted: 1}, logger.Stats())
	})

	t.Run("Missing id is assigned before enqueueing", func(t *testing.T) {
		logger := NewTraceLogger(&memoryWriter{}, 1, 1, testLogger())
		defer logger.Close(context.Background())

		id := logger.Log(context.Background(), &model.RetrievalTrace{Query: "q", TopK: 1})
		assert.NotEqual(t, uuid.Nil, id)
	})

	t.Run("Full queue drops without blocking", func(t *testing.T) {
		writer := &memoryWriter{block: make(chan struct{})}
		logger := NewTraceLogger(writer, 1, 1, testLogger())

		done := make(chan struct{})
		go func() {
			for i := 0; i < 5; i++ {
				logger.Log(context.Background(), testTrace())
			}
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("Expected Log to never block")
		}

		close(writer.block)
		require.NoError(t, logger.Close(context.Background()))

		stats := logger.Stats()
		assert.Equal(t, int64(5), stats.Enqueued+stats.Dropped)
		assert.GreaterOrEqual(t, stats.Dropped, int64(3), "Expected at most one queued and one in flight trace")
		assert.Equal(t, stats.Enqueued, stats.Persisted)
	})

	t.Run("Write failures are counted", func(t *testing.T) {
		writer := &memoryWriter{err: errors.New("db down")}
		logger := NewTraceLogger(writer, 1, 4, testLogger())

		logger.Log(context.Background(), testTrace())
		require.NoError(t, logger.Close(context.Background()))
		assert.Equal(t, int64(1), logger.Stats().Failed)
	})

	t.Run("Cancelled request context does not cancel the write", func(t *testing.T) {
		writer := &memoryWriter{}
		logger := NewTraceLogger(writer, 1, 4, testLogger())

		ctx, cancel := context.WithCancel(context.Background())
		logger.Log(ctx, testTrace())
		cancel()

		require.NoError(t, logger.Close(context.Background()))
		assert.Equal(t, 1, writer.count())
	})

	t.Run("Log after close is dropped", func(t *testing.T) {
		logger := NewTraceLogger(&memoryWriter{}, 1, 4, testLogger())
		require.NoError(t, logger.Close(context.Background()))
		require.NoError(t, logger.Close(context.Background()), "Expected Close to be idempotent")

		logger.Log(context.Background(), testTrace())
		assert.Equal(t, int64(1), logger.Stats().Dropped)
	})

	t.Run("Close returns when context expires", func(t *testing.T) {
		writer := &memoryWriter{block: make(chan struct{})}
		defer close(writer.block)
		logger := NewTraceLogger(writer, 1, 4, testLogger())
		logger.Log(context.Background(), testTrace())

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		assert.Error(t, logger.Close(ctx))
	})
}
