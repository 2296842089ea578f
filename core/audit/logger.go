package audit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/securerag/model"
)

// TraceWriter persists a trace. database.TracesDBHandler writes it to postgres,
// AMQPPublisher hands it to a broker.
type TraceWriter interface {
	InsertTrace(ctx context.Context, trace *model.RetrievalTrace) error
}

// TraceStats counts what happened to the traces handed to a TraceLogger.
type TraceStats struct {
	Enqueued  int64 `json:"enqueued"`
	Persisted int64 `json:"persisted"`
	Failed    int64 `json:"failed"`
	Dropped   int64 `json:"dropped"`
}

type traceJob struct {
	ctx   context.Context
	trace *model.RetrievalTrace
}

// TraceLogger writes traces asynchronously through a fixed pool of workers.
// Log never blocks: a trace that does not fit into the queue is dropped and counted.
type TraceLogger struct {
	writer       TraceWriter
	logger       *slog.Logger
	writeTimeout time.Duration

	queue  chan traceJob
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool

	enqueued  atomic.Int64
	persisted atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
}

// NewTraceLogger starts workers goroutines writing traces from a queue of queueSize.
func NewTraceLogger(writer TraceWriter, workers int, queueSize int, logger *slog.Logger) *TraceLogger {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 1
	}

	l := &TraceLogger{
		writer:       writer,
		logger:       logger,
		writeTimeout: 10 * time.Second,
		queue:        make(chan traceJob, queueSize),
	}

	l.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go l.work()
	}

	logger.Info("Started trace logger", slog.Int("workers", workers), slog.Int("queue_size", queueSize))

	return l
}

// Log assigns the trace an id if it has none, enqueues it and returns the id.
// Cancellation of ctx does not cancel the write, its values are kept for the writer.
func (l *TraceLogger) Log(ctx context.Context, trace *model.RetrievalTrace) uuid.UUID {
	if trace.ID == uuid.Nil {
		trace.ID = uuid.New()
	}
	if trace.CreatedAt.IsZero() {
		trace.CreatedAt = time.Now().UTC()
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.closed {
		l.dropped.Add(1)
		l.logger.Warn("Dropped trace, logger is closed", slog.String("trace_id", trace.ID.String()))
		return trace.ID
	}

	select {
	case l.queue <- traceJob{ctx: context.WithoutCancel(ctx), trace: trace}:
		l.enqueued.Add(1)
	default:
		l.dropped.Add(1)
		l.logger.Warn("Dropped trace, queue is full", slog.String("trace_id", trace.ID.String()))
	}

	return trace.ID
}

// Stats returns a snapshot of the counters.
func (l *TraceLogger) Stats() TraceStats {
	return TraceStats{
		Enqueued:  l.enqueued.Load(),
		Persisted: l.persisted.Load(),
		Failed:    l.failed.Load(),
		Dropped:   l.dropped.Load(),
	}
}

// Close stops accepting traces and waits until the queue is drained or ctx is done.
func (l *TraceLogger) Close(ctx context.Context) error {
	l.mu.Lock()
	if !l.closed {
		l.closed = true
		close(l.queue)
	}
	l.mu.Unlock()

	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		stats := l.Stats()
		l.logger.Info("Stopped trace logger", slog.Int64("persisted", stats.Persisted), slog.Int64("failed", stats.Failed), slog.Int64("dropped", stats.Dropped))
		return nil
	case <-ctx.Done():
		return fmt.Errorf("trace logger drain interrupted: %w", ctx.Err())
	}
}

func (l *TraceLogger) work() {
	defer l.wg.Done()

	for job := range l.queue {
		ctx, cancel := context.WithTimeout(job.ctx, l.writeTimeout)
		err := l.writer.InsertTrace(ctx, job.trace)
		cancel()

		if err != nil {
			l.failed.Add(1)
			l.logger.Error("Failed to persist trace", slog.String("trace_id", job.trace.ID.String()), slog.String("error", err.Error()))
			continue
		}
		l.persisted.Add(1)
		l.logger.Debug("Persisted trace", slog.String("trace_id", job.trace.ID.String()), slog.Int("hits", len(job.trace.Hits)))
	}
}
