package securerag

import (
	"context"
	"log/slog"

	"github.com/siherrmann/securerag/core/audit"
	"github.com/siherrmann/securerag/core/pipeline"
	"github.com/siherrmann/securerag/helper"
	"github.com/siherrmann/securerag/model"
)

// Open connects to the database, builds the providers selected by config and returns a
// ready SecureRAG. With the amqp trace transport, traces are published to the broker and
// a consumer in this process persists them.
func Open(ctx context.Context, dbConfig *helper.DatabaseConfiguration, config *model.Config, logger *slog.Logger) (*SecureRAG, error) {
	db, err := helper.NewDatabase("securerag", dbConfig, logger)
	if err != nil {
		return nil, helper.NewError("open database", err)
	}

	var closers []func() error
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
		_ = db.Close()
	}

	recognizer, closeRecognizer, err := pipeline.NewRecognizerFromConfig(config, logger)
	if err != nil {
		cleanup()
		return nil, helper.NewError("create recognizer", err)
	}
	closers = append(closers, closeRecognizer)

	embedder, closeEmbedder, err := pipeline.NewEmbedderFromConfig(ctx, config, logger)
	if err != nil {
		cleanup()
		return nil, helper.NewError("create embedder", err)
	}
	closers = append(closers, closeEmbedder)

	opts := []Option{}
	if config.Trace.Transport == model.TraceTransportAMQP {
		conn, err := audit.DialAMQP(ctx, config.Trace.AMQPURL)
		if err != nil {
			cleanup()
			return nil, helper.NewError("connect trace broker", err)
		}
		closers = append(closers, conn.Close)
		opts = append(opts, WithTraceWriter(audit.NewAMQPPublisher(conn, config.Trace.AMQPQueue)))

		s, err := newWithClosers(db, config, recognizer, embedder, closers, opts)
		if err != nil {
			cleanup()
			return nil, err
		}

		consumer := audit.NewAMQPConsumer(conn, s.Traces, config.Trace.AMQPQueue, logger)
		if err := consumer.Start(context.WithoutCancel(ctx)); err != nil {
			_ = s.Close(ctx)
			return nil, helper.NewError("start trace consumer", err)
		}
		s.closers = append(s.closers, func() error {
			consumer.Close()
			return nil
		})
		return s, nil
	}

	s, err := newWithClosers(db, config, recognizer, embedder, closers, opts)
	if err != nil {
		cleanup()
		return nil, err
	}
	return s, nil
}

func newWithClosers(db *helper.Database, config *model.Config, recognizer pipeline.Recognizer, embedder pipeline.Embedder, closers []func() error, opts []Option) (*SecureRAG, error) {
	for _, c := range closers {
		opts = append(opts, WithCloser(c))
	}
	return NewSecureRAG(db, config, recognizer, embedder, opts...)
}
