package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"time"

	"github.com/siherrmann/securerag/helper"
	"github.com/siherrmann/securerag/model"
)

// NewEmbedderFromConfig creates the configured embedding provider. With caching enabled
// the provider is wrapped in a CachedEmbedder on the configured redis instance.
// The returned close function releases model sessions and connections.
func NewEmbedderFromConfig(ctx context.Context, config *model.Config, logger *slog.Logger) (Embedder, func() error, error) {
	cfg := config.Embedding
	closers := []func() error{}

	var embedder Embedder
	switch cfg.Provider {
	case model.EmbeddingProviderHugot:
		e, err := NewHugotEmbedder(config.Pipeline.ModelDir, cfg.Model, cfg.OnnxFile, cfg.Dimension)
		if err != nil {
			return nil, nil, helper.NewError("hugot embedder", err)
		}
		closers = append(closers, e.Close)
		embedder = e
	case model.EmbeddingProviderOpenAI:
		e, err := NewOpenAIEmbedder(cfg.BaseURL, os.Getenv(cfg.APIKeyEnv), cfg.Model, cfg.Dimension, nil)
		if err != nil {
			return nil, nil, helper.NewError("openai embedder", err)
		}
		embedder = e
	case model.EmbeddingProviderOffline:
		e, err := NewHashingEmbedder(cfg.Dimension, logger)
		if err != nil {
			return nil, nil, helper.NewError("offline embedder", err)
		}
		embedder = e
	default:
		return nil, nil, fmt.Errorf("%w: unknown embedding provider %q", model.ErrValidation, cfg.Provider)
	}

	if cfg.Cache {
		client, err := helper.NewRedisClient(ctx, config.Redis.Addr, config.Redis.Password, config.Redis.DB)
		if err != nil {
			closeAll(closers)
			return nil, nil, helper.NewError("embedding cache", err)
		}
		closers = append(closers, client.Close)
		embedder = NewCachedEmbedder(embedder, client, time.Duration(cfg.CacheTTLSecs)*time.Second, logger)
	}

	logger.Info("Embedder ready", slog.String("provider", cfg.Provider), slog.String("model", embedder.Model()), slog.Int("dimension", embedder.Dimension()))

	return embedder, func() error { return closeAll(closers) }, nil
}

// NewRecognizerFromConfig creates the pattern recognizer and, if any named entity type
// is configured, the NER recognizer, combined into one CompositeRecognizer.
func NewRecognizerFromConfig(config *model.Config, logger *slog.Logger) (Recognizer, func() error, error) {
	recognizers := []Recognizer{NewPatternRecognizer()}
	closers := []func() error{}

	if requestsNamedEntities(config.Pipeline.Entities) {
		ner, err := NewNERRecognizer(config.Pipeline.ModelDir, config.Pipeline.NERModel, config.Pipeline.NEROnnxFile, logger)
		if err != nil {
			return nil, nil, helper.NewError("ner recognizer", err)
		}
		recognizers = append(recognizers, ner)
		closers = append(closers, ner.Close)
	}

	return NewCompositeRecognizer(recognizers...), func() error { return closeAll(closers) }, nil
}

// NewPipelineFromConfig assembles chunker, redactor and embedder from the configuration.
func NewPipelineFromConfig(config *model.Config, recognizer Recognizer, embedder Embedder) *Pipeline {
	return NewPipeline(
		SentenceChunker(config.Pipeline.ChunkSize),
		NewRedactor(recognizer),
		embedder,
		slices.Clone(config.Pipeline.Entities),
	)
}

func closeAll(closers []func() error) error {
	var firstErr error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
