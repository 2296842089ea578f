package pipeline

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"math"
	"strings"
	"sync"
	"unicode"

	"github.com/knights-analytics/hugot"
	"github.com/knights-analytics/hugot/pipelines"
	"github.com/siherrmann/securerag/helper"
)

// HugotEmbedder embeds texts with a local sentence transformer model.
// Uses sentence-transformers/all-MiniLM-L6-v2 (384 dimensions) by default.
type HugotEmbedder struct {
	modelName string
	dimension int
	session   *hugot.Session
	pipeline  *pipelines.FeatureExtractionPipeline
	mu        sync.Mutex
}

// NewHugotEmbedder downloads the model into modelDir if needed and creates the feature
// extraction pipeline. The dimension is checked against a probe embedding.
func NewHugotEmbedder(modelDir, modelName, onnxFile string, dimension int) (*HugotEmbedder, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("embedding dimension must be positive, got %d", dimension)
	}

	modelPath, err := helper.PrepareModelIn(modelDir, modelName, onnxFile)
	if err != nil {
		return nil, helper.NewError("prepare embedding model", err)
	}

	session, err := hugot.NewGoSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create hugot session: %w", err)
	}

	config := hugot.FeatureExtractionConfig{
		ModelPath: modelPath,
		Name:      "embedder-pipeline",
	}
	sentencePipeline, err := hugot.NewPipeline(session, config)
	if err != nil {
		if destroyErr := session.Destroy(); destroyErr != nil {
			return nil, fmt.Errorf("failed to create sentence pipeline: %w (cleanup error: %v)", err, destroyErr)
		}
		return nil, fmt.Errorf("failed to create sentence pipeline: %w", err)
	}

	e := &HugotEmbedder{
		modelName: modelName,
		dimension: dimension,
		session:   session,
		pipeline:  sentencePipeline,
	}

	probe, err := e.Embed(context.Background(), []string{"dimension probe"})
	if err != nil {
		_ = session.Destroy()
		return nil, err
	}
	if len(probe[0]) != dimension {
		_ = session.Destroy()
		return nil, fmt.Errorf("model %s produces %d dimensions, configured %d", modelName, len(probe[0]), dimension)
	}

	return e, nil
}

func (e *HugotEmbedder) Model() string {
	return e.modelName
}

func (e *HugotEmbedder) Dimension() int {
	return e.dimension
}

// Embed generates one unit length embedding per text in a single pipeline run.
func (e *HugotEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	result, err := e.pipeline.RunPipeline(texts)
	e.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("failed to generate embedding: %w", err)
	}
	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(result.Embeddings))
	}

	vectors := make([][]float32, len(result.Embeddings))
	for i, embedding := range result.Embeddings {
		vectors[i] = Normalize(embedding)
	}
	return vectors, nil
}

// Close destroys the hugot session.
func (e *HugotEmbedder) Close() error {
	return e.session.Destroy()
}

// HashingEmbedder is a deterministic bag of words embedder for offline use and demos.
// Its vectors carry no semantics beyond shared tokens.
type HashingEmbedder struct {
	dimension int
}

// NewHashingEmbedder creates the offline embedder and logs a warning, it must never back a production deployment.
func NewHashingEmbedder(dimension int, logger *slog.Logger) (*HashingEmbedder, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("embedding dimension must be positive, got %d", dimension)
	}
	logger.Warn("Using offline hashing embedder, retrieval quality is for demos only", slog.Int("dimension", dimension))
	return &HashingEmbedder{dimension: dimension}, nil
}

func (e *HashingEmbedder) Model() string {
	return fmt.Sprintf("offline-hashing-%d", e.dimension)
}

func (e *HashingEmbedder) Dimension() int {
	return e.dimension
}

func (e *HashingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		v := make([]float32, e.dimension)
		for _, token := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		}) {
			h := fnv.New64a()
			_, _ = h.Write([]byte(token))
			sum := h.Sum64()
			sign := float32(1)
			if sum&(1<<63) != 0 {
				sign = -1
			}
			v[sum%uint64(e.dimension)] += sign
		}
		vectors[i] = Normalize(v)
	}
	return vectors, nil
}

// Normalize scales v to unit length. A zero vector is returned unchanged.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	out := make([]float32, len(v))
	if sum == 0 {
		copy(out, v)
		return out
	}
	norm := math.Sqrt(sum)
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}
