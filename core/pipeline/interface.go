package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/siherrmann/securerag/helper"
	"github.com/siherrmann/securerag/model"
)

// ChunkFunc splits text into an ordered sequence of chunk texts.
type ChunkFunc func(text string) ([]string, error)

// Embedder turns texts into vectors of a fixed dimension.
// Implementations must be safe for concurrent use.
type Embedder interface {
	// Model is the name stored next to every vector produced by this embedder.
	Model() string
	Dimension() int
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Recognizer detects entity spans of the requested types in text.
// Implementations must be safe for concurrent use.
type Recognizer interface {
	Analyze(ctx context.Context, text string, entities []model.EntityType) ([]model.Detection, error)
}

// Pipeline chunks, redacts and embeds text. It is immutable after construction.
type Pipeline struct {
	Chunker  ChunkFunc
	Redactor *Redactor
	Embedder Embedder
	Entities []model.EntityType
}

// NewPipeline creates a new processing pipeline
func NewPipeline(chunker ChunkFunc, redactor *Redactor, embedder Embedder, entities []model.EntityType) *Pipeline {
	return &Pipeline{
		Chunker:  chunker,
		Redactor: redactor,
		Embedder: embedder,
		Entities: append([]model.EntityType(nil), entities...),
	}
}

// ProcessedChunk is one redacted chunk with its redaction counts.
type ProcessedChunk struct {
	Text   string
	Counts map[model.EntityType]int
}

// ProcessingResult contains the redacted chunks and one vector per chunk.
type ProcessingResult struct {
	Chunks  []ProcessedChunk
	Vectors [][]float32
}

// Counts sums the redaction counts of all chunks.
func (r *ProcessingResult) Counts() map[model.EntityType]int {
	total := map[model.EntityType]int{}
	for _, c := range r.Chunks {
		for t, n := range c.Counts {
			total[t] += n
		}
	}
	return total
}

// Texts returns the redacted chunk texts in order.
func (r *ProcessingResult) Texts() []string {
	texts := make([]string, 0, len(r.Chunks))
	for _, c := range r.Chunks {
		texts = append(texts, c.Text)
	}
	return texts
}

// Process chunks the text, redacts every chunk and embeds the redacted texts.
// Empty input is a validation error. Any provider error aborts processing.
func (p *Pipeline) Process(ctx context.Context, text string) (*ProcessingResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, helper.NewError("process", fmt.Errorf("%w: text is empty", model.ErrValidation))
	}

	rawChunks, err := p.Chunker(text)
	if err != nil {
		return nil, helper.NewError("chunk", err)
	}
	if len(rawChunks) == 0 {
		return nil, helper.NewError("chunk", fmt.Errorf("%w: text yields no chunks", model.ErrValidation))
	}

	result := &ProcessingResult{Chunks: make([]ProcessedChunk, 0, len(rawChunks))}
	for _, raw := range rawChunks {
		redacted, counts, err := p.Redactor.Redact(ctx, raw, p.Entities)
		if err != nil {
			return nil, helper.NewError("redact", err)
		}
		result.Chunks = append(result.Chunks, ProcessedChunk{Text: redacted, Counts: counts})
	}

	result.Vectors, err = EmbedChecked(ctx, p.Embedder, result.Texts())
	if err != nil {
		return nil, helper.NewError("embed", err)
	}

	return result, nil
}

// EmbedChecked embeds texts and verifies that one vector of the embedder's dimension
// was returned per text. Provider errors are marked with model.ErrProviderFailure.
func EmbedChecked(ctx context.Context, embedder Embedder, texts []string) ([][]float32, error) {
	vectors, err := embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrProviderFailure, err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: %d vectors for %d texts", model.ErrProviderFailure, len(vectors), len(texts))
	}
	for i, v := range vectors {
		if len(v) != embedder.Dimension() {
			return nil, fmt.Errorf("%w: vector %d has %d values, expected %d", model.ErrDimensionMismatch, i, len(v), embedder.Dimension())
		}
	}
	return vectors, nil
}
