package retrieval

import (
	"context"
	"fmt"

	"github.com/siherrmann/securerag/database"
	"github.com/siherrmann/securerag/helper"
	"github.com/siherrmann/securerag/model"
)

// Engine performs ACL scoped nearest neighbor search over the embeddings of one model.
type Engine struct {
	embeddings    database.EmbeddingsDBHandlerFunctions
	modelName     string
	policy        ScorePolicy
	snippetLength int
	maxTopK       int
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithSnippetLength sets the snippet budget in characters.
func WithSnippetLength(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.snippetLength = n
		}
	}
}

// WithMaxTopK caps the number of hits a single search can request.
func WithMaxTopK(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.maxTopK = n
		}
	}
}

// NewEngine creates a new retrieval engine for embeddings tagged with modelName.
func NewEngine(embeddings database.EmbeddingsDBHandlerFunctions, modelName string, policy ScorePolicy, opts ...EngineOption) *Engine {
	if policy == nil {
		policy = UnitSphereScore{}
	}
	e := &Engine{
		embeddings:    embeddings,
		modelName:     modelName,
		policy:        policy,
		snippetLength: DefaultSnippetLength,
		maxTopK:       50,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Policy returns the score policy of the engine.
func (e *Engine) Policy() ScorePolicy {
	return e.policy
}

// Search returns the topK chunks nearest to embedding that the principal can access.
// Access filtering happens inside the query, inaccessible chunks never reach the caller.
// Hits are ranked from 1 by ascending distance with ties broken by chunk id.
func (e *Engine) Search(ctx context.Context, principal model.Principal, embedding []float32, topK int) ([]model.SearchHit, error) {
	if topK <= 0 {
		return nil, helper.NewError("search", fmt.Errorf("%w: top_k must be positive, got %d", model.ErrValidation, topK))
	}
	if topK > e.maxTopK {
		return nil, helper.NewError("search", fmt.Errorf("%w: top_k must not exceed %d, got %d", model.ErrValidation, e.maxTopK, topK))
	}

	chunks, err := e.embeddings.SelectChunksBySimilarity(ctx, embedding, e.modelName, principal.UserID, topK)
	if err != nil {
		return nil, helper.NewError("search", err)
	}

	hits := make([]model.SearchHit, 0, len(chunks))
	for i, c := range chunks {
		hits = append(hits, model.SearchHit{
			Rank:          i + 1,
			ChunkID:       c.ID,
			DocumentID:    c.DocumentID,
			DocumentTitle: c.DocumentTitle,
			Ord:           c.Ord,
			Snippet:       Snippet(c.RedactedText, e.snippetLength),
			Score:         e.policy.Score(c.Distance),
		})
	}

	return hits, nil
}
