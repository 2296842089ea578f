package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// CachedEmbedder caches the vectors of an embedder in redis, keyed by model and text hash.
// Cache failures are logged and fall through to the wrapped embedder.
type CachedEmbedder struct {
	next   Embedder
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachedEmbedder wraps next with a redis cache. A ttl of zero or less defaults to 24 hours.
func NewCachedEmbedder(next Embedder, client *redis.Client, ttl time.Duration, logger *slog.Logger) *CachedEmbedder {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &CachedEmbedder{
		next:   next,
		client: client,
		ttl:    ttl,
		logger: logger,
	}
}

func (c *CachedEmbedder) Model() string {
	return c.next.Model()
}

func (c *CachedEmbedder) Dimension() int {
	return c.next.Dimension()
}

// Embed looks up all texts with one MGET and only embeds the misses.
func (c *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	keys := make([]string, len(texts))
	for i, t := range texts {
		keys[i] = c.key(t)
	}

	vectors := make([][]float32, len(texts))
	cached, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		c.logger.Warn("Embedding cache lookup failed", slog.String("error", err.Error()))
		cached = nil
	}
	for i, v := range cached {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var vector []float32
		if err := json.Unmarshal([]byte(s), &vector); err == nil && len(vector) == c.Dimension() {
			vectors[i] = vector
		}
	}

	var missTexts []string
	var missIdx []int
	for i, v := range vectors {
		if v == nil {
			missTexts = append(missTexts, texts[i])
			missIdx = append(missIdx, i)
		}
	}
	if len(missTexts) == 0 {
		return vectors, nil
	}

	fresh, err := c.next.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(fresh) != len(missTexts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(missTexts), len(fresh))
	}

	pipe := c.client.Pipeline()
	for j, i := range missIdx {
		vectors[i] = fresh[j]
		payload, err := json.Marshal(fresh[j])
		if err != nil {
			return nil, fmt.Errorf("marshal embedding cache failed: %w", err)
		}
		pipe.Set(ctx, keys[i], payload, c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.Warn("Embedding cache write failed", slog.String("error", err.Error()))
	}

	return vectors, nil
}

func (c *CachedEmbedder) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return fmt.Sprintf("securerag:embedding:%s:%s", c.next.Model(), hex.EncodeToString(sum[:]))
}
