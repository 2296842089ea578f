package pipeline

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/siherrmann/securerag/helper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingEmbedder returns a fixed vector per text length and counts embedded texts.
type countingEmbedder struct {
	embedded atomic.Int64
}

func (e *countingEmbedder) Model() string  { return "counting" }
func (e *countingEmbedder) Dimension() int { return 2 }

func (e *countingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	e.embedded.Add(int64(len(texts)))
	vectors := make([][]float32, len(texts))
	for i, t := range texts {
		vectors[i] = []float32{float32(len(t)), 1}
	}
	return vectors, nil
}

func TestCachedEmbedder(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping CachedEmbedder test in short mode (requires redis container)")
	}

	teardown, addr, err := helper.MustStartRedisContainer()
	require.NoError(t, err)
	defer func() {
		if err := teardown(context.Background()); err != nil {
			t.Logf("error tearing down redis container: %v", err)
		}
	}()

	ctx := context.Background()
	client, err := helper.NewRedisClient(ctx, addr, "", 0)
	require.NoError(t, err)
	defer client.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("Cached texts are not embedded again", func(t *testing.T) {
		inner := &countingEmbedder{}
		cached := NewCachedEmbedder(inner, client, time.Minute, logger)

		first, err := cached.Embed(ctx, []string{"alpha", "beta"})
		require.NoError(t, err)
		assert.Equal(t, int64(2), inner.embedded.Load())

		second, err := cached.Embed(ctx, []string{"beta", "gamma!", "alpha"})
		require.NoError(t, err)
		assert.Equal(t, int64(3), inner.embedded.Load(), "Expected only the new text to be embedded")
		assert.Equal(t, first[1], second[0])
		assert.Equal(t, first[0], second[2])
		assert.Equal(t, []float32{6, 1}, second[1])
	})

	t.Run("Model and dimension are delegated", func(t *testing.T) {
		cached := NewCachedEmbedder(&countingEmbedder{}, client, 0, logger)
		assert.Equal(t, "counting", cached.Model())
		assert.Equal(t, 2, cached.Dimension())
	})

	t.Run("Unavailable cache falls through to the embedder", func(t *testing.T) {
		broken := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond})
		defer broken.Close()

		inner := &countingEmbedder{}
		vectors, err := NewCachedEmbedder(inner, broken, time.Minute, logger).Embed(ctx, []string{"x"})
		require.NoError(t, err)
		assert.Equal(t, [][]float32{{1, 1}}, vectors)
	})
}
