package pipeline

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func vectorNorm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func TestNormalize(t *testing.T) {
	t.Run("Vector is scaled to unit length", func(t *testing.T) {
		v := Normalize([]float32{3, 4})
		assert.InDelta(t, 0.6, v[0], 1e-6)
		assert.InDelta(t, 0.8, v[1], 1e-6)
	})

	t.Run("Zero vector is returned unchanged", func(t *testing.T) {
		assert.Equal(t, []float32{0, 0}, Normalize([]float32{0, 0}))
	})
}

func TestHashingEmbedder(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	t.Run("Produces unit vectors of the configured dimension", func(t *testing.T) {
		embedder, err := NewHashingEmbedder(16, logger)
		require.NoError(t, err)

		vectors, err := embedder.Embed(ctx, []string{"merger agreement", "quarterly report"})
		require.NoError(t, err)
		require.Len(t, vectors, 2)
		for _, v := range vectors {
			assert.Len(t, v, 16)
			assert.InDelta(t, 1.0, vectorNorm(v), 1e-5)
		}
		assert.Equal(t, 16, embedder.Dimension())
		assert.Equal(t, "offline-hashing-16", embedder.Model())
	})

	t.Run("Same text produces same embedding", func(t *testing.T) {
		embedder, err := NewHashingEmbedder(32, logger)
		require.NoError(t, err)

		first, err := embedder.Embed(ctx, []string{"Deterministic embedding test"})
		require.NoError(t, err)
		second, err := embedder.Embed(ctx, []string{"deterministic EMBEDDING test"})
		require.NoError(t, err)
		assert.Equal(t, first, second, "Expected case insensitive deterministic vectors")
	})

	t.Run("Invalid dimension is rejected", func(t *testing.T) {
		_, err := NewHashingEmbedder(0, logger)
		assert.Error(t, err)
	})
}

func TestOpenAIEmbedder(t *testing.T) {
	ctx := context.Background()

	t.Run("Batch request returns vectors in input order", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v1/embeddings", r.URL.Path)
			assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

			var body struct {
				Model string   `json:"model"`
				Input []string `json:"input"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "text-embedding-3-small", body.Model)
			assert.Equal(t, []string{"a", "b"}, body.Input)

			_, _ = w.Write([]byte(`{"data":[{"index":1,"embedding":[0,2]},{"index":0,"embedding":[3,0]}]}`))
		}))
		defer server.Close()

		embedder, err := NewOpenAIEmbedder(server.URL+"/v1/", "secret", "text-embedding-3-small", 2, nil)
		require.NoError(t, err)

		vectors, err := embedder.Embed(ctx, []string{"a", "b"})
		require.NoError(t, err)
		assert.Equal(t, [][]float32{{1, 0}, {0, 1}}, vectors)
	})

	t.Run("Error status is returned as error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`rate limited`))
		}))
		defer server.Close()

		embedder, err := NewOpenAIEmbedder(server.URL, "", "m", 2, nil)
		require.NoError(t, err)

		_, err = embedder.Embed(ctx, []string{"a"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "429")
	})

	t.Run("Missing vectors are an error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"data":[]}`))
		}))
		defer server.Close()

		embedder, err := NewOpenAIEmbedder(server.URL, "", "m", 2, nil)
		require.NoError(t, err)

		_, err = embedder.Embed(ctx, []string{"a"})
		assert.Error(t, err)
	})

	t.Run("Missing base url is rejected", func(t *testing.T) {
		_, err := NewOpenAIEmbedder("", "", "m", 2, nil)
		assert.Error(t, err)
	})
}

func TestHugotEmbedder(t *testing.T) {
	// Note: HugotEmbedder requires downloading models
	// These tests may take longer on first run

	t.Run("Generate embeddings for texts", func(t *testing.T) {
		if testing.Short() {
			t.Skip("Skipping HugotEmbedder test in short mode (requires model download)")
		}

		embedder, err := NewHugotEmbedder("../../models", "sentence-transformers/all-MiniLM-L6-v2", "onnx/model.onnx", 384)
		require.NoError(t, err)
		defer embedder.Close()

		vectors, err := embedder.Embed(context.Background(), []string{"This is a test sentence.", "Another one."})
		require.NoError(t, err)
		require.Len(t, vectors, 2)
		assert.Len(t, vectors[0], 384, "all-MiniLM-L6-v2 produces 384-dimensional embeddings")
		assert.InDelta(t, 1.0, vectorNorm(vectors[0]), 1e-4)
		assert.NotEqual(t, vectors[0], vectors[1], "Different texts should produce different embeddings")
	})

	t.Run("Wrong dimension is rejected", func(t *testing.T) {
		if testing.Short() {
			t.Skip("Skipping HugotEmbedder test in short mode (requires model download)")
		}

		_, err := NewHugotEmbedder("../../models", "sentence-transformers/all-MiniLM-L6-v2", "onnx/model.onnx", 768)
		assert.Error(t, err)
	})
}
