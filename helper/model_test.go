package helper

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrepareModelIn(t *testing.T) {
	t.Run("Existing model directory is reused", func(t *testing.T) {
		modelDir := t.TempDir()
		expected := filepath.Join(modelDir, "KnightsAnalytics_distilbert-NER")
		require.NoError(t, os.MkdirAll(expected, 0750))

		path, err := PrepareModelIn(modelDir, "KnightsAnalytics/distilbert-NER", "model.onnx")
		assert.NoError(t, err, "Expected PrepareModelIn to not return an error for an existing model")
		assert.Equal(t, expected, path)
	})

	t.Run("Model name without organization", func(t *testing.T) {
		modelDir := t.TempDir()
		expected := filepath.Join(modelDir, "local-embedder")
		require.NoError(t, os.MkdirAll(expected, 0750))

		path, err := PrepareModelIn(modelDir, "local-embedder", "")
		assert.NoError(t, err)
		assert.Equal(t, expected, path)
	})

	t.Run("Model directory is created before download", func(t *testing.T) {
		modelDir := filepath.Join(t.TempDir(), "nested", "models")

		// The download fails for an unknown model, the directory exists anyway
		_, err := PrepareModelIn(modelDir, "securerag-test/does-not-exist", "model.onnx")
		assert.Error(t, err, "Expected PrepareModelIn to fail for an unknown model")
		assert.DirExists(t, modelDir)
	})

	t.Run("Download the embedding model", func(t *testing.T) {
		if testing.Short() {
			t.Skip("model download skipped in short mode")
		}

		path, err := PrepareModelIn(t.TempDir(), "sentence-transformers/all-MiniLM-L6-v2", "onnx/model.onnx")
		require.NoError(t, err, "Expected the model to be downloaded")
		assert.DirExists(t, path)
	})
}

func TestPrepareModel(t *testing.T) {
	t.Run("Uses the default model directory", func(t *testing.T) {
		modelName := "securerag-test/default-dir"
		expected := filepath.Join(DefaultModelDir, "securerag-test_default-dir")
		require.NoError(t, os.MkdirAll(expected, 0750))
		defer os.RemoveAll(DefaultModelDir)

		path, err := PrepareModel(modelName, "")
		assert.NoError(t, err)
		assert.Equal(t, expected, path)
	})
}
