package helper

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knights-analytics/hugot"
)

// DefaultModelDir is where downloaded ONNX models are cached.
const DefaultModelDir = "./models"

// PrepareModel downloads the model into DefaultModelDir if it doesn't exist and returns the model path.
func PrepareModel(modelName string, onnxFilePath string) (string, error) {
	return PrepareModelIn(DefaultModelDir, modelName, onnxFilePath)
}

// PrepareModelIn downloads the model into modelDir if it doesn't exist and returns the model path.
// The local directory name is the model name with slashes replaced by underscores,
// which matches the layout hugot uses for downloads.
func PrepareModelIn(modelDir string, modelName string, onnxFilePath string) (string, error) {
	modelPath := filepath.Join(modelDir, strings.ReplaceAll(modelName, "/", "_"))

	if _, err := os.Stat(modelPath); err == nil {
		return modelPath, nil
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("failed to stat model directory: %w", err)
	}

	if err := os.MkdirAll(modelDir, 0750); err != nil {
		return "", fmt.Errorf("failed to create model directory: %w", err)
	}

	downloadOptions := hugot.NewDownloadOptions()
	if onnxFilePath != "" {
		downloadOptions.OnnxFilePath = onnxFilePath
	}
	downloadedPath, err := hugot.DownloadModel(modelName, modelDir, downloadOptions)
	if err != nil {
		return "", fmt.Errorf("failed to download model: %w", err)
	}

	return downloadedPath, nil
}
