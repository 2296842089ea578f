package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/knights-analytics/hugot"
	"github.com/knights-analytics/hugot/pipelines"
	"github.com/siherrmann/securerag/helper"
	"github.com/siherrmann/securerag/model"
)

// nerLabels maps the labels of the NER model to entity types. Other labels (MISC) are ignored.
var nerLabels = map[string]model.EntityType{
	"PER": model.EntityPerson,
	"LOC": model.EntityLocation,
	"ORG": model.EntityOrganization,
}

// NERRecognizer detects persons, locations and organizations with a token classification model.
type NERRecognizer struct {
	session  *hugot.Session
	pipeline *pipelines.TokenClassificationPipeline
	mu       sync.Mutex
	logger   *slog.Logger
}

// NewNERRecognizer downloads the model into modelDir if needed and creates the token
// classification pipeline. Uses KnightsAnalytics/distilbert-NER by default.
func NewNERRecognizer(modelDir, modelName, onnxFile string, logger *slog.Logger) (*NERRecognizer, error) {
	if modelName == "" {
		modelName = "KnightsAnalytics/distilbert-NER"
	}
	if onnxFile == "" {
		onnxFile = "model.onnx"
	}

	modelPath, err := helper.PrepareModelIn(modelDir, modelName, onnxFile)
	if err != nil {
		return nil, helper.NewError("prepare ner model", err)
	}

	session, err := hugot.NewGoSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create hugot session: %w", err)
	}

	config := hugot.TokenClassificationConfig{
		ModelPath: modelPath,
		Name:      "ner-pipeline",
		Options: []hugot.TokenClassificationOption{
			pipelines.WithSimpleAggregation(),
			pipelines.WithIgnoreLabels([]string{"O"}),
		},
	}
	nerPipeline, err := hugot.NewPipeline(session, config)
	if err != nil {
		if destroyErr := session.Destroy(); destroyErr != nil {
			return nil, fmt.Errorf("failed to create NER pipeline: %w (cleanup error: %v)", err, destroyErr)
		}
		return nil, fmt.Errorf("failed to create NER pipeline: %w", err)
	}

	logger.Info("NER recognizer ready", slog.String("model", modelName))

	return &NERRecognizer{
		session:  session,
		pipeline: nerPipeline,
		logger:   logger,
	}, nil
}

// Analyze runs the NER model if any of the requested entities is a named entity type.
func (r *NERRecognizer) Analyze(ctx context.Context, text string, entities []model.EntityType) ([]model.Detection, error) {
	if !requestsNamedEntities(entities) || strings.TrimSpace(text) == "" {
		return []model.Detection{}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	result, err := r.pipeline.RunPipeline([]string{text})
	r.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("failed to run NER: %w", err)
	}
	if len(result.Entities) == 0 {
		return []model.Detection{}, nil
	}

	var detections []model.Detection
	searchFrom := 0
	for _, entity := range result.Entities[0] {
		entityType, ok := nerLabels[normalizeEntityLabel(entity.Entity)]
		if !ok || !slices.Contains(entities, entityType) {
			continue
		}

		start, end, found := locateWord(text, strings.TrimSpace(entity.Word), searchFrom)
		if !found {
			start, end = int(entity.Start), int(entity.End)
		}
		if start < 0 || end > len(text) || start >= end {
			r.logger.Debug("Skipping NER entity with invalid span", slog.String("word", entity.Word))
			continue
		}
		searchFrom = end

		detections = append(detections, model.Detection{
			Type:  entityType,
			Start: start,
			End:   end,
			Score: float64(entity.Score),
		})
	}

	return resolveOverlaps(detections), nil
}

// Close destroys the hugot session.
func (r *NERRecognizer) Close() error {
	return r.session.Destroy()
}

func requestsNamedEntities(entities []model.EntityType) bool {
	for _, t := range nerLabels {
		if slices.Contains(entities, t) {
			return true
		}
	}
	return false
}

// normalizeEntityLabel removes B- and I- prefixes from NER labels
func normalizeEntityLabel(label string) string {
	if strings.HasPrefix(label, "B-") || strings.HasPrefix(label, "I-") {
		return label[2:]
	}
	return label
}

// locateWord finds word in text at or after from. Aggregated words may differ
// from the source text in spacing, so the model offsets are the fallback.
func locateWord(text, word string, from int) (int, int, bool) {
	if word == "" || from > len(text) {
		return 0, 0, false
	}
	i := strings.Index(text[from:], word)
	if i < 0 {
		return 0, 0, false
	}
	return from + i, from + i + len(word), true
}
