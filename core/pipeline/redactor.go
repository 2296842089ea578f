package pipeline

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/siherrmann/securerag/model"
)

// Redactor replaces detected entities with type placeholders.
type Redactor struct {
	recognizer Recognizer
}

// NewRedactor creates a redactor backed by the given recognizer.
func NewRedactor(recognizer Recognizer) *Redactor {
	return &Redactor{recognizer: recognizer}
}

// Redact replaces every detected span of an allowed type with its placeholder
// (for example "<EMAIL_ADDRESS>") and counts the replacements per type.
// Text outside detected spans is preserved byte for byte. An empty allow-list
// redacts nothing. Recognizer failures are returned wrapped in model.ErrProviderFailure.
func (r *Redactor) Redact(ctx context.Context, text string, allowed []model.EntityType) (string, map[model.EntityType]int, error) {
	counts := map[model.EntityType]int{}
	if text == "" || len(allowed) == 0 {
		return text, counts, nil
	}

	detections, err := r.recognizer.Analyze(ctx, text, allowed)
	if err != nil {
		return "", nil, fmt.Errorf("%w: recognizer: %v", model.ErrProviderFailure, err)
	}
	detections = resolveOverlaps(detections)

	var b strings.Builder
	b.Grow(len(text))
	last := 0
	for _, d := range detections {
		if !slices.Contains(allowed, d.Type) || d.Start < last || d.End > len(text) {
			continue
		}
		b.WriteString(text[last:d.Start])
		b.WriteString(d.Type.Placeholder())
		counts[d.Type]++
		last = d.End
	}
	b.WriteString(text[last:])

	return b.String(), counts, nil
}
