package pipeline

import (
	"context"
	"regexp"
	"slices"
	"sort"

	"github.com/siherrmann/securerag/model"
)

// pattern is a regular expression for one entity type with a fixed confidence.
type pattern struct {
	entity   model.EntityType
	regex    *regexp.Regexp
	score    float64
	validate func(match string) bool
}

var defaultPatterns = []pattern{
	{
		entity: model.EntityEmail,
		regex:  regexp.MustCompile(`\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`),
		score:  1.0,
	},
	{
		entity: model.EntitySSN,
		regex:  regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
		score:  0.85,
	},
	{
		entity:   model.EntityCreditCard,
		regex:    regexp.MustCompile(`\b(?:\d[ \-]?){12,18}\d\b`),
		score:    0.9,
		validate: luhnValid,
	},
	{
		entity: model.EntityPhone,
		regex:  regexp.MustCompile(`(?:\+\d{1,3}[\s.\-]?)?(?:\(\d{3}\)\s?|\b\d{3}[\s.\-])\d{3}[\s.\-]\d{4}\b`),
		score:  0.75,
	},
	{
		entity:   model.EntityIPAddress,
		regex:    regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`),
		score:    0.6,
		validate: ipv4Valid,
	},
}

// PatternRecognizer detects structured entities with regular expressions.
type PatternRecognizer struct {
	patterns []pattern
}

// NewPatternRecognizer creates a recognizer for email addresses, phone numbers,
// US social security numbers, credit card numbers and IPv4 addresses.
func NewPatternRecognizer() *PatternRecognizer {
	return &PatternRecognizer{patterns: defaultPatterns}
}

// Supports reports whether the recognizer can detect the entity type.
func (r *PatternRecognizer) Supports(entity model.EntityType) bool {
	for _, p := range r.patterns {
		if p.entity == entity {
			return true
		}
	}
	return false
}

// Analyze returns the non overlapping detections of the requested types, sorted by start.
func (r *PatternRecognizer) Analyze(ctx context.Context, text string, entities []model.EntityType) ([]model.Detection, error) {
	var detections []model.Detection
	for _, p := range r.patterns {
		if !slices.Contains(entities, p.entity) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, loc := range p.regex.FindAllStringIndex(text, -1) {
			if p.validate != nil && !p.validate(text[loc[0]:loc[1]]) {
				continue
			}
			detections = append(detections, model.Detection{
				Type:  p.entity,
				Start: loc[0],
				End:   loc[1],
				Score: p.score,
			})
		}
	}
	return resolveOverlaps(detections), nil
}

// CompositeRecognizer merges the detections of several recognizers.
type CompositeRecognizer struct {
	recognizers []Recognizer
}

// NewCompositeRecognizer creates a recognizer that unions the given recognizers.
func NewCompositeRecognizer(recognizers ...Recognizer) *CompositeRecognizer {
	return &CompositeRecognizer{recognizers: recognizers}
}

// Analyze runs every recognizer and resolves overlaps between their detections.
// The first recognizer error aborts the analysis.
func (c *CompositeRecognizer) Analyze(ctx context.Context, text string, entities []model.EntityType) ([]model.Detection, error) {
	var detections []model.Detection
	for _, r := range c.recognizers {
		found, err := r.Analyze(ctx, text, entities)
		if err != nil {
			return nil, err
		}
		detections = append(detections, found...)
	}
	return resolveOverlaps(detections), nil
}

// resolveOverlaps keeps a maximal set of non overlapping detections. Higher scores win,
// then longer spans, then earlier starts. The result is sorted by start.
func resolveOverlaps(detections []model.Detection) []model.Detection {
	if len(detections) == 0 {
		return []model.Detection{}
	}

	candidates := slices.Clone(detections)
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Len() != b.Len() {
			return a.Len() > b.Len()
		}
		return a.Start < b.Start
	})

	kept := make([]model.Detection, 0, len(candidates))
	for _, d := range candidates {
		if d.Len() <= 0 {
			continue
		}
		overlapping := false
		for _, k := range kept {
			if d.Overlaps(k) {
				overlapping = true
				break
			}
		}
		if !overlapping {
			kept = append(kept, d)
		}
	}

	sort.Slice(kept, func(i, j int) bool { return kept[i].Start < kept[j].Start })
	return kept
}

func luhnValid(match string) bool {
	sum, n := 0, 0
	for i := len(match) - 1; i >= 0; i-- {
		c := match[i]
		if c < '0' || c > '9' {
			continue
		}
		d := int(c - '0')
		if n%2 == 1 {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		n++
	}
	return n >= 13 && sum%10 == 0
}

func ipv4Valid(match string) bool {
	octet := 0
	digits := 0
	for i := 0; i <= len(match); i++ {
		if i == len(match) || match[i] == '.' {
			if digits == 0 || octet > 255 {
				return false
			}
			octet, digits = 0, 0
			continue
		}
		octet = octet*10 + int(match[i]-'0')
		digits++
	}
	return true
}
