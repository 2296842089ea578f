package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/siherrmann/securerag/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// staticRecognizer returns fixed detections and records the requested entities.
type staticRecognizer struct {
	detections []model.Detection
	err        error
	requested  [][]model.EntityType
}

func (r *staticRecognizer) Analyze(ctx context.Context, text string, entities []model.EntityType) ([]model.Detection, error) {
	r.requested = append(r.requested, entities)
	if r.err != nil {
		return nil, r.err
	}
	return r.detections, nil
}

func allEntities() []model.EntityType {
	return []model.EntityType{
		model.EntityEmail,
		model.EntityPhone,
		model.EntitySSN,
		model.EntityCreditCard,
		model.EntityIPAddress,
	}
}

func TestPatternRecognizer(t *testing.T) {
	recognizer := NewPatternRecognizer()
	ctx := context.Background()

	tests := []struct {
		name   string
		text   string
		entity model.EntityType
		match  string
	}{
		{"Email address", "Write to alice@example.com today", model.EntityEmail, "alice@example.com"},
		{"Phone number with dashes", "Call 555-000-1111 now", model.EntityPhone, "555-000-1111"},
		{"Phone number with parentheses", "Call (555) 123-4567 now", model.EntityPhone, "(555) 123-4567"},
		{"International phone number", "Call +1 555 123 4567 now", model.EntityPhone, "+1 555 123 4567"},
		{"Social security number", "SSN 123-45-6789 on file", model.EntitySSN, "123-45-6789"},
		{"Credit card number", "Card 4111 1111 1111 1111 charged", model.EntityCreditCard, "4111 1111 1111 1111"},
		{"IP address", "Login from 192.168.10.1 blocked", model.EntityIPAddress, "192.168.10.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			detections, err := recognizer.Analyze(ctx, tt.text, allEntities())
			require.NoError(t, err)
			require.Len(t, detections, 1, "Expected exactly one detection in %q", tt.text)
			assert.Equal(t, tt.entity, detections[0].Type)
			assert.Equal(t, tt.match, tt.text[detections[0].Start:detections[0].End])
		})
	}

	t.Run("Only requested entities are detected", func(t *testing.T) {
		detections, err := recognizer.Analyze(ctx, "alice@example.com 555-000-1111", []model.EntityType{model.EntityPhone})
		require.NoError(t, err)
		require.Len(t, detections, 1)
		assert.Equal(t, model.EntityPhone, detections[0].Type)
	})

	t.Run("Card number failing the checksum is ignored", func(t *testing.T) {
		detections, err := recognizer.Analyze(ctx, "Card 4111 1111 1111 1112", []model.EntityType{model.EntityCreditCard})
		require.NoError(t, err)
		assert.Empty(t, detections)
	})

	t.Run("Invalid IP octets are ignored", func(t *testing.T) {
		detections, err := recognizer.Analyze(ctx, "Version 999.1.2.3", []model.EntityType{model.EntityIPAddress})
		require.NoError(t, err)
		assert.Empty(t, detections)
	})

	t.Run("Supports reports pattern entities", func(t *testing.T) {
		assert.True(t, recognizer.Supports(model.EntityEmail))
		assert.False(t, recognizer.Supports(model.EntityPerson))
	})

	t.Run("Cancelled context aborts analysis", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		_, err := recognizer.Analyze(cancelled, "alice@example.com", allEntities())
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestCompositeRecognizer(t *testing.T) {
	ctx := context.Background()

	t.Run("Higher score wins overlapping detections", func(t *testing.T) {
		a := &staticRecognizer{detections: []model.Detection{{Type: model.EntityPerson, Start: 0, End: 8, Score: 0.5}}}
		b := &staticRecognizer{detections: []model.Detection{{Type: model.EntityOrganization, Start: 4, End: 12, Score: 0.9}}}

		detections, err := NewCompositeRecognizer(a, b).Analyze(ctx, "John Doe Inc", []model.EntityType{model.EntityPerson})
		require.NoError(t, err)
		require.Len(t, detections, 1)
		assert.Equal(t, model.EntityOrganization, detections[0].Type)
	})

	t.Run("Longer span wins on equal score", func(t *testing.T) {
		a := &staticRecognizer{detections: []model.Detection{
			{Type: model.EntityPerson, Start: 0, End: 4, Score: 0.8},
			{Type: model.EntityPerson, Start: 0, End: 8, Score: 0.8},
		}}

		detections, err := NewCompositeRecognizer(a).Analyze(ctx, "John Doe", nil)
		require.NoError(t, err)
		require.Len(t, detections, 1)
		assert.Equal(t, 8, detections[0].End)
	})

	t.Run("Result is sorted by start", func(t *testing.T) {
		a := &staticRecognizer{detections: []model.Detection{{Type: model.EntityEmail, Start: 10, End: 15, Score: 1}}}
		b := &staticRecognizer{detections: []model.Detection{{Type: model.EntityPerson, Start: 0, End: 4, Score: 0.7}}}

		detections, err := NewCompositeRecognizer(a, b).Analyze(ctx, "John wrote a@b.c", nil)
		require.NoError(t, err)
		require.Len(t, detections, 2)
		assert.Equal(t, 0, detections[0].Start)
		assert.Equal(t, 10, detections[1].Start)
	})

	t.Run("Recognizer error aborts analysis", func(t *testing.T) {
		a := &staticRecognizer{err: errors.New("model unavailable")}
		_, err := NewCompositeRecognizer(NewPatternRecognizer(), a).Analyze(ctx, "text", allEntities())
		assert.Error(t, err)
	})
}
