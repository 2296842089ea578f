package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/siherrmann/securerag/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedactor(t *testing.T) {
	ctx := context.Background()

	t.Run("Email and phone are replaced with placeholders", func(t *testing.T) {
		redactor := NewRedactor(NewPatternRecognizer())
		text := "Contact alice@example.com or 555-123-4567 for details."

		redacted, counts, err := redactor.Redact(ctx, text, []model.EntityType{model.EntityEmail, model.EntityPhone})
		require.NoError(t, err)
		assert.NotContains(t, redacted, "alice@example.com")
		assert.NotContains(t, redacted, "555-123-4567")
		assert.Equal(t, "Contact <EMAIL_ADDRESS> or <PHONE_NUMBER> for details.", redacted)
		assert.Equal(t, 1, counts[model.EntityEmail])
		assert.Equal(t, 1, counts[model.EntityPhone])
	})

	t.Run("Counts are per instance", func(t *testing.T) {
		redactor := NewRedactor(NewPatternRecognizer())
		redacted, counts, err := redactor.Redact(ctx, "a@x.com and b@y.org", []model.EntityType{model.EntityEmail})
		require.NoError(t, err)
		assert.Equal(t, "<EMAIL_ADDRESS> and <EMAIL_ADDRESS>", redacted)
		assert.Equal(t, map[model.EntityType]int{model.EntityEmail: 2}, counts)
	})

	t.Run("No detections returns text unchanged", func(t *testing.T) {
		redactor := NewRedactor(NewPatternRecognizer())
		redacted, counts, err := redactor.Redact(ctx, "Nothing sensitive here.", model.DefaultEntities)
		require.NoError(t, err)
		assert.Equal(t, "Nothing sensitive here.", redacted)
		assert.Empty(t, counts)
	})

	t.Run("Entities outside the allow-list are kept", func(t *testing.T) {
		recognizer := &staticRecognizer{detections: []model.Detection{
			{Type: model.EntityPerson, Start: 0, End: 4, Score: 0.9},
			{Type: model.EntityLocation, Start: 8, End: 14, Score: 0.9},
		}}
		redactor := NewRedactor(recognizer)

		redacted, counts, err := redactor.Redact(ctx, "John in Berlin", []model.EntityType{model.EntityPerson})
		require.NoError(t, err)
		assert.Equal(t, "<PERSON> in Berlin", redacted)
		assert.Equal(t, map[model.EntityType]int{model.EntityPerson: 1}, counts)
		assert.Equal(t, []model.EntityType{model.EntityPerson}, recognizer.requested[0])
	})

	t.Run("Empty allow-list redacts nothing", func(t *testing.T) {
		recognizer := &staticRecognizer{}
		redacted, counts, err := NewRedactor(recognizer).Redact(ctx, "alice@example.com", nil)
		require.NoError(t, err)
		assert.Equal(t, "alice@example.com", redacted)
		assert.Empty(t, counts)
		assert.Empty(t, recognizer.requested, "Expected recognizer not to be called")
	})

	t.Run("Recognizer failure is a provider failure", func(t *testing.T) {
		redactor := NewRedactor(&staticRecognizer{err: errors.New("connection refused")})
		_, _, err := redactor.Redact(ctx, "alice@example.com", model.DefaultEntities)
		assert.ErrorIs(t, err, model.ErrProviderFailure)
	})

	t.Run("Multibyte text around spans is preserved", func(t *testing.T) {
		redactor := NewRedactor(NewPatternRecognizer())
		redacted, _, err := redactor.Redact(ctx, "Grüße an joerg@example.de – danke", []model.EntityType{model.EntityEmail})
		require.NoError(t, err)
		assert.Equal(t, "Grüße an <EMAIL_ADDRESS> – danke", redacted)
	})
}
