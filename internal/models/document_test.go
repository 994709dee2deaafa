package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusOrdering(t *testing.T) {
	assert.Less(t, StatusPending.Rank(), StatusOCR.Rank())
	assert.Less(t, StatusOCR.Rank(), StatusValidation.Rank())
	assert.Less(t, StatusValidation.Rank(), StatusCompleted.Rank())
	// Both intermediate stages share a rank: direct mode skips classification.
	assert.Equal(t, StatusClassification.Rank(), StatusValidation.Rank())
}

func TestStatusTerminal(t *testing.T) {
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusFailed.Terminal())
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusValidation.Terminal())
}

func TestSchemaFieldsFromJSONSchema(t *testing.T) {
	cfg := &DocumentTypeConfig{
		ExtractionSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"holder": map[string]interface{}{"type": "string"},
				"folio":  map[string]interface{}{"type": "string"},
			},
		},
	}
	assert.ElementsMatch(t, []string{"holder", "folio"}, cfg.SchemaFields())
}

func TestSchemaFieldsFlatFallback(t *testing.T) {
	cfg := &DocumentTypeConfig{
		ExtractionSchema: map[string]interface{}{
			"holder": "string",
			"folio":  "string",
		},
	}
	assert.ElementsMatch(t, []string{"holder", "folio"}, cfg.SchemaFields())
}
