package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lllllllleong/documentverificationflow/internal/models"
)

func TestStripFences(t *testing.T) {
	assert.Equal(t, `{"a":1}`, StripFences("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, StripFences("```\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, StripFences(`{"a":1}`))
	assert.Equal(t, "", StripFences("  \n "))
}

func TestParseJSONStrict(t *testing.T) {
	var result models.ClassificationResult
	lenient, err := ParseJSON(`{"is_correct": true, "confidence": 0.93, "reason": "matches layout"}`, classificationSchema, &result)
	require.NoError(t, err)
	assert.False(t, lenient)
	assert.True(t, result.IsCorrect)
	assert.InDelta(t, 0.93, result.Confidence, 1e-9)
}

func TestParseJSONStrictRejectsSchemaViolation(t *testing.T) {
	// is_correct must be a boolean; the lenient pass skips validation and
	// then fails to decode the string into the bool field.
	var result models.ClassificationResult
	_, err := ParseJSON(`{"is_correct": "yes"}`, classificationSchema, &result)
	assert.Error(t, err)
}

func TestParseJSONLenientExtractsFromProse(t *testing.T) {
	raw := "Here is my analysis of the document:\n" +
		`{"is_correct": false, "reason": "wrong {category}"}` +
		"\nLet me know if you need more detail."
	var result models.ClassificationResult
	lenient, err := ParseJSON(raw, classificationSchema, &result)
	require.NoError(t, err)
	assert.True(t, lenient)
	assert.False(t, result.IsCorrect)
	assert.Equal(t, "wrong {category}", result.Reason)
}

func TestParseJSONFencedPayload(t *testing.T) {
	raw := "```json\n{\"equivalent\": true, \"summary\": \"format only\"}\n```"
	var result models.ArbitrationResult
	lenient, err := ParseJSON(raw, arbitrationSchema, &result)
	require.NoError(t, err)
	assert.False(t, lenient)
	assert.True(t, result.Equivalent)
}

func TestParseJSONNoObject(t *testing.T) {
	var out map[string]interface{}
	_, err := ParseJSON("the document appears valid", nil, &out)
	assert.Error(t, err)
}

func TestExtractBalancedObject(t *testing.T) {
	got, ok := extractBalancedObject(`prefix {"a": {"b": "}"}, "c": 2} suffix`)
	require.True(t, ok)
	assert.Equal(t, `{"a": {"b": "}"}, "c": 2}`, got)

	_, ok = extractBalancedObject(`{"unterminated": `)
	assert.False(t, ok)
}
