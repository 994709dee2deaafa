package rules

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lllllllleong/documentverificationflow/internal/models"
)

type scriptedEvaluator struct {
	results   []models.ValidationResult
	cost      float64
	err       error
	lastRules []models.BusinessRule
}

func (s *scriptedEvaluator) EvaluateRules(_ context.Context, _ string, rules []models.BusinessRule, family, source string) ([]models.ValidationResult, float64, error) {
	s.lastRules = rules
	if s.err != nil {
		return nil, 0, s.err
	}
	out := make([]models.ValidationResult, len(s.results))
	copy(out, s.results)
	for i := range out {
		out[i].Family = family
		out[i].Source = source
	}
	return out, s.cost, nil
}

func newValidator(e RuleEvaluator) *Validator {
	return NewValidator(e, slog.New(slog.DiscardHandler))
}

func laborConfig() *models.DocumentTypeConfig {
	return &models.DocumentTypeConfig{
		Name: "labor_certificate",
		GeneralRules: []models.BusinessRule{
			{Name: "has_signature", Instruction: "The document must carry an authorized signature."},
		},
		CrossValidationRules: []models.BusinessRule{
			{Name: "names_match", Instruction: "The holder name must match the reference name."},
		},
	}
}

func TestValidateGeneralMapsRejections(t *testing.T) {
	eval := &scriptedEvaluator{
		results: []models.ValidationResult{
			{RuleName: "has_signature", Outcome: models.OutcomeRejected, Rationale: "no signature visible"},
		},
		cost: 0.003,
	}
	out, err := newValidator(eval).ValidateGeneral(context.Background(), "text", laborConfig(), models.SourceSubmitted)
	require.NoError(t, err)
	require.Len(t, out.Reasons, 1)
	assert.Equal(t, models.ReasonTypeGeneralRule, out.Reasons[0].Type)
	assert.Equal(t, "has_signature", out.Reasons[0].Rule)
	assert.Equal(t, models.SourceSubmitted, out.Reasons[0].Source)
	assert.InDelta(t, 0.003, out.CostUSD, 1e-9)
}

func TestValidateGeneralAllApproved(t *testing.T) {
	eval := &scriptedEvaluator{
		results: []models.ValidationResult{
			{RuleName: "has_signature", Outcome: models.OutcomeApproved},
		},
	}
	out, err := newValidator(eval).ValidateGeneral(context.Background(), "text", laborConfig(), models.SourceSubmitted)
	require.NoError(t, err)
	assert.Empty(t, out.Reasons)
	assert.Len(t, out.Results, 1)
}

func TestValidateCrossSkipsWithoutRules(t *testing.T) {
	cfg := laborConfig()
	cfg.CrossValidationRules = nil
	eval := &scriptedEvaluator{}
	out, err := newValidator(eval).ValidateCross(context.Background(), nil, nil, cfg, models.SourceSubmitted)
	require.NoError(t, err)
	assert.Empty(t, out.Results)
	assert.Nil(t, eval.lastRules)
}

func TestValidateDynamicFlagsMissingFieldWithoutModelCall(t *testing.T) {
	eval := &scriptedEvaluator{}
	extracted := map[string]interface{}{"employer": "ACME"}
	reference := map[string]interface{}{"folio": "A-123"}

	out, err := newValidator(eval).ValidateDynamic(context.Background(), extracted, reference, models.SourceSubmitted)
	require.NoError(t, err)
	require.Len(t, out.Reasons, 1)
	assert.Equal(t, models.ReasonTypeMissingFields, out.Reasons[0].Type)
	assert.Nil(t, eval.lastRules)
	assert.Zero(t, out.CostUSD)
}

func TestValidateDynamicComparesPresentFields(t *testing.T) {
	eval := &scriptedEvaluator{
		results: []models.ValidationResult{
			{RuleName: "matches_reference_employer", Outcome: models.OutcomeRejected, Rationale: "different company"},
		},
		cost: 0.002,
	}
	extracted := map[string]interface{}{"employer": "ACME", "folio": "A-123"}
	reference := map[string]interface{}{"employer": "Globex", "missing": "x"}

	out, err := newValidator(eval).ValidateDynamic(context.Background(), extracted, reference, models.SourceSubmitted)
	require.NoError(t, err)
	require.Len(t, eval.lastRules, 1)
	assert.Equal(t, "matches_reference_employer", eval.lastRules[0].Name)

	// One reason for the absent field, one for the mismatch.
	require.Len(t, out.Reasons, 2)
	types := []string{out.Reasons[0].Type, out.Reasons[1].Type}
	assert.Contains(t, types, models.ReasonTypeMissingFields)
	assert.Contains(t, types, models.ReasonTypeDataMismatch)
}

func TestValidateDynamicEmptyReference(t *testing.T) {
	out, err := newValidator(&scriptedEvaluator{}).ValidateDynamic(context.Background(), nil, nil, models.SourceSubmitted)
	require.NoError(t, err)
	assert.Empty(t, out.Results)
	assert.Empty(t, out.Reasons)
}
