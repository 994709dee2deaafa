// Package rules evaluates the configured business-rule families over a
// document run and converts failed verdicts into rejection reasons.
package rules

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/Lllllllleong/documentverificationflow/internal/models"
)

// RuleEvaluator is the slice of the arbiter this package needs.
type RuleEvaluator interface {
	EvaluateRules(ctx context.Context, subject string, rules []models.BusinessRule, family, source string) ([]models.ValidationResult, float64, error)
}

// Outcome bundles what one validation pass produced.
type Outcome struct {
	Results []models.ValidationResult
	Reasons []models.RejectionReason
	CostUSD float64
}

type Validator struct {
	evaluator RuleEvaluator
	logger    *slog.Logger
}

func NewValidator(evaluator RuleEvaluator, logger *slog.Logger) *Validator {
	return &Validator{evaluator: evaluator, logger: logger}
}

// ValidateGeneral runs the type's general rules against the document text.
func (v *Validator) ValidateGeneral(ctx context.Context, ocrText string, cfg *models.DocumentTypeConfig, source string) (*Outcome, error) {
	results, cost, err := v.evaluator.EvaluateRules(ctx, ocrText, cfg.GeneralRules, models.FamilyGeneral, source)
	if err != nil {
		return nil, fmt.Errorf("evaluating general rules: %w", err)
	}
	return v.outcome(results, cost, models.ReasonTypeGeneralRule, source), nil
}

// ValidateCross runs the type's cross-validation rules against the extracted
// data joined with the caller-supplied reference data.
func (v *Validator) ValidateCross(ctx context.Context, extracted, reference map[string]interface{}, cfg *models.DocumentTypeConfig, source string) (*Outcome, error) {
	if len(cfg.CrossValidationRules) == 0 {
		return &Outcome{}, nil
	}
	subject, err := crossSubject(extracted, reference)
	if err != nil {
		return nil, err
	}
	results, cost, err := v.evaluator.EvaluateRules(ctx, subject, cfg.CrossValidationRules, models.FamilyCross, source)
	if err != nil {
		return nil, fmt.Errorf("evaluating cross-validation rules: %w", err)
	}
	return v.outcome(results, cost, models.ReasonTypeCrossValidation, source), nil
}

// ValidateDynamic checks the caller-supplied reference fields against the
// extracted data. Fields absent from the extraction are flagged without an
// arbiter call; present fields are compared by a synthesized rule per field.
func (v *Validator) ValidateDynamic(ctx context.Context, extracted, reference map[string]interface{}, source string) (*Outcome, error) {
	if len(reference) == 0 {
		return &Outcome{}, nil
	}

	out := &Outcome{}
	present := map[string]interface{}{}
	for field, want := range reference {
		got, ok := extracted[field]
		if !ok || got == nil {
			out.Results = append(out.Results, models.ValidationResult{
				RuleName:  dynamicRuleName(field),
				Family:    models.FamilyDynamic,
				Outcome:   models.OutcomeRejected,
				Rationale: "field not found in document",
				Source:    source,
			})
			out.Reasons = append(out.Reasons, models.RejectionReason{
				Reason: fmt.Sprintf("expected field %q was not found in the document", field),
				Type:   models.ReasonTypeMissingFields,
				Rule:   dynamicRuleName(field),
				Source: source,
			})
			continue
		}
		present[field] = want
	}
	if len(present) == 0 {
		return out, nil
	}

	dynamicRules := make([]models.BusinessRule, 0, len(present))
	for field, want := range present {
		dynamicRules = append(dynamicRules, models.BusinessRule{
			Name:        dynamicRuleName(field),
			Instruction: fmt.Sprintf("The document's %q value must refer to the same thing as %q, allowing formatting and abbreviation differences.", field, fmt.Sprint(want)),
		})
	}
	subject, err := crossSubject(extracted, present)
	if err != nil {
		return nil, err
	}
	results, cost, err := v.evaluator.EvaluateRules(ctx, subject, dynamicRules, models.FamilyDynamic, source)
	if err != nil {
		return nil, fmt.Errorf("evaluating dynamic rules: %w", err)
	}
	evaluated := v.outcome(results, cost, models.ReasonTypeDataMismatch, source)
	out.Results = append(out.Results, evaluated.Results...)
	out.Reasons = append(out.Reasons, evaluated.Reasons...)
	out.CostUSD += evaluated.CostUSD
	return out, nil
}

func (v *Validator) outcome(results []models.ValidationResult, cost float64, reasonType, source string) *Outcome {
	out := &Outcome{Results: results, CostUSD: cost}
	for _, r := range results {
		if r.Outcome == models.OutcomeApproved {
			continue
		}
		out.Reasons = append(out.Reasons, models.RejectionReason{
			Reason: r.Rationale,
			Type:   reasonType,
			Rule:   r.RuleName,
			Source: source,
		})
	}
	if len(out.Reasons) > 0 {
		v.logger.Info("Rule validation produced rejections",
			"family", reasonType,
			"source", source,
			"rejected", len(out.Reasons))
	}
	return out
}

func dynamicRuleName(field string) string {
	return "matches_reference_" + field
}

func crossSubject(extracted, reference map[string]interface{}) (string, error) {
	payload, err := json.MarshalIndent(map[string]interface{}{
		"document_data":  extracted,
		"reference_data": reference,
	}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling rule subject: %w", err)
	}
	return string(payload), nil
}
