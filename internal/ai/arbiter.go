package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"cloud.google.com/go/vertexai/genai"

	"github.com/Lllllllleong/documentverificationflow/internal/gcp"
	"github.com/Lllllllleong/documentverificationflow/internal/models"
)

const (
	arbiterCostPerCall      = 0.0010
	arbiterCostPerKiloChars = 0.0001
)

var classificationSchema = mustSchema("classification.json", `{
	"type": "object",
	"properties": {
		"is_correct": {"type": "boolean"},
		"document_type": {"type": "string"},
		"confidence": {"type": "number"},
		"reason": {"type": "string"},
		"suggested_type": {"type": "string"}
	},
	"required": ["is_correct"]
}`)

var verifyExtractSchema = mustSchema("verify_extract.json", `{
	"type": "object",
	"properties": {
		"classification": {
			"type": "object",
			"properties": {
				"is_correct": {"type": "boolean"},
				"confidence": {"type": "number"},
				"reason": {"type": "string"}
			},
			"required": ["is_correct"]
		},
		"extracted_data": {"type": "object"}
	},
	"required": ["classification", "extracted_data"]
}`)

var rulesSchema = mustSchema("rules.json", `{
	"type": "object",
	"properties": {
		"results": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"rule_name": {"type": "string"},
					"outcome": {"type": "string", "enum": ["APPROVED", "REJECTED"]},
					"rationale": {"type": "string"}
				},
				"required": ["rule_name", "outcome"]
			}
		}
	},
	"required": ["results"]
}`)

var arbitrationSchema = mustSchema("arbitration.json", `{
	"type": "object",
	"properties": {
		"equivalent": {"type": "boolean"},
		"summary": {"type": "string"},
		"substantive_fields": {"type": "array", "items": {"type": "string"}},
		"format_only_fields": {"type": "array", "items": {"type": "string"}}
	},
	"required": ["equivalent"]
}`)

// Arbiter runs every JSON-mode model call of the pipeline.
type Arbiter struct {
	client *gcp.VertexClient
	logger *slog.Logger
}

func NewArbiter(client *gcp.VertexClient, logger *slog.Logger) *Arbiter {
	return &Arbiter{client: client, logger: logger}
}

// generate issues one arbiter call and prices it by a flat fee plus the
// combined prompt and response length.
func (a *Arbiter) generate(ctx context.Context, prompt string) (string, float64, error) {
	resp, err := a.client.ArbiterModel.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", 0, fmt.Errorf("generating arbiter response: %w", err)
	}
	text := gcp.ResponseText(resp)
	cost := arbiterCostPerCall + float64(len(prompt)+len(text))/1000.0*arbiterCostPerKiloChars
	return text, cost, nil
}

// VerifyType asks whether the OCR text is a document of the configured type.
// A parse failure is surfaced as an error so the caller can route the run to
// manual review instead of guessing.
func (a *Arbiter) VerifyType(ctx context.Context, ocrText string, cfg *models.DocumentTypeConfig) (*models.ClassificationResult, float64, error) {
	prompt := fmt.Sprintf(`Determine whether the document below is a "%s" (%s).

Type description: %s

Document text:
---
%s
---

Respond with a JSON object:
{"is_correct": <bool>, "confidence": <0..1>, "reason": "<short explanation>"}`,
		cfg.Name, cfg.Country, cfg.Description, ocrText)

	raw, cost, err := a.generate(ctx, prompt)
	if err != nil {
		return nil, 0, err
	}
	var result models.ClassificationResult
	lenient, err := ParseJSON(raw, classificationSchema, &result)
	if err != nil {
		return nil, cost, fmt.Errorf("parsing type verification: %w", err)
	}
	if lenient {
		a.logger.Warn("Type verification parsed leniently", "type", cfg.Name)
	}
	result.DocumentType = cfg.Name
	return &result, cost, nil
}

// ClassifyDocument picks the best matching catalog type for the OCR text,
// weighing the caller's declared label when one was given, or reports no
// match.
func (a *Arbiter) ClassifyDocument(ctx context.Context, ocrText, declared string, candidates []models.DocumentTypeConfig) (*models.ClassificationResult, float64, error) {
	var catalog strings.Builder
	for _, c := range candidates {
		fmt.Fprintf(&catalog, "- %s (%s): %s\n", c.Name, c.Country, c.Description)
	}
	declaredNote := "The caller declared no document type."
	if declared != "" {
		declaredNote = fmt.Sprintf("The caller declared the document as %q; confirm or refute that label.", declared)
	}
	prompt := fmt.Sprintf(`Classify the document below against this catalog of known types:

%s
%s

Document text:
---
%s
---

Respond with a JSON object:
{"is_correct": <true when a catalog type matches>, "document_type": "<matching type name or empty>", "confidence": <0..1>, "reason": "<short explanation>", "suggested_type": "<best guess when nothing matches, or empty>"}`,
		catalog.String(), declaredNote, ocrText)

	raw, cost, err := a.generate(ctx, prompt)
	if err != nil {
		return nil, 0, err
	}
	var result models.ClassificationResult
	lenient, err := ParseJSON(raw, classificationSchema, &result)
	if err != nil {
		return nil, cost, fmt.Errorf("parsing classification: %w", err)
	}
	if lenient {
		a.logger.Warn("Classification parsed leniently")
	}
	return &result, cost, nil
}

// ExtractWithSchema extracts the configured fields from the OCR text. Missing
// fields come back as nulls. A malformed response degrades to an empty map
// rather than an error: extraction gaps are a data-quality signal, not a
// pipeline fault.
func (a *Arbiter) ExtractWithSchema(ctx context.Context, ocrText string, cfg *models.DocumentTypeConfig) (map[string]interface{}, float64, error) {
	schemaJSON, err := json.Marshal(cfg.ExtractionSchema)
	if err != nil {
		return nil, 0, fmt.Errorf("marshaling extraction schema: %w", err)
	}
	prompt := fmt.Sprintf(`Extract the following fields from the document text. Use null for any field that is not present. Return values exactly as written in the document.

Field schema:
%s

Document text:
---
%s
---

Respond with a single JSON object whose keys are exactly the schema's field names.`,
		schemaJSON, ocrText)

	raw, cost, err := a.generate(ctx, prompt)
	if err != nil {
		return nil, 0, err
	}
	extracted := map[string]interface{}{}
	if _, perr := ParseJSON(raw, nil, &extracted); perr != nil {
		a.logger.Warn("Extraction response unparseable, returning empty data",
			"type", cfg.Name,
			"error", perr)
		return map[string]interface{}{}, cost, nil
	}
	// A field the model omitted entirely still shows up, as null.
	for _, field := range cfg.SchemaFields() {
		if _, ok := extracted[field]; !ok {
			extracted[field] = nil
		}
	}
	return extracted, cost, nil
}

type combinedResponse struct {
	Classification models.ClassificationResult `json:"classification"`
	ExtractedData  map[string]interface{}      `json:"extracted_data"`
}

// VerifyAndExtract runs type verification and schema extraction as a single
// call. A parse failure is an error so the caller can fall back to the
// separate path.
func (a *Arbiter) VerifyAndExtract(ctx context.Context, ocrText string, cfg *models.DocumentTypeConfig) (*models.ClassificationResult, map[string]interface{}, float64, error) {
	schemaJSON, err := json.Marshal(cfg.ExtractionSchema)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("marshaling extraction schema: %w", err)
	}
	prompt := fmt.Sprintf(`Perform two tasks on the document text below.

Task 1: determine whether it is a "%s" (%s). Type description: %s
Task 2: extract these fields, using null for any field not present:
%s

Document text:
---
%s
---

Respond with a JSON object:
{"classification": {"is_correct": <bool>, "confidence": <0..1>, "reason": "<short explanation>"}, "extracted_data": {<field values>}}`,
		cfg.Name, cfg.Country, cfg.Description, schemaJSON, ocrText)

	raw, cost, err := a.generate(ctx, prompt)
	if err != nil {
		return nil, nil, 0, err
	}
	var result combinedResponse
	lenient, err := ParseJSON(raw, verifyExtractSchema, &result)
	if err != nil {
		return nil, nil, cost, fmt.Errorf("parsing combined verification: %w", err)
	}
	if lenient {
		a.logger.Warn("Combined verification parsed leniently", "type", cfg.Name)
	}
	result.Classification.DocumentType = cfg.Name
	if result.ExtractedData == nil {
		result.ExtractedData = map[string]interface{}{}
	}
	return &result.Classification, result.ExtractedData, cost, nil
}

type ruleResponse struct {
	Results []struct {
		RuleName  string `json:"rule_name"`
		Outcome   string `json:"outcome"`
		Rationale string `json:"rationale"`
	} `json:"results"`
}

// EvaluateRules runs a batch of business rules against the given subject
// material and maps the verdicts into validation results tagged with the
// rule family and data source.
func (a *Arbiter) EvaluateRules(ctx context.Context, subject string, rules []models.BusinessRule, family, source string) ([]models.ValidationResult, float64, error) {
	if len(rules) == 0 {
		return nil, 0, nil
	}
	var ruleList strings.Builder
	for _, r := range rules {
		fmt.Fprintf(&ruleList, "- %s: %s\n", r.Name, r.Instruction)
	}
	prompt := fmt.Sprintf(`Evaluate each rule below against the material. A rule passes (APPROVED) only if the material clearly satisfies it; anything ambiguous or contradicted is REJECTED.

Rules:
%s
Material:
---
%s
---

Respond with a JSON object:
{"results": [{"rule_name": "<name>", "outcome": "APPROVED"|"REJECTED", "rationale": "<short explanation>"}]}`,
		ruleList.String(), subject)

	raw, cost, err := a.generate(ctx, prompt)
	if err != nil {
		return nil, 0, err
	}
	var parsed ruleResponse
	lenient, err := ParseJSON(raw, rulesSchema, &parsed)
	if err != nil {
		return nil, cost, fmt.Errorf("parsing rule evaluation: %w", err)
	}
	if lenient {
		a.logger.Warn("Rule evaluation parsed leniently", "family", family)
	}

	results := make([]models.ValidationResult, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		outcome := r.Outcome
		if outcome != models.OutcomeApproved {
			outcome = models.OutcomeRejected
		}
		results = append(results, models.ValidationResult{
			RuleName:  r.RuleName,
			Family:    family,
			Outcome:   outcome,
			Rationale: r.Rationale,
			Source:    source,
		})
	}
	return results, cost, nil
}

// ArbitrateMismatches asks whether the field-level differences between the
// two renditions are substantive. An unparseable verdict is treated as
// substantive: equivalence must be proven, never assumed.
func (a *Arbiter) ArbitrateMismatches(ctx context.Context, submitted, authoritative map[string]interface{}, mismatches []models.Mismatch) (*models.ArbitrationResult, float64, error) {
	payload, err := json.MarshalIndent(map[string]interface{}{
		"submitted_extraction":     submitted,
		"authoritative_extraction": authoritative,
		"differences":              mismatches,
	}, "", "  ")
	if err != nil {
		return nil, 0, fmt.Errorf("marshaling arbitration payload: %w", err)
	}
	prompt := fmt.Sprintf(`Two renditions of the same document were compared field by field after normalization. Both full extractions follow, with the list of remaining differences. Judge each difference: is it merely a formatting or transcription variation (same underlying value), or a substantive difference in content?

%s

Respond with a JSON object:
{"equivalent": <true when every difference is format-only>, "summary": "<one sentence>", "substantive_fields": ["<field>", ...], "format_only_fields": ["<field>", ...]}`,
		payload)

	raw, cost, err := a.generate(ctx, prompt)
	if err != nil {
		return nil, 0, err
	}
	var result models.ArbitrationResult
	lenient, perr := ParseJSON(raw, arbitrationSchema, &result)
	if perr != nil {
		a.logger.Warn("Arbitration response unparseable, treating differences as substantive", "error", perr)
		fields := make([]string, 0, len(mismatches))
		for _, m := range mismatches {
			fields = append(fields, m.Field)
		}
		return &models.ArbitrationResult{
			Equivalent:        false,
			Summary:           "arbitration response could not be parsed",
			SubstantiveFields: fields,
		}, cost, nil
	}
	if lenient {
		a.logger.Warn("Arbitration parsed leniently")
	}
	return &result, cost, nil
}
