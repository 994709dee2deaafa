package models

import "time"

// ProcessingStatus tracks where a document is inside the pipeline. The
// sequence is monotonic: a record never moves back to an earlier status.
type ProcessingStatus string

const (
	StatusPending        ProcessingStatus = "PENDING"
	StatusOCR            ProcessingStatus = "OCR"
	StatusClassification ProcessingStatus = "CLASSIFICATION"
	StatusValidation     ProcessingStatus = "VALIDATION"
	StatusCompleted      ProcessingStatus = "COMPLETED"
	StatusFailed         ProcessingStatus = "FAILED"
)

var statusRank = map[ProcessingStatus]int{
	StatusPending:        0,
	StatusOCR:            1,
	StatusClassification: 2,
	StatusValidation:     2, // direct mode skips CLASSIFICATION
	StatusCompleted:      3,
	StatusFailed:         3,
}

// Rank orders statuses for the monotonicity guard.
func (s ProcessingStatus) Rank() int { return statusRank[s] }

// Terminal reports whether the status ends a run.
func (s ProcessingStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// FinalDecision is the outcome of a completed run. The zero value means the
// pipeline has not decided yet.
type FinalDecision string

const (
	DecisionUnset        FinalDecision = ""
	DecisionApproved     FinalDecision = "APPROVED"
	DecisionRejected     FinalDecision = "REJECTED"
	DecisionManualReview FinalDecision = "MANUAL_REVIEW"
)

// RejectionReason is one structured entry in the audit trail explaining why a
// document was not approved.
type RejectionReason struct {
	Reason  string                 `firestore:"reason" json:"reason"`
	Type    string                 `firestore:"type,omitempty" json:"type,omitempty"`
	Rule    string                 `firestore:"rule,omitempty" json:"rule,omitempty"`
	Source  string                 `firestore:"source,omitempty" json:"source,omitempty"`
	Details map[string]interface{} `firestore:"details,omitempty" json:"details,omitempty"`
}

// Rejection reason types and document sources used across the pipeline.
const (
	ReasonTypeClassification  = "classification"
	ReasonTypeNotConfigured   = "type_not_configured"
	ReasonTypeAuthenticity    = "authenticity"
	ReasonTypeGeneralRule     = "general"
	ReasonTypeCrossValidation = "cross_validation"
	ReasonTypeMissingFields   = "missing_fields"
	ReasonTypeDataMismatch    = "data_mismatch"
	ReasonTypeVerification    = "verification_error"
	ReasonTypeInvalidDocument = "invalid_document"
	ReasonTypeProcessingError = "processing_error"

	SourceSubmitted     = "submitted"
	SourceAuthoritative = "authoritative"
)

// ValidationResult is the outcome of a single business-rule evaluation.
type ValidationResult struct {
	RuleName  string `firestore:"ruleName" json:"rule_name"`
	Family    string `firestore:"family" json:"family"`
	Outcome   string `firestore:"outcome" json:"outcome"`
	Rationale string `firestore:"rationale,omitempty" json:"rationale,omitempty"`
	Source    string `firestore:"source" json:"source"`
}

// Rule outcome values returned by the arbiter.
const (
	OutcomeApproved = "APPROVED"
	OutcomeRejected = "REJECTED"

	FamilyGeneral = "general"
	FamilyCross   = "cross_validation"
	FamilyDynamic = "dynamic"
)

// ClassificationResult is the arbiter's verdict on the declared category.
type ClassificationResult struct {
	IsCorrect     bool    `firestore:"isCorrect" json:"is_correct"`
	DocumentType  string  `firestore:"documentType,omitempty" json:"document_type,omitempty"`
	Confidence    float64 `firestore:"confidence,omitempty" json:"confidence,omitempty"`
	Reason        string  `firestore:"reason,omitempty" json:"reason,omitempty"`
	SuggestedType string  `firestore:"suggestedType,omitempty" json:"suggested_type,omitempty"`
}

// Mismatch is one field-level difference between the submitted extraction and
// the authoritative one.
type Mismatch struct {
	Field                   string      `firestore:"field" json:"field"`
	SubmittedValue          interface{} `firestore:"submittedValue,omitempty" json:"submitted_value,omitempty"`
	AuthoritativeValue      interface{} `firestore:"authoritativeValue,omitempty" json:"authoritative_value,omitempty"`
	NormalizedSubmitted     interface{} `firestore:"normalizedSubmitted,omitempty" json:"normalized_submitted,omitempty"`
	NormalizedAuthoritative interface{} `firestore:"normalizedAuthoritative,omitempty" json:"normalized_authoritative,omitempty"`
}

// ArbitrationResult is the arbiter's judgment on a non-empty mismatch list.
type ArbitrationResult struct {
	Equivalent        bool     `firestore:"equivalent" json:"equivalent"`
	Summary           string   `firestore:"summary,omitempty" json:"summary,omitempty"`
	SubstantiveFields []string `firestore:"substantiveFields,omitempty" json:"substantive_fields,omitempty"`
	FormatOnlyFields  []string `firestore:"formatOnlyFields,omitempty" json:"format_only_fields,omitempty"`
}

// Comparison methods recorded on a ComparisonResult.
const (
	ComparisonProgrammatic = "programmatic"
	ComparisonArbitrated   = "arbitrated"
	ComparisonError        = "error"
)

// ComparisonResult is the combined outcome of the two comparison phases.
type ComparisonResult struct {
	Match       bool               `firestore:"match" json:"match"`
	Mismatches  []Mismatch         `firestore:"mismatches,omitempty" json:"mismatches,omitempty"`
	Summary     string             `firestore:"summary,omitempty" json:"summary,omitempty"`
	Method      string             `firestore:"method" json:"method"`
	Arbitration *ArbitrationResult `firestore:"arbitration,omitempty" json:"arbitration,omitempty"`
}

// VerificationResult records the automatic-verification attempt against the
// authoritative external source.
type VerificationResult struct {
	Success           bool                   `firestore:"success" json:"success"`
	Valid             bool                   `firestore:"valid" json:"valid"`
	Message           string                 `firestore:"message,omitempty" json:"message,omitempty"`
	Error             string                 `firestore:"error,omitempty" json:"error,omitempty"`
	FieldsUsed        map[string]string      `firestore:"fieldsUsed,omitempty" json:"fields_used,omitempty"`
	AuthoritativeURL  string                 `firestore:"authoritativeUrl,omitempty" json:"authoritative_url,omitempty"`
	AuthoritativeData map[string]interface{} `firestore:"authoritativeData,omitempty" json:"authoritative_data,omitempty"`
	// AuthoritativeText is the transcription of the retrieved rendition. It
	// feeds the second rule-validation pass and is not persisted.
	AuthoritativeText string `firestore:"-" json:"-"`
	Comparison        *ComparisonResult      `firestore:"comparison,omitempty" json:"comparison,omitempty"`
	RetrievedAt       time.Time              `firestore:"retrievedAt,omitempty" json:"retrieved_at,omitempty"`
}

// ProcessedDocument is the durable record for one submission attempt.
type ProcessedDocument struct {
	DocumentID    string                 `firestore:"documentId" json:"document_id"`
	FileURL       string                 `firestore:"fileUrl" json:"file_url"`
	FileName      string                 `firestore:"fileName,omitempty" json:"file_name,omitempty"`
	DeclaredType  string                 `firestore:"declaredType,omitempty" json:"declared_type,omitempty"`
	SubType       string                 `firestore:"subType,omitempty" json:"sub_type,omitempty"`
	ReferenceData map[string]interface{} `firestore:"referenceData,omitempty" json:"reference_data,omitempty"`
	CallbackURL   string                 `firestore:"callbackUrl,omitempty" json:"callback_url,omitempty"`

	Status   ProcessingStatus `firestore:"processingStatus" json:"processing_status"`
	Decision FinalDecision    `firestore:"finalDecision,omitempty" json:"final_decision,omitempty"`

	OCRText        string                 `firestore:"ocrText,omitempty" json:"ocr_text,omitempty"`
	ExtractedData  map[string]interface{} `firestore:"extractedData,omitempty" json:"extracted_data,omitempty"`
	Classification *ClassificationResult  `firestore:"classification,omitempty" json:"classification,omitempty"`
	TypeName       string                 `firestore:"documentTypeName,omitempty" json:"document_type_name,omitempty"`

	ValidationResults   []ValidationResult  `firestore:"validationResults,omitempty" json:"validation_results,omitempty"`
	RejectionReasons    []RejectionReason   `firestore:"rejectionReasons,omitempty" json:"rejection_reasons,omitempty"`
	AuthenticityResult  string              `firestore:"authenticityResult,omitempty" json:"authenticity_result,omitempty"`
	AuthenticitySignals []string            `firestore:"authenticitySignals,omitempty" json:"authenticity_signals,omitempty"`
	Verification        *VerificationResult `firestore:"verification,omitempty" json:"verification,omitempty"`

	CostUSD       float64  `firestore:"processingCostUsd" json:"processing_cost_usd"`
	ProcessingLog []string `firestore:"processingLog,omitempty" json:"processing_log,omitempty"`

	CreatedAt   time.Time `firestore:"createdAt" json:"created_at"`
	UpdatedAt   time.Time `firestore:"updatedAt" json:"updated_at"`
	ProcessedAt time.Time `firestore:"processedAt,omitempty" json:"processed_at,omitempty"`
}

// BusinessRule is an externally configured, arbiter-evaluated predicate.
type BusinessRule struct {
	Name        string `firestore:"name" json:"name"`
	Instruction string `firestore:"instruction" json:"instruction"`
}

// DocumentTypeConfig is one catalog entry describing a document category.
type DocumentTypeConfig struct {
	Name                 string                 `firestore:"name" json:"name"`
	Country              string                 `firestore:"country" json:"country"`
	Description          string                 `firestore:"description,omitempty" json:"description,omitempty"`
	ExtractionSchema     map[string]interface{} `firestore:"extractionSchema" json:"extraction_schema"`
	GeneralRules         []BusinessRule         `firestore:"generalRules,omitempty" json:"general_rules,omitempty"`
	CrossValidationRules []BusinessRule         `firestore:"crossValidationRules,omitempty" json:"cross_validation_rules,omitempty"`
	Active               bool                   `firestore:"isActive" json:"is_active"`
	CreatedAt            time.Time              `firestore:"createdAt,omitempty" json:"created_at,omitempty"`
	UpdatedAt            time.Time              `firestore:"updatedAt,omitempty" json:"updated_at,omitempty"`
}

// SchemaFields returns the declared field names of the extraction schema.
// Schemas are stored as JSON Schema objects, so the names live under
// "properties"; a flat field map is accepted as a fallback.
func (c *DocumentTypeConfig) SchemaFields() []string {
	source := c.ExtractionSchema
	if props, ok := c.ExtractionSchema["properties"].(map[string]interface{}); ok {
		source = props
	}
	fields := make([]string, 0, len(source))
	for name := range source {
		fields = append(fields, name)
	}
	return fields
}
