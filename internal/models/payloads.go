package models

import "time"

// These structs define the JSON payloads of the submission API and the
// terminal-completion callback.

// SubmitRequest is the classification-mode submission payload.
type SubmitRequest struct {
	DocumentID    string                 `json:"document_id"`
	FileURL       string                 `json:"file_url"`
	DeclaredType  string                 `json:"declared_type"`
	ReferenceData map[string]interface{} `json:"reference_data,omitempty"`
	CallbackURL   string                 `json:"callback_url,omitempty"`
}

// CertificateRequest is the direct-mode submission payload for categories
// whose type is fixed by the route.
type CertificateRequest struct {
	DocumentID    string                 `json:"document_id"`
	FileURL       string                 `json:"file_url"`
	SubType       string                 `json:"sub_type,omitempty"`
	ReferenceData map[string]interface{} `json:"reference_data"`
	CallbackURL   string                 `json:"callback_url,omitempty"`
}

// AcceptedResponse acknowledges an admitted submission.
type AcceptedResponse struct {
	Message    string `json:"message"`
	DocumentID string `json:"document_id"`
	Status     string `json:"status"`
}

// StatusResponse answers a status query.
type StatusResponse struct {
	DocumentID  string           `json:"document_id"`
	Status      ProcessingStatus `json:"status"`
	Decision    FinalDecision    `json:"final_decision,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
	ProcessedAt *time.Time       `json:"processed_at,omitempty"`
}

// ResultResponse answers a result query once the run is terminal.
type ResultResponse struct {
	DocumentID        string                 `json:"document_id"`
	Status            ProcessingStatus       `json:"status"`
	Decision          FinalDecision          `json:"final_decision,omitempty"`
	DocumentType      string                 `json:"document_type,omitempty"`
	ExtractedData     map[string]interface{} `json:"extracted_data,omitempty"`
	ValidationResults []ValidationResult     `json:"validation_results,omitempty"`
	RejectionReasons  []RejectionReason      `json:"rejection_reasons,omitempty"`
	CostUSD           float64                `json:"processing_cost_usd"`
	ProcessingLog     []string               `json:"processing_log,omitempty"`
	ProcessedAt       *time.Time             `json:"processed_at,omitempty"`
}

// CallbackPayload is POSTed once to the caller-supplied callback URL when a
// run reaches a terminal state.
type CallbackPayload struct {
	DocumentID        string                 `json:"document_id"`
	Status            ProcessingStatus       `json:"status"`
	Decision          FinalDecision          `json:"final_decision,omitempty"`
	ExtractedData     map[string]interface{} `json:"extracted_data,omitempty"`
	ValidationResults []ValidationResult     `json:"validation_results,omitempty"`
	RejectionReasons  []RejectionReason      `json:"rejection_reasons,omitempty"`
	CostUSD           float64                `json:"processing_cost_usd"`
	ProcessingLog     []string               `json:"processing_log,omitempty"`
	ProcessedAt       time.Time              `json:"processed_at"`
}
