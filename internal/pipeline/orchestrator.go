package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Lllllllleong/documentverificationflow/internal/authenticity"
	"github.com/Lllllllleong/documentverificationflow/internal/models"
	"github.com/Lllllllleong/documentverificationflow/internal/rules"
	"github.com/Lllllllleong/documentverificationflow/internal/store"
)

// TextExtractor is the OCR fallback chain.
type TextExtractor interface {
	Extract(ctx context.Context, content []byte, fileName string) (text, provider string, costUSD float64, err error)
}

// ArbiterAPI is the slice of the model arbiter the orchestrator drives.
type ArbiterAPI interface {
	VerifyType(ctx context.Context, ocrText string, cfg *models.DocumentTypeConfig) (*models.ClassificationResult, float64, error)
	ClassifyDocument(ctx context.Context, ocrText, declared string, candidates []models.DocumentTypeConfig) (*models.ClassificationResult, float64, error)
	ExtractWithSchema(ctx context.Context, ocrText string, cfg *models.DocumentTypeConfig) (map[string]interface{}, float64, error)
	VerifyAndExtract(ctx context.Context, ocrText string, cfg *models.DocumentTypeConfig) (*models.ClassificationResult, map[string]interface{}, float64, error)
}

// RuleValidator runs the business-rule families.
type RuleValidator interface {
	ValidateGeneral(ctx context.Context, ocrText string, cfg *models.DocumentTypeConfig, source string) (*rules.Outcome, error)
	ValidateCross(ctx context.Context, extracted, reference map[string]interface{}, cfg *models.DocumentTypeConfig, source string) (*rules.Outcome, error)
	ValidateDynamic(ctx context.Context, extracted, reference map[string]interface{}, source string) (*rules.Outcome, error)
}

// AuthenticityChecker runs the tamper heuristics.
type AuthenticityChecker interface {
	Inspect(ctx context.Context, fileURL, fileName string, content []byte) *authenticity.Report
}

// DocumentVerifier runs the authoritative-source verification.
type DocumentVerifier interface {
	Verify(ctx context.Context, doc *models.ProcessedDocument, cfg *models.DocumentTypeConfig) (*models.VerificationResult, float64)
}

// Notifier delivers the terminal record to the caller's callback, when one
// was registered.
type Notifier interface {
	Notify(ctx context.Context, doc *models.ProcessedDocument)
}

// Params wires an Orchestrator.
type Params struct {
	Store        store.DocumentStore
	Catalog      store.TypeCatalog
	Fetcher      FileFetcher
	OCR          TextExtractor
	Arbiter      ArbiterAPI
	Validator    RuleValidator
	Authenticity AuthenticityChecker
	Verifier     DocumentVerifier
	Registry     *Registry
	Notifier     Notifier
	// CombinedExtraction collapses type verification and extraction into one
	// model call, with the separate calls as fallback.
	CombinedExtraction bool
	Logger             *slog.Logger
}

// Orchestrator drives one admitted document through OCR, resolution,
// validation, authenticity and verification to a terminal decision.
type Orchestrator struct {
	store        store.DocumentStore
	catalog      store.TypeCatalog
	fetcher      FileFetcher
	ocr          TextExtractor
	arbiter      ArbiterAPI
	validator    RuleValidator
	authenticity AuthenticityChecker
	verifier     DocumentVerifier
	registry     *Registry
	notifier     Notifier
	combined     bool
	logger       *slog.Logger
}

func New(p Params) *Orchestrator {
	return &Orchestrator{
		store:        p.Store,
		catalog:      p.Catalog,
		fetcher:      p.Fetcher,
		ocr:          p.OCR,
		arbiter:      p.Arbiter,
		validator:    p.Validator,
		authenticity: p.Authenticity,
		verifier:     p.Verifier,
		registry:     p.Registry,
		notifier:     p.Notifier,
		combined:     p.CombinedExtraction,
		logger:       p.Logger,
	}
}

// Process runs a freshly admitted document to its terminal state. Fatal
// errors end the run as FAILED with a single processing-error reason; every
// other outcome ends as COMPLETED with a decision.
func (o *Orchestrator) Process(ctx context.Context, doc *models.ProcessedDocument) {
	logCtx := o.logger.With("documentId", doc.DocumentID)
	state := newRunState(doc)

	if err := o.run(ctx, state, logCtx); err != nil {
		logCtx.Error("Run aborted", "error", err)
		if merr := o.store.MarkFailed(ctx, doc.DocumentID, err.Error()); merr != nil {
			logCtx.Error("Could not record FAILED state", "error", merr)
		}
	}
	o.sendCallback(ctx, doc.DocumentID, logCtx)
}

func (o *Orchestrator) run(ctx context.Context, state *runState, logCtx *slog.Logger) error {
	doc := state.doc

	content, err := o.fetcher.Fetch(ctx, doc.FileURL)
	if err != nil {
		return fmt.Errorf("fetching submitted file: %w", err)
	}
	state.addLog("fetched submitted file (%d bytes)", len(content))

	if err := o.store.SetStatus(ctx, doc.DocumentID, models.StatusOCR, "ocr started"); err != nil {
		return fmt.Errorf("advancing to OCR: %w", err)
	}
	text, provider, ocrCost, err := o.ocr.Extract(ctx, content, doc.FileName)
	if err != nil {
		return fmt.Errorf("extracting text: %w", err)
	}
	doc.OCRText = text
	state.addCost(ocrCost)
	state.addLog("ocr completed via %s (%d chars, $%.4f)", provider, len(text), ocrCost)

	var (
		cfg     *models.DocumentTypeConfig
		variant Variant
	)
	direct := doc.SubType != ""
	if direct {
		v, ok := o.registry.Lookup(doc.SubType)
		if !ok {
			return fmt.Errorf("unknown certificate sub-type %q", doc.SubType)
		}
		variant = v
		cfg, err = o.resolveConfig(ctx, state, variant.TypeName)
		if err != nil {
			return err
		}
		if cfg != nil {
			matched, err := o.validateDirect(ctx, state, cfg)
			if err != nil {
				return err
			}
			if !matched {
				cfg = nil
			}
		}
	} else {
		cfg, err = o.classify(ctx, state, logCtx)
		if err != nil {
			return err
		}
		if cfg != nil {
			if err := o.store.SetStatus(ctx, doc.DocumentID, models.StatusValidation, "validation started"); err != nil {
				return fmt.Errorf("advancing to validation: %w", err)
			}
			extracted, cost, err := o.arbiter.ExtractWithSchema(ctx, doc.OCRText, cfg)
			if err != nil {
				return fmt.Errorf("extracting data: %w", err)
			}
			doc.ExtractedData = extracted
			state.addCost(cost)
			state.addLog("extracted %d fields ($%.4f)", len(extracted), cost)
		}
	}

	if cfg != nil && (!direct || variant.RequiresAuthenticity) {
		report := o.authenticity.Inspect(ctx, doc.FileURL, doc.FileName, content)
		doc.AuthenticityResult = report.Outcome.String()
		doc.AuthenticitySignals = report.Signals
		state.addLog("authenticity checks finished: %s (%d signals)", report.Outcome, len(report.Signals))
		if report.Suspicious() {
			state.addReason(models.RejectionReason{
				Reason: "document shows signs of tampering or manipulation",
				Type:   models.ReasonTypeAuthenticity,
				Source: models.SourceSubmitted,
				Details: map[string]interface{}{
					"severity": report.Outcome.String(),
					"signals":  report.Signals,
				},
			})
		}
	}

	if cfg != nil {
		if err := o.applyRules(ctx, state, cfg, doc.OCRText, doc.ExtractedData, models.SourceSubmitted); err != nil {
			return err
		}
	}

	if direct && variant.RequiresVerification && cfg != nil && len(doc.RejectionReasons) == 0 {
		if err := o.verify(ctx, state, cfg); err != nil {
			return err
		}
	}

	doc.Decision = state.resolveDecision()
	state.addLog("final decision: %s", doc.Decision)
	logCtx.Info("Run completed",
		"decision", doc.Decision,
		"rejectionReasons", len(doc.RejectionReasons),
		"costUsd", doc.CostUSD)

	if err := o.store.SaveResult(ctx, doc.DocumentID, doc); err != nil {
		return fmt.Errorf("saving result: %w", err)
	}
	return nil
}

// resolveConfig loads the catalog entry backing a run. A missing or inactive
// entry is not fatal: the run completes as REJECTED with a not-configured
// reason, skipping every later stage.
func (o *Orchestrator) resolveConfig(ctx context.Context, state *runState, typeName string) (*models.DocumentTypeConfig, error) {
	cfg, err := o.catalog.FindActive(ctx, typeName)
	if errors.Is(err, store.ErrNotFound) {
		state.addReason(models.RejectionReason{
			Reason: fmt.Sprintf("document type %q is not configured", typeName),
			Type:   models.ReasonTypeNotConfigured,
			Source: models.SourceSubmitted,
		})
		state.addLog("no active catalog entry for %q", typeName)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading catalog entry %q: %w", typeName, err)
	}
	state.doc.TypeName = cfg.Name
	return cfg, nil
}

// validateDirect runs type verification and extraction for a declared
// sub-type, combined into one model call when enabled. A category mismatch
// records the rejection and reports matched=false so the run skips every
// later stage.
func (o *Orchestrator) validateDirect(ctx context.Context, state *runState, cfg *models.DocumentTypeConfig) (bool, error) {
	doc := state.doc
	if err := o.store.SetStatus(ctx, doc.DocumentID, models.StatusValidation, "validation started"); err != nil {
		return false, fmt.Errorf("advancing to validation: %w", err)
	}

	var (
		classification *models.ClassificationResult
		extracted      map[string]interface{}
	)
	if o.combined {
		class, data, cost, err := o.arbiter.VerifyAndExtract(ctx, doc.OCRText, cfg)
		if err == nil {
			classification, extracted = class, data
			state.addCost(cost)
			state.addLog("combined verification and extraction completed")
		} else {
			state.addCost(cost)
			state.addLog("combined call failed, falling back to separate calls: %v", err)
		}
	}
	if classification == nil {
		class, cost, err := o.arbiter.VerifyType(ctx, doc.OCRText, cfg)
		state.addCost(cost)
		if err != nil {
			return false, fmt.Errorf("verifying document type: %w", err)
		}
		data, cost, err := o.arbiter.ExtractWithSchema(ctx, doc.OCRText, cfg)
		state.addCost(cost)
		if err != nil {
			return false, fmt.Errorf("extracting data: %w", err)
		}
		classification, extracted = class, data
	}

	doc.Classification = classification
	doc.ExtractedData = extracted
	if !classification.IsCorrect {
		state.addReason(models.RejectionReason{
			Reason: fmt.Sprintf("document is not a %s: %s", cfg.Name, classification.Reason),
			Type:   models.ReasonTypeClassification,
			Source: models.SourceSubmitted,
		})
		return false, nil
	}
	return true, nil
}

// classify resolves the document type from the active catalog when the
// caller declared none.
func (o *Orchestrator) classify(ctx context.Context, state *runState, logCtx *slog.Logger) (*models.DocumentTypeConfig, error) {
	doc := state.doc
	if err := o.store.SetStatus(ctx, doc.DocumentID, models.StatusClassification, "classification started"); err != nil {
		return nil, fmt.Errorf("advancing to classification: %w", err)
	}
	candidates, err := o.catalog.ActiveTypes(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing active types: %w", err)
	}
	result, cost, err := o.arbiter.ClassifyDocument(ctx, doc.OCRText, doc.DeclaredType, candidates)
	if err != nil {
		return nil, fmt.Errorf("classifying document: %w", err)
	}
	doc.Classification = result
	state.addCost(cost)
	state.addLog("classification: match=%t type=%q confidence=%.2f", result.IsCorrect, result.DocumentType, result.Confidence)

	if !result.IsCorrect || result.DocumentType == "" {
		reason := models.RejectionReason{
			Reason: "document does not match any configured type",
			Type:   models.ReasonTypeClassification,
			Source: models.SourceSubmitted,
		}
		if result.Reason != "" {
			reason.Reason = result.Reason
		}
		details := map[string]interface{}{}
		if doc.DeclaredType != "" {
			details["declaredType"] = doc.DeclaredType
		}
		if result.SuggestedType != "" {
			details["suggestedType"] = result.SuggestedType
		}
		if len(details) > 0 {
			reason.Details = details
		}
		state.addReason(reason)
		return nil, nil
	}
	logCtx.Info("Document classified", "type", result.DocumentType, "confidence", result.Confidence)
	return o.resolveConfig(ctx, state, result.DocumentType)
}

// applyRules runs the rule families over one rendition of the document. The
// dynamic field comparator substitutes for cross-validation only when the
// type configures no cross rules.
func (o *Orchestrator) applyRules(ctx context.Context, state *runState, cfg *models.DocumentTypeConfig, ocrText string, extracted map[string]interface{}, source string) error {
	doc := state.doc

	general, err := o.validator.ValidateGeneral(ctx, ocrText, cfg, source)
	if err != nil {
		return err
	}
	state.applyOutcome(general)

	if len(cfg.CrossValidationRules) > 0 {
		cross, err := o.validator.ValidateCross(ctx, extracted, doc.ReferenceData, cfg, source)
		if err != nil {
			return err
		}
		state.applyOutcome(cross)
	} else {
		dynamic, err := o.validator.ValidateDynamic(ctx, extracted, doc.ReferenceData, source)
		if err != nil {
			return err
		}
		state.applyOutcome(dynamic)
	}

	state.addLog("rule validation over %s rendition finished: %d results, %d rejections",
		source, len(doc.ValidationResults), len(doc.RejectionReasons))
	return nil
}

// verify runs the authoritative-source check and maps its outcome onto the
// decision. A technical failure never rejects; it demotes a would-be
// approval to manual review instead. When a rendition was retrieved, the
// rule families run a second time against it.
func (o *Orchestrator) verify(ctx context.Context, state *runState, cfg *models.DocumentTypeConfig) error {
	doc := state.doc
	result, cost := o.verifier.Verify(ctx, doc, cfg)
	doc.Verification = result
	state.addCost(cost)

	switch {
	case !result.Success:
		state.needsReview = true
		state.addLog("verification could not complete: %s", result.Error)
	case !result.Valid:
		state.addReason(models.RejectionReason{
			Reason: fmt.Sprintf("authoritative source reports the certificate as invalid: %s", result.Message),
			Type:   models.ReasonTypeInvalidDocument,
			Source: models.SourceAuthoritative,
		})
		state.addLog("verification rejected certificate: %s", result.Message)
	case result.Comparison != nil && !result.Comparison.Match:
		state.addReason(models.RejectionReason{
			Reason: "submitted document differs substantively from the authoritative rendition",
			Type:   models.ReasonTypeDataMismatch,
			Source: models.SourceAuthoritative,
			Details: map[string]interface{}{
				"summary":    result.Comparison.Summary,
				"mismatches": result.Comparison.Mismatches,
			},
		})
		state.addLog("verification found substantive mismatches")
	default:
		state.addLog("verification confirmed the certificate")
	}

	if len(result.AuthoritativeData) > 0 {
		if err := o.applyRules(ctx, state, cfg, result.AuthoritativeText, result.AuthoritativeData, models.SourceAuthoritative); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) sendCallback(ctx context.Context, documentID string, logCtx *slog.Logger) {
	if o.notifier == nil {
		return
	}
	final, err := o.store.Get(ctx, documentID)
	if err != nil {
		logCtx.Error("Could not load terminal record for callback", "error", err)
		return
	}
	o.notifier.Notify(ctx, final)
}
