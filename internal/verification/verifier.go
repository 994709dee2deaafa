package verification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"

	"github.com/Lllllllleong/documentverificationflow/internal/gcp"
	"github.com/Lllllllleong/documentverificationflow/internal/models"
)

// Certificate sub-types with distinct authoritative lookup fields.
const (
	SubTypePersonaNatural = "persona_natural"
	SubTypeRazonSocial    = "razon_social"
)

// ErrMissingFields aborts a lookup whose identifying fields were not all
// extracted from the submitted document.
var ErrMissingFields = errors.New("missing lookup fields")

var variantFields = map[string][]string{
	SubTypePersonaNatural: {"folio_office", "folio_year", "folio_sequence", "verification_code"},
	SubTypeRazonSocial:    {"certificate_code"},
}

// FieldsForVariant selects and canonicalizes the lookup fields the sub-type
// needs. Every required field must be present and non-empty.
func FieldsForVariant(subType string, extracted map[string]interface{}) (map[string]string, error) {
	required, ok := variantFields[subType]
	if !ok {
		return nil, fmt.Errorf("unknown certificate sub-type %q", subType)
	}
	fields := make(map[string]string, len(required))
	var missing []string
	for _, name := range required {
		value, ok := extracted[name]
		str := strings.TrimSpace(fmt.Sprint(value))
		if !ok || value == nil || str == "" {
			missing = append(missing, name)
			continue
		}
		fields[name] = str
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingFields, strings.Join(missing, ", "))
	}
	if subType == SubTypeRazonSocial {
		fields["certificate_code"] = NormalizeCertificateCode(fields["certificate_code"])
	}
	return fields, nil
}

// NormalizeCertificateCode rewrites a certificate code as upper-case groups
// of four characters separated by single spaces, the format the portal
// expects.
func NormalizeCertificateCode(code string) string {
	compact := strings.ToUpper(strings.Join(strings.Fields(code), ""))
	var groups []string
	for len(compact) > 4 {
		groups = append(groups, compact[:4])
		compact = compact[4:]
	}
	if compact != "" {
		groups = append(groups, compact)
	}
	return strings.Join(groups, " ")
}

// TextExtractor is the OCR fallback chain's surface used here.
type TextExtractor interface {
	Extract(ctx context.Context, content []byte, fileName string) (text, provider string, costUSD float64, err error)
}

// DataExtractor is the arbiter surface the verifier needs.
type DataExtractor interface {
	ExtractWithSchema(ctx context.Context, ocrText string, cfg *models.DocumentTypeConfig) (map[string]interface{}, float64, error)
	ArbitrateMismatches(ctx context.Context, submitted, authoritative map[string]interface{}, mismatches []models.Mismatch) (*models.ArbitrationResult, float64, error)
}

// ObjectSaver persists the authoritative rendition for audit.
type ObjectSaver interface {
	Save(ctx context.Context, objectName string, content []byte, contentType string) (url string, err error)
}

// GCSSaver writes authoritative documents to a Cloud Storage bucket.
type GCSSaver struct {
	client *storage.Client
	bucket string
}

func NewGCSSaver(client *storage.Client, bucket string) *GCSSaver {
	return &GCSSaver{client: client, bucket: bucket}
}

func (s *GCSSaver) Save(ctx context.Context, objectName string, content []byte, contentType string) (string, error) {
	return gcp.SaveBytesAtomically(ctx, s.client.Bucket(s.bucket), s.bucket, objectName, content, contentType)
}

// Verifier retrieves the authoritative rendition and compares it with the
// submitted one.
type Verifier struct {
	portal    Portal
	ocr       TextExtractor
	extractor DataExtractor
	saver     ObjectSaver
	logger    *slog.Logger
}

func NewVerifier(portal Portal, ocr TextExtractor, extractor DataExtractor, saver ObjectSaver, logger *slog.Logger) *Verifier {
	return &Verifier{
		portal:    portal,
		ocr:       ocr,
		extractor: extractor,
		saver:     saver,
		logger:    logger,
	}
}

// Verify never returns a Go error: every failure mode is encoded in the
// result so the caller can map it onto a decision. The returned cost covers
// only the external calls that succeeded.
func (v *Verifier) Verify(ctx context.Context, doc *models.ProcessedDocument, cfg *models.DocumentTypeConfig) (*models.VerificationResult, float64) {
	result := &models.VerificationResult{RetrievedAt: time.Now().UTC()}
	var cost float64

	fields, err := FieldsForVariant(doc.SubType, doc.ExtractedData)
	if err != nil {
		result.Error = err.Error()
		return result, cost
	}
	result.FieldsUsed = fields

	resp, err := v.portal.Fetch(ctx, fields)
	if err != nil {
		result.Error = fmt.Sprintf("portal lookup failed: %v", err)
		return result, cost
	}
	result.Success = true
	result.Valid = resp.Valid
	result.Message = resp.Message
	if !resp.Valid {
		return result, cost
	}
	if len(resp.Document) == 0 {
		result.Success = false
		result.Error = "portal confirmed the certificate but returned no document"
		return result, cost
	}

	objectName := fmt.Sprintf("authoritative/%s/%s.pdf", doc.DocumentID, uuid.NewString())
	savedURL, err := v.saver.Save(ctx, objectName, resp.Document, "application/pdf")
	if err != nil {
		result.Success = false
		result.Error = fmt.Sprintf("persisting authoritative document: %v", err)
		return result, cost
	}
	result.AuthoritativeURL = savedURL

	authText, provider, ocrCost, err := v.ocr.Extract(ctx, resp.Document, objectName)
	cost += ocrCost
	if err != nil {
		result.Success = false
		result.Error = fmt.Sprintf("transcribing authoritative document: %v", err)
		return result, cost
	}
	result.AuthoritativeText = authText
	v.logger.Info("Authoritative document transcribed",
		"documentId", doc.DocumentID,
		"provider", provider)

	authData, extractCost, err := v.extractor.ExtractWithSchema(ctx, authText, cfg)
	cost += extractCost
	if err != nil {
		result.Success = false
		result.Error = fmt.Sprintf("extracting authoritative data: %v", err)
		return result, cost
	}
	result.AuthoritativeData = authData

	comparison := Compare(doc.ExtractedData, authData)
	if !comparison.Match {
		arbitration, arbCost, err := v.extractor.ArbitrateMismatches(ctx, doc.ExtractedData, authData, comparison.Mismatches)
		cost += arbCost
		if err != nil {
			comparison.Method = models.ComparisonError
			result.Comparison = comparison
			result.Success = false
			result.Error = fmt.Sprintf("arbitrating mismatches: %v", err)
			return result, cost
		}
		comparison.Method = models.ComparisonArbitrated
		comparison.Arbitration = arbitration
		comparison.Match = arbitration.Equivalent
		comparison.Summary = arbitration.Summary
	}
	result.Comparison = comparison
	return result, cost
}
