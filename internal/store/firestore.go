package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/Lllllllleong/documentverificationflow/internal/models"
)

// FirestoreStore implements DocumentStore and TypeCatalog on top of
// Firestore. Records are keyed by document ID so admission can rely on
// document existence inside a transaction.
type FirestoreStore struct {
	client    *firestore.Client
	documents string
	types     string
	logger    *slog.Logger
}

func NewFirestoreStore(client *firestore.Client, documentsCollection, typesCollection string, logger *slog.Logger) *FirestoreStore {
	return &FirestoreStore{
		client:    client,
		documents: documentsCollection,
		types:     typesCollection,
		logger:    logger,
	}
}

func (s *FirestoreStore) docRef(documentID string) *firestore.DocumentRef {
	return s.client.Collection(s.documents).Doc(documentID)
}

// CreateAdmission admits a submission inside a transaction. An existing
// record in a non-terminal status aborts with ErrConflict; a terminal record
// is replaced so the document can be resubmitted.
func (s *FirestoreStore) CreateAdmission(ctx context.Context, doc *models.ProcessedDocument) error {
	ref := s.docRef(doc.DocumentID)
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil && status.Code(err) != codes.NotFound {
			return fmt.Errorf("reading existing record: %w", err)
		}
		if err == nil {
			var existing models.ProcessedDocument
			if err := snap.DataTo(&existing); err != nil {
				return fmt.Errorf("decoding existing record: %w", err)
			}
			if !existing.Status.Terminal() {
				return ErrConflict
			}
		}
		return tx.Set(ref, doc)
	})
	if err != nil {
		return err
	}
	s.logger.Info("Admitted document for processing", "documentId", doc.DocumentID)
	return nil
}

func (s *FirestoreStore) Get(ctx context.Context, documentID string) (*models.ProcessedDocument, error) {
	snap, err := s.docRef(documentID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("fetching document %s: %w", documentID, err)
	}
	var doc models.ProcessedDocument
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("decoding document %s: %w", documentID, err)
	}
	return &doc, nil
}

// SetStatus advances the processing status inside a transaction so the
// monotonic ordering holds under concurrent writers. A regression is logged
// and dropped rather than surfaced as an error.
func (s *FirestoreStore) SetStatus(ctx context.Context, documentID string, newStatus models.ProcessingStatus, logEntry string) error {
	ref := s.docRef(documentID)
	return s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return ErrNotFound
			}
			return fmt.Errorf("reading record for status update: %w", err)
		}
		var current models.ProcessedDocument
		if err := snap.DataTo(&current); err != nil {
			return fmt.Errorf("decoding record for status update: %w", err)
		}
		if newStatus.Rank() < current.Status.Rank() {
			s.logger.Warn("Ignoring status regression",
				"documentId", documentID,
				"current", current.Status,
				"attempted", newStatus)
			return nil
		}
		log := BoundLog(append(current.ProcessingLog, logEntry))
		return tx.Update(ref, []firestore.Update{
			{Path: "processingStatus", Value: newStatus},
			{Path: "processingLog", Value: log},
			{Path: "updatedAt", Value: time.Now().UTC()},
		})
	})
}

// SaveResult writes the terminal snapshot of a completed run as targeted
// field updates.
func (s *FirestoreStore) SaveResult(ctx context.Context, documentID string, doc *models.ProcessedDocument) error {
	now := time.Now().UTC()
	updates := []firestore.Update{
		{Path: "processingStatus", Value: models.StatusCompleted},
		{Path: "finalDecision", Value: doc.Decision},
		{Path: "ocrText", Value: doc.OCRText},
		{Path: "extractedData", Value: doc.ExtractedData},
		{Path: "classification", Value: doc.Classification},
		{Path: "documentTypeName", Value: doc.TypeName},
		{Path: "validationResults", Value: doc.ValidationResults},
		{Path: "rejectionReasons", Value: doc.RejectionReasons},
		{Path: "authenticityResult", Value: doc.AuthenticityResult},
		{Path: "authenticitySignals", Value: doc.AuthenticitySignals},
		{Path: "verification", Value: doc.Verification},
		{Path: "processingCostUsd", Value: doc.CostUSD},
		{Path: "processingLog", Value: BoundLog(doc.ProcessingLog)},
		{Path: "processedAt", Value: now},
		{Path: "updatedAt", Value: now},
	}
	if _, err := s.docRef(documentID).Update(ctx, updates); err != nil {
		return fmt.Errorf("saving result for %s: %w", documentID, err)
	}
	return nil
}

// MarkFailed forces the FAILED terminal state: decision REJECTED with a
// single processing-error rejection reason.
func (s *FirestoreStore) MarkFailed(ctx context.Context, documentID string, errMessage string) error {
	now := time.Now().UTC()
	reason := models.RejectionReason{
		Reason: errMessage,
		Type:   models.ReasonTypeProcessingError,
	}
	updates := []firestore.Update{
		{Path: "processingStatus", Value: models.StatusFailed},
		{Path: "finalDecision", Value: models.DecisionRejected},
		{Path: "rejectionReasons", Value: []models.RejectionReason{reason}},
		{Path: "processedAt", Value: now},
		{Path: "updatedAt", Value: now},
	}
	if _, err := s.docRef(documentID).Update(ctx, updates); err != nil {
		return fmt.Errorf("marking %s failed: %w", documentID, err)
	}
	return nil
}

// --- TypeCatalog ---

func (s *FirestoreStore) typeRef(name string) *firestore.DocumentRef {
	return s.client.Collection(s.types).Doc(name)
}

func (s *FirestoreStore) ActiveTypes(ctx context.Context) ([]models.DocumentTypeConfig, error) {
	iter := s.client.Collection(s.types).Where("isActive", "==", true).Documents(ctx)
	return collectTypes(iter)
}

func (s *FirestoreStore) ListTypes(ctx context.Context) ([]models.DocumentTypeConfig, error) {
	iter := s.client.Collection(s.types).Documents(ctx)
	return collectTypes(iter)
}

func collectTypes(iter *firestore.DocumentIterator) ([]models.DocumentTypeConfig, error) {
	defer iter.Stop()
	var configs []models.DocumentTypeConfig
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterating document types: %w", err)
		}
		var cfg models.DocumentTypeConfig
		if err := snap.DataTo(&cfg); err != nil {
			return nil, fmt.Errorf("decoding document type %s: %w", snap.Ref.ID, err)
		}
		configs = append(configs, cfg)
	}
	return configs, nil
}

func (s *FirestoreStore) FindActive(ctx context.Context, name string) (*models.DocumentTypeConfig, error) {
	snap, err := s.typeRef(name).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("fetching document type %s: %w", name, err)
	}
	var cfg models.DocumentTypeConfig
	if err := snap.DataTo(&cfg); err != nil {
		return nil, fmt.Errorf("decoding document type %s: %w", name, err)
	}
	if !cfg.Active {
		return nil, ErrNotFound
	}
	return &cfg, nil
}

func (s *FirestoreStore) CreateType(ctx context.Context, cfg *models.DocumentTypeConfig) error {
	now := time.Now().UTC()
	cfg.CreatedAt = now
	cfg.UpdatedAt = now
	_, err := s.typeRef(cfg.Name).Create(ctx, cfg)
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return ErrConflict
		}
		return fmt.Errorf("creating document type %s: %w", cfg.Name, err)
	}
	return nil
}

func (s *FirestoreStore) UpdateType(ctx context.Context, name string, cfg *models.DocumentTypeConfig) error {
	ref := s.typeRef(name)
	return s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return ErrNotFound
			}
			return fmt.Errorf("reading document type %s: %w", name, err)
		}
		var existing models.DocumentTypeConfig
		if err := snap.DataTo(&existing); err != nil {
			return fmt.Errorf("decoding document type %s: %w", name, err)
		}
		cfg.Name = name
		cfg.CreatedAt = existing.CreatedAt
		cfg.UpdatedAt = time.Now().UTC()
		return tx.Set(ref, cfg)
	})
}
