package store

import (
	"context"
	"sync"
	"time"

	"github.com/Lllllllleong/documentverificationflow/internal/models"
)

// MemoryStore is an in-process DocumentStore and TypeCatalog used by unit
// tests. It mirrors the Firestore implementation's admission and
// monotonic-status semantics.
type MemoryStore struct {
	mu        sync.Mutex
	documents map[string]*models.ProcessedDocument
	types     map[string]*models.DocumentTypeConfig
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		documents: make(map[string]*models.ProcessedDocument),
		types:     make(map[string]*models.DocumentTypeConfig),
	}
}

func copyDocument(doc *models.ProcessedDocument) *models.ProcessedDocument {
	c := *doc
	c.ProcessingLog = append([]string(nil), doc.ProcessingLog...)
	c.RejectionReasons = append([]models.RejectionReason(nil), doc.RejectionReasons...)
	c.ValidationResults = append([]models.ValidationResult(nil), doc.ValidationResults...)
	return &c
}

func (s *MemoryStore) CreateAdmission(_ context.Context, doc *models.ProcessedDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.documents[doc.DocumentID]; ok && !existing.Status.Terminal() {
		return ErrConflict
	}
	s.documents[doc.DocumentID] = copyDocument(doc)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, documentID string) (*models.ProcessedDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.documents[documentID]
	if !ok {
		return nil, ErrNotFound
	}
	return copyDocument(doc), nil
}

func (s *MemoryStore) SetStatus(_ context.Context, documentID string, status models.ProcessingStatus, logEntry string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.documents[documentID]
	if !ok {
		return ErrNotFound
	}
	if status.Rank() < doc.Status.Rank() {
		return nil
	}
	doc.Status = status
	doc.ProcessingLog = BoundLog(append(doc.ProcessingLog, logEntry))
	doc.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) SaveResult(_ context.Context, documentID string, doc *models.ProcessedDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.documents[documentID]
	if !ok {
		return ErrNotFound
	}
	now := time.Now().UTC()
	saved := copyDocument(doc)
	saved.Status = models.StatusCompleted
	saved.ProcessingLog = BoundLog(saved.ProcessingLog)
	saved.CreatedAt = existing.CreatedAt
	saved.ProcessedAt = now
	saved.UpdatedAt = now
	s.documents[documentID] = saved
	return nil
}

func (s *MemoryStore) MarkFailed(_ context.Context, documentID string, errMessage string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.documents[documentID]
	if !ok {
		return ErrNotFound
	}
	now := time.Now().UTC()
	doc.Status = models.StatusFailed
	doc.Decision = models.DecisionRejected
	doc.RejectionReasons = []models.RejectionReason{{
		Reason: errMessage,
		Type:   models.ReasonTypeProcessingError,
	}}
	doc.ProcessedAt = now
	doc.UpdatedAt = now
	return nil
}

// --- TypeCatalog ---

func (s *MemoryStore) ActiveTypes(_ context.Context) ([]models.DocumentTypeConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var configs []models.DocumentTypeConfig
	for _, cfg := range s.types {
		if cfg.Active {
			configs = append(configs, *cfg)
		}
	}
	return configs, nil
}

func (s *MemoryStore) ListTypes(_ context.Context) ([]models.DocumentTypeConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var configs []models.DocumentTypeConfig
	for _, cfg := range s.types {
		configs = append(configs, *cfg)
	}
	return configs, nil
}

func (s *MemoryStore) FindActive(_ context.Context, name string) (*models.DocumentTypeConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg, ok := s.types[name]
	if !ok || !cfg.Active {
		return nil, ErrNotFound
	}
	c := *cfg
	return &c, nil
}

func (s *MemoryStore) CreateType(_ context.Context, cfg *models.DocumentTypeConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.types[cfg.Name]; ok {
		return ErrConflict
	}
	now := time.Now().UTC()
	cfg.CreatedAt = now
	cfg.UpdatedAt = now
	c := *cfg
	s.types[cfg.Name] = &c
	return nil
}

func (s *MemoryStore) UpdateType(_ context.Context, name string, cfg *models.DocumentTypeConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.types[name]
	if !ok {
		return ErrNotFound
	}
	cfg.Name = name
	cfg.CreatedAt = existing.CreatedAt
	cfg.UpdatedAt = time.Now().UTC()
	c := *cfg
	s.types[name] = &c
	return nil
}
