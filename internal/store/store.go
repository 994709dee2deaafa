// Package store persists processed-document records and the document-type
// catalog. A Firestore implementation backs production; an in-memory
// implementation backs unit tests.
package store

import (
	"context"
	"errors"

	"github.com/Lllllllleong/documentverificationflow/internal/models"
)

var (
	// ErrNotFound is returned when no record exists for the identifier.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when admission would collide with a
	// non-terminal run, or a catalog entry already exists.
	ErrConflict = errors.New("conflicting record exists")
)

// MaxLogEntries bounds processing-log retention; oldest entries drop first.
const MaxLogEntries = 1000

// DocumentStore is the narrow repository interface the pipeline writes
// through. All writes are targeted field updates keyed by document ID, never
// wholesale rewrites.
type DocumentStore interface {
	// CreateAdmission atomically admits a submission: if a non-terminal run
	// already exists for the document ID it fails with ErrConflict, otherwise
	// it creates (or, after a terminal run, replaces) the record.
	CreateAdmission(ctx context.Context, doc *models.ProcessedDocument) error
	Get(ctx context.Context, documentID string) (*models.ProcessedDocument, error)
	// SetStatus advances the processing status and appends a log entry.
	// Regressions are ignored: the status sequence is monotonic.
	SetStatus(ctx context.Context, documentID string, status models.ProcessingStatus, logEntry string) error
	// SaveResult writes the terminal COMPLETED snapshot of a finished run.
	SaveResult(ctx context.Context, documentID string, doc *models.ProcessedDocument) error
	// MarkFailed forces the record into the FAILED terminal state with a
	// single rejection reason describing the error.
	MarkFailed(ctx context.Context, documentID string, errMessage string) error
}

// TypeCatalog is the read/write interface over the document-type catalog.
type TypeCatalog interface {
	ActiveTypes(ctx context.Context) ([]models.DocumentTypeConfig, error)
	// FindActive returns the active catalog entry with the given name, or
	// ErrNotFound when the name is unknown or inactive.
	FindActive(ctx context.Context, name string) (*models.DocumentTypeConfig, error)
	ListTypes(ctx context.Context) ([]models.DocumentTypeConfig, error)
	CreateType(ctx context.Context, cfg *models.DocumentTypeConfig) error
	UpdateType(ctx context.Context, name string, cfg *models.DocumentTypeConfig) error
}

// BoundLog enforces the retention limit, dropping the oldest entries.
func BoundLog(entries []string) []string {
	if len(entries) <= MaxLogEntries {
		return entries
	}
	return entries[len(entries)-MaxLogEntries:]
}
