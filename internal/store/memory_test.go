package store

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lllllllleong/documentverificationflow/internal/models"
)

func newAdmitted(t *testing.T, s *MemoryStore, id string) {
	t.Helper()
	err := s.CreateAdmission(context.Background(), &models.ProcessedDocument{
		DocumentID: id,
		Status:     models.StatusPending,
	})
	require.NoError(t, err)
}

func TestCreateAdmissionConflictsWhileRunning(t *testing.T) {
	s := NewMemoryStore()
	newAdmitted(t, s, "doc-1")

	err := s.CreateAdmission(context.Background(), &models.ProcessedDocument{
		DocumentID: "doc-1",
		Status:     models.StatusPending,
	})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestCreateAdmissionReplacesTerminalRun(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	newAdmitted(t, s, "doc-1")
	require.NoError(t, s.MarkFailed(ctx, "doc-1", "upstream outage"))

	err := s.CreateAdmission(ctx, &models.ProcessedDocument{
		DocumentID: "doc-1",
		Status:     models.StatusPending,
	})
	require.NoError(t, err)

	doc, err := s.Get(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, doc.Status)
	assert.Empty(t, doc.RejectionReasons)
}

func TestSetStatusIsMonotonic(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	newAdmitted(t, s, "doc-1")

	require.NoError(t, s.SetStatus(ctx, "doc-1", models.StatusValidation, "validating"))
	require.NoError(t, s.SetStatus(ctx, "doc-1", models.StatusOCR, "late ocr write"))

	doc, err := s.Get(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusValidation, doc.Status)
}

func TestSetStatusUnknownDocument(t *testing.T) {
	s := NewMemoryStore()
	err := s.SetStatus(context.Background(), "missing", models.StatusOCR, "x")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSaveResultMarksCompleted(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	newAdmitted(t, s, "doc-1")

	result := &models.ProcessedDocument{
		DocumentID: "doc-1",
		Decision:   models.DecisionApproved,
		CostUSD:    0.042,
	}
	require.NoError(t, s.SaveResult(ctx, "doc-1", result))

	doc, err := s.Get(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, doc.Status)
	assert.Equal(t, models.DecisionApproved, doc.Decision)
	assert.InDelta(t, 0.042, doc.CostUSD, 1e-9)
	assert.False(t, doc.ProcessedAt.IsZero())
}

func TestMarkFailedForcesRejection(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	newAdmitted(t, s, "doc-1")

	require.NoError(t, s.MarkFailed(ctx, "doc-1", "ocr providers exhausted"))

	doc, err := s.Get(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, doc.Status)
	assert.Equal(t, models.DecisionRejected, doc.Decision)
	require.Len(t, doc.RejectionReasons, 1)
	assert.Equal(t, models.ReasonTypeProcessingError, doc.RejectionReasons[0].Type)
}

func TestBoundLogKeepsNewestEntries(t *testing.T) {
	entries := make([]string, 0, MaxLogEntries+25)
	for i := 0; i < MaxLogEntries+25; i++ {
		entries = append(entries, fmt.Sprintf("entry %d", i))
	}
	bounded := BoundLog(entries)
	require.Len(t, bounded, MaxLogEntries)
	assert.Equal(t, "entry 25", bounded[0])
	assert.Equal(t, fmt.Sprintf("entry %d", MaxLogEntries+24), bounded[MaxLogEntries-1])
}

func TestTypeCatalogLifecycle(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	cfg := &models.DocumentTypeConfig{
		Name:    "labor_certificate",
		Country: "GT",
		Active:  true,
	}
	require.NoError(t, s.CreateType(ctx, cfg))
	assert.ErrorIs(t, s.CreateType(ctx, &models.DocumentTypeConfig{Name: "labor_certificate"}), ErrConflict)

	found, err := s.FindActive(ctx, "labor_certificate")
	require.NoError(t, err)
	assert.Equal(t, "GT", found.Country)

	update := &models.DocumentTypeConfig{Name: "labor_certificate", Country: "GT", Active: false}
	require.NoError(t, s.UpdateType(ctx, "labor_certificate", update))

	_, err = s.FindActive(ctx, "labor_certificate")
	assert.ErrorIs(t, err, ErrNotFound)

	all, err := s.ListTypes(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	active, err := s.ActiveTypes(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)
}
