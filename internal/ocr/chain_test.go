package ocr

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	name  string
	text  string
	cost  float64
	err   error
	calls int
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) Extract(_ context.Context, _ []byte, _ string) (string, float64, error) {
	s.calls++
	return s.text, s.cost, s.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestChainReturnsFirstSuccess(t *testing.T) {
	primary := &stubProvider{name: "primary", text: "hello", cost: 0.002}
	fallback := &stubProvider{name: "fallback", text: "unused", cost: 0.001}
	chain := NewChain(discardLogger(), primary, fallback)

	text, provider, cost, err := chain.Extract(context.Background(), []byte("data"), "doc.pdf")
	require.NoError(t, err)
	assert.Equal(t, "hello", text)
	assert.Equal(t, "primary", provider)
	assert.InDelta(t, 0.002, cost, 1e-9)
	assert.Zero(t, fallback.calls)
}

func TestChainFallsBackAndDropsFailedCost(t *testing.T) {
	primary := &stubProvider{name: "primary", err: errors.New("quota exhausted"), cost: 99}
	fallback := &stubProvider{name: "fallback", text: "recovered", cost: 0.001}
	chain := NewChain(discardLogger(), primary, fallback)

	text, provider, cost, err := chain.Extract(context.Background(), []byte("data"), "doc.pdf")
	require.NoError(t, err)
	assert.Equal(t, "recovered", text)
	assert.Equal(t, "fallback", provider)
	assert.InDelta(t, 0.001, cost, 1e-9)
	assert.Equal(t, 1, primary.calls)
}

func TestChainAllProvidersFailed(t *testing.T) {
	primary := &stubProvider{name: "primary", err: errors.New("boom")}
	fallback := &stubProvider{name: "fallback", err: errors.New("also boom")}
	chain := NewChain(discardLogger(), primary, fallback)

	_, _, cost, err := chain.Extract(context.Background(), []byte("data"), "doc.pdf")
	assert.ErrorIs(t, err, ErrAllProvidersFailed)
	assert.Zero(t, cost)
}

func TestChainNoProviders(t *testing.T) {
	chain := NewChain(discardLogger())
	_, _, _, err := chain.Extract(context.Background(), []byte("data"), "doc.pdf")
	assert.ErrorIs(t, err, ErrAllProvidersFailed)
}

func TestIsPDF(t *testing.T) {
	assert.True(t, isPDF([]byte("%PDF-1.7 rest"), "scan.bin"))
	assert.True(t, isPDF([]byte("garbage"), "scan.PDF"))
	assert.False(t, isPDF([]byte("\x89PNG"), "scan.png"))
}

func TestDetectMIMEType(t *testing.T) {
	assert.Equal(t, "application/pdf", detectMIMEType([]byte("%PDF-1.4"), "x.bin"))
	assert.Equal(t, "image/jpeg", detectMIMEType(nil, "photo.JPG"))
	assert.Equal(t, "image/png", detectMIMEType(nil, "capture.png"))
	assert.Equal(t, "application/octet-stream", detectMIMEType(nil, "mystery.dat"))
}
