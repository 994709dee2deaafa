// Package ocr extracts text from submitted files through an ordered chain of
// providers with fallback.
package ocr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
)

// ErrAllProvidersFailed signals that every configured provider failed for a
// file. The pipeline treats this as a fatal processing error.
var ErrAllProvidersFailed = errors.New("all ocr providers failed")

// Provider extracts text from a file's raw bytes. The returned cost covers
// only external calls that succeeded.
type Provider interface {
	Name() string
	Extract(ctx context.Context, content []byte, fileName string) (text string, costUSD float64, err error)
}

// Chain tries providers in order and returns the first success. Failed
// attempts contribute nothing to the reported cost.
type Chain struct {
	providers []Provider
	logger    *slog.Logger
}

func NewChain(logger *slog.Logger, providers ...Provider) *Chain {
	return &Chain{providers: providers, logger: logger}
}

// Extract runs the fallback chain. The name of the winning provider is
// returned alongside the text so callers can record which engine produced it.
func (c *Chain) Extract(ctx context.Context, content []byte, fileName string) (string, string, float64, error) {
	var lastErr error
	for _, p := range c.providers {
		text, cost, err := p.Extract(ctx, content, fileName)
		if err != nil {
			c.logger.Warn("OCR provider failed, trying next",
				"provider", p.Name(),
				"fileName", fileName,
				"error", err)
			lastErr = err
			continue
		}
		c.logger.Info("OCR extraction succeeded",
			"provider", p.Name(),
			"fileName", fileName,
			"textLength", len(text))
		return text, p.Name(), cost, nil
	}
	if lastErr != nil {
		return "", "", 0, fmt.Errorf("%w: %v", ErrAllProvidersFailed, lastErr)
	}
	return "", "", 0, ErrAllProvidersFailed
}

var pdfMagic = []byte("%PDF")

func isPDF(content []byte, fileName string) bool {
	if bytes.HasPrefix(content, pdfMagic) {
		return true
	}
	return strings.EqualFold(filepath.Ext(fileName), ".pdf")
}

func detectMIMEType(content []byte, fileName string) string {
	if isPDF(content, fileName) {
		return "application/pdf"
	}
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	case ".gif":
		return "image/gif"
	case ".tif", ".tiff":
		return "image/tiff"
	case ".bmp":
		return "image/bmp"
	default:
		return "application/octet-stream"
	}
}
