package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"cloud.google.com/go/vertexai/genai"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"golang.org/x/sync/errgroup"

	"github.com/Lllllllleong/documentverificationflow/internal/gcp"
)

const (
	// visionPageConcurrency caps per-page fan-out for multi-page PDFs.
	visionPageConcurrency = 4

	visionCostPerPage      = 0.0015
	visionCostPerKiloChars = 0.0001
)

// VertexProvider transcribes files with a Gemini vision model. Multi-page
// PDFs are split into single pages and transcribed concurrently; a failed
// page yields an empty string instead of failing the whole file.
type VertexProvider struct {
	client *gcp.VertexClient
	logger *slog.Logger
}

func NewVertexProvider(client *gcp.VertexClient, logger *slog.Logger) *VertexProvider {
	return &VertexProvider{client: client, logger: logger}
}

func (p *VertexProvider) Name() string { return "vertex_vision" }

func (p *VertexProvider) Extract(ctx context.Context, content []byte, fileName string) (string, float64, error) {
	if !isPDF(content, fileName) {
		return p.extractSingle(ctx, content, detectMIMEType(content, fileName))
	}

	pages, err := splitPages(content)
	if err != nil {
		return "", 0, fmt.Errorf("splitting pdf: %w", err)
	}
	if len(pages) == 1 {
		return p.extractSingle(ctx, pages[0], "application/pdf")
	}

	texts := make([]string, len(pages))
	var mu sync.Mutex
	var cost float64

	eg, gctx := errgroup.WithContext(ctx)
	limit := visionPageConcurrency
	if len(pages) < limit {
		limit = len(pages)
	}
	eg.SetLimit(limit)

	for i, page := range pages {
		eg.Go(func() error {
			text, pageCost, err := p.extractSingle(gctx, page, "application/pdf")
			if err != nil {
				p.logger.Warn("Page transcription failed, leaving page empty",
					"fileName", fileName,
					"page", i+1,
					"error", err)
				return nil
			}
			texts[i] = text
			mu.Lock()
			cost += pageCost
			mu.Unlock()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return "", 0, err
	}

	combined := strings.TrimSpace(strings.Join(texts, "\n\n"))
	if combined == "" {
		return "", 0, fmt.Errorf("no text extracted from any of %d pages", len(pages))
	}
	return combined, cost, nil
}

func (p *VertexProvider) extractSingle(ctx context.Context, content []byte, mimeType string) (string, float64, error) {
	filePart := genai.Blob{MIMEType: mimeType, Data: content}
	prompt := genai.Text(gcp.VisionUserPrompt)

	resp, err := p.client.VisionModel.GenerateContent(ctx, filePart, prompt)
	if err != nil {
		return "", 0, fmt.Errorf("generating transcription: %w", err)
	}
	text := strings.TrimSpace(gcp.ResponseText(resp))
	cost := visionCostPerPage + float64(len(text))/1000.0*visionCostPerKiloChars
	return text, cost, nil
}

// splitPages writes the PDF to a temp directory and splits it into
// single-page files, returning each page's bytes in order.
func splitPages(content []byte) ([][]byte, error) {
	tempDir, err := os.MkdirTemp("", "ocr-split-*")
	if err != nil {
		return nil, fmt.Errorf("creating temp dir: %w", err)
	}
	defer os.RemoveAll(tempDir)

	sourcePath := filepath.Join(tempDir, "source.pdf")
	if err := os.WriteFile(sourcePath, content, 0o600); err != nil {
		return nil, fmt.Errorf("writing source pdf: %w", err)
	}

	cfg := model.NewDefaultConfiguration()
	cfg.ValidationMode = model.ValidationRelaxed

	pageCount, err := api.PageCountFile(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("counting pages: %w", err)
	}
	if pageCount <= 1 {
		return [][]byte{content}, nil
	}
	if err := api.SplitFile(sourcePath, tempDir, 1, cfg); err != nil {
		return nil, fmt.Errorf("splitting file: %w", err)
	}

	pages := make([][]byte, 0, pageCount)
	for i := 1; i <= pageCount; i++ {
		pagePath := filepath.Join(tempDir, fmt.Sprintf("source_%d.pdf", i))
		pageBytes, err := os.ReadFile(pagePath)
		if err != nil {
			return nil, fmt.Errorf("reading split page %d: %w", i, err)
		}
		pages = append(pages, pageBytes)
	}
	return pages, nil
}
