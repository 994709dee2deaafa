package verification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// maxAuthoritativeDownload caps the authoritative document download size.
const maxAuthoritativeDownload = 32 << 20

// PortalResponse is the authoritative source's answer to a lookup.
type PortalResponse struct {
	Valid       bool
	Message     string
	DocumentURL string
	Document    []byte
}

// Portal looks a certificate up at its authoritative source using the
// identifying fields taken from the submitted document.
type Portal interface {
	Fetch(ctx context.Context, fields map[string]string) (*PortalResponse, error)
}

// HTTPPortal talks to the issuing authority's verification endpoint.
type HTTPPortal struct {
	endpoint   string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewHTTPPortal(endpoint string, httpClient *http.Client, logger *slog.Logger) *HTTPPortal {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 45 * time.Second}
	}
	return &HTTPPortal{endpoint: endpoint, httpClient: httpClient, logger: logger}
}

type portalWireResponse struct {
	Valid       bool   `json:"valid"`
	Message     string `json:"message"`
	DocumentURL string `json:"document_url"`
}

func (p *HTTPPortal) Fetch(ctx context.Context, fields map[string]string) (*PortalResponse, error) {
	payload, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("marshaling lookup fields: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building lookup request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling verification portal: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxAuthoritativeDownload))
	if err != nil {
		return nil, fmt.Errorf("reading portal response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("portal returned status %d", resp.StatusCode)
	}

	var wire portalWireResponse
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, fmt.Errorf("decoding portal response: %w", err)
	}
	result := &PortalResponse{
		Valid:       wire.Valid,
		Message:     wire.Message,
		DocumentURL: wire.DocumentURL,
	}
	if wire.Valid && wire.DocumentURL != "" {
		doc, err := p.download(ctx, wire.DocumentURL)
		if err != nil {
			return nil, err
		}
		result.Document = doc
	}
	p.logger.Info("Portal lookup finished", "valid", wire.Valid, "hasDocument", len(result.Document) > 0)
	return result, nil
}

func (p *HTTPPortal) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building download request: %w", err)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("downloading authoritative document: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("authoritative download returned status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxAuthoritativeDownload))
}
