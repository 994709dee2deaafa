package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	readAPICostPerPage = 0.001

	readAPIPollInterval = 1 * time.Second
	readAPIMaxPolls     = 30
)

// ReadAPIProvider is the fallback OCR engine. It submits the file to an
// asynchronous read endpoint and polls the operation until the transcription
// is ready.
type ReadAPIProvider struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewReadAPIProvider(endpoint, apiKey string, httpClient *http.Client, logger *slog.Logger) *ReadAPIProvider {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &ReadAPIProvider{
		endpoint:   strings.TrimSuffix(endpoint, "/"),
		apiKey:     apiKey,
		httpClient: httpClient,
		logger:     logger,
	}
}

func (p *ReadAPIProvider) Name() string { return "read_api" }

type readOperationResult struct {
	Status        string `json:"status"`
	AnalyzeResult struct {
		ReadResults []struct {
			Page  int `json:"page"`
			Lines []struct {
				Text string `json:"text"`
			} `json:"lines"`
		} `json:"readResults"`
	} `json:"analyzeResult"`
}

func (p *ReadAPIProvider) Extract(ctx context.Context, content []byte, fileName string) (string, float64, error) {
	operationURL, err := p.submit(ctx, content, fileName)
	if err != nil {
		return "", 0, err
	}
	result, err := p.poll(ctx, operationURL)
	if err != nil {
		return "", 0, err
	}

	var sb strings.Builder
	for _, page := range result.AnalyzeResult.ReadResults {
		for _, line := range page.Lines {
			sb.WriteString(line.Text)
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", 0, fmt.Errorf("read api returned no text for %s", fileName)
	}
	cost := float64(len(result.AnalyzeResult.ReadResults)) * readAPICostPerPage
	return text, cost, nil
}

func (p *ReadAPIProvider) submit(ctx context.Context, content []byte, fileName string) (string, error) {
	url := p.endpoint + "/vision/v3.2/read/analyze"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("building submit request: %w", err)
	}
	req.Header.Set("Content-Type", detectMIMEType(content, fileName))
	req.Header.Set("Ocp-Apim-Subscription-Key", p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("submitting file: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusAccepted {
		return "", fmt.Errorf("submit returned status %d", resp.StatusCode)
	}
	operationURL := resp.Header.Get("Operation-Location")
	if operationURL == "" {
		return "", fmt.Errorf("submit response missing Operation-Location header")
	}
	return operationURL, nil
}

func (p *ReadAPIProvider) poll(ctx context.Context, operationURL string) (*readOperationResult, error) {
	for attempt := 0; attempt < readAPIMaxPolls; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(readAPIPollInterval):
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, operationURL, nil)
		if err != nil {
			return nil, fmt.Errorf("building poll request: %w", err)
		}
		req.Header.Set("Ocp-Apim-Subscription-Key", p.apiKey)

		resp, err := p.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("polling operation: %w", err)
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("reading poll response: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("poll returned status %d", resp.StatusCode)
		}

		var result readOperationResult
		if err := json.Unmarshal(body, &result); err != nil {
			return nil, fmt.Errorf("decoding poll response: %w", err)
		}
		switch result.Status {
		case "succeeded":
			return &result, nil
		case "failed":
			return nil, fmt.Errorf("read operation failed")
		}
		p.logger.Debug("Read operation still running", "status", result.Status, "attempt", attempt+1)
	}
	return nil, fmt.Errorf("read operation did not complete after %d polls", readAPIMaxPolls)
}
