package pipeline

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/storage"
)

// maxFetchBytes caps submitted file downloads.
const maxFetchBytes = 64 << 20

// FileFetcher retrieves a submitted file's bytes from its URL.
type FileFetcher interface {
	Fetch(ctx context.Context, fileURL string) ([]byte, error)
}

// Fetcher downloads from https origins and gs:// buckets.
type Fetcher struct {
	httpClient    *http.Client
	storageClient *storage.Client
}

func NewFetcher(httpClient *http.Client, storageClient *storage.Client) *Fetcher {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Fetcher{httpClient: httpClient, storageClient: storageClient}
}

func (f *Fetcher) Fetch(ctx context.Context, fileURL string) ([]byte, error) {
	if strings.HasPrefix(fileURL, "gs://") {
		return f.fetchGCS(ctx, fileURL)
	}
	return f.fetchHTTP(ctx, fileURL)
}

func (f *Fetcher) fetchHTTP(ctx context.Context, fileURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building download request: %w", err)
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("downloading %s: %w", fileURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download of %s returned status %d", fileURL, resp.StatusCode)
	}
	content, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return nil, fmt.Errorf("reading download body: %w", err)
	}
	if len(content) == 0 {
		return nil, fmt.Errorf("download of %s returned an empty body", fileURL)
	}
	return content, nil
}

func (f *Fetcher) fetchGCS(ctx context.Context, fileURL string) ([]byte, error) {
	if f.storageClient == nil {
		return nil, fmt.Errorf("no storage client configured for %s", fileURL)
	}
	trimmed := strings.TrimPrefix(fileURL, "gs://")
	bucket, object, ok := strings.Cut(trimmed, "/")
	if !ok || object == "" {
		return nil, fmt.Errorf("malformed gcs url %q", fileURL)
	}
	reader, err := f.storageClient.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("opening gs://%s/%s: %w", bucket, object, err)
	}
	defer reader.Close()
	content, err := io.ReadAll(io.LimitReader(reader, maxFetchBytes))
	if err != nil {
		return nil, fmt.Errorf("reading gs://%s/%s: %w", bucket, object, err)
	}
	return content, nil
}
