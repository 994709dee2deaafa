// Package authenticity runs tamper heuristics over a submitted file. Each
// check emits a severity plus human-readable signals; the file's overall
// outcome is the worst severity across checks.
package authenticity

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/Lllllllleong/documentverificationflow/internal/severity"
)

// minPlausibleSizeBytes flags files too small to be a genuine scan or export.
const minPlausibleSizeBytes = 10 * 1024

// expectedMIMETypes maps a file extension to the content types a well-formed
// origin would serve for it.
var expectedMIMETypes = map[string][]string{
	".pdf":  {"application/pdf"},
	".jpg":  {"image/jpeg"},
	".jpeg": {"image/jpeg"},
	".png":  {"image/png"},
	".webp": {"image/webp"},
	".tif":  {"image/tiff"},
	".tiff": {"image/tiff"},
}

// editorFingerprints are producer strings that indicate the file passed
// through an editing tool after creation.
var editorFingerprints = []string{
	"photoshop",
	"gimp",
	"canva",
	"pixlr",
	"fotor",
	"ilovepdf",
	"sejda",
	"pdfescape",
	"smallpdf",
}

// Report is the combined authenticity verdict for one file.
type Report struct {
	Outcome severity.Severity
	Signals []string
}

// Suspicious reports whether the file needs a rejection reason.
func (r *Report) Suspicious() bool { return r.Outcome.Suspicious() }

// Checker runs all configured authenticity checks.
type Checker struct {
	httpClient *http.Client
	logger     *slog.Logger
}

func NewChecker(httpClient *http.Client, logger *slog.Logger) *Checker {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Checker{httpClient: httpClient, logger: logger}
}

// Inspect runs the transport, metadata and content checks and combines their
// severities. It never fails: an unreachable origin degrades to WARNING.
func (c *Checker) Inspect(ctx context.Context, fileURL, fileName string, content []byte) *Report {
	report := &Report{Outcome: severity.NotApplicable}

	checks := []struct {
		name string
		run  func() (severity.Severity, []string)
	}{
		{"transport", func() (severity.Severity, []string) { return c.checkTransport(ctx, fileURL, fileName) }},
		{"exif", func() (severity.Severity, []string) { return checkEXIF(content) }},
		{"pdf", func() (severity.Severity, []string) { return checkPDF(content) }},
	}
	for _, check := range checks {
		outcome, signals := check.run()
		report.Outcome = severity.Combine(report.Outcome, outcome)
		report.Signals = append(report.Signals, signals...)
		c.logger.Debug("Authenticity check finished",
			"check", check.name,
			"outcome", outcome,
			"signals", len(signals))
	}
	return report
}

// checkTransport issues a HEAD request and compares the served metadata with
// what the file name promises.
func (c *Checker) checkTransport(ctx context.Context, fileURL, fileName string) (severity.Severity, []string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, fileURL, nil)
	if err != nil {
		return severity.Warning, []string{fmt.Sprintf("transport metadata unavailable: %v", err)}
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return severity.Warning, []string{fmt.Sprintf("transport metadata unavailable: %v", err)}
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return severity.Warning, []string{fmt.Sprintf("origin returned status %d for metadata probe", resp.StatusCode)}
	}

	outcome := severity.Passed
	var signals []string

	ext := strings.ToLower(filepath.Ext(fileName))
	if expected, ok := expectedMIMETypes[ext]; ok {
		served := strings.ToLower(resp.Header.Get("Content-Type"))
		if served != "" && !mimeMatches(served, expected) {
			outcome = severity.Combine(outcome, severity.Warning)
			signals = append(signals, fmt.Sprintf("content type %q does not match extension %q", served, ext))
		}
	}
	if resp.ContentLength > 0 && resp.ContentLength < minPlausibleSizeBytes {
		outcome = severity.Combine(outcome, severity.Warning)
		signals = append(signals, fmt.Sprintf("file size %d bytes is implausibly small", resp.ContentLength))
	}
	return outcome, signals
}

func mimeMatches(served string, expected []string) bool {
	for _, e := range expected {
		if strings.HasPrefix(served, e) {
			return true
		}
	}
	return false
}

// checkPDF scans PDF bytes for editor fingerprints and post-creation markup.
func checkPDF(content []byte) (severity.Severity, []string) {
	if !bytes.HasPrefix(content, []byte("%PDF")) {
		return severity.NotApplicable, nil
	}
	lower := bytes.ToLower(content)

	outcome := severity.Passed
	var signals []string
	for _, fingerprint := range editorFingerprints {
		if bytes.Contains(lower, []byte(fingerprint)) {
			outcome = severity.Combine(outcome, severity.Warning)
			signals = append(signals, fmt.Sprintf("editing software fingerprint %q found in pdf", fingerprint))
		}
	}
	for _, marker := range []string{"/annots", "/comment"} {
		if bytes.Contains(lower, []byte(marker)) {
			outcome = severity.Combine(outcome, severity.Warning)
			signals = append(signals, fmt.Sprintf("post-creation markup marker %q found in pdf", marker))
		}
	}
	return outcome, signals
}
