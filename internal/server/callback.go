package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/Lllllllleong/documentverificationflow/internal/models"
)

// CallbackNotifier POSTs the terminal record to the caller-supplied callback
// URL. Delivery is best effort and attempted exactly once.
type CallbackNotifier struct {
	httpClient *http.Client
	logger     *slog.Logger
}

func NewCallbackNotifier(httpClient *http.Client, logger *slog.Logger) *CallbackNotifier {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &CallbackNotifier{httpClient: httpClient, logger: logger}
}

func (n *CallbackNotifier) Notify(ctx context.Context, doc *models.ProcessedDocument) {
	if doc.CallbackURL == "" {
		return
	}
	logCtx := n.logger.With("documentId", doc.DocumentID, "callbackUrl", doc.CallbackURL)

	payload := models.CallbackPayload{
		DocumentID:        doc.DocumentID,
		Status:            doc.Status,
		Decision:          doc.Decision,
		ExtractedData:     doc.ExtractedData,
		ValidationResults: doc.ValidationResults,
		RejectionReasons:  doc.RejectionReasons,
		CostUSD:           doc.CostUSD,
		ProcessingLog:     doc.ProcessingLog,
		ProcessedAt:       doc.ProcessedAt,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		logCtx.Error("Could not marshal callback payload", "error", err)
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, doc.CallbackURL, bytes.NewReader(body))
	if err != nil {
		logCtx.Error("Could not build callback request", "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		logCtx.Warn("Callback delivery failed", "error", err)
		return
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		logCtx.Warn("Callback rejected by receiver", "status", resp.StatusCode)
		return
	}
	logCtx.Info("Callback delivered", "status", resp.StatusCode)
}
