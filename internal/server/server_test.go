package server

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lllllllleong/documentverificationflow/internal/models"
	"github.com/Lllllllleong/documentverificationflow/internal/pipeline"
	"github.com/Lllllllleong/documentverificationflow/internal/store"
)

type recordingProcessor struct {
	mu   sync.Mutex
	docs []*models.ProcessedDocument
	done chan struct{}
}

func newRecordingProcessor() *recordingProcessor {
	return &recordingProcessor{done: make(chan struct{}, 8)}
}

func (p *recordingProcessor) Process(_ context.Context, doc *models.ProcessedDocument) {
	p.mu.Lock()
	p.docs = append(p.docs, doc)
	p.mu.Unlock()
	p.done <- struct{}{}
}

func (p *recordingProcessor) wait(t *testing.T) *models.ProcessedDocument {
	t.Helper()
	select {
	case <-p.done:
	case <-time.After(2 * time.Second):
		t.Fatal("processor was not invoked")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.docs[len(p.docs)-1]
}

type testEnv struct {
	store     *store.MemoryStore
	processor *recordingProcessor
	server    *Server
}

func newTestEnv() *testEnv {
	mem := store.NewMemoryStore()
	proc := newRecordingProcessor()
	registry := pipeline.NewRegistry()
	registry.Register("razon_social", pipeline.Variant{TypeName: "labor_certificate", Group: pipeline.GroupLaborCertificate})
	registry.Register("persona_natural", pipeline.Variant{TypeName: "labor_certificate", Group: pipeline.GroupLaborCertificate})
	registry.Register("etiqueta_enviame", pipeline.Variant{TypeName: "etiqueta_enviame", Group: pipeline.GroupShippingLabel})
	return &testEnv{
		store:     mem,
		processor: proc,
		server:    New(mem, mem, proc, registry, slog.New(slog.DiscardHandler)),
	}
}

func (e *testEnv) request(t *testing.T, method, target string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	rec := httptest.NewRecorder()
	e.server.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	env := newTestEnv()
	rec := env.request(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSubmitDocumentAccepted(t *testing.T) {
	env := newTestEnv()
	rec := env.request(t, http.MethodPost, "/api/v1/documents", models.SubmitRequest{
		DocumentID: "doc-1",
		FileURL:    "https://files.example/statement.pdf",
	})
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp models.AcceptedResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "doc-1", resp.DocumentID)
	assert.Equal(t, string(models.StatusPending), resp.Status)

	launched := env.processor.wait(t)
	assert.Equal(t, "doc-1", launched.DocumentID)
	assert.Equal(t, "statement.pdf", launched.FileName)
	assert.Empty(t, launched.SubType)
}

func TestSubmitDocumentValidation(t *testing.T) {
	env := newTestEnv()
	rec := env.request(t, http.MethodPost, "/api/v1/documents", models.SubmitRequest{FileURL: "https://x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", strings.NewReader("{broken"))
	rec2 := httptest.NewRecorder()
	env.server.ServeHTTP(rec2, req)
	assert.Equal(t, http.StatusBadRequest, rec2.Code)
}

func TestSubmitConflictWhileRunning(t *testing.T) {
	env := newTestEnv()
	payload := models.SubmitRequest{DocumentID: "doc-1", FileURL: "https://files.example/a.pdf"}

	first := env.request(t, http.MethodPost, "/api/v1/documents", payload)
	require.Equal(t, http.StatusAccepted, first.Code)
	env.processor.wait(t)

	second := env.request(t, http.MethodPost, "/api/v1/documents", payload)
	assert.Equal(t, http.StatusConflict, second.Code)
}

func TestSubmitAgainAfterTerminalRun(t *testing.T) {
	env := newTestEnv()
	payload := models.SubmitRequest{DocumentID: "doc-1", FileURL: "https://files.example/a.pdf"}
	require.Equal(t, http.StatusAccepted, env.request(t, http.MethodPost, "/api/v1/documents", payload).Code)
	env.processor.wait(t)
	require.NoError(t, env.store.MarkFailed(context.Background(), "doc-1", "boom"))

	rec := env.request(t, http.MethodPost, "/api/v1/documents", payload)
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestSubmitCertificateUnknownSubType(t *testing.T) {
	env := newTestEnv()
	rec := env.request(t, http.MethodPost, "/api/v1/certificates/labor", models.CertificateRequest{
		DocumentID: "doc-1",
		FileURL:    "https://files.example/cert.pdf",
		SubType:    "cooperative",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "sub_type")
}

func TestSubmitCertificateAccepted(t *testing.T) {
	env := newTestEnv()
	rec := env.request(t, http.MethodPost, "/api/v1/certificates/labor", models.CertificateRequest{
		DocumentID:    "doc-1",
		FileURL:       "https://files.example/cert.pdf",
		SubType:       "razon_social",
		ReferenceData: map[string]interface{}{"holder": "ACME"},
	})
	require.Equal(t, http.StatusAccepted, rec.Code)

	launched := env.processor.wait(t)
	assert.Equal(t, "razon_social", launched.SubType)
	assert.Equal(t, "ACME", launched.ReferenceData["holder"])
}

func TestSubmitShippingLabelAccepted(t *testing.T) {
	env := newTestEnv()
	rec := env.request(t, http.MethodPost, "/api/v1/labels/shipping", models.CertificateRequest{
		DocumentID: "doc-1",
		FileURL:    "https://files.example/label.pdf",
		SubType:    "etiqueta_enviame",
	})
	require.Equal(t, http.StatusAccepted, rec.Code)

	launched := env.processor.wait(t)
	assert.Equal(t, "etiqueta_enviame", launched.SubType)
}

func TestDirectEndpointsScopedByGroup(t *testing.T) {
	env := newTestEnv()
	// A label sub-type is not a labor certificate and vice versa.
	rec := env.request(t, http.MethodPost, "/api/v1/certificates/labor", models.CertificateRequest{
		DocumentID: "doc-1",
		FileURL:    "https://files.example/label.pdf",
		SubType:    "etiqueta_enviame",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "razon_social")

	rec = env.request(t, http.MethodPost, "/api/v1/labels/shipping", models.CertificateRequest{
		DocumentID: "doc-1",
		FileURL:    "https://files.example/cert.pdf",
		SubType:    "razon_social",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "etiqueta_enviame")
}

func TestStatusEndpoint(t *testing.T) {
	env := newTestEnv()
	assert.Equal(t, http.StatusNotFound, env.request(t, http.MethodGet, "/api/v1/documents/nope/status", nil).Code)

	require.Equal(t, http.StatusAccepted, env.request(t, http.MethodPost, "/api/v1/documents", models.SubmitRequest{
		DocumentID: "doc-1",
		FileURL:    "https://files.example/a.pdf",
	}).Code)
	env.processor.wait(t)

	rec := env.request(t, http.MethodGet, "/api/v1/documents/doc-1/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp models.StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, models.StatusPending, resp.Status)
	assert.Empty(t, resp.Decision)
}

func TestResultNotReadyReturnsAccepted(t *testing.T) {
	env := newTestEnv()
	require.Equal(t, http.StatusAccepted, env.request(t, http.MethodPost, "/api/v1/documents", models.SubmitRequest{
		DocumentID: "doc-1",
		FileURL:    "https://files.example/a.pdf",
	}).Code)
	env.processor.wait(t)

	rec := env.request(t, http.MethodGet, "/api/v1/documents/doc-1/result", nil)
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestResultAfterCompletion(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	require.Equal(t, http.StatusAccepted, env.request(t, http.MethodPost, "/api/v1/documents", models.SubmitRequest{
		DocumentID: "doc-1",
		FileURL:    "https://files.example/a.pdf",
	}).Code)
	env.processor.wait(t)

	require.NoError(t, env.store.SaveResult(ctx, "doc-1", &models.ProcessedDocument{
		DocumentID:    "doc-1",
		Decision:      models.DecisionRejected,
		TypeName:      "labor_certificate",
		ExtractedData: map[string]interface{}{"holder": "ACME"},
		RejectionReasons: []models.RejectionReason{
			{Reason: "no signature", Type: models.ReasonTypeGeneralRule},
		},
		CostUSD: 0.01,
	}))

	rec := env.request(t, http.MethodGet, "/api/v1/documents/doc-1/result", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp models.ResultResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, models.DecisionRejected, resp.Decision)
	assert.Equal(t, "labor_certificate", resp.DocumentType)
	require.Len(t, resp.RejectionReasons, 1)
	assert.NotNil(t, resp.ProcessedAt)
}

func validTypePayload() map[string]interface{} {
	return map[string]interface{}{
		"name":    "labor_certificate",
		"country": "GT",
		"extraction_schema": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"holder": map[string]interface{}{"type": "string"},
			},
		},
		"is_active": true,
	}
}

func TestCreateTypeLifecycle(t *testing.T) {
	env := newTestEnv()
	rec := env.request(t, http.MethodPost, "/api/v1/document-types", validTypePayload())
	require.Equal(t, http.StatusCreated, rec.Code)

	assert.Equal(t, http.StatusConflict, env.request(t, http.MethodPost, "/api/v1/document-types", validTypePayload()).Code)

	list := env.request(t, http.MethodGet, "/api/v1/document-types", nil)
	require.Equal(t, http.StatusOK, list.Code)
	var types []models.DocumentTypeConfig
	require.NoError(t, json.Unmarshal(list.Body.Bytes(), &types))
	require.Len(t, types, 1)
	assert.Equal(t, "labor_certificate", types[0].Name)

	updated := validTypePayload()
	updated["country"] = "MX"
	up := env.request(t, http.MethodPut, "/api/v1/document-types/labor_certificate", updated)
	assert.Equal(t, http.StatusOK, up.Code)

	missing := env.request(t, http.MethodPut, "/api/v1/document-types/unknown", validTypePayload())
	assert.Equal(t, http.StatusNotFound, missing.Code)
}

func TestCreateTypeRejectsBadSchema(t *testing.T) {
	env := newTestEnv()
	payload := validTypePayload()
	payload["extraction_schema"] = map[string]interface{}{"type": 42}
	rec := env.request(t, http.MethodPost, "/api/v1/document-types", payload)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "extraction_schema")

	payload = validTypePayload()
	delete(payload, "extraction_schema")
	rec = env.request(t, http.MethodPost, "/api/v1/document-types", payload)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCallbackNotifierDeliversTerminalRecord(t *testing.T) {
	var received models.CallbackPayload
	var calls int
	receiver := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer receiver.Close()

	notifier := NewCallbackNotifier(receiver.Client(), slog.New(slog.DiscardHandler))
	notifier.Notify(context.Background(), &models.ProcessedDocument{
		DocumentID:  "doc-1",
		Status:      models.StatusCompleted,
		Decision:    models.DecisionApproved,
		CallbackURL: receiver.URL,
		CostUSD:     0.02,
		ProcessedAt: time.Now().UTC(),
	})
	assert.Equal(t, 1, calls)
	assert.Equal(t, "doc-1", received.DocumentID)
	assert.Equal(t, models.DecisionApproved, received.Decision)

	// No callback URL means no delivery attempt.
	notifier.Notify(context.Background(), &models.ProcessedDocument{DocumentID: "doc-2"})
	assert.Equal(t, 1, calls)
}
