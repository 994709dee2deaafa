// Package server exposes the submission and catalog HTTP API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/Lllllllleong/documentverificationflow/internal/models"
	"github.com/Lllllllleong/documentverificationflow/internal/pipeline"
	"github.com/Lllllllleong/documentverificationflow/internal/store"
)

// Processor runs an admitted document in the background.
type Processor interface {
	Process(ctx context.Context, doc *models.ProcessedDocument)
}

// Server wires the HTTP routes to the store and the pipeline.
type Server struct {
	router    chi.Router
	store     store.DocumentStore
	catalog   store.TypeCatalog
	processor Processor
	registry  *pipeline.Registry
	logger    *slog.Logger
	// processTimeout bounds one background run.
	processTimeout time.Duration
}

func New(docs store.DocumentStore, catalog store.TypeCatalog, processor Processor, registry *pipeline.Registry, logger *slog.Logger) *Server {
	s := &Server{
		store:          docs,
		catalog:        catalog,
		processor:      processor,
		registry:       registry,
		logger:         logger,
		processTimeout: 15 * time.Minute,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/documents", s.handleSubmitDocument)
		r.Post("/certificates/labor", s.handleSubmitDirect(pipeline.GroupLaborCertificate))
		r.Post("/labels/shipping", s.handleSubmitDirect(pipeline.GroupShippingLabel))
		r.Get("/documents/{documentID}/status", s.handleStatus)
		r.Get("/documents/{documentID}/result", s.handleResult)

		r.Get("/document-types", s.handleListTypes)
		r.Post("/document-types", s.handleCreateType)
		r.Put("/document-types/{name}", s.handleUpdateType)
	})
	s.router = r
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// handleHealth reports readiness; the catalog read doubles as a store
// connectivity probe.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if _, err := s.catalog.ListTypes(ctx); err != nil {
		s.logger.Error("Health probe failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleSubmitDocument admits a classification-mode run: the pipeline will
// resolve the document type from the catalog.
func (s *Server) handleSubmitDocument(w http.ResponseWriter, r *http.Request) {
	var req models.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	if req.DocumentID == "" || req.FileURL == "" {
		writeError(w, http.StatusBadRequest, "document_id and file_url are required")
		return
	}
	doc := &models.ProcessedDocument{
		DocumentID:    req.DocumentID,
		FileURL:       req.FileURL,
		FileName:      fileNameFromURL(req.FileURL),
		DeclaredType:  req.DeclaredType,
		ReferenceData: req.ReferenceData,
		CallbackURL:   req.CallbackURL,
	}
	s.admitAndLaunch(w, r, doc)
}

// handleSubmitDirect admits a direct-mode run for one variant group; the
// sub-type must be registered under that group.
func (s *Server) handleSubmitDirect(group string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req models.CertificateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON payload")
			return
		}
		if req.DocumentID == "" || req.FileURL == "" {
			writeError(w, http.StatusBadRequest, "document_id and file_url are required")
			return
		}
		if v, ok := s.registry.Lookup(req.SubType); !ok || v.Group != group {
			writeError(w, http.StatusBadRequest,
				fmt.Sprintf("unknown sub_type %q, expected one of: %s", req.SubType, strings.Join(s.registry.SubTypes(group), ", ")))
			return
		}
		doc := &models.ProcessedDocument{
			DocumentID:    req.DocumentID,
			FileURL:       req.FileURL,
			FileName:      fileNameFromURL(req.FileURL),
			SubType:       req.SubType,
			ReferenceData: req.ReferenceData,
			CallbackURL:   req.CallbackURL,
		}
		s.admitAndLaunch(w, r, doc)
	}
}

func (s *Server) admitAndLaunch(w http.ResponseWriter, r *http.Request, doc *models.ProcessedDocument) {
	now := time.Now().UTC()
	doc.Status = models.StatusPending
	doc.CreatedAt = now
	doc.UpdatedAt = now

	err := s.store.CreateAdmission(r.Context(), doc)
	if errors.Is(err, store.ErrConflict) {
		writeError(w, http.StatusConflict, "document is already being processed")
		return
	}
	if err != nil {
		s.logger.Error("Admission failed", "documentId", doc.DocumentID, "error", err)
		writeError(w, http.StatusInternalServerError, "could not admit document")
		return
	}

	// The run outlives the request.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.processTimeout)
		defer cancel()
		s.processor.Process(ctx, doc)
	}()

	s.logger.Info("Document admitted", "documentId", doc.DocumentID, "subType", doc.SubType)
	writeJSON(w, http.StatusAccepted, models.AcceptedResponse{
		Message:    "document accepted for processing",
		DocumentID: doc.DocumentID,
		Status:     string(models.StatusPending),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.loadDocument(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, statusResponse(doc))
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.loadDocument(w, r)
	if !ok {
		return
	}
	if !doc.Status.Terminal() {
		writeJSON(w, http.StatusAccepted, statusResponse(doc))
		return
	}
	resp := models.ResultResponse{
		DocumentID:        doc.DocumentID,
		Status:            doc.Status,
		Decision:          doc.Decision,
		DocumentType:      doc.TypeName,
		ExtractedData:     doc.ExtractedData,
		ValidationResults: doc.ValidationResults,
		RejectionReasons:  doc.RejectionReasons,
		CostUSD:           doc.CostUSD,
		ProcessingLog:     doc.ProcessingLog,
	}
	if !doc.ProcessedAt.IsZero() {
		resp.ProcessedAt = &doc.ProcessedAt
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) loadDocument(w http.ResponseWriter, r *http.Request) (*models.ProcessedDocument, bool) {
	documentID := chi.URLParam(r, "documentID")
	doc, err := s.store.Get(r.Context(), documentID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "document not found")
		return nil, false
	}
	if err != nil {
		s.logger.Error("Document lookup failed", "documentId", documentID, "error", err)
		writeError(w, http.StatusInternalServerError, "could not load document")
		return nil, false
	}
	return doc, true
}

func statusResponse(doc *models.ProcessedDocument) models.StatusResponse {
	resp := models.StatusResponse{
		DocumentID: doc.DocumentID,
		Status:     doc.Status,
		Decision:   doc.Decision,
		CreatedAt:  doc.CreatedAt,
		UpdatedAt:  doc.UpdatedAt,
	}
	if !doc.ProcessedAt.IsZero() {
		resp.ProcessedAt = &doc.ProcessedAt
	}
	return resp
}

// --- catalog handlers ---

func (s *Server) handleListTypes(w http.ResponseWriter, r *http.Request) {
	types, err := s.catalog.ListTypes(r.Context())
	if err != nil {
		s.logger.Error("Listing document types failed", "error", err)
		writeError(w, http.StatusInternalServerError, "could not list document types")
		return
	}
	if types == nil {
		types = []models.DocumentTypeConfig{}
	}
	writeJSON(w, http.StatusOK, types)
}

func (s *Server) handleCreateType(w http.ResponseWriter, r *http.Request) {
	cfg, ok := s.decodeTypeConfig(w, r)
	if !ok {
		return
	}
	err := s.catalog.CreateType(r.Context(), cfg)
	if errors.Is(err, store.ErrConflict) {
		writeError(w, http.StatusConflict, fmt.Sprintf("document type %q already exists", cfg.Name))
		return
	}
	if err != nil {
		s.logger.Error("Creating document type failed", "name", cfg.Name, "error", err)
		writeError(w, http.StatusInternalServerError, "could not create document type")
		return
	}
	writeJSON(w, http.StatusCreated, cfg)
}

func (s *Server) handleUpdateType(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	cfg, ok := s.decodeTypeConfig(w, r)
	if !ok {
		return
	}
	err := s.catalog.UpdateType(r.Context(), name, cfg)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("document type %q not found", name))
		return
	}
	if err != nil {
		s.logger.Error("Updating document type failed", "name", name, "error", err)
		writeError(w, http.StatusInternalServerError, "could not update document type")
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) decodeTypeConfig(w http.ResponseWriter, r *http.Request) (*models.DocumentTypeConfig, bool) {
	var cfg models.DocumentTypeConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return nil, false
	}
	if cfg.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return nil, false
	}
	if len(cfg.ExtractionSchema) == 0 {
		writeError(w, http.StatusBadRequest, "extraction_schema is required")
		return nil, false
	}
	if err := validateExtractionSchema(cfg.ExtractionSchema); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid extraction_schema: %v", err))
		return nil, false
	}
	return &cfg, true
}

// validateExtractionSchema rejects catalog entries whose schema would fail
// at extraction time.
func validateExtractionSchema(schema map[string]interface{}) error {
	raw, err := json.Marshal(schema)
	if err != nil {
		return err
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("extraction.json", strings.NewReader(string(raw))); err != nil {
		return err
	}
	_, err = compiler.Compile("extraction.json")
	return err
}

// --- helpers ---

func fileNameFromURL(fileURL string) string {
	parsed, err := url.Parse(fileURL)
	if err != nil || parsed.Path == "" {
		return path.Base(fileURL)
	}
	return path.Base(parsed.Path)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
