package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/storage"

	"github.com/Lllllllleong/documentverificationflow/internal/ai"
	"github.com/Lllllllleong/documentverificationflow/internal/authenticity"
	"github.com/Lllllllleong/documentverificationflow/internal/gcp"
	"github.com/Lllllllleong/documentverificationflow/internal/ocr"
	"github.com/Lllllllleong/documentverificationflow/internal/pipeline"
	"github.com/Lllllllleong/documentverificationflow/internal/rules"
	"github.com/Lllllllleong/documentverificationflow/internal/server"
	"github.com/Lllllllleong/documentverificationflow/internal/store"
	"github.com/Lllllllleong/documentverificationflow/internal/verification"
)

type appConfig struct {
	ProjectID            string
	VertexAIRegion       string
	DocumentsCollection  string
	TypesCollection      string
	AuthoritativeBucket  string
	PortalURL            string
	ReadAPIEndpoint      string
	ReadAPIKey           string
	Port                 string
	CombinedExtraction   bool
	LaborCertificateType string
	EnviameLabelType     string
	WalmartLabelType     string
}

func loadConfig() (*appConfig, error) {
	projectID := gcp.GetEnv("PROJECT_ID", "")
	if projectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set")
	}
	bucket := gcp.GetEnv("AUTHORITATIVE_BUCKET", "")
	if bucket == "" {
		return nil, fmt.Errorf("AUTHORITATIVE_BUCKET environment variable must be set")
	}
	portalURL := gcp.GetEnv("VERIFICATION_PORTAL_URL", "")
	if portalURL == "" {
		return nil, fmt.Errorf("VERIFICATION_PORTAL_URL environment variable must be set")
	}
	return &appConfig{
		ProjectID:            projectID,
		VertexAIRegion:       gcp.GetEnv("VERTEX_AI_REGION", "us-central1"),
		DocumentsCollection:  gcp.GetEnv("FIRESTORE_COLLECTION", gcp.DefaultDocumentsCollection),
		TypesCollection:      gcp.GetEnv("FIRESTORE_TYPES_COLLECTION", gcp.DefaultTypesCollection),
		AuthoritativeBucket:  bucket,
		PortalURL:            portalURL,
		ReadAPIEndpoint:      gcp.GetEnv("READ_API_ENDPOINT", ""),
		ReadAPIKey:           gcp.GetEnv("READ_API_KEY", ""),
		Port:                 gcp.GetEnv("PORT", "8080"),
		CombinedExtraction:   gcp.GetEnv("USE_COMBINED_VALIDATION_EXTRACTION", "true") == "true",
		LaborCertificateType: gcp.GetEnv("LABOR_CERTIFICATE_TYPE", "labor_certificate"),
		EnviameLabelType:     gcp.GetEnv("ENVIAME_LABEL_TYPE", "etiqueta_enviame"),
		WalmartLabelType:     gcp.GetEnv("WALMART_LABEL_TYPE", "etiqueta_walmart"),
	}, nil
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("Server exited with error", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	firestoreClient, err := gcp.NewFirestoreClient(ctx, cfg.ProjectID)
	if err != nil {
		return fmt.Errorf("creating firestore client: %w", err)
	}
	defer firestoreClient.Close()

	storageClient, err := storage.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("creating storage client: %w", err)
	}
	defer storageClient.Close()

	vertexClient, err := gcp.NewVertexClient(ctx, cfg.ProjectID, cfg.VertexAIRegion)
	if err != nil {
		return fmt.Errorf("creating vertex client: %w", err)
	}
	defer vertexClient.Close()

	repo := store.NewFirestoreStore(firestoreClient, cfg.DocumentsCollection, cfg.TypesCollection, logger)

	providers := []ocr.Provider{ocr.NewVertexProvider(vertexClient, logger)}
	if cfg.ReadAPIEndpoint != "" {
		providers = append(providers, ocr.NewReadAPIProvider(cfg.ReadAPIEndpoint, cfg.ReadAPIKey, nil, logger))
	}
	chain := ocr.NewChain(logger, providers...)

	arbiter := ai.NewArbiter(vertexClient, logger)
	validator := rules.NewValidator(arbiter, logger)
	checker := authenticity.NewChecker(nil, logger)

	portal := verification.NewHTTPPortal(cfg.PortalURL, nil, logger)
	saver := verification.NewGCSSaver(storageClient, cfg.AuthoritativeBucket)
	verifier := verification.NewVerifier(portal, chain, arbiter, saver, logger)

	registry := pipeline.NewRegistry()
	registry.Register(verification.SubTypePersonaNatural, pipeline.Variant{
		TypeName:             cfg.LaborCertificateType,
		Group:                pipeline.GroupLaborCertificate,
		RequiresAuthenticity: true,
		RequiresVerification: true,
	})
	registry.Register(verification.SubTypeRazonSocial, pipeline.Variant{
		TypeName:             cfg.LaborCertificateType,
		Group:                pipeline.GroupLaborCertificate,
		RequiresAuthenticity: true,
		RequiresVerification: true,
	})
	registry.Register(pipeline.SubTypeLabelEnviame, pipeline.Variant{
		TypeName: cfg.EnviameLabelType,
		Group:    pipeline.GroupShippingLabel,
	})
	registry.Register(pipeline.SubTypeLabelWalmart, pipeline.Variant{
		TypeName: cfg.WalmartLabelType,
		Group:    pipeline.GroupShippingLabel,
	})

	orchestrator := pipeline.New(pipeline.Params{
		Store:              repo,
		Catalog:            repo,
		Fetcher:            pipeline.NewFetcher(nil, storageClient),
		OCR:                chain,
		Arbiter:            arbiter,
		Validator:          validator,
		Authenticity:       checker,
		Verifier:           verifier,
		Registry:           registry,
		Notifier:           server.NewCallbackNotifier(nil, logger),
		CombinedExtraction: cfg.CombinedExtraction,
		Logger:             logger,
	})

	api := server.New(repo, repo, orchestrator, registry, logger)
	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "port", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
