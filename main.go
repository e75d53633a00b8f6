package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/duraeco/duraeco-engine/pkg/auth"
	"github.com/duraeco/duraeco-engine/pkg/charts"
	"github.com/duraeco/duraeco-engine/pkg/config"
	"github.com/duraeco/duraeco-engine/pkg/database"
	"github.com/duraeco/duraeco-engine/pkg/embeddings"
	"github.com/duraeco/duraeco-engine/pkg/handlers"
	"github.com/duraeco/duraeco-engine/pkg/llm"
	"github.com/duraeco/duraeco-engine/pkg/middleware"
	"github.com/duraeco/duraeco-engine/pkg/repositories"
	"github.com/duraeco/duraeco-engine/pkg/services"
	"github.com/duraeco/duraeco-engine/pkg/storage"
	"github.com/duraeco/duraeco-engine/pkg/vision"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := newLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Configuration loaded",
		zap.String("env", cfg.Env),
		zap.Bool("auth_verification", cfg.Auth.EnableVerification),
		zap.String("database", cfg.Database.Database),
		zap.Bool("storage", cfg.Storage.IsAvailable()),
		zap.Bool("vision", cfg.AI.VisionAvailable()),
		zap.Bool("embeddings", cfg.AI.EmbeddingAvailable()))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := database.Migrate(cfg.Database.ConnectionString(), cfg.MigrationsPath, logger); err != nil {
		logger.Fatal("Database migration failed", zap.Error(err))
	}

	db, err := database.NewConnection(ctx, &database.Config{
		URL:            cfg.Database.ConnectionString(),
		MaxConnections: cfg.Database.MaxConnections,
	})
	if err != nil {
		logger.Fatal("Database connection failed", zap.Error(err))
	}
	defer db.Close()

	// Blob storage is optional: without it reports are text-only and the
	// visualization tools stay unavailable.
	var blobs storage.BlobStore
	if cfg.Storage.IsAvailable() {
		store, err := storage.NewMinioStore(ctx, cfg.Storage, logger)
		if err != nil {
			logger.Fatal("Blob store initialization failed", zap.Error(err))
		}
		blobs = store
	}

	chatClient, err := llm.NewClient(&llm.Config{
		Endpoint: cfg.AI.ChatBaseURL,
		Model:    cfg.AI.ChatModel,
		APIKey:   cfg.AI.ChatAPIKey,
	}, logger)
	if err != nil {
		logger.Fatal("Chat model client failed", zap.Error(err))
	}

	// The vision concern falls back to the chat endpoint when no dedicated
	// endpoint is configured.
	visionClient := chatClient
	if cfg.AI.VisionAvailable() {
		visionClient, err = llm.NewClient(&llm.Config{
			Endpoint: cfg.AI.VisionBaseURL,
			Model:    cfg.AI.VisionModel,
			APIKey:   cfg.AI.VisionAPIKey,
		}, logger)
		if err != nil {
			logger.Fatal("Vision model client failed", zap.Error(err))
		}
	}
	classifier := vision.NewClassifier(visionClient, logger)

	var indexer services.EmbeddingIndexer
	if cfg.AI.EmbeddingAvailable() {
		embeddingClient, err := llm.NewClient(&llm.Config{
			Endpoint: cfg.AI.EmbeddingBaseURL,
			Model:    cfg.AI.EmbeddingModel,
			APIKey:   cfg.AI.EmbeddingAPIKey,
		}, logger)
		if err != nil {
			logger.Fatal("Embedding model client failed", zap.Error(err))
		}
		pool := llm.NewWorkerPool(cfg.Analysis.Workers, logger)
		indexer = embeddings.NewIndexer(embeddingClient, pool, cfg.AI.EmbeddingModel, logger)
	}

	var fallback llm.Completer
	if cfg.AI.AnthropicAvailable() {
		completer, err := llm.NewAnthropicCompleter(cfg.AI.AnthropicAPIKey, cfg.AI.AnthropicModel, logger)
		if err != nil {
			logger.Fatal("Anthropic fallback client failed", zap.Error(err))
		}
		fallback = completer
	}

	reportRepo := repositories.NewReportRepository(db)
	analysisRepo := repositories.NewAnalysisRepository(db)
	wasteTypeRepo := repositories.NewWasteTypeRepository(db)
	hotspotRepo := repositories.NewHotspotRepository(db)
	chatRepo := repositories.NewChatRepository(db)
	auditRepo := repositories.NewAuditRepository(db)

	hotspotService := services.NewHotspotService(db, hotspotRepo, auditRepo, logger)
	analysisService := services.NewAnalysisService(db, reportRepo, analysisRepo, wasteTypeRepo,
		auditRepo, hotspotService, classifier, indexer, blobs,
		time.Duration(cfg.Analysis.VisionTimeoutSeconds)*time.Second, logger)
	queue := services.NewAnalysisQueue(cfg.Analysis, analysisService, reportRepo, logger)
	reportService := services.NewReportService(db, reportRepo, analysisRepo, hotspotService,
		auditRepo, blobs, queue, logger)

	gateway := services.NewQueryGateway(db, 10*time.Second, logger)
	info := services.NewInfoService()
	var renderer services.ChartRenderer
	if blobs != nil {
		renderer = charts.NewRenderer(blobs, logger)
	}
	registry := services.NewChatToolRegistry(gateway, renderer, hotspotService, info, blobs != nil, logger)
	chatService := services.NewChatService(chatRepo, auditRepo, chatClient, registry, fallback, logger)

	queue.Start(ctx)

	authMiddleware := auth.NewMiddleware(cfg.Auth, logger)
	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, logger).RegisterRoutes(mux)
	handlers.NewReportsHandler(reportService, logger).RegisterRoutes(mux, authMiddleware)
	handlers.NewHotspotsHandler(hotspotService, logger).RegisterRoutes(mux, authMiddleware)
	handlers.NewChatHandler(chatService, logger).RegisterRoutes(mux, authMiddleware)

	server := &http.Server{
		Addr:              cfg.BindAddr + ":" + cfg.Port,
		Handler:           middleware.RequestLogger(logger)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		logger.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown failed", zap.Error(err))
		}
	}()

	logger.Info("Starting duraeco-engine",
		zap.String("addr", server.Addr),
		zap.String("version", cfg.Version))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("Server failed", zap.Error(err))
	}

	// Let in-flight analyses finish before exiting.
	queue.Stop()
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "local" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
