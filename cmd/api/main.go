package main

import (
	"context"
	"crypto/rsa"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/dvloznov/dapfinance/internal/ai"
	"github.com/dvloznov/dapfinance/internal/api"
	"github.com/dvloznov/dapfinance/internal/api/handlers"
	"github.com/dvloznov/dapfinance/internal/config"
	"github.com/dvloznov/dapfinance/internal/gcsuploader"
	"github.com/dvloznov/dapfinance/internal/infra"
	"github.com/dvloznov/dapfinance/internal/jobs"
	"github.com/dvloznov/dapfinance/internal/jobs/inmemory"
	"github.com/dvloznov/dapfinance/internal/logger"
	"github.com/dvloznov/dapfinance/internal/pipeline"
	"github.com/dvloznov/dapfinance/internal/wise"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New().Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.NewWithOptions(logger.Options{
		Level: cfg.LogLevel,
		JSON:  cfg.LogFormat == "json",
	})

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	ctx := logger.WithContext(context.Background(), log)

	// Initialize repositories
	repo, err := infra.OpenRepository(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.StoreBackend).Msg("Failed to open store")
	}
	defer repo.Close()
	log.Info().Str("backend", cfg.StoreBackend).Msg("Store opened")

	gemini, err := ai.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, cfg.CategorizeTimeout)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Gemini client")
	}
	if cfg.GeminiAPIKey == "" {
		log.Warn().Msg("No GEMINI_API_KEY configured - categorization will fall back to 'other'")
	}

	// Object storage backs async imports and receipt photos.
	var (
		storage  pipeline.StorageService
		uploader handlers.ReceiptUploader
	)
	if cfg.ReceiptsBucket != "" {
		gcs, err := gcsuploader.NewService(ctx, cfg.ReceiptsBucket)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create GCS client")
		}
		defer gcs.Close()
		storage, uploader = gcs, gcs
	} else {
		log.Warn().Msg("No RECEIPTS_BUCKET configured - photo uploads and GCS imports will be disabled")
	}

	ingestor := pipeline.NewIngestor(repo, gemini, storage)

	var publicKey *rsa.PublicKey
	if cfg.WisePublicKey != "" {
		publicKey, err = wise.ParsePublicKey(cfg.WisePublicKey)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to parse WISE_PUBLIC_KEY")
		}
	} else {
		log.Warn().Msg("No WISE_PUBLIC_KEY configured - Wise webhooks will be rejected")
	}

	var balances wise.BalanceFetcher
	if cfg.WiseSyncConfigured() {
		balances = wise.NewClient(cfg.WiseAPIBase, cfg.WiseAPIToken, cfg.WiseProfileID)
	}

	// Initialize job infrastructure
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(100, jobStore)

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	var publisher jobs.Publisher
	if storage != nil {
		publisher = jobQueue
		go func() {
			log.Info().Msg("Starting job worker")
			if err := jobQueue.Start(workerCtx, jobs.NewImportHandler(ingestor)); err != nil {
				log.Error().Err(err).Msg("Job worker stopped with error")
			}
		}()
	}

	router := api.NewRouter(api.Handlers{
		Imports:      handlers.NewImportsHandler(ingestor, publisher, log),
		Jobs:         handlers.NewJobsHandler(jobStore, log),
		Webhooks:     handlers.NewWebhooksHandler(ingestor, publicKey, log),
		Transactions: handlers.NewTransactionsHandler(repo, gemini, log),
		Photos:       handlers.NewPhotosHandler(repo, uploader, gemini, log),
		AI:           handlers.NewAIHandler(gemini, log),
		Accounts:     handlers.NewAccountsHandler(repo, balances, log),
		Auth:         handlers.NewAuthHandler(cfg.AppPassword, cfg.CookieSecure, log),
	}, log, cfg.AppPassword)

	if cfg.AppPassword == "" {
		log.Warn().Msg("No APP_PASSWORD configured - the API is open")
	}

	port := strconv.Itoa(cfg.Port)
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", port).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	cancelWorker()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Stop job queue and wait for in-flight jobs
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}
	if err := jobQueue.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close job queue")
	}

	log.Info().Msg("Server exited")
}
