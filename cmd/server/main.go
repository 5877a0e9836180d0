package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	openai "github.com/sashabaranov/go-openai"
	"github.com/subosito/gotenv"
	"go.uber.org/zap"

	"github.com/clearledger/vat-extract/internal/confidence"
	"github.com/clearledger/vat-extract/internal/config"
	"github.com/clearledger/vat-extract/internal/extractor"
	"github.com/clearledger/vat-extract/internal/health"
	httpserver "github.com/clearledger/vat-extract/internal/interfaces/http"
	"github.com/clearledger/vat-extract/internal/pipeline"
	"github.com/clearledger/vat-extract/internal/repository"
	"github.com/clearledger/vat-extract/internal/services"
	"github.com/clearledger/vat-extract/internal/worker"
	"github.com/clearledger/vat-extract/pkg/database"
	"github.com/clearledger/vat-extract/pkg/utils"
)

func main() {
	// Local overrides; absence is fine in production
	_ = gotenv.Load()

	cfg, err := config.Load("configs/config.yaml")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting VAT extraction service",
		zap.Int("port", cfg.Server.Port),
		zap.String("model", cfg.OpenAI.Model))

	db, err := database.New(database.Config{
		Path:            cfg.Database.Path,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := database.NewMigrator(db, logger).Run(ctx); err != nil {
		logger.Fatal("Failed to run database migrations", zap.Error(err))
	}

	documentRepo := repository.NewDocumentRepository(db, logger)
	resultRepo := repository.NewResultRepository(db, logger)

	ocrRunner := extractor.ExecRunner{}
	monitor := health.NewMonitor(health.Config{
		TTL:                cfg.Health.TTL,
		ProbeTimeout:       cfg.Health.ProbeTimeout,
		BreakerOpenTimeout: cfg.Health.BreakerOpenTimeout,
	}, logger)

	primaries := []extractor.Extractor{
		extractor.NewOCRExtractor(ocrRunner, cfg.OCR.Language, logger),
		extractor.NewTabularExtractor(logger),
		extractor.NewPlainTextExtractor(logger),
	}
	monitor.Register(extractor.CapabilityOCR, health.OCRProbe(ocrRunner))
	monitor.Register(extractor.CapabilityTabular, health.TabularProbe())

	if cfg.OpenAI.APIKey != "" {
		client := openai.NewClient(cfg.OpenAI.APIKey)
		primaries = append(primaries, extractor.NewVisionExtractor(client, cfg.OpenAI.Model, logger))
		monitor.Register(extractor.CapabilityAI, health.AIProbe(client))
	} else {
		logger.Warn("No OpenAI API key configured, vision tier disabled")
	}

	registry, err := extractor.NewRegistry(extractor.NewFallbackExtractor(logger), primaries...)
	if err != nil {
		logger.Fatal("Failed to build extractor registry", zap.Error(err))
	}

	orchestrator := pipeline.NewOrchestrator(pipeline.Config{
		Budget:         cfg.Pipeline.Budget,
		MaxAttempts:    cfg.Pipeline.MaxAttempts,
		RetryBackoff:   cfg.Pipeline.RetryBackoff,
		FallbackBudget: cfg.Pipeline.FallbackBudget,
	}, registry, monitor, confidence.NewEngine(logger), logger)

	processing := services.NewProcessingService(documentRepo, resultRepo, orchestrator, logger)

	workers := worker.NewManager(logger)
	workers.Register(worker.NewDocumentProcessor(processing,
		cfg.Worker.PollInterval, cfg.Worker.BatchSize, cfg.Worker.Concurrency, logger))
	if err := workers.StartAll(ctx); err != nil {
		logger.Fatal("Failed to start workers", zap.Error(err))
	}
	defer workers.StopAll()

	server := httpserver.NewServer(httpserver.ServerConfig{
		Host:          cfg.Server.Host,
		Port:          cfg.Server.Port,
		ReadTimeout:   cfg.Server.ReadTimeout,
		WriteTimeout:  cfg.Server.WriteTimeout,
		MaxUploadSize: cfg.Server.MaxUploadSize,
	}, processing, monitor, logger)

	if err := server.Start(ctx); err != nil {
		logger.Error("HTTP server exited with error", zap.Error(err))
	}

	logger.Info("Server exited")
}
