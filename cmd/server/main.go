package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/symptom-assessment-server/internal/api"
	"github.com/symptom-assessment-server/internal/app"
	"github.com/symptom-assessment-server/internal/config"
	"github.com/symptom-assessment-server/internal/logging"
)

var version = "dev"

func main() {
	// Load configuration
	configManager, err := config.NewManager()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Validate configuration
	if err := configManager.Validate(nil); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}
	cfg := configManager.GetConfig()

	logger, err := logging.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	if configManager.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	// Setup graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, true, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialise assessment pipeline")
	}
	defer func() {
		if err := application.Close(); err != nil {
			logger.WithError(err).Warn("Error while releasing resources")
		}
	}()

	sources := make([]api.SourceHealth, 0, len(application.Sources))
	for _, src := range application.Sources {
		sources = append(sources, src)
	}

	server, err := api.NewServer(api.Options{
		Config:            cfg.Server,
		Assessor:          application.Orchestrator,
		Store:             application.Store,
		Policy:            application.Policy,
		Sources:           sources,
		DocumentCharLimit: cfg.Pipeline.DocumentCharLimit,
		Version:           version,
		Logger:            logger,
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to create HTTP server")
	}

	logger.WithField("port", cfg.Server.Port).Info("Starting symptom assessment server")
	if err := server.Start(ctx); err != nil {
		logger.WithError(err).Error("Server stopped with error")
		return
	}

	logger.Info("Server stopped")
}
