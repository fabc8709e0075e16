// Package main is the standalone MCP entry point. It needs no external
// services: assessments go to SQLite under the data directory, evidence is
// cached in memory and configuration comes from the environment.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/symptom-assessment-server/internal/app"
	"github.com/symptom-assessment-server/internal/config"
	"github.com/symptom-assessment-server/internal/logging"
	"github.com/symptom-assessment-server/internal/mcp"
	"github.com/symptom-assessment-server/internal/setup"
)

func main() {
	// stdout belongs to the stdio transport
	log.SetOutput(os.Stderr)

	if len(os.Args) > 1 && os.Args[1] == "setup" {
		if err := setup.NewCLI(os.Stdout).Run(os.Args[2:]); err != nil {
			log.Fatalf("Setup failed: %v", err)
		}
		return
	}

	lite := config.LoadLiteConfig()
	if err := lite.EnsureDataDir(); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}
	cfg := lite.ToConfig()

	logger, err := logging.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	logger.WithField("data_dir", lite.DataDir).Info("Starting symptom assessment MCP server")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, true, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialise assessment pipeline")
	}
	defer application.Close()

	server, err := mcp.NewServer(application.Orchestrator, cfg.MCP, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create MCP server")
	}
	server.WithRecorder(application.Store)

	if err := server.Run(ctx); err != nil && ctx.Err() == nil {
		logger.WithError(err).Error("MCP server failed")
		return
	}

	logger.Info("MCP server stopped")
}
