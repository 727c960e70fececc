package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/household-ledger/internal/api_gateway"
	"github.com/household-ledger/internal/api_gateway/service"
	"github.com/household-ledger/internal/config"
	"github.com/household-ledger/internal/logger"
	"github.com/household-ledger/internal/membership"
	"github.com/household-ledger/internal/platform/aiparse"
	"github.com/household-ledger/internal/platform/messaging/producers"
	"github.com/household-ledger/internal/recurring"
	"github.com/household-ledger/internal/store"
)

func main() {
	// Create base context with cancellation
	appCtx, cancelAppCtx := context.WithCancel(context.Background())
	defer cancelAppCtx()

	cfg, err := config.LoadConfig("ledger_api")
	if err != nil {
		// logger is not initialized yet, so we use fmt
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.ValidateServer(); err != nil {
		fmt.Printf("Invalid server configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewLogger(cfg)

	// The backend is privileged and always talks to the authoritative store.
	stores, err := store.OpenRemote(appCtx, log, cfg)
	if err != nil {
		log.Error("Failed to open remote store", "error", err)
		os.Exit(1)
	}

	fireProducer, err := producers.NewFireRequestProducer(appCtx, log, &cfg.Kafka)
	if err != nil {
		log.Error("Failed to initialize fire request producer", "error", err)
		os.Exit(1)
	}

	var parser aiparse.Parser
	if cfg.Gemini.APIKey != "" {
		gemini, err := aiparse.NewGeminiParser(appCtx, log.With("component", "aiparse"), &cfg.Gemini)
		if err != nil {
			log.Error("Failed to initialize Gemini parser", "error", err)
			os.Exit(1)
		}
		parser = gemini
	} else {
		log.Warn("GEMINI_API_KEY not set, text parsing disabled")
	}

	coordinator := membership.NewCoordinator(
		log.With("component", "membership"),
		stores.Ledgers,
		stores.Profiles,
		nil,
		stores.Mode(),
		membership.OptionsFromConfig(cfg.Membership),
	)
	engine := recurring.NewEngine(log.With("component", "recurring"), stores.Ledgers, stores.Templates, stores.Transactions)

	server := api_gateway.NewServer(log, cfg, api_gateway.Services{
		Membership:   coordinator,
		Transactions: service.NewTransactionService(log, coordinator, stores.Transactions, engine),
		Templates:    service.NewTemplateService(log, engine, coordinator, fireProducer),
		Parse:        service.NewParseService(log, coordinator, parser),
	})
	log.Info("REST server initialized")

	errChan := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	var serverErr error
	select {
	case <-quit:
		log.Info("Shutdown signal received")
	case err := <-errChan:
		log.Error("Server error occurred", "error", err)
		serverErr = err
	}

	cancelAppCtx()
	log.Info("Starting graceful shutdown...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()

	var shutdownErr error
	if err := server.Stop(shutdownCtx, cfg.Server.ShutdownTimeout); err != nil {
		log.Error("Error during server shutdown", "error", err)
		shutdownErr = err
	}
	if err := fireProducer.Close(); err != nil {
		log.Error("Error closing fire request producer", "error", err)
		shutdownErr = err
	}
	if err := stores.Close(shutdownCtx); err != nil {
		log.Error("Error closing stores", "error", err)
		shutdownErr = err
	}

	if serverErr != nil || shutdownErr != nil {
		log.Error("Server shutdown completed with errors")
		os.Exit(1)
	}
	log.Info("Server shutdown completed successfully")
}
