package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/household-ledger/internal/config"
	"github.com/household-ledger/internal/ledger_worker/components"
	"github.com/household-ledger/internal/ledger_worker/consumer"
	"github.com/household-ledger/internal/ledger_worker/service"
	"github.com/household-ledger/internal/logger"
	"github.com/household-ledger/internal/platform/messaging/consumers"
	"github.com/household-ledger/internal/platform/messaging/producers"
	"github.com/household-ledger/internal/reaper"
	"github.com/household-ledger/internal/recurring"
	"github.com/household-ledger/internal/store"
)

func main() {
	appCtx, cancelAppCtx := context.WithCancel(context.Background())
	defer cancelAppCtx()

	cfg, err := config.LoadConfig("ledger_worker")
	if err != nil {
		// logger is not initialized yet, so we use fmt
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewLogger(cfg)
	log.Info("Starting Ledger Worker",
		"app_name", cfg.Application.Name,
		"env", cfg.Application.Env,
	)

	stores, err := store.OpenRemote(appCtx, log, cfg)
	if err != nil {
		log.Error("Failed to open remote store", "error", err)
		os.Exit(1)
	}

	engine := recurring.NewEngine(log.With("component", "recurring"), stores.Ledgers, stores.Templates, stores.Transactions)

	dlqProducer, err := producers.NewDLQProducer(appCtx, log, &cfg.Kafka)
	if err != nil {
		log.Error("Failed to initialize DLQ Kafka producer", "error", err)
		os.Exit(1)
	}
	// A nil *DLQProducer must reach the handlers as a nil interface.
	var dlq producers.DeadLetterPublisher
	if dlqProducer != nil {
		dlq = dlqProducer
	}

	processingService := components.CreateProcessingService(engine, dlq, log, cfg)
	fireRequestHandler := consumer.NewFireRequestHandler(log.With("component", "fire_request_handler"), processingService, dlq)
	kafkaConsumer := consumers.NewKafkaConsumer(appCtx, log, &cfg.Kafka)

	abandoned, err := reaper.NewReaper(&cfg.Reaper, stores.Reaper, stores.Transactions, log.With("component", "reaper"))
	if err != nil {
		log.Error("Failed to initialize reaper", "error", err)
		os.Exit(1)
	}

	errChan := make(chan error, 1)
	var wg sync.WaitGroup

	log.Info("Starting Kafka consumer",
		"topic", cfg.Kafka.FireRequestTopic,
		"group", cfg.Kafka.ConsumerGroup,
	)
	if err := kafkaConsumer.Subscribe(appCtx, cfg.Kafka.FireRequestTopic, cfg.Kafka.ConsumerGroup, fireRequestHandler.HandleMessage); err != nil {
		errChan <- fmt.Errorf("kafka consumer error: %w", err)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		abandoned.Start(appCtx)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	var serviceErr error
	select {
	case <-quit:
		log.Info("Shutdown signal received")
	case err := <-errChan:
		log.Error("Service error occurred", "error", err)
		serviceErr = err
	}

	cancelAppCtx()
	log.Info("Starting graceful shutdown...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	wgChan := make(chan struct{})
	go func() {
		wg.Wait()
		<-kafkaConsumer.Done()
		close(wgChan)
	}()
	select {
	case <-wgChan:
		log.Info("All services stopped successfully")
	case <-shutdownCtx.Done():
		log.Warn("Shutdown timeout reached, forcing exit")
	}

	if wpService, ok := processingService.(*service.WorkerPoolProcessingService); ok {
		log.Info("Shutting down worker pool", "running_workers", wpService.Running())
		wpService.Shutdown()
	}
	abandoned.Close()

	var shutdownErr error
	if err := kafkaConsumer.Close(); err != nil {
		log.Error("Error closing Kafka consumer", "error", err)
		shutdownErr = err
	}
	if dlqProducer != nil {
		if err := dlqProducer.Close(); err != nil {
			log.Error("Error closing DLQ Kafka producer", "error", err)
			shutdownErr = err
		}
	}
	if err := stores.Close(shutdownCtx); err != nil {
		log.Error("Error closing stores", "error", err)
		shutdownErr = err
	}

	if serviceErr != nil || shutdownErr != nil {
		log.Error("Ledger Worker shutdown completed with errors")
		os.Exit(1)
	}
	log.Info("Ledger Worker shutdown completed successfully")
}
