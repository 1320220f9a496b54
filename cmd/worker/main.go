package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"stockhub/internal/config"
	"stockhub/internal/database"
	"stockhub/internal/events"
	"stockhub/internal/inventory"
	"stockhub/internal/logger"
	"stockhub/internal/meli"
	"stockhub/internal/store"
	"stockhub/internal/worker"
	"stockhub/internal/worker/processors"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	// Initialize logger
	logger := logger.New(cfg.Env, cfg.LogLevel)

	if cfg.KafkaBrokers == "" {
		logger.Fatal("KAFKA_BROKERS is required for the worker")
	}

	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("Failed to connect to database: %v", err)
	}
	defer db.Close()

	backend, err := store.Open(cfg, db.DB)
	if err != nil {
		logger.Fatal("Failed to open credential backend: %v", err)
	}
	defer backend.Close()

	publisher := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
	defer publisher.Close()

	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	inv := inventory.NewService(db.DB, publisher, logger, cfg.DefaultMinStock)
	oauth := meli.NewOAuthService(cfg, httpClient, logger)
	broker := meli.NewBroker(cfg.MeliAccountID, backend.Credentials, oauth, httpClient, logger)
	client := meli.NewClient(cfg.MeliAPIURL, broker, backend.Links, logger)
	processor := processors.NewEventProcessor(client, inv, publisher, logger)

	// Initialize worker
	w := worker.New(worker.NewReader(cfg, "stockhub-worker"), processor, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start worker
	logger.Info("Starting worker...")
	go w.Start(ctx)

	<-ctx.Done()

	logger.Info("Shutting down worker...")
	w.Stop()
}
