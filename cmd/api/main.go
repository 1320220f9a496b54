package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stockhub/internal/api"
	"stockhub/internal/config"
	"stockhub/internal/connectors/woocommerce"
	"stockhub/internal/database"
	"stockhub/internal/events"
	"stockhub/internal/inventory"
	"stockhub/internal/logger"
	"stockhub/internal/meli"
	"stockhub/internal/relay"
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

	// Initialize database
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// With Kafka configured, everything goes through the topic and the bus is
	// fed back from it, so worker results reach the dashboard stream too.
	bus := events.NewBus()
	var publisher events.Publisher = bus
	if cfg.KafkaBrokers != "" {
		kafkaPublisher := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer kafkaPublisher.Close()
		publisher = kafkaPublisher

		hostname, _ := os.Hostname()
		consumer := worker.New(worker.NewReader(cfg, "stockhub-dashboard-"+hostname), worker.ProcessorFunc(bus.Publish), logger)
		go consumer.Start(ctx)
		defer consumer.Stop()
	}

	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	inv := inventory.NewService(db.DB, publisher, logger, cfg.DefaultMinStock)
	oauth := meli.NewOAuthService(cfg, httpClient, logger)
	broker := meli.NewBroker(cfg.MeliAccountID, backend.Credentials, oauth, httpClient, logger)
	client := meli.NewClient(cfg.MeliAPIURL, broker, backend.Links, logger)

	pusher := processors.NewEventProcessor(client, inv, publisher, logger)

	// Without Kafka there is no worker process, so queued pushes run here.
	if cfg.KafkaBrokers == "" {
		local := worker.NewBusConsumer(bus, 256, pusher, logger)
		go local.Start(ctx)
		defer local.Stop()
	}

	// Initialize API server
	server := api.New(cfg, logger, api.Dependencies{
		Inventory:   inv,
		OAuth:       oauth,
		Broker:      broker,
		Meli:        client,
		Pusher:      pusher,
		Publisher:   publisher,
		Bus:         bus,
		Forwarder:   relay.NewForwarder(cfg.RelayTargetURL, cfg.SupabaseServiceKey, httpClient, logger),
		WooCommerce: woocommerce.New(cfg, httpClient, logger),
	})

	// Start server
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error("Server shutdown failed: %v", err)
	}
}
