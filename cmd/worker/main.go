package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"

	"github.com/n8nhost/console/internal/config"
	"github.com/n8nhost/console/internal/kafka"
	"github.com/n8nhost/console/internal/logging"
	"github.com/n8nhost/console/providers"
	"github.com/n8nhost/console/services"
	"github.com/n8nhost/console/workers"
)

// The worker process runs escalations, the daily digest and the Kafka
// consumer without the HTTP API. Events it emits are not pushed to the
// websocket feed; dashboards pick them up from history.
func main() {
	log.Println("Starting workers...")

	// Load Config
	if err := config.LoadConfig(os.Getenv("CONSOLE_CONFIG_PATH")); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(config.App.Log.Dir, config.App.Log.Level)
	if err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}
	defer logger.Close()

	// Database connection
	if config.App.DatabaseURL == "" {
		logger.Fatal("DATABASE_URL environment variable (or config) is required")
	}

	pg, err := sql.Open("postgres", config.App.DatabaseURL)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer pg.Close()

	if err := pg.Ping(); err != nil {
		logger.Fatalf("Failed to ping database: %v", err)
	}
	if _, err := pg.Exec("SET TIME ZONE 'UTC'"); err != nil {
		logger.Warnf("Failed to set timezone to UTC: %v", err)
	}
	logger.Info("Connected to database successfully")

	location, err := config.App.Location()
	if err != nil {
		logger.Fatalf("Invalid timezone %q: %v", config.App.Timezone, err)
	}

	// The digest claim lives in Redis, so the worker needs it
	if config.App.RedisURL == "" {
		logger.Fatal("REDIS_URL is required for the worker")
	}
	opts, err := redis.ParseURL(config.App.RedisURL)
	if err != nil {
		logger.Fatalf("Invalid REDIS_URL: %v", err)
	}
	rdb := redis.NewClient(opts)
	defer rdb.Close()

	// Initialize services
	registry := providers.NewDefaultRegistry(config.App, logger)
	channelService := services.NewChannelService(pg)
	notificationService := services.NewSystemNotificationService(pg, rdb, channelService)
	notificationService.Location = location
	dispatcher := services.NewDispatcher(pg, rdb, notificationService, channelService, registry, logger,
		config.App.Dispatch.Workers, config.App.Dispatch.QueueSize)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	dispatcher.Start(&wg)

	escalationWorker := workers.NewEscalationWorker(dispatcher, 0, logger)
	digestWorker := workers.NewDigestWorker(notificationService, dispatcher, rdb, logger)
	digestWorker.Location = location

	// Start escalation worker
	wg.Add(1)
	go func() {
		defer wg.Done()
		escalationWorker.StartEscalationWorker(ctx)
	}()

	// Start digest worker
	wg.Add(1)
	go func() {
		defer wg.Done()
		digestWorker.StartDigestWorker(ctx)
	}()

	var consumer *kafka.Consumer
	if len(config.App.Kafka.Brokers) > 0 {
		consumer, err = kafka.NewConsumer(kafka.Config{
			Brokers: config.App.Kafka.Brokers,
			Topic:   config.App.Kafka.Topic,
			GroupID: config.App.Kafka.GroupID,
		}, dispatcher, logger)
		if err != nil {
			logger.Fatalf("Failed to create kafka consumer: %v", err)
		}
		consumer.Start(&wg)
	} else {
		logger.Info("KAFKA_BROKERS not set, host events are only accepted over HTTP")
	}

	// Wait for interrupt signal
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	logger.Info("Workers started successfully. Press Ctrl+C to stop.")
	<-c

	logger.Info("Shutting down workers...")
	cancel()
	if consumer != nil {
		consumer.Close()
	}
	dispatcher.Stop()
	wg.Wait()
}
