package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"

	"github.com/n8nhost/console/internal/config"
	"github.com/n8nhost/console/internal/kafka"
	"github.com/n8nhost/console/internal/logging"
	"github.com/n8nhost/console/internal/realtime"
	"github.com/n8nhost/console/providers"
	"github.com/n8nhost/console/router"
	"github.com/n8nhost/console/services"
	"github.com/n8nhost/console/workers"
)

func main() {
	// Load Config
	if err := config.LoadConfig(os.Getenv("CONSOLE_CONFIG_PATH")); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(config.App.Log.Dir, config.App.Log.Level)
	if err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}
	defer logger.Close()

	if !config.App.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	// Database connection
	if config.App.DatabaseURL == "" {
		logger.Fatal("DATABASE_URL environment variable (or config) is required")
	}
	if config.App.JWTSecret == "" || config.App.AdminPasswordHash == "" {
		logger.Fatal("JWT_SECRET and ADMIN_PASSWORD_HASH are required")
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

	if config.App.RedisURL == "" {
		logger.Fatal("REDIS_URL environment variable (or config) is required")
	}
	opts, err := redis.ParseURL(config.App.RedisURL)
	if err != nil {
		logger.Fatalf("Invalid REDIS_URL: %v", err)
	}
	rdb := redis.NewClient(opts)
	defer rdb.Close()
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		logger.Warnf("Redis unreachable, cooldowns and rate limits will fail open: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup

	// Notification pipeline
	registry := providers.NewDefaultRegistry(config.App, logger)
	channelService := services.NewChannelService(pg)
	notificationService := services.NewSystemNotificationService(pg, rdb, channelService)
	notificationService.Location = location
	dispatcher := services.NewDispatcher(pg, rdb, notificationService, channelService, registry, logger,
		config.App.Dispatch.Workers, config.App.Dispatch.QueueSize)
	hub := realtime.NewHub(logger)
	dispatcher.Hub = hub
	dispatcher.Start(&wg)

	escalationWorker := workers.NewEscalationWorker(dispatcher, 0, logger)
	wg.Add(1)
	go func() {
		defer wg.Done()
		escalationWorker.StartEscalationWorker(ctx)
	}()

	digestWorker := workers.NewDigestWorker(notificationService, dispatcher, rdb, logger)
	digestWorker.Location = location
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
	}

	recovered, err := services.NewBackupService(pg, config.App.Backup.DataDir, config.App.Backup.Dir, logger).
		RecoverInterrupted(ctx)
	if err != nil {
		logger.Warnf("Failed to recover interrupted backups: %v", err)
	} else if recovered > 0 {
		logger.Infof("Marked %d interrupted backup job(s) as failed", recovered)
	}

	srv := &http.Server{
		Addr:              ":" + config.App.Port,
		Handler:           router.NewGinRouter(pg, rdb, logger, dispatcher, hub),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Infof("Console API listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c

	logger.Info("Shutting down...")
	shutdownCtx, stop := context.WithTimeout(context.Background(), 15*time.Second)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Server shutdown: %v", err)
	}

	cancel()
	if consumer != nil {
		consumer.Close()
	}
	dispatcher.Stop()
	wg.Wait()
	logger.Info("Stopped")
}
