package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/jeetkatariya/experimentation-platform/internal/config"
	"github.com/jeetkatariya/experimentation-platform/internal/consumer"
	"github.com/jeetkatariya/experimentation-platform/internal/logger"
	"github.com/jeetkatariya/experimentation-platform/internal/queue/sqs"
	"github.com/jeetkatariya/experimentation-platform/internal/repository/clickhouse"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	log, err := logger.New(cfg.Service.Environment)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer func() {
		_ = log.Sync()
	}()

	log.Info("Starting event consumer",
		zap.String("environment", cfg.Service.Environment))

	ctx := context.Background()

	chClient, err := clickhouse.NewClient(ctx, &cfg.ClickHouse, log)
	if err != nil {
		log.Fatal("Failed to create ClickHouse client", zap.Error(err))
	}
	defer func() {
		if err := chClient.Close(); err != nil {
			log.Error("Failed to close ClickHouse client", zap.Error(err))
		}
	}()

	eventRepo := clickhouse.NewRepository(chClient, log)
	if err := eventRepo.InitSchema(ctx); err != nil {
		log.Fatal("Failed to initialize event schema", zap.Error(err))
	}

	sqsClient, err := sqs.NewClient(ctx, cfg.SQS, log)
	if err != nil {
		log.Fatal("Failed to create SQS client", zap.Error(err))
	}

	pipeline := consumer.NewConsumer(cfg, sqsClient, eventRepo, log)

	go serveHealth(cfg.Consumer.HealthCheckPort, eventRepo, log)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		if err := pipeline.Start(runCtx); err != nil {
			log.Fatal("Consumer pipeline failed", zap.Error(err))
		}
	}()
	log.Info("Consumer pipeline running")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info("Shutdown signal received, draining pipeline")
	cancel()
}

// serveHealth exposes a liveness endpoint backed by an event store ping.
func serveHealth(port string, repo *clickhouse.Repository, log *zap.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := repo.Ping(r.Context()); err != nil {
			log.Warn("Health check failed", zap.Error(err))
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	addr := ":" + port
	log.Info("Health server listening", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Error("Health server error", zap.Error(err))
	}
}
