package main

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/jeetkatariya/experimentation-platform/docs"
	"github.com/jeetkatariya/experimentation-platform/internal/config"
	"github.com/jeetkatariya/experimentation-platform/internal/handler"
	"github.com/jeetkatariya/experimentation-platform/internal/logger"
	"github.com/jeetkatariya/experimentation-platform/internal/queue/sqs"
	"github.com/jeetkatariya/experimentation-platform/internal/repository/clickhouse"
	"github.com/jeetkatariya/experimentation-platform/internal/repository/postgres"
	"github.com/jeetkatariya/experimentation-platform/internal/service"
)

// @title Experimentation Platform API
// @version 1.0
// @description A/B experimentation service with deterministic variant assignment and results analytics
// @host localhost:8080
// @BasePath /
// @schemes http https
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// Initialize logger
	log, err := logger.New(cfg.Service.Environment)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer func(log *zap.Logger) {
		err := log.Sync()
		if err != nil {
			log.Error("Failed to sync logger", zap.Error(err))
		}
	}(log)

	log.Info("Starting API service",
		zap.String("environment", cfg.Service.Environment),
		zap.String("port", cfg.Service.APIPort))

	// Configure Swagger host dynamically
	docs.SwaggerInfo.Host = cfg.Service.Host

	ctx := context.Background()

	// Initialize Postgres client
	pgClient, err := postgres.NewClient(ctx, &cfg.Postgres, log)
	if err != nil {
		log.Fatal("Failed to create Postgres client", zap.Error(err))
	}
	defer func(pgClient *postgres.Client) {
		if err := pgClient.Close(); err != nil {
			log.Error("Failed to close Postgres client", zap.Error(err))
		}
	}(pgClient)

	// Initialize control plane repository and schema
	controlRepo := postgres.NewRepository(pgClient, log)
	if err := controlRepo.InitSchema(ctx); err != nil {
		log.Fatal("Failed to initialize Postgres schema", zap.Error(err))
	}

	// Initialize ClickHouse client
	clickhouseClient, err := clickhouse.NewClient(ctx, &cfg.ClickHouse, log)
	if err != nil {
		log.Fatal("Failed to create ClickHouse client", zap.Error(err))
	}
	defer func(clickhouseClient *clickhouse.Client) {
		if err := clickhouseClient.Close(); err != nil {
			log.Error("Failed to close ClickHouse client", zap.Error(err))
		}
	}(clickhouseClient)

	eventRepo := clickhouse.NewRepository(clickhouseClient, log)

	// Initialize SQS client
	sqsClient, err := sqs.NewClient(ctx, cfg.SQS, log)
	if err != nil {
		log.Fatal("Failed to create SQS client", zap.Error(err))
	}

	// Initialize services
	experimentService := service.NewExperimentService(controlRepo, log)
	assignmentService := service.NewAssignmentService(controlRepo, controlRepo, log)
	eventService := service.NewEventService(sqsClient, eventRepo, log)
	resultsService := service.NewResultsService(controlRepo, controlRepo, eventRepo, log)

	// Initialize handler
	h := handler.NewHandler(experimentService, assignmentService, eventService, resultsService, log)

	addr := fmt.Sprintf(":%s", cfg.Service.APIPort)
	log.Info("API server starting", zap.String("address", addr))

	if err := http.ListenAndServe(addr, h); err != nil {
		log.Fatal("Failed to start API server", zap.Error(err))
	}
}
