package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/sheikh-saqib/prediction-billing-service/internal/catalog"
	"github.com/sheikh-saqib/prediction-billing-service/internal/config"
	"github.com/sheikh-saqib/prediction-billing-service/internal/events/kafka"
	"github.com/sheikh-saqib/prediction-billing-service/internal/logging"
	"github.com/sheikh-saqib/prediction-billing-service/internal/storage/memory"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()

	logger, err := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, File: cfg.LogFile})
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	if len(cfg.KafkaBrokers) == 0 {
		logger.Fatal("KAFKA_BROKERS is required")
	}

	manifest, err := catalog.ManifestFromPath(cfg.ModelManifest)
	if err != nil {
		logger.Fatal("load model manifest", zap.Error(err))
	}
	// Workers only load models; prices stay with the API's store.
	cat, err := catalog.New(memory.NewMemoryStore(), manifest, cfg.ModelCacheSize, catalog.WithLogger(logger))
	if err != nil {
		logger.Fatal("catalog", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	w := kafka.NewWorker(kafka.WorkerConfig{
		Brokers:      cfg.KafkaBrokers,
		JobsTopic:    cfg.KafkaJobsTopic,
		ResultsTopic: cfg.KafkaResultsTopic,
		GroupID:      cfg.KafkaGroupID,
	}, cat, logger)
	defer w.Close()

	logger.Info("worker started",
		zap.Strings("brokers", cfg.KafkaBrokers),
		zap.String("jobs_topic", cfg.KafkaJobsTopic))
	if err := w.Run(ctx); err != nil {
		logger.Error("worker stopped", zap.Error(err))
		return
	}
	logger.Info("worker stopped")
}
