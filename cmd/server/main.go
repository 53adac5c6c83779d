package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/sheikh-saqib/prediction-billing-service/internal/api"
	"github.com/sheikh-saqib/prediction-billing-service/internal/catalog"
	"github.com/sheikh-saqib/prediction-billing-service/internal/config"
	"github.com/sheikh-saqib/prediction-billing-service/internal/events/kafka"
	"github.com/sheikh-saqib/prediction-billing-service/internal/executor"
	interfaces "github.com/sheikh-saqib/prediction-billing-service/internal/interfaces"
	"github.com/sheikh-saqib/prediction-billing-service/internal/ledger"
	"github.com/sheikh-saqib/prediction-billing-service/internal/logging"
	"github.com/sheikh-saqib/prediction-billing-service/internal/settlement"
	"github.com/sheikh-saqib/prediction-billing-service/internal/storage/memory"
	"github.com/sheikh-saqib/prediction-billing-service/internal/storage/postgres"
	"github.com/sheikh-saqib/prediction-billing-service/internal/storage/sqlite"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()

	logger, err := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, File: cfg.LogFile})
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	manifest, err := catalog.ManifestFromPath(cfg.ModelManifest)
	if err != nil {
		return err
	}
	cat, err := catalog.New(store, manifest, cfg.ModelCacheSize, catalog.WithLogger(logger))
	if err != nil {
		return err
	}
	if _, err := cat.EnsureSeeded(ctx); err != nil {
		return fmt.Errorf("seed catalog: %w", err)
	}

	exec, closeExec, err := newExecutor(cfg, cat, logger)
	if err != nil {
		return err
	}
	// Runs after e.Shutdown so requests still settling get their results.
	defer closeExec()

	opts := []settlement.Option{
		settlement.WithTimeout(cfg.PredictionTimeout),
		settlement.WithLogger(logger),
	}
	if len(cfg.KafkaBrokers) > 0 {
		publisher := kafka.NewPublisher(cfg.KafkaBrokers)
		defer publisher.Close()
		opts = append(opts, settlement.WithPublisher(publisher, cfg.KafkaEventsTopic))
	}
	led := ledger.NewLedger(store, logger)
	coordinator := settlement.NewCoordinator(cat, led, exec, store, opts...)

	e := api.NewServer(api.Deps{
		Coordinator: coordinator,
		Catalog:     cat,
		Ledger:      led,
		Store:       store,
		JWTSecret:   []byte(cfg.JWTSecret),
		Log:         logger,
	})

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening",
			zap.String("port", cfg.Port),
			zap.String("store", cfg.StoreDriver),
			zap.String("executor", cfg.Executor))
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.PredictionTimeout+5*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

func openStore(ctx context.Context, cfg *config.Config) (interfaces.Store, error) {
	switch cfg.StoreDriver {
	case "memory":
		return memory.NewMemoryStore(), nil
	case "postgres":
		store, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := store.Migrate(ctx); err != nil {
			store.Close()
			return nil, fmt.Errorf("postgres: migrate: %w", err)
		}
		return store, nil
	case "sqlite":
		return sqlite.Open(ctx, cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}
}

func newExecutor(cfg *config.Config, cat *catalog.Catalog, logger *zap.Logger) (executor.Executor, func(), error) {
	switch cfg.Executor {
	case "pool":
		pool := executor.NewPool(cat, cfg.WorkerConcurrency, logger)
		return pool, pool.Close, nil
	case "inline":
		return executor.NewInline(cat), func() {}, nil
	case "kafka":
		if len(cfg.KafkaBrokers) == 0 {
			return nil, nil, errors.New("EXECUTOR=kafka needs KAFKA_BROKERS")
		}
		d := kafka.NewDispatcher(kafka.DispatcherConfig{
			Brokers:      cfg.KafkaBrokers,
			JobsTopic:    cfg.KafkaJobsTopic,
			ResultsTopic: cfg.KafkaResultsTopic,
			GroupID:      cfg.KafkaGroupID,
		}, logger)
		stopListener := startListener(d, logger)
		return d, func() {
			stopListener()
			d.Close()
		}, nil
	default:
		return nil, nil, fmt.Errorf("unknown EXECUTOR %q", cfg.Executor)
	}
}

type listener interface {
	Run(ctx context.Context) error
}

// startListener runs l on its own context, detached from the signal context,
// and returns a func that cancels it and waits for Run to return.
func startListener(l listener, logger *zap.Logger) (stop func()) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := l.Run(ctx); err != nil {
			logger.Error("result listener stopped", zap.Error(err))
		}
	}()
	return func() {
		cancel()
		<-done
	}
}
