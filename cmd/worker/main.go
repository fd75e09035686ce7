package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"engagement-service/internal/cache"
	"engagement-service/internal/clock"
	"engagement-service/internal/config"
	"engagement-service/internal/db"
	"engagement-service/internal/engagement"
	"engagement-service/internal/store"
	"engagement-service/internal/worker"
	"engagement-service/pkg/logger"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := logger.NewLogger()
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer logger.Sync()

	if cfg.Store != config.StorePostgres {
		logger.Fatal("standalone worker needs the postgres store", zap.String("store", cfg.Store))
	}
	if cfg.RedisAddr == "" {
		logger.Fatal("standalone worker needs REDIS_ADDR for the reconcile queue")
	}

	database, err := db.NewDB(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer database.Close()

	redisCache, err := cache.NewCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		logger.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer redisCache.Close()

	content := store.NewPostgres(database.DB)
	counters := engagement.NewCounters(content, redisCache, logger)

	w := worker.NewWorker(content, counters, redisCache, clock.System(), worker.Config{
		ExpiryInterval:    cfg.ExpirySweepInterval,
		ReconcileInterval: cfg.ReconcileInterval,
		ReconcileBatch:    cfg.ReconcileBatch,
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("worker starting")
	w.Run(ctx)
	logger.Info("shutting down worker...")
}
