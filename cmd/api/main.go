package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"engagement-service/internal/cache"
	"engagement-service/internal/clock"
	"engagement-service/internal/config"
	"engagement-service/internal/db"
	"engagement-service/internal/directory"
	"engagement-service/internal/engagement"
	"engagement-service/internal/feed"
	"engagement-service/internal/handlers"
	"engagement-service/internal/notify"
	"engagement-service/internal/storage"
	"engagement-service/internal/stories"
	"engagement-service/internal/store"
	"engagement-service/internal/websocket"
	"engagement-service/internal/worker"
	"engagement-service/pkg/logger"

	"go.uber.org/zap"
)

// contentStore is everything the services need from persistence.
type contentStore interface {
	engagement.Store
	feed.Store
	stories.Store
	notify.Store
	worker.StorySweeper
}

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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	checks := map[string]handlers.Check{}

	var (
		content contentStore
		dir     directory.Directory
	)
	switch cfg.Store {
	case config.StoreMemory:
		logger.Warn("using in-memory store, data is lost on restart")
		content = store.NewMemory()
		dir = directory.NewAutoRegisteringMemory()
	default:
		database, err := db.NewDB(cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("failed to connect to database", zap.Error(err))
		}
		defer database.Close()

		if err := database.InitSchema(ctx); err != nil {
			logger.Fatal("failed to initialize schema", zap.Error(err))
		}
		content = store.NewPostgres(database.DB)
		dir = directory.NewPostgres(database.DB)
		checks["database"] = database.PingContext
	}

	var redisCache *cache.Cache
	if cfg.RedisAddr != "" {
		redisCache, err = cache.NewCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			logger.Warn("failed to connect to redis, continuing without cache", zap.Error(err))
			redisCache = nil
		} else {
			defer redisCache.Close()
			checks["redis"] = redisCache.Ping
		}
	} else {
		logger.Warn("REDIS_ADDR not set, running without cache")
	}

	var queue worker.ReconcileQueue = engagement.NewLocalQueue()
	if redisCache != nil {
		queue = redisCache
		dir = directory.NewCached(dir, redisCache, logger)
	}

	var stor *storage.Storage
	if cfg.MinioEndpoint != "" && cfg.MinioBucket != "" {
		stor, err = storage.NewStorage(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			logger.Warn("failed to create storage, continuing without presigned uploads", zap.Error(err))
			stor = nil
		} else {
			checks["storage"] = stor.Ping
		}
	} else {
		logger.Warn("MINIO_ENDPOINT or MINIO_BUCKET not set, running without storage")
	}

	hub := websocket.NewHub()
	go hub.Run(ctx)

	sinks := []notify.Enqueuer{hub}
	var kafkaSink *notify.KafkaSink
	if len(cfg.KafkaBrokers) > 0 {
		kafkaSink = notify.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		sinks = append(sinks, kafkaSink)
	}

	clk := clock.System()
	notifier := notify.New(content, clk, logger, cfg.NotifyConcurrency, sinks...)
	counters := engagement.NewCounters(content, queue, logger)

	var limiter engagement.RateLimiter
	if redisCache != nil {
		limiter = redisCache
	}
	posts := engagement.NewService(content, counters, notifier, limiter, engagement.Limits{
		Posts:    cfg.PostRateLimit,
		Comments: cfg.CommentRateLimit,
		Window:   cfg.RateLimitWindow,
	}, clk, logger)
	composer := feed.NewComposer(dir, content, cfg.TrendingThreshold, cfg.FeedPageSize, cfg.FeedMaxPageSize, logger)
	storyManager := stories.NewManager(content, dir, notifier, clk, cfg.StoryTTL, logger)
	if limiter != nil {
		storyManager = storyManager.WithRateLimit(limiter, cfg.PostRateLimit, cfg.RateLimitWindow)
	}

	// The standalone worker only serves postgres with a redis queue. Any
	// other combination keeps state it cannot see, so the jobs run here.
	if redisCache == nil || cfg.Store == config.StoreMemory {
		w := worker.NewWorker(content, counters, queue, clk, worker.Config{
			ExpiryInterval:    cfg.ExpirySweepInterval,
			ReconcileInterval: cfg.ReconcileInterval,
			ReconcileBatch:    cfg.ReconcileBatch,
		}, logger)
		go w.Run(ctx)
	}

	router := handlers.NewRouter(handlers.Deps{
		JWTSecret: cfg.JWTSecret,
		Posts:     posts,
		Feed:      composer,
		Stories:   storyManager,
		Notifier:  notifier,
		Directory: dir,
		Storage:   stor,
		Hub:       hub,
		Checks:    checks,
		Clock:     clk,
		Logger:    logger,
	})

	srv := &http.Server{
		Addr:    "0.0.0.0:" + cfg.Port,
		Handler: router,
	}

	go func() {
		logger.Info("server starting", zap.String("port", cfg.Port), zap.String("store", cfg.Store))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	notifier.Wait()
	if kafkaSink != nil {
		if err := kafkaSink.Close(); err != nil {
			logger.Warn("failed to flush notification stream", zap.Error(err))
		}
	}

	logger.Info("server exited")
}
