package worker

import (
	"context"
	"errors"
	"time"

	"engagement-service/internal/clock"
	"engagement-service/internal/metrics"
	"engagement-service/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type StorySweeper interface {
	DeactivateExpiredStories(ctx context.Context, now time.Time) (int64, error)
}

type Reconciler interface {
	Reconcile(ctx context.Context, postID uuid.UUID) (models.Counters, error)
}

type ReconcileQueue interface {
	EnqueueReconcile(ctx context.Context, postID uuid.UUID) error
	PopReconcile(ctx context.Context, n int64) ([]uuid.UUID, error)
}

type Config struct {
	ExpiryInterval    time.Duration
	ReconcileInterval time.Duration
	ReconcileBatch    int64
}

type Worker struct {
	stories    StorySweeper
	reconciler Reconciler
	queue      ReconcileQueue
	clock      clock.Clock
	cfg        Config
	logger     *zap.Logger
}

func NewWorker(stories StorySweeper, reconciler Reconciler, queue ReconcileQueue, clk clock.Clock, cfg Config, logger *zap.Logger) *Worker {
	if cfg.ExpiryInterval <= 0 {
		cfg.ExpiryInterval = time.Minute
	}
	if cfg.ReconcileInterval <= 0 {
		cfg.ReconcileInterval = 30 * time.Second
	}
	if cfg.ReconcileBatch <= 0 {
		cfg.ReconcileBatch = 100
	}
	return &Worker{
		stories:    stories,
		reconciler: reconciler,
		queue:      queue,
		clock:      clk,
		cfg:        cfg,
		logger:     logger,
	}
}

func (w *Worker) Run(ctx context.Context) {
	expiry := time.NewTicker(w.cfg.ExpiryInterval)
	defer expiry.Stop()
	reconcile := time.NewTicker(w.cfg.ReconcileInterval)
	defer reconcile.Stop()

	w.logger.Info("worker started",
		zap.Duration("expiry_interval", w.cfg.ExpiryInterval),
		zap.Duration("reconcile_interval", w.cfg.ReconcileInterval))

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("worker stopped")
			return
		case <-expiry.C:
			w.ExpireStories(ctx)
		case <-reconcile.C:
			w.ReconcileCounters(ctx)
		}
	}
}

// ExpireStories flips the active flag on stories past their expiry. Reads
// already hide them; this keeps the flag and the index honest.
func (w *Worker) ExpireStories(ctx context.Context) int64 {
	start := time.Now()
	count, err := w.stories.DeactivateExpiredStories(ctx, w.clock.Now())
	duration := time.Since(start)
	metrics.WorkerLatencySeconds.WithLabelValues("expire_stories").Observe(duration.Seconds())

	if err != nil {
		w.logger.Error("failed to expire stories", zap.Error(err))
		return 0
	}
	if count > 0 {
		metrics.StoriesExpiredTotal.Add(float64(count))
		w.logger.Info("stories expired",
			zap.Int64("count", count),
			zap.Duration("duration", duration))
	}
	return count
}

// ReconcileCounters drains one batch of queued posts. Posts that fail for a
// reason other than being gone are queued again.
func (w *Worker) ReconcileCounters(ctx context.Context) int {
	start := time.Now()
	defer func() {
		metrics.WorkerLatencySeconds.WithLabelValues("reconcile_counters").Observe(time.Since(start).Seconds())
	}()

	ids, err := w.queue.PopReconcile(ctx, w.cfg.ReconcileBatch)
	if err != nil {
		w.logger.Error("failed to read reconciliation queue", zap.Error(err))
		return 0
	}

	done := 0
	for _, id := range ids {
		_, err := w.reconciler.Reconcile(ctx, id)
		switch {
		case err == nil:
			done++
		case errors.Is(err, models.ErrNotFound):
			w.logger.Debug("reconciliation skipped, post gone", zap.String("post_id", id.String()))
		default:
			w.logger.Error("reconciliation failed", zap.String("post_id", id.String()), zap.Error(err))
			if err := w.queue.EnqueueReconcile(ctx, id); err != nil {
				w.logger.Error("failed to requeue post", zap.String("post_id", id.String()), zap.Error(err))
			}
		}
	}
	return done
}
