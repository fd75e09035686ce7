package engagement

import (
	"context"
	"errors"
	"fmt"

	"engagement-service/internal/metrics"
	"engagement-service/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type CounterStore interface {
	AdjustCounter(ctx context.Context, postID uuid.UUID, counter models.Counter, delta int64) (int64, error)
	RecountCounters(ctx context.Context, postID uuid.UUID) (models.Counters, error)
}

// ReconcileQueue remembers posts whose counters may have drifted.
type ReconcileQueue interface {
	EnqueueReconcile(ctx context.Context, postID uuid.UUID) error
}

// Counters is the only writer of post engagement counters.
type Counters struct {
	store  CounterStore
	queue  ReconcileQueue
	logger *zap.Logger
}

func NewCounters(store CounterStore, queue ReconcileQueue, logger *zap.Logger) *Counters {
	return &Counters{store: store, queue: queue, logger: logger}
}

// AdjustCounter moves one counter by exactly one step and returns its new value.
func (c *Counters) AdjustCounter(ctx context.Context, postID uuid.UUID, counter models.Counter, delta int64) (int64, error) {
	if delta != 1 && delta != -1 {
		return 0, fmt.Errorf("counter delta %d: %w", delta, models.ErrInvalid)
	}
	value, err := c.store.AdjustCounter(ctx, postID, counter, delta)
	if errors.Is(err, models.ErrInconsistentState) {
		c.logger.Error("counter would go negative",
			zap.String("post_id", postID.String()),
			zap.String("counter", string(counter)),
			zap.Int64("delta", delta),
			zap.Error(err))
		return 0, err
	}
	if err != nil {
		return 0, err
	}
	observe(counter, delta)
	return value, nil
}

func observe(counter models.Counter, delta int64) {
	direction := "up"
	if delta < 0 {
		direction = "down"
	}
	metrics.EngagementTotal.WithLabelValues(string(counter), direction).Inc()
}

// applied settles a counter step the store ran in the same transaction as
// its record. An inconsistent step wrote nothing, but it means the counter
// had drifted before, so the post is queued for reconciliation.
func (c *Counters) applied(ctx context.Context, postID uuid.UUID, counter models.Counter, delta int64, err error) error {
	if errors.Is(err, models.ErrInconsistentState) {
		c.logger.Error("counter out of step with its records",
			zap.String("post_id", postID.String()),
			zap.String("counter", string(counter)),
			zap.Int64("delta", delta),
			zap.Error(err))
		c.enqueue(ctx, postID)
		return err
	}
	if err != nil {
		return err
	}
	observe(counter, delta)
	return nil
}

// Reconcile recomputes every counter of the post from its engagement records.
func (c *Counters) Reconcile(ctx context.Context, postID uuid.UUID) (models.Counters, error) {
	counters, err := c.store.RecountCounters(ctx, postID)
	if err != nil {
		return models.Counters{}, err
	}
	metrics.ReconciliationsTotal.Inc()
	c.logger.Info("counters reconciled",
		zap.String("post_id", postID.String()),
		zap.Int64("likes", counters.Likes),
		zap.Int64("comments", counters.Comments),
		zap.Int64("shares", counters.Shares))
	return counters, nil
}

// partial wraps a post-mutation failure and schedules the post for reconciliation.
func (c *Counters) partial(ctx context.Context, postID uuid.UUID, step string, cause error) error {
	metrics.PartialFailuresTotal.WithLabelValues(step).Inc()
	c.logger.Error("engagement partially applied",
		zap.String("post_id", postID.String()),
		zap.String("step", step),
		zap.Error(cause))
	c.enqueue(ctx, postID)
	return &models.PartialFailure{PostID: postID, Step: step, Err: cause}
}

func (c *Counters) enqueue(ctx context.Context, postID uuid.UUID) {
	if err := c.queue.EnqueueReconcile(context.WithoutCancel(ctx), postID); err != nil {
		c.logger.Error("failed to queue reconciliation", zap.String("post_id", postID.String()), zap.Error(err))
	}
}
