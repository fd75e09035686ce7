package directory

import (
	"context"
	"time"

	"engagement-service/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type ActorCache interface {
	GetActor(ctx context.Context, id uuid.UUID) (models.Actor, error)
	SetActor(ctx context.Context, actor models.Actor) error
	InvalidateActor(ctx context.Context, id uuid.UUID) error
}

// Cached reads actors through a cache and drops the follower's entry when
// their follow graph changes.
type Cached struct {
	next   Directory
	cache  ActorCache
	logger *zap.Logger
}

func NewCached(next Directory, cache ActorCache, logger *zap.Logger) *Cached {
	return &Cached{next: next, cache: cache, logger: logger}
}

func (d *Cached) GetActor(ctx context.Context, id uuid.UUID) (models.Actor, error) {
	if actor, err := d.cache.GetActor(ctx, id); err == nil {
		return actor, nil
	}
	actor, err := d.next.GetActor(ctx, id)
	if err != nil {
		return models.Actor{}, err
	}
	if err := d.cache.SetActor(ctx, actor); err != nil {
		d.logger.Debug("actor cache write skipped", zap.String("actor_id", id.String()), zap.Error(err))
	}
	return actor, nil
}

func (d *Cached) Follow(ctx context.Context, followerID, followeeID uuid.UUID, at time.Time) (bool, error) {
	created, err := d.next.Follow(ctx, followerID, followeeID, at)
	if err != nil {
		return false, err
	}
	d.invalidate(ctx, followerID)
	return created, nil
}

func (d *Cached) Unfollow(ctx context.Context, followerID, followeeID uuid.UUID) error {
	if err := d.next.Unfollow(ctx, followerID, followeeID); err != nil {
		return err
	}
	d.invalidate(ctx, followerID)
	return nil
}

func (d *Cached) invalidate(ctx context.Context, id uuid.UUID) {
	if err := d.cache.InvalidateActor(ctx, id); err != nil {
		d.logger.Debug("actor cache invalidation skipped", zap.String("actor_id", id.String()), zap.Error(err))
	}
}
