package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"engagement-service/internal/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	actorTTL     = 5 * time.Minute
	reconcileKey = "reconcile:posts"
)

var ErrUnavailable = errors.New("cache not available")

type Cache struct {
	client *redis.Client
}

func NewCache(addr, password string, db int) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return &Cache{client: client}, nil
}

// IsMiss reports whether err means the key was absent or the cache is off.
func IsMiss(err error) bool {
	return errors.Is(err, redis.Nil) || errors.Is(err, ErrUnavailable)
}

func (c *Cache) available() bool {
	return c != nil && c.client != nil
}

func (c *Cache) Set(ctx context.Context, key string, value any, expiration time.Duration) error {
	if !c.available() {
		return ErrUnavailable
	}
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, expiration).Err()
}

func (c *Cache) Get(ctx context.Context, key string, dest any) error {
	if !c.available() {
		return ErrUnavailable
	}
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

func (c *Cache) Delete(ctx context.Context, key string) error {
	if !c.available() {
		return ErrUnavailable
	}
	return c.client.Del(ctx, key).Err()
}

func actorKey(id uuid.UUID) string {
	return fmt.Sprintf("actor:%s", id.String())
}

func (c *Cache) GetActor(ctx context.Context, id uuid.UUID) (models.Actor, error) {
	var actor models.Actor
	err := c.Get(ctx, actorKey(id), &actor)
	return actor, err
}

func (c *Cache) SetActor(ctx context.Context, actor models.Actor) error {
	return c.Set(ctx, actorKey(actor.ID), actor, actorTTL)
}

func (c *Cache) InvalidateActor(ctx context.Context, id uuid.UUID) error {
	return c.Delete(ctx, actorKey(id))
}

// CheckRateLimit counts the action in a fixed window and reports whether the
// actor is still under limit. Redis errors fail open.
func (c *Cache) CheckRateLimit(ctx context.Context, userID uuid.UUID, action string, limit int, window time.Duration) (bool, error) {
	if !c.available() {
		return true, nil
	}
	key := fmt.Sprintf("ratelimit:%s:%s", action, userID.String())

	count, err := c.client.Incr(ctx, key).Result()
	if err != nil {
		return true, nil
	}

	if count == 1 {
		c.client.Expire(ctx, key, window)
	}

	return count <= int64(limit), nil
}

// EnqueueReconcile marks a post for counter reconciliation. The queue is a
// set, so repeated failures on one post collapse into one entry.
func (c *Cache) EnqueueReconcile(ctx context.Context, postID uuid.UUID) error {
	if !c.available() {
		return ErrUnavailable
	}
	return c.client.SAdd(ctx, reconcileKey, postID.String()).Err()
}

// PopReconcile removes up to n queued posts.
func (c *Cache) PopReconcile(ctx context.Context, n int64) ([]uuid.UUID, error) {
	if !c.available() {
		return nil, nil
	}
	raw, err := c.client.SPopN(ctx, reconcileKey, n).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		id, err := uuid.Parse(s)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (c *Cache) Ping(ctx context.Context) error {
	if !c.available() {
		return ErrUnavailable
	}
	return c.client.Ping(ctx).Err()
}

func (c *Cache) Close() error {
	if !c.available() {
		return nil
	}
	return c.client.Close()
}
