package cache

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilCacheIsSafe(t *testing.T) {
	var c *Cache
	ctx := context.Background()

	_, err := c.GetActor(ctx, uuid.New())
	require.ErrorIs(t, err, ErrUnavailable)
	assert.True(t, IsMiss(err))

	ok, err := c.CheckRateLimit(ctx, uuid.New(), "post", 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "a missing cache must not block writes")

	ids, err := c.PopReconcile(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, ids)

	require.ErrorIs(t, c.EnqueueReconcile(ctx, uuid.New()), ErrUnavailable)
	require.NoError(t, c.Close())
}

func TestIsMiss(t *testing.T) {
	assert.True(t, IsMiss(redis.Nil))
	assert.False(t, IsMiss(context.DeadlineExceeded))
}
