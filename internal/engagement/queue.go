package engagement

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// LocalQueue is an in-process reconciliation queue for deployments without redis.
type LocalQueue struct {
	mu    sync.Mutex
	posts map[uuid.UUID]struct{}
}

func NewLocalQueue() *LocalQueue {
	return &LocalQueue{posts: make(map[uuid.UUID]struct{})}
}

func (q *LocalQueue) EnqueueReconcile(_ context.Context, postID uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.posts[postID] = struct{}{}
	return nil
}

func (q *LocalQueue) PopReconcile(_ context.Context, n int64) ([]uuid.UUID, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]uuid.UUID, 0, min(int64(len(q.posts)), n))
	for id := range q.posts {
		if int64(len(out)) >= n {
			break
		}
		out = append(out, id)
		delete(q.posts, id)
	}
	return out, nil
}

func (q *LocalQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.posts)
}
