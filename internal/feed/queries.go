package feed

import (
	"context"

	"engagement-service/internal/models"

	"github.com/google/uuid"
)

// DefaultTrendingThreshold is the engagement total a post must exceed to trend.
const DefaultTrendingThreshold = 10

type Store interface {
	PostsByAuthors(ctx context.Context, authorIDs []uuid.UUID, after *models.Cursor, limit int) ([]models.Post, error)
	PostsBySports(ctx context.Context, sports []string, after *models.Cursor, limit int) ([]models.Post, error)
	PostsAboveEngagement(ctx context.Context, threshold int64, after *models.Cursor, limit int) ([]models.Post, error)
	LikedPostIDs(ctx context.Context, actorID uuid.UUID, postIDs []uuid.UUID) (map[uuid.UUID]bool, error)
	SavedPostIDs(ctx context.Context, actorID uuid.UUID, postIDs []uuid.UUID) (map[uuid.UUID]bool, error)
}

// Query yields one candidate set: feed-visible posts strictly after the
// cursor, newest first, at most limit of them.
type Query interface {
	Name() string
	Candidates(ctx context.Context, viewer models.Actor, after *models.Cursor, limit int) ([]models.Post, error)
}

// Social selects posts by authors the viewer follows.
type Social struct {
	Store Store
}

func (Social) Name() string { return "social" }

func (q Social) Candidates(ctx context.Context, viewer models.Actor, after *models.Cursor, limit int) ([]models.Post, error) {
	if len(viewer.FollowingIDs) == 0 {
		return nil, nil
	}
	return q.Store.PostsByAuthors(ctx, viewer.FollowingIDs, after, limit)
}

// Affinity selects posts tagged with one of the viewer's favorite sports.
type Affinity struct {
	Store Store
}

func (Affinity) Name() string { return "affinity" }

func (q Affinity) Candidates(ctx context.Context, viewer models.Actor, after *models.Cursor, limit int) ([]models.Post, error) {
	if len(viewer.FavoriteSports) == 0 {
		return nil, nil
	}
	return q.Store.PostsBySports(ctx, viewer.FavoriteSports, after, limit)
}

// Trending selects posts whose likes, comments and shares add up to more
// than Threshold.
type Trending struct {
	Store     Store
	Threshold int64
}

func (Trending) Name() string { return "trending" }

func (q Trending) Candidates(ctx context.Context, _ models.Actor, after *models.Cursor, limit int) ([]models.Post, error) {
	return q.Store.PostsAboveEngagement(ctx, q.Threshold, after, limit)
}
