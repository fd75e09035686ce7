// Package feed composes a viewer's home feed from several candidate queries.
package feed

import (
	"context"
	"fmt"
	"sort"

	"engagement-service/internal/metrics"
	"engagement-service/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type Directory interface {
	GetActor(ctx context.Context, id uuid.UUID) (models.Actor, error)
}

type Composer struct {
	dir         Directory
	store       Store
	queries     []Query
	defaultPage int
	maxPage     int
	logger      *zap.Logger
}

// NewComposer wires the social, affinity and trending queries.
func NewComposer(dir Directory, store Store, trendingThreshold int64, defaultPage, maxPage int, logger *zap.Logger) *Composer {
	return &Composer{
		dir:   dir,
		store: store,
		queries: []Query{
			Social{Store: store},
			Affinity{Store: store},
			Trending{Store: store, Threshold: trendingThreshold},
		},
		defaultPage: defaultPage,
		maxPage:     maxPage,
		logger:      logger,
	}
}

func (c *Composer) pageSize(requested int) int {
	switch {
	case requested <= 0:
		return c.defaultPage
	case requested > c.maxPage:
		return c.maxPage
	}
	return requested
}

// Compose returns one page of the viewer's feed. An empty cursor starts at
// the newest post. NextCursor is nil once a page comes back short.
func (c *Composer) Compose(ctx context.Context, viewerID uuid.UUID, cursor string, pageSize int) (models.FeedPage, error) {
	size := c.pageSize(pageSize)

	var after *models.Cursor
	if cursor != "" {
		decoded, err := models.DecodeCursor(cursor)
		if err != nil {
			return models.FeedPage{}, err
		}
		after = &decoded
	}

	viewer, err := c.dir.GetActor(ctx, viewerID)
	if err != nil {
		return models.FeedPage{}, fmt.Errorf("load viewer: %w", err)
	}

	results := make([][]models.Post, len(c.queries))
	g, gctx := errgroup.WithContext(ctx)
	for i, q := range c.queries {
		g.Go(func() error {
			posts, err := q.Candidates(gctx, viewer, after, size)
			if err != nil {
				return fmt.Errorf("%s candidates: %w", q.Name(), err)
			}
			results[i] = posts
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return models.FeedPage{}, err
	}

	posts := merge(results, size)
	page := models.FeedPage{Posts: make([]models.FeedPost, len(posts))}
	if len(posts) == 0 {
		return page, nil
	}

	ids := make([]uuid.UUID, len(posts))
	for i, p := range posts {
		ids[i] = p.ID
	}
	liked, err := c.store.LikedPostIDs(ctx, viewerID, ids)
	if err != nil {
		return models.FeedPage{}, fmt.Errorf("liked lookup: %w", err)
	}
	saved, err := c.store.SavedPostIDs(ctx, viewerID, ids)
	if err != nil {
		return models.FeedPage{}, fmt.Errorf("saved lookup: %w", err)
	}
	for i, p := range posts {
		page.Posts[i] = models.FeedPost{Post: p, IsLiked: liked[p.ID], IsSaved: saved[p.ID]}
	}

	if len(posts) == size {
		next := models.CursorOf(posts[len(posts)-1]).Encode()
		page.NextCursor = &next
	}
	metrics.FeedPagesTotal.Inc()
	return page, nil
}

// merge unions the candidate sets, drops repeated ids and keeps the first
// limit posts in feed order.
func merge(sets [][]models.Post, limit int) []models.Post {
	seen := make(map[uuid.UUID]bool)
	var all []models.Post
	for _, set := range sets {
		for _, p := range set {
			if seen[p.ID] {
				continue
			}
			seen[p.ID] = true
			all = append(all, p)
		}
	}
	sort.Slice(all, func(i, j int) bool { return models.FeedLess(all[i], all[j]) })
	if len(all) > limit {
		all = all[:limit]
	}
	return all
}
