// Package stories manages ephemeral stories: creation with a fixed lifetime,
// deduplicated views and the followed-authors story tray.
package stories

import (
	"context"
	"fmt"
	"strings"
	"time"

	"engagement-service/internal/clock"
	"engagement-service/internal/metrics"
	"engagement-service/internal/models"
	"engagement-service/internal/notify"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const DefaultTTL = 24 * time.Hour

type Store interface {
	CreateStory(ctx context.Context, st *models.Story) error
	GetStory(ctx context.Context, id uuid.UUID) (models.Story, error)
	AddStoryViewer(ctx context.Context, storyID, viewerID uuid.UUID, at time.Time) (int64, bool, error)
	ActiveStoriesByAuthors(ctx context.Context, authorIDs []uuid.UUID, now time.Time) ([]models.Story, error)
	DeactivateStory(ctx context.Context, id uuid.UUID) error
}

type Directory interface {
	GetActor(ctx context.Context, id uuid.UUID) (models.Actor, error)
}

type Dispatcher interface {
	Dispatch(ctx context.Context, events ...notify.Event)
}

type RateLimiter interface {
	CheckRateLimit(ctx context.Context, userID uuid.UUID, action string, limit int, window time.Duration) (bool, error)
}

type Manager struct {
	store    Store
	dir      Directory
	notifier Dispatcher
	clock    clock.Clock
	ttl      time.Duration
	logger   *zap.Logger

	limiter RateLimiter
	limit   int
	window  time.Duration
}

func NewManager(store Store, dir Directory, notifier Dispatcher, clk clock.Clock, ttl time.Duration, logger *zap.Logger) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{
		store:    store,
		dir:      dir,
		notifier: notifier,
		clock:    clk,
		ttl:      ttl,
		logger:   logger,
	}
}

// WithRateLimit caps story creation per author and window.
func (m *Manager) WithRateLimit(limiter RateLimiter, limit int, window time.Duration) *Manager {
	m.limiter = limiter
	m.limit = limit
	m.window = window
	return m
}

// allow fails open when the limiter is unreachable.
func (m *Manager) allow(ctx context.Context, authorID uuid.UUID) error {
	if m.limiter == nil || m.limit <= 0 {
		return nil
	}
	ok, err := m.limiter.CheckRateLimit(ctx, authorID, "story", m.limit, m.window)
	if err != nil {
		m.logger.Warn("rate limit check failed", zap.String("action", "story"), zap.Error(err))
		return nil
	}
	if !ok {
		return fmt.Errorf("story by %s: %w", authorID, models.ErrRateLimited)
	}
	return nil
}

func (m *Manager) Create(ctx context.Context, authorID uuid.UUID, req models.CreateStoryRequest) (models.Story, error) {
	if strings.TrimSpace(req.Media.URL) == "" {
		return models.Story{}, fmt.Errorf("story media url: %w", models.ErrInvalid)
	}
	if req.Media.Kind != models.MediaImage && req.Media.Kind != models.MediaVideo {
		return models.Story{}, fmt.Errorf("story media kind %q: %w", req.Media.Kind, models.ErrInvalid)
	}
	if err := m.allow(ctx, authorID); err != nil {
		return models.Story{}, err
	}

	now := m.clock.Now()
	story := models.Story{
		ID:        uuid.New(),
		AuthorID:  authorID,
		Media:     req.Media,
		Caption:   strings.TrimSpace(req.Caption),
		Location:  strings.TrimSpace(req.Location),
		Tags:      req.Tags,
		Mentions:  req.Mentions,
		IsActive:  true,
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}
	if err := m.store.CreateStory(ctx, &story); err != nil {
		return models.Story{}, fmt.Errorf("create story: %w", err)
	}
	metrics.StoriesCreatedTotal.Inc()
	m.logger.Info("story created",
		zap.String("story_id", story.ID.String()),
		zap.String("author_id", authorID.String()),
		zap.Time("expires_at", story.ExpiresAt))

	m.notifier.Dispatch(ctx, notify.Mentions(authorID, models.Subject{Type: models.SubjectStory, ID: story.ID}, story.Mentions)...)
	return story, nil
}

// RecordView adds viewerID to the story's viewers once and returns the view
// count. Repeat views change nothing. Stories that are no longer visible
// count as missing.
func (m *Manager) RecordView(ctx context.Context, storyID, viewerID uuid.UUID) (int64, error) {
	now := m.clock.Now()
	story, err := m.store.GetStory(ctx, storyID)
	if err != nil {
		return 0, err
	}
	if !story.Visible(now) {
		return 0, models.NotFound("story", storyID)
	}

	count, added, err := m.store.AddStoryViewer(ctx, storyID, viewerID, now)
	if err != nil {
		return 0, fmt.Errorf("record view: %w", err)
	}
	if !added {
		return count, nil
	}
	metrics.StoryViewsTotal.Inc()

	if viewerID != story.AuthorID {
		m.notifier.Dispatch(ctx, notify.Event{
			Kind:        models.KindStoryView,
			ActorID:     viewerID,
			RecipientID: story.AuthorID,
			Subject:     &models.Subject{Type: models.SubjectStory, ID: storyID},
		})
	}
	return count, nil
}

// ActiveForFollowing returns the visible stories of every author the viewer
// follows, grouped by author, oldest first within and across groups.
func (m *Manager) ActiveForFollowing(ctx context.Context, viewerID uuid.UUID) ([]models.StoryGroup, error) {
	viewer, err := m.dir.GetActor(ctx, viewerID)
	if err != nil {
		return nil, fmt.Errorf("load viewer: %w", err)
	}
	groups := []models.StoryGroup{}
	if len(viewer.FollowingIDs) == 0 {
		return groups, nil
	}

	now := m.clock.Now()
	stories, err := m.store.ActiveStoriesByAuthors(ctx, viewer.FollowingIDs, now)
	if err != nil {
		return nil, err
	}

	index := make(map[uuid.UUID]int)
	for _, st := range stories {
		if !st.Visible(now) {
			continue
		}
		i, ok := index[st.AuthorID]
		if !ok {
			i = len(groups)
			index[st.AuthorID] = i
			groups = append(groups, models.StoryGroup{AuthorID: st.AuthorID})
		}
		groups[i].Stories = append(groups[i].Stories, st)
	}
	return groups, nil
}

func (m *Manager) Get(ctx context.Context, storyID uuid.UUID) (models.Story, error) {
	story, err := m.store.GetStory(ctx, storyID)
	if err != nil {
		return models.Story{}, err
	}
	if !story.Visible(m.clock.Now()) {
		return models.Story{}, models.NotFound("story", storyID)
	}
	return story, nil
}

// Deactivate hides a story before it expires. Only its author may do so.
func (m *Manager) Deactivate(ctx context.Context, actorID, storyID uuid.UUID) error {
	story, err := m.store.GetStory(ctx, storyID)
	if err != nil {
		return err
	}
	if story.AuthorID != actorID {
		return fmt.Errorf("deactivate story %s: %w", storyID, models.ErrForbidden)
	}
	return m.store.DeactivateStory(ctx, storyID)
}
