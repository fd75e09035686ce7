package store

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"engagement-service/internal/models"

	"github.com/google/uuid"
)

type pair struct {
	actor uuid.UUID
	post  uuid.UUID
}

type viewKey struct {
	story  uuid.UUID
	viewer uuid.UUID
}

// Memory is an in-process Content Store with the same uniqueness and
// atomicity guarantees as Postgres. It backs tests and single-node dev runs.
type Memory struct {
	mu            sync.Mutex
	posts         map[uuid.UUID]*models.Post
	likes         map[pair]models.Like
	saves         map[pair]time.Time
	comments      map[uuid.UUID]models.Comment
	shares        map[uuid.UUID]models.Share
	stories       map[uuid.UUID]*models.Story
	viewers       map[viewKey]time.Time
	notifications map[uuid.UUID]*models.Notification
	dedup         map[string]uuid.UUID

	// FailCounter, when set, is consulted before every counter adjustment.
	FailCounter func(postID uuid.UUID, counter models.Counter) error
}

func NewMemory() *Memory {
	return &Memory{
		posts:         make(map[uuid.UUID]*models.Post),
		likes:         make(map[pair]models.Like),
		saves:         make(map[pair]time.Time),
		comments:      make(map[uuid.UUID]models.Comment),
		shares:        make(map[uuid.UUID]models.Share),
		stories:       make(map[uuid.UUID]*models.Story),
		viewers:       make(map[viewKey]time.Time),
		notifications: make(map[uuid.UUID]*models.Notification),
		dedup:         make(map[string]uuid.UUID),
	}
}

func clonePost(p *models.Post) models.Post {
	out := *p
	out.Media = slices.Clone(p.Media)
	out.Mentions = slices.Clone(p.Mentions)
	if p.OriginalPostID != nil {
		id := *p.OriginalPostID
		out.OriginalPostID = &id
	}
	return out
}

func (m *Memory) CreatePost(_ context.Context, p *models.Post) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.OriginalPostID != nil {
		if _, ok := m.posts[*p.OriginalPostID]; !ok {
			return models.NotFound("post", *p.OriginalPostID)
		}
	}
	p.CreatedAt = p.CreatedAt.Truncate(time.Microsecond)
	stored := clonePost(p)
	stored.Counters = models.Counters{}
	m.posts[p.ID] = &stored
	return nil
}

func (m *Memory) GetPost(_ context.Context, id uuid.UUID) (models.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.posts[id]
	if !ok {
		return models.Post{}, models.NotFound("post", id)
	}
	return clonePost(p), nil
}

// DeletePost mirrors the schema's cascade rules.
func (m *Memory) DeletePost(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.posts[id]; !ok {
		return models.NotFound("post", id)
	}
	delete(m.posts, id)
	for k := range m.likes {
		if k.post == id {
			delete(m.likes, k)
		}
	}
	for k := range m.saves {
		if k.post == id {
			delete(m.saves, k)
		}
	}
	for cid, c := range m.comments {
		if c.PostID == id {
			delete(m.comments, cid)
		}
	}
	for pid, sh := range m.shares {
		if sh.PostID == id || sh.OriginalPostID == id {
			delete(m.shares, pid)
		}
	}
	for _, p := range m.posts {
		if p.OriginalPostID != nil && *p.OriginalPostID == id {
			p.OriginalPostID = nil
		}
	}
	return nil
}

func (m *Memory) AdjustCounter(_ context.Context, postID uuid.UUID, counter models.Counter, delta int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.adjustLocked(postID, counter, delta)
}

// adjustLocked applies delta to one counter. Callers hold m.mu.
func (m *Memory) adjustLocked(postID uuid.UUID, counter models.Counter, delta int64) (int64, error) {
	if !counter.Valid() {
		return 0, fmt.Errorf("counter %q: %w", counter, models.ErrInvalid)
	}
	if m.FailCounter != nil {
		if err := m.FailCounter(postID, counter); err != nil {
			return 0, err
		}
	}
	p, ok := m.posts[postID]
	if !ok {
		return 0, models.NotFound("post", postID)
	}
	var field *int64
	switch counter {
	case models.CounterLikes:
		field = &p.Counters.Likes
	case models.CounterComments:
		field = &p.Counters.Comments
	case models.CounterShares:
		field = &p.Counters.Shares
	}
	if *field+delta < 0 {
		return 0, fmt.Errorf("%s on post %s would go negative: %w", counter, postID, models.ErrInconsistentState)
	}
	*field += delta
	return *field, nil
}

func (m *Memory) RecountCounters(_ context.Context, postID uuid.UUID) (models.Counters, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.posts[postID]
	if !ok {
		return models.Counters{}, models.NotFound("post", postID)
	}
	var c models.Counters
	for k := range m.likes {
		if k.post == postID {
			c.Likes++
		}
	}
	for _, cm := range m.comments {
		if cm.PostID == postID {
			c.Comments++
		}
	}
	for _, sh := range m.shares {
		if sh.OriginalPostID == postID {
			c.Shares++
		}
	}
	p.Counters = c
	return c, nil
}

// AddLike stores the like and bumps the like counter under one lock.
func (m *Memory) AddLike(_ context.Context, like models.Like) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.posts[like.PostID]; !ok {
		return 0, models.NotFound("post", like.PostID)
	}
	k := pair{like.ActorID, like.PostID}
	if _, ok := m.likes[k]; ok {
		return 0, fmt.Errorf("like by %s on post %s: %w", like.ActorID, like.PostID, models.ErrDuplicateAction)
	}
	value, err := m.adjustLocked(like.PostID, models.CounterLikes, 1)
	if err != nil {
		return 0, err
	}
	m.likes[k] = like
	return value, nil
}

func (m *Memory) RemoveLike(_ context.Context, actorID, postID uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := pair{actorID, postID}
	if _, ok := m.likes[k]; !ok {
		return 0, fmt.Errorf("like by %s on post %s: %w", actorID, postID, models.ErrNotFound)
	}
	value, err := m.adjustLocked(postID, models.CounterLikes, -1)
	if err != nil {
		return 0, err
	}
	delete(m.likes, k)
	return value, nil
}

// LikeCount is the source-of-truth count used by tests to check counters.
func (m *Memory) LikeCount(postID uuid.UUID) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k := range m.likes {
		if k.post == postID {
			n++
		}
	}
	return n
}

func (m *Memory) LikedPostIDs(_ context.Context, actorID uuid.UUID, postIDs []uuid.UUID) (map[uuid.UUID]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[uuid.UUID]bool, len(postIDs))
	for _, id := range postIDs {
		if _, ok := m.likes[pair{actorID, id}]; ok {
			out[id] = true
		}
	}
	return out, nil
}

func (m *Memory) InsertSave(_ context.Context, actorID, postID uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.posts[postID]; !ok {
		return models.NotFound("post", postID)
	}
	k := pair{actorID, postID}
	if _, ok := m.saves[k]; ok {
		return fmt.Errorf("save by %s on post %s: %w", actorID, postID, models.ErrDuplicateAction)
	}
	m.saves[k] = at
	return nil
}

func (m *Memory) DeleteSave(_ context.Context, actorID, postID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := pair{actorID, postID}
	if _, ok := m.saves[k]; !ok {
		return fmt.Errorf("save by %s on post %s: %w", actorID, postID, models.ErrNotFound)
	}
	delete(m.saves, k)
	return nil
}

func (m *Memory) SavedPostIDs(_ context.Context, actorID uuid.UUID, postIDs []uuid.UUID) (map[uuid.UUID]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[uuid.UUID]bool, len(postIDs))
	for _, id := range postIDs {
		if _, ok := m.saves[pair{actorID, id}]; ok {
			out[id] = true
		}
	}
	return out, nil
}

func (m *Memory) AddComment(_ context.Context, c *models.Comment) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.posts[c.PostID]; !ok {
		return 0, models.NotFound("post", c.PostID)
	}
	value, err := m.adjustLocked(c.PostID, models.CounterComments, 1)
	if err != nil {
		return 0, err
	}
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	m.comments[c.ID] = *c
	return value, nil
}

func (m *Memory) GetComment(_ context.Context, id uuid.UUID) (models.Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.comments[id]
	if !ok {
		return models.Comment{}, models.NotFound("comment", id)
	}
	return c, nil
}

func (m *Memory) RemoveComment(_ context.Context, c models.Comment) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.comments[c.ID]; !ok {
		return 0, models.NotFound("comment", c.ID)
	}
	value, err := m.adjustLocked(c.PostID, models.CounterComments, -1)
	if err != nil {
		return 0, err
	}
	delete(m.comments, c.ID)
	return value, nil
}

func (m *Memory) ListComments(_ context.Context, postID uuid.UUID, limit int) ([]models.Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Comment{}
	for _, c := range m.comments {
		if c.PostID == postID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) InsertShare(_ context.Context, share models.Share) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.posts[share.OriginalPostID]; !ok {
		return models.NotFound("post", share.OriginalPostID)
	}
	if _, ok := m.shares[share.PostID]; ok {
		return fmt.Errorf("share of post %s: %w", share.PostID, models.ErrDuplicateAction)
	}
	m.shares[share.PostID] = share
	return nil
}

func (m *Memory) SharesOfPost(_ context.Context, postID uuid.UUID, limit int) ([]models.Share, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Share{}
	for _, sh := range m.shares {
		if sh.OriginalPostID == postID {
			out = append(out, sh)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].PostID.String() > out[j].PostID.String()
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) SearchPosts(_ context.Context, filter models.PostSearch, after *models.Cursor, limit int) ([]models.Post, error) {
	text := strings.ToLower(filter.Text)
	return m.candidates(func(p *models.Post) bool {
		if filter.Sport != "" && p.Sport != filter.Sport {
			return false
		}
		if filter.AuthorID != nil && p.AuthorID != *filter.AuthorID {
			return false
		}
		return text == "" || strings.Contains(strings.ToLower(p.Body), text)
	}, after, limit), nil
}

func (m *Memory) PostsByAuthors(_ context.Context, authorIDs []uuid.UUID, after *models.Cursor, limit int) ([]models.Post, error) {
	authors := make(map[uuid.UUID]bool, len(authorIDs))
	for _, id := range authorIDs {
		authors[id] = true
	}
	return m.candidates(func(p *models.Post) bool { return authors[p.AuthorID] }, after, limit), nil
}

func (m *Memory) PostsBySports(_ context.Context, sports []string, after *models.Cursor, limit int) ([]models.Post, error) {
	return m.candidates(func(p *models.Post) bool { return slices.Contains(sports, p.Sport) }, after, limit), nil
}

func (m *Memory) PostsAboveEngagement(_ context.Context, threshold int64, after *models.Cursor, limit int) ([]models.Post, error) {
	return m.candidates(func(p *models.Post) bool { return p.Counters.Total() > threshold }, after, limit), nil
}

func (m *Memory) candidates(match func(*models.Post) bool, after *models.Cursor, limit int) []models.Post {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Post
	for _, p := range m.posts {
		if !p.Visibility.FeedVisible() || !match(p) {
			continue
		}
		if after != nil && !after.After(models.CursorOf(*p)) {
			continue
		}
		out = append(out, clonePost(p))
	}
	sort.Slice(out, func(i, j int) bool { return models.FeedLess(out[i], out[j]) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func cloneStory(s *models.Story) models.Story {
	out := *s
	out.Tags = slices.Clone(s.Tags)
	out.Mentions = slices.Clone(s.Mentions)
	return out
}

func (m *Memory) CreateStory(_ context.Context, st *models.Story) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st.ID == uuid.Nil {
		st.ID = uuid.New()
	}
	stored := cloneStory(st)
	stored.ViewCount = 0
	m.stories[st.ID] = &stored
	return nil
}

func (m *Memory) GetStory(_ context.Context, id uuid.UUID) (models.Story, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.stories[id]
	if !ok {
		return models.Story{}, models.NotFound("story", id)
	}
	return cloneStory(st), nil
}

func (m *Memory) AddStoryViewer(_ context.Context, storyID, viewerID uuid.UUID, at time.Time) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.stories[storyID]
	if !ok {
		return 0, false, models.NotFound("story", storyID)
	}
	k := viewKey{storyID, viewerID}
	if _, seen := m.viewers[k]; seen {
		return st.ViewCount, false, nil
	}
	m.viewers[k] = at
	st.ViewCount++
	return st.ViewCount, true, nil
}

func (m *Memory) ActiveStoriesByAuthors(_ context.Context, authorIDs []uuid.UUID, now time.Time) ([]models.Story, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Story
	for _, st := range m.stories {
		if slices.Contains(authorIDs, st.AuthorID) && st.Visible(now) {
			out = append(out, cloneStory(st))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (m *Memory) DeactivateStory(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.stories[id]
	if !ok {
		return models.NotFound("story", id)
	}
	st.IsActive = false
	return nil
}

func (m *Memory) DeactivateExpiredStories(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, st := range m.stories {
		if st.IsActive && !now.Before(st.ExpiresAt) {
			st.IsActive = false
			n++
		}
	}
	return n, nil
}

func (m *Memory) InsertNotification(_ context.Context, n *models.Notification) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.dedup[n.DedupKey]; ok {
		return false, nil
	}
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	stored := *n
	m.notifications[n.ID] = &stored
	m.dedup[n.DedupKey] = n.ID
	return true, nil
}

func (m *Memory) ListNotifications(_ context.Context, recipientID uuid.UUID, limit int) ([]models.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Notification{}
	for _, n := range m.notifications {
		if n.RecipientID == recipientID {
			out = append(out, *n)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID.String() > out[j].ID.String()
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) MarkNotificationRead(_ context.Context, recipientID, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notifications[id]
	if !ok || n.RecipientID != recipientID {
		return models.NotFound("notification", id)
	}
	n.Read = true
	return nil
}
