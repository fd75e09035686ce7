package stories

import (
	"context"
	"sync"
	"testing"
	"time"

	"engagement-service/internal/clock"
	"engagement-service/internal/directory"
	"engagement-service/internal/models"
	"engagement-service/internal/notify"
	"engagement-service/internal/store"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

var t0 = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

type env struct {
	store    *store.Memory
	dir      *directory.Memory
	clock    *clock.Manual
	notifier *notify.Notifier
	mgr      *Manager
}

func newEnv() *env {
	mem := store.NewMemory()
	dir := directory.NewMemory()
	clk := clock.NewManual(t0)
	notifier := notify.New(mem, clk, zap.NewNop(), 4)
	return &env{
		store:    mem,
		dir:      dir,
		clock:    clk,
		notifier: notifier,
		mgr:      NewManager(mem, dir, notifier, clk, DefaultTTL, zap.NewNop()),
	}
}

func (e *env) story(t *testing.T, author uuid.UUID) models.Story {
	t.Helper()
	st, err := e.mgr.Create(context.Background(), author, models.CreateStoryRequest{
		Media: models.Media{URL: "https://cdn.example.com/s.jpg", Kind: models.MediaImage},
	})
	require.NoError(t, err)
	return st
}

func (e *env) inbox(t *testing.T, id uuid.UUID) []models.Notification {
	t.Helper()
	e.notifier.Wait()
	list, err := e.notifier.List(context.Background(), id, 50)
	require.NoError(t, err)
	return list
}

func TestCreate(t *testing.T) {
	e := newEnv()
	st := e.story(t, uuid.New())
	assert.True(t, st.IsActive)
	assert.Equal(t, t0.Add(24*time.Hour), st.ExpiresAt)
	assert.Zero(t, st.ViewCount)

	_, err := e.mgr.Create(context.Background(), uuid.New(), models.CreateStoryRequest{
		Media: models.Media{URL: "https://cdn.example.com/a.gif", Kind: "gif"},
	})
	assert.ErrorIs(t, err, models.ErrInvalid)
}

type stubLimiter struct {
	allowed bool
	err     error
}

func (l stubLimiter) CheckRateLimit(context.Context, uuid.UUID, string, int, time.Duration) (bool, error) {
	return l.allowed, l.err
}

func TestCreate_RateLimited(t *testing.T) {
	e := newEnv()
	e.mgr.WithRateLimit(stubLimiter{allowed: false}, 1, time.Minute)

	_, err := e.mgr.Create(context.Background(), uuid.New(), models.CreateStoryRequest{
		Media: models.Media{URL: "https://cdn.example.com/s.jpg", Kind: models.MediaImage},
	})
	assert.ErrorIs(t, err, models.ErrRateLimited)
}

func TestCreate_LimiterErrorFailsOpenAndWarns(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	e := newEnv()
	e.mgr = NewManager(e.store, e.dir, e.notifier, e.clock, DefaultTTL, zap.New(core)).
		WithRateLimit(stubLimiter{err: assert.AnError}, 1, time.Minute)

	st := e.story(t, uuid.New())
	assert.True(t, st.IsActive)

	warned := logs.FilterMessage("rate limit check failed").All()
	require.Len(t, warned, 1)
	assert.Equal(t, "story", warned[0].ContextMap()["action"])
}

func TestCreate_NotifiesMentions(t *testing.T) {
	e := newEnv()
	author, friend := uuid.New(), uuid.New()
	st, err := e.mgr.Create(context.Background(), author, models.CreateStoryRequest{
		Media:    models.Media{URL: "https://cdn.example.com/v.mp4", Kind: models.MediaVideo},
		Mentions: []uuid.UUID{friend},
	})
	require.NoError(t, err)

	list := e.inbox(t, friend)
	require.Len(t, list, 1)
	assert.Equal(t, models.KindMention, list[0].Kind)
	assert.Equal(t, models.SubjectStory, list[0].Subject.Type)
	assert.Equal(t, st.ID, list[0].Subject.ID)
}

func TestRecordView_Idempotent(t *testing.T) {
	e := newEnv()
	author, viewer := uuid.New(), uuid.New()
	st := e.story(t, author)

	first, err := e.mgr.RecordView(context.Background(), st.ID, viewer)
	require.NoError(t, err)
	second, err := e.mgr.RecordView(context.Background(), st.ID, viewer)
	require.NoError(t, err)
	assert.Equal(t, int64(1), first)
	assert.Equal(t, first, second)

	list := e.inbox(t, author)
	require.Len(t, list, 1)
	assert.Equal(t, models.KindStoryView, list[0].Kind)
	assert.Equal(t, viewer, list[0].ActorID)
}

func TestRecordView_AuthorCountsWithoutNotification(t *testing.T) {
	e := newEnv()
	author := uuid.New()
	st := e.story(t, author)

	count, err := e.mgr.RecordView(context.Background(), st.ID, author)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	assert.Empty(t, e.inbox(t, author))
}

func TestRecordView_ConcurrentSameViewer(t *testing.T) {
	e := newEnv()
	author, viewer := uuid.New(), uuid.New()
	st := e.story(t, author)

	var wg sync.WaitGroup
	for range 25 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.mgr.RecordView(context.Background(), st.ID, viewer)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := e.store.GetStory(context.Background(), st.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.ViewCount)
	assert.Len(t, e.inbox(t, author), 1)
}

func TestRecordView_Missing(t *testing.T) {
	e := newEnv()
	_, err := e.mgr.RecordView(context.Background(), uuid.New(), uuid.New())
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestExpiryWithoutSweep(t *testing.T) {
	e := newEnv()
	author, viewer := uuid.New(), uuid.New()
	e.dir.Put(models.Actor{ID: viewer, FollowingIDs: []uuid.UUID{author}})
	st := e.story(t, author)

	e.clock.Set(t0.Add(23 * time.Hour))
	count, err := e.mgr.RecordView(context.Background(), st.ID, viewer)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	groups, err := e.mgr.ActiveForFollowing(context.Background(), viewer)
	require.NoError(t, err)
	require.Len(t, groups, 1)

	e.clock.Set(t0.Add(25 * time.Hour))
	groups, err = e.mgr.ActiveForFollowing(context.Background(), viewer)
	require.NoError(t, err)
	assert.Empty(t, groups)

	got, err := e.store.GetStory(context.Background(), st.ID)
	require.NoError(t, err)
	assert.True(t, got.IsActive, "flag is untouched until the sweep runs")

	_, err = e.mgr.RecordView(context.Background(), st.ID, uuid.New())
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestActiveForFollowing_GroupsOldestFirst(t *testing.T) {
	e := newEnv()
	a, b, stranger, viewer := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	e.dir.Put(models.Actor{ID: viewer, FollowingIDs: []uuid.UUID{b, a}})

	a1 := e.story(t, a)
	e.clock.Advance(time.Minute)
	b1 := e.story(t, b)
	e.clock.Advance(time.Minute)
	a2 := e.story(t, a)
	e.story(t, stranger)

	groups, err := e.mgr.ActiveForFollowing(context.Background(), viewer)
	require.NoError(t, err)
	require.Len(t, groups, 2)

	assert.Equal(t, a, groups[0].AuthorID)
	require.Len(t, groups[0].Stories, 2)
	assert.Equal(t, a1.ID, groups[0].Stories[0].ID)
	assert.Equal(t, a2.ID, groups[0].Stories[1].ID)

	assert.Equal(t, b, groups[1].AuthorID)
	require.Len(t, groups[1].Stories, 1)
	assert.Equal(t, b1.ID, groups[1].Stories[0].ID)
}

func TestDeactivate(t *testing.T) {
	e := newEnv()
	author, viewer := uuid.New(), uuid.New()
	e.dir.Put(models.Actor{ID: viewer, FollowingIDs: []uuid.UUID{author}})
	st := e.story(t, author)

	require.ErrorIs(t, e.mgr.Deactivate(context.Background(), viewer, st.ID), models.ErrForbidden)
	require.NoError(t, e.mgr.Deactivate(context.Background(), author, st.ID))

	groups, err := e.mgr.ActiveForFollowing(context.Background(), viewer)
	require.NoError(t, err)
	assert.Empty(t, groups)

	_, err = e.mgr.Get(context.Background(), st.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
}
