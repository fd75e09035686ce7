package engagement

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"engagement-service/internal/clock"
	"engagement-service/internal/models"
	"engagement-service/internal/notify"
	"engagement-service/internal/store"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixture struct {
	store    *store.Memory
	queue    *LocalQueue
	notifier *notify.Notifier
	clock    *clock.Manual
	svc      *Service
}

type denyLimiter struct{}

func (denyLimiter) CheckRateLimit(context.Context, uuid.UUID, string, int, time.Duration) (bool, error) {
	return false, nil
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mem := store.NewMemory()
	clk := clock.NewManual(time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC))
	logger := zap.NewNop()
	queue := NewLocalQueue()
	notifier := notify.New(mem, clk, logger, 4)
	svc := NewService(mem, NewCounters(mem, queue, logger), notifier, nil, Limits{}, clk, logger)
	return &fixture{store: mem, queue: queue, notifier: notifier, clock: clk, svc: svc}
}

func (f *fixture) post(t *testing.T, author uuid.UUID) models.Post {
	t.Helper()
	p, err := f.svc.CreatePost(context.Background(), author, models.CreatePostRequest{Body: "match day", Sport: "Football"})
	require.NoError(t, err)
	f.clock.Advance(time.Second)
	return p
}

func (f *fixture) inbox(t *testing.T, recipient uuid.UUID) []models.Notification {
	t.Helper()
	f.notifier.Wait()
	list, err := f.notifier.List(context.Background(), recipient, 100)
	require.NoError(t, err)
	return list
}

func TestCreatePost_Defaults(t *testing.T) {
	f := newFixture(t)
	p := f.post(t, uuid.New())
	assert.Equal(t, models.VisibilityPublic, p.Visibility)
	assert.Equal(t, "football", p.Sport)

	_, err := f.svc.CreatePost(context.Background(), uuid.New(), models.CreatePostRequest{Body: "   "})
	assert.ErrorIs(t, err, models.ErrInvalid)
}

func TestCreatePost_NotifiesMentionedActors(t *testing.T) {
	f := newFixture(t)
	a, b, c := uuid.New(), uuid.New(), uuid.New()

	p, err := f.svc.CreatePost(context.Background(), a, models.CreatePostRequest{
		Body:     "great game",
		Mentions: []uuid.UUID{b, c, a},
	})
	require.NoError(t, err)

	for _, id := range []uuid.UUID{b, c} {
		list := f.inbox(t, id)
		require.Len(t, list, 1)
		assert.Equal(t, models.KindMention, list[0].Kind)
		assert.Equal(t, a, list[0].ActorID)
		assert.Equal(t, p.ID, list[0].Subject.ID)
	}
	assert.Empty(t, f.inbox(t, a))
}

func TestLike_ConcurrentActorsCountExactly(t *testing.T) {
	f := newFixture(t)
	p := f.post(t, uuid.New())

	const n = 50
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Like(context.Background(), uuid.New(), p.ID)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := f.store.GetPost(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(n), got.Counters.Likes)
	assert.Equal(t, f.store.LikeCount(p.ID), got.Counters.Likes)
}

func TestLike_ConcurrentDuplicateAcceptsOne(t *testing.T) {
	f := newFixture(t)
	author, actor := uuid.New(), uuid.New()
	p := f.post(t, author)

	const n = 20
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		ok   int
		dups int
	)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Like(context.Background(), actor, p.ID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, models.ErrDuplicateAction):
				dups++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, n-1, dups)
	got, err := f.store.GetPost(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Counters.Likes)
	assert.Len(t, f.inbox(t, author), 1)
}

func TestLike_MissingPost(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Like(context.Background(), uuid.New(), uuid.New())
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestUnlike(t *testing.T) {
	f := newFixture(t)
	actor := uuid.New()
	p := f.post(t, uuid.New())

	_, err := f.svc.Unlike(context.Background(), actor, p.ID)
	require.ErrorIs(t, err, models.ErrNotFound)

	likes, err := f.svc.Like(context.Background(), actor, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), likes)

	likes, err = f.svc.Unlike(context.Background(), actor, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), likes)
}

func TestRelikeDoesNotRenotify(t *testing.T) {
	f := newFixture(t)
	author, actor := uuid.New(), uuid.New()
	p := f.post(t, author)

	_, err := f.svc.Like(context.Background(), actor, p.ID)
	require.NoError(t, err)
	_, err = f.svc.Unlike(context.Background(), actor, p.ID)
	require.NoError(t, err)
	_, err = f.svc.Like(context.Background(), actor, p.ID)
	require.NoError(t, err)

	assert.Len(t, f.inbox(t, author), 1)
}

func TestAdjustCounter_NeverNegative(t *testing.T) {
	f := newFixture(t)
	p := f.post(t, uuid.New())
	counters := NewCounters(f.store, f.queue, zap.NewNop())

	_, err := counters.AdjustCounter(context.Background(), p.ID, models.CounterShares, -1)
	require.ErrorIs(t, err, models.ErrInconsistentState)

	_, err = counters.AdjustCounter(context.Background(), p.ID, models.CounterShares, 2)
	require.ErrorIs(t, err, models.ErrInvalid)

	_, err = counters.AdjustCounter(context.Background(), uuid.New(), models.CounterShares, 1)
	require.ErrorIs(t, err, models.ErrNotFound)

	got, err := f.store.GetPost(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.Counters.Shares)
}

func TestLike_CounterFailureWritesNothing(t *testing.T) {
	f := newFixture(t)
	p := f.post(t, uuid.New())
	actor := uuid.New()
	f.store.FailCounter = func(uuid.UUID, models.Counter) error { return errors.New("deadlock detected") }

	_, err := f.svc.Like(context.Background(), actor, p.ID)
	require.Error(t, err)
	var pf *models.PartialFailure
	assert.False(t, errors.As(err, &pf))
	assert.Zero(t, f.store.LikeCount(p.ID))

	f.store.FailCounter = nil
	likes, err := f.svc.Like(context.Background(), actor, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), likes)
}

func TestLikeUnlike_ConcurrentSameActorStaysConsistent(t *testing.T) {
	f := newFixture(t)
	p := f.post(t, uuid.New())
	actor := uuid.New()

	var slow sync.Once
	f.store.FailCounter = func(uuid.UUID, models.Counter) error {
		slow.Do(func() { time.Sleep(5 * time.Millisecond) })
		return nil
	}

	const rounds = 40
	var wg sync.WaitGroup
	errs := make(chan error, 2*rounds)
	for range rounds {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := f.svc.Like(context.Background(), actor, p.ID)
			errs <- err
		}()
		go func() {
			defer wg.Done()
			_, err := f.svc.Unlike(context.Background(), actor, p.ID)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err == nil {
			continue
		}
		assert.True(t, errors.Is(err, models.ErrDuplicateAction) || errors.Is(err, models.ErrNotFound), err.Error())
		assert.False(t, errors.Is(err, models.ErrInconsistentState))
	}
	got, err := f.store.GetPost(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, f.store.LikeCount(p.ID), got.Counters.Likes)
	assert.Zero(t, f.queue.Len())
}

func TestLike_DriftedCounterIsQueued(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	actor := uuid.New()
	p := f.post(t, uuid.New())

	_, err := f.svc.Like(ctx, actor, p.ID)
	require.NoError(t, err)
	_, err = f.store.AdjustCounter(ctx, p.ID, models.CounterLikes, -1)
	require.NoError(t, err)

	_, err = f.svc.Unlike(ctx, actor, p.ID)
	require.ErrorIs(t, err, models.ErrInconsistentState)
	assert.Equal(t, 1, f.queue.Len())
	assert.Equal(t, int64(1), f.store.LikeCount(p.ID))

	counters, err := f.svc.Reconcile(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counters.Likes)
}

func TestShare_PartialFailureIsReconciled(t *testing.T) {
	f := newFixture(t)
	p := f.post(t, uuid.New())
	f.store.FailCounter = func(uuid.UUID, models.Counter) error { return errors.New("deadlock detected") }

	_, err := f.svc.Share(context.Background(), uuid.New(), p.ID, "")
	var pf *models.PartialFailure
	require.ErrorAs(t, err, &pf)
	assert.Equal(t, p.ID, pf.PostID)
	assert.Equal(t, "share", pf.Step)
	assert.Equal(t, 1, f.queue.Len())

	f.store.FailCounter = nil
	ids, err := f.queue.PopReconcile(context.Background(), 10)
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{p.ID}, ids)

	counters, err := f.svc.Reconcile(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counters.Shares)

	counters, err = f.svc.Reconcile(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counters.Shares)
}

func TestPrivatePostHiddenFromOthers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	author, stranger := uuid.New(), uuid.New()

	p, err := f.svc.CreatePost(ctx, author, models.CreatePostRequest{Body: "secret", Visibility: models.VisibilityPrivate})
	require.NoError(t, err)

	_, err = f.svc.GetPost(ctx, stranger, p.ID)
	require.ErrorIs(t, err, models.ErrNotFound)
	_, err = f.svc.Like(ctx, stranger, p.ID)
	require.ErrorIs(t, err, models.ErrNotFound)
	_, err = f.svc.AddComment(ctx, stranger, p.ID, "hi")
	require.ErrorIs(t, err, models.ErrNotFound)
	_, err = f.svc.ListComments(ctx, stranger, p.ID, 10)
	require.ErrorIs(t, err, models.ErrNotFound)
	_, err = f.svc.Share(ctx, stranger, p.ID, "")
	require.ErrorIs(t, err, models.ErrNotFound)
	_, err = f.svc.ListShares(ctx, stranger, p.ID, 10)
	require.ErrorIs(t, err, models.ErrNotFound)
	require.ErrorIs(t, f.svc.Save(ctx, stranger, p.ID), models.ErrNotFound)

	got, err := f.svc.GetPost(ctx, author, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "secret", got.Body)
	_, err = f.svc.Like(ctx, author, p.ID)
	require.NoError(t, err)
	_, err = f.svc.Share(ctx, author, p.ID, "")
	require.ErrorIs(t, err, models.ErrInvalid)

	stored, err := f.store.GetPost(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.Counters.Likes)
	assert.Zero(t, stored.Counters.Shares)
}

func TestComments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	author, commenter, stranger := uuid.New(), uuid.New(), uuid.New()
	p := f.post(t, author)

	_, err := f.svc.AddComment(ctx, commenter, p.ID, "  ")
	require.ErrorIs(t, err, models.ErrInvalid)

	first, err := f.svc.AddComment(ctx, commenter, p.ID, "what a goal")
	require.NoError(t, err)
	f.clock.Advance(time.Second)
	_, err = f.svc.AddComment(ctx, commenter, p.ID, "again!")
	require.NoError(t, err)

	inbox := f.inbox(t, author)
	assert.Len(t, inbox, 2, "each comment notifies")

	list, err := f.svc.ListComments(ctx, commenter, p.ID, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, first.ID, list[0].ID)

	require.ErrorIs(t, f.svc.DeleteComment(ctx, stranger, first.ID), models.ErrForbidden)
	require.NoError(t, f.svc.DeleteComment(ctx, author, first.ID))

	got, err := f.store.GetPost(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Counters.Comments)
}

func TestShare(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	author, sharer := uuid.New(), uuid.New()
	p := f.post(t, author)

	derived, err := f.svc.Share(ctx, sharer, p.ID, "look at this")
	require.NoError(t, err)
	assert.True(t, derived.IsShare)
	require.NotNil(t, derived.OriginalPostID)
	assert.Equal(t, p.ID, *derived.OriginalPostID)
	assert.Equal(t, sharer, derived.AuthorID)

	original, err := f.store.GetPost(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), original.Counters.Shares)

	inbox := f.inbox(t, author)
	require.Len(t, inbox, 1)
	assert.Equal(t, models.KindShare, inbox[0].Kind)

	require.ErrorIs(t, f.svc.DeletePost(ctx, author, derived.ID), models.ErrForbidden)
	require.NoError(t, f.svc.DeletePost(ctx, sharer, derived.ID))

	original, err = f.store.GetPost(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), original.Counters.Shares)

	counters, err := f.svc.Reconcile(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), counters.Shares)
}

func TestListShares(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	author, first, second := uuid.New(), uuid.New(), uuid.New()
	p := f.post(t, author)

	older, err := f.svc.Share(ctx, first, p.ID, "")
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	newer, err := f.svc.Share(ctx, second, p.ID, "")
	require.NoError(t, err)

	shares, err := f.svc.ListShares(ctx, author, p.ID, 0)
	require.NoError(t, err)
	require.Len(t, shares, 2)
	assert.Equal(t, newer.ID, shares[0].PostID)
	assert.Equal(t, second, shares[0].ActorID)
	assert.Equal(t, older.ID, shares[1].PostID)

	shares, err = f.svc.ListShares(ctx, author, p.ID, 1)
	require.NoError(t, err)
	assert.Len(t, shares, 1)

	_, err = f.svc.ListShares(ctx, author, uuid.New(), 10)
	require.ErrorIs(t, err, models.ErrNotFound)
}

func TestSearchPosts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()

	create := func(author uuid.UUID, body, sport string, visibility models.Visibility) models.Post {
		p, err := f.svc.CreatePost(ctx, author, models.CreatePostRequest{Body: body, Sport: sport, Visibility: visibility})
		require.NoError(t, err)
		f.clock.Advance(time.Second)
		return p
	}
	tennis := create(alice, "Five-set THRILLER", "tennis", "")
	football := create(bob, "A thriller of a derby", "football", "")
	create(bob, "quiet training", "football", "")
	create(alice, "private thriller", "tennis", models.VisibilityPrivate)

	page, err := f.svc.SearchPosts(ctx, models.PostSearch{Text: "thriller"}, "", 10)
	require.NoError(t, err)
	require.Len(t, page.Posts, 2)
	assert.Equal(t, football.ID, page.Posts[0].ID)
	assert.Equal(t, tennis.ID, page.Posts[1].ID)
	assert.Nil(t, page.NextCursor)

	page, err = f.svc.SearchPosts(ctx, models.PostSearch{Sport: " Football ", AuthorID: &bob}, "", 1)
	require.NoError(t, err)
	require.Len(t, page.Posts, 1)
	require.NotNil(t, page.NextCursor)

	page, err = f.svc.SearchPosts(ctx, models.PostSearch{Sport: "football", AuthorID: &bob}, *page.NextCursor, 1)
	require.NoError(t, err)
	require.Len(t, page.Posts, 1)
	assert.Equal(t, football.ID, page.Posts[0].ID)

	page, err = f.svc.SearchPosts(ctx, models.PostSearch{AuthorID: &alice, Sport: "football"}, "", 10)
	require.NoError(t, err)
	assert.Empty(t, page.Posts)

	_, err = f.svc.SearchPosts(ctx, models.PostSearch{}, "bad!", 10)
	require.ErrorIs(t, err, models.ErrInvalid)
}

func TestShare_MissingOriginal(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Share(context.Background(), uuid.New(), uuid.New(), "")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestSave(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	actor := uuid.New()
	p := f.post(t, uuid.New())

	require.NoError(t, f.svc.Save(ctx, actor, p.ID))
	require.ErrorIs(t, f.svc.Save(ctx, actor, p.ID), models.ErrDuplicateAction)
	require.NoError(t, f.svc.Unsave(ctx, actor, p.ID))
	require.ErrorIs(t, f.svc.Unsave(ctx, actor, p.ID), models.ErrNotFound)
}

func TestRateLimited(t *testing.T) {
	f := newFixture(t)
	f.svc.limiter = denyLimiter{}
	f.svc.limits = Limits{Posts: 1, Comments: 1, Window: time.Minute}

	_, err := f.svc.CreatePost(context.Background(), uuid.New(), models.CreatePostRequest{Body: "hi"})
	assert.ErrorIs(t, err, models.ErrRateLimited)
}
