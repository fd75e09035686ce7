package feed

import (
	"bytes"
	"context"
	"testing"
	"time"

	"engagement-service/internal/directory"
	"engagement-service/internal/models"
	"engagement-service/internal/store"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var base = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

type world struct {
	store  *store.Memory
	dir    *directory.Memory
	viewer models.Actor
	friend uuid.UUID
	comp   *Composer
}

func newWorld(t *testing.T) *world {
	t.Helper()
	w := &world{store: store.NewMemory(), dir: directory.NewMemory(), friend: uuid.New()}
	w.viewer = models.Actor{ID: uuid.New(), FollowingIDs: []uuid.UUID{w.friend}, FavoriteSports: []string{"tennis"}}
	w.dir.Put(w.viewer)
	w.comp = NewComposer(w.dir, w.store, DefaultTrendingThreshold, 20, 50, zap.NewNop())
	return w
}

func (w *world) add(t *testing.T, author uuid.UUID, sport string, vis models.Visibility, at time.Time) models.Post {
	t.Helper()
	p := models.Post{ID: uuid.New(), AuthorID: author, Body: "post", Sport: sport, Visibility: vis, CreatedAt: at}
	require.NoError(t, w.store.CreatePost(context.Background(), &p))
	return p
}

func (w *world) engage(t *testing.T, postID uuid.UUID, n int) {
	t.Helper()
	for range n {
		_, err := w.store.AdjustCounter(context.Background(), postID, models.CounterLikes, 1)
		require.NoError(t, err)
	}
}

func ids(page models.FeedPage) []uuid.UUID {
	out := make([]uuid.UUID, len(page.Posts))
	for i, p := range page.Posts {
		out[i] = p.ID
	}
	return out
}

func TestCompose_UnionWithoutDuplicates(t *testing.T) {
	w := newWorld(t)
	all := w.add(t, w.friend, "tennis", models.VisibilityPublic, base)
	w.engage(t, all.ID, 11)
	social := w.add(t, w.friend, "golf", models.VisibilityFriends, base.Add(time.Minute))
	affinity := w.add(t, uuid.New(), "tennis", models.VisibilityPublic, base.Add(2*time.Minute))
	trending := w.add(t, uuid.New(), "golf", models.VisibilityPublic, base.Add(3*time.Minute))
	w.engage(t, trending.ID, 11)
	w.add(t, uuid.New(), "golf", models.VisibilityPublic, base.Add(4*time.Minute))

	page, err := w.comp.Compose(context.Background(), w.viewer.ID, "", 10)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{trending.ID, affinity.ID, social.ID, all.ID}, ids(page))
	assert.Nil(t, page.NextCursor)
}

func TestCompose_ExcludesPrivate(t *testing.T) {
	w := newWorld(t)
	w.add(t, w.friend, "tennis", models.VisibilityPrivate, base)

	page, err := w.comp.Compose(context.Background(), w.viewer.ID, "", 10)
	require.NoError(t, err)
	assert.Empty(t, page.Posts)
}

func TestCompose_TrendingIsStrictlyAboveThreshold(t *testing.T) {
	w := newWorld(t)
	atThreshold := w.add(t, uuid.New(), "golf", models.VisibilityPublic, base)
	w.engage(t, atThreshold.ID, 10)
	above := w.add(t, uuid.New(), "golf", models.VisibilityPublic, base.Add(time.Second))
	w.engage(t, above.ID, 11)

	page, err := w.comp.Compose(context.Background(), w.viewer.ID, "", 10)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{above.ID}, ids(page))
}

func TestCompose_TiesBreakByIDDescending(t *testing.T) {
	w := newWorld(t)
	a := w.add(t, w.friend, "", models.VisibilityPublic, base)
	b := w.add(t, w.friend, "", models.VisibilityPublic, base)

	want := []uuid.UUID{a.ID, b.ID}
	if bytes.Compare(a.ID[:], b.ID[:]) < 0 {
		want = []uuid.UUID{b.ID, a.ID}
	}
	page, err := w.comp.Compose(context.Background(), w.viewer.ID, "", 10)
	require.NoError(t, err)
	assert.Equal(t, want, ids(page))
}

func TestCompose_PaginatesEveryPostOnce(t *testing.T) {
	w := newWorld(t)
	const total = 9
	for i := range total {
		// pairs share a timestamp to exercise the id tie-break across pages
		w.add(t, w.friend, "", models.VisibilityPublic, base.Add(time.Duration(i/2)*time.Minute))
	}

	seen := make(map[uuid.UUID]bool)
	var (
		cursor string
		prev   *models.Post
		pages  int
	)
	for {
		page, err := w.comp.Compose(context.Background(), w.viewer.ID, cursor, 4)
		require.NoError(t, err)
		pages++
		for _, fp := range page.Posts {
			require.False(t, seen[fp.ID], "post repeated across pages")
			seen[fp.ID] = true
			if prev != nil {
				require.True(t, models.FeedLess(*prev, fp.Post))
			}
			p := fp.Post
			prev = &p
		}
		if page.NextCursor == nil {
			assert.Less(t, len(page.Posts), 4)
			break
		}
		cursor = *page.NextCursor
	}
	assert.Len(t, seen, total)
	assert.Equal(t, 3, pages)
}

func TestCompose_ExactMultipleEndsWithEmptyPage(t *testing.T) {
	w := newWorld(t)
	for i := range 4 {
		w.add(t, w.friend, "", models.VisibilityPublic, base.Add(time.Duration(i)*time.Minute))
	}

	page, err := w.comp.Compose(context.Background(), w.viewer.ID, "", 4)
	require.NoError(t, err)
	require.Len(t, page.Posts, 4)
	require.NotNil(t, page.NextCursor)

	page, err = w.comp.Compose(context.Background(), w.viewer.ID, *page.NextCursor, 4)
	require.NoError(t, err)
	assert.Empty(t, page.Posts)
	assert.Nil(t, page.NextCursor)
}

func TestCompose_ViewerFlags(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	liked := w.add(t, w.friend, "", models.VisibilityPublic, base)
	saved := w.add(t, w.friend, "", models.VisibilityPublic, base.Add(time.Minute))

	_, err := w.store.AddLike(ctx, models.Like{ActorID: w.viewer.ID, PostID: liked.ID, CreatedAt: base})
	require.NoError(t, err)
	require.NoError(t, w.store.InsertSave(ctx, w.viewer.ID, saved.ID, base))

	page, err := w.comp.Compose(ctx, w.viewer.ID, "", 10)
	require.NoError(t, err)
	require.Len(t, page.Posts, 2)
	assert.Equal(t, saved.ID, page.Posts[0].ID)
	assert.True(t, page.Posts[0].IsSaved)
	assert.False(t, page.Posts[0].IsLiked)
	assert.True(t, page.Posts[1].IsLiked)
	assert.False(t, page.Posts[1].IsSaved)
}

func TestCompose_Errors(t *testing.T) {
	w := newWorld(t)

	_, err := w.comp.Compose(context.Background(), w.viewer.ID, "not-a-cursor!", 10)
	assert.ErrorIs(t, err, models.ErrInvalid)

	_, err = w.comp.Compose(context.Background(), uuid.New(), "", 10)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestPageSizeClamp(t *testing.T) {
	c := &Composer{defaultPage: 20, maxPage: 50}
	assert.Equal(t, 20, c.pageSize(0))
	assert.Equal(t, 50, c.pageSize(500))
	assert.Equal(t, 7, c.pageSize(7))
}
