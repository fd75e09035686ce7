// Package engagement owns posts and the actions taken on them: likes,
// comments, shares and saves. Every action follows the same order:
// validate, mutate the record, then adjust the counter.
package engagement

import (
	"context"
	"errors"
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

const (
	maxCommentPage    = 100
	maxSharePage      = 100
	defaultSearchPage = 20
	maxSearchPage     = 50
)

type Store interface {
	CounterStore
	CreatePost(ctx context.Context, p *models.Post) error
	GetPost(ctx context.Context, id uuid.UUID) (models.Post, error)
	DeletePost(ctx context.Context, id uuid.UUID) error
	AddLike(ctx context.Context, like models.Like) (int64, error)
	RemoveLike(ctx context.Context, actorID, postID uuid.UUID) (int64, error)
	InsertSave(ctx context.Context, actorID, postID uuid.UUID, at time.Time) error
	DeleteSave(ctx context.Context, actorID, postID uuid.UUID) error
	AddComment(ctx context.Context, c *models.Comment) (int64, error)
	GetComment(ctx context.Context, id uuid.UUID) (models.Comment, error)
	RemoveComment(ctx context.Context, c models.Comment) (int64, error)
	ListComments(ctx context.Context, postID uuid.UUID, limit int) ([]models.Comment, error)
	InsertShare(ctx context.Context, share models.Share) error
	SharesOfPost(ctx context.Context, postID uuid.UUID, limit int) ([]models.Share, error)
	SearchPosts(ctx context.Context, filter models.PostSearch, after *models.Cursor, limit int) ([]models.Post, error)
}

type Dispatcher interface {
	Dispatch(ctx context.Context, events ...notify.Event)
}

type RateLimiter interface {
	CheckRateLimit(ctx context.Context, userID uuid.UUID, action string, limit int, window time.Duration) (bool, error)
}

type Limits struct {
	Posts    int
	Comments int
	Window   time.Duration
}

type Service struct {
	store    Store
	counters *Counters
	notifier Dispatcher
	limiter  RateLimiter
	limits   Limits
	clock    clock.Clock
	logger   *zap.Logger
}

func NewService(store Store, counters *Counters, notifier Dispatcher, limiter RateLimiter, limits Limits, clk clock.Clock, logger *zap.Logger) *Service {
	return &Service{
		store:    store,
		counters: counters,
		notifier: notifier,
		limiter:  limiter,
		limits:   limits,
		clock:    clk,
		logger:   logger,
	}
}

func (s *Service) allow(ctx context.Context, actorID uuid.UUID, action string, limit int) error {
	if s.limiter == nil || limit <= 0 {
		return nil
	}
	ok, err := s.limiter.CheckRateLimit(ctx, actorID, action, limit, s.limits.Window)
	if err != nil {
		s.logger.Warn("rate limit check failed", zap.String("action", action), zap.Error(err))
		return nil
	}
	if !ok {
		return fmt.Errorf("%s by %s: %w", action, actorID, models.ErrRateLimited)
	}
	return nil
}

func (s *Service) CreatePost(ctx context.Context, authorID uuid.UUID, req models.CreatePostRequest) (models.Post, error) {
	body := strings.TrimSpace(req.Body)
	if body == "" && len(req.Media) == 0 {
		return models.Post{}, fmt.Errorf("post needs a body or media: %w", models.ErrInvalid)
	}
	visibility := req.Visibility
	if visibility == "" {
		visibility = models.VisibilityPublic
	}
	if err := s.allow(ctx, authorID, "post", s.limits.Posts); err != nil {
		return models.Post{}, err
	}

	post := models.Post{
		ID:         uuid.New(),
		AuthorID:   authorID,
		Body:       body,
		Media:      req.Media,
		Sport:      strings.ToLower(strings.TrimSpace(req.Sport)),
		Visibility: visibility,
		Mentions:   req.Mentions,
		CreatedAt:  s.clock.Now(),
	}
	if err := s.store.CreatePost(ctx, &post); err != nil {
		return models.Post{}, fmt.Errorf("create post: %w", err)
	}
	metrics.PostsCreatedTotal.Inc()

	s.notifier.Dispatch(ctx, notify.Mentions(authorID, models.Subject{Type: models.SubjectPost, ID: post.ID}, post.Mentions)...)
	return post, nil
}

// GetPost returns the post if viewerID may see it. Someone else's private
// post reads as missing.
func (s *Service) GetPost(ctx context.Context, viewerID, postID uuid.UUID) (models.Post, error) {
	post, err := s.store.GetPost(ctx, postID)
	if err != nil {
		return models.Post{}, err
	}
	if !post.VisibleTo(viewerID) {
		return models.Post{}, models.NotFound("post", postID)
	}
	return post, nil
}

// DeletePost removes a post with its likes, saves, comments and share
// records. Deleting a share also gives back the original's share count.
func (s *Service) DeletePost(ctx context.Context, actorID, postID uuid.UUID) error {
	post, err := s.store.GetPost(ctx, postID)
	if err != nil {
		return err
	}
	if post.AuthorID != actorID {
		return fmt.Errorf("delete post %s: %w", postID, models.ErrForbidden)
	}
	if err := s.store.DeletePost(ctx, postID); err != nil {
		return fmt.Errorf("delete post: %w", err)
	}
	if !post.IsShare || post.OriginalPostID == nil {
		return nil
	}
	original := *post.OriginalPostID
	_, err = s.counters.AdjustCounter(ctx, original, models.CounterShares, -1)
	if errors.Is(err, models.ErrNotFound) {
		return nil
	}
	if err != nil {
		return s.counters.partial(ctx, original, "unshare", err)
	}
	return nil
}

// Like records the like and returns the post's new like count.
func (s *Service) Like(ctx context.Context, actorID, postID uuid.UUID) (int64, error) {
	post, err := s.GetPost(ctx, actorID, postID)
	if err != nil {
		return 0, err
	}
	like := models.Like{ActorID: actorID, PostID: postID, CreatedAt: s.clock.Now()}
	likes, err := s.store.AddLike(ctx, like)
	if err := s.counters.applied(ctx, postID, models.CounterLikes, 1, err); err != nil {
		return 0, err
	}

	s.notifier.Dispatch(ctx, notify.Event{
		Kind:        models.KindLike,
		ActorID:     actorID,
		RecipientID: post.AuthorID,
		Subject:     &models.Subject{Type: models.SubjectPost, ID: postID},
	})
	return likes, nil
}

func (s *Service) Unlike(ctx context.Context, actorID, postID uuid.UUID) (int64, error) {
	likes, err := s.store.RemoveLike(ctx, actorID, postID)
	if err := s.counters.applied(ctx, postID, models.CounterLikes, -1, err); err != nil {
		return 0, err
	}
	return likes, nil
}

func (s *Service) AddComment(ctx context.Context, actorID, postID uuid.UUID, text string) (models.Comment, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return models.Comment{}, fmt.Errorf("empty comment: %w", models.ErrInvalid)
	}
	if err := s.allow(ctx, actorID, "comment", s.limits.Comments); err != nil {
		return models.Comment{}, err
	}
	post, err := s.GetPost(ctx, actorID, postID)
	if err != nil {
		return models.Comment{}, err
	}

	comment := models.Comment{
		ID:        uuid.New(),
		PostID:    postID,
		AuthorID:  actorID,
		Text:      text,
		CreatedAt: s.clock.Now(),
	}
	_, err = s.store.AddComment(ctx, &comment)
	if err := s.counters.applied(ctx, postID, models.CounterComments, 1, err); err != nil {
		return models.Comment{}, err
	}

	s.notifier.Dispatch(ctx, notify.Event{
		Kind:        models.KindComment,
		ActorID:     actorID,
		RecipientID: post.AuthorID,
		Subject:     &models.Subject{Type: models.SubjectPost, ID: postID},
		Bucket:      comment.ID.String(),
	})
	return comment, nil
}

// DeleteComment is allowed for the comment's author and the post's author.
func (s *Service) DeleteComment(ctx context.Context, actorID, commentID uuid.UUID) error {
	comment, err := s.store.GetComment(ctx, commentID)
	if err != nil {
		return err
	}
	if comment.AuthorID != actorID {
		post, err := s.store.GetPost(ctx, comment.PostID)
		if err != nil {
			return err
		}
		if post.AuthorID != actorID {
			return fmt.Errorf("delete comment %s: %w", commentID, models.ErrForbidden)
		}
	}
	_, err = s.store.RemoveComment(ctx, comment)
	return s.counters.applied(ctx, comment.PostID, models.CounterComments, -1, err)
}

func (s *Service) ListComments(ctx context.Context, viewerID, postID uuid.UUID, limit int) ([]models.Comment, error) {
	if limit <= 0 || limit > maxCommentPage {
		limit = maxCommentPage
	}
	if _, err := s.GetPost(ctx, viewerID, postID); err != nil {
		return nil, err
	}
	return s.store.ListComments(ctx, postID, limit)
}

// Share creates the derived post, the share record and bumps the original's
// share count. A failed share record removes the derived post again; a
// failed count leaves both records and schedules reconciliation.
func (s *Service) Share(ctx context.Context, actorID, postID uuid.UUID, caption string) (models.Post, error) {
	original, err := s.GetPost(ctx, actorID, postID)
	if err != nil {
		return models.Post{}, err
	}
	if original.Visibility == models.VisibilityPrivate {
		return models.Post{}, fmt.Errorf("share private post %s: %w", postID, models.ErrInvalid)
	}
	if err := s.allow(ctx, actorID, "post", s.limits.Posts); err != nil {
		return models.Post{}, err
	}

	now := s.clock.Now()
	derived := models.Post{
		ID:             uuid.New(),
		AuthorID:       actorID,
		Body:           strings.TrimSpace(caption),
		Visibility:     models.VisibilityPublic,
		OriginalPostID: &original.ID,
		IsShare:        true,
		CreatedAt:      now,
	}
	if err := s.store.CreatePost(ctx, &derived); err != nil {
		return models.Post{}, fmt.Errorf("create shared post: %w", err)
	}
	share := models.Share{ActorID: actorID, OriginalPostID: original.ID, PostID: derived.ID, CreatedAt: now}
	if err := s.store.InsertShare(ctx, share); err != nil {
		if delErr := s.store.DeletePost(context.WithoutCancel(ctx), derived.ID); delErr != nil {
			s.logger.Error("failed to remove orphaned shared post",
				zap.String("post_id", derived.ID.String()), zap.Error(delErr))
		}
		return models.Post{}, fmt.Errorf("record share: %w", err)
	}
	metrics.PostsCreatedTotal.Inc()
	if _, err := s.counters.AdjustCounter(ctx, original.ID, models.CounterShares, 1); err != nil {
		return models.Post{}, s.counters.partial(ctx, original.ID, "share", err)
	}

	s.notifier.Dispatch(ctx, notify.Event{
		Kind:        models.KindShare,
		ActorID:     actorID,
		RecipientID: original.AuthorID,
		Subject:     &models.Subject{Type: models.SubjectPost, ID: original.ID},
		Bucket:      derived.ID.String(),
	})
	return derived, nil
}

func (s *Service) Save(ctx context.Context, actorID, postID uuid.UUID) error {
	if _, err := s.GetPost(ctx, actorID, postID); err != nil {
		return err
	}
	return s.store.InsertSave(ctx, actorID, postID, s.clock.Now())
}

func (s *Service) Unsave(ctx context.Context, actorID, postID uuid.UUID) error {
	return s.store.DeleteSave(ctx, actorID, postID)
}

// ListShares returns the share records of a post, newest first.
func (s *Service) ListShares(ctx context.Context, viewerID, postID uuid.UUID, limit int) ([]models.Share, error) {
	if limit <= 0 || limit > maxSharePage {
		limit = maxSharePage
	}
	if _, err := s.GetPost(ctx, viewerID, postID); err != nil {
		return nil, err
	}
	return s.store.SharesOfPost(ctx, postID, limit)
}

// SearchPosts pages through public and friends posts matching filter,
// newest first.
func (s *Service) SearchPosts(ctx context.Context, filter models.PostSearch, cursor string, limit int) (models.PostPage, error) {
	if limit <= 0 {
		limit = defaultSearchPage
	}
	if limit > maxSearchPage {
		limit = maxSearchPage
	}
	var after *models.Cursor
	if cursor != "" {
		c, err := models.DecodeCursor(cursor)
		if err != nil {
			return models.PostPage{}, err
		}
		after = &c
	}
	filter.Sport = strings.ToLower(strings.TrimSpace(filter.Sport))
	filter.Text = strings.TrimSpace(filter.Text)

	posts, err := s.store.SearchPosts(ctx, filter, after, limit)
	if err != nil {
		return models.PostPage{}, fmt.Errorf("search posts: %w", err)
	}
	page := models.PostPage{Posts: posts}
	if page.Posts == nil {
		page.Posts = []models.Post{}
	}
	if len(posts) == limit {
		next := models.CursorOf(posts[len(posts)-1]).Encode()
		page.NextCursor = &next
	}
	return page, nil
}

// Reconcile recomputes the post's counters from its records.
func (s *Service) Reconcile(ctx context.Context, postID uuid.UUID) (models.Counters, error) {
	return s.counters.Reconcile(ctx, postID)
}
