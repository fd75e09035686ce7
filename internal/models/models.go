package models

import (
	"time"

	"github.com/google/uuid"
)

type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaVideo MediaKind = "video"
)

type Media struct {
	URL  string    `json:"url" binding:"required"`
	Kind MediaKind `json:"kind" binding:"required,oneof=image video"`
}

type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityFriends Visibility = "friends"
	VisibilityPrivate Visibility = "private"
)

// FeedVisible reports whether posts with this visibility may enter a feed.
func (v Visibility) FeedVisible() bool {
	return v == VisibilityPublic || v == VisibilityFriends
}

// Counter names a denormalized engagement counter on a post.
type Counter string

const (
	CounterLikes    Counter = "likes"
	CounterComments Counter = "comments"
	CounterShares   Counter = "shares"
)

func (c Counter) Valid() bool {
	switch c {
	case CounterLikes, CounterComments, CounterShares:
		return true
	}
	return false
}

type Counters struct {
	Likes    int64 `json:"likes_count" db:"likes_count"`
	Comments int64 `json:"comments_count" db:"comments_count"`
	Shares   int64 `json:"shares_count" db:"shares_count"`
}

func (c Counters) Get(name Counter) int64 {
	switch name {
	case CounterLikes:
		return c.Likes
	case CounterComments:
		return c.Comments
	case CounterShares:
		return c.Shares
	}
	return 0
}

func (c Counters) Total() int64 {
	return c.Likes + c.Comments + c.Shares
}

type Post struct {
	ID             uuid.UUID   `json:"id" db:"id"`
	AuthorID       uuid.UUID   `json:"author_id" db:"author_id"`
	Body           string      `json:"body" db:"body"`
	Media          []Media     `json:"media" db:"media"`
	Sport          string      `json:"sport,omitempty" db:"sport"`
	Visibility     Visibility  `json:"visibility" db:"visibility"`
	Mentions       []uuid.UUID `json:"mentions,omitempty" db:"mentions"`
	Counters       Counters    `json:"counters"`
	OriginalPostID *uuid.UUID  `json:"original_post_id,omitempty" db:"original_post_id"`
	IsShare        bool        `json:"is_share" db:"is_share"`
	CreatedAt      time.Time   `json:"created_at" db:"created_at"`
}

// VisibleTo reports whether viewerID may read and engage with the post.
// Private posts exist only for their author.
func (p Post) VisibleTo(viewerID uuid.UUID) bool {
	return p.Visibility != VisibilityPrivate || p.AuthorID == viewerID
}

type Like struct {
	ActorID   uuid.UUID `json:"actor_id" db:"actor_id"`
	PostID    uuid.UUID `json:"post_id" db:"post_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type Comment struct {
	ID        uuid.UUID `json:"id" db:"id"`
	PostID    uuid.UUID `json:"post_id" db:"post_id"`
	AuthorID  uuid.UUID `json:"author_id" db:"author_id"`
	Text      string    `json:"text" db:"text"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type Share struct {
	ActorID        uuid.UUID `json:"actor_id" db:"actor_id"`
	OriginalPostID uuid.UUID `json:"original_post_id" db:"original_post_id"`
	PostID         uuid.UUID `json:"post_id" db:"post_id"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

type Story struct {
	ID        uuid.UUID   `json:"id" db:"id"`
	AuthorID  uuid.UUID   `json:"author_id" db:"author_id"`
	Media     Media       `json:"media"`
	Caption   string      `json:"caption,omitempty" db:"caption"`
	Location  string      `json:"location,omitempty" db:"location"`
	Tags      []string    `json:"tags,omitempty" db:"tags"`
	Mentions  []uuid.UUID `json:"mentions,omitempty" db:"mentions"`
	ViewCount int64       `json:"view_count" db:"view_count"`
	IsActive  bool        `json:"is_active" db:"is_active"`
	CreatedAt time.Time   `json:"created_at" db:"created_at"`
	ExpiresAt time.Time   `json:"expires_at" db:"expires_at"`
}

// Visible reports whether the story may be shown at now. The flag alone is
// not enough: a story past its expiry is hidden even before the sweep runs.
func (s Story) Visible(now time.Time) bool {
	return s.IsActive && now.Before(s.ExpiresAt)
}

type NotificationKind string

const (
	KindLike      NotificationKind = "like"
	KindComment   NotificationKind = "comment"
	KindShare     NotificationKind = "share"
	KindFollow    NotificationKind = "follow"
	KindMention   NotificationKind = "mention"
	KindStoryView NotificationKind = "story_view"
)

type SubjectType string

const (
	SubjectPost    SubjectType = "post"
	SubjectStory   SubjectType = "story"
	SubjectComment SubjectType = "comment"
	SubjectActor   SubjectType = "actor"
)

type Subject struct {
	Type SubjectType `json:"type"`
	ID   uuid.UUID   `json:"id"`
}

type Notification struct {
	ID          uuid.UUID        `json:"id" db:"id"`
	RecipientID uuid.UUID        `json:"recipient_id" db:"recipient_id"`
	ActorID     uuid.UUID        `json:"actor_id" db:"actor_id"`
	Kind        NotificationKind `json:"kind" db:"kind"`
	Subject     *Subject         `json:"subject,omitempty"`
	DedupKey    string           `json:"-" db:"dedup_key"`
	Read        bool             `json:"read" db:"is_read"`
	CreatedAt   time.Time        `json:"created_at" db:"created_at"`
}

// Actor is the slice of a profile the core needs from the identity directory.
type Actor struct {
	ID             uuid.UUID   `json:"id"`
	Name           string      `json:"name"`
	FollowingIDs   []uuid.UUID `json:"following_ids"`
	FavoriteSports []string    `json:"favorite_sports"`
}

type Follow struct {
	FollowerID uuid.UUID `json:"follower_id" db:"follower_id"`
	FolloweeID uuid.UUID `json:"followee_id" db:"followee_id"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// FeedPost is a post decorated with flags relative to the requesting viewer.
type FeedPost struct {
	Post
	IsLiked bool `json:"is_liked"`
	IsSaved bool `json:"is_saved"`
}

type FeedPage struct {
	Posts      []FeedPost `json:"posts"`
	NextCursor *string    `json:"next_cursor"`
}

// PostSearch filters feed-visible posts. Empty fields match everything.
type PostSearch struct {
	Sport    string
	AuthorID *uuid.UUID
	Text     string
}

type PostPage struct {
	Posts      []Post  `json:"posts"`
	NextCursor *string `json:"next_cursor"`
}

type StoryGroup struct {
	AuthorID uuid.UUID `json:"author_id"`
	Stories  []Story   `json:"stories"`
}

type CreatePostRequest struct {
	Body       string      `json:"body" binding:"max=5000"`
	Media      []Media     `json:"media" binding:"dive"`
	Sport      string      `json:"sport"`
	Visibility Visibility  `json:"visibility" binding:"omitempty,oneof=public friends private"`
	Mentions   []uuid.UUID `json:"mentions"`
}

type CreateStoryRequest struct {
	Media    Media       `json:"media" binding:"required"`
	Caption  string      `json:"caption"`
	Location string      `json:"location"`
	Tags     []string    `json:"tags"`
	Mentions []uuid.UUID `json:"mentions"`
}

type CommentRequest struct {
	Text string `json:"text" binding:"required,min=1,max=2000"`
}

type ShareRequest struct {
	Caption string `json:"caption" binding:"max=5000"`
}

type PresignedUploadRequest struct {
	ContentType string `json:"content_type" binding:"required"`
	FileName    string `json:"file_name" binding:"required"`
}

type PresignedUploadResponse struct {
	UploadURL string `json:"upload_url"`
	Media     Media  `json:"media"`
}
