package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

type DB struct {
	*sql.DB
}

func NewDB(connString string) (*DB, error) {
	db, err := sql.Open("postgres", connString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{db}, nil
}

func (db *DB) InitSchema(ctx context.Context) error {
	_, err := db.ExecContext(ctx, Schema)
	return err
}

// Schema is idempotent. Counters carry CHECK (>= 0) constraints.
const Schema = `
	CREATE EXTENSION IF NOT EXISTS "uuid-ossp";

	CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		name TEXT NOT NULL DEFAULT '',
		email TEXT UNIQUE NOT NULL,
		created_at TIMESTAMPTZ DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS favorite_sports (
		user_id UUID REFERENCES users(id) ON DELETE CASCADE,
		sport TEXT NOT NULL,
		PRIMARY KEY (user_id, sport)
	);

	CREATE TABLE IF NOT EXISTS follows (
		follower_id UUID REFERENCES users(id) ON DELETE CASCADE,
		followee_id UUID REFERENCES users(id) ON DELETE CASCADE,
		created_at TIMESTAMPTZ DEFAULT NOW(),
		PRIMARY KEY (follower_id, followee_id)
	);

	CREATE TABLE IF NOT EXISTS posts (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		author_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		body TEXT NOT NULL DEFAULT '',
		media JSONB NOT NULL DEFAULT '[]',
		sport TEXT NOT NULL DEFAULT '',
		visibility TEXT NOT NULL CHECK (visibility IN ('public', 'friends', 'private')),
		mentions UUID[] NOT NULL DEFAULT '{}',
		likes_count BIGINT NOT NULL DEFAULT 0 CHECK (likes_count >= 0),
		comments_count BIGINT NOT NULL DEFAULT 0 CHECK (comments_count >= 0),
		shares_count BIGINT NOT NULL DEFAULT 0 CHECK (shares_count >= 0),
		original_post_id UUID REFERENCES posts(id) ON DELETE SET NULL,
		is_share BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS likes (
		actor_id UUID REFERENCES users(id) ON DELETE CASCADE,
		post_id UUID REFERENCES posts(id) ON DELETE CASCADE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (actor_id, post_id)
	);

	CREATE TABLE IF NOT EXISTS saves (
		actor_id UUID REFERENCES users(id) ON DELETE CASCADE,
		post_id UUID REFERENCES posts(id) ON DELETE CASCADE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (actor_id, post_id)
	);

	CREATE TABLE IF NOT EXISTS comments (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		post_id UUID NOT NULL REFERENCES posts(id) ON DELETE CASCADE,
		author_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		text TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS shares (
		actor_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		original_post_id UUID NOT NULL REFERENCES posts(id) ON DELETE CASCADE,
		post_id UUID NOT NULL REFERENCES posts(id) ON DELETE CASCADE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (post_id)
	);

	CREATE TABLE IF NOT EXISTS stories (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		author_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		media_url TEXT NOT NULL,
		media_kind TEXT NOT NULL CHECK (media_kind IN ('image', 'video')),
		caption TEXT NOT NULL DEFAULT '',
		location TEXT NOT NULL DEFAULT '',
		tags TEXT[] NOT NULL DEFAULT '{}',
		mentions UUID[] NOT NULL DEFAULT '{}',
		view_count BIGINT NOT NULL DEFAULT 0 CHECK (view_count >= 0),
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		expires_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS story_viewers (
		story_id UUID REFERENCES stories(id) ON DELETE CASCADE,
		viewer_id UUID REFERENCES users(id) ON DELETE CASCADE,
		viewed_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (story_id, viewer_id)
	);

	CREATE TABLE IF NOT EXISTS notifications (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		recipient_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		actor_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		kind TEXT NOT NULL,
		subject_type TEXT,
		subject_id UUID,
		dedup_key TEXT UNIQUE NOT NULL,
		is_read BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_posts_created ON posts(created_at DESC, id DESC);
	CREATE INDEX IF NOT EXISTS idx_posts_author_created ON posts(author_id, created_at DESC, id DESC);
	CREATE INDEX IF NOT EXISTS idx_posts_sport_created ON posts(sport, created_at DESC, id DESC);
	CREATE INDEX IF NOT EXISTS idx_posts_engagement ON posts((likes_count + comments_count + shares_count));
	CREATE INDEX IF NOT EXISTS idx_likes_post ON likes(post_id);
	CREATE INDEX IF NOT EXISTS idx_comments_post ON comments(post_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_shares_original ON shares(original_post_id);
	CREATE INDEX IF NOT EXISTS idx_stories_author_created ON stories(author_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_stories_active ON stories(expires_at) WHERE is_active;
	CREATE INDEX IF NOT EXISTS idx_notifications_recipient ON notifications(recipient_id, is_read, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_follows_follower ON follows(follower_id);
	`
