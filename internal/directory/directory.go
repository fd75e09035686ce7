// Package directory answers who an actor is, whom they follow and which
// sports they care about. Accounts themselves are owned elsewhere.
package directory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"engagement-service/internal/models"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

type Directory interface {
	GetActor(ctx context.Context, id uuid.UUID) (models.Actor, error)
	Follow(ctx context.Context, followerID, followeeID uuid.UUID, at time.Time) (bool, error)
	Unfollow(ctx context.Context, followerID, followeeID uuid.UUID) error
}

type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (d *Postgres) GetActor(ctx context.Context, id uuid.UUID) (models.Actor, error) {
	actor := models.Actor{ID: id, FollowingIDs: []uuid.UUID{}, FavoriteSports: []string{}}
	err := d.db.QueryRowContext(ctx, `SELECT name FROM users WHERE id = $1`, id).Scan(&actor.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Actor{}, models.NotFound("actor", id)
	}
	if err != nil {
		return models.Actor{}, err
	}

	rows, err := d.db.QueryContext(ctx, `SELECT followee_id FROM follows WHERE follower_id = $1`, id)
	if err != nil {
		return models.Actor{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var followee uuid.UUID
		if err := rows.Scan(&followee); err != nil {
			return models.Actor{}, err
		}
		actor.FollowingIDs = append(actor.FollowingIDs, followee)
	}
	if err := rows.Err(); err != nil {
		return models.Actor{}, err
	}

	var sports pq.StringArray
	err = d.db.QueryRowContext(ctx, `
		SELECT COALESCE(array_agg(sport ORDER BY sport), '{}') FROM favorite_sports WHERE user_id = $1
	`, id).Scan(&sports)
	if err != nil {
		return models.Actor{}, err
	}
	actor.FavoriteSports = append(actor.FavoriteSports, sports...)
	return actor, nil
}

// Follow records the edge and reports whether it is new.
func (d *Postgres) Follow(ctx context.Context, followerID, followeeID uuid.UUID, at time.Time) (bool, error) {
	res, err := d.db.ExecContext(ctx, `
		INSERT INTO follows (follower_id, followee_id, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (follower_id, followee_id) DO NOTHING
	`, followerID, followeeID, at)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23503" {
		return false, models.NotFound("actor", followeeID)
	}
	if err != nil {
		return false, fmt.Errorf("insert follow: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (d *Postgres) Unfollow(ctx context.Context, followerID, followeeID uuid.UUID) error {
	_, err := d.db.ExecContext(ctx, `
		DELETE FROM follows
		WHERE follower_id = $1 AND followee_id = $2
	`, followerID, followeeID)
	return err
}
