package store

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

const storyColumns = `id, author_id, media_url, media_kind, caption, location, tags, mentions,
	view_count, is_active, created_at, expires_at`

func scanStory(row rowScanner) (models.Story, error) {
	var (
		st       models.Story
		tags     pq.StringArray
		mentions pq.StringArray
	)
	err := row.Scan(&st.ID, &st.AuthorID, &st.Media.URL, &st.Media.Kind, &st.Caption, &st.Location,
		&tags, &mentions, &st.ViewCount, &st.IsActive, &st.CreatedAt, &st.ExpiresAt)
	if err != nil {
		return models.Story{}, err
	}
	if len(tags) > 0 {
		st.Tags = []string(tags)
	}
	if st.Mentions, err = parseUUIDs(mentions); err != nil {
		return models.Story{}, err
	}
	return st, nil
}

func (s *Postgres) CreateStory(ctx context.Context, st *models.Story) error {
	if st.ID == uuid.Nil {
		st.ID = uuid.New()
	}
	tags := st.Tags
	if tags == nil {
		tags = []string{}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stories (id, author_id, media_url, media_kind, caption, location, tags, mentions,
			view_count, is_active, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 0, $9, $10, $11)
	`, st.ID, st.AuthorID, st.Media.URL, st.Media.Kind, st.Caption, st.Location,
		pq.Array(tags), uuidArray(st.Mentions), st.IsActive, st.CreatedAt, st.ExpiresAt)
	return err
}

func (s *Postgres) GetStory(ctx context.Context, id uuid.UUID) (models.Story, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+storyColumns+` FROM stories WHERE id = $1`, id)
	st, err := scanStory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Story{}, models.NotFound("story", id)
	}
	return st, err
}

// AddStoryViewer adds viewerID to the viewer set and bumps view_count in one
// transaction. The primary key on story_viewers serialises concurrent views
// by the same viewer, so only the first one increments.
func (s *Postgres) AddStoryViewer(ctx context.Context, storyID, viewerID uuid.UUID, at time.Time) (int64, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, false, fmt.Errorf("begin view transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO story_viewers (story_id, viewer_id, viewed_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (story_id, viewer_id) DO NOTHING
	`, storyID, viewerID, at)
	if pqCode(err) == pqForeignKeyViolation {
		return 0, false, models.NotFound("story", storyID)
	}
	if err != nil {
		return 0, false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, false, err
	}
	added := n == 1

	var count int64
	if added {
		err = tx.QueryRowContext(ctx, `UPDATE stories SET view_count = view_count + 1 WHERE id = $1 RETURNING view_count`, storyID).Scan(&count)
	} else {
		err = tx.QueryRowContext(ctx, `SELECT view_count FROM stories WHERE id = $1`, storyID).Scan(&count)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, models.NotFound("story", storyID)
	}
	if err != nil {
		return 0, false, err
	}

	if err := tx.Commit(); err != nil {
		return 0, false, fmt.Errorf("commit view transaction: %w", err)
	}
	return count, added, nil
}

// ActiveStoriesByAuthors returns stories visible at now, oldest first.
func (s *Postgres) ActiveStoriesByAuthors(ctx context.Context, authorIDs []uuid.UUID, now time.Time) ([]models.Story, error) {
	if len(authorIDs) == 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+storyColumns+` FROM stories
		WHERE author_id = ANY($1) AND is_active AND expires_at > $2
		ORDER BY created_at ASC, id ASC
	`, uuidArray(authorIDs), now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stories []models.Story
	for rows.Next() {
		st, err := scanStory(rows)
		if err != nil {
			return nil, err
		}
		stories = append(stories, st)
	}
	return stories, rows.Err()
}

func (s *Postgres) DeactivateStory(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `UPDATE stories SET is_active = FALSE WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.NotFound("story", id)
	}
	return nil
}

func (s *Postgres) DeactivateExpiredStories(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE stories SET is_active = FALSE
		WHERE is_active AND expires_at <= $1
	`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Postgres) InsertNotification(ctx context.Context, n *models.Notification) (bool, error) {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	var (
		subjectType sql.NullString
		subjectID   uuid.NullUUID
	)
	if n.Subject != nil {
		subjectType = sql.NullString{String: string(n.Subject.Type), Valid: true}
		subjectID = uuid.NullUUID{UUID: n.Subject.ID, Valid: true}
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, recipient_id, actor_id, kind, subject_type, subject_id, dedup_key, is_read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, FALSE, $8)
		ON CONFLICT (dedup_key) DO NOTHING
	`, n.ID, n.RecipientID, n.ActorID, n.Kind, subjectType, subjectID, n.DedupKey, n.CreatedAt)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

func (s *Postgres) ListNotifications(ctx context.Context, recipientID uuid.UUID, limit int) ([]models.Notification, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, recipient_id, actor_id, kind, subject_type, subject_id, dedup_key, is_read, created_at
		FROM notifications
		WHERE recipient_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, recipientID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Notification{}
	for rows.Next() {
		var (
			n           models.Notification
			subjectType sql.NullString
			subjectID   uuid.NullUUID
		)
		if err := rows.Scan(&n.ID, &n.RecipientID, &n.ActorID, &n.Kind, &subjectType, &subjectID,
			&n.DedupKey, &n.Read, &n.CreatedAt); err != nil {
			return nil, err
		}
		if subjectType.Valid && subjectID.Valid {
			n.Subject = &models.Subject{Type: models.SubjectType(subjectType.String), ID: subjectID.UUID}
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *Postgres) MarkNotificationRead(ctx context.Context, recipientID, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE notifications SET is_read = TRUE WHERE id = $1 AND recipient_id = $2
	`, id, recipientID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.NotFound("notification", id)
	}
	return nil
}
