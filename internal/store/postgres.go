package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"engagement-service/internal/models"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
)

var counterColumns = map[models.Counter]string{
	models.CounterLikes:    "likes_count",
	models.CounterComments: "comments_count",
	models.CounterShares:   "shares_count",
}

const postColumns = `id, author_id, body, media, sport, visibility, mentions,
	likes_count, comments_count, shares_count, original_post_id, is_share, created_at`

// Postgres is the Content Store backed by database/sql and lib/pq.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPost(row rowScanner) (models.Post, error) {
	var (
		p        models.Post
		media    []byte
		mentions pq.StringArray
		original uuid.NullUUID
	)
	err := row.Scan(&p.ID, &p.AuthorID, &p.Body, &media, &p.Sport, &p.Visibility, &mentions,
		&p.Counters.Likes, &p.Counters.Comments, &p.Counters.Shares, &original, &p.IsShare, &p.CreatedAt)
	if err != nil {
		return models.Post{}, err
	}
	if len(media) > 0 {
		if err := json.Unmarshal(media, &p.Media); err != nil {
			return models.Post{}, fmt.Errorf("decode media of post %s: %w", p.ID, err)
		}
	}
	if p.Mentions, err = parseUUIDs(mentions); err != nil {
		return models.Post{}, err
	}
	if original.Valid {
		id := original.UUID
		p.OriginalPostID = &id
	}
	return p, nil
}

func parseUUIDs(raw []string) ([]uuid.UUID, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("parse uuid %q: %w", s, err)
		}
		out = append(out, id)
	}
	return out, nil
}

func uuidArray(ids []uuid.UUID) any {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return pq.Array(out)
}

func pqCode(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}

func (s *Postgres) CreatePost(ctx context.Context, p *models.Post) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	media, err := json.Marshal(p.Media)
	if err != nil {
		return fmt.Errorf("encode media: %w", err)
	}
	var original uuid.NullUUID
	if p.OriginalPostID != nil {
		original = uuid.NullUUID{UUID: *p.OriginalPostID, Valid: true}
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO posts (id, author_id, body, media, sport, visibility, mentions, original_post_id, is_share, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, p.ID, p.AuthorID, p.Body, media, p.Sport, p.Visibility, uuidArray(p.Mentions), original, p.IsShare, p.CreatedAt)
	if pqCode(err) == pqForeignKeyViolation && p.OriginalPostID != nil {
		return models.NotFound("post", *p.OriginalPostID)
	}
	return err
}

func (s *Postgres) GetPost(ctx context.Context, id uuid.UUID) (models.Post, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+postColumns+` FROM posts WHERE id = $1`, id)
	p, err := scanPost(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Post{}, models.NotFound("post", id)
	}
	return p, err
}

func (s *Postgres) DeletePost(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM posts WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.NotFound("post", id)
	}
	return nil
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// AdjustCounter applies delta in one guarded statement so concurrent
// adjustments never lose updates and the counter never drops below zero.
func (s *Postgres) AdjustCounter(ctx context.Context, postID uuid.UUID, counter models.Counter, delta int64) (int64, error) {
	return adjustCounter(ctx, s.db, postID, counter, delta)
}

func adjustCounter(ctx context.Context, q querier, postID uuid.UUID, counter models.Counter, delta int64) (int64, error) {
	col, ok := counterColumns[counter]
	if !ok {
		return 0, fmt.Errorf("counter %q: %w", counter, models.ErrInvalid)
	}
	query := fmt.Sprintf(`UPDATE posts SET %[1]s = %[1]s + $1 WHERE id = $2 AND %[1]s + $1 >= 0 RETURNING %[1]s`, col)

	var value int64
	err := q.QueryRowContext(ctx, query, delta, postID).Scan(&value)
	if err == nil {
		return value, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}

	var exists bool
	if err := q.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM posts WHERE id = $1)`, postID).Scan(&exists); err != nil {
		return 0, err
	}
	if !exists {
		return 0, models.NotFound("post", postID)
	}
	return 0, fmt.Errorf("%s on post %s would go negative: %w", counter, postID, models.ErrInconsistentState)
}

// counted runs write and the matching counter step in one transaction, so a
// record and its counter are never observed apart.
func (s *Postgres) counted(ctx context.Context, postID uuid.UUID, counter models.Counter, delta int64, write func(tx *sql.Tx) error) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin %s transaction: %w", counter, err)
	}
	defer tx.Rollback()

	if err := write(tx); err != nil {
		return 0, err
	}
	value, err := adjustCounter(ctx, tx, postID, counter, delta)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit %s transaction: %w", counter, err)
	}
	return value, nil
}

// RecountCounters rebuilds all counters of a post from its engagement records.
func (s *Postgres) RecountCounters(ctx context.Context, postID uuid.UUID) (models.Counters, error) {
	var c models.Counters
	err := s.db.QueryRowContext(ctx, `
		UPDATE posts p SET
			likes_count = (SELECT COUNT(*) FROM likes l WHERE l.post_id = p.id),
			comments_count = (SELECT COUNT(*) FROM comments c WHERE c.post_id = p.id),
			shares_count = (SELECT COUNT(*) FROM shares s WHERE s.original_post_id = p.id)
		WHERE p.id = $1
		RETURNING likes_count, comments_count, shares_count
	`, postID).Scan(&c.Likes, &c.Comments, &c.Shares)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Counters{}, models.NotFound("post", postID)
	}
	return c, err
}

// AddLike stores the like and bumps likes_count, returning the new count.
func (s *Postgres) AddLike(ctx context.Context, like models.Like) (int64, error) {
	return s.counted(ctx, like.PostID, models.CounterLikes, 1, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO likes (actor_id, post_id, created_at) VALUES ($1, $2, $3)
		`, like.ActorID, like.PostID, like.CreatedAt)
		switch pqCode(err) {
		case pqUniqueViolation:
			return fmt.Errorf("like by %s on post %s: %w", like.ActorID, like.PostID, models.ErrDuplicateAction)
		case pqForeignKeyViolation:
			return models.NotFound("post", like.PostID)
		}
		return err
	})
}

// RemoveLike deletes the like and drops likes_count, returning the new count.
func (s *Postgres) RemoveLike(ctx context.Context, actorID, postID uuid.UUID) (int64, error) {
	return s.counted(ctx, postID, models.CounterLikes, -1, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM likes WHERE actor_id = $1 AND post_id = $2`, actorID, postID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("like by %s on post %s: %w", actorID, postID, models.ErrNotFound)
		}
		return nil
	})
}

func (s *Postgres) LikedPostIDs(ctx context.Context, actorID uuid.UUID, postIDs []uuid.UUID) (map[uuid.UUID]bool, error) {
	return s.memberPostIDs(ctx, "likes", actorID, postIDs)
}

func (s *Postgres) InsertSave(ctx context.Context, actorID, postID uuid.UUID, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO saves (actor_id, post_id, created_at) VALUES ($1, $2, $3)
	`, actorID, postID, at)
	switch pqCode(err) {
	case pqUniqueViolation:
		return fmt.Errorf("save by %s on post %s: %w", actorID, postID, models.ErrDuplicateAction)
	case pqForeignKeyViolation:
		return models.NotFound("post", postID)
	}
	return err
}

func (s *Postgres) DeleteSave(ctx context.Context, actorID, postID uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM saves WHERE actor_id = $1 AND post_id = $2`, actorID, postID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("save by %s on post %s: %w", actorID, postID, models.ErrNotFound)
	}
	return nil
}

func (s *Postgres) SavedPostIDs(ctx context.Context, actorID uuid.UUID, postIDs []uuid.UUID) (map[uuid.UUID]bool, error) {
	return s.memberPostIDs(ctx, "saves", actorID, postIDs)
}

func (s *Postgres) memberPostIDs(ctx context.Context, table string, actorID uuid.UUID, postIDs []uuid.UUID) (map[uuid.UUID]bool, error) {
	result := make(map[uuid.UUID]bool, len(postIDs))
	if len(postIDs) == 0 {
		return result, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT post_id FROM `+table+` WHERE actor_id = $1 AND post_id = ANY($2)`,
		actorID, uuidArray(postIDs))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		result[id] = true
	}
	return result, rows.Err()
}

func (s *Postgres) AddComment(ctx context.Context, c *models.Comment) (int64, error) {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return s.counted(ctx, c.PostID, models.CounterComments, 1, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO comments (id, post_id, author_id, text, created_at) VALUES ($1, $2, $3, $4, $5)
		`, c.ID, c.PostID, c.AuthorID, c.Text, c.CreatedAt)
		if pqCode(err) == pqForeignKeyViolation {
			return models.NotFound("post", c.PostID)
		}
		return err
	})
}

func (s *Postgres) GetComment(ctx context.Context, id uuid.UUID) (models.Comment, error) {
	var c models.Comment
	err := s.db.QueryRowContext(ctx, `
		SELECT id, post_id, author_id, text, created_at FROM comments WHERE id = $1
	`, id).Scan(&c.ID, &c.PostID, &c.AuthorID, &c.Text, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Comment{}, models.NotFound("comment", id)
	}
	return c, err
}

func (s *Postgres) RemoveComment(ctx context.Context, c models.Comment) (int64, error) {
	return s.counted(ctx, c.PostID, models.CounterComments, -1, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM comments WHERE id = $1`, c.ID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return models.NotFound("comment", c.ID)
		}
		return nil
	})
}

func (s *Postgres) ListComments(ctx context.Context, postID uuid.UUID, limit int) ([]models.Comment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, post_id, author_id, text, created_at FROM comments
		WHERE post_id = $1 ORDER BY created_at ASC, id ASC LIMIT $2
	`, postID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	comments := []models.Comment{}
	for rows.Next() {
		var c models.Comment
		if err := rows.Scan(&c.ID, &c.PostID, &c.AuthorID, &c.Text, &c.CreatedAt); err != nil {
			return nil, err
		}
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

func (s *Postgres) InsertShare(ctx context.Context, share models.Share) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO shares (actor_id, original_post_id, post_id, created_at) VALUES ($1, $2, $3, $4)
	`, share.ActorID, share.OriginalPostID, share.PostID, share.CreatedAt)
	switch pqCode(err) {
	case pqUniqueViolation:
		return fmt.Errorf("share of post %s: %w", share.PostID, models.ErrDuplicateAction)
	case pqForeignKeyViolation:
		return models.NotFound("post", share.OriginalPostID)
	}
	return err
}

// SharesOfPost lists share records of a post, newest first.
func (s *Postgres) SharesOfPost(ctx context.Context, postID uuid.UUID, limit int) ([]models.Share, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT actor_id, original_post_id, post_id, created_at FROM shares
		WHERE original_post_id = $1 ORDER BY created_at DESC, post_id DESC LIMIT $2
	`, postID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	shares := []models.Share{}
	for rows.Next() {
		var sh models.Share
		if err := rows.Scan(&sh.ActorID, &sh.OriginalPostID, &sh.PostID, &sh.CreatedAt); err != nil {
			return nil, err
		}
		shares = append(shares, sh)
	}
	return shares, rows.Err()
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// SearchPosts returns feed-visible posts matching every set filter, in feed order.
func (s *Postgres) SearchPosts(ctx context.Context, filter models.PostSearch, after *models.Cursor, limit int) ([]models.Post, error) {
	var (
		conds []string
		args  []any
	)
	if filter.Sport != "" {
		args = append(args, filter.Sport)
		conds = append(conds, `sport = $`+strconv.Itoa(len(args)))
	}
	if filter.AuthorID != nil {
		args = append(args, *filter.AuthorID)
		conds = append(conds, `author_id = $`+strconv.Itoa(len(args)))
	}
	if filter.Text != "" {
		args = append(args, "%"+likeEscaper.Replace(filter.Text)+"%")
		conds = append(conds, `body ILIKE $`+strconv.Itoa(len(args)))
	}
	predicate := "TRUE"
	if len(conds) > 0 {
		predicate = strings.Join(conds, " AND ")
	}
	return s.candidates(ctx, predicate, args, after, limit)
}

func (s *Postgres) PostsByAuthors(ctx context.Context, authorIDs []uuid.UUID, after *models.Cursor, limit int) ([]models.Post, error) {
	if len(authorIDs) == 0 {
		return nil, nil
	}
	return s.candidates(ctx, `author_id = ANY($1)`, []any{uuidArray(authorIDs)}, after, limit)
}

func (s *Postgres) PostsBySports(ctx context.Context, sports []string, after *models.Cursor, limit int) ([]models.Post, error) {
	if len(sports) == 0 {
		return nil, nil
	}
	return s.candidates(ctx, `sport = ANY($1)`, []any{pq.Array(sports)}, after, limit)
}

func (s *Postgres) PostsAboveEngagement(ctx context.Context, threshold int64, after *models.Cursor, limit int) ([]models.Post, error) {
	return s.candidates(ctx, `likes_count + comments_count + shares_count > $1`, []any{threshold}, after, limit)
}

// candidates runs one feed predicate, restricted to feed-visible posts
// strictly after the cursor, in feed order.
func (s *Postgres) candidates(ctx context.Context, predicate string, args []any, after *models.Cursor, limit int) ([]models.Post, error) {
	var q strings.Builder
	q.WriteString(`SELECT ` + postColumns + ` FROM posts WHERE ` + predicate)
	q.WriteString(` AND visibility IN ('public', 'friends')`)
	if after != nil {
		n := len(args)
		q.WriteString(` AND (created_at, id) < ($` + strconv.Itoa(n+1) + `, $` + strconv.Itoa(n+2) + `)`)
		args = append(args, after.CreatedAt, after.ID)
	}
	q.WriteString(` ORDER BY created_at DESC, id DESC LIMIT $` + strconv.Itoa(len(args)+1))
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var posts []models.Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}
