package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/totemic/totemic-go/internal/model"
)

// PgStore persists whole post documents as JSONB rows with a monotonically
// increasing version column, and user profiles alongside. Commit is a
// compare-and-swap: an UPDATE guarded by the version the caller read, inside
// one transaction with the quota write it pays for.
type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// Pool exposes the underlying pool for health checks and metrics gauges.
func (s *PgStore) Pool() *pgxpool.Pool {
	return s.pool
}

// classify tags timeouts and safely-retryable connection failures as
// ErrTransient so callers can tell them from logical refusals.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if pgconn.Timeout(err) || pgconn.SafeToRetry(err) {
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
	return err
}

// EnsureSchema creates the posts and profiles tables if they do not exist.
func (s *PgStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS posts (
			post_id    VARCHAR(32) PRIMARY KEY,
			doc        JSONB NOT NULL,
			version    BIGINT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_posts_updated_at ON posts (updated_at);

		CREATE TABLE IF NOT EXISTS profiles (
			user_id             VARCHAR(64) PRIMARY KEY,
			tier                VARCHAR(16) NOT NULL DEFAULT 'standard',
			refreshes_remaining INT NOT NULL,
			refresh_reset_at    BIGINT NOT NULL,
			version             BIGINT NOT NULL,
			first_seen          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			last_active         TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	if err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// GetPost returns the post document and its committed version.
func (s *PgStore) GetPost(ctx context.Context, postID string) (*model.Post, uint64, error) {
	var doc []byte
	var version uint64
	err := s.pool.QueryRow(ctx,
		`SELECT doc, version FROM posts WHERE post_id = $1`, postID).Scan(&doc, &version)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, 0, ErrNotFound
	}
	if err != nil {
		return nil, 0, classify(err)
	}

	post, err := DecodePostDoc(postID, doc)
	if err != nil {
		return nil, 0, err
	}
	return post, version, nil
}

// GetQuota returns the user's refresh-quota record.
func (s *PgStore) GetQuota(ctx context.Context, userID string) (*model.RefreshQuota, error) {
	q := &model.RefreshQuota{UserID: userID}
	err := s.pool.QueryRow(ctx, `
		SELECT tier, refreshes_remaining, refresh_reset_at, version
		FROM profiles WHERE user_id = $1`, userID).
		Scan(&q.Tier, &q.RefreshesRemaining, &q.RefreshResetAt, &q.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, classify(err)
	}
	return q, nil
}

// Commit writes the post (and the quota record, when given) in a single
// transaction, guarded by the versions the caller read. Either everything
// commits or nothing does.
func (s *PgStore) Commit(ctx context.Context, post *model.Post, version uint64, quota *model.RefreshQuota) error {
	doc, err := EncodePostDoc(post)
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return classify(err)
	}
	defer tx.Rollback(ctx)

	var tag int64
	if version == 0 {
		ct, err := tx.Exec(ctx, `
			INSERT INTO posts (post_id, doc, version) VALUES ($1, $2, 1)
			ON CONFLICT (post_id) DO NOTHING`, post.PostID, doc)
		if err != nil {
			return classify(err)
		}
		tag = ct.RowsAffected()
	} else {
		ct, err := tx.Exec(ctx, `
			UPDATE posts SET doc = $2, version = version + 1, updated_at = NOW()
			WHERE post_id = $1 AND version = $3`, post.PostID, doc, version)
		if err != nil {
			return classify(err)
		}
		tag = ct.RowsAffected()
	}
	if tag == 0 {
		return ErrConflict
	}

	if quota != nil {
		if err := commitQuota(ctx, tx, quota); err != nil {
			return err
		}
	}

	// Wake the crispness worker.
	if _, err := tx.Exec(ctx, `SELECT pg_notify('like_changes', $1)`, post.PostID); err != nil {
		return classify(err)
	}

	return classify(tx.Commit(ctx))
}

// Rewrite persists a recomputed stored-score document under the same CAS
// guard as Commit, but without the change notification and without touching
// updated_at. A score rewrite is not a ledger change: notifying would feed
// the worker its own writes, and bumping updated_at would make delta sync
// report the post as changed on every pass.
func (s *PgStore) Rewrite(ctx context.Context, post *model.Post, version uint64) error {
	doc, err := EncodePostDoc(post)
	if err != nil {
		return err
	}

	ct, err := s.pool.Exec(ctx, `
		UPDATE posts SET doc = $2, version = version + 1
		WHERE post_id = $1 AND version = $3`, post.PostID, doc, version)
	if err != nil {
		return classify(err)
	}
	if ct.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

func commitQuota(ctx context.Context, tx pgx.Tx, q *model.RefreshQuota) error {
	var tag int64
	if q.Version == 0 {
		ct, err := tx.Exec(ctx, `
			INSERT INTO profiles (user_id, tier, refreshes_remaining, refresh_reset_at, version)
			VALUES ($1, $2, $3, $4, 1)
			ON CONFLICT (user_id) DO NOTHING`,
			q.UserID, q.Tier, q.RefreshesRemaining, q.RefreshResetAt)
		if err != nil {
			return err
		}
		tag = ct.RowsAffected()
	} else {
		ct, err := tx.Exec(ctx, `
			UPDATE profiles
			SET refreshes_remaining = $2, refresh_reset_at = $3,
			    version = version + 1, last_active = NOW()
			WHERE user_id = $1 AND version = $4`,
			q.UserID, q.RefreshesRemaining, q.RefreshResetAt, q.Version)
		if err != nil {
			return err
		}
		tag = ct.RowsAffected()
	}
	if tag == 0 {
		return ErrConflict
	}
	return nil
}

// PostRow is one decoded row from a post listing query.
type PostRow struct {
	Post      *model.Post
	UpdatedAt time.Time
}

// ChangedSince returns posts whose like state changed after the given time,
// oldest first, capped at limit.
func (s *PgStore) ChangedSince(ctx context.Context, since time.Time, limit int) ([]PostRow, error) {
	return s.listPosts(ctx, `
		SELECT post_id, doc, updated_at FROM posts
		WHERE updated_at > $1 ORDER BY updated_at ASC LIMIT $2`, since, limit)
}

// AllPosts returns every post, most recently updated first, capped at limit.
func (s *PgStore) AllPosts(ctx context.Context, limit int) ([]PostRow, error) {
	return s.listPosts(ctx, `
		SELECT post_id, doc, updated_at FROM posts
		ORDER BY updated_at DESC LIMIT $1`, limit)
}

// RecentPostIDs returns ids of posts updated after the given time, for the
// worker's re-decay sweep.
func (s *PgStore) RecentPostIDs(ctx context.Context, since time.Time) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT post_id FROM posts WHERE updated_at > $1`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *PgStore) listPosts(ctx context.Context, query string, args ...any) ([]PostRow, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PostRow
	for rows.Next() {
		var id string
		var doc []byte
		var updated time.Time
		if err := rows.Scan(&id, &doc, &updated); err != nil {
			return nil, err
		}
		post, err := DecodePostDoc(id, doc)
		if err != nil {
			return nil, err
		}
		out = append(out, PostRow{Post: post, UpdatedAt: updated})
	}
	return out, rows.Err()
}

// Stats returns aggregate platform counters.
func (s *PgStore) Stats(ctx context.Context) (*model.StatsResponse, error) {
	query := `
		SELECT
			(SELECT COUNT(*) FROM posts) AS total_posts,
			(SELECT COUNT(*) FROM profiles) AS total_users,
			(SELECT COUNT(*) FROM profiles WHERE last_active > NOW() - INTERVAL '24 hours') AS active_users_24h,
			(SELECT COUNT(*) FROM posts WHERE updated_at > NOW() - INTERVAL '24 hours') AS posts_updated_24h`

	var stats model.StatsResponse
	err := s.pool.QueryRow(ctx, query).Scan(
		&stats.TotalPosts, &stats.TotalUsers,
		&stats.ActiveUsers24h, &stats.PostsUpdated24h,
	)
	if err != nil {
		return nil, err
	}
	return &stats, nil
}
