package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"crosspost/internal/domain"
)

// EnsureSchema creates tables if they don't exist.
func EnsureSchema(db *sql.DB) error {
	schema := `
PRAGMA journal_mode=WAL;
CREATE TABLE IF NOT EXISTS posts (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  caption TEXT NOT NULL DEFAULT '',
  hashtags TEXT NOT NULL DEFAULT '',
  visibility TEXT NOT NULL DEFAULT 'public',
  scheduled_time DATETIME NOT NULL,
  status TEXT NOT NULL CHECK(status IN ('scheduled','publishing','published','failed','partial')) DEFAULT 'scheduled',
  error TEXT,
  created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_posts_due ON posts(status, scheduled_time);
CREATE TABLE IF NOT EXISTS platform_targets (
  id TEXT PRIMARY KEY,
  post_id TEXT NOT NULL,
  platform TEXT NOT NULL,
  status TEXT NOT NULL CHECK(status IN ('scheduled','publishing','published','failed')) DEFAULT 'scheduled',
  external_id TEXT,
  error TEXT,
  published_at DATETIME,
  FOREIGN KEY(post_id) REFERENCES posts(id),
  UNIQUE(post_id, platform)
);
CREATE INDEX IF NOT EXISTS idx_targets_post ON platform_targets(post_id);
CREATE TABLE IF NOT EXISTS social_accounts (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  platform TEXT NOT NULL,
  username TEXT NOT NULL DEFAULT '',
  access_token TEXT NOT NULL,
  refresh_token TEXT NOT NULL DEFAULT '',
  token_expires_at DATETIME,
  created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  UNIQUE(user_id, platform)
);
CREATE TABLE IF NOT EXISTS publish_attempts (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  target_id TEXT NOT NULL,
  attempted_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  success INTEGER NOT NULL DEFAULT 0,
  error TEXT,
  FOREIGN KEY(target_id) REFERENCES platform_targets(id)
);
CREATE TABLE IF NOT EXISTS delivery_metrics (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  target_id TEXT NOT NULL,
  metric TEXT NOT NULL,
  value INTEGER NOT NULL DEFAULT 0,
  recorded_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  FOREIGN KEY(target_id) REFERENCES platform_targets(id)
);
CREATE INDEX IF NOT EXISTS idx_metrics_target ON delivery_metrics(target_id);
`
	_, err := db.Exec(schema)
	return err
}

type Store interface {
	CreatePost(ctx context.Context, p domain.Post, platforms []domain.Platform) (string, error)
	GetPost(ctx context.Context, id string) (domain.Post, error)
	GetTargets(ctx context.Context, postID string) ([]domain.PlatformTarget, error)
	DeletePost(ctx context.Context, id string) error
	UpdateScheduledTime(ctx context.Context, id string, at time.Time) error
	ListScheduled(ctx context.Context) ([]domain.Post, error)
	ListDue(ctx context.Context, now time.Time) ([]domain.Post, error)

	// ClaimForPublishing atomically moves a post into publishing if no
	// other pass holds it. Returns false when the claim is lost.
	ClaimForPublishing(ctx context.Context, id string) (bool, error)
	// RecoverStale returns posts stuck in publishing longer than
	// olderThan to scheduled so the registry and sweeper can see them
	// again. A pass that dies with the claim held would otherwise
	// strand its post.
	RecoverStale(ctx context.Context, olderThan time.Duration) (int, error)
	SetPostStatus(ctx context.Context, id string, status domain.PostStatus, errMsg *string) error

	MarkTargetPublishing(ctx context.Context, targetID string) error
	MarkTargetPublished(ctx context.Context, targetID, externalID string, at time.Time) error
	MarkTargetFailed(ctx context.Context, targetID, errMsg string) error
	RecordAttempt(ctx context.Context, targetID string, success bool, errMsg string) error
	DeleteTargetMetrics(ctx context.Context, targetID string) error

	CreateAccount(ctx context.Context, a domain.Account) (string, error)
	DeleteAccount(ctx context.Context, id string) error
	FindAccount(ctx context.Context, userID string, platform domain.Platform) (domain.Account, error)
}

type sqliteStore struct{ db *sql.DB }

func New(db *sql.DB) Store { return &sqliteStore{db: db} }

func (s *sqliteStore) CreatePost(ctx context.Context, p domain.Post, platforms []domain.Platform) (string, error) {
	if len(platforms) == 0 {
		return "", &domain.PreconditionError{Reason: "post needs at least one platform"}
	}
	id := p.ID
	if id == "" {
		id = "pst_" + uuid.NewString()
	}
	if p.Visibility == "" {
		p.Visibility = "public"
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
INSERT INTO posts (id,user_id,caption,hashtags,visibility,scheduled_time,status,created_at,updated_at)
VALUES (?,?,?,?,?,?, 'scheduled', CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
`, id, p.UserID, p.Caption, p.Hashtags, p.Visibility, p.ScheduledTime.UTC())
	if err != nil {
		return "", err
	}
	for _, pl := range platforms {
		_, err = tx.ExecContext(ctx, `
INSERT INTO platform_targets (id,post_id,platform,status) VALUES (?,?,?,'scheduled')
`, "tgt_"+uuid.NewString(), id, string(pl))
		if err != nil {
			return "", err
		}
	}
	return id, tx.Commit()
}

func (s *sqliteStore) GetPost(ctx context.Context, id string) (domain.Post, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id,user_id,caption,hashtags,visibility,scheduled_time,status,error,created_at,updated_at
FROM posts WHERE id=?`, id)
	return scanPost(row)
}

func scanPost(row *sql.Row) (domain.Post, error) {
	var p domain.Post
	var errMsg sql.NullString
	err := row.Scan(&p.ID, &p.UserID, &p.Caption, &p.Hashtags, &p.Visibility, &p.ScheduledTime, &p.Status, &errMsg, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return domain.Post{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Post{}, err
	}
	if errMsg.Valid {
		m := errMsg.String
		p.Error = &m
	}
	return p, nil
}

func (s *sqliteStore) GetTargets(ctx context.Context, postID string) ([]domain.PlatformTarget, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id,post_id,platform,status,external_id,error,published_at
FROM platform_targets WHERE post_id=? ORDER BY platform`, postID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var targets []domain.PlatformTarget
	for rows.Next() {
		var t domain.PlatformTarget
		var extID, errMsg sql.NullString
		var pubAt sql.NullTime
		if err := rows.Scan(&t.ID, &t.PostID, &t.Platform, &t.Status, &extID, &errMsg, &pubAt); err != nil {
			return nil, err
		}
		if extID.Valid {
			v := extID.String
			t.ExternalID = &v
		}
		if errMsg.Valid {
			v := errMsg.String
			t.Error = &v
		}
		if pubAt.Valid {
			v := pubAt.Time
			t.PublishedAt = &v
		}
		targets = append(targets, t)
	}
	return targets, rows.Err()
}

func (s *sqliteStore) DeletePost(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `
DELETE FROM delivery_metrics WHERE target_id IN (SELECT id FROM platform_targets WHERE post_id=?)`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
DELETE FROM publish_attempts WHERE target_id IN (SELECT id FROM platform_targets WHERE post_id=?)`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM platform_targets WHERE post_id=?", id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM posts WHERE id=?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return tx.Commit()
}

func (s *sqliteStore) UpdateScheduledTime(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE posts SET scheduled_time=?, updated_at=CURRENT_TIMESTAMP WHERE id=? AND status='scheduled'`, at.UTC(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *sqliteStore) ListScheduled(ctx context.Context) ([]domain.Post, error) {
	return s.listByStatus(ctx, "SELECT id,user_id,caption,hashtags,visibility,scheduled_time,status,error,created_at,updated_at FROM posts WHERE status='scheduled' ORDER BY scheduled_time")
}

func (s *sqliteStore) ListDue(ctx context.Context, now time.Time) ([]domain.Post, error) {
	return s.listByStatus(ctx, "SELECT id,user_id,caption,hashtags,visibility,scheduled_time,status,error,created_at,updated_at FROM posts WHERE status='scheduled' AND scheduled_time <= ? ORDER BY scheduled_time", now.UTC())
}

func (s *sqliteStore) listByStatus(ctx context.Context, query string, args ...any) ([]domain.Post, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var posts []domain.Post
	for rows.Next() {
		var p domain.Post
		var errMsg sql.NullString
		if err := rows.Scan(&p.ID, &p.UserID, &p.Caption, &p.Hashtags, &p.Visibility, &p.ScheduledTime, &p.Status, &errMsg, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		if errMsg.Valid {
			m := errMsg.String
			p.Error = &m
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

func (s *sqliteStore) ClaimForPublishing(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
UPDATE posts SET status='publishing', updated_at=CURRENT_TIMESTAMP
WHERE id=? AND status IN ('scheduled','partial','failed')`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *sqliteStore) RecoverStale(ctx context.Context, olderThan time.Duration) (int, error) {
	res, err := s.db.ExecContext(ctx, `
UPDATE posts
SET status='scheduled', updated_at=CURRENT_TIMESTAMP
WHERE status='publishing' AND strftime('%s','now') - strftime('%s',updated_at) > ?`, int(olderThan.Seconds()))
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *sqliteStore) SetPostStatus(ctx context.Context, id string, status domain.PostStatus, errMsg *string) error {
	_, err := s.db.ExecContext(ctx, `
UPDATE posts SET status=?, error=?, updated_at=CURRENT_TIMESTAMP WHERE id=?`, string(status), errMsg, id)
	return err
}

func (s *sqliteStore) MarkTargetPublishing(ctx context.Context, targetID string) error {
	_, err := s.db.ExecContext(ctx, `
UPDATE platform_targets SET status='publishing' WHERE id=?`, targetID)
	return err
}

func (s *sqliteStore) MarkTargetPublished(ctx context.Context, targetID, externalID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
UPDATE platform_targets SET status='published', external_id=?, published_at=?, error=NULL WHERE id=?`, externalID, at.UTC(), targetID)
	return err
}

func (s *sqliteStore) MarkTargetFailed(ctx context.Context, targetID, errMsg string) error {
	_, err := s.db.ExecContext(ctx, `
UPDATE platform_targets SET status='failed', error=? WHERE id=?`, errMsg, targetID)
	return err
}

func (s *sqliteStore) RecordAttempt(ctx context.Context, targetID string, success bool, errMsg string) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO publish_attempts(target_id, success, error) VALUES (?,?,?)`, targetID, success, errMsg)
	return err
}

func (s *sqliteStore) DeleteTargetMetrics(ctx context.Context, targetID string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM delivery_metrics WHERE target_id=?", targetID)
	return err
}

func (s *sqliteStore) CreateAccount(ctx context.Context, a domain.Account) (string, error) {
	id := a.ID
	if id == "" {
		id = "acc_" + uuid.NewString()
	}
	if !a.Platform.Valid() {
		return "", fmt.Errorf("unknown platform %q", a.Platform)
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO social_accounts (id,user_id,platform,username,access_token,refresh_token,token_expires_at,created_at)
VALUES (?,?,?,?,?,?,?,CURRENT_TIMESTAMP)
ON CONFLICT(user_id, platform) DO UPDATE SET
  username=excluded.username,
  access_token=excluded.access_token,
  refresh_token=excluded.refresh_token,
  token_expires_at=excluded.token_expires_at
`, id, a.UserID, string(a.Platform), a.Username, a.AccessToken, a.RefreshToken, a.TokenExpiresAt.UTC())
	return id, err
}

func (s *sqliteStore) DeleteAccount(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM social_accounts WHERE id=?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *sqliteStore) FindAccount(ctx context.Context, userID string, platform domain.Platform) (domain.Account, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id,user_id,platform,username,access_token,refresh_token,token_expires_at,created_at
FROM social_accounts WHERE user_id=? AND platform=?`, userID, string(platform))
	var a domain.Account
	var expires sql.NullTime
	err := row.Scan(&a.ID, &a.UserID, &a.Platform, &a.Username, &a.AccessToken, &a.RefreshToken, &expires, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return domain.Account{}, domain.ErrAccountNotConnected
	}
	if err != nil {
		return domain.Account{}, err
	}
	if expires.Valid {
		a.TokenExpiresAt = expires.Time
	}
	return a, nil
}
