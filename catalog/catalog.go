// Package catalog archives the posts and pools a run has shown into Postgres,
// so earlier results can be queried without hitting the API again.
package catalog

import (
	"bugmaschine/get621/e621"
	"bugmaschine/get621/logging"
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
	_ "github.com/lib/pq" // PostgreSQL driver
)

type Settings struct {
	Host     string
	Port     int
	Name     string
	User     string
	Password string
}

func (s Settings) dsn() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		s.Host, s.Port, s.User, s.Password, s.Name,
	)
}

type Catalog struct {
	db *sql.DB
}

// Open connects and makes sure the tables exist.
func Open(ctx context.Context, s Settings) (*Catalog, error) {
	db, err := sql.Open("postgres", s.dsn())
	if err != nil {
		return nil, err
	}
	if err = db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not reach catalog database: %w", err)
	}

	c := &Catalog{db: db}
	if err := c.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

func (c *Catalog) Close() error {
	return c.db.Close()
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS posts (
		id BIGINT PRIMARY KEY,
		author TEXT NOT NULL,
		creator_id BIGINT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		status TEXT NOT NULL,
		rating TEXT NOT NULL,
		tags TEXT[] NOT NULL,
		artists TEXT[] NOT NULL,
		parent_id BIGINT,
		children BIGINT[] NOT NULL,
		score BIGINT NOT NULL,
		fav_count BIGINT NOT NULL,
		file_url TEXT NOT NULL,
		file_ext TEXT NOT NULL,
		file_size BIGINT NOT NULL,
		file_md5 TEXT NOT NULL,
		sources TEXT[] NOT NULL,
		description TEXT NOT NULL,
		del_reason TEXT NOT NULL,
		raw JSONB NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS pools (
		id BIGINT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL,
		is_active BOOLEAN NOT NULL,
		is_locked BOOLEAN NOT NULL,
		post_count INTEGER NOT NULL,
		created_at TIMESTAMPTZ,
		updated_at TIMESTAMPTZ,
		user_id BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS pool_posts (
		pool_id BIGINT NOT NULL REFERENCES pools(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		post_id BIGINT NOT NULL,
		PRIMARY KEY (pool_id, position)
	)`,
}

func (c *Catalog) migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("catalog migration failed: %w", err)
		}
	}
	return nil
}

const upsertPost = `
	INSERT INTO posts (
		id, author, creator_id, created_at, status, rating,
		tags, artists, parent_id, children, score, fav_count,
		file_url, file_ext, file_size, file_md5,
		sources, description, del_reason, raw
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
		$11, $12, $13, $14, $15, $16, $17, $18, $19, $20
	)
	ON CONFLICT (id) DO UPDATE SET
		author = EXCLUDED.author,
		status = EXCLUDED.status,
		rating = EXCLUDED.rating,
		tags = EXCLUDED.tags,
		artists = EXCLUDED.artists,
		parent_id = EXCLUDED.parent_id,
		children = EXCLUDED.children,
		score = EXCLUDED.score,
		fav_count = EXCLUDED.fav_count,
		file_url = EXCLUDED.file_url,
		file_ext = EXCLUDED.file_ext,
		file_size = EXCLUDED.file_size,
		file_md5 = EXCLUDED.file_md5,
		sources = EXCLUDED.sources,
		description = EXCLUDED.description,
		del_reason = EXCLUDED.del_reason,
		raw = EXCLUDED.raw
`

func postArgs(p *e621.Post) []any {
	return []any{
		p.ID, p.Author, p.CreatorID, p.CreatedAt, p.Status.String(), p.Rating.String(),
		pq.Array(p.Tags.All()), pq.Array(p.Artists), p.ParentID, pq.Array(p.Children), p.Score, p.FavCount,
		p.File.URL, p.File.Ext, p.File.Size, p.File.MD5,
		pq.Array(p.Sources), p.Description, p.DelReason, rawJSON(p.Raw),
	}
}

func rawJSON(raw []byte) string {
	if len(raw) == 0 {
		return "null"
	}
	return string(raw)
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

// SavePosts inserts or refreshes every post in one transaction.
func (c *Catalog) SavePosts(ctx context.Context, posts []e621.Post) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := savePosts(ctx, tx, posts); err != nil {
		return err
	}
	return tx.Commit()
}

func savePosts(ctx context.Context, tx *sql.Tx, posts []e621.Post) error {
	stmt, err := tx.PrepareContext(ctx, upsertPost)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i := range posts {
		if _, err := stmt.ExecContext(ctx, postArgs(&posts[i])...); err != nil {
			logging.Error("Error upserting post #%d: %v", posts[i].ID, err)
			return err
		}
	}
	return nil
}

// SavePool stores the pool, its posts and their order.
func (c *Catalog) SavePool(ctx context.Context, p *e621.Pool) error {
	query := `
		INSERT INTO pools (
			id, name, description, is_active, is_locked, post_count,
			created_at, updated_at, user_id
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT(id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			is_active = EXCLUDED.is_active,
			is_locked = EXCLUDED.is_locked,
			post_count = EXCLUDED.post_count,
			created_at = EXCLUDED.created_at,
			updated_at = EXCLUDED.updated_at,
			user_id = EXCLUDED.user_id
	`

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, query,
		p.ID, p.Name, p.Description, p.IsActive, p.IsLocked, p.PostCount,
		nullTime(p.CreatedAt), nullTime(p.UpdatedAt), p.UserID,
	)
	if err != nil {
		logging.Error("error upserting pool: %v", err)
		return err
	}

	if err := savePosts(ctx, tx, p.Posts); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `DELETE FROM pool_posts WHERE pool_id = $1`, p.ID)
	if err != nil {
		logging.Error("error clearing pool_posts: %v", err)
		return err
	}

	for i, post := range p.Posts {
		_, err = tx.ExecContext(ctx, `INSERT INTO pool_posts (pool_id, position, post_id) VALUES ($1, $2, $3)`, p.ID, i+1, post.ID)
		if err != nil {
			logging.Error("error inserting pool_post: %v", err)
			return err
		}
	}

	return tx.Commit()
}
