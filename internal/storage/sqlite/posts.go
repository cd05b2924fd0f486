package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/repostsleuth/sleuth/internal/storage"
	"github.com/repostsleuth/sleuth/internal/types"
)

type postRepo struct {
	tx *sql.Tx
}

const postColumns = `id, post_id, post_type, subreddit, url, url_hash, author, title, permalink, created_at, ingested_at`

func (r *postRepo) GetByPostID(ctx context.Context, postID string) (*types.Post, error) {
	row := r.tx.QueryRowContext(ctx, `SELECT `+postColumns+` FROM posts WHERE post_id = ?`, postID)
	p, err := scanPost(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

func (r *postRepo) Add(ctx context.Context, p *types.Post) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("invalid post: %w", err)
	}

	result, err := r.tx.ExecContext(ctx, `
		INSERT INTO posts (post_id, post_type, subreddit, url, url_hash, author, title, permalink, created_at, ingested_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.PostID, p.PostType, p.Subreddit, p.URL, p.URLHash, p.Author, p.Title, p.Permalink,
		p.CreatedAt.UTC(), p.IngestedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert post %s: %w", p.PostID, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get post id: %w", err)
	}
	p.ID = id
	return nil
}

// Update inserts the post or replaces the row with the same post_id
func (r *postRepo) Update(ctx context.Context, p *types.Post) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("invalid post: %w", err)
	}

	_, err := r.tx.ExecContext(ctx, `
		INSERT INTO posts (post_id, post_type, subreddit, url, url_hash, author, title, permalink, created_at, ingested_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(post_id) DO UPDATE SET
			post_type = excluded.post_type,
			subreddit = excluded.subreddit,
			url = excluded.url,
			url_hash = excluded.url_hash,
			author = excluded.author,
			title = excluded.title,
			permalink = excluded.permalink,
			created_at = excluded.created_at,
			ingested_at = excluded.ingested_at
	`, p.PostID, p.PostType, p.Subreddit, p.URL, p.URLHash, p.Author, p.Title, p.Permalink,
		p.CreatedAt.UTC(), p.IngestedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to upsert post %s: %w", p.PostID, err)
	}

	if err := r.tx.QueryRowContext(ctx, `SELECT id FROM posts WHERE post_id = ?`, p.PostID).Scan(&p.ID); err != nil {
		return fmt.Errorf("failed to read post id: %w", err)
	}
	return nil
}

// FindByURLHash returns posts sharing a normalized URL hash, oldest first
func (r *postRepo) FindByURLHash(ctx context.Context, hash string, filter storage.LinkFilter) ([]*types.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE url_hash = ?`
	args := []interface{}{hash}

	if filter.ExcludePostID != "" {
		query += " AND post_id != ?"
		args = append(args, filter.ExcludePostID)
	}
	if filter.Subreddit != "" {
		query += " AND subreddit = ? COLLATE NOCASE"
		args = append(args, filter.Subreddit)
	}
	if !filter.CreatedBefore.IsZero() {
		query += " AND created_at < ?"
		args = append(args, filter.CreatedBefore.UTC())
	}
	if !filter.CreatedAfter.IsZero() {
		query += " AND created_at >= ?"
		args = append(args, filter.CreatedAfter.UTC())
	}
	query += " ORDER BY created_at ASC, id ASC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := r.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query posts by url hash: %w", err)
	}
	defer rows.Close()

	var posts []*types.Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating posts: %w", err)
	}
	return posts, nil
}

func (r *postRepo) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM posts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count posts: %w", err)
	}
	return n, nil
}

func (r *postRepo) CountByType(ctx context.Context) (map[types.PostType]int, error) {
	rows, err := r.tx.QueryContext(ctx, `SELECT post_type, COUNT(*) FROM posts GROUP BY post_type`)
	if err != nil {
		return nil, fmt.Errorf("failed to count posts by type: %w", err)
	}
	defer rows.Close()

	counts := make(map[types.PostType]int)
	for rows.Next() {
		var (
			postType types.PostType
			n        int
		)
		if err := rows.Scan(&postType, &n); err != nil {
			return nil, fmt.Errorf("failed to scan post count: %w", err)
		}
		counts[postType] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating post counts: %w", err)
	}
	return counts, nil
}

func (r *postRepo) Oldest(ctx context.Context) (*types.Post, error) {
	row := r.tx.QueryRowContext(ctx, `SELECT `+postColumns+` FROM posts ORDER BY created_at ASC, id ASC LIMIT 1`)
	p, err := scanPost(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

// CountReposts counts posts whose URL hash was seen on an earlier post
func (r *postRepo) CountReposts(ctx context.Context) (int, error) {
	var n int
	err := r.tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM posts p
		WHERE p.url_hash != ''
		  AND EXISTS (
			SELECT 1 FROM posts e
			WHERE e.url_hash = p.url_hash AND e.created_at < p.created_at
		  )
	`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count reposts: %w", err)
	}
	return n, nil
}

func scanPost(row rowScanner) (*types.Post, error) {
	var p types.Post
	err := row.Scan(&p.ID, &p.PostID, &p.PostType, &p.Subreddit, &p.URL, &p.URLHash,
		&p.Author, &p.Title, &p.Permalink, &p.CreatedAt, &p.IngestedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan post: %w", err)
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.IngestedAt = p.IngestedAt.UTC()
	return &p, nil
}
