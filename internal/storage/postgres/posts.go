package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/repostsleuth/sleuth/internal/storage"
	"github.com/repostsleuth/sleuth/internal/types"
)

type postRepo struct {
	tx pgx.Tx
}

const postColumns = `id, post_id, post_type, subreddit, url, url_hash, author, title, permalink, created_at, ingested_at`

func (r *postRepo) GetByPostID(ctx context.Context, postID string) (*types.Post, error) {
	p, err := scanPost(r.tx.QueryRow(ctx, `SELECT `+postColumns+` FROM posts WHERE post_id = $1`, postID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

func (r *postRepo) Add(ctx context.Context, p *types.Post) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("invalid post: %w", err)
	}

	err := r.tx.QueryRow(ctx, `
		INSERT INTO posts (post_id, post_type, subreddit, url, url_hash, author, title, permalink, created_at, ingested_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`, p.PostID, string(p.PostType), p.Subreddit, p.URL, p.URLHash, p.Author, p.Title, p.Permalink,
		p.CreatedAt.UTC(), p.IngestedAt.UTC()).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("failed to insert post %s: %w", p.PostID, err)
	}
	return nil
}

func (r *postRepo) Update(ctx context.Context, p *types.Post) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("invalid post: %w", err)
	}

	err := r.tx.QueryRow(ctx, `
		INSERT INTO posts (post_id, post_type, subreddit, url, url_hash, author, title, permalink, created_at, ingested_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (post_id) DO UPDATE SET
			post_type = EXCLUDED.post_type,
			subreddit = EXCLUDED.subreddit,
			url = EXCLUDED.url,
			url_hash = EXCLUDED.url_hash,
			author = EXCLUDED.author,
			title = EXCLUDED.title,
			permalink = EXCLUDED.permalink,
			created_at = EXCLUDED.created_at,
			ingested_at = EXCLUDED.ingested_at
		RETURNING id
	`, p.PostID, string(p.PostType), p.Subreddit, p.URL, p.URLHash, p.Author, p.Title, p.Permalink,
		p.CreatedAt.UTC(), p.IngestedAt.UTC()).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert post %s: %w", p.PostID, err)
	}
	return nil
}

func (r *postRepo) FindByURLHash(ctx context.Context, hash string, filter storage.LinkFilter) ([]*types.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE url_hash = $1`
	args := []interface{}{hash}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.ExcludePostID != "" {
		query += " AND post_id <> " + arg(filter.ExcludePostID)
	}
	if filter.Subreddit != "" {
		query += " AND lower(subreddit) = lower(" + arg(filter.Subreddit) + ")"
	}
	if !filter.CreatedBefore.IsZero() {
		query += " AND created_at < " + arg(filter.CreatedBefore.UTC())
	}
	if !filter.CreatedAfter.IsZero() {
		query += " AND created_at >= " + arg(filter.CreatedAfter.UTC())
	}
	query += " ORDER BY created_at ASC, id ASC"
	if filter.Limit > 0 {
		query += " LIMIT " + arg(filter.Limit)
	}

	rows, err := r.tx.Query(ctx, query, args...)
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
	if err := r.tx.QueryRow(ctx, `SELECT COUNT(*) FROM posts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count posts: %w", err)
	}
	return n, nil
}

func (r *postRepo) CountByType(ctx context.Context) (map[types.PostType]int, error) {
	rows, err := r.tx.Query(ctx, `SELECT post_type, COUNT(*) FROM posts GROUP BY post_type`)
	if err != nil {
		return nil, fmt.Errorf("failed to count posts by type: %w", err)
	}
	defer rows.Close()

	counts := make(map[types.PostType]int)
	for rows.Next() {
		var (
			postType string
			n        int
		)
		if err := rows.Scan(&postType, &n); err != nil {
			return nil, fmt.Errorf("failed to scan post count: %w", err)
		}
		counts[types.PostType(postType)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating post counts: %w", err)
	}
	return counts, nil
}

func (r *postRepo) Oldest(ctx context.Context) (*types.Post, error) {
	p, err := scanPost(r.tx.QueryRow(ctx, `SELECT `+postColumns+` FROM posts ORDER BY created_at ASC, id ASC LIMIT 1`))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

func (r *postRepo) CountReposts(ctx context.Context) (int, error) {
	var n int
	err := r.tx.QueryRow(ctx, `
		SELECT COUNT(*) FROM posts p
		WHERE p.url_hash <> ''
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

func scanPost(row pgx.Row) (*types.Post, error) {
	var (
		p        types.Post
		postType string
	)
	err := row.Scan(&p.ID, &p.PostID, &postType, &p.Subreddit, &p.URL, &p.URLHash,
		&p.Author, &p.Title, &p.Permalink, &p.CreatedAt, &p.IngestedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan post: %w", err)
	}
	p.PostType = types.PostType(postType)
	p.CreatedAt = p.CreatedAt.UTC()
	p.IngestedAt = p.IngestedAt.UTC()
	return &p, nil
}
