package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/repostsleuth/sleuth/internal/types"
)

type repostWatchRepo struct {
	tx *sql.Tx
}

const repostWatchColumns = `id, post_id, username, response_type, enabled, created_at`

func (r *repostWatchRepo) Add(ctx context.Context, w *types.RepostWatch) error {
	if w.PostID == "" || w.User == "" {
		return errors.New("watch requires post_id and user")
	}
	if w.ResponseType == "" {
		w.ResponseType = types.WatchResponseMessage
	}
	if w.CreatedAt.IsZero() {
		w.CreatedAt = time.Now().UTC()
	}

	result, err := r.tx.ExecContext(ctx, `
		INSERT INTO repost_watches (post_id, username, response_type, enabled, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, w.PostID, w.User, w.ResponseType, w.Enabled, w.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert watch (user=%s, post=%s): %w", w.User, w.PostID, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get watch id: %w", err)
	}
	w.ID = id
	return nil
}

func (r *repostWatchRepo) GetByID(ctx context.Context, id int64) (*types.RepostWatch, error) {
	row := r.tx.QueryRowContext(ctx, `SELECT `+repostWatchColumns+` FROM repost_watches WHERE id = ?`, id)
	w, err := scanRepostWatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return w, err
}

func (r *repostWatchRepo) GetAllByPostID(ctx context.Context, postID string) ([]*types.RepostWatch, error) {
	rows, err := r.tx.QueryContext(ctx,
		`SELECT `+repostWatchColumns+` FROM repost_watches WHERE post_id = ? ORDER BY created_at, id`, postID)
	if err != nil {
		return nil, fmt.Errorf("failed to query watches: %w", err)
	}
	defer rows.Close()

	var watches []*types.RepostWatch
	for rows.Next() {
		w, err := scanRepostWatch(rows)
		if err != nil {
			return nil, err
		}
		watches = append(watches, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating watches: %w", err)
	}
	return watches, nil
}

func (r *repostWatchRepo) FindExisting(ctx context.Context, user, postID string) (*types.RepostWatch, error) {
	row := r.tx.QueryRowContext(ctx,
		`SELECT `+repostWatchColumns+` FROM repost_watches WHERE username = ? AND post_id = ?`, user, postID)
	w, err := scanRepostWatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return w, err
}

func (r *repostWatchRepo) Remove(ctx context.Context, w *types.RepostWatch) error {
	if _, err := r.tx.ExecContext(ctx, `DELETE FROM repost_watches WHERE id = ?`, w.ID); err != nil {
		return fmt.Errorf("failed to remove watch %d: %w", w.ID, err)
	}
	return nil
}

func scanRepostWatch(row rowScanner) (*types.RepostWatch, error) {
	var w types.RepostWatch
	err := row.Scan(&w.ID, &w.PostID, &w.User, &w.ResponseType, &w.Enabled, &w.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan watch: %w", err)
	}
	w.CreatedAt = w.CreatedAt.UTC()
	return &w, nil
}
