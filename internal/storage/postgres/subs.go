package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/repostsleuth/sleuth/internal/types"
)

type monitoredSubRepo struct {
	tx pgx.Tx
}

const monitoredSubColumns = `id, name, active, repost_only, same_sub_only, target_days_old, meme_filter,
	target_hamming, target_annoy, target_image_match, target_image_meme_match,
	check_image_posts, check_link_posts, added_at`

func (r *monitoredSubRepo) GetBySubreddit(ctx context.Context, name string) (*types.MonitoredSub, error) {
	sub, err := scanMonitoredSub(r.tx.QueryRow(ctx,
		`SELECT `+monitoredSubColumns+` FROM monitored_subs WHERE lower(name) = lower($1)`, name))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return sub, err
}

func (r *monitoredSubRepo) GetAll(ctx context.Context) ([]*types.MonitoredSub, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+monitoredSubColumns+` FROM monitored_subs ORDER BY lower(name)`)
	if err != nil {
		return nil, fmt.Errorf("failed to query monitored subs: %w", err)
	}
	defer rows.Close()

	var subs []*types.MonitoredSub
	for rows.Next() {
		sub, err := scanMonitoredSub(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating monitored subs: %w", err)
	}
	return subs, nil
}

func (r *monitoredSubRepo) Add(ctx context.Context, sub *types.MonitoredSub) error {
	if err := sub.Validate(); err != nil {
		return fmt.Errorf("invalid monitored sub: %w", err)
	}
	if sub.AddedAt.IsZero() {
		sub.AddedAt = time.Now().UTC()
	}

	err := r.tx.QueryRow(ctx, `
		INSERT INTO monitored_subs (
			name, active, repost_only, same_sub_only, target_days_old, meme_filter,
			target_hamming, target_annoy, target_image_match, target_image_meme_match,
			check_image_posts, check_link_posts, added_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id
	`,
		sub.Name, sub.Active, sub.RepostOnly, sub.SameSubOnly, sub.TargetDaysOld, sub.MemeFilter,
		sub.TargetHamming, sub.TargetAnnoy, sub.TargetImageMatch, sub.TargetImageMemeMatch,
		sub.CheckImagePosts, sub.CheckLinkPosts, sub.AddedAt.UTC(),
	).Scan(&sub.ID)
	if err != nil {
		return fmt.Errorf("failed to insert monitored sub %s: %w", sub.Name, err)
	}
	return nil
}

func (r *monitoredSubRepo) Update(ctx context.Context, sub *types.MonitoredSub) error {
	if err := sub.Validate(); err != nil {
		return fmt.Errorf("invalid monitored sub: %w", err)
	}

	tag, err := r.tx.Exec(ctx, `
		UPDATE monitored_subs SET
			name = $1, active = $2, repost_only = $3, same_sub_only = $4, target_days_old = $5, meme_filter = $6,
			target_hamming = $7, target_annoy = $8, target_image_match = $9, target_image_meme_match = $10,
			check_image_posts = $11, check_link_posts = $12
		WHERE id = $13
	`,
		sub.Name, sub.Active, sub.RepostOnly, sub.SameSubOnly, sub.TargetDaysOld, sub.MemeFilter,
		sub.TargetHamming, sub.TargetAnnoy, sub.TargetImageMatch, sub.TargetImageMemeMatch,
		sub.CheckImagePosts, sub.CheckLinkPosts, sub.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update monitored sub %s: %w", sub.Name, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("monitored sub not found: %d", sub.ID)
	}
	return nil
}

func scanMonitoredSub(row pgx.Row) (*types.MonitoredSub, error) {
	var sub types.MonitoredSub
	err := row.Scan(
		&sub.ID, &sub.Name, &sub.Active, &sub.RepostOnly, &sub.SameSubOnly, &sub.TargetDaysOld, &sub.MemeFilter,
		&sub.TargetHamming, &sub.TargetAnnoy, &sub.TargetImageMatch, &sub.TargetImageMemeMatch,
		&sub.CheckImagePosts, &sub.CheckLinkPosts, &sub.AddedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan monitored sub: %w", err)
	}
	sub.AddedAt = sub.AddedAt.UTC()
	return &sub, nil
}

type repostWatchRepo struct {
	tx pgx.Tx
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

	err := r.tx.QueryRow(ctx, `
		INSERT INTO repost_watches (post_id, username, response_type, enabled, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, w.PostID, w.User, string(w.ResponseType), w.Enabled, w.CreatedAt.UTC()).Scan(&w.ID)
	if err != nil {
		return fmt.Errorf("failed to insert watch (user=%s, post=%s): %w", w.User, w.PostID, err)
	}
	return nil
}

func (r *repostWatchRepo) GetByID(ctx context.Context, id int64) (*types.RepostWatch, error) {
	w, err := scanRepostWatch(r.tx.QueryRow(ctx, `SELECT `+repostWatchColumns+` FROM repost_watches WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return w, err
}

func (r *repostWatchRepo) GetAllByPostID(ctx context.Context, postID string) ([]*types.RepostWatch, error) {
	rows, err := r.tx.Query(ctx,
		`SELECT `+repostWatchColumns+` FROM repost_watches WHERE post_id = $1 ORDER BY created_at, id`, postID)
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
	w, err := scanRepostWatch(r.tx.QueryRow(ctx,
		`SELECT `+repostWatchColumns+` FROM repost_watches WHERE username = $1 AND post_id = $2`, user, postID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return w, err
}

func (r *repostWatchRepo) Remove(ctx context.Context, w *types.RepostWatch) error {
	if _, err := r.tx.Exec(ctx, `DELETE FROM repost_watches WHERE id = $1`, w.ID); err != nil {
		return fmt.Errorf("failed to remove watch %d: %w", w.ID, err)
	}
	return nil
}

func scanRepostWatch(row pgx.Row) (*types.RepostWatch, error) {
	var (
		w            types.RepostWatch
		responseType string
	)
	err := row.Scan(&w.ID, &w.PostID, &w.User, &responseType, &w.Enabled, &w.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan watch: %w", err)
	}
	w.ResponseType = types.WatchResponseType(responseType)
	w.CreatedAt = w.CreatedAt.UTC()
	return &w, nil
}

type memeTemplateRepo struct {
	tx pgx.Tx
}

func (r *memeTemplateRepo) Add(ctx context.Context, m *types.MemeTemplate) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	err := r.tx.QueryRow(ctx, `
		INSERT INTO meme_templates (name, example_post, template_url, hash, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, m.Name, m.ExamplePost, m.TemplateURL, m.Hash, m.CreatedAt.UTC()).Scan(&m.ID)
	if err != nil {
		return fmt.Errorf("failed to insert meme template: %w", err)
	}
	return nil
}

func (r *memeTemplateRepo) GetAll(ctx context.Context) ([]*types.MemeTemplate, error) {
	rows, err := r.tx.Query(ctx, `
		SELECT id, name, example_post, template_url, hash, created_at
		FROM meme_templates
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query meme templates: %w", err)
	}
	defer rows.Close()

	var templates []*types.MemeTemplate
	for rows.Next() {
		var m types.MemeTemplate
		if err := rows.Scan(&m.ID, &m.Name, &m.ExamplePost, &m.TemplateURL, &m.Hash, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan meme template: %w", err)
		}
		m.CreatedAt = m.CreatedAt.UTC()
		templates = append(templates, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating meme templates: %w", err)
	}
	return templates, nil
}
