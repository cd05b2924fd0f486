package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/repostsleuth/sleuth/internal/types"
)

type monitoredSubRepo struct {
	tx *sql.Tx
}

const monitoredSubColumns = `id, name, active, repost_only, same_sub_only, target_days_old, meme_filter,
	target_hamming, target_annoy, target_image_match, target_image_meme_match,
	check_image_posts, check_link_posts, added_at`

// GetBySubreddit looks a sub up by name, case-insensitively
func (r *monitoredSubRepo) GetBySubreddit(ctx context.Context, name string) (*types.MonitoredSub, error) {
	row := r.tx.QueryRowContext(ctx, `SELECT `+monitoredSubColumns+` FROM monitored_subs WHERE name = ?`, name)
	sub, err := scanMonitoredSub(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return sub, err
}

func (r *monitoredSubRepo) GetAll(ctx context.Context) ([]*types.MonitoredSub, error) {
	rows, err := r.tx.QueryContext(ctx, `SELECT `+monitoredSubColumns+` FROM monitored_subs ORDER BY name`)
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

	result, err := r.tx.ExecContext(ctx, `
		INSERT INTO monitored_subs (
			name, active, repost_only, same_sub_only, target_days_old, meme_filter,
			target_hamming, target_annoy, target_image_match, target_image_meme_match,
			check_image_posts, check_link_posts, added_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		sub.Name, sub.Active, sub.RepostOnly, sub.SameSubOnly, sub.TargetDaysOld, sub.MemeFilter,
		sub.TargetHamming, sub.TargetAnnoy, sub.TargetImageMatch, sub.TargetImageMemeMatch,
		sub.CheckImagePosts, sub.CheckLinkPosts, sub.AddedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert monitored sub %s: %w", sub.Name, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get monitored sub id: %w", err)
	}
	sub.ID = id
	return nil
}

func (r *monitoredSubRepo) Update(ctx context.Context, sub *types.MonitoredSub) error {
	if err := sub.Validate(); err != nil {
		return fmt.Errorf("invalid monitored sub: %w", err)
	}

	result, err := r.tx.ExecContext(ctx, `
		UPDATE monitored_subs SET
			name = ?, active = ?, repost_only = ?, same_sub_only = ?, target_days_old = ?, meme_filter = ?,
			target_hamming = ?, target_annoy = ?, target_image_match = ?, target_image_meme_match = ?,
			check_image_posts = ?, check_link_posts = ?
		WHERE id = ?
	`,
		sub.Name, sub.Active, sub.RepostOnly, sub.SameSubOnly, sub.TargetDaysOld, sub.MemeFilter,
		sub.TargetHamming, sub.TargetAnnoy, sub.TargetImageMatch, sub.TargetImageMemeMatch,
		sub.CheckImagePosts, sub.CheckLinkPosts, sub.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update monitored sub %s: %w", sub.Name, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("monitored sub not found: %d", sub.ID)
	}
	return nil
}

func scanMonitoredSub(row rowScanner) (*types.MonitoredSub, error) {
	var sub types.MonitoredSub
	err := row.Scan(
		&sub.ID, &sub.Name, &sub.Active, &sub.RepostOnly, &sub.SameSubOnly, &sub.TargetDaysOld, &sub.MemeFilter,
		&sub.TargetHamming, &sub.TargetAnnoy, &sub.TargetImageMatch, &sub.TargetImageMemeMatch,
		&sub.CheckImagePosts, &sub.CheckLinkPosts, &sub.AddedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan monitored sub: %w", err)
	}
	sub.AddedAt = sub.AddedAt.UTC()
	return &sub, nil
}
