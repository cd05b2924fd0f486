package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/repostsleuth/sleuth/internal/types"
)

type summonsRepo struct {
	tx pgx.Tx
}

const summonsColumns = `id, post_id, comment_id, requestor, comment_body, subreddit,
	summons_received_at, comment_reply, comment_reply_id, summons_replied_at`

func (r *summonsRepo) GetUnreplied(ctx context.Context, limit int) ([]*types.Summons, error) {
	query := `SELECT ` + summonsColumns + `
		FROM summons
		WHERE summons_replied_at IS NULL
		ORDER BY summons_received_at ASC, id ASC`
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := r.tx.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query unreplied summons: %w", err)
	}
	defer rows.Close()

	var result []*types.Summons
	for rows.Next() {
		s, err := scanSummons(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating summons: %w", err)
	}
	return result, nil
}

func (r *summonsRepo) GetByID(ctx context.Context, id int64) (*types.Summons, error) {
	s, err := scanSummons(r.tx.QueryRow(ctx, `SELECT `+summonsColumns+` FROM summons WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return s, err
}

func (r *summonsRepo) Add(ctx context.Context, s *types.Summons) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("invalid summons: %w", err)
	}

	err := r.tx.QueryRow(ctx, `
		INSERT INTO summons (
			post_id, comment_id, requestor, comment_body, subreddit,
			summons_received_at, comment_reply, comment_reply_id, summons_replied_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`,
		s.PostID, s.CommentID, s.Requestor, s.CommentBody, s.Subreddit,
		s.SummonsReceivedAt.UTC(), nullString(s.CommentReply), nullString(s.CommentReplyID), nullTime(s.SummonsRepliedAt),
	).Scan(&s.ID)
	if err != nil {
		return fmt.Errorf("failed to insert summons (comment=%s): %w", s.CommentID, err)
	}
	return nil
}

func (r *summonsRepo) Update(ctx context.Context, s *types.Summons) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("invalid summons: %w", err)
	}

	tag, err := r.tx.Exec(ctx, `
		UPDATE summons SET
			post_id = $1, comment_id = $2, requestor = $3, comment_body = $4, subreddit = $5,
			summons_received_at = $6, comment_reply = $7, comment_reply_id = $8, summons_replied_at = $9
		WHERE id = $10
	`,
		s.PostID, s.CommentID, s.Requestor, s.CommentBody, s.Subreddit,
		s.SummonsReceivedAt.UTC(), nullString(s.CommentReply), nullString(s.CommentReplyID), nullTime(s.SummonsRepliedAt),
		s.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update summons %d: %w", s.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("summons not found: %d", s.ID)
	}
	return nil
}

func (r *summonsRepo) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.tx.QueryRow(ctx, `SELECT COUNT(*) FROM summons`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count summons: %w", err)
	}
	return n, nil
}

func scanSummons(row pgx.Row) (*types.Summons, error) {
	var (
		s         types.Summons
		reply     *string
		replyID   *string
		repliedAt *time.Time
	)
	err := row.Scan(
		&s.ID, &s.PostID, &s.CommentID, &s.Requestor, &s.CommentBody, &s.Subreddit,
		&s.SummonsReceivedAt, &reply, &replyID, &repliedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan summons: %w", err)
	}
	s.SummonsReceivedAt = s.SummonsReceivedAt.UTC()
	if reply != nil {
		s.CommentReply = *reply
	}
	if replyID != nil {
		s.CommentReplyID = *replyID
	}
	if repliedAt != nil {
		t := repliedAt.UTC()
		s.SummonsRepliedAt = &t
	}
	return &s, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	utc := t.UTC()
	return &utc
}
