package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/repostsleuth/sleuth/internal/types"
)

type summonsRepo struct {
	tx *sql.Tx
}

const summonsColumns = `id, post_id, comment_id, requestor, comment_body, subreddit,
	summons_received_at, comment_reply, comment_reply_id, summons_replied_at`

// GetUnreplied returns summons with no recorded reply, oldest first
func (r *summonsRepo) GetUnreplied(ctx context.Context, limit int) ([]*types.Summons, error) {
	query := `SELECT ` + summonsColumns + `
		FROM summons
		WHERE summons_replied_at IS NULL
		ORDER BY summons_received_at ASC, id ASC`
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.tx.QueryContext(ctx, query, args...)
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

// GetByID returns one summons, or nil when it does not exist
func (r *summonsRepo) GetByID(ctx context.Context, id int64) (*types.Summons, error) {
	row := r.tx.QueryRowContext(ctx, `SELECT `+summonsColumns+` FROM summons WHERE id = ?`, id)
	s, err := scanSummons(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return s, err
}

// Add inserts a summons and sets its ID
func (r *summonsRepo) Add(ctx context.Context, s *types.Summons) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("invalid summons: %w", err)
	}

	result, err := r.tx.ExecContext(ctx, `
		INSERT INTO summons (
			post_id, comment_id, requestor, comment_body, subreddit,
			summons_received_at, comment_reply, comment_reply_id, summons_replied_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		s.PostID, s.CommentID, s.Requestor, s.CommentBody, s.Subreddit,
		s.SummonsReceivedAt.UTC(), nullString(s.CommentReply), nullString(s.CommentReplyID), nullTime(s.SummonsRepliedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert summons (comment=%s): %w", s.CommentID, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get summons id: %w", err)
	}
	s.ID = id
	return nil
}

// Update writes every column of an existing summons
func (r *summonsRepo) Update(ctx context.Context, s *types.Summons) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("invalid summons: %w", err)
	}

	result, err := r.tx.ExecContext(ctx, `
		UPDATE summons SET
			post_id = ?, comment_id = ?, requestor = ?, comment_body = ?, subreddit = ?,
			summons_received_at = ?, comment_reply = ?, comment_reply_id = ?, summons_replied_at = ?
		WHERE id = ?
	`,
		s.PostID, s.CommentID, s.Requestor, s.CommentBody, s.Subreddit,
		s.SummonsReceivedAt.UTC(), nullString(s.CommentReply), nullString(s.CommentReplyID), nullTime(s.SummonsRepliedAt),
		s.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update summons %d: %w", s.ID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("summons not found: %d", s.ID)
	}
	return nil
}

// Count returns the total number of summons ever received
func (r *summonsRepo) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM summons`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count summons: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSummons(row rowScanner) (*types.Summons, error) {
	var (
		s         types.Summons
		reply     sql.NullString
		replyID   sql.NullString
		repliedAt sql.NullTime
	)
	err := row.Scan(
		&s.ID, &s.PostID, &s.CommentID, &s.Requestor, &s.CommentBody, &s.Subreddit,
		&s.SummonsReceivedAt, &reply, &replyID, &repliedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan summons: %w", err)
	}
	s.SummonsReceivedAt = s.SummonsReceivedAt.UTC()
	s.CommentReply = reply.String
	s.CommentReplyID = replyID.String
	if repliedAt.Valid {
		t := repliedAt.Time.UTC()
		s.SummonsRepliedAt = &t
	}
	return &s, nil
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC()
}
