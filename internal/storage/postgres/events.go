package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/repostsleuth/sleuth/internal/events"
)

type eventRepo struct {
	tx pgx.Tx
}

func (r *eventRepo) Add(ctx context.Context, event *events.Event) error {
	data := event.Data
	if data == nil {
		data = map[string]interface{}{}
	}

	_, err := r.tx.Exec(ctx, `
		INSERT INTO summons_events (id, type, timestamp, summons_id, worker_id, severity, message, data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		event.ID, string(event.Type), event.Timestamp.UTC(), event.SummonsID, event.WorkerID,
		string(event.Severity), event.Message, data,
	)
	if err != nil {
		return fmt.Errorf("failed to store event (type=%s, summons=%d): %w", event.Type, event.SummonsID, err)
	}
	return nil
}

func (r *eventRepo) GetBySummons(ctx context.Context, summonsID int64) ([]*events.Event, error) {
	rows, err := r.tx.Query(ctx, `
		SELECT id, type, timestamp, summons_id, worker_id, severity, message, data
		FROM summons_events
		WHERE summons_id = $1
		ORDER BY timestamp ASC
	`, summonsID)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	return scanEvents(rows)
}

func (r *eventRepo) Query(ctx context.Context, filter events.EventFilter) ([]*events.Event, error) {
	query := `
		SELECT id, type, timestamp, summons_id, worker_id, severity, message, data
		FROM summons_events
		WHERE 1=1
	`
	args := []interface{}{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.SummonsID != 0 {
		query += " AND summons_id = " + arg(filter.SummonsID)
	}
	if filter.Type != "" {
		query += " AND type = " + arg(string(filter.Type))
	}
	if filter.Severity != "" {
		query += " AND severity = " + arg(string(filter.Severity))
	}
	if !filter.AfterTime.IsZero() {
		query += " AND timestamp > " + arg(filter.AfterTime.UTC())
	}
	query += " ORDER BY timestamp DESC"
	if filter.Limit > 0 {
		query += " LIMIT " + arg(filter.Limit)
	}

	rows, err := r.tx.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	return scanEvents(rows)
}

// CleanupByAge deletes regular events after retentionDays and error/critical
// events after criticalRetentionDays, batchSize rows per statement.
func (r *eventRepo) CleanupByAge(ctx context.Context, retentionDays, criticalRetentionDays, batchSize int) (int, error) {
	if retentionDays < 0 || criticalRetentionDays < 0 {
		return 0, fmt.Errorf("retention days cannot be negative")
	}
	if batchSize < 1 {
		return 0, fmt.Errorf("batch size must be at least 1")
	}

	now := time.Now().UTC()
	totalDeleted := 0

	deleted, err := r.deleteOldEventsBatch(ctx, now.AddDate(0, 0, -retentionDays),
		[]string{string(events.SeverityInfo), string(events.SeverityWarning)}, batchSize)
	totalDeleted += deleted
	if err != nil {
		return totalDeleted, fmt.Errorf("failed to delete old regular events: %w", err)
	}

	deleted, err = r.deleteOldEventsBatch(ctx, now.AddDate(0, 0, -criticalRetentionDays),
		[]string{string(events.SeverityError), string(events.SeverityCritical)}, batchSize)
	totalDeleted += deleted
	if err != nil {
		return totalDeleted, fmt.Errorf("failed to delete old critical events: %w", err)
	}

	return totalDeleted, nil
}

func (r *eventRepo) deleteOldEventsBatch(ctx context.Context, cutoff time.Time, severities []string, batchSize int) (int, error) {
	totalDeleted := 0
	for {
		select {
		case <-ctx.Done():
			return totalDeleted, ctx.Err()
		default:
		}

		tag, err := r.tx.Exec(ctx, `
			DELETE FROM summons_events
			WHERE id IN (
				SELECT id FROM summons_events
				WHERE timestamp < $1
				AND severity = ANY($2)
				ORDER BY timestamp ASC
				LIMIT $3
			)
		`, cutoff, severities, batchSize)
		if err != nil {
			return totalDeleted, fmt.Errorf("failed to execute delete: %w", err)
		}

		totalDeleted += int(tag.RowsAffected())
		if tag.RowsAffected() < int64(batchSize) {
			return totalDeleted, nil
		}
	}
}

func (r *eventRepo) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.tx.QueryRow(ctx, `SELECT COUNT(*) FROM summons_events`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return n, nil
}

func scanEvents(rows pgx.Rows) ([]*events.Event, error) {
	defer rows.Close()

	var result []*events.Event
	for rows.Next() {
		var (
			event     events.Event
			eventType string
			severity  string
		)
		err := rows.Scan(&event.ID, &eventType, &event.Timestamp, &event.SummonsID, &event.WorkerID,
			&severity, &event.Message, &event.Data)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		event.Type = events.EventType(eventType)
		event.Severity = events.EventSeverity(severity)
		event.Timestamp = event.Timestamp.UTC()
		result = append(result, &event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}
	return result, nil
}
