package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/repostsleuth/sleuth/internal/events"
)

type eventRepo struct {
	tx *sql.Tx
}

// Add stores a new pipeline event
func (r *eventRepo) Add(ctx context.Context, event *events.Event) error {
	dataJSON, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}
	if event.Data == nil {
		dataJSON = []byte("{}")
	}

	_, err = r.tx.ExecContext(ctx, `
		INSERT INTO summons_events (id, type, timestamp, summons_id, worker_id, severity, message, data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		event.ID, event.Type, event.Timestamp.UTC(), event.SummonsID, event.WorkerID,
		event.Severity, event.Message, string(dataJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to store event (type=%s, summons=%d): %w", event.Type, event.SummonsID, err)
	}
	return nil
}

// GetBySummons returns every event for one summons, oldest first
func (r *eventRepo) GetBySummons(ctx context.Context, summonsID int64) ([]*events.Event, error) {
	rows, err := r.tx.QueryContext(ctx, `
		SELECT id, type, timestamp, summons_id, worker_id, severity, message, data
		FROM summons_events
		WHERE summons_id = ?
		ORDER BY timestamp ASC
	`, summonsID)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// Query returns events matching the filter, most recent first
func (r *eventRepo) Query(ctx context.Context, filter events.EventFilter) ([]*events.Event, error) {
	query := `
		SELECT id, type, timestamp, summons_id, worker_id, severity, message, data
		FROM summons_events
		WHERE 1=1
	`
	args := []interface{}{}

	if filter.SummonsID != 0 {
		query += " AND summons_id = ?"
		args = append(args, filter.SummonsID)
	}
	if filter.Type != "" {
		query += " AND type = ?"
		args = append(args, filter.Type)
	}
	if filter.Severity != "" {
		query += " AND severity = ?"
		args = append(args, filter.Severity)
	}
	if !filter.AfterTime.IsZero() {
		query += " AND timestamp > ?"
		args = append(args, filter.AfterTime.UTC())
	}

	query += " ORDER BY timestamp DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := r.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// CleanupByAge deletes events older than the retention period.
// Regular events are deleted after retentionDays, error and critical events
// after criticalRetentionDays, batchSize rows per statement.
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
		[]events.EventSeverity{events.SeverityInfo, events.SeverityWarning}, batchSize)
	totalDeleted += deleted
	if err != nil {
		return totalDeleted, fmt.Errorf("failed to delete old regular events: %w", err)
	}

	deleted, err = r.deleteOldEventsBatch(ctx, now.AddDate(0, 0, -criticalRetentionDays),
		[]events.EventSeverity{events.SeverityError, events.SeverityCritical}, batchSize)
	totalDeleted += deleted
	if err != nil {
		return totalDeleted, fmt.Errorf("failed to delete old critical events: %w", err)
	}

	return totalDeleted, nil
}

func (r *eventRepo) deleteOldEventsBatch(ctx context.Context, cutoff time.Time, severities []events.EventSeverity, batchSize int) (int, error) {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(severities)), ", ")
	query := fmt.Sprintf(`
		DELETE FROM summons_events
		WHERE id IN (
			SELECT id FROM summons_events
			WHERE timestamp < ?
			AND severity IN (%s)
			ORDER BY timestamp ASC
			LIMIT ?
		)
	`, placeholders)

	args := []interface{}{cutoff}
	for _, sev := range severities {
		args = append(args, sev)
	}
	args = append(args, batchSize)

	totalDeleted := 0
	for {
		select {
		case <-ctx.Done():
			return totalDeleted, ctx.Err()
		default:
		}

		result, err := r.tx.ExecContext(ctx, query, args...)
		if err != nil {
			return totalDeleted, fmt.Errorf("failed to execute delete: %w", err)
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return totalDeleted, fmt.Errorf("failed to get rows affected: %w", err)
		}
		totalDeleted += int(rowsAffected)

		if rowsAffected < int64(batchSize) {
			return totalDeleted, nil
		}
	}
}

func (r *eventRepo) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM summons_events`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return n, nil
}

func scanEvents(rows *sql.Rows) ([]*events.Event, error) {
	var result []*events.Event
	for rows.Next() {
		var (
			event    events.Event
			dataJSON string
		)
		err := rows.Scan(&event.ID, &event.Type, &event.Timestamp, &event.SummonsID, &event.WorkerID,
			&event.Severity, &event.Message, &dataJSON)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		event.Timestamp = event.Timestamp.UTC()
		if dataJSON != "" {
			if err := json.Unmarshal([]byte(dataJSON), &event.Data); err != nil {
				return nil, fmt.Errorf("failed to unmarshal event data: %w", err)
			}
		}
		result = append(result, &event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}
	return result, nil
}
