package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/repostsleuth/sleuth/internal/types"
)

type instanceRepo struct {
	tx *sql.Tx
}

// Register records a worker instance, replacing any row with the same ID
func (r *instanceRepo) Register(ctx context.Context, instance *types.WorkerInstance) error {
	if err := instance.Validate(); err != nil {
		return fmt.Errorf("invalid worker instance: %w", err)
	}

	metadata := instance.Metadata
	if metadata == "" {
		metadata = "{}"
	}

	_, err := r.tx.ExecContext(ctx, `
		INSERT INTO worker_instances (
			instance_id, hostname, pid, status, started_at, last_heartbeat, version, metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(instance_id) DO UPDATE SET
			hostname = excluded.hostname,
			pid = excluded.pid,
			status = excluded.status,
			last_heartbeat = excluded.last_heartbeat,
			version = excluded.version,
			metadata = excluded.metadata
	`,
		instance.InstanceID, instance.Hostname, instance.PID, instance.Status,
		instance.StartedAt.UTC(), instance.LastHeartbeat.UTC(), instance.Version, metadata,
	)
	if err != nil {
		return fmt.Errorf("failed to register worker instance: %w", err)
	}
	return nil
}

// Heartbeat refreshes last_heartbeat for a worker instance
func (r *instanceRepo) Heartbeat(ctx context.Context, instanceID string) error {
	result, err := r.tx.ExecContext(ctx,
		`UPDATE worker_instances SET last_heartbeat = ? WHERE instance_id = ?`,
		time.Now().UTC(), instanceID)
	if err != nil {
		return fmt.Errorf("failed to update heartbeat: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("worker instance not found: %s", instanceID)
	}
	return nil
}

// MarkStopped flags an instance as stopped on graceful shutdown
func (r *instanceRepo) MarkStopped(ctx context.Context, instanceID string) error {
	if _, err := r.tx.ExecContext(ctx,
		`UPDATE worker_instances SET status = 'stopped' WHERE instance_id = ?`, instanceID); err != nil {
		return fmt.Errorf("failed to mark instance stopped: %w", err)
	}
	return nil
}

// GetActive returns running instances, most recent heartbeat first
func (r *instanceRepo) GetActive(ctx context.Context) ([]*types.WorkerInstance, error) {
	rows, err := r.tx.QueryContext(ctx, `
		SELECT instance_id, hostname, pid, status, started_at, last_heartbeat, version, metadata
		FROM worker_instances
		WHERE status = 'running'
		ORDER BY last_heartbeat DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query active instances: %w", err)
	}
	defer rows.Close()

	var instances []*types.WorkerInstance
	for rows.Next() {
		instance := &types.WorkerInstance{}
		err := rows.Scan(
			&instance.InstanceID, &instance.Hostname, &instance.PID, &instance.Status,
			&instance.StartedAt, &instance.LastHeartbeat, &instance.Version, &instance.Metadata,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan worker instance: %w", err)
		}
		instance.StartedAt = instance.StartedAt.UTC()
		instance.LastHeartbeat = instance.LastHeartbeat.UTC()
		instances = append(instances, instance)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating worker instances: %w", err)
	}
	return instances, nil
}

// CleanupStale marks running instances whose heartbeat is older than
// threshold as stopped and returns how many were marked.
func (r *instanceRepo) CleanupStale(ctx context.Context, threshold time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-threshold)

	result, err := r.tx.ExecContext(ctx, `
		UPDATE worker_instances
		SET status = 'stopped'
		WHERE status = 'running'
		  AND last_heartbeat < ?
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup stale instances: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(rows), nil
}

// DeleteOldStopped removes stopped instances last seen before olderThan ago,
// always keeping the keep most recent stopped instances.
func (r *instanceRepo) DeleteOldStopped(ctx context.Context, olderThan time.Duration, keep int) (int, error) {
	if keep < 0 {
		return 0, fmt.Errorf("keep cannot be negative")
	}
	cutoff := time.Now().UTC().Add(-olderThan)

	result, err := r.tx.ExecContext(ctx, `
		DELETE FROM worker_instances
		WHERE status = 'stopped'
		  AND last_heartbeat < ?
		  AND instance_id NOT IN (
			SELECT instance_id FROM worker_instances
			WHERE status = 'stopped'
			ORDER BY last_heartbeat DESC
			LIMIT ?
		  )
	`, cutoff, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old instances: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(rows), nil
}
