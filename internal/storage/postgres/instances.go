package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/repostsleuth/sleuth/internal/types"
)

type instanceRepo struct {
	tx pgx.Tx
}

func (r *instanceRepo) Register(ctx context.Context, instance *types.WorkerInstance) error {
	if err := instance.Validate(); err != nil {
		return fmt.Errorf("invalid worker instance: %w", err)
	}

	metadata := instance.Metadata
	if metadata == "" {
		metadata = "{}"
	}

	_, err := r.tx.Exec(ctx, `
		INSERT INTO worker_instances (
			instance_id, hostname, pid, status, started_at, last_heartbeat, version, metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (instance_id) DO UPDATE SET
			hostname = EXCLUDED.hostname,
			pid = EXCLUDED.pid,
			status = EXCLUDED.status,
			last_heartbeat = EXCLUDED.last_heartbeat,
			version = EXCLUDED.version,
			metadata = EXCLUDED.metadata
	`,
		instance.InstanceID, instance.Hostname, instance.PID, string(instance.Status),
		instance.StartedAt.UTC(), instance.LastHeartbeat.UTC(), instance.Version, metadata,
	)
	if err != nil {
		return fmt.Errorf("failed to register worker instance: %w", err)
	}
	return nil
}

func (r *instanceRepo) Heartbeat(ctx context.Context, instanceID string) error {
	tag, err := r.tx.Exec(ctx,
		`UPDATE worker_instances SET last_heartbeat = $1 WHERE instance_id = $2`,
		time.Now().UTC(), instanceID)
	if err != nil {
		return fmt.Errorf("failed to update heartbeat: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("worker instance not found: %s", instanceID)
	}
	return nil
}

func (r *instanceRepo) MarkStopped(ctx context.Context, instanceID string) error {
	if _, err := r.tx.Exec(ctx,
		`UPDATE worker_instances SET status = 'stopped' WHERE instance_id = $1`, instanceID); err != nil {
		return fmt.Errorf("failed to mark instance stopped: %w", err)
	}
	return nil
}

func (r *instanceRepo) GetActive(ctx context.Context) ([]*types.WorkerInstance, error) {
	rows, err := r.tx.Query(ctx, `
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
		var (
			instance types.WorkerInstance
			status   string
		)
		err := rows.Scan(
			&instance.InstanceID, &instance.Hostname, &instance.PID, &status,
			&instance.StartedAt, &instance.LastHeartbeat, &instance.Version, &instance.Metadata,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan worker instance: %w", err)
		}
		instance.Status = types.WorkerStatus(status)
		instance.StartedAt = instance.StartedAt.UTC()
		instance.LastHeartbeat = instance.LastHeartbeat.UTC()
		instances = append(instances, &instance)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating worker instances: %w", err)
	}
	return instances, nil
}

func (r *instanceRepo) CleanupStale(ctx context.Context, threshold time.Duration) (int, error) {
	tag, err := r.tx.Exec(ctx, `
		UPDATE worker_instances
		SET status = 'stopped'
		WHERE status = 'running'
		  AND last_heartbeat < $1
	`, time.Now().UTC().Add(-threshold))
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup stale instances: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *instanceRepo) DeleteOldStopped(ctx context.Context, olderThan time.Duration, keep int) (int, error) {
	if keep < 0 {
		return 0, fmt.Errorf("keep cannot be negative")
	}

	tag, err := r.tx.Exec(ctx, `
		DELETE FROM worker_instances
		WHERE status = 'stopped'
		  AND last_heartbeat < $1
		  AND instance_id NOT IN (
			SELECT instance_id FROM worker_instances
			WHERE status = 'stopped'
			ORDER BY last_heartbeat DESC
			LIMIT $2
		  )
	`, time.Now().UTC().Add(-olderThan), keep)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old instances: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
