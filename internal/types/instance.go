package types

import (
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/mod/semver"
)

// WorkerStatus represents the state of a summons worker instance
type WorkerStatus string

const (
	WorkerStatusRunning WorkerStatus = "running"
	WorkerStatusStopped WorkerStatus = "stopped"
)

// IsValid checks if the worker status value is valid
func (s WorkerStatus) IsValid() bool {
	return s == WorkerStatusRunning || s == WorkerStatusStopped
}

// WorkerInstance represents a running summons worker process
type WorkerInstance struct {
	InstanceID    string       `json:"instance_id"`
	Hostname      string       `json:"hostname"`
	PID           int          `json:"pid"`
	Status        WorkerStatus `json:"status"`
	StartedAt     time.Time    `json:"started_at"`
	LastHeartbeat time.Time    `json:"last_heartbeat"`
	Version       string       `json:"version"`
	Metadata      string       `json:"metadata"` // JSON string (must be valid JSON)
}

// Validate checks if the worker instance has valid field values
func (w *WorkerInstance) Validate() error {
	if w.InstanceID == "" {
		return fmt.Errorf("instance_id is required")
	}
	if w.Hostname == "" {
		return fmt.Errorf("hostname is required")
	}
	if w.PID <= 0 {
		return fmt.Errorf("pid must be positive (got %d)", w.PID)
	}
	if !w.Status.IsValid() {
		return fmt.Errorf("invalid status: %s", w.Status)
	}
	if w.Version != "" && !semver.IsValid(CanonicalVersion(w.Version)) {
		return fmt.Errorf("invalid version: %q", w.Version)
	}
	if w.Metadata != "" {
		var v interface{}
		if err := json.Unmarshal([]byte(w.Metadata), &v); err != nil {
			return fmt.Errorf("metadata must be valid JSON: %w", err)
		}
	}
	return nil
}

// CanonicalVersion adds the "v" prefix semver expects
func CanonicalVersion(v string) string {
	if v == "" || v[0] == 'v' {
		return v
	}
	return "v" + v
}

// IsOlderThan reports whether this instance runs an older release than version
func (w *WorkerInstance) IsOlderThan(version string) bool {
	return semver.Compare(CanonicalVersion(w.Version), CanonicalVersion(version)) < 0
}
