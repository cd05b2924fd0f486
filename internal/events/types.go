package events

import (
	"time"
)

// EventType represents the type of event that occurred while handling summons.
type EventType string

const (
	// EventTypeSummonsHandled indicates a summons finished a processing attempt.
	// Emitted for every attempt regardless of outcome and carries the latency.
	EventTypeSummonsHandled EventType = "summons_handled"
	// EventTypeSummonsDeferred indicates a summons was pushed back for a later cycle
	EventTypeSummonsDeferred EventType = "summons_deferred"
	// EventTypeInvalidCommand indicates a summons body could not be parsed
	EventTypeInvalidCommand EventType = "invalid_command"
	// EventTypeIngestFailed indicates an unknown post could not be ingested
	EventTypeIngestFailed EventType = "ingest_failed"
	// EventTypeDeliveryFailed indicates the gateway rejected a reply
	EventTypeDeliveryFailed EventType = "delivery_failed"
	// EventTypePersistenceFailed indicates a delivered reply could not be recorded
	EventTypePersistenceFailed EventType = "persistence_failed"
	// EventTypeUnhandledError indicates an unexpected failure inside a cycle
	EventTypeUnhandledError EventType = "unhandled_error"

	// EventTypeEventCleanupCompleted indicates event cleanup cycle completed
	EventTypeEventCleanupCompleted EventType = "event_cleanup_completed"
	// EventTypeInstanceCleanupCompleted indicates worker instance cleanup completed
	EventTypeInstanceCleanupCompleted EventType = "instance_cleanup_completed"
)

// EventSeverity represents the severity level of an event.
type EventSeverity string

const (
	// SeverityInfo indicates informational events
	SeverityInfo EventSeverity = "info"
	// SeverityWarning indicates potentially problematic events
	SeverityWarning EventSeverity = "warning"
	// SeverityError indicates error events
	SeverityError EventSeverity = "error"
	// SeverityCritical indicates critical events requiring immediate attention
	SeverityCritical EventSeverity = "critical"
)

// IsValid checks if the severity value is valid
func (s EventSeverity) IsValid() bool {
	switch s {
	case SeverityInfo, SeverityWarning, SeverityError, SeverityCritical:
		return true
	}
	return false
}

// Event is a structured record of something that happened in the pipeline.
type Event struct {
	// ID is the unique identifier for this event
	ID string `json:"id"`
	// Type is the type of event
	Type EventType `json:"type"`
	// Timestamp is when the event occurred
	Timestamp time.Time `json:"timestamp"`
	// SummonsID is the summons being handled, zero for worker-level events
	SummonsID int64 `json:"summons_id"`
	// WorkerID is the worker instance that recorded the event
	WorkerID string `json:"worker_id"`
	// Severity is the severity level of this event
	Severity EventSeverity `json:"severity"`
	// Message is a human-readable description of the event
	Message string `json:"message"`
	// Data contains structured, type-specific data (must be JSON-serializable)
	Data map[string]interface{} `json:"data"`
}

// Outcome is the terminal state of one summons attempt
type Outcome string

const (
	OutcomeReplied     Outcome = "replied"
	OutcomeDeferred    Outcome = "deferred"
	OutcomeUndelivered Outcome = "undelivered"
	OutcomeUnrecorded  Outcome = "unrecorded"
	OutcomeFailed      Outcome = "failed"
)

// SummonsHandledData is the payload of EventTypeSummonsHandled.
type SummonsHandledData struct {
	// LatencySeconds is the time from the summons being received to now
	LatencySeconds float64 `json:"latency_seconds"`
	// ReceivedAt is when the summons was first recorded
	ReceivedAt time.Time `json:"received_at"`
	// Requestor is the user who summoned the bot
	Requestor string `json:"requestor"`
	// PostType is the classification of the summoned post, if known
	PostType string `json:"post_type,omitempty"`
	// Command is the root command that was executed
	Command string `json:"command,omitempty"`
	// Outcome is how the attempt ended
	Outcome Outcome `json:"outcome"`
	// Matches is the number of duplicates found, if a search ran
	Matches int `json:"matches"`
}

// SummonsDeferredData is the payload of EventTypeSummonsDeferred.
type SummonsDeferredData struct {
	// Reason is why the summons was deferred
	Reason string `json:"reason"`
	// Attempts is how many consecutive times it has been deferred
	Attempts int `json:"attempts"`
	// RetryAt is the earliest time the summons will be picked up again
	RetryAt time.Time `json:"retry_at"`
}

// EventCleanupCompletedData contains structured data for event cleanup completion events.
type EventCleanupCompletedData struct {
	// EventsDeleted is the total number of events deleted
	EventsDeleted int `json:"events_deleted"`
	// ProcessingTimeMs is the time taken for cleanup in milliseconds
	ProcessingTimeMs int64 `json:"processing_time_ms"`
	// EventsRemaining is the total number of events remaining after cleanup
	EventsRemaining int `json:"events_remaining"`
	// Success indicates whether cleanup succeeded
	Success bool `json:"success"`
	// Error contains the error message if cleanup failed
	Error string `json:"error,omitempty"`
}

// InstanceCleanupCompletedData contains structured data for instance cleanup events.
type InstanceCleanupCompletedData struct {
	// StaleMarked is the number of running instances marked stopped
	StaleMarked int `json:"stale_marked"`
	// InstancesDeleted is the number of stopped instances deleted
	InstancesDeleted int `json:"instances_deleted"`
	// ProcessingTimeMs is the time taken for cleanup in milliseconds
	ProcessingTimeMs int64 `json:"processing_time_ms"`
	// Success indicates whether cleanup succeeded
	Success bool `json:"success"`
	// Error contains the error message if cleanup failed
	Error string `json:"error,omitempty"`
}

// EventFilter defines criteria for filtering events.
type EventFilter struct {
	// SummonsID filters events by summons ID
	SummonsID int64
	// Type filters events by event type
	Type EventType
	// Severity filters events by severity level
	Severity EventSeverity
	// AfterTime filters events that occurred after this time
	AfterTime time.Time
	// Limit limits the number of events returned
	Limit int
}
