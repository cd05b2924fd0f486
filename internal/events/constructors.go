package events

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// New creates an event with a fresh ID and the current timestamp.
func New(eventType EventType, severity EventSeverity, summonsID int64, workerID, message string, data map[string]interface{}) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now(),
		SummonsID: summonsID,
		WorkerID:  workerID,
		Severity:  severity,
		Message:   message,
		Data:      data,
	}
}

// NewSummonsHandledEvent creates the per-attempt completion event with type-safe data.
// Failed outcomes are recorded with warning severity.
func NewSummonsHandledEvent(summonsID int64, workerID string, data SummonsHandledData) (*Event, error) {
	severity := SeverityInfo
	if data.Outcome != OutcomeReplied && data.Outcome != OutcomeDeferred {
		severity = SeverityWarning
	}
	event := New(EventTypeSummonsHandled, severity, summonsID, workerID,
		fmt.Sprintf("summons %d %s after %.1fs", summonsID, data.Outcome, data.LatencySeconds), nil)
	if err := event.SetSummonsHandledData(data); err != nil {
		return nil, err
	}
	return event, nil
}

// NewSummonsDeferredEvent creates a deferral event with type-safe data.
func NewSummonsDeferredEvent(summonsID int64, workerID string, data SummonsDeferredData) (*Event, error) {
	event := New(EventTypeSummonsDeferred, SeverityWarning, summonsID, workerID,
		fmt.Sprintf("summons %d deferred: %s", summonsID, data.Reason), nil)
	if err := event.SetSummonsDeferredData(data); err != nil {
		return nil, err
	}
	return event, nil
}

// NewEventCleanupCompletedEvent records one pass of the event retention cleanup.
func NewEventCleanupCompletedEvent(workerID string, data EventCleanupCompletedData) (*Event, error) {
	severity := SeverityInfo
	msg := fmt.Sprintf("event cleanup deleted %d events in %dms", data.EventsDeleted, data.ProcessingTimeMs)
	if !data.Success {
		severity = SeverityError
		msg = fmt.Sprintf("event cleanup failed: %s", data.Error)
	}
	event := New(EventTypeEventCleanupCompleted, severity, 0, workerID, msg, nil)
	if err := event.SetEventCleanupCompletedData(data); err != nil {
		return nil, err
	}
	return event, nil
}

// NewInstanceCleanupCompletedEvent records one pass of the worker instance cleanup.
func NewInstanceCleanupCompletedEvent(workerID string, data InstanceCleanupCompletedData) (*Event, error) {
	severity := SeverityInfo
	msg := fmt.Sprintf("instance cleanup marked %d stale and deleted %d", data.StaleMarked, data.InstancesDeleted)
	if !data.Success {
		severity = SeverityError
		msg = fmt.Sprintf("instance cleanup failed: %s", data.Error)
	}
	event := New(EventTypeInstanceCleanupCompleted, severity, 0, workerID, msg, nil)
	if err := event.SetInstanceCleanupCompletedData(data); err != nil {
		return nil, err
	}
	return event, nil
}
