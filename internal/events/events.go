// Package events handles writing to the append-only event log.
package events

import (
	"database/sql"
	"encoding/json"
	"fmt"
)

// Event is one event log entry.
type Event struct {
	ActorID      *string
	ResourceType string
	ResourceID   *string
	EventType    string
	Payload      *string
}

// Writer handles writing events to the event log
type Writer struct {
	db *sql.DB
}

// NewWriter creates a new event writer
func NewWriter(db *sql.DB) *Writer {
	return &Writer{db: db}
}

// LogEvent writes an event to the event log
func (w *Writer) LogEvent(tx *sql.Tx, event *Event) error {
	query := `
		INSERT INTO event_log (actor_id, resource_type, resource_id, event_type, payload)
		VALUES (?, ?, ?, ?, ?)
	`

	executor := w.getExecutor(tx)
	_, err := executor.Exec(query, event.ActorID, event.ResourceType, event.ResourceID, event.EventType, event.Payload)
	if err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}

	return nil
}

// LogRawEventReceived logs capture of a raw inbox event.
func (w *Writer) LogRawEventReceived(tx *sql.Tx, eventID, source string) error {
	payload, err := json.Marshal(map[string]any{"source": source})
	if err != nil {
		return err
	}

	payloadStr := string(payload)
	return w.LogEvent(tx, &Event{
		ResourceType: "raw_event",
		ResourceID:   &eventID,
		EventType:    "raw_event.received",
		Payload:      &payloadStr,
	})
}

// LogCandidateReviewed logs an approve or reject decision.
func (w *Writer) LogCandidateReviewed(tx *sql.Tx, candidateID, action string, taskID string) error {
	fields := map[string]any{"action": action}
	if taskID != "" {
		fields["task_id"] = taskID
	}
	payload, err := json.Marshal(fields)
	if err != nil {
		return err
	}

	payloadStr := string(payload)
	return w.LogEvent(tx, &Event{
		ResourceType: "task_candidate",
		ResourceID:   &candidateID,
		EventType:    "candidate." + action,
		Payload:      &payloadStr,
	})
}

// LogImportCommitted logs a committed import with its per-collection counts.
func (w *Writer) LogImportCommitted(tx *sql.Tx, counts any) error {
	payload, err := json.Marshal(counts)
	if err != nil {
		return err
	}

	payloadStr := string(payload)
	return w.LogEvent(tx, &Event{
		ResourceType: "import",
		EventType:    "import.committed",
		Payload:      &payloadStr,
	})
}

// getExecutor returns the appropriate executor (tx or db)
func (w *Writer) getExecutor(tx *sql.Tx) interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
} {
	if tx != nil {
		return tx
	}
	return w.db
}
