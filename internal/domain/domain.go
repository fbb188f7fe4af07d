// Package domain defines the fixed record collections and the small
// vocabulary of the review workflow.
package domain

import (
	"fmt"
	"time"
)

// Collection names, in the order collections are processed during
// export and import.
const (
	CollectionRawEvents      = "raw_events"
	CollectionTaskCandidates = "task_candidates"
	CollectionTasks          = "tasks"
	CollectionReviewActions  = "review_actions"
	CollectionAISuggestions  = "ai_suggestions"
)

// Collections lists all collection names in processing order.
var Collections = []string{
	CollectionRawEvents,
	CollectionTaskCandidates,
	CollectionTasks,
	CollectionReviewActions,
	CollectionAISuggestions,
}

// ValidCollection reports whether name is one of the five fixed collections.
func ValidCollection(name string) bool {
	for _, c := range Collections {
		if c == name {
			return true
		}
	}
	return false
}

// Review actions recorded in the audit ledger.
const (
	ActionApproved = "approved"
	ActionRejected = "rejected"
)

// Candidate statuses.
const (
	CandidateStatusPending  = "pending"
	CandidateStatusApproved = "approved"
	CandidateStatusRejected = "rejected"
)

// Task statuses.
const (
	TaskStatusActive    = "active"
	TaskStatusCompleted = "completed"
	TaskStatusArchived  = "archived"
)

// ValidateAction checks a review action value.
func ValidateAction(action string) error {
	switch action {
	case ActionApproved, ActionRejected:
		return nil
	}
	return fmt.Errorf("invalid review action: %q (must be approved or rejected)", action)
}

// ValidatePriority checks a task priority value.
func ValidatePriority(priority string) error {
	switch priority {
	case "low", "medium", "high":
		return nil
	}
	return fmt.Errorf("invalid priority: %q (must be low, medium, or high)", priority)
}

// ValidateTaskStatus checks a task status value.
func ValidateTaskStatus(status string) error {
	switch status {
	case TaskStatusActive, TaskStatusCompleted, TaskStatusArchived:
		return nil
	}
	return fmt.Errorf("invalid task status: %q", status)
}

// NotFoundError indicates a record lookup miss.
type NotFoundError struct {
	Collection string
	ID         string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s: record %q not found", e.Collection, e.ID)
}

// FormatTimestamp formats a time.Time as ISO-8601 with Z suffix.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05Z")
}

// ParseTimestamp parses an ISO-8601 timestamp.
func ParseTimestamp(s string) (time.Time, error) {
	return time.Parse("2006-01-02T15:04:05Z", s)
}

// NowTimestamp returns the current time formatted with FormatTimestamp.
func NowTimestamp() string {
	return FormatTimestamp(time.Now())
}
