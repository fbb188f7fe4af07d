// Package review implements the candidate review queue: listing
// pending task candidates and recording approve or reject decisions.
package review

import (
	"database/sql"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/lifeos/tasks/internal/domain"
	"github.com/lifeos/tasks/internal/events"
	"github.com/lifeos/tasks/internal/record"
	"github.com/lifeos/tasks/internal/store"
)

// recentLimit caps the recently-approved listing.
const recentLimit = 10

// Service exposes the review workflow over the store.
type Service struct {
	store  *store.Store
	events *events.Writer
	clock  func() string
}

// NewService creates a review service over the given store.
func NewService(st *store.Store) *Service {
	return &Service{
		store:  st,
		events: events.NewWriter(st.DB().DB),
		clock:  domain.NowTimestamp,
	}
}

// QueueItem is a pending candidate together with any AI suggestion
// metadata attached to it.
type QueueItem struct {
	Candidate  record.Record `json:"candidate"`
	AIMetadata record.Record `json:"ai_metadata,omitempty"`
}

// Queue returns pending candidates, newest first.
func (s *Service) Queue() ([]QueueItem, error) {
	candidates, err := s.store.FindByField(domain.CollectionTaskCandidates, "status", domain.CandidateStatusPending)
	if err != nil {
		return nil, err
	}

	sortByCreatedAtDesc(candidates)

	items := make([]QueueItem, 0, len(candidates))
	for _, cand := range candidates {
		item := QueueItem{Candidate: cand}
		if id, ok := cand.Key(); ok {
			suggestions, err := s.store.FindByField(domain.CollectionAISuggestions, "candidate_id", id)
			if err != nil {
				return nil, err
			}
			if len(suggestions) > 0 {
				item.AIMetadata = suggestions[0]
			}
		}
		items = append(items, item)
	}
	return items, nil
}

// Approve creates a task from the candidate and records the decision.
// Approving the same candidate twice is idempotent: the existing task
// is returned with alreadyApproved set and no new records are written.
func (s *Service) Approve(candidateID string) (task record.Record, alreadyApproved bool, err error) {
	candidate, found, err := s.store.Get(domain.CollectionTaskCandidates, candidateID)
	if err != nil {
		return nil, false, err
	}
	if !found {
		return nil, false, &domain.NotFoundError{Collection: domain.CollectionTaskCandidates, ID: candidateID}
	}

	// A candidate approved earlier already has a task bound to its raw
	// event; surface that task instead of creating a duplicate.
	if rawEventID, ok := candidate["raw_event_id"].(string); ok && rawEventID != "" {
		existing, err := s.store.FindByField(domain.CollectionTasks, "raw_event_id", rawEventID)
		if err != nil {
			return nil, false, err
		}
		if len(existing) > 0 {
			return existing[0], true, nil
		}
	}

	now := s.clock()
	task = record.Record{
		"id":          uuid.New().String(),
		"title":       candidate["title"],
		"description": candidate["description"],
		"status":      domain.TaskStatusActive,
		"created_at":  now,
	}
	if rawEventID, ok := candidate["raw_event_id"]; ok {
		task["raw_event_id"] = rawEventID
	}

	if err := s.decide(candidate, domain.ActionApproved, task, now); err != nil {
		return nil, false, err
	}
	return task, false, nil
}

// Reject marks the candidate rejected and records the decision.
func (s *Service) Reject(candidateID string) error {
	candidate, found, err := s.store.Get(domain.CollectionTaskCandidates, candidateID)
	if err != nil {
		return err
	}
	if !found {
		return &domain.NotFoundError{Collection: domain.CollectionTaskCandidates, ID: candidateID}
	}
	return s.decide(candidate, domain.ActionRejected, nil, s.clock())
}

// decide writes the audit record, the optional new task, and the
// candidate status flip in one transaction.
func (s *Service) decide(candidate record.Record, action string, task record.Record, now string) error {
	candidateID, ok := candidate.Key()
	if !ok {
		return fmt.Errorf("candidate has no usable id")
	}

	return s.store.WithTx(func(tx *sql.Tx) error {
		taskID := ""
		if task != nil {
			if err := store.UpsertTx(tx, domain.CollectionTasks, task); err != nil {
				return err
			}
			taskID, _ = task.Key()
		}

		audit := record.Record{
			"id":           uuid.New().String(),
			"candidate_id": candidateID,
			"action":       action,
			"created_at":   now,
		}
		if taskID != "" {
			audit["task_id"] = taskID
		}
		if err := store.UpsertTx(tx, domain.CollectionReviewActions, audit); err != nil {
			return err
		}

		updated := candidate.Clone()
		updated["status"] = action
		updated["reviewed_at"] = now
		if err := store.UpsertTx(tx, domain.CollectionTaskCandidates, updated); err != nil {
			return err
		}

		return s.events.LogCandidateReviewed(tx, candidateID, action, taskID)
	})
}

// RecentlyApproved returns the most recently created tasks, newest
// first, capped at ten.
func (s *Service) RecentlyApproved() ([]record.Record, error) {
	tasks, err := s.store.List(domain.CollectionTasks)
	if err != nil {
		return nil, err
	}

	sortByCreatedAtDesc(tasks)
	if len(tasks) > recentLimit {
		tasks = tasks[:recentLimit]
	}
	return tasks, nil
}

// sortByCreatedAtDesc orders records newest first by their created_at
// field, falling back to id for records without one.
func sortByCreatedAtDesc(records []record.Record) {
	sort.SliceStable(records, func(i, j int) bool {
		a, _ := records[i]["created_at"].(string)
		b, _ := records[j]["created_at"].(string)
		if a != b {
			return a > b
		}
		ai, _ := records[i].Key()
		bi, _ := records[j].Key()
		return ai > bi
	})
}
