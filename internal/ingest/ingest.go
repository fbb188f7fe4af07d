// Package ingest captures inbound text from external sources as
// raw_events records, to be promoted into task candidates by the
// background worker.
package ingest

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/lifeos/tasks/internal/domain"
	"github.com/lifeos/tasks/internal/events"
	"github.com/lifeos/tasks/internal/record"
	"github.com/lifeos/tasks/internal/store"
)

const (
	SourceDictation = "dictation"
	SourceSlack     = "slack"
)

// Service records inbound events.
type Service struct {
	store  *store.Store
	events *events.Writer
	clock  func() string
}

// NewService creates an ingest service over the given store.
func NewService(st *store.Store) *Service {
	return &Service{
		store:  st,
		events: events.NewWriter(st.DB().DB),
		clock:  domain.NowTimestamp,
	}
}

// Dictation stores a free-form dictation transcript as an unprocessed
// raw event and returns its id.
func (s *Service) Dictation(text string) (string, error) {
	if text == "" {
		return "", fmt.Errorf("dictation text is empty")
	}
	return s.capture(SourceDictation, text)
}

// SlackEvent stores the payload of a Slack event callback as an
// unprocessed raw event and returns its id. The payload is kept
// verbatim so the worker can extract message text later.
func (s *Service) SlackEvent(payload map[string]any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to encode slack payload: %w", err)
	}
	return s.capture(SourceSlack, string(data))
}

func (s *Service) capture(source, payload string) (string, error) {
	id := uuid.New().String()
	rec := record.Record{
		"id":          id,
		"source":      source,
		"payload":     payload,
		"received_at": s.clock(),
		"processed":   false,
	}

	err := s.store.WithTx(func(tx *sql.Tx) error {
		if err := store.UpsertTx(tx, domain.CollectionRawEvents, rec); err != nil {
			return err
		}
		return s.events.LogRawEventReceived(tx, id, source)
	})
	if err != nil {
		return "", fmt.Errorf("failed to record %s event: %w", source, err)
	}
	return id, nil
}
