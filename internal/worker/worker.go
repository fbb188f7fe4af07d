// Package worker promotes unprocessed dictation events into pending
// task candidates in the background.
package worker

import (
	"context"
	"database/sql"
	"log"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/lifeos/tasks/internal/domain"
	"github.com/lifeos/tasks/internal/ingest"
	"github.com/lifeos/tasks/internal/record"
	"github.com/lifeos/tasks/internal/store"
)

// titleMaxLen bounds the summarized title length.
const titleMaxLen = 60

// Summarize derives a candidate title and description from raw text.
// The title is the first line of the text, truncated on a rune boundary.
func Summarize(text string) (title, description string) {
	title = text
	for i, r := range text {
		if r == '\n' {
			title = text[:i]
			break
		}
	}
	if len(title) > titleMaxLen {
		cut := titleMaxLen
		for cut > 0 && !utf8.RuneStart(title[cut]) {
			cut--
		}
		title = title[:cut]
	}
	return title, text
}

// Worker polls for unprocessed raw events and turns dictation events
// into pending candidates.
type Worker struct {
	store    *store.Store
	interval time.Duration
	clock    func() string
}

// New creates a worker polling at the given interval.
func New(st *store.Store, interval time.Duration) *Worker {
	return &Worker{store: st, interval: interval, clock: domain.NowTimestamp}
}

// Run polls until the context is cancelled.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := w.ProcessPending(); err != nil {
				log.Printf("worker: %v", err)
			} else if n > 0 {
				log.Printf("worker: processed %d raw events", n)
			}
		}
	}
}

// ProcessPending handles all currently unprocessed raw events and
// returns how many it processed. Dictation events become pending
// candidates; events from other sources are only marked processed.
func (w *Worker) ProcessPending() (int, error) {
	events, err := w.store.List(domain.CollectionRawEvents)
	if err != nil {
		return 0, err
	}

	processed := 0
	for _, ev := range events {
		if done, _ := ev["processed"].(bool); done {
			continue
		}
		if err := w.process(ev); err != nil {
			return processed, err
		}
		processed++
	}
	return processed, nil
}

func (w *Worker) process(ev record.Record) error {
	source, _ := ev["source"].(string)
	text, _ := ev["payload"].(string)

	var candidate record.Record
	if source == ingest.SourceDictation && text != "" {
		title, description := Summarize(text)
		candidate = record.Record{
			"id":          uuid.New().String(),
			"title":       title,
			"description": description,
			"status":      domain.CandidateStatusPending,
			"created_at":  w.clock(),
		}
		if id, ok := ev.Key(); ok {
			candidate["raw_event_id"] = id
		}
	}

	return w.store.WithTx(func(tx *sql.Tx) error {
		if candidate != nil {
			if err := store.UpsertTx(tx, domain.CollectionTaskCandidates, candidate); err != nil {
				return err
			}
		}
		done := ev.Clone()
		done["processed"] = true
		return store.UpsertTx(tx, domain.CollectionRawEvents, done)
	})
}
