package merge

import (
	"database/sql"
	"fmt"

	"github.com/lifeos/tasks/internal/domain"
	"github.com/lifeos/tasks/internal/events"
	"github.com/lifeos/tasks/internal/record"
	"github.com/lifeos/tasks/internal/store"
)

// Commit applies the bundle to the store as a single atomic unit across
// all five collections: either every record is committed or none are.
//
// Collisions are re-checked against the live store inside the
// transaction rather than trusted from any earlier preview, so records
// created or modified since the preview are still merged correctly.
// The result is determined solely by the bundle, the store state at
// commit time, and the overrides. Fails with *CommitFailedError and
// leaves the store unchanged if the transaction cannot complete.
func Commit(st *store.Store, b *record.Bundle, overrides Overrides) (*Result, error) {
	result := &Result{Counts: make(map[string]Counts, len(domain.Collections))}

	err := st.WithTx(func(tx *sql.Tx) error {
		for _, collection := range domain.Collections {
			counts := Counts{}
			for _, incoming := range b.Collections[collection] {
				id, ok := incoming.Key()
				if !ok {
					return fmt.Errorf("%s: record has no usable id", collection)
				}

				existing, found, err := store.GetTx(tx, collection, id)
				if err != nil {
					return err
				}

				var resolved record.Record
				if found {
					resolved = Resolve(existing, incoming, overrides.For(collection, id))
					counts.Merged++
				} else {
					resolved = Resolve(nil, incoming, nil)
					counts.Inserted++
				}

				if err := store.UpsertTx(tx, collection, resolved); err != nil {
					return err
				}
			}
			result.Counts[collection] = counts
		}

		return events.NewWriter(st.DB().DB).LogImportCommitted(tx, result.Counts)
	})
	if err != nil {
		return nil, &CommitFailedError{Err: err}
	}

	return result, nil
}
