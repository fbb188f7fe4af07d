package merge

import (
	"github.com/lifeos/tasks/internal/record"
)

// Resolve folds operator choices over the diff between an existing and
// an incoming record and returns the final record to store.
//
// A non-colliding record (existing == nil) resolves to the incoming
// record unchanged; overrides do not apply. For a colliding record the
// incoming record is the base, and every field explicitly marked
// "existing" takes the existing record's value (or is removed when the
// field is absent from the existing record). Overrides are applied only
// through the diff, so choices for fields that are equal on both sides,
// or absent from both, are no-ops rather than errors.
//
// Pure function: no store access, same inputs always yield the same
// output.
func Resolve(existing, incoming record.Record, overrides map[string]string) record.Record {
	if existing == nil {
		return incoming.Clone()
	}

	resolved := incoming.Clone()
	if len(overrides) == 0 {
		return resolved
	}

	diff := Diff(existing, incoming)
	for field, choice := range overrides {
		if choice != ChoiceExisting {
			continue
		}
		change, ok := diff[field]
		if !ok {
			continue
		}
		if change.ExistingMissing {
			delete(resolved, field)
			continue
		}
		resolved[field] = change.Existing
	}

	return resolved
}
