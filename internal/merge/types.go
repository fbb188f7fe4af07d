// Package merge implements the import reconciliation engine: collision
// detection against the live store, field-level diffs between existing
// and incoming records, operator override resolution, and the atomic
// commit of a merged bundle.
package merge

import (
	"fmt"
)

// Override choices.
const (
	ChoiceExisting = "existing"
	ChoiceIncoming = "incoming"
)

// FieldChange is one differing field: the existing and incoming values,
// with explicit markers for a side where the field is absent (distinct
// from a JSON null value).
type FieldChange struct {
	Existing        any  `json:"existing"`
	Incoming        any  `json:"incoming"`
	ExistingMissing bool `json:"existing_missing,omitempty"`
	IncomingMissing bool `json:"incoming_missing,omitempty"`
}

// FieldDiff maps field name to its change, restricted to fields where
// existing and incoming are not deeply equal.
type FieldDiff map[string]FieldChange

// Overrides maps collection -> record id -> field -> choice. Any field
// not present defaults to incoming; entries that do not correspond to a
// diffed field are ignored.
type Overrides map[string]map[string]map[string]string

// For returns the per-field choices for one record, or nil.
func (o Overrides) For(collection, id string) map[string]string {
	if o == nil {
		return nil
	}
	return o[collection][id]
}

// ValidateOverrides rejects override choices other than "existing" or
// "incoming". Unknown collections, ids, and fields are allowed; they
// simply never match a diff.
func ValidateOverrides(o Overrides) error {
	for collection, byID := range o {
		for id, byField := range byID {
			for field, choice := range byField {
				if choice != ChoiceExisting && choice != ChoiceIncoming {
					return fmt.Errorf("invalid override %s/%s.%s: %q (must be existing or incoming)", collection, id, field, choice)
				}
			}
		}
	}
	return nil
}

// Sample is one bounded preview entry: the record id plus a flattened
// label built from the record's non-empty field values.
type Sample struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// Preview summarizes what an import would do. It is ephemeral and
// carries no authority over the eventual merge.
type Preview struct {
	Counts    map[string]int                 `json:"counts"`
	Samples   map[string][]Sample            `json:"samples"`
	Diffs     map[string]map[string]FieldDiff `json:"diffs"`
	Malformed map[string]int                 `json:"malformed,omitempty"`
}

// PreviewResult is the full preview response: the preview plus the
// per-collection collision id lists.
type PreviewResult struct {
	Preview    Preview             `json:"preview"`
	Collisions map[string][]string `json:"collisions"`
}

// Counts reports inserted vs merged records for one collection.
type Counts struct {
	Inserted int `json:"inserted"`
	Merged   int `json:"merged"`
}

// Result is the outcome of a committed import.
type Result struct {
	Counts map[string]Counts `json:"counts"`
}

// CommitFailedError wraps a store failure during commit. The store is
// left in its pre-commit state.
type CommitFailedError struct {
	Err error
}

func (e *CommitFailedError) Error() string {
	return fmt.Sprintf("commit failed: %v", e.Err)
}

func (e *CommitFailedError) Unwrap() error {
	return e.Err
}

// SampleLimit bounds per-collection preview samples.
const SampleLimit = 5
