package merge

import (
	"sort"

	"github.com/lifeos/tasks/internal/record"
)

// Diff computes the field-level difference between an existing and an
// incoming record: the union of field names, restricted to fields whose
// values are not deeply equal. A field absent on one side is marked
// missing on that side. Pure and deterministic; field order does not
// affect output membership.
func Diff(existing, incoming record.Record) FieldDiff {
	diff := make(FieldDiff)

	for _, field := range unionFields(existing, incoming) {
		ev, inExisting := existing[field]
		iv, inIncoming := incoming[field]

		if inExisting && inIncoming && record.Equal(ev, iv) {
			continue
		}

		diff[field] = FieldChange{
			Existing:        ev,
			Incoming:        iv,
			ExistingMissing: !inExisting,
			IncomingMissing: !inIncoming,
		}
	}

	return diff
}

// unionFields collects all field names from both records, sorted for
// deterministic iteration.
func unionFields(a, b record.Record) []string {
	all := make(map[string]bool, len(a)+len(b))
	for k := range a {
		all[k] = true
	}
	for k := range b {
		all[k] = true
	}

	fields := make([]string, 0, len(all))
	for k := range all {
		fields = append(fields, k)
	}
	sort.Strings(fields)
	return fields
}
