package merge

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/lifeos/tasks/internal/domain"
	"github.com/lifeos/tasks/internal/record"
	"github.com/lifeos/tasks/internal/store"
)

// labelMaxLen bounds the flattened sample label.
const labelMaxLen = 100

// BuildPreview computes a point-in-time summary of what importing the
// bundle would do: per-collection counts, collision id lists, bounded
// samples, and field diffs for every colliding record.
//
// Read-only: it performs no store writes and takes no locks, so a later
// commit may observe a different store. Commit recomputes collisions
// and diffs itself and never trusts a Preview.
func BuildPreview(st *store.Store, b *record.Bundle) (*PreviewResult, error) {
	result := &PreviewResult{
		Preview: Preview{
			Counts:    make(map[string]int, len(domain.Collections)),
			Samples:   make(map[string][]Sample, len(domain.Collections)),
			Diffs:     make(map[string]map[string]FieldDiff, len(domain.Collections)),
			Malformed: b.Malformed,
		},
		Collisions: make(map[string][]string, len(domain.Collections)),
	}

	for _, collection := range domain.Collections {
		records := b.Collections[collection]
		result.Preview.Counts[collection] = len(records)

		ids := make([]string, 0, len(records))
		for _, rec := range records {
			id, _ := rec.Key()
			ids = append(ids, id)
		}

		existing, err := st.ExistingIDs(collection, ids)
		if err != nil {
			return nil, fmt.Errorf("failed to detect collisions in %s: %w", collection, err)
		}
		result.Collisions[collection] = store.SortedIDs(existing)

		samples := make([]Sample, 0, SampleLimit)
		for _, rec := range records {
			if len(samples) == SampleLimit {
				break
			}
			id, _ := rec.Key()
			samples = append(samples, Sample{ID: id, Label: flattenLabel(rec)})
		}
		result.Preview.Samples[collection] = samples

		diffs := make(map[string]FieldDiff)
		for _, rec := range records {
			id, _ := rec.Key()
			if !existing[id] {
				continue
			}
			current, ok, err := st.Get(collection, id)
			if err != nil {
				return nil, fmt.Errorf("failed to load %s/%s: %w", collection, id, err)
			}
			if !ok {
				// Deleted between the id scan and now; it will be an
				// insert at commit time.
				continue
			}
			if d := Diff(current, rec); len(d) > 0 {
				diffs[id] = d
			}
		}
		result.Preview.Diffs[collection] = diffs
	}

	return result, nil
}

// flattenLabel renders a record as a short one-line label: its
// non-empty scalar field values joined in sorted field order.
func flattenLabel(rec record.Record) string {
	fields := make([]string, 0, len(rec))
	for k := range rec {
		if k == record.FieldID {
			continue
		}
		fields = append(fields, k)
	}
	sort.Strings(fields)

	var parts []string
	for _, field := range fields {
		if s := scalarString(rec[field]); s != "" {
			parts = append(parts, s)
		}
	}

	return truncateRunes(strings.Join(parts, ", "), labelMaxLen)
}

func scalarString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case json.Number:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	}
	return ""
}

// truncateRunes caps s at max bytes without splitting a rune.
func truncateRunes(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
