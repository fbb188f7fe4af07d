package record

import (
	"encoding/json"
	"fmt"

	"github.com/lifeos/tasks/internal/domain"
)

// Bundle is a parsed import document: incoming records grouped under
// the five known collection names, order preserved within a collection.
type Bundle struct {
	// Collections maps collection name to incoming records in document
	// order. Every known collection has an entry, possibly empty.
	Collections map[string][]Record

	// Malformed counts records dropped per collection for lacking a
	// usable id. They never reach collision detection or commit.
	Malformed map[string]int
}

// MalformedError indicates an import payload whose shape cannot be
// parsed into a bundle.
type MalformedError struct {
	Collection string
	Reason     string
}

func (e *MalformedError) Error() string {
	if e.Collection != "" {
		return fmt.Sprintf("malformed bundle: collection %s: %s", e.Collection, e.Reason)
	}
	return fmt.Sprintf("malformed bundle: %s", e.Reason)
}

// ParseBundle decodes an export document into a Bundle.
//
// Unknown top-level keys are ignored for forward compatibility. Records
// without a usable id are dropped and counted in Malformed. Fails with
// *MalformedError when the payload is not a JSON object or a known
// collection's value is not a list of JSON objects.
func ParseBundle(data []byte) (*Bundle, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil || doc == nil {
		// Unmarshal accepts JSON null into a map, leaving it nil.
		return nil, &MalformedError{Reason: "payload is not a JSON object"}
	}

	b := &Bundle{
		Collections: make(map[string][]Record, len(domain.Collections)),
		Malformed:   make(map[string]int, len(domain.Collections)),
	}

	for _, name := range domain.Collections {
		b.Collections[name] = nil
		b.Malformed[name] = 0

		raw, ok := doc[name]
		if !ok {
			continue
		}

		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil || items == nil {
			// nil distinguishes JSON null from an empty list.
			return nil, &MalformedError{Collection: name, Reason: "value is not a list"}
		}

		records := make([]Record, 0, len(items))
		for _, item := range items {
			rec, err := DecodeRecord(item)
			if err != nil || rec == nil {
				return nil, &MalformedError{Collection: name, Reason: "list contains a non-object entry"}
			}
			if _, ok := rec.Key(); !ok {
				b.Malformed[name]++
				continue
			}
			records = append(records, rec)
		}
		b.Collections[name] = records
	}

	return b, nil
}

// MalformedTotal returns the number of dropped records across all
// collections.
func (b *Bundle) MalformedTotal() int {
	total := 0
	for _, n := range b.Malformed {
		total += n
	}
	return total
}
