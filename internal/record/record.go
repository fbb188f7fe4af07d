// Package record provides the schema-free JSON records stored in the
// five collections, plus bundle parsing for export/import.
//
// Records are untyped maps rather than fixed structs: fields vary by
// collection and across exported versions, and the import engine must
// round-trip fields it has never seen.
package record

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Record is a schema-free mapping from field name to JSON value
// (string, json.Number, float64, bool, nil, map[string]any, []any).
type Record map[string]any

// DecodeRecord decodes a JSON object into a Record. Numbers decode as
// json.Number so integer ids beyond float64 precision keep their exact
// text.
func DecodeRecord(data []byte) (Record, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var rec Record
	if err := dec.Decode(&rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// FieldID is the field every record must carry.
const FieldID = "id"

// Key returns the record's stable string key derived from its id field.
// String ids are used as-is; numbers are formatted without a trailing
// fractional part. Returns false for missing, empty, or unusable ids.
func (r Record) Key() (string, bool) {
	v, ok := r[FieldID]
	if !ok {
		return "", false
	}
	return KeyOf(v)
}

// KeyOf coerces a raw id value to a stable string key.
func KeyOf(v any) (string, bool) {
	switch id := v.(type) {
	case string:
		if id == "" {
			return "", false
		}
		return id, true
	case json.Number:
		if i, err := id.Int64(); err == nil {
			return strconv.FormatInt(i, 10), true
		}
		// Integer wider than int64: the literal text is already exact.
		if s := id.String(); !strings.ContainsAny(s, ".eE") {
			return s, true
		}
		f, err := id.Float64()
		if err != nil {
			return "", false
		}
		return strconv.FormatFloat(f, 'f', -1, 64), true
	case float64:
		if math.IsNaN(id) || math.IsInf(id, 0) {
			return "", false
		}
		return strconv.FormatFloat(id, 'f', -1, 64), true
	}
	return "", false
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = cloneValue(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}

// Equal compares two JSON values by deep structural equality.
// Objects and lists are compared recursively, scalars by value; numbers
// compare numerically so 1 and 1.0 are equal. JSON null (nil) equals
// only nil.
func Equal(a, b any) bool {
	if r, ok := a.(Record); ok {
		a = map[string]any(r)
	}
	if r, ok := b.(Record); ok {
		b = map[string]any(r)
	}
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	// Identical number literals are equal even beyond float64 precision.
	if an, aok := a.(json.Number); aok {
		if bn, bok := b.(json.Number); bok && an == bn {
			return true
		}
	}

	if na, aok := numberOf(a); aok {
		nb, bok := numberOf(b)
		return bok && na == nb
	}

	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case map[string]any:
		bv, ok := b.(map[string]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, item := range av {
			other, present := bv[k]
			if !present || !Equal(item, other) {
				return false
			}
		}
		return true
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i, item := range av {
			if !Equal(item, bv[i]) {
				return false
			}
		}
		return true
	}

	return false
}

// numberOf widens all numeric kinds to float64 so records built in code
// compare the same as records decoded from JSON.
func numberOf(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
