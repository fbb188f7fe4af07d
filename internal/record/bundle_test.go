package record

import (
	"errors"
	"testing"
)

func TestParseBundleValid(t *testing.T) {
	data := []byte(`{
		"tasks": [{"id": "t1", "title": "Write report"}],
		"raw_events": [{"id": "e1", "source": "dictation"}],
		"exported_at": "2026-01-02T03:04:05Z"
	}`)

	b, err := ParseBundle(data)
	if err != nil {
		t.Fatalf("ParseBundle failed: %v", err)
	}

	if len(b.Collections["tasks"]) != 1 {
		t.Fatalf("expected 1 task, got %d", len(b.Collections["tasks"]))
	}
	if b.Collections["tasks"][0]["title"] != "Write report" {
		t.Errorf("unexpected task: %v", b.Collections["tasks"][0])
	}
	if len(b.Collections["raw_events"]) != 1 {
		t.Errorf("expected 1 raw event, got %d", len(b.Collections["raw_events"]))
	}
	if len(b.Collections["ai_suggestions"]) != 0 {
		t.Errorf("absent collection should be empty")
	}
	if b.MalformedTotal() != 0 {
		t.Errorf("expected no malformed records, got %d", b.MalformedTotal())
	}
}

func TestParseBundleNotAnObject(t *testing.T) {
	for _, payload := range []string{`[]`, `"x"`, `42`, `null`, `not json`} {
		_, err := ParseBundle([]byte(payload))
		var malformed *MalformedError
		if !errors.As(err, &malformed) {
			t.Errorf("payload %q: expected MalformedError, got %v", payload, err)
		}
	}
}

func TestParseBundleCollectionNotAList(t *testing.T) {
	_, err := ParseBundle([]byte(`{"tasks": {"id": "t1"}}`))
	var malformed *MalformedError
	if !errors.As(err, &malformed) {
		t.Fatalf("expected MalformedError, got %v", err)
	}
	if malformed.Collection != "tasks" {
		t.Errorf("expected collection tasks, got %q", malformed.Collection)
	}
}

func TestParseBundleNullCollection(t *testing.T) {
	_, err := ParseBundle([]byte(`{"tasks": null}`))
	var malformed *MalformedError
	if !errors.As(err, &malformed) {
		t.Fatalf("expected MalformedError for null collection, got %v", err)
	}
	if malformed.Collection != "tasks" {
		t.Errorf("expected collection tasks, got %q", malformed.Collection)
	}
}

func TestParseBundleNonObjectEntry(t *testing.T) {
	for _, payload := range []string{
		`{"tasks": [{"id": "t1"}, "oops"]}`,
		`{"tasks": [null]}`,
		`{"tasks": [42]}`,
	} {
		_, err := ParseBundle([]byte(payload))
		var malformed *MalformedError
		if !errors.As(err, &malformed) {
			t.Errorf("payload %q: expected MalformedError, got %v", payload, err)
		}
	}
}

func TestParseBundleMissingIDSkipped(t *testing.T) {
	data := []byte(`{"tasks": [{"id": "t1"}, {"title": "no id"}, {"id": ""}]}`)

	b, err := ParseBundle(data)
	if err != nil {
		t.Fatalf("ParseBundle failed: %v", err)
	}

	if len(b.Collections["tasks"]) != 1 {
		t.Errorf("expected 1 usable task, got %d", len(b.Collections["tasks"]))
	}
	if b.Malformed["tasks"] != 2 {
		t.Errorf("expected 2 malformed tasks, got %d", b.Malformed["tasks"])
	}
}

func TestParseBundleNumericID(t *testing.T) {
	b, err := ParseBundle([]byte(`{"tasks": [{"id": 7, "title": "n"}]}`))
	if err != nil {
		t.Fatalf("ParseBundle failed: %v", err)
	}

	key, ok := b.Collections["tasks"][0].Key()
	if !ok || key != "7" {
		t.Errorf("expected key 7, got %q ok=%v", key, ok)
	}
}

func TestParseBundleLargeIntegerID(t *testing.T) {
	b, err := ParseBundle([]byte(`{"tasks": [{"id": 9007199254740993}]}`))
	if err != nil {
		t.Fatalf("ParseBundle failed: %v", err)
	}

	key, ok := b.Collections["tasks"][0].Key()
	if !ok || key != "9007199254740993" {
		t.Errorf("expected exact key 9007199254740993, got %q ok=%v", key, ok)
	}
}

func TestParseBundleIgnoresUnknownCollections(t *testing.T) {
	b, err := ParseBundle([]byte(`{"widgets": [{"id": "w1"}], "tasks": []}`))
	if err != nil {
		t.Fatalf("ParseBundle failed: %v", err)
	}
	if _, ok := b.Collections["widgets"]; ok {
		t.Error("unknown collection should not be parsed")
	}
}
