package merge

import (
	"testing"

	"github.com/lifeos/tasks/internal/record"
)

func TestResolveIncomingWinsByDefault(t *testing.T) {
	existing := record.Record{"id": "t1", "title": "old", "priority": "low"}
	incoming := record.Record{"id": "t1", "title": "new", "priority": "high"}

	resolved := Resolve(existing, incoming, nil)
	if resolved["title"] != "new" || resolved["priority"] != "high" {
		t.Errorf("unexpected resolution: %v", resolved)
	}
}

func TestResolveExistingOverride(t *testing.T) {
	existing := record.Record{"id": "t1", "title": "old", "priority": "low"}
	incoming := record.Record{"id": "t1", "title": "new", "priority": "high"}

	resolved := Resolve(existing, incoming, map[string]string{"priority": ChoiceExisting})
	if resolved["title"] != "new" {
		t.Errorf("title should take incoming value, got %v", resolved["title"])
	}
	if resolved["priority"] != "low" {
		t.Errorf("priority should take existing value, got %v", resolved["priority"])
	}
}

func TestResolveExistingMissingRemovesField(t *testing.T) {
	existing := record.Record{"id": "t1"}
	incoming := record.Record{"id": "t1", "due": "2026-02-01"}

	resolved := Resolve(existing, incoming, map[string]string{"due": ChoiceExisting})
	if _, ok := resolved["due"]; ok {
		t.Errorf("due should be absent, got %v", resolved["due"])
	}
}

func TestResolveOverrideOnEqualFieldIsNoOp(t *testing.T) {
	existing := record.Record{"id": "t1", "title": "same"}
	incoming := record.Record{"id": "t1", "title": "same"}

	resolved := Resolve(existing, incoming, map[string]string{
		"title":   ChoiceExisting,
		"phantom": ChoiceExisting,
	})
	if resolved["title"] != "same" {
		t.Errorf("unexpected title: %v", resolved["title"])
	}
	if _, ok := resolved["phantom"]; ok {
		t.Error("override on an absent field must not create it")
	}
}

func TestResolveNoCollision(t *testing.T) {
	incoming := record.Record{"id": "t1", "title": "fresh"}

	resolved := Resolve(nil, incoming, map[string]string{"title": ChoiceExisting})
	if resolved["title"] != "fresh" {
		t.Errorf("overrides must not apply to inserts, got %v", resolved["title"])
	}
}

func TestResolveDoesNotMutateInputs(t *testing.T) {
	existing := record.Record{"id": "t1", "title": "old"}
	incoming := record.Record{"id": "t1", "title": "new", "extra": "x"}

	resolved := Resolve(existing, incoming, map[string]string{"extra": ChoiceExisting})
	resolved["title"] = "mutated"

	if existing["title"] != "old" {
		t.Error("existing record was mutated")
	}
	if incoming["title"] != "new" {
		t.Error("incoming record was mutated")
	}
	if _, ok := incoming["extra"]; !ok {
		t.Error("incoming record lost a field")
	}
}
