package graph

import (
	"testing"

	"github.com/rti/askwikidata/engine/wikidata"
)

type mapLookup map[string]string

func (m mapLookup) Label(id string) (string, bool) {
	v, ok := m[id]
	return v, ok
}

func TestTriplesFrom(t *testing.T) {
	lookup := mapLookup{
		"P6":    "head of government",
		"P281":  "postal code",
		"P131":  "located in the administrative territorial entity",
		"Q2462": "Kai Wegner",
	}
	e := &wikidata.Entity{
		ID:     "Q64",
		Type:   wikidata.TypeItem,
		Labels: map[string]wikidata.Term{"en": {Value: "Berlin"}},
		Claims: map[string][]wikidata.Statement{
			"P6": {{MainSnak: wikidata.Snak{
				SnakType: wikidata.ValueSnak,
				DataType: wikidata.DatatypeItem,
				Value:    wikidata.ItemValue{ID: "Q2462"},
			}}},
			// String claims carry no graph edge.
			"P281": {{MainSnak: wikidata.Snak{
				SnakType: wikidata.ValueSnak,
				DataType: wikidata.DatatypeString,
				Value:    wikidata.StringValue{S: "10115"},
			}}},
			// Unresolvable object label.
			"P131": {{MainSnak: wikidata.Snak{
				SnakType: wikidata.ValueSnak,
				DataType: wikidata.DatatypeItem,
				Value:    wikidata.ItemValue{ID: "Q999"},
			}}},
		},
	}

	got := TriplesFrom(e, lookup)
	if len(got) != 1 {
		t.Fatalf("got %d triples, want 1: %v", len(got), got)
	}
	want := Triple{
		SubjectID: "Q64", SubjectLabel: "Berlin",
		Property: "P6", PropertyLabel: "head of government",
		ObjectID: "Q2462", ObjectLabel: "Kai Wegner",
	}
	if got[0] != want {
		t.Errorf("triple = %+v, want %+v", got[0], want)
	}
}

func TestTriplesFromNonItem(t *testing.T) {
	if got := TriplesFrom(&wikidata.Entity{Type: wikidata.TypeProperty}, mapLookup{}); got != nil {
		t.Errorf("property entities must yield no triples, got %v", got)
	}
	if got := TriplesFrom(nil, mapLookup{}); got != nil {
		t.Errorf("nil entity must yield no triples, got %v", got)
	}
}

func TestTriplesFromRequiresSubjectLabel(t *testing.T) {
	e := &wikidata.Entity{
		ID:   "Q64",
		Type: wikidata.TypeItem,
		Claims: map[string][]wikidata.Statement{
			"P6": {{MainSnak: wikidata.Snak{
				SnakType: wikidata.ValueSnak,
				DataType: wikidata.DatatypeItem,
				Value:    wikidata.ItemValue{ID: "Q2462"},
			}}},
		},
	}
	if got := TriplesFrom(e, mapLookup{"P6": "x", "Q2462": "y"}); got != nil {
		t.Errorf("missing subject label must yield no triples, got %v", got)
	}
}
