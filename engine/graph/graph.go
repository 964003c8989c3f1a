// Package graph persists claim triples into Neo4j alongside the vector
// store. The graph is an optional ingestion sink: it keeps the
// (subject)-[property]->(object) structure of item claims queryable for
// inspection.
package graph

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/rti/askwikidata/engine/wikidata"
)

// Triple is one wikibase-item claim with its resolved labels.
type Triple struct {
	SubjectID     string
	SubjectLabel  string
	Property      string
	PropertyLabel string
	ObjectID      string
	ObjectLabel   string
}

// LabelLookup resolves entity and property ids to labels.
type LabelLookup interface {
	Label(id string) (string, bool)
}

// TriplesFrom extracts the item-valued claims of an entity. Claims whose
// property or object label cannot be resolved are skipped.
func TriplesFrom(e *wikidata.Entity, lookup LabelLookup) []Triple {
	if e == nil || e.Type != wikidata.TypeItem {
		return nil
	}
	subjectLabel, ok := e.Label("en")
	if !ok {
		return nil
	}

	var out []Triple
	for prop, statements := range e.Claims {
		propLabel, ok := lookup.Label(prop)
		if !ok {
			continue
		}
		for i := range statements {
			iv, ok := statements[i].MainSnak.Value.(wikidata.ItemValue)
			if !ok {
				continue
			}
			objectLabel, ok := lookup.Label(iv.ID)
			if !ok {
				continue
			}
			out = append(out, Triple{
				SubjectID:     e.ID,
				SubjectLabel:  subjectLabel,
				Property:      prop,
				PropertyLabel: propLabel,
				ObjectID:      iv.ID,
				ObjectLabel:   objectLabel,
			})
		}
	}
	return out
}

// Store writes triples into Neo4j.
type Store struct {
	driver neo4j.DriverWithContext
}

// New creates a Store on an existing driver.
func New(driver neo4j.DriverWithContext) *Store {
	return &Store{driver: driver}
}

// SaveTriples merges entities and CLAIM relationships for a batch of
// triples in one write transaction.
func (s *Store) SaveTriples(ctx context.Context, triples []Triple) error {
	if len(triples) == 0 {
		return nil
	}

	rows := make([]map[string]any, len(triples))
	for i, t := range triples {
		rows[i] = map[string]any{
			"subject_id":     t.SubjectID,
			"subject_label":  t.SubjectLabel,
			"property":       t.Property,
			"property_label": t.PropertyLabel,
			"object_id":      t.ObjectID,
			"object_label":   t.ObjectLabel,
		}
	}

	sess := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer sess.Close(ctx)

	cypher := `UNWIND $rows AS row
MERGE (s:Entity {id: row.subject_id}) SET s.label = row.subject_label
MERGE (o:Entity {id: row.object_id}) SET o.label = row.object_label
MERGE (s)-[r:CLAIM {property: row.property}]->(o) SET r.label = row.property_label`

	_, err := sess.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return tx.Run(ctx, cypher, map[string]any{"rows": rows})
	})
	if err != nil {
		return fmt.Errorf("graph: save %d triples: %w", len(triples), err)
	}
	return nil
}
