// Package wikidata models the subset of the Wikidata dump schema used for
// question answering and provides a streaming reader for the
// newline-delimited JSON dump format.
package wikidata

import (
	"encoding/json"
	"strings"
)

// Entity types as they appear in the dump.
const (
	TypeItem     = "item"
	TypeProperty = "property"
)

// Snak types. Only ValueSnak carries a datavalue.
const (
	ValueSnak = "value"
	SomeValue = "somevalue"
	NoValue   = "novalue"
)

// Datatypes rendered by the textifier. Other datatypes decode with a nil
// Value and are skipped downstream.
const (
	DatatypeItem     = "wikibase-item"
	DatatypeTime     = "time"
	DatatypeString   = "string"
	DatatypeQuantity = "quantity"
)

// Term is a single-language label or description.
type Term struct {
	Language string `json:"language"`
	Value    string `json:"value"`
}

// Entity is one record of the dump: an item or a property with its labels,
// descriptions and claims. Entities are immutable after decoding.
type Entity struct {
	ID           string                 `json:"id"`
	Type         string                 `json:"type"`
	Labels       map[string]Term        `json:"labels"`
	Descriptions map[string]Term        `json:"descriptions"`
	Claims       map[string][]Statement `json:"claims"`
}

// Label returns the entity label in the given language.
func (e *Entity) Label(lang string) (string, bool) {
	t, ok := e.Labels[lang]
	if !ok || t.Value == "" {
		return "", false
	}
	return t.Value, true
}

// Description returns the entity description in the given language.
func (e *Entity) Description(lang string) (string, bool) {
	t, ok := e.Descriptions[lang]
	if !ok || t.Value == "" {
		return "", false
	}
	return t.Value, true
}

// ClaimItemIDs returns the ids of all wikibase-item values asserted for the
// given property, e.g. the classes an entity is an instance of.
func (e *Entity) ClaimItemIDs(property string) []string {
	var ids []string
	for _, st := range e.Claims[property] {
		if iv, ok := st.MainSnak.Value.(ItemValue); ok {
			ids = append(ids, iv.ID)
		}
	}
	return ids
}

// Statement is a property-value assertion with optional qualifiers.
type Statement struct {
	MainSnak   Snak              `json:"mainsnak"`
	Qualifiers map[string][]Snak `json:"qualifiers,omitempty"`
}

// QualifierTime returns the time string of the first time-valued qualifier
// snak for the given property, or "" when absent.
func (s *Statement) QualifierTime(property string) string {
	for _, snak := range s.Qualifiers[property] {
		if tv, ok := snak.Value.(TimeValue); ok {
			return tv.Time
		}
	}
	return ""
}

// Snak is the atomic value slot of a claim. Value is nil unless SnakType is
// "value" and the datatype is one this system understands.
type Snak struct {
	SnakType string
	Property string
	DataType string
	Value    Value
}

// Value is the decoded datavalue of a snak, a closed sum over the
// datatypes the textifier renders.
type Value interface{ snakValue() }

// ItemValue references another entity.
type ItemValue struct {
	ID string
}

// TimeValue carries an ISO-like timestamp of the form
// ±YYYY-MM-DDThh:mm:ssZ (possibly abbreviated to ±YYYY or ±YYYY-MM).
type TimeValue struct {
	Time string
}

// StringValue is a plain string datavalue.
type StringValue struct {
	S string
}

// QuantityValue is a signed decimal amount with an optional unit entity
// URL ("1" means unitless).
type QuantityValue struct {
	Amount string
	Unit   string
}

func (ItemValue) snakValue()     {}
func (TimeValue) snakValue()     {}
func (StringValue) snakValue()   {}
func (QuantityValue) snakValue() {}

// NoUnit reports whether the quantity's unit denotes "no unit": either the
// literal "1", empty, or the Q199 sentinel entity.
func (q QuantityValue) NoUnit() bool {
	switch q.Unit {
	case "", "1", "http://www.wikidata.org/entity/Q199":
		return true
	}
	return false
}

// UnitID extracts the entity id from the unit URL.
func (q QuantityValue) UnitID() string {
	i := strings.LastIndexByte(q.Unit, '/')
	return q.Unit[i+1:]
}

type rawSnak struct {
	SnakType  string `json:"snaktype"`
	Property  string `json:"property"`
	DataType  string `json:"datatype"`
	DataValue struct {
		Value json.RawMessage `json:"value"`
	} `json:"datavalue"`
}

// UnmarshalJSON decodes the snak envelope and, for value snaks, the
// datatype-specific payload. Unknown datatypes leave Value nil rather than
// failing the whole entity.
func (s *Snak) UnmarshalJSON(data []byte) error {
	var raw rawSnak
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	s.SnakType = raw.SnakType
	s.Property = raw.Property
	s.DataType = raw.DataType
	s.Value = nil

	if raw.SnakType != ValueSnak || len(raw.DataValue.Value) == 0 {
		return nil
	}

	switch raw.DataType {
	case DatatypeItem:
		var v struct {
			EntityType string `json:"entity-type"`
			ID         string `json:"id"`
		}
		if err := json.Unmarshal(raw.DataValue.Value, &v); err != nil {
			return err
		}
		if v.EntityType == TypeItem && v.ID != "" {
			s.Value = ItemValue{ID: v.ID}
		}
	case DatatypeTime:
		var v struct {
			Time string `json:"time"`
		}
		if err := json.Unmarshal(raw.DataValue.Value, &v); err != nil {
			return err
		}
		s.Value = TimeValue{Time: v.Time}
	case DatatypeString:
		var v string
		if err := json.Unmarshal(raw.DataValue.Value, &v); err != nil {
			return err
		}
		s.Value = StringValue{S: v}
	case DatatypeQuantity:
		var v struct {
			Amount string `json:"amount"`
			Unit   string `json:"unit"`
		}
		if err := json.Unmarshal(raw.DataValue.Value, &v); err != nil {
			return err
		}
		s.Value = QuantityValue{Amount: v.Amount, Unit: v.Unit}
	}
	return nil
}
