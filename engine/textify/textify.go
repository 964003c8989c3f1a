// Package textify turns the claims of a dump entity into short English
// sentences suitable for embedding: subject, property phrase, object,
// optional temporal span. The surface forms are deterministic so that a
// re-ingestion produces identical chunks.
package textify

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rti/askwikidata/engine/wikidata"
)

// LabelLookup resolves entity and property ids to their human-readable
// label and description. Backed by the labels.Store in production.
type LabelLookup interface {
	Label(id string) (string, bool)
	Description(id string) (string, bool)
}

// Sentence is one rendered claim, attributed to its subject entity.
type Sentence struct {
	EntityID string
	Text     string
}

// Textifier renders entities. Safe for concurrent use; the lookup must
// support concurrent readers.
type Textifier struct {
	lookup LabelLookup
	cfg    Config
}

// New creates a Textifier. Zero-valued Config fields fall back to the
// defaults.
func New(lookup LabelLookup, cfg Config) *Textifier {
	if cfg.Rewrites == nil {
		cfg.Rewrites = DefaultRewrites()
	}
	if cfg.Skip == nil {
		cfg.Skip = DefaultSkip()
	}
	if cfg.ScholarClass == "" {
		cfg.ScholarClass = ScholarArticleClass
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Textifier{lookup: lookup, cfg: cfg}
}

// Sentences renders all renderable claims of an item entity, in
// property-id order. It returns nil for non-items, for entities missing
// an English label or description, and for scholar articles.
func (t *Textifier) Sentences(e *wikidata.Entity) []Sentence {
	if e == nil || e.Type != wikidata.TypeItem {
		return nil
	}
	subject, ok := e.Label("en")
	if !ok {
		return nil
	}
	subjectDesc, ok := e.Description("en")
	if !ok {
		return nil
	}
	if t.isScholarArticle(e) {
		return nil
	}

	subject = strings.TrimRight(subject, ".")
	subjectDesc = strings.TrimRight(subjectDesc, ".")
	now := t.cfg.Now()

	var out []Sentence
	for _, prop := range sortedProperties(e.Claims) {
		phrase, ok := t.propertyPhrase(prop)
		if !ok {
			continue
		}
		for i := range e.Claims[prop] {
			st := &e.Claims[prop][i]
			text := t.renderStatement(subject, subjectDesc, phrase, st, now)
			if text == "" {
				continue
			}
			out = append(out, Sentence{EntityID: e.ID, Text: text})
		}
	}
	return out
}

// isScholarArticle reports whether any "instance of" claim points at the
// scholar-article class.
func (t *Textifier) isScholarArticle(e *wikidata.Entity) bool {
	for _, id := range e.ClaimItemIDs(PropInstanceOf) {
		if id == t.cfg.ScholarClass {
			return true
		}
	}
	return false
}

// propertyPhrase resolves and rewrites the property label. ok is false
// when the property should not be rendered at all.
func (t *Textifier) propertyPhrase(prop string) (string, bool) {
	label, ok := t.lookup.Label(prop)
	if !ok {
		return "", false
	}
	label = strings.ToLower(label)
	if strings.HasPrefix(label, "category") {
		return "", false
	}
	if _, skip := t.cfg.Skip[label]; skip {
		return "", false
	}
	if rewritten, ok := t.cfg.Rewrites[label]; ok {
		label = rewritten
	}
	return label, true
}

func (t *Textifier) renderStatement(subject, subjectDesc, phrase string, st *wikidata.Statement, now time.Time) string {
	if st.MainSnak.Value == nil {
		return ""
	}

	span, closed := timeSpan(st, now)
	if closed {
		phrase = pastTense(phrase)
	}
	suffix := ""
	if span != "" {
		suffix = " " + span
	}

	switch v := st.MainSnak.Value.(type) {
	case wikidata.ItemValue:
		objectLabel, ok := t.lookup.Label(v.ID)
		if !ok {
			return ""
		}
		objectDesc, ok := t.lookup.Description(v.ID)
		if !ok {
			return ""
		}
		objectLabel = strings.TrimRight(objectLabel, ".")
		objectDesc = strings.TrimRight(objectDesc, ".")
		if t.cfg.IncludeGlosses {
			return subject + " (" + subjectDesc + ") " + phrase + " " + objectLabel + " (" + objectDesc + ")" + suffix + "."
		}
		return subject + " " + phrase + " " + objectLabel + suffix + "."

	case wikidata.TimeValue:
		return subject + " " + phrase + " on " + FormatDate(v.Time) + suffix + "."

	case wikidata.StringValue:
		value := strings.TrimRight(v.S, ".")
		if value == "" {
			return ""
		}
		return subject + " " + phrase + " " + value + suffix + "."

	case wikidata.QuantityValue:
		amount := strings.TrimPrefix(v.Amount, "+")
		if amount == "" {
			return ""
		}
		if v.NoUnit() {
			return subject + " " + phrase + " " + amount + suffix + "."
		}
		unit := v.UnitID()
		if label, ok := t.lookup.Label(unit); ok {
			unit = label
		}
		return subject + " " + phrase + " " + amount + " " + unit + suffix + "."
	}
	return ""
}

// sortedProperties orders claim keys numerically (P6 before P31 before
// P580) so sentence output is deterministic.
func sortedProperties(claims map[string][]wikidata.Statement) []string {
	props := make([]string, 0, len(claims))
	for p := range claims {
		props = append(props, p)
	}
	sort.Slice(props, func(i, j int) bool {
		ni, erri := strconv.Atoi(strings.TrimPrefix(props[i], "P"))
		nj, errj := strconv.Atoi(strings.TrimPrefix(props[j], "P"))
		if erri != nil || errj != nil {
			return props[i] < props[j]
		}
		return ni < nj
	})
	return props
}
