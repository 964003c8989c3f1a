package textify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/rti/askwikidata/engine/wikidata"
)

func TestFormatDate(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"+2016-07-14T00:00:00Z", "2016-07-14"},
		{"+2016-07-00T00:00:00Z", "2016-07"},
		{"+2016-00-00T00:00:00Z", "2016"},
		{"+2016-13-00T00:00:00Z", UnknownDate},
		{"+2016-07-32T00:00:00Z", UnknownDate},
		{"+2016", "2016"},
		{"+2016-07", "2016-07"},
		{"-0044-03-15T00:00:00Z", "0044-03-15"},
		{"", UnknownDate},
		{"garbage", UnknownDate},
		{"+2016-00-14T00:00:00Z", "2016"}, // day ignored at year precision
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatDate(tt.in), "input %q", tt.in)
	}
}

func timeQualifier(prop, value string) (string, []wikidata.Snak) {
	return prop, []wikidata.Snak{{
		SnakType: wikidata.ValueSnak,
		Property: prop,
		DataType: wikidata.DatatypeTime,
		Value:    wikidata.TimeValue{Time: value},
	}}
}

func statementWithQualifiers(quals ...func(map[string][]wikidata.Snak)) *wikidata.Statement {
	st := &wikidata.Statement{Qualifiers: map[string][]wikidata.Snak{}}
	for _, q := range quals {
		q(st.Qualifiers)
	}
	return st
}

func qual(prop, value string) func(map[string][]wikidata.Snak) {
	return func(m map[string][]wikidata.Snak) {
		p, snaks := timeQualifier(prop, value)
		m[p] = snaks
	}
}

func TestTimeSpan(t *testing.T) {
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		st         *wikidata.Statement
		wantSpan   string
		wantClosed bool
	}{
		{
			name:     "start only",
			st:       statementWithQualifiers(qual(PropStartTime, "+2001-06-16T00:00:00Z")),
			wantSpan: "since 2001-06-16 until today",
		},
		{
			name:       "start and end",
			st:         statementWithQualifiers(qual(PropStartTime, "+2001-06-16T00:00:00Z"), qual(PropEndTime, "+2014-12-11T00:00:00Z")),
			wantSpan:   "from 2001-06-16 until 2014-12-11",
			wantClosed: true,
		},
		{
			name:       "end only",
			st:         statementWithQualifiers(qual(PropEndTime, "+2014-12-11T00:00:00Z")),
			wantSpan:   "until 2014-12-11",
			wantClosed: true,
		},
		{
			name:       "past point in time",
			st:         statementWithQualifiers(qual(PropPointInTime, "+1990-10-03T00:00:00Z")),
			wantSpan:   "in 1990-10-03",
			wantClosed: true,
		},
		{
			name:     "future point in time stays open",
			st:       statementWithQualifiers(qual(PropPointInTime, "+2030-01-01T00:00:00Z")),
			wantSpan: "in 2030-01-01",
		},
		{
			name: "no qualifiers",
			st:   statementWithQualifiers(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			span, closed := timeSpan(tt.st, now)
			assert.Equal(t, tt.wantSpan, span)
			assert.Equal(t, tt.wantClosed, closed)
		})
	}
}

func TestBeforeToday(t *testing.T) {
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		raw  string
		want bool
	}{
		{"+2025-00-00T00:00:00Z", true},
		{"+2026-00-00T00:00:00Z", false}, // same year, year precision: not strictly past
		{"+2026-07-00T00:00:00Z", true},
		{"+2026-08-00T00:00:00Z", false},
		{"+2026-07-31T00:00:00Z", true},
		{"+2027-01-01T00:00:00Z", false},
		{"bogus", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, beforeToday(tt.raw, now), "input %q", tt.raw)
	}
}

func TestPastTense(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"is a", "was a"},
		{"has postal code", "had postal code"},
		{"head of government", "head of government"},
		{"have received", "had received"},
		{"are part of", "were part of"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, pastTense(tt.in))
	}
}
