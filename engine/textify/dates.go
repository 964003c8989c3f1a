package textify

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rti/askwikidata/engine/wikidata"
)

// UnknownDate is rendered when a time value fails validation.
const UnknownDate = "unknown date"

// FormatDate renders a dump time value of the form ±YYYY-MM-DDThh:mm:ssZ
// (or the abbreviated ±YYYY / ±YYYY-MM) as one of YYYY, YYYY-MM or
// YYYY-MM-DD. A month of 00 yields the year form, a day of 00 the
// year-month form. Any validation failure yields UnknownDate.
func FormatDate(raw string) string {
	y, m, d, ok := splitDate(raw)
	if !ok {
		return UnknownDate
	}
	switch {
	case m == 0:
		return fmt.Sprintf("%04d", y)
	case d == 0:
		return fmt.Sprintf("%04d-%02d", y, m)
	default:
		return fmt.Sprintf("%04d-%02d-%02d", y, m, d)
	}
}

// splitDate parses the date part of a dump time value. Missing month/day
// segments are treated as 00. ok is false when the input is empty, not
// numeric, or month/day fall outside their valid ranges.
func splitDate(raw string) (year, month, day int, ok bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, 0, 0, false
	}
	if i := strings.IndexByte(raw, 'T'); i >= 0 {
		raw = raw[:i]
	}
	raw = strings.TrimLeft(raw, "+-")

	parts := strings.Split(raw, "-")
	if len(parts) == 0 || len(parts) > 3 {
		return 0, 0, 0, false
	}

	nums := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return 0, 0, 0, false
		}
		nums[i] = n
	}

	year = nums[0]
	if len(nums) > 1 {
		month = nums[1]
	}
	if len(nums) > 2 {
		day = nums[2]
	}
	if month > 12 {
		return 0, 0, 0, false
	}
	if month == 0 {
		// Day is ignored for year precision.
		return year, 0, 0, true
	}
	if day > 31 {
		return 0, 0, 0, false
	}
	return year, month, day, true
}

// timeSpan renders the temporal qualifiers of a statement. closed reports
// whether the statement no longer holds today: it has an end date, or no
// start date and a point-in-time lying in the past.
func timeSpan(st *wikidata.Statement, now time.Time) (span string, closed bool) {
	start := st.QualifierTime(PropStartTime)
	end := st.QualifierTime(PropEndTime)
	point := st.QualifierTime(PropPointInTime)

	switch {
	case start != "" && end == "":
		span = "since " + FormatDate(start) + " until today"
	case start != "" && end != "":
		span = "from " + FormatDate(start) + " until " + FormatDate(end)
	case end != "":
		span = "until " + FormatDate(end)
	case point != "":
		span = "in " + FormatDate(point)
	}

	if end != "" {
		closed = true
	} else if start == "" && point != "" && beforeToday(point, now) {
		closed = true
	}
	return span, closed
}

// beforeToday reports whether the dump time value lies strictly before
// now, at the precision the value carries. Unparseable values are treated
// as open.
func beforeToday(raw string, now time.Time) bool {
	y, m, d, ok := splitDate(raw)
	if !ok {
		return false
	}
	if y != now.Year() {
		return y < now.Year()
	}
	if m == 0 {
		return false
	}
	if m != int(now.Month()) {
		return m < int(now.Month())
	}
	if d == 0 {
		return false
	}
	return d < now.Day()
}

var pastForms = map[string]string{
	"is":   "was",
	"are":  "were",
	"has":  "had",
	"have": "had",
}

// pastTense shifts the present-tense verbs of a property phrase into the
// past, for statements that are closed: "is a" becomes "was a", "has
// postal code" becomes "had postal code".
func pastTense(phrase string) string {
	words := strings.Fields(phrase)
	for i, w := range words {
		if p, ok := pastForms[w]; ok {
			words[i] = p
		}
	}
	return strings.Join(words, " ")
}
