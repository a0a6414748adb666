package resolve

import (
	"regexp"
	"time"
)

var (
	yearRe      = regexp.MustCompile(`^\d{4}$`)
	yearMonthRe = regexp.MustCompile(`^\d{4}-\d{2}$`)
	fullDateRe  = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
)

// NormalizeDate maps an extracted date string to an ISO calendar date.
// Partial dates snap to the first of the period ("2021" to "2021-01-01",
// "2021-06" to "2021-06-01"). Anything unparseable returns ok=false; the raw
// phrasing is still kept on the event.
func NormalizeDate(raw string) (string, bool) {
	switch {
	case yearRe.MatchString(raw):
		raw += "-01-01"
	case yearMonthRe.MatchString(raw):
		raw += "-01"
	case fullDateRe.MatchString(raw):
	default:
		return "", false
	}
	if _, err := time.Parse("2006-01-02", raw); err != nil {
		return "", false
	}
	return raw, true
}
