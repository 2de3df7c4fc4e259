package value

import (
	"strings"
	"time"

	"pesadb/internal/dberr"
)

const dateLayout = "2006-01-02"

var timeLayouts = []string{
	"15:04:05.999999999",
	"15:04:05",
	"15:04",
}

var dateTimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// ParseDate parses an ISO-8601 date (YYYY-MM-DD).
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, dberr.New(dberr.KindSchema,
			"invalid date format %q; expected YYYY-MM-DD (e.g. '2024-01-15')", s)
	}
	return t, nil
}

// ParseTimeOfDay parses HH:MM:SS[.fff] or HH:MM.
func ParseTimeOfDay(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, dberr.New(dberr.KindSchema,
		"invalid time format %q; expected HH:MM:SS or HH:MM (e.g. '14:30:00')", s)
}

// ParseDateTime parses an ISO-8601 datetime, with or without a timezone.
// A trailing 'Z' means UTC. Space and 'T' separators are both accepted,
// and a bare date is promoted to midnight.
func ParseDateTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t, nil
	}
	return time.Time{}, dberr.New(dberr.KindSchema,
		"invalid datetime format %q; expected ISO-8601 (e.g. '2024-01-15T10:30:00' or '2024-01-15 10:30:00')", s)
}

// ValidISODateTime reports whether s parses as an ISO-8601 date, time,
// or datetime. Rows apply this to STRING columns whose names look like
// timestamps.
func ValidISODateTime(s string) bool {
	if _, err := ParseDateTime(s); err == nil {
		return true
	}
	if _, err := ParseTimeOfDay(s); err == nil {
		return true
	}
	return false
}
