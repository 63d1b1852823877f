package feed

import (
	"fmt"
	"time"
)

// CursorLayout is the time cursor format accepted by both remote feeds.
const CursorLayout = "2006-01-02T15:04:05.000Z"

const dateLayout = "2006-01-02"

func FormatCursor(t time.Time) string {
	return t.UTC().Format(CursorLayout)
}

// ParseTimestamp parses an RFC 3339 timestamp; fractional seconds are optional.
func ParseTimestamp(value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse timestamp %q: %w", value, err)
	}
	return t, nil
}

// ParseDate parses an all-day date as midnight in loc.
func ParseDate(value string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	t, err := time.ParseInLocation(dateLayout, value, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse date %q: %w", value, err)
	}
	return t, nil
}

// StartOfDay returns local midnight of the day containing t.
func StartOfDay(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, t.Location())
}
