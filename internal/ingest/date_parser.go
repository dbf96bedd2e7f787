package ingest

import (
	"fmt"
	"strings"
	"time"
)

// Layouts tried in order. Values without a zone are read as UTC.
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// parseDateRobust parses the timestamp shapes the PNCP API emits.
func parseDateRobust(text string) (time.Time, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, text, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse date: %s", text)
}

// coerceDate returns a time.Time for parseable input and nil otherwise.
// Values that are already timestamps pass through.
func coerceDate(v any) (any, bool) {
	switch d := v.(type) {
	case nil:
		return nil, true
	case time.Time:
		return d, true
	case string:
		t, err := parseDateRobust(d)
		if err != nil {
			return nil, false
		}
		return t, true
	default:
		return nil, false
	}
}
