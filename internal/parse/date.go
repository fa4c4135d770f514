package parse

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the layout of the date-only filters accepted by the API.
const DateLayout = "2006-01-02"

// FinalDate resolves a YYYY-MM-DD filter to the last millisecond of that day in loc.
func FinalDate(s string, loc *time.Location) (time.Time, error) {
	d, err := Date(s, loc)
	if err != nil {
		return time.Time{}, err
	}
	return EndOfDay(d), nil
}

// Date resolves a YYYY-MM-DD filter to midnight of that day in loc.
func Date(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	d, err := time.ParseInLocation(DateLayout, strings.TrimSpace(s), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse date %q: %w", s, err)
	}
	return d, nil
}

// Timestamp parses an upstream local timestamp in the named timezone.
// An empty string yields nil.
func Timestamp(s, layout, timezone string) (*time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone %q: %w", timezone, err)
	}
	t, err := time.ParseInLocation(layout, s, loc)
	if err != nil {
		return nil, fmt.Errorf("failed to parse timestamp %q: %w", s, err)
	}
	return &t, nil
}

// StartOfDay returns midnight of t's calendar day in t's location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// EndOfDay returns 23:59:59.999 of t's calendar day in t's location.
func EndOfDay(t time.Time) time.Time {
	return StartOfDay(t).AddDate(0, 0, 1).Add(-time.Millisecond)
}
