package slot

import (
	"strings"
	"time"
)

const DateLayout = "2006-01-02"

// NormalizeDate reduces a date or timestamp to a calendar-day string in loc.
// Plain dates are taken as-is; timestamps are converted to loc first.
func NormalizeDate(raw string, loc *time.Location) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	if loc == nil {
		loc = time.UTC
	}

	if t, err := time.Parse(DateLayout, raw); err == nil {
		return t.Format(DateLayout), true
	}

	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		var (
			t   time.Time
			err error
		)
		if layout == time.RFC3339Nano {
			t, err = time.Parse(layout, raw)
		} else {
			t, err = time.ParseInLocation(layout, raw, loc)
		}
		if err == nil {
			return t.In(loc).Format(DateLayout), true
		}
	}

	return "", false
}
