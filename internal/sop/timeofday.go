package sop

import (
	"strings"
	"time"
)

// TimeBucket is a coarse time-of-day period.
type TimeBucket string

const (
	Morning   TimeBucket = "morning"
	Afternoon TimeBucket = "afternoon"
	Evening   TimeBucket = "evening"
	Night     TimeBucket = "night"
)

// TimeBuckets lists the buckets in display order.
var TimeBuckets = []TimeBucket{Morning, Afternoon, Evening, Night}

// BucketOf maps an hour (0-23) to its bucket.
func BucketOf(hour int) TimeBucket {
	switch {
	case hour >= 6 && hour < 12:
		return Morning
	case hour >= 12 && hour < 18:
		return Afternoon
	case hour >= 18:
		return Evening
	default:
		return Night
	}
}

var deviationLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseDeviationTime parses a deviation timestamp. Anything from the first '.'
// on (fractional seconds, offsets after them) is ignored.
func ParseDeviationTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '.'); i >= 0 {
		s = s[:i]
	}
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range deviationLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// RawTimestamp returns the first non-empty of detected_at,
// context["timestamp"] and context["created_at"].
func (d *Deviation) RawTimestamp() string {
	if s := strings.TrimSpace(d.DetectedAt); s != "" {
		return s
	}
	if s := strings.TrimSpace(d.Context.String(CtxTimestamp)); s != "" {
		return s
	}
	return strings.TrimSpace(d.Context.String(CtxCreatedAt))
}

// Timestamp parses the deviation's best-available timestamp.
func (d *Deviation) Timestamp() (time.Time, bool) {
	return ParseDeviationTime(d.RawTimestamp())
}

// WeekdayIndex returns the weekday with Monday = 0 and Sunday = 6.
func WeekdayIndex(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}
