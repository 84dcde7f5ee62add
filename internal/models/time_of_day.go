package models

import (
	"fmt"
	"strings"
	"time"
)

// TimeOfDay is a wall-clock time without date or zone.
type TimeOfDay struct {
	Hour   int
	Minute int
	Second int
}

// ParseTimeOfDay parses "HH:MM" or "HH:MM:SS" (the text form of a Postgres TIME).
// Fractional seconds are dropped.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '.'); i >= 0 {
		s = s[:i]
	}

	layout := "15:04:05"
	if strings.Count(s, ":") == 1 {
		layout = "15:04"
	}
	t, err := time.Parse(layout, s)
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	return TimeOfDay{Hour: t.Hour(), Minute: t.Minute(), Second: t.Second()}, nil
}

// On combines the calendar date of d with the time of day in loc.
func (t TimeOfDay) On(d time.Time, loc *time.Location) time.Time {
	return LocalTime(time.Date(d.Year(), d.Month(), d.Day(), t.Hour, t.Minute, t.Second, 0, time.UTC), loc)
}

// LocalTime reads the wall-clock fields of wall as a local time in loc.
// A time skipped by a forward transition takes the offset in effect before
// the gap, so 02:30 on a 02:00->03:00 night lands at 03:30. A repeated time
// resolves to its first occurrence.
func LocalTime(wall time.Time, loc *time.Location) time.Time {
	y, m, d := wall.Date()
	hh, mm, ss := wall.Clock()
	t := time.Date(y, m, d, hh, mm, ss, wall.Nanosecond(), loc)
	if t.Day() == d && t.Hour() == hh && t.Minute() == mm {
		return t
	}
	_, offset := t.Add(-12 * time.Hour).Zone()
	naive := time.Date(y, m, d, hh, mm, ss, wall.Nanosecond(), time.UTC)
	return naive.Add(-time.Duration(offset) * time.Second).In(loc)
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", t.Hour, t.Minute, t.Second)
}
