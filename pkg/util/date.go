package util

import (
	"strconv"
	"time"
)

// DayFormat is the wire format for daily bar dates.
const DayFormat = "2006-01-02"

// ParseDay parses a "YYYY-MM-DD" date in UTC. Returns (t, true) on success.
func ParseDay(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(DayFormat, s, time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// ParseTime tries RFC3339, "YYYY-MM-DD", and unix seconds.
func ParseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	if t, ok := ParseDay(s); ok {
		return t, true
	}
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 0 {
		return time.Unix(ts, 0), true
	}
	return time.Time{}, false
}

// ParseTimeDefault parses time or returns default if empty/invalid.
func ParseTimeDefault(s string, def time.Time) time.Time {
	if t, ok := ParseTime(s); ok {
		return t
	}
	return def
}

// ParseIntDefault parses string to int or returns default if empty/invalid.
func ParseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

// IsBusinessDay reports whether t falls Mon-Fri.
func IsBusinessDay(t time.Time) bool {
	wd := t.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// NextBusinessDay returns the first Mon-Fri date strictly after t.
func NextBusinessDay(t time.Time) time.Time {
	d := t.AddDate(0, 0, 1)
	for !IsBusinessDay(d) {
		d = d.AddDate(0, 0, 1)
	}
	return d
}

// AddBusinessDays advances t by n business days, skipping weekends.
// The result is always a Mon-Fri date for n >= 1.
func AddBusinessDays(t time.Time, n int) time.Time {
	d := t
	for i := 0; i < n; i++ {
		d = NextBusinessDay(d)
	}
	return d
}

// BusinessDaysBetween counts business days in (from, to].
func BusinessDaysBetween(from, to time.Time) int {
	if !from.Before(to) {
		return 0
	}
	n := 0
	for d := from.AddDate(0, 0, 1); !d.After(to); d = d.AddDate(0, 0, 1) {
		if IsBusinessDay(d) {
			n++
		}
	}
	return n
}
