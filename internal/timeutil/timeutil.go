// Package timeutil holds the civil-time helpers shared by the scheduling core.
// All interpretation of times-of-day happens in one fixed timezone supplied by
// the caller; nothing in here reads a process-wide default.
package timeutil

import (
	"errors"
	"fmt"
	"time"
)

var ErrInvalidTimeFormat = errors.New("invalid time-of-day format")

// EndOfDayMinute is the normalized value of the "24:00" end-of-day marker.
const EndOfDayMinute = 24 * 60

// ParseMinuteOfDay parses a zero-padded 24-hour "HH:mm" string into minutes
// since midnight. "24:00" is accepted as an end-of-day upper bound and
// normalizes to 1440.
func ParseMinuteOfDay(s string) (int, error) {
	if len(s) != 5 || s[2] != ':' {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimeFormat, s)
	}
	hh, ok1 := twoDigits(s[0], s[1])
	mm, ok2 := twoDigits(s[3], s[4])
	if !ok1 || !ok2 || mm > 59 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimeFormat, s)
	}
	if hh > 24 || (hh == 24 && mm != 0) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimeFormat, s)
	}
	return hh*60 + mm, nil
}

func twoDigits(a, b byte) (int, bool) {
	if a < '0' || a > '9' || b < '0' || b > '9' {
		return 0, false
	}
	return int(a-'0')*10 + int(b-'0'), true
}

// ToInstant combines the calendar date of day (read in loc) with an "HH:mm"
// time-of-day into a concrete instant in loc.
func ToInstant(day time.Time, timeOfDay string, loc *time.Location) (time.Time, error) {
	minute, err := ParseMinuteOfDay(timeOfDay)
	if err != nil {
		return time.Time{}, err
	}
	return AtMinute(day, minute, loc), nil
}

// AtMinute returns the instant at the given minute-of-day on day's civil date
// in loc. A minute of 1440 lands on midnight of the following day.
func AtMinute(day time.Time, minute int, loc *time.Location) time.Time {
	y, m, d := day.In(loc).Date()
	return time.Date(y, m, d, 0, minute, 0, 0, loc)
}

// MinuteOfDay returns minutes since midnight of t's civil time in loc.
func MinuteOfDay(t time.Time, loc *time.Location) int {
	ct := t.In(loc)
	return ct.Hour()*60 + ct.Minute()
}

// Overlaps reports whether the half-open intervals [aStart, aEnd) and
// [bStart, bEnd) intersect once b is widened by buffer on each side:
//
//	aStart < bEnd+buffer && aEnd > bStart-buffer
//
// The predicate is symmetric in a and b for any buffer.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time, buffer time.Duration) bool {
	return aStart.Before(bEnd.Add(buffer)) && aEnd.After(bStart.Add(-buffer))
}
