package schedule

import (
	"errors"
	"time"

	"github.com/carebook/scheduling/internal/provider"
	"github.com/carebook/scheduling/internal/timeutil"
)

var (
	ErrTemplateNotFound = errors.New("availability template not found")
	ErrInvalidWindow    = errors.New("template start must be before end")
	ErrNoWeekdays       = errors.New("template must cover at least one weekday")
)

// WeekdayMask is a bitset of working weekdays, bit 0 = Sunday .. bit 6 = Saturday.
type WeekdayMask uint8

func NewWeekdayMask(days ...time.Weekday) WeekdayMask {
	var m WeekdayMask
	for _, d := range days {
		m |= 1 << uint(d)
	}
	return m
}

func (m WeekdayMask) Has(d time.Weekday) bool {
	return m&(1<<uint(d)) != 0
}

func (m WeekdayMask) Weekdays() []time.Weekday {
	var out []time.Weekday
	for d := time.Sunday; d <= time.Saturday; d++ {
		if m.Has(d) {
			out = append(out, d)
		}
	}
	return out
}

// Template is a provider's recurring weekly availability. There is at most one
// per provider; replacement is a wholesale upsert keyed by the provider ref.
type Template struct {
	Provider    provider.Ref
	Weekdays    WeekdayMask
	StartMinute int // minutes since midnight
	EndMinute   int // minutes since midnight; 1440 means end of day
	Active      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Validate enforces the template invariants. End minute 0 is read as the
// "24:00" end-of-day marker.
func (t *Template) Validate() error {
	if t.EndMinute == 0 {
		t.EndMinute = timeutil.EndOfDayMinute
	}
	if t.StartMinute < 0 || t.EndMinute > timeutil.EndOfDayMinute || t.StartMinute >= t.EndMinute {
		return ErrInvalidWindow
	}
	if t.Weekdays == 0 {
		return ErrNoWeekdays
	}
	return nil
}

// Covers reports whether [start, end) lies inside the template's window on a
// working weekday. end may be midnight of the following civil day when the
// template runs to end of day.
func (t *Template) Covers(start, end time.Time, loc *time.Location) bool {
	day := start.In(loc)
	if !t.Weekdays.Has(day.Weekday()) {
		return false
	}

	startMin := timeutil.MinuteOfDay(start, loc)
	endMin := timeutil.MinuteOfDay(end, loc)
	switch {
	case endMin == 0 && end.After(start):
		// Midnight upper bound counts as 24:00 of the start day.
		if end.In(loc).YearDay() == day.YearDay() {
			return false
		}
		endMin = timeutil.EndOfDayMinute
	case end.In(loc).YearDay() != day.YearDay() || end.In(loc).Year() != day.Year():
		return false
	}

	return startMin >= t.StartMinute && endMin <= t.EndMinute
}
