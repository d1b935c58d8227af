package schedule

import (
	"time"

	"github.com/carebook/scheduling/internal/timeutil"
)

// Slot is a candidate bookable interval [Start, End).
type Slot struct {
	Start time.Time
	End   time.Time
}

// Interval is an occupied stretch of a provider's calendar, taken from an
// existing appointment.
type Interval struct {
	Start time.Time
	End   time.Time
}

// GeneratorConfig fixes the slot geometry for one generation run.
type GeneratorConfig struct {
	SlotDuration time.Duration
	SlotGap      time.Duration
	HorizonDays  int
}

// GenerateSlots walks the template's working days from now's civil date for
// HorizonDays days and emits every slot of SlotDuration, spaced SlotDuration
// plus SlotGap apart, that fits inside the template window and does not
// overlap a busy interval. Output is chronological. The caller fetches busy
// intervals in bulk up front; the generator never touches storage.
//
// Deterministic: the same template, now, and busy set produce the same slots.
func GenerateSlots(tpl Template, now time.Time, loc *time.Location, cfg GeneratorConfig, busy []Interval) []Slot {
	if !tpl.Active || cfg.HorizonDays <= 0 || cfg.SlotDuration <= 0 {
		return nil
	}

	step := cfg.SlotDuration + cfg.SlotGap
	var out []Slot

	for offset := 0; offset < cfg.HorizonDays; offset++ {
		day := now.In(loc).AddDate(0, 0, offset)
		if !tpl.Weekdays.Has(day.Weekday()) {
			continue
		}

		dayEnd := timeutil.AtMinute(day, tpl.EndMinute, loc)
		for t := timeutil.AtMinute(day, tpl.StartMinute, loc); ; t = t.Add(step) {
			end := t.Add(cfg.SlotDuration)
			if end.After(dayEnd) {
				break
			}
			if !overlapsAny(t, end, busy) {
				out = append(out, Slot{Start: t, End: end})
			}
		}
	}

	return out
}

func overlapsAny(start, end time.Time, busy []Interval) bool {
	for _, b := range busy {
		if timeutil.Overlaps(start, end, b.Start, b.End, 0) {
			return true
		}
	}
	return false
}
