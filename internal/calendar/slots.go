// Package calendar implements business-hour slot computation and event
// creation against an external free/busy provider.
package calendar

import "time"

// Default slot parameters: 09:00–17:00 business hours, 30-minute slots.
const (
	DefaultBusinessStartHour = 9
	DefaultBusinessEndHour   = 17
	DefaultSlotMinutes       = 30
)

// Interval is a half-open busy interval [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

// Overlaps reports whether the half-open intervals [i.Start, i.End) and
// [start, end) intersect. Touching endpoints do not conflict.
func (i Interval) Overlaps(start, end time.Time) bool {
	return start.Before(i.End) && end.After(i.Start)
}

// Slot is a candidate meeting interval. Start is always a
// timezone-normalized instant, never a naive local time.
type Slot struct {
	Start    time.Time `json:"start_time"`
	Duration int       `json:"duration_minutes"`
}

// Clock returns the slot's wall-clock start ("HH:MM") in its own location.
func (s Slot) Clock() string {
	return s.Start.Format("15:04")
}

// SlotOptions configure slot generation.
type SlotOptions struct {
	BusinessStartHour int
	BusinessEndHour   int
	SlotMinutes       int
}

func (o SlotOptions) withDefaults() SlotOptions {
	if o.BusinessStartHour == 0 {
		o.BusinessStartHour = DefaultBusinessStartHour
	}
	if o.BusinessEndHour == 0 {
		o.BusinessEndHour = DefaultBusinessEndHour
	}
	if o.SlotMinutes == 0 {
		o.SlotMinutes = DefaultSlotMinutes
	}
	return o
}

// FreeSlots walks the business hours of day (a calendar date interpreted in
// loc) in fixed steps and returns every slot that overlaps no busy interval,
// in chronological order. Pure: no clock, no I/O.
func FreeSlots(day time.Time, busy []Interval, loc *time.Location, opts SlotOptions) []Slot {
	opts = opts.withDefaults()

	start := time.Date(day.Year(), day.Month(), day.Day(), opts.BusinessStartHour, 0, 0, 0, loc)
	end := time.Date(day.Year(), day.Month(), day.Day(), opts.BusinessEndHour, 0, 0, 0, loc)
	step := time.Duration(opts.SlotMinutes) * time.Minute

	var slots []Slot
	for t := start; !t.Add(step).After(end); t = t.Add(step) {
		if isFree(t, t.Add(step), busy) {
			slots = append(slots, Slot{Start: t, Duration: opts.SlotMinutes})
		}
	}
	return slots
}

func isFree(start, end time.Time, busy []Interval) bool {
	for _, b := range busy {
		if b.Overlaps(start, end) {
			return false
		}
	}
	return true
}
