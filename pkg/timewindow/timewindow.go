// Package timewindow provides half-open time interval arithmetic used by
// the slot generator and the booking conflict checks. An interval covers
// [Start, End): the start instant is included, the end instant is not, so
// back-to-back intervals such as 09:00-09:30 and 09:30-10:00 do not overlap.
package timewindow

import "time"

// Interval is a half-open time range [Start, End).
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// IsZero reports whether both bounds are unset.
func (iv Interval) IsZero() bool { return iv.Start.IsZero() && iv.End.IsZero() }

// Duration returns End - Start. Negative for inverted intervals.
func (iv Interval) Duration() time.Duration { return iv.End.Sub(iv.Start) }

// Valid reports whether the interval has positive length.
func (iv Interval) Valid() bool { return iv.Start.Before(iv.End) }

// Overlaps reports whether iv and other share any instant. The comparison
// is symmetric and half-open in both directions.
func (iv Interval) Overlaps(other Interval) bool {
	return Overlaps(iv.Start, iv.End, other.Start, other.End)
}

// Contains reports whether t falls inside the interval.
func (iv Interval) Contains(t time.Time) bool {
	return !t.Before(iv.Start) && t.Before(iv.End)
}

// Overlaps reports whether [aStart, aEnd) and [bStart, bEnd) intersect:
// aStart < bEnd && bStart < aEnd. Intervals that merely touch at a
// boundary do not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

// Slice cuts [start, end) into consecutive intervals of length step. A
// trailing remainder shorter than step is dropped. A step of zero or less,
// or an end at or before start, yields no intervals.
func Slice(start, end time.Time, step time.Duration) []Interval {
	if step <= 0 || !start.Before(end) {
		return nil
	}
	var out []Interval
	for cur := start; !cur.Add(step).After(end); cur = cur.Add(step) {
		out = append(out, Interval{Start: cur, End: cur.Add(step)})
	}
	return out
}

// ClampToDay trims iv to the calendar day containing day (in day's
// location). The zero Interval is returned when iv lies entirely outside
// the day.
func ClampToDay(iv Interval, day time.Time) Interval {
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	dayEnd := dayStart.AddDate(0, 0, 1)
	if !Overlaps(iv.Start, iv.End, dayStart, dayEnd) {
		return Interval{}
	}
	if iv.Start.Before(dayStart) {
		iv.Start = dayStart
	}
	if iv.End.After(dayEnd) {
		iv.End = dayEnd
	}
	return iv
}
