// Package schedule computes when the producer fires next and keeps exactly
// one pending firing installed on a cron runner.
package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Frequency names a recurrence: one of the built-ins or a registered custom interval.
type Frequency string

const (
	Hourly     Frequency = "hourly"
	TwiceDaily Frequency = "twicedaily"
	Daily      Frequency = "daily"
	Weekly     Frequency = "weekly"
)

// DefaultInterval applies to frequencies nobody registered.
const DefaultInterval = 86400 * time.Second

// Intervals maps frequency names to their recurrence interval.
type Intervals map[Frequency]time.Duration

// DefaultIntervals returns the built-in recurrences.
func DefaultIntervals() Intervals {
	return Intervals{
		Hourly:     time.Hour,
		TwiceDaily: 12 * time.Hour,
		Daily:      24 * time.Hour,
		Weekly:     7 * 24 * time.Hour,
	}
}

// WithSeconds registers custom frequencies given as interval seconds.
// Non-positive intervals are ignored.
func (iv Intervals) WithSeconds(custom map[string]int) Intervals {
	out := make(Intervals, len(iv)+len(custom))
	for k, v := range iv {
		out[k] = v
	}
	for name, secs := range custom {
		if secs > 0 {
			out[Frequency(name)] = time.Duration(secs) * time.Second
		}
	}
	return out
}

// Interval returns the recurrence interval for freq.
func (iv Intervals) Interval(freq Frequency) time.Duration {
	if d, ok := iv[freq]; ok && d > 0 {
		return d
	}
	return DefaultInterval
}

// Known reports whether freq is registered.
func (iv Intervals) Known(freq Frequency) bool {
	_, ok := iv[freq]
	return ok
}

// TimeOfDay is an hour and minute on the wall clock.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses "HH:MM".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return TimeOfDay{}, fmt.Errorf("time of day %q: want HH:MM", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return TimeOfDay{}, fmt.Errorf("time of day %q: bad hour", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return TimeOfDay{}, fmt.Errorf("time of day %q: bad minute", s)
	}
	return TimeOfDay{Hour: h, Minute: m}, nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// On returns day's date at t in day's location.
func (t TimeOfDay) On(day time.Time) time.Time {
	y, mo, d := day.Date()
	return time.Date(y, mo, d, t.Hour, t.Minute, 0, 0, day.Location())
}

// NextRun computes the next trigger timestamp. It only depends on its
// arguments: today at tod when that is still ahead, otherwise a step that
// depends on freq. Unregistered frequencies step from now by DefaultInterval.
func NextRun(freq Frequency, tod TimeOfDay, now time.Time, intervals Intervals) time.Time {
	candidate := tod.On(now)
	if candidate.After(now) {
		return candidate
	}
	switch freq {
	case Daily:
		return tod.On(candidate.AddDate(0, 0, 1))
	case TwiceDaily:
		return candidate.Add(12 * time.Hour)
	case Hourly:
		return candidate.Add(time.Hour)
	default:
		return now.Add(intervals.Interval(freq))
	}
}

// State is the persisted schedule of the producer.
type State struct {
	Frequency Frequency `json:"frequency" db:"frequency"`
	TimeOfDay string    `json:"time_of_day" db:"time_of_day"`
	NextRun   time.Time `json:"next_run" db:"next_run"`
}
