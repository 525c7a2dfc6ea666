package reminder

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidFrequency is returned for frequencies outside once/daily/weekly/monthly.
var ErrInvalidFrequency = errors.New("invalid frequency")

// maxSearchDays bounds the day-by-day walk in Next. A monthly anchor of 31
// is at most 61 days away; a year is plenty.
const maxSearchDays = 366

// Decision is the outcome of evaluating a reminder at an instant.
type Decision struct {
	Eligible bool
	// Scheduled is the reminder's instant on the evaluated day. Callers key
	// duplicate suppression on it.
	Scheduled time.Time
}

// Resolver combines the time window with frequency rules.
// The zero value uses DefaultTolerance.
type Resolver struct {
	Tolerance time.Duration
}

func (r Resolver) tolerance() time.Duration {
	if r.Tolerance <= 0 {
		return DefaultTolerance
	}
	return r.Tolerance
}

// Resolve decides whether def is due at now. It never mutates def.
func (r Resolver) Resolve(def Definition, now time.Time) (Decision, error) {
	if !def.Frequency.Valid() {
		return Decision{}, fmt.Errorf("%w: %q", ErrInvalidFrequency, def.Frequency)
	}
	scheduled, inWindow, err := MatchWindow(def.ScheduleTime, now, r.tolerance())
	if err != nil {
		return Decision{}, err
	}
	d := Decision{Scheduled: scheduled}
	if !def.IsActive || !inWindow {
		return d, nil
	}

	switch def.Frequency {
	case Daily:
		d.Eligible = true
	case Weekly:
		d.Eligible = def.OnDay(now.Weekday())
	case Monthly:
		d.Eligible = now.Day() == def.CreatedAt.In(now.Location()).Day()
	case Once:
		d.Eligible = def.LastTriggered == nil
	}
	return d, nil
}

// Next returns the next instant strictly after from at which def is
// expected to fire, or nil when it never will (a once reminder that has
// already fired, or a weekly reminder with no days).
func (r Resolver) Next(def Definition, from time.Time) (*time.Time, error) {
	c, err := ParseClock(def.ScheduleTime)
	if err != nil {
		return nil, err
	}

	accept := func(time.Time) bool { return true }
	switch def.Frequency {
	case Daily:
	case Once:
		if def.LastTriggered != nil {
			return nil, nil
		}
	case Weekly:
		if len(def.DaysOfWeek) == 0 {
			return nil, nil
		}
		accept = func(t time.Time) bool { return def.OnDay(t.Weekday()) }
	case Monthly:
		anchor := def.CreatedAt.In(from.Location()).Day()
		accept = func(t time.Time) bool { return t.Day() == anchor }
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidFrequency, def.Frequency)
	}

	y, m, d := from.Date()
	loc := from.Location()
	for i := 0; i <= maxSearchDays; i++ {
		candidate := c.onDate(y, m, d+i, loc)
		if !candidate.After(from) {
			continue
		}
		if accept(candidate) {
			return &candidate, nil
		}
	}
	return nil, nil
}

// ShouldTrigger reports whether def is due at now using DefaultTolerance.
func ShouldTrigger(def Definition, now time.Time) (bool, error) {
	d, err := Resolver{}.Resolve(def, now)
	return d.Eligible, err
}

// NextTrigger returns the next expected firing instant after from.
func NextTrigger(def Definition, from time.Time) (*time.Time, error) {
	return Resolver{}.Next(def, from)
}
