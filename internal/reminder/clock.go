package reminder

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// DefaultTolerance is how far from the scheduled minute a check may land and
// still count as a match. Polling must happen at least this often.
const DefaultTolerance = 60 * time.Second

// ErrInvalidSchedule is returned for schedule times not in HH:MM form.
var ErrInvalidSchedule = errors.New("invalid schedule time")

var clockPattern = regexp.MustCompile(`^([01][0-9]|2[0-3]):([0-5][0-9])$`)

// Clock is a wall-clock time of day with minute precision.
type Clock struct {
	Hour   int
	Minute int
}

// ParseClock parses a zero-padded 24-hour "HH:MM" string.
func ParseClock(s string) (Clock, error) {
	m := clockPattern.FindStringSubmatch(s)
	if m == nil {
		return Clock{}, fmt.Errorf("%w: %q (use HH:MM)", ErrInvalidSchedule, s)
	}
	h, _ := strconv.Atoi(m[1])
	mm, _ := strconv.Atoi(m[2])
	return Clock{Hour: h, Minute: mm}, nil
}

// On returns the instant at this clock time on day's calendar date, in day's location.
func (c Clock) On(day time.Time) time.Time {
	return c.onDate(day.Year(), day.Month(), day.Day(), day.Location())
}

func (c Clock) onDate(y int, m time.Month, d int, loc *time.Location) time.Time {
	return time.Date(y, m, d, c.Hour, c.Minute, 0, 0, loc)
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// MatchWindow reports whether now lies within tolerance of scheduleTime on
// now's date. The window is symmetric, so it also matches slightly early.
// The scheduled instant is returned even when there is no match.
func MatchWindow(scheduleTime string, now time.Time, tolerance time.Duration) (time.Time, bool, error) {
	c, err := ParseClock(scheduleTime)
	if err != nil {
		return time.Time{}, false, err
	}
	scheduled := c.On(now)
	diff := now.Sub(scheduled)
	if diff < 0 {
		diff = -diff
	}
	return scheduled, diff <= tolerance, nil
}
