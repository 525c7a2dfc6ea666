// Package reminder holds the temporal rules for reminders: when a reminder
// is due, when it is next expected, and whether its definition is usable.
// Everything here is a pure function of its inputs.
package reminder

import (
	"slices"
	"time"
)

// Frequency is how often a reminder recurs.
type Frequency string

const (
	Once    Frequency = "once"
	Daily   Frequency = "daily"
	Weekly  Frequency = "weekly"
	Monthly Frequency = "monthly"
)

// Valid reports whether f is one of the known frequencies.
func (f Frequency) Valid() bool {
	switch f {
	case Once, Daily, Weekly, Monthly:
		return true
	}
	return false
}

// Notification methods, as chosen by the user when creating a reminder.
const (
	MethodSound = "sound"
	MethodText  = "text"
	MethodBoth  = "both"
)

// LabelEmergency marks reminders that are delivered with high priority.
const LabelEmergency = "emergency"

// Definition is a user-defined reminder rule. The persistence layer owns it;
// the engine works on copies.
type Definition struct {
	ID                 string     `json:"id"`
	UserID             string     `json:"user_id"`
	Title              string     `json:"title"`
	Description        string     `json:"description,omitempty"`
	Label              string     `json:"label,omitempty"`
	ScheduleTime       string     `json:"schedule_time"`
	Frequency          Frequency  `json:"frequency"`
	DaysOfWeek         []int      `json:"days_of_week,omitempty"`
	NotificationMethod string     `json:"notification_method"`
	IsActive           bool       `json:"is_active"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
	LastTriggered      *time.Time `json:"last_triggered,omitempty"`
}

// Clone returns a deep copy of d.
func (d Definition) Clone() Definition {
	d.DaysOfWeek = slices.Clone(d.DaysOfWeek)
	if d.LastTriggered != nil {
		t := *d.LastTriggered
		d.LastTriggered = &t
	}
	return d
}

// OnDay reports whether weekday is one of the reminder's days of the week.
func (d Definition) OnDay(weekday time.Weekday) bool {
	return slices.Contains(d.DaysOfWeek, int(weekday))
}
