package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lazypower/memoria/internal/reminder"
)

const reminderColumns = `id, user_id, title, description, label, schedule_time, frequency,
	days_of_week, notification_method, is_active, created_at, updated_at, last_triggered`

// ReminderUpdate is a partial update. Nil fields are left unchanged.
type ReminderUpdate struct {
	Title              *string             `json:"title,omitempty"`
	Description        *string             `json:"description,omitempty"`
	Label              *string             `json:"label,omitempty"`
	ScheduleTime       *string             `json:"schedule_time,omitempty"`
	Frequency          *reminder.Frequency `json:"frequency,omitempty"`
	DaysOfWeek         *[]int              `json:"days_of_week,omitempty"`
	NotificationMethod *string             `json:"notification_method,omitempty"`
	IsActive           *bool               `json:"is_active,omitempty"`
}

// Empty reports whether the update changes nothing.
func (u ReminderUpdate) Empty() bool {
	return u.Title == nil && u.Description == nil && u.Label == nil && u.ScheduleTime == nil &&
		u.Frequency == nil && u.DaysOfWeek == nil && u.NotificationMethod == nil && u.IsActive == nil
}

// Apply returns a copy of def with the update's fields set.
func (u ReminderUpdate) Apply(def reminder.Definition) reminder.Definition {
	out := def.Clone()
	if u.Title != nil {
		out.Title = *u.Title
	}
	if u.Description != nil {
		out.Description = *u.Description
	}
	if u.Label != nil {
		out.Label = *u.Label
	}
	if u.ScheduleTime != nil {
		out.ScheduleTime = *u.ScheduleTime
	}
	if u.Frequency != nil {
		out.Frequency = *u.Frequency
	}
	if u.DaysOfWeek != nil {
		out.DaysOfWeek = append([]int(nil), (*u.DaysOfWeek)...)
	}
	if u.NotificationMethod != nil {
		out.NotificationMethod = *u.NotificationMethod
	}
	if u.IsActive != nil {
		out.IsActive = *u.IsActive
	}
	return out
}

// CreateReminder normalizes and validates def, then inserts it, assigning an
// id and timestamps when unset. Invalid definitions return a
// *reminder.ValidationError. The stored definition is returned.
func (db *DB) CreateReminder(ctx context.Context, def reminder.Definition) (reminder.Definition, error) {
	def = reminder.Normalize(def)
	if err := reminder.Validate(def); err != nil {
		return reminder.Definition{}, err
	}
	if def.ID == "" {
		def.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if def.CreatedAt.IsZero() {
		def.CreatedAt = now
	}
	if def.UpdatedAt.IsZero() {
		def.UpdatedAt = def.CreatedAt
	}

	days, err := encodeDays(def.DaysOfWeek)
	if err != nil {
		return reminder.Definition{}, err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO reminders (`+reminderColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, def.ID, def.UserID, def.Title, def.Description, def.Label, def.ScheduleTime, string(def.Frequency),
		days, def.NotificationMethod, boolInt(def.IsActive),
		def.CreatedAt.UnixMilli(), def.UpdatedAt.UnixMilli(), timeMillis(def.LastTriggered))
	if err != nil {
		return reminder.Definition{}, fmt.Errorf("insert reminder: %w", err)
	}
	return def, nil
}

// GetReminder returns the reminder with id owned by userID. An empty userID
// matches any owner. Returns nil, nil when not found.
func (db *DB) GetReminder(ctx context.Context, id, userID string) (*reminder.Definition, error) {
	query := `SELECT ` + reminderColumns + ` FROM reminders WHERE id = ?`
	args := []any{id}
	if userID != "" {
		query += ` AND user_id = ?`
		args = append(args, userID)
	}

	def, err := scanReminder(db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get reminder: %w", err)
	}
	return &def, nil
}

// ListReminders returns every reminder owned by userID, newest first.
func (db *DB) ListReminders(ctx context.Context, userID string) ([]reminder.Definition, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+reminderColumns+` FROM reminders
		WHERE user_id = ?
		ORDER BY created_at DESC, id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list reminders: %w", err)
	}
	defer rows.Close()
	return scanReminders(rows)
}

// ListActiveReminders returns active reminders across all users.
func (db *DB) ListActiveReminders(ctx context.Context) ([]reminder.Definition, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+reminderColumns+` FROM reminders
		WHERE is_active = 1
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("list active reminders: %w", err)
	}
	defer rows.Close()
	return scanReminders(rows)
}

// UpdateReminder applies u to the reminder and returns the result.
// Returns ErrNotFound when the reminder does not exist for userID, and a
// *reminder.ValidationError when the merged definition is invalid.
// Rescheduling a reminder clears its last trigger so a once reminder can
// fire again at the new time.
func (db *DB) UpdateReminder(ctx context.Context, id, userID string, u ReminderUpdate) (*reminder.Definition, error) {
	cur, err := db.GetReminder(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if cur == nil {
		return nil, fmt.Errorf("reminder %s: %w", id, ErrNotFound)
	}

	next := reminder.Normalize(u.Apply(*cur))
	if err := reminder.Validate(next); err != nil {
		return nil, err
	}
	if next.ScheduleTime != cur.ScheduleTime || next.Frequency != cur.Frequency {
		next.LastTriggered = nil
	}
	next.UpdatedAt = time.Now().UTC()
	if err := db.SaveReminder(ctx, next); err != nil {
		return nil, err
	}
	return &next, nil
}

// SaveReminder overwrites the mutable columns of an existing reminder.
func (db *DB) SaveReminder(ctx context.Context, def reminder.Definition) error {
	days, err := encodeDays(def.DaysOfWeek)
	if err != nil {
		return err
	}
	if def.UpdatedAt.IsZero() {
		def.UpdatedAt = time.Now().UTC()
	}

	res, err := db.ExecContext(ctx, `
		UPDATE reminders SET
			title = ?, description = ?, label = ?, schedule_time = ?, frequency = ?,
			days_of_week = ?, notification_method = ?, is_active = ?, updated_at = ?, last_triggered = ?
		WHERE id = ? AND user_id = ?
	`, def.Title, def.Description, def.Label, def.ScheduleTime, string(def.Frequency),
		days, def.NotificationMethod, boolInt(def.IsActive), def.UpdatedAt.UnixMilli(), timeMillis(def.LastTriggered),
		def.ID, def.UserID)
	if err != nil {
		return fmt.Errorf("update reminder: %w", err)
	}
	return expectRow(res, "reminder", def.ID)
}

// ToggleReminder flips is_active and returns the updated reminder.
func (db *DB) ToggleReminder(ctx context.Context, id, userID string) (*reminder.Definition, error) {
	res, err := db.ExecContext(ctx, `
		UPDATE reminders SET is_active = 1 - is_active, updated_at = ?
		WHERE id = ? AND user_id = ?
	`, time.Now().UnixMilli(), id, userID)
	if err != nil {
		return nil, fmt.Errorf("toggle reminder: %w", err)
	}
	if err := expectRow(res, "reminder", id); err != nil {
		return nil, err
	}
	return db.GetReminder(ctx, id, userID)
}

// DeleteReminder removes a reminder. Returns ErrNotFound when absent.
func (db *DB) DeleteReminder(ctx context.Context, id, userID string) error {
	res, err := db.ExecContext(ctx, `DELETE FROM reminders WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete reminder: %w", err)
	}
	return expectRow(res, "reminder", id)
}

// MarkFired records that a reminder fired at at. Repeating the call with the
// same or an earlier instant is a no-op, as is marking a deleted reminder.
func (db *DB) MarkFired(ctx context.Context, id string, at time.Time) error {
	ms := at.UnixMilli()
	_, err := db.ExecContext(ctx, `
		UPDATE reminders SET last_triggered = ?
		WHERE id = ? AND (last_triggered IS NULL OR last_triggered < ?)
	`, ms, id, ms)
	if err != nil {
		return fmt.Errorf("mark reminder %s fired: %w", id, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReminder(row rowScanner) (reminder.Definition, error) {
	var (
		def              reminder.Definition
		freq, days       string
		active           int
		created, updated int64
		lastTriggered    *int64
	)
	err := row.Scan(&def.ID, &def.UserID, &def.Title, &def.Description, &def.Label, &def.ScheduleTime,
		&freq, &days, &def.NotificationMethod, &active, &created, &updated, &lastTriggered)
	if err != nil {
		return reminder.Definition{}, err
	}

	def.Frequency = reminder.Frequency(freq)
	def.IsActive = active != 0
	def.CreatedAt = time.UnixMilli(created).UTC()
	def.UpdatedAt = time.UnixMilli(updated).UTC()
	def.LastTriggered = millisTime(lastTriggered)
	if err := json.Unmarshal([]byte(days), &def.DaysOfWeek); err != nil {
		return reminder.Definition{}, fmt.Errorf("decode days_of_week for %s: %w", def.ID, err)
	}
	return def, nil
}

func scanReminders(rows *sql.Rows) ([]reminder.Definition, error) {
	var defs []reminder.Definition
	for rows.Next() {
		def, err := scanReminder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reminder: %w", err)
		}
		defs = append(defs, def)
	}
	return defs, rows.Err()
}

func encodeDays(days []int) (string, error) {
	if days == nil {
		days = []int{}
	}
	b, err := json.Marshal(days)
	if err != nil {
		return "", fmt.Errorf("encode days_of_week: %w", err)
	}
	return string(b), nil
}

func expectRow(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func timeMillis(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}
