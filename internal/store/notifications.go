package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Notification is a delivered message persisted for the user's inbox.
type Notification struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	ReminderID string     `json:"reminder_id,omitempty"`
	Title      string     `json:"title"`
	Content    string     `json:"content"`
	Type       string     `json:"type"`
	Priority   string     `json:"priority"`
	IsRead     bool       `json:"is_read"`
	CreatedAt  time.Time  `json:"created_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	ReadAt     *time.Time `json:"read_at,omitempty"`
}

const notificationColumns = `id, user_id, reminder_id, title, content, type, priority,
	is_read, created_at, expires_at, read_at`

// SaveNotification inserts n. A reminder id that no longer exists is stored as NULL.
func (db *DB) SaveNotification(ctx context.Context, n Notification) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}

	var reminderID any
	if n.ReminderID != "" {
		var exists int
		err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM reminders WHERE id = ?`, n.ReminderID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check reminder: %w", err)
		}
		if exists > 0 {
			reminderID = n.ReminderID
		}
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO notifications (`+notificationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, n.ID, n.UserID, reminderID, n.Title, n.Content, n.Type, n.Priority,
		boolInt(n.IsRead), n.CreatedAt.UnixMilli(), timeMillis(n.ExpiresAt), timeMillis(n.ReadAt))
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// ListNotifications returns the user's notifications, newest first. Expired
// notifications are omitted. limit <= 0 means 50.
func (db *DB) ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit int) ([]Notification, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + notificationColumns + ` FROM notifications
		WHERE user_id = ? AND (expires_at IS NULL OR expires_at > ?)`
	if unreadOnly {
		query += ` AND is_read = 0`
	}
	query += ` ORDER BY created_at DESC, id LIMIT ?`

	return db.queryNotifications(ctx, "list notifications", query, userID, time.Now().UnixMilli(), limit)
}

// ReminderNotificationsBetween returns userID's reminder notifications
// created in [start, end), oldest first. Expired ones are included.
func (db *DB) ReminderNotificationsBetween(ctx context.Context, userID string, start, end time.Time) ([]Notification, error) {
	return db.queryNotifications(ctx, "list reminder notifications", `
		SELECT `+notificationColumns+` FROM notifications
		WHERE user_id = ? AND type = 'reminder' AND created_at >= ? AND created_at < ?
		ORDER BY created_at, id
	`, userID, start.UnixMilli(), end.UnixMilli())
}

func (db *DB) queryNotifications(ctx context.Context, op, query string, args ...any) ([]Notification, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var out []Notification
	for rows.Next() {
		var (
			n               Notification
			reminderID      sql.NullString
			read            int
			created         int64
			expires, readAt *int64
		)
		if err := rows.Scan(&n.ID, &n.UserID, &reminderID, &n.Title, &n.Content, &n.Type, &n.Priority,
			&read, &created, &expires, &readAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		n.ReminderID = reminderID.String
		n.IsRead = read != 0
		n.CreatedAt = time.UnixMilli(created).UTC()
		n.ExpiresAt = millisTime(expires)
		n.ReadAt = millisTime(readAt)
		out = append(out, n)
	}
	return out, rows.Err()
}

// MarkNotificationRead marks a notification read. Marking an already-read
// notification keeps its original read_at.
func (db *DB) MarkNotificationRead(ctx context.Context, id, userID string) error {
	res, err := db.ExecContext(ctx, `
		UPDATE notifications SET is_read = 1, read_at = COALESCE(read_at, ?)
		WHERE id = ? AND user_id = ?
	`, time.Now().UnixMilli(), id, userID)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	return expectRow(res, "notification", id)
}

// DeleteNotificationsBefore removes read or expired notifications created
// before cutoff and returns how many were removed.
func (db *DB) DeleteNotificationsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	ms := cutoff.UnixMilli()
	res, err := db.ExecContext(ctx, `
		DELETE FROM notifications
		WHERE created_at < ? AND (is_read = 1 OR (expires_at IS NOT NULL AND expires_at < ?))
	`, ms, ms)
	if err != nil {
		return 0, fmt.Errorf("delete notifications: %w", err)
	}
	return res.RowsAffected()
}

func millisTime(ms *int64) *time.Time {
	if ms == nil {
		return nil
	}
	t := time.UnixMilli(*ms).UTC()
	return &t
}
