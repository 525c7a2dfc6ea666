package store

import (
	"fmt"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "reminders: reminder rules and schedules",
		SQL: `
CREATE TABLE reminders (
    id                  TEXT PRIMARY KEY,
    user_id             TEXT NOT NULL,
    title               TEXT NOT NULL,
    description         TEXT NOT NULL DEFAULT '',
    label               TEXT NOT NULL DEFAULT '',
    schedule_time       TEXT NOT NULL,
    frequency           TEXT NOT NULL DEFAULT 'daily' CHECK (frequency IN ('once', 'daily', 'weekly', 'monthly')),
    days_of_week        TEXT NOT NULL DEFAULT '[]',
    notification_method TEXT NOT NULL DEFAULT 'both' CHECK (notification_method IN ('sound', 'text', 'both')),
    is_active           INTEGER NOT NULL DEFAULT 1,
    created_at          INTEGER NOT NULL,
    updated_at          INTEGER NOT NULL,
    last_triggered      INTEGER
);

CREATE INDEX idx_reminders_user   ON reminders(user_id);
CREATE INDEX idx_reminders_active ON reminders(is_active);
`,
	},
	{
		Version:     2,
		Description: "notifications: delivered reminder notifications",
		SQL: `
CREATE TABLE notifications (
    id          TEXT PRIMARY KEY,
    user_id     TEXT NOT NULL,
    reminder_id TEXT,
    title       TEXT NOT NULL,
    content     TEXT NOT NULL DEFAULT '',
    type        TEXT NOT NULL DEFAULT 'reminder' CHECK (type IN ('reminder', 'alert', 'summary', 'info')),
    priority    TEXT NOT NULL DEFAULT 'medium' CHECK (priority IN ('low', 'medium', 'high')),
    is_read     INTEGER NOT NULL DEFAULT 0,
    created_at  INTEGER NOT NULL,
    expires_at  INTEGER,
    read_at     INTEGER,

    FOREIGN KEY (reminder_id) REFERENCES reminders(id) ON DELETE SET NULL
);

CREATE INDEX idx_notifications_user    ON notifications(user_id, created_at DESC);
CREATE INDEX idx_notifications_unread  ON notifications(user_id, is_read);
`,
	},
	{
		Version:     3,
		Description: "entries: logged audio, image and text notes",
		SQL: `
CREATE TABLE entries (
    id         TEXT PRIMARY KEY,
    user_id    TEXT NOT NULL,
    type       TEXT NOT NULL CHECK (type IN ('audio', 'image', 'text')),
    raw_path   TEXT NOT NULL DEFAULT '',
    transcript TEXT NOT NULL DEFAULT '',
    labels     TEXT NOT NULL DEFAULT '[]',
    metadata   TEXT,
    timestamp  INTEGER NOT NULL,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE INDEX idx_entries_user_time ON entries(user_id, timestamp DESC);
`,
	},
	{
		Version:     4,
		Description: "daily_summaries: one generated summary per user and day",
		SQL: `
CREATE TABLE daily_summaries (
    id              TEXT PRIMARY KEY,
    user_id         TEXT NOT NULL,
    date            TEXT NOT NULL,
    language        TEXT NOT NULL DEFAULT 'ar',
    summary         TEXT NOT NULL DEFAULT '',
    highlights      TEXT NOT NULL DEFAULT '[]',
    key_events      TEXT NOT NULL DEFAULT '[]',
    statistics      TEXT NOT NULL DEFAULT '{}',
    recommendations TEXT NOT NULL DEFAULT '[]',
    generated_at    INTEGER NOT NULL,

    UNIQUE (user_id, date)
);
`,
	},
}

func (db *DB) migrate() error {
	// Create schema_versions table if it doesn't exist
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_versions (
			version     INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at  INTEGER NOT NULL DEFAULT (strftime('%s', 'now') * 1000)
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := db.QueryRow("SELECT COUNT(*) FROM schema_versions WHERE version = ?", m.Version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if count > 0 {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_versions (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

// SchemaVersion returns the current schema version.
func (db *DB) SchemaVersion() (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_versions").Scan(&version)
	return version, err
}
