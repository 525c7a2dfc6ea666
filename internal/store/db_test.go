package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenMemory(t *testing.T) {
	db := newTestDB(t)
	assert.Equal(t, ":memory:", db.Path)
}

func TestOpenFileCreatesDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "memoria.db")
	db, err := Open(path)
	require.NoError(t, err)
	defer db.Close()

	assert.Equal(t, path, db.Path)
}

func TestPragmasApplyToEveryConnection(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "memoria.db"))
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	// Hold both connections at once so the pool cannot hand back the same one.
	c1, err := db.Conn(ctx)
	require.NoError(t, err)
	defer c1.Close()
	c2, err := db.Conn(ctx)
	require.NoError(t, err)
	defer c2.Close()

	for _, conn := range []*sql.Conn{c1, c2} {
		var fk, timeout int
		require.NoError(t, conn.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&fk))
		require.NoError(t, conn.QueryRowContext(ctx, "PRAGMA busy_timeout").Scan(&timeout))
		assert.Equal(t, 1, fk)
		assert.Equal(t, 5000, timeout)
	}
}

func TestSchemaVersion(t *testing.T) {
	db := newTestDB(t)

	v, err := db.SchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, len(migrations), v)
}

func TestMigrateIdempotent(t *testing.T) {
	db := newTestDB(t)

	require.NoError(t, db.migrate(), "second migrate")
	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM schema_versions").Scan(&count))
	assert.Equal(t, len(migrations), count)
}

func TestTablesExist(t *testing.T) {
	db := newTestDB(t)

	for _, table := range []string{"schema_versions", "reminders", "notifications", "entries", "daily_summaries"} {
		var name string
		err := db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		assert.NoError(t, err, "table %q", table)
	}
}

func TestRemindersConstraints(t *testing.T) {
	db := newTestDB(t)

	_, err := db.Exec(`
		INSERT INTO reminders (id, user_id, title, schedule_time, frequency, created_at, updated_at)
		VALUES ('r1', 'u1', 'Pills', '08:00', 'hourly', 0, 0)
	`)
	assert.Error(t, err, "frequency 'hourly' must violate the CHECK constraint")

	_, err = db.Exec(`
		INSERT INTO reminders (id, user_id, title, schedule_time, notification_method, created_at, updated_at)
		VALUES ('r2', 'u1', 'Pills', '08:00', 'pager', 0, 0)
	`)
	assert.Error(t, err, "notification_method 'pager' must violate the CHECK constraint")
}

func TestNotificationsConstraints(t *testing.T) {
	db := newTestDB(t)

	_, err := db.Exec(`
		INSERT INTO notifications (id, user_id, title, priority, created_at)
		VALUES ('n1', 'u1', 'x', 'urgent', 0)
	`)
	assert.Error(t, err, "priority 'urgent' must violate the CHECK constraint")
}

func TestEntriesConstraints(t *testing.T) {
	db := newTestDB(t)

	_, err := db.Exec(`
		INSERT INTO entries (id, user_id, type, timestamp, created_at, updated_at)
		VALUES ('e1', 'u1', 'video', 0, 0, 0)
	`)
	assert.Error(t, err, "type 'video' must violate the CHECK constraint")
}
