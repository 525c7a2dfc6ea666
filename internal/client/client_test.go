package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/lazypower/memoria/internal/engine"
	"github.com/lazypower/memoria/internal/reminder"
	"github.com/lazypower/memoria/internal/server"
	"github.com/lazypower/memoria/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startServer(t *testing.T) (*httptest.Server, *engine.Engine) {
	t.Helper()
	db, err := store.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	eng, err := engine.New(engine.NewRegistry(), db, nil, engine.DefaultConfig())
	require.NoError(t, err)

	ts := httptest.NewServer(server.New(db, eng, server.Options{Version: "test"}))
	t.Cleanup(ts.Close)
	return ts, eng
}

func TestReminderRoundTrip(t *testing.T) {
	ts, eng := startServer(t)
	c := New(ts.URL, "alice")
	ctx := context.Background()

	require.True(t, c.Healthy(ctx))

	created, err := c.CreateReminder(ctx, reminder.Definition{
		Title:        "Pills",
		ScheduleTime: "08:00",
		Frequency:    reminder.Daily,
		IsActive:     true,
	})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	assert.Equal(t, "alice", created.UserID)
	_, live := eng.Registry.Get(created.ID)
	assert.True(t, live, "server registers what the client creates")

	toggled, err := c.ToggleReminder(ctx, created.ID)
	require.NoError(t, err)
	assert.False(t, toggled.IsActive)

	stats, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.ActiveReminders)

	require.NoError(t, c.DeleteReminder(ctx, created.ID))

	err = c.DeleteReminder(ctx, created.ID)
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusNotFound, se.Code)
}

func TestCreateInvalid(t *testing.T) {
	ts, _ := startServer(t)
	c := New(ts.URL, "alice")

	_, err := c.CreateReminder(context.Background(), reminder.Definition{Title: "x", ScheduleTime: "noon", IsActive: true})
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusUnprocessableEntity, se.Code)
	assert.Contains(t, se.Body, "invalid schedule time")
}

func TestNotifications(t *testing.T) {
	ts, _ := startServer(t)
	c := New(ts.URL, "alice")

	list, err := c.Notifications(context.Background(), true, 10)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestUnhealthy(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	ts.Close()

	assert.False(t, New(ts.URL, "").Healthy(context.Background()))
}

func TestNewAddsScheme(t *testing.T) {
	t.Setenv("MEMORIA_URL", "")
	c := New("127.0.0.1:37780/", "u")
	assert.Equal(t, "http://127.0.0.1:37780", c.serverURL)
}
