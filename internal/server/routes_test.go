package server

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/lazypower/memoria/internal/engine"
	"github.com/lazypower/memoria/internal/reminder"
	"github.com/lazypower/memoria/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type viewResp struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	Title       string     `json:"title"`
	Frequency   string     `json:"frequency"`
	IsActive    bool       `json:"is_active"`
	NextTrigger *time.Time `json:"next_trigger"`
	State       string     `json:"state"`
}

func (f *fixture) create(t *testing.T, user, body string) viewResp {
	t.Helper()
	w := f.do(t, "POST", "/api/reminders", user, body)
	require.Equal(t, http.StatusCreated, w.Code, "body: %s", w.Body.String())
	var v viewResp
	decode(t, w, &v)
	return v
}

// seed stores def directly with its own timestamps and registers it.
func (f *fixture) seed(t *testing.T, def reminder.Definition) reminder.Definition {
	t.Helper()
	created, err := f.db.CreateReminder(context.Background(), def)
	require.NoError(t, err)
	require.NoError(t, f.eng.Registry.Register(created))
	return created
}

func TestCreateReminder(t *testing.T) {
	f := newFixture(t)

	v := f.create(t, "alice", `{"title":"Pills","schedule_time":"08:00","frequency":"daily"}`)
	require.NotEmpty(t, v.ID)
	assert.Equal(t, "alice", v.UserID)
	assert.True(t, v.IsActive, "reminders are active by default")
	require.NotNil(t, v.NextTrigger)
	assert.True(t, v.NextTrigger.Equal(time.Date(2024, 1, 8, 8, 0, 0, 0, time.UTC)), "next_trigger = %v", v.NextTrigger)
	assert.Equal(t, string(engine.StateRegistered), v.State)

	_, ok := f.eng.Registry.Get(v.ID)
	assert.True(t, ok, "created reminder is not in the registry")
}

func TestCreateInactiveReminderNotRegistered(t *testing.T) {
	f := newFixture(t)

	v := f.create(t, "alice", `{"title":"Later","schedule_time":"08:00","is_active":false}`)
	_, ok := f.eng.Registry.Get(v.ID)
	assert.False(t, ok, "inactive reminder must not be registered")
	assert.Nil(t, v.NextTrigger)
}

func TestCreateReminderInvalid(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, "POST", "/api/reminders", "alice", `{"title":"","schedule_time":"25:00","frequency":"weekly"}`)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code, "body: %s", w.Body.String())

	var body struct {
		Error  string   `json:"error"`
		Issues []string `json:"issues"`
	}
	decode(t, w, &body)
	assert.Equal(t, "invalid reminder", body.Error)
	assert.Len(t, body.Issues, 3, "title, schedule, days")
	assert.Empty(t, f.eng.Registry.Active())

	w = f.do(t, "POST", "/api/reminders", "alice", `{not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListAndGetReminderScopedToUser(t *testing.T) {
	f := newFixture(t)

	mine := f.create(t, "alice", `{"title":"A","schedule_time":"08:00"}`)
	f.create(t, "bob", `{"title":"B","schedule_time":"09:00"}`)

	var list struct {
		Reminders []viewResp `json:"reminders"`
	}
	decode(t, f.do(t, "GET", "/api/reminders", "alice", ""), &list)
	require.Len(t, list.Reminders, 1)
	assert.Equal(t, mine.ID, list.Reminders[0].ID)

	assert.Equal(t, http.StatusOK, f.do(t, "GET", "/api/reminders/"+mine.ID, "alice", "").Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, "GET", "/api/reminders/"+mine.ID, "bob", "").Code)
}

func TestUpdateReminder(t *testing.T) {
	f := newFixture(t)
	v := f.create(t, "alice", `{"title":"Pills","schedule_time":"08:00"}`)

	w := f.do(t, "PATCH", "/api/reminders/"+v.ID, "alice", `{"schedule_time":"09:15","title":"Morning pills"}`)
	require.Equal(t, http.StatusOK, w.Code, "body: %s", w.Body.String())
	var got viewResp
	decode(t, w, &got)
	assert.Equal(t, "Morning pills", got.Title)

	live, ok := f.eng.Registry.Get(v.ID)
	require.True(t, ok)
	assert.Equal(t, "09:15", live.ScheduleTime)

	assert.Equal(t, http.StatusUnprocessableEntity,
		f.do(t, "PATCH", "/api/reminders/"+v.ID, "alice", `{"schedule_time":"9am"}`).Code)
	assert.Equal(t, http.StatusBadRequest,
		f.do(t, "PATCH", "/api/reminders/"+v.ID, "alice", `{}`).Code)
	assert.Equal(t, http.StatusNotFound,
		f.do(t, "PATCH", "/api/reminders/missing", "alice", `{"title":"x"}`).Code)
}

func TestToggleReminder(t *testing.T) {
	f := newFixture(t)
	v := f.create(t, "alice", `{"title":"Pills","schedule_time":"08:00"}`)

	w := f.do(t, "POST", "/api/reminders/"+v.ID+"/toggle", "alice", "")
	require.Equal(t, http.StatusOK, w.Code)
	_, ok := f.eng.Registry.Get(v.ID)
	assert.False(t, ok, "toggled-off reminder still registered")

	f.do(t, "POST", "/api/reminders/"+v.ID+"/toggle", "alice", "")
	_, ok = f.eng.Registry.Get(v.ID)
	assert.True(t, ok, "toggled-on reminder not registered")

	assert.Equal(t, http.StatusNotFound, f.do(t, "POST", "/api/reminders/"+v.ID+"/toggle", "bob", "").Code)
}

func TestDeleteReminder(t *testing.T) {
	f := newFixture(t)
	v := f.create(t, "alice", `{"title":"Pills","schedule_time":"08:00"}`)

	assert.Equal(t, http.StatusNotFound, f.do(t, "DELETE", "/api/reminders/"+v.ID, "bob", "").Code)
	require.Equal(t, http.StatusNoContent, f.do(t, "DELETE", "/api/reminders/"+v.ID, "alice", "").Code)

	_, ok := f.eng.Registry.Get(v.ID)
	assert.False(t, ok, "deleted reminder still registered")
	assert.Equal(t, http.StatusNotFound, f.do(t, "GET", "/api/reminders/"+v.ID, "alice", "").Code)
}

func TestNextTrigger(t *testing.T) {
	f := newFixture(t)
	v := f.create(t, "alice", `{"title":"Walk","schedule_time":"07:00","frequency":"weekly","days_of_week":[3]}`)

	var body struct {
		NextTrigger *time.Time `json:"next_trigger"`
		Text        string     `json:"text"`
	}
	decode(t, f.do(t, "GET", "/api/reminders/"+v.ID+"/next?lang=en", "alice", ""), &body)

	want := time.Date(2024, 1, 10, 7, 0, 0, 0, time.UTC) // Wednesday
	require.NotNil(t, body.NextTrigger)
	assert.True(t, body.NextTrigger.Equal(want), "next_trigger = %v, want %v", body.NextTrigger, want)
	assert.Equal(t, "Walk - 07:00 (Weekly)", body.Text)

	decode(t, f.do(t, "GET", "/api/reminders/"+v.ID+"/next?lang=ar", "alice", ""), &body)
	assert.Equal(t, "Walk - 07:00 (أسبوعي)", body.Text)
}

func TestStatsAndHistory(t *testing.T) {
	f := newFixture(t)
	a := f.create(t, "alice", `{"title":"Pills","schedule_time":"08:00"}`)
	f.create(t, "bob", `{"title":"Walk","schedule_time":"08:00"}`)

	events := f.eng.RunOnce(context.Background(), time.Date(2024, 1, 8, 8, 0, 20, 0, time.UTC))
	require.Len(t, events, 2)

	var stats engine.Stats
	decode(t, f.do(t, "GET", "/api/reminders/stats", "alice", ""), &stats)
	assert.Equal(t, engine.Stats{ActiveReminders: 1, TotalTriggered: 1, TriggeredToday: 1}, stats)

	var hist struct {
		Events []engine.TriggerEvent `json:"events"`
	}
	decode(t, f.do(t, "GET", "/api/reminders/history?limit=10", "alice", ""), &hist)
	require.Len(t, hist.Events, 1)
	assert.Equal(t, a.ID, hist.Events[0].ReminderID)
}

func TestOverdue(t *testing.T) {
	f := newFixture(t)
	yesterday := testNow.Add(-24 * time.Hour)
	def := func(user, title, at string) reminder.Definition {
		return reminder.Definition{
			UserID:       user,
			Title:        title,
			ScheduleTime: at,
			IsActive:     true,
			CreatedAt:    yesterday,
		}
	}

	// 07:00 passed half an hour before testNow and nothing ticked.
	missed := f.seed(t, def("alice", "Breakfast", "07:00"))
	f.seed(t, def("alice", "Lunch", "12:00"))
	f.seed(t, def("bob", "Breakfast", "07:00"))
	// Created after 07:00, so it could not have fired.
	f.create(t, "alice", `{"title":"Late breakfast","schedule_time":"07:00"}`)

	var body struct {
		Reminders []viewResp `json:"reminders"`
	}
	decode(t, f.do(t, "GET", "/api/reminders/overdue", "alice", ""), &body)
	require.Len(t, body.Reminders, 1)
	assert.Equal(t, missed.ID, body.Reminders[0].ID)
}

func TestNotifications(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for _, n := range []store.Notification{
		{ID: "n1", UserID: "alice", Title: "Pills", Type: "reminder", Priority: "medium", CreatedAt: now.Add(-time.Minute)},
		{ID: "n2", UserID: "alice", Title: "Walk", Type: "reminder", Priority: reminder.PriorityHigh, CreatedAt: now},
		{ID: "n3", UserID: "bob", Title: "Other", Type: "reminder", Priority: "medium", CreatedAt: now},
	} {
		require.NoError(t, f.db.SaveNotification(ctx, n))
	}

	var list struct {
		Notifications []store.Notification `json:"notifications"`
	}
	decode(t, f.do(t, "GET", "/api/notifications", "alice", ""), &list)
	require.Len(t, list.Notifications, 2)

	require.Equal(t, http.StatusOK, f.do(t, "POST", "/api/notifications/n1/read", "alice", "").Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, "POST", "/api/notifications/n3/read", "alice", "").Code)

	decode(t, f.do(t, "GET", "/api/notifications?unread=true", "alice", ""), &list)
	require.Len(t, list.Notifications, 1)
	assert.Equal(t, "n2", list.Notifications[0].ID)

	decode(t, f.do(t, "GET", "/api/notifications?limit=1", "alice", ""), &list)
	assert.Len(t, list.Notifications, 1)
}
