package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lazypower/memoria/internal/engine"
	"github.com/lazypower/memoria/internal/metrics"
	"github.com/lazypower/memoria/internal/notify"
	"github.com/lazypower/memoria/internal/store"
	"github.com/lazypower/memoria/internal/summary"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Monday 2024-01-08, 07:30 UTC.
var testNow = time.Date(2024, 1, 8, 7, 30, 0, 0, time.UTC)

type fixture struct {
	srv *Server
	db  *store.DB
	eng *engine.Engine
	hub *notify.Hub
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := store.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	promReg := prometheus.NewRegistry()
	m, err := metrics.New(promReg)
	require.NoError(t, err)

	reg := engine.NewRegistry(engine.WithMarker(db), engine.WithMetrics(m))
	eng, err := engine.New(reg, db, nil, engine.DefaultConfig(), engine.WithEngineMetrics(m))
	require.NoError(t, err)

	hub := notify.NewHub(nil, nil)
	srv := New(db, eng, Options{
		Version:   "test-version",
		Hub:       hub,
		Gatherer:  promReg,
		Summaries: summary.New(db, summary.WithLanguage("en"), summary.WithLocation(time.UTC)),
		Now:       func() time.Time { return testNow },
	})
	return &fixture{srv: srv, db: db, eng: eng, hub: hub}
}

func (f *fixture) do(t *testing.T, method, path, user, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if user != "" {
		req.Header.Set(userHeader, user)
	}
	w := httptest.NewRecorder()
	f.srv.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), "body: %s", w.Body.String())
}

func TestHealthEndpoint(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, "GET", "/api/health", "", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	decode(t, w, &body)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "test-version", body["version"])
	assert.Equal(t, true, body["db"])
}

func TestUserHeaderRequired(t *testing.T) {
	f := newFixture(t)

	paths := []struct {
		method string
		path   string
	}{
		{"GET", "/api/reminders"},
		{"POST", "/api/reminders"},
		{"GET", "/api/reminders/stats"},
		{"GET", "/api/reminders/abc"},
		{"GET", "/api/notifications"},
	}
	for _, p := range paths {
		w := f.do(t, p.method, p.path, "", "")
		assert.Equal(t, http.StatusUnauthorized, w.Code, "%s %s", p.method, p.path)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	f.eng.RunOnce(t.Context(), testNow)

	w := f.do(t, "GET", "/metrics", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "memoria_")
}

func TestSPAWithoutUI(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, "GET", "/some/page", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestWebSocketUser(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, "GET", "/api/ws", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code, "anonymous ws")

	ts := httptest.NewServer(f.srv)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/ws?user_id=alice"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	assert.Eventually(t, func() bool { return f.hub.Connections("alice") == 1 },
		2*time.Second, 10*time.Millisecond, "connection never registered for alice")
}

func TestUIFallback(t *testing.T) {
	db, err := store.OpenMemory()
	require.NoError(t, err)
	defer db.Close()
	eng, err := engine.New(engine.NewRegistry(), db, nil, engine.DefaultConfig())
	require.NoError(t, err)

	ui := fstest.MapFS{
		"index.html":    {Data: []byte("<h1>app</h1>")},
		"assets/app.js": {Data: []byte("console.log(1)")},
	}
	srv := New(db, eng, Options{UI: ui})

	cases := []struct {
		path string
		want string
	}{
		{"/", "<h1>app</h1>"},
		{"/reminders/today", "<h1>app</h1>"},
		{"/assets/app.js", "console.log(1)"},
		{"/assets", "<h1>app</h1>"},
	}
	for _, c := range cases {
		req := httptest.NewRequest("GET", c.path, nil)
		w := httptest.NewRecorder()
		srv.ServeHTTP(w, req)
		if assert.Equal(t, http.StatusOK, w.Code, c.path) {
			assert.Equal(t, c.want, w.Body.String(), c.path)
		}
	}
}
