package server

import (
	"net/http"
	"testing"
	"time"

	"github.com/lazypower/memoria/internal/engine"
	"github.com/lazypower/memoria/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (f *fixture) createEntry(t *testing.T, user, body string) store.Entry {
	t.Helper()
	w := f.do(t, "POST", "/api/entries", user, body)
	require.Equal(t, http.StatusCreated, w.Code, "body: %s", w.Body.String())
	var e store.Entry
	decode(t, w, &e)
	return e
}

func TestCreateEntryClassifiesTranscript(t *testing.T) {
	f := newFixture(t)

	e := f.createEntry(t, "alice", `{"transcript":"took my pills","timestamp":"2024-01-08T09:00:00Z"}`)
	require.NotEmpty(t, e.ID)
	assert.Equal(t, store.EntryText, e.Type)
	assert.Equal(t, []string{"medicine"}, e.Labels)
	assert.Equal(t, true, e.Metadata["auto_labeled"])
	assert.Equal(t, "en", e.Metadata["language"])
	assert.True(t, e.Timestamp.Equal(time.Date(2024, 1, 8, 9, 0, 0, 0, time.UTC)), "timestamp = %v", e.Timestamp)
}

func TestCreateEntryKeepsGivenLabels(t *testing.T) {
	f := newFixture(t)

	e := f.createEntry(t, "alice", `{"type":"audio","transcript":"took my pills","labels":["Family"," family "]}`)
	assert.Equal(t, []string{"family"}, e.Labels)
	assert.Nil(t, e.Metadata)
}

func TestCreateEntryInvalidType(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, "POST", "/api/entries", "alice", `{"type":"video"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code, "body: %s", w.Body.String())

	w = f.do(t, "POST", "/api/entries", "alice", `{`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListAndSearchEntries(t *testing.T) {
	f := newFixture(t)

	f.createEntry(t, "alice", `{"transcript":"lunch with my daughter","timestamp":"2024-01-08T13:00:00Z"}`)
	f.createEntry(t, "alice", `{"transcript":"visited the clinic","timestamp":"2024-01-07T10:00:00Z"}`)
	f.createEntry(t, "bob", `{"transcript":"visited the clinic","timestamp":"2024-01-08T10:00:00Z"}`)

	var body struct {
		Entries []store.Entry `json:"entries"`
	}

	w := f.do(t, "GET", "/api/entries", "alice", "")
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &body)
	require.Len(t, body.Entries, 2)
	assert.Equal(t, "lunch with my daughter", body.Entries[0].Transcript)

	w = f.do(t, "GET", "/api/entries?start=2024-01-08&end=2024-01-09", "alice", "")
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &body)
	assert.Len(t, body.Entries, 1)

	w = f.do(t, "GET", "/api/entries?label=appointment", "alice", "")
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &body)
	require.Len(t, body.Entries, 1)
	assert.Equal(t, "visited the clinic", body.Entries[0].Transcript)

	w = f.do(t, "GET", "/api/entries?start=yesterday", "alice", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, "GET", "/api/entries/search?q=clinic", "alice", "")
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &body)
	assert.Len(t, body.Entries, 1, "search is scoped to the caller")

	w = f.do(t, "GET", "/api/entries/search", "alice", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEntryLifecycle(t *testing.T) {
	f := newFixture(t)
	e := f.createEntry(t, "alice", `{"transcript":"note"}`)
	path := "/api/entries/" + e.ID

	w := f.do(t, "GET", path, "bob", "")
	assert.Equal(t, http.StatusNotFound, w.Code, "other users cannot read the entry")

	w = f.do(t, "PUT", path+"/labels", "alice", `{"labels":["Outing","food"]}`)
	require.Equal(t, http.StatusOK, w.Code, "body: %s", w.Body.String())
	var updated store.Entry
	decode(t, w, &updated)
	assert.Equal(t, []string{"outing", "food"}, updated.Labels)

	w = f.do(t, "PUT", path+"/labels", "bob", `{"labels":["x"]}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, "DELETE", path, "alice", "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = f.do(t, "GET", path, "alice", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestClassifyEndpoint(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, "POST", "/api/classify", "alice", `{"text":"أخذت الدواء بعد الغداء"}`)
	require.Equal(t, http.StatusOK, w.Code, "body: %s", w.Body.String())

	var body struct {
		Labels     []string `json:"labels"`
		Confidence float64  `json:"confidence"`
		Language   string   `json:"language"`
	}
	decode(t, w, &body)
	assert.Contains(t, body.Labels, "medicine")
	assert.Contains(t, body.Labels, "food")
	assert.Positive(t, body.Confidence)
	assert.Equal(t, "ar", body.Language)

	w = f.do(t, "POST", "/api/classify", "alice", `{"text":"  "}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSummaryEndpoints(t *testing.T) {
	f := newFixture(t)
	f.createEntry(t, "alice", `{"transcript":"took my pills","timestamp":"2024-01-08T09:00:00Z"}`)

	w := f.do(t, "POST", "/api/summaries/2024-01-08", "alice", "")
	require.Equal(t, http.StatusCreated, w.Code, "body: %s", w.Body.String())
	var created store.DailySummary
	decode(t, w, &created)
	assert.Equal(t, "2024-01-08", created.Date)
	assert.Equal(t, "en", created.Language)
	assert.Equal(t, 1, created.Statistics["total_entries"])

	w = f.do(t, "GET", "/api/summaries/2024-01-08", "alice", "")
	require.Equal(t, http.StatusOK, w.Code)
	var got store.DailySummary
	decode(t, w, &got)
	assert.Equal(t, created.ID, got.ID)

	w = f.do(t, "GET", "/api/summaries", "alice", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Summaries []store.DailySummary `json:"summaries"`
	}
	decode(t, w, &list)
	assert.Len(t, list.Summaries, 1)

	w = f.do(t, "GET", "/api/summaries/2024-01-08", "bob", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, "GET", "/api/summaries/08-01-2024", "alice", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, "POST", "/api/summaries/08-01-2024", "alice", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGenerateSummaryDisabled(t *testing.T) {
	f := newFixture(t)
	eng, err := engine.New(engine.NewRegistry(), f.db, nil, engine.DefaultConfig())
	require.NoError(t, err)
	f.srv = New(f.db, eng, Options{})

	w := f.do(t, "POST", "/api/summaries/2024-01-08", "alice", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
