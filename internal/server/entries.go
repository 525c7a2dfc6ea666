package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/lazypower/memoria/internal/classify"
	"github.com/lazypower/memoria/internal/store"
	"github.com/lazypower/memoria/internal/summary"
	"go.uber.org/zap"
)

const (
	defaultSummaryLimit = 30
	keywordCount        = 5
)

type entryRequest struct {
	Type       store.EntryType `json:"type"`
	RawPath    string          `json:"raw_path"`
	Transcript string          `json:"transcript"`
	Labels     []string        `json:"labels"`
	Metadata   map[string]any  `json:"metadata"`
	Timestamp  *time.Time      `json:"timestamp"`
}

func (s *Server) handleCreateEntry(w http.ResponseWriter, r *http.Request) {
	var req entryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Type == "" {
		req.Type = store.EntryText
	}

	e := store.Entry{
		UserID:     userFrom(r.Context()),
		Type:       req.Type,
		RawPath:    req.RawPath,
		Transcript: strings.TrimSpace(req.Transcript),
		Labels:     store.CleanLabels(req.Labels),
		Metadata:   req.Metadata,
	}
	if req.Timestamp != nil {
		e.Timestamp = *req.Timestamp
	}

	// Unlabelled notes with text are labelled by the classifier.
	if len(e.Labels) == 0 && e.Transcript != "" {
		e.Labels, e.Metadata = classify.Annotate(e.Transcript, e.Metadata)
	}

	created, err := s.db.CreateEntry(r.Context(), e)
	if err != nil {
		s.writeEntryError(w, err)
		return
	}
	s.logger.Info("entry created",
		zap.String("entry_id", created.ID),
		zap.String("user_id", created.UserID),
		zap.Strings("labels", created.Labels))
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleListEntries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := store.EntryFilter{
		Label:  strings.TrimSpace(q.Get("label")),
		Limit:  queryInt(r, "limit", 0),
		Offset: queryInt(r, "offset", 0),
	}
	var err error
	if f.Start, err = queryTime(q.Get("start")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid start: "+err.Error())
		return
	}
	if f.End, err = queryTime(q.Get("end")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid end: "+err.Error())
		return
	}

	list, err := s.db.ListEntries(r.Context(), userFrom(r.Context()), f)
	if err != nil {
		s.internalError(w, err)
		return
	}
	if list == nil {
		list = []store.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": list})
}

func (s *Server) handleSearchEntries(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, http.StatusBadRequest, "q is required")
		return
	}
	list, err := s.db.SearchEntries(r.Context(), userFrom(r.Context()), q, queryInt(r, "limit", 0))
	if err != nil {
		s.internalError(w, err)
		return
	}
	if list == nil {
		list = []store.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": list})
}

func (s *Server) handleGetEntry(w http.ResponseWriter, r *http.Request) {
	e, err := s.db.GetEntry(r.Context(), chi.URLParam(r, "id"), userFrom(r.Context()))
	if err != nil {
		s.internalError(w, err)
		return
	}
	if e == nil {
		writeError(w, http.StatusNotFound, "entry not found")
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) handleUpdateEntryLabels(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Labels []string `json:"labels"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	e, err := s.db.UpdateEntryLabels(r.Context(), chi.URLParam(r, "id"), userFrom(r.Context()), req.Labels)
	if err != nil {
		s.writeEntryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) handleDeleteEntry(w http.ResponseWriter, r *http.Request) {
	if err := s.db.DeleteEntry(r.Context(), chi.URLParam(r, "id"), userFrom(r.Context())); err != nil {
		s.writeEntryError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	res := classify.Classify(req.Text)
	writeJSON(w, http.StatusOK, map[string]any{
		"labels":     res.Labels,
		"scores":     res.Scores,
		"confidence": res.Confidence,
		"keywords":   classify.Keywords(req.Text, keywordCount),
		"language":   classify.DetectLanguage(req.Text),
	})
}

func (s *Server) handleListSummaries(w http.ResponseWriter, r *http.Request) {
	list, err := s.db.ListDailySummaries(r.Context(), userFrom(r.Context()), queryInt(r, "limit", defaultSummaryLimit))
	if err != nil {
		s.internalError(w, err)
		return
	}
	if list == nil {
		list = []store.DailySummary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"summaries": list})
}

func (s *Server) handleGetSummary(w http.ResponseWriter, r *http.Request) {
	date := chi.URLParam(r, "date")
	if _, err := time.Parse(summary.DateLayout, date); err != nil {
		writeError(w, http.StatusBadRequest, "invalid date (use YYYY-MM-DD)")
		return
	}
	sum, err := s.db.GetDailySummary(r.Context(), userFrom(r.Context()), date)
	if err != nil {
		s.internalError(w, err)
		return
	}
	if sum == nil {
		writeError(w, http.StatusNotFound, "summary not found")
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleGenerateSummary(w http.ResponseWriter, r *http.Request) {
	if s.summaries == nil {
		writeError(w, http.StatusServiceUnavailable, "summaries disabled")
		return
	}
	day, err := s.summaries.ParseDate(chi.URLParam(r, "date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sum, err := s.summaries.ForUser(r.Context(), userFrom(r.Context()), day)
	if err != nil {
		s.internalError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sum)
}

// queryTime accepts RFC 3339 or a bare date. Empty means unbounded.
func queryTime(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	t, err := time.Parse(summary.DateLayout, v)
	if err != nil {
		return time.Time{}, errors.New("use RFC 3339 or YYYY-MM-DD")
	}
	return t, nil
}

func (s *Server) writeEntryError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrInvalidEntry) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeStoreError(w, err)
}
