package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/lazypower/memoria/internal/engine"
	"github.com/lazypower/memoria/internal/reminder"
	"github.com/lazypower/memoria/internal/store"
	"go.uber.org/zap"
)

const (
	defaultNotificationLimit = 50
	maxListLimit             = 500
)

// reminderView is a stored reminder plus its live scheduling state.
type reminderView struct {
	reminder.Definition
	NextTrigger *time.Time   `json:"next_trigger"`
	State       engine.State `json:"state"`
}

type createRequest struct {
	Title              string             `json:"title"`
	Description        string             `json:"description"`
	Label              string             `json:"label"`
	ScheduleTime       string             `json:"schedule_time"`
	Frequency          reminder.Frequency `json:"frequency"`
	DaysOfWeek         []int              `json:"days_of_week"`
	NotificationMethod string             `json:"notification_method"`
	IsActive           *bool              `json:"is_active"`
}

func (s *Server) view(def reminder.Definition, now time.Time) reminderView {
	v := reminderView{Definition: def, State: s.engine.Registry.State(def.ID, now)}
	if def.IsActive {
		resolver := reminder.Resolver{Tolerance: s.engine.Registry.Tolerance()}
		next, err := resolver.Next(def, now)
		if err != nil {
			s.logger.Warn("next trigger failed", zap.String("reminder_id", def.ID), zap.Error(err))
		}
		v.NextTrigger = next
	}
	return v
}

// syncRegistry pushes the stored definition into the live registry. Register drops
// inactive definitions, so this covers toggles too.
func (s *Server) syncRegistry(def reminder.Definition) {
	if err := s.engine.Registry.Register(def); err != nil {
		s.logger.Error("registry rejected stored reminder",
			zap.String("reminder_id", def.ID),
			zap.Error(err))
	}
}

func (s *Server) handleListReminders(w http.ResponseWriter, r *http.Request) {
	defs, err := s.db.ListReminders(r.Context(), userFrom(r.Context()))
	if err != nil {
		s.internalError(w, err)
		return
	}

	now := s.now()
	out := make([]reminderView, 0, len(defs))
	for _, def := range defs {
		out = append(out, s.view(def, now))
	}
	writeJSON(w, http.StatusOK, map[string]any{"reminders": out})
}

func (s *Server) handleCreateReminder(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	def := reminder.Definition{
		UserID:             userFrom(r.Context()),
		Title:              req.Title,
		Description:        req.Description,
		Label:              req.Label,
		ScheduleTime:       req.ScheduleTime,
		Frequency:          req.Frequency,
		DaysOfWeek:         req.DaysOfWeek,
		NotificationMethod: req.NotificationMethod,
		IsActive:           req.IsActive == nil || *req.IsActive,
	}

	created, err := s.db.CreateReminder(r.Context(), def)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.syncRegistry(created)

	s.logger.Info("reminder created",
		zap.String("reminder_id", created.ID),
		zap.String("user_id", created.UserID))
	writeJSON(w, http.StatusCreated, s.view(created, s.now()))
}

func (s *Server) handleGetReminder(w http.ResponseWriter, r *http.Request) {
	def, err := s.db.GetReminder(r.Context(), chi.URLParam(r, "id"), userFrom(r.Context()))
	if err != nil {
		s.internalError(w, err)
		return
	}
	if def == nil {
		writeError(w, http.StatusNotFound, "reminder not found")
		return
	}
	writeJSON(w, http.StatusOK, s.view(*def, s.now()))
}

func (s *Server) handleUpdateReminder(w http.ResponseWriter, r *http.Request) {
	var u store.ReminderUpdate
	if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if u.Empty() {
		writeError(w, http.StatusBadRequest, "no fields to update")
		return
	}

	def, err := s.db.UpdateReminder(r.Context(), chi.URLParam(r, "id"), userFrom(r.Context()), u)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.syncRegistry(*def)
	writeJSON(w, http.StatusOK, s.view(*def, s.now()))
}

func (s *Server) handleDeleteReminder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.db.DeleteReminder(r.Context(), id, userFrom(r.Context())); err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.engine.Registry.Unregister(id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleToggleReminder(w http.ResponseWriter, r *http.Request) {
	def, err := s.db.ToggleReminder(r.Context(), chi.URLParam(r, "id"), userFrom(r.Context()))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.syncRegistry(*def)
	writeJSON(w, http.StatusOK, s.view(*def, s.now()))
}

func (s *Server) handleNextTrigger(w http.ResponseWriter, r *http.Request) {
	def, err := s.db.GetReminder(r.Context(), chi.URLParam(r, "id"), userFrom(r.Context()))
	if err != nil {
		s.internalError(w, err)
		return
	}
	if def == nil {
		writeError(w, http.StatusNotFound, "reminder not found")
		return
	}

	lang := r.URL.Query().Get("lang")
	if lang == "" {
		lang = "en"
	}
	v := s.view(*def, s.now())
	writeJSON(w, http.StatusOK, map[string]any{
		"reminder_id":  def.ID,
		"next_trigger": v.NextTrigger,
		"text":         reminder.Format(*def, lang),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Registry.StatisticsForUser(userFrom(r.Context()), s.now()))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 0)
	events := s.engine.Registry.HistoryForUser(userFrom(r.Context()), limit)
	if events == nil {
		events = []engine.TriggerEvent{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (s *Server) handleOverdue(w http.ResponseWriter, r *http.Request) {
	userID := userFrom(r.Context())
	now := s.now()

	out := []reminderView{}
	for _, def := range s.engine.Registry.Overdue(now, s.engine.OverdueWindow()) {
		if def.UserID == userID {
			out = append(out, s.view(def, now))
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"reminders": out})
}

func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	unread, _ := strconv.ParseBool(r.URL.Query().Get("unread"))
	limit := queryInt(r, "limit", defaultNotificationLimit)

	list, err := s.db.ListNotifications(r.Context(), userFrom(r.Context()), unread, limit)
	if err != nil {
		s.internalError(w, err)
		return
	}
	if list == nil {
		list = []store.Notification{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": list})
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	if err := s.db.MarkNotificationRead(r.Context(), chi.URLParam(r, "id"), userFrom(r.Context())); err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.Header.Get(userHeader))
	if userID == "" {
		userID = strings.TrimSpace(r.URL.Query().Get("user_id"))
	}
	if userID == "" {
		writeError(w, http.StatusUnauthorized, userHeader+" header or user_id query required")
		return
	}
	if err := s.hub.Serve(w, r, userID); err != nil {
		s.logger.Warn("websocket upgrade failed", zap.String("user_id", userID), zap.Error(err))
	}
}

// queryInt parses a positive integer query parameter, clamped to maxListLimit.
func queryInt(r *http.Request, key string, def int) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || n <= 0 {
		return def
	}
	return min(n, maxListLimit)
}

func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	var verr *reminder.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":  "invalid reminder",
			"issues": verr.Issues,
		})
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	default:
		s.internalError(w, err)
	}
}

func (s *Server) internalError(w http.ResponseWriter, err error) {
	s.logger.Error("request failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}
