package server

import (
	"encoding/json"
	"io/fs"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/lazypower/memoria/internal/engine"
	"github.com/lazypower/memoria/internal/notify"
	"github.com/lazypower/memoria/internal/store"
	"github.com/lazypower/memoria/internal/summary"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Options carries the optional collaborators of a Server.
type Options struct {
	Version        string
	AllowedOrigins []string
	Hub            *notify.Hub         // nil disables /api/ws
	Gatherer       prometheus.Gatherer // nil disables /metrics
	Summaries      *summary.Generator  // nil disables on-demand summary generation
	Logger         *zap.Logger
	UI             fs.FS // companion web app; nil serves 404 outside /api
	Now            func() time.Time
}

// Server is the memoria HTTP API server.
type Server struct {
	db        *store.DB
	engine    *engine.Engine
	hub       *notify.Hub
	summaries *summary.Generator
	logger    *zap.Logger
	router    chi.Router
	version   string
	started   time.Time
	now       func() time.Time

	gatherer       prometheus.Gatherer
	allowedOrigins []string
	ui             fs.FS
}

// New creates a Server backed by db for persistence and eng for the live
// reminder registry.
func New(db *store.DB, eng *engine.Engine, opts Options) *Server {
	s := &Server{
		db:             db,
		engine:         eng,
		hub:            opts.Hub,
		summaries:      opts.Summaries,
		logger:         opts.Logger,
		version:        opts.Version,
		started:        time.Now(),
		now:            opts.Now,
		gatherer:       opts.Gatherer,
		allowedOrigins: opts.AllowedOrigins,
		ui:             opts.UI,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	if len(s.allowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.allowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type", userHeader},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Group(func(r chi.Router) {
			r.Use(requireUser)

			r.Route("/reminders", func(r chi.Router) {
				r.Get("/", s.handleListReminders)
				r.Post("/", s.handleCreateReminder)
				r.Get("/stats", s.handleStats)
				r.Get("/history", s.handleHistory)
				r.Get("/overdue", s.handleOverdue)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetReminder)
					r.Patch("/", s.handleUpdateReminder)
					r.Delete("/", s.handleDeleteReminder)
					r.Post("/toggle", s.handleToggleReminder)
					r.Get("/next", s.handleNextTrigger)
				})
			})

			r.Route("/entries", func(r chi.Router) {
				r.Get("/", s.handleListEntries)
				r.Post("/", s.handleCreateEntry)
				r.Get("/search", s.handleSearchEntries)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetEntry)
					r.Delete("/", s.handleDeleteEntry)
					r.Put("/labels", s.handleUpdateEntryLabels)
				})
			})
			r.Post("/classify", s.handleClassify)

			r.Route("/summaries", func(r chi.Router) {
				r.Get("/", s.handleListSummaries)
				r.Get("/{date}", s.handleGetSummary)
				r.Post("/{date}", s.handleGenerateSummary)
			})

			r.Get("/notifications", s.handleListNotifications)
			r.Post("/notifications/{id}/read", s.handleMarkRead)
		})

		// Browsers cannot set headers on a websocket handshake, so the
		// user may also come from the query string.
		if s.hub != nil {
			r.Get("/ws", s.handleWS)
		}
	})

	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Get("/*", uiHandler(s.ui))

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbOK := true
	if err := s.db.PingContext(r.Context()); err != nil {
		dbOK = false
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":           "ok",
		"version":          s.version,
		"uptime":           time.Since(s.started).Seconds(),
		"db":               dbOK,
		"db_path":          s.db.Path,
		"active_reminders": len(s.engine.Registry.Active()),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
