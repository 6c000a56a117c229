// Package httpapi exposes templates, campaigns, subscribers and the
// composition wizard over a JSON API.
package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/fernmail/fern/internal/metrics"
	"github.com/fernmail/fern/internal/repository"
	"github.com/fernmail/fern/internal/spool"
)

// Config holds HTTP server configuration
type Config struct {
	ListenAddr string
	SessionTTL time.Duration
}

// Server is the HTTP API server
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	config     Config

	templates   *repository.TemplateRepository
	campaigns   *repository.CampaignRepository
	subscribers *repository.SubscriberRepository
	sendLogs    *repository.SendLogRepository
	spool       *spool.BoltStorage
	sessions    *SessionManager

	metrics   *metrics.Metrics
	logger    *slog.Logger
	startTime time.Time
}

// NewServer creates a new API server
func NewServer(cfg Config, db *sql.DB, storage *spool.BoltStorage, m *metrics.Metrics, logger *slog.Logger) *Server {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 2 * time.Hour
	}

	s := &Server{
		router:      chi.NewRouter(),
		config:      cfg,
		templates:   repository.NewTemplateRepository(db),
		campaigns:   repository.NewCampaignRepository(db),
		subscribers: repository.NewSubscriberRepository(db),
		sendLogs:    repository.NewSendLogRepository(db),
		spool:       storage,
		sessions:    NewSessionManager(cfg.SessionTTL),
		metrics:     m,
		logger:      logger,
		startTime:   time.Now(),
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the HTTP routes
func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Recoverer)
	s.router.Use(metrics.HTTPMiddleware)

	s.router.Get("/health", s.handleHealth)
	if s.metrics != nil {
		s.router.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Route("/templates", func(r chi.Router) {
			r.Get("/", s.handleListTemplates)
			r.Post("/", s.handleCreateTemplate)
			r.Get("/{id}", s.handleGetTemplate)
			r.Put("/{id}", s.handleUpdateTemplate)
			r.Delete("/{id}", s.handleDeleteTemplate)
			r.Get("/{id}/variables", s.handleTemplateVariables)
		})

		r.Route("/campaigns", func(r chi.Router) {
			r.Get("/", s.handleListCampaigns)
			r.Post("/", s.handleCreateCampaign)
			r.Get("/{id}", s.handleGetCampaign)
			r.Get("/{id}/status", s.handleCampaignStatus)
			r.Post("/{id}/schedule", s.handleScheduleCampaign)
			r.Post("/{id}/reschedule", s.handleRescheduleCampaign)
			r.Post("/{id}/cancel", s.handleCancelCampaign)
		})

		r.Route("/subscribers", func(r chi.Router) {
			r.Get("/", s.handleListSubscribers)
			r.Post("/", s.handleCreateSubscriber)
			r.Post("/unsubscribe", s.handleUnsubscribe)
		})

		r.Route("/wizard/sessions", func(r chi.Router) {
			r.Post("/", s.handleCreateSession)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetSession)
				r.Delete("/", s.handleCancelSession)
				r.Post("/template", s.handleSessionSelectTemplate)
				r.Put("/values", s.handleSessionSetValue)
				r.Put("/metadata", s.handleSessionSetMetadata)
				r.Post("/advance", s.handleSessionAdvance)
				r.Post("/retreat", s.handleSessionRetreat)
				r.Get("/preview", s.handleSessionPreview)
				r.Post("/submit", s.handleSessionSubmit)
			})
		})
	})
}

// Start begins serving and blocks until the listener fails or closes
func (s *Server) Start() error {
	s.sessions.Start()

	s.httpServer = &http.Server{
		Addr:         s.config.ListenAddr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("http server listening", "addr", s.config.ListenAddr)
	return s.httpServer.ListenAndServe()
}

// Shutdown stops the server gracefully
func (s *Server) Shutdown(ctx context.Context) error {
	s.sessions.Stop()
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// Router returns the chi router, used by tests
func (s *Server) Router() http.Handler {
	return s.router
}

// HealthResponse is the response for GET /health
type HealthResponse struct {
	Status string       `json:"status"`
	Uptime string       `json:"uptime"`
	Spool  *spool.Stats `json:"spool,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status: "ok",
		Uptime: time.Since(s.startTime).String(),
	}
	if s.spool != nil {
		if stats, err := s.spool.Stats(r.Context()); err == nil {
			resp.Spool = stats
		}
	}
	s.sendJSON(w, http.StatusOK, resp)
}

// ErrorResponse is the error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// sendJSON writes a JSON response
func (s *Server) sendJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// sendError sends an error response
func (s *Server) sendError(w http.ResponseWriter, status int, message string) {
	s.sendJSON(w, status, ErrorResponse{Error: message})
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"bytes", ww.BytesWritten(),
			"remote_addr", r.RemoteAddr,
		)
	})
}
